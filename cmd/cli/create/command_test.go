package create

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/tyemirov/reqbatch/internal/requests"
	"github.com/tyemirov/reqbatch/internal/statusserver"
	"github.com/tyemirov/reqbatch/internal/utils"
	"github.com/tyemirov/reqbatch/pkg/taskrunner"
)

const testRunIdentifier = "run-0001"

type interruptingClient struct {
	notify *func(os.Signal)
	calls  atomic.Int64
}

func (client *interruptingClient) CreateRequest(context.Context, requests.CreateParameters) (requests.Confirmation, error) {
	if client.calls.Add(1) == 1 && client.notify != nil && *client.notify != nil {
		(*client.notify)(os.Interrupt)
	}
	return confirmedRequest{}, nil
}

// statusReadingClient reads /status from inside its readAt-th request, while
// that request is still in flight.
type statusReadingClient struct {
	address  atomic.Value
	readAt   int64
	calls    atomic.Int64
	observed atomic.Value
	readErr  atomic.Value
}

func (client *statusReadingClient) CreateRequest(context.Context, requests.CreateParameters) (requests.Confirmation, error) {
	if client.calls.Add(1) == client.readAt {
		address, _ := client.address.Load().(string)
		status, readError := readStatus(address)
		if readError != nil {
			client.readErr.Store(readError)
		} else {
			client.observed.Store(status)
		}
	}
	return confirmedRequest{}, nil
}

func readStatus(address string) (statusserver.StatusResponse, error) {
	var status statusserver.StatusResponse
	response, getError := http.Get("http://" + address + "/status")
	if getError != nil {
		return status, getError
	}
	defer response.Body.Close()
	decodeError := json.NewDecoder(response.Body).Decode(&status)
	return status, decodeError
}

type confirmedRequest struct{}

func (confirmedRequest) Wait(context.Context) (requests.RequestData, error) {
	return requests.RequestData{RequestID: "confirmed", Confirmed: true}, nil
}

func simulatedConfiguration(total int, concurrency int) CommandConfiguration {
	configuration := DefaultCommandConfiguration()
	configuration.Batch.Total = total
	configuration.Batch.Concurrency = concurrency
	configuration.Batch.Progress = "none"
	configuration.Requests.Mode = requests.ModeSimulated
	return configuration
}

func newTestBuilder(configuration CommandConfiguration) *CommandBuilder {
	return &CommandBuilder{
		LoggerProvider:        func() *zap.Logger { return zap.NewNop() },
		ConfigurationProvider: func() CommandConfiguration { return configuration },
		SignalRegistrar:       func(func(os.Signal)) func() { return func() {} },
		RunIdentifierProvider: func() string { return testRunIdentifier },
		Clock:                 func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func executeCommand(t *testing.T, builder *CommandBuilder, arguments ...string) (string, string, error) {
	t.Helper()
	return executeCommandContext(t, context.Background(), builder, arguments...)
}

func executeCommandContext(t *testing.T, executionContext context.Context, builder *CommandBuilder, arguments ...string) (string, string, error) {
	t.Helper()
	command, buildError := builder.Build()
	require.NoError(t, buildError)
	var standardOutput, errorOutput bytes.Buffer
	command.SetOut(&standardOutput)
	command.SetErr(&errorOutput)
	command.SetArgs(arguments)
	command.SilenceUsage = true
	command.SilenceErrors = true
	executionError := command.ExecuteContext(executionContext)
	return standardOutput.String(), errorOutput.String(), executionError
}

func TestCommandBuilds(t *testing.T) {
	builder := CommandBuilder{}
	command, err := builder.Build()
	require.NoError(t, err)
	require.IsType(t, &cobra.Command{}, command)
	require.Equal(t, commandUseName, command.Use)
	require.NotEmpty(t, strings.TrimSpace(command.Example))
	for _, flagName := range []string{"total", "concurrency", "progress", "summary-format", "status-address", simulateFlagName} {
		require.NotNil(t, command.Flags().Lookup(flagName), flagName)
	}
}

func TestCommandCreatesAllRequests(t *testing.T) {
	standardOutput, _, err := executeCommand(t, newTestBuilder(simulatedConfiguration(5, 2)))
	require.NoError(t, err)
	require.Contains(t, standardOutput, "Attempting to create 5 requests with concurrency 2...")
	require.Contains(t, standardOutput, "--- Request Creation Summary ---")
	require.Contains(t, standardOutput, "Total attempted: 5")
	require.Contains(t, standardOutput, "Successful: 5")
	require.Contains(t, standardOutput, "Failed: 0")
	require.NotContains(t, standardOutput, "Process aborted.")
	require.Equal(t, 1, strings.Count(standardOutput, "--- Request Creation Summary ---"))
}

func TestCommandReportsFailedRequestsWithoutFailing(t *testing.T) {
	configuration := simulatedConfiguration(4, 1)
	configuration.Requests.Simulation.FailEvery = 2

	core, recorded := observer.New(zapcore.DebugLevel)
	builder := newTestBuilder(configuration)
	builder.LoggerProvider = func() *zap.Logger { return zap.New(core) }

	standardOutput, errorOutput, err := executeCommand(t, builder)
	require.NoError(t, err)
	require.Contains(t, standardOutput, "Request failed: request-2: ")
	require.Contains(t, standardOutput, "Request failed: request-4: ")
	require.Contains(t, standardOutput, "Successful: 2")
	require.Contains(t, standardOutput, "Failed: 2")

	require.Contains(t, errorOutput, "Request failed: request-2: ")
	require.Contains(t, errorOutput, "Request failed: request-4: ")
	require.Equal(t, 2, strings.Count(errorOutput, "Request failed: "))

	failureEntries := recorded.FilterMessage(logMessageBatchFailures).All()
	require.Len(t, failureEntries, 1)
	fields := failureEntries[0].ContextMap()
	require.EqualValues(t, 2, fields[logFieldFailureCount])
	require.Equal(t, testRunIdentifier, fields[logFieldRunIdentifier])
	require.Contains(t, fields["error"], "request-2: ")
	require.Contains(t, fields["error"], "request-4: ")
}

func TestCommandSkipsFailureLogWhenEveryRequestSucceeds(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	builder := newTestBuilder(simulatedConfiguration(3, 3))
	builder.LoggerProvider = func() *zap.Logger { return zap.New(core) }

	_, errorOutput, err := executeCommand(t, builder)
	require.NoError(t, err)
	require.NotContains(t, errorOutput, "Request failed: ")
	require.Zero(t, recorded.FilterMessage(logMessageBatchFailures).Len())
}

func TestCommandReadsRunSettingsFromContext(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	builder := newTestBuilder(simulatedConfiguration(2, 1))
	builder.LoggerProvider = func() *zap.Logger { return zap.New(core) }

	accessor := utils.NewCommandContextAccessor()
	executionContext := accessor.WithRunIdentifier(context.Background(), "run-from-caller")
	executionContext = accessor.WithLogLevel(executionContext, "debug")

	standardOutput, _, err := executeCommandContext(t, executionContext, builder, "--summary-format", "yaml")
	require.NoError(t, err)
	require.Contains(t, standardOutput, "run_id: run-from-caller")

	startedEntries := recorded.FilterMessage(logMessageRunStarted).All()
	require.Len(t, startedEntries, 1)
	fields := startedEntries[0].ContextMap()
	require.Equal(t, "run-from-caller", fields[logFieldRunIdentifier])
	require.Equal(t, "debug", fields[logFieldLogLevel])
}

func TestCommandGeneratesRunIdentifierWhenProviderIsBlank(t *testing.T) {
	builder := newTestBuilder(simulatedConfiguration(1, 1))
	builder.RunIdentifierProvider = func() string { return "  " }

	standardOutput, _, err := executeCommand(t, builder, "--summary-format", "yaml")
	require.NoError(t, err)
	_, document, found := strings.Cut(standardOutput, "\n")
	require.True(t, found)
	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(document), &decoded))
	runIdentifier, isString := decoded["run_id"].(string)
	require.True(t, isString)
	require.NotEmpty(t, strings.TrimSpace(runIdentifier))
}

func TestCommandFlagsOverrideConfiguration(t *testing.T) {
	configuration := DefaultCommandConfiguration()
	configuration.Batch.Progress = "none"

	standardOutput, _, err := executeCommand(t, newTestBuilder(configuration), "--total", "3", "--concurrency", "1", "--simulate")
	require.NoError(t, err)
	require.Contains(t, standardOutput, "Attempting to create 3 requests with concurrency 1...")
	require.Contains(t, standardOutput, "Total attempted: 3")
}

func TestCommandSetupFailures(t *testing.T) {
	testCases := []struct {
		name          string
		configuration func() CommandConfiguration
		arguments     []string
	}{
		{
			name: "missing api key",
			configuration: func() CommandConfiguration {
				configuration := DefaultCommandConfiguration()
				configuration.Requests.PayeeAddress = "0xpayee"
				return configuration
			},
		},
		{
			name:          "zero concurrency",
			configuration: func() CommandConfiguration { return simulatedConfiguration(5, 1) },
			arguments:     []string{"--concurrency", "0"},
		},
		{
			name:          "unknown summary format",
			configuration: func() CommandConfiguration { return simulatedConfiguration(5, 1) },
			arguments:     []string{"--summary-format", "xml"},
		},
		{
			name:          "unknown progress mode",
			configuration: func() CommandConfiguration { return simulatedConfiguration(5, 1) },
			arguments:     []string{"--progress", "spinner"},
		},
		{
			name:          "unusable status address",
			configuration: func() CommandConfiguration { return simulatedConfiguration(5, 1) },
			arguments:     []string{"--status-address", "256.256.256.256:notaport"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			standardOutput, _, err := executeCommand(t, newTestBuilder(testCase.configuration()), testCase.arguments...)
			require.Error(t, err)
			var setupError *taskrunner.SetupError
			require.True(t, errors.As(err, &setupError), err.Error())
			require.NotContains(t, standardOutput, "--- Request Creation Summary ---")
		})
	}
}

func TestCommandClientFactoryFailureIsSetupError(t *testing.T) {
	builder := newTestBuilder(simulatedConfiguration(2, 1))
	builder.ClientFactory = func(requests.Configuration, *zap.Logger) (requests.Client, error) {
		return nil, errors.New("no client")
	}
	_, _, err := executeCommand(t, builder)
	var setupError *taskrunner.SetupError
	require.ErrorAs(t, err, &setupError)
	require.ErrorContains(t, err, "no client")
}

func TestCommandInterruptStopsNewRequests(t *testing.T) {
	var notify func(os.Signal)
	client := &interruptingClient{notify: &notify}
	builder := newTestBuilder(simulatedConfiguration(10, 1))
	builder.SignalRegistrar = func(handler func(os.Signal)) func() {
		notify = handler
		return func() {}
	}
	builder.ClientFactory = func(requests.Configuration, *zap.Logger) (requests.Client, error) {
		return client, nil
	}

	standardOutput, errorOutput, err := executeCommand(t, builder)
	require.NoError(t, err)
	require.Contains(t, errorOutput, "Aborting request creation...")
	require.Equal(t, 1, strings.Count(errorOutput, "Aborting request creation..."))
	require.Contains(t, standardOutput, "Total attempted: 1")
	require.Contains(t, standardOutput, "Successful: 1")
	require.Contains(t, standardOutput, "Process aborted. 9 requests were not attempted.")
	require.Equal(t, int64(1), client.calls.Load())
}

func TestCommandRendersYAMLSummary(t *testing.T) {
	standardOutput, _, err := executeCommand(t, newTestBuilder(simulatedConfiguration(3, 3)), "--summary-format", "yaml")
	require.NoError(t, err)

	_, document, found := strings.Cut(standardOutput, "\n")
	require.True(t, found)
	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(document), &decoded))
	require.Equal(t, testRunIdentifier, decoded["run_id"])
	require.Equal(t, 3, decoded["total"])
	require.Equal(t, 3, decoded["succeeded"])
	require.Equal(t, false, decoded["cancelled"])
}

func TestCommandServesStatusDuringRun(t *testing.T) {
	client := &statusReadingClient{readAt: 3}
	builder := newTestBuilder(simulatedConfiguration(3, 1))
	builder.StatusListener = func(address string) { client.address.Store(address) }
	builder.ClientFactory = func(requests.Configuration, *zap.Logger) (requests.Client, error) {
		return client, nil
	}

	standardOutput, _, err := executeCommand(t, builder, "--status-address", "127.0.0.1:0")
	require.NoError(t, err)
	require.Contains(t, standardOutput, "Total attempted: 3")

	readError, _ := client.readErr.Load().(error)
	require.NoError(t, readError)
	status, observed := client.observed.Load().(statusserver.StatusResponse)
	require.True(t, observed)
	require.Equal(t, testRunIdentifier, status.RunIdentifier)
	require.False(t, status.Finished)
	require.Nil(t, status.Summary)
	require.Equal(t, 3, status.Snapshot.Total)
	require.Equal(t, 2, status.Snapshot.Completed)
	require.Equal(t, 2, status.Snapshot.Succeeded)
	require.Equal(t, 1, status.Snapshot.InFlight)

	address, _ := client.address.Load().(string)
	_, afterShutdownError := readStatus(address)
	require.Error(t, afterShutdownError)
}
