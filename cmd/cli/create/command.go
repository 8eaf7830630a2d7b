package create

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/reqbatch/internal/progress"
	"github.com/tyemirov/reqbatch/internal/requests"
	"github.com/tyemirov/reqbatch/internal/statusserver"
	"github.com/tyemirov/reqbatch/internal/utils"
	flagutils "github.com/tyemirov/reqbatch/internal/utils/flags"
	"github.com/tyemirov/reqbatch/pkg/taskrunner"
)

const (
	commandUseName              = "create"
	commandShortDescription     = "Create many requests with bounded concurrency"
	commandLongDescription      = "create submits --total requests to the gateway, keeping at most --concurrency in flight, shows live progress, and prints a summary. Ctrl+C stops new requests from starting and waits for the ones already running."
	commandExample              = "reqbatch create --total 500 --concurrency 50\nreqbatch create --simulate --total 20 --summary-format yaml"
	simulateFlagName            = "simulate"
	simulateFlagUsage           = "Use the built-in simulated gateway instead of a real one"
	attemptingMessageTemplate   = "Attempting to create %d requests with concurrency %d...\n"
	abortingMessage             = "\nAborting request creation...\n"
	clientCreationErrorTemplate = "unable to create request client: %w"
	sinkCreationErrorTemplate   = "unable to create progress display: %w"
	statusServerStartTemplate   = "unable to start status server: %w"
	logMessageRunStarted        = "request_run_started"
	logMessageBatchFailures     = "batch_failures"
	logMessageStatusServerStop  = "status_server_shutdown_failed"
	logFieldRunIdentifier       = "run_id"
	logFieldMode                = "mode"
	logFieldConfigurationFile   = "config_file"
	logFieldLogLevel            = "log_level"
	logFieldFailureCount        = "failure_count"
)

var _ progress.Sink = (*statusserver.Server)(nil)

// LoggerProvider returns the logger used by the command.
type LoggerProvider func() *zap.Logger

// ClientFactory builds the request client for the resolved configuration.
type ClientFactory func(configuration requests.Configuration, logger *zap.Logger) (requests.Client, error)

// SignalRegistrar arranges for notify to run on interrupt and returns a function releasing the registration.
type SignalRegistrar func(notify func(os.Signal)) func()

// CommandBuilder assembles the create command. StatusListener, when set,
// receives the bound address once the status server is listening.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	ClientFactory         ClientFactory
	SignalRegistrar       SignalRegistrar
	RunIdentifierProvider func() string
	StatusListener        func(address string)
	Clock                 func() time.Time
}

// Build constructs the create command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:     commandUseName,
		Short:   commandShortDescription,
		Long:    commandLongDescription,
		Example: commandExample,
		Args:    cobra.NoArgs,
		RunE:    builder.run,
	}

	defaults := DefaultCommandConfiguration()
	flagutils.BindBatchFlags(command, flagutils.BatchFlagValues{
		Total:         defaults.Batch.Total,
		Concurrency:   defaults.Batch.Concurrency,
		Progress:      defaults.Batch.Progress,
		SummaryFormat: defaults.Batch.SummaryFormat,
	})
	command.Flags().Bool(simulateFlagName, false, simulateFlagUsage)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	configuration := builder.applyFlagOverrides(command, builder.resolveConfiguration()).Sanitize()
	if validationError := configuration.Validate(); validationError != nil {
		return validationError
	}

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}
	contextAccessor := utils.NewCommandContextAccessor()
	runIdentifier, hasRunIdentifier := contextAccessor.RunIdentifier(executionContext)
	if !hasRunIdentifier {
		runIdentifier = builder.runIdentifier()
		executionContext = contextAccessor.WithRunIdentifier(executionContext, runIdentifier)
	}

	logger := builder.resolveLogger().With(zap.String(logFieldRunIdentifier, runIdentifier))
	configurationFile, _ := contextAccessor.ConfigurationFilePath(executionContext)
	logLevel, _ := contextAccessor.LogLevel(executionContext)
	logger.Info(
		logMessageRunStarted,
		zap.String(logFieldMode, configuration.Requests.Mode),
		zap.String(logFieldConfigurationFile, configurationFile),
		zap.String(logFieldLogLevel, logLevel),
	)

	client, clientError := builder.resolveClientFactory()(configuration.Requests, logger)
	if clientError != nil {
		return taskrunner.NewSetupError(fmt.Errorf(clientCreationErrorTemplate, clientError))
	}
	factory, factoryError := requests.NewTaskFactory(client, configuration.Requests.Template(), builder.Clock)
	if factoryError != nil {
		return taskrunner.NewSetupError(factoryError)
	}

	progressSink, sinkError := progress.NewSink(progress.Options{
		Mode:     progress.Mode(configuration.Batch.Progress),
		Output:   command.ErrOrStderr(),
		Logger:   logger,
		Interval: configuration.Batch.ProgressInterval,
	})
	if sinkError != nil {
		return taskrunner.NewSetupError(fmt.Errorf(sinkCreationErrorTemplate, sinkError))
	}
	sinks := progress.MultiSink{progressSink}

	var statusServer *statusserver.Server
	if len(configuration.Batch.StatusAddress) > 0 {
		statusServer = statusserver.New(statusserver.Options{
			Address:       configuration.Batch.StatusAddress,
			RunIdentifier: runIdentifier,
			Logger:        logger,
		})
		if startError := statusServer.Start(); startError != nil {
			return taskrunner.NewSetupError(fmt.Errorf(statusServerStartTemplate, startError))
		}
		sinks = append(sinks, statusServer)
		if builder.StatusListener != nil {
			builder.StatusListener(statusServer.Address())
		}
	}

	errorOutput := command.ErrOrStderr()
	var errorOutputMutex sync.Mutex
	runner := taskrunner.NewRunner(taskrunner.Options{
		LoggerProvider: func() *zap.Logger { return logger },
		Sink:           sinks,
		FailureReporter: func(failure taskrunner.TaskFailure) {
			errorOutputMutex.Lock()
			defer errorOutputMutex.Unlock()
			_, _ = fmt.Fprintf(errorOutput, summaryFailureTemplate+"\n", failure.Error())
		},
	})

	releaseSignals := builder.resolveSignalRegistrar()(func(os.Signal) {
		if !runner.Cancelled() {
			errorOutputMutex.Lock()
			_, _ = io.WriteString(errorOutput, abortingMessage)
			errorOutputMutex.Unlock()
		}
		runner.SignalCancel()
	})
	defer releaseSignals()

	_, _ = fmt.Fprintf(command.OutOrStdout(), attemptingMessageTemplate, configuration.Batch.Total, configuration.Batch.Concurrency)

	summary, runError := runner.Run(executionContext, taskrunner.BatchRequest{
		Total:       configuration.Batch.Total,
		Concurrency: configuration.Batch.Concurrency,
		Factory:     factory,
	})
	sinks.Stop()

	var setupError *taskrunner.SetupError
	if errors.As(runError, &setupError) {
		builder.shutdownStatusServer(statusServer, configuration.Batch.ShutdownTimeout, logger)
		return runError
	}

	if failures := summary.Err(); failures != nil {
		logger.Warn(logMessageBatchFailures, zap.Int(logFieldFailureCount, len(summary.Failures)), zap.Error(failures))
	}
	if statusServer != nil {
		statusServer.Finish(summary)
	}
	builder.shutdownStatusServer(statusServer, configuration.Batch.ShutdownTimeout, logger)

	if renderError := RenderSummary(command.OutOrStdout(), runIdentifier, summary, configuration.Batch.SummaryFormat); renderError != nil {
		return renderError
	}
	return runError
}

func (builder *CommandBuilder) applyFlagOverrides(command *cobra.Command, configuration CommandConfiguration) CommandConfiguration {
	if command == nil {
		return configuration
	}
	if total, changed, flagError := flagutils.IntFlag(command, flagutils.TotalFlagName); flagError == nil && changed {
		configuration.Batch.Total = total
	}
	if concurrency, changed, flagError := flagutils.IntFlag(command, flagutils.ConcurrencyFlagName); flagError == nil && changed {
		configuration.Batch.Concurrency = concurrency
	}
	if progressMode, changed, flagError := flagutils.StringFlag(command, flagutils.ProgressFlagName); flagError == nil && changed {
		configuration.Batch.Progress = progressMode
	}
	if summaryFormat, changed, flagError := flagutils.StringFlag(command, flagutils.SummaryFormatFlagName); flagError == nil && changed {
		configuration.Batch.SummaryFormat = summaryFormat
	}
	if statusAddress, changed, flagError := flagutils.StringFlag(command, flagutils.StatusAddressFlagName); flagError == nil && changed {
		configuration.Batch.StatusAddress = statusAddress
	}
	if simulate, changed, flagError := flagutils.BoolFlag(command, simulateFlagName); flagError == nil && changed && simulate {
		configuration.Requests.Mode = requests.ModeSimulated
	}
	return configuration
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveClientFactory() ClientFactory {
	if builder.ClientFactory != nil {
		return builder.ClientFactory
	}
	return NewClient
}

func (builder *CommandBuilder) resolveSignalRegistrar() SignalRegistrar {
	if builder.SignalRegistrar != nil {
		return builder.SignalRegistrar
	}
	return func(notify func(os.Signal)) func() {
		return utils.RegisterSignalHandler(notify, os.Interrupt, syscall.SIGTERM)
	}
}

func (builder *CommandBuilder) runIdentifier() string {
	if builder.RunIdentifierProvider != nil {
		if runIdentifier := strings.TrimSpace(builder.RunIdentifierProvider()); len(runIdentifier) > 0 {
			return runIdentifier
		}
	}
	return uuid.NewString()
}

func (builder *CommandBuilder) shutdownStatusServer(statusServer *statusserver.Server, timeout time.Duration, logger *zap.Logger) {
	if statusServer == nil {
		return
	}
	shutdownContext, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if shutdownError := statusServer.Shutdown(shutdownContext); shutdownError != nil {
		logger.Warn(logMessageStatusServerStop, zap.Error(shutdownError))
	}
}
