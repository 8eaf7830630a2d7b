package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSimulatedConfigurationContent = `common:
  log_level: error
batch:
  total: 4
  concurrency: 2
  progress: none
requests:
  mode: simulated
  simulation:
    latency: 0s
    jitter: 0s
    fail_every: 4
`

func newTestApplication(t *testing.T, output *bytes.Buffer, arguments ...string) *Application {
	t.Helper()
	t.Setenv(configurationSearchPathEnvironmentVariableConstant, t.TempDir())
	application := NewApplication()
	application.rootCommand.SetOut(output)
	application.rootCommand.SetErr(output)
	application.rootCommand.SetArgs(normalizeInitializationScopeArguments(arguments))
	return application
}

func TestNormalizeInitializationScopeArguments(t *testing.T) {
	require.Nil(t, normalizeInitializationScopeArguments(nil))

	testCases := map[string][2][]string{
		"bare_flag_at_end":         {{"--log-level", "debug", "--init"}, {"--log-level", "debug", "--init=local"}},
		"bare_flag_before_flag":    {{"--init", "--force"}, {"--init=local", "--force"}},
		"separate_scope_kept":      {{"--init", "user"}, {"--init", "user"}},
		"assigned_scope_kept":      {{"--init=user", "--force"}, {"--init=user", "--force"}},
		"empty_assignment":         {{"--init= "}, {"--init=local"}},
		"create_arguments_ignored": {{"create", "--total", "5"}, {"create", "--total", "5"}},
	}

	for name, arguments := range testCases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, arguments[1], normalizeInitializationScopeArguments(arguments[0]))
		})
	}
}

func TestApplicationRegistersCommands(t *testing.T) {
	application := NewApplication()
	commandNames := map[string]bool{}
	for _, command := range application.rootCommand.Commands() {
		commandNames[command.Name()] = true
	}
	require.True(t, commandNames["create"])
	require.True(t, commandNames[versionCommandUseNameConstant])

	for _, flagName := range []string{configFileFlagNameConstant, logLevelFlagNameConstant, logFormatFlagNameConstant, configurationInitializationFlagNameConstant, versionFlagNameConstant} {
		require.NotNil(t, application.rootCommand.PersistentFlags().Lookup(flagName), flagName)
	}
}

func TestVersionCommandPrintsResolvedVersion(t *testing.T) {
	var output bytes.Buffer
	application := newTestApplication(t, &output, versionCommandUseNameConstant)
	application.versionResolver = func() string { return "v1.2.3" }

	require.NoError(t, application.rootCommand.Execute())
	require.Equal(t, "reqbatch version: v1.2.3\n", output.String())
}

func TestVersionFlagExitsAfterPrinting(t *testing.T) {
	var output bytes.Buffer
	application := newTestApplication(t, &output, "--version")
	application.versionResolver = func() string { return "v0.4.0" }
	exitCodes := []int{}
	application.exitFunction = func(code int) { exitCodes = append(exitCodes, code) }

	require.NoError(t, application.rootCommand.Execute())
	require.Equal(t, []int{0}, exitCodes)
	require.Contains(t, output.String(), "reqbatch version: v0.4.0")
}

func TestCreateCommandUsesConfigurationFile(t *testing.T) {
	configurationPath := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(configurationPath, []byte(testSimulatedConfigurationContent), 0o600))

	var output bytes.Buffer
	application := newTestApplication(t, &output, "--config", configurationPath, "create")

	require.NoError(t, application.rootCommand.Execute())
	require.Equal(t, configurationPath, application.ConfigFileUsed())
	require.Contains(t, output.String(), "Attempting to create 4 requests with concurrency 2...")
	require.Contains(t, output.String(), "Total attempted: 4")
	require.Contains(t, output.String(), "Successful: 3")
	require.Contains(t, output.String(), "Failed: 1")
}

func TestCreateCommandRejectsMissingCredentials(t *testing.T) {
	var output bytes.Buffer
	application := newTestApplication(t, &output, "create", "--total", "2")

	executionError := application.rootCommand.Execute()
	require.Error(t, executionError)
	require.Contains(t, executionError.Error(), "requests.api_key")
	require.NotContains(t, output.String(), "--- Request Creation Summary ---")
}

func TestLogLevelFlagOverridesConfiguration(t *testing.T) {
	var output bytes.Buffer
	application := newTestApplication(t, &output, "--log-level", "debug", "--log-format", "console", versionCommandUseNameConstant)
	application.versionResolver = func() string { return "v1.0.0" }

	require.NoError(t, application.rootCommand.Execute())
	require.Equal(t, "debug", application.configuration.Common.LogLevel)
	require.Equal(t, "console", application.configuration.Common.LogFormat)
	require.True(t, application.humanReadableLoggingEnabled())
}

func TestConfigurationScaffoldPath(t *testing.T) {
	homeDirectory := t.TempDir()
	t.Setenv("HOME", homeDirectory)

	userPath, userError := configurationScaffoldPath(" USER ")
	require.NoError(t, userError)
	require.Equal(t, filepath.Join(homeDirectory, ".reqbatch", "config.yaml"), userPath)

	localPath, localError := configurationScaffoldPath("")
	require.NoError(t, localError)
	require.Equal(t, "config.yaml", filepath.Base(localPath))

	_, scopeError := configurationScaffoldPath("system")
	require.ErrorContains(t, scopeError, `unsupported initialization scope "system"`)
}

func TestWriteConfigurationScaffold(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, writeConfigurationScaffold(targetPath, []byte("batch:\n  total: 1\n"), false))

	writeError := writeConfigurationScaffold(targetPath, []byte("batch:\n  total: 2\n"), false)
	require.ErrorIs(t, writeError, errConfigurationExists)

	require.NoError(t, writeConfigurationScaffold(targetPath, []byte("batch:\n  total: 2\n"), true))
	content, readError := os.ReadFile(targetPath)
	require.NoError(t, readError)
	require.Equal(t, "batch:\n  total: 2\n", string(content))

	require.Error(t, writeConfigurationScaffold(targetPath, nil, true))
	require.ErrorContains(t, writeConfigurationScaffold(filepath.Dir(targetPath), []byte("x"), true), "is a directory")
}
