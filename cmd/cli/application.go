package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	createcmd "github.com/tyemirov/reqbatch/cmd/cli/create"
	"github.com/tyemirov/reqbatch/internal/utils"
	flagutils "github.com/tyemirov/reqbatch/internal/utils/flags"
	"github.com/tyemirov/reqbatch/internal/version"
)

const (
	applicationNameConstant  = "reqbatch"
	applicationShortConstant = "Create payment requests in bulk"
	applicationLongConstant  = "reqbatch creates many payment requests against an invoicing gateway with bounded concurrency, live progress, and graceful interruption."

	versionCommandUseNameConstant = "version"
	versionCommandShortConstant   = "Print the reqbatch version"
	versionOutputTemplateConstant = "reqbatch version: %s\n"
)

// Persistent flags shared by every subcommand.
const (
	configFileFlagNameConstant                  = "config"
	logLevelFlagNameConstant                    = "log-level"
	logFormatFlagNameConstant                   = "log-format"
	configurationInitializationFlagNameConstant = "init"
	configurationForceFlagNameConstant          = "force"
	versionFlagNameConstant                     = "version"
)

const (
	environmentPrefixConstant                          = "REQBATCH"
	configurationNameConstant                          = "config"
	configurationTypeConstant                          = "yaml"
	configurationFileNameConstant                      = configurationNameConstant + "." + configurationTypeConstant
	configurationSearchPathEnvironmentVariableConstant = "REQBATCH_CONFIG_SEARCH_PATH"
	xdgConfigHomeEnvironmentVariableConstant           = "XDG_CONFIG_HOME"
	userConfigurationDirectoryNameConstant             = ".reqbatch"
	logLevelConfigurationKeyConstant                   = "common.log_level"
	logFormatConfigurationKeyConstant                  = "common.log_format"
)

// Application owns the root command together with the configuration and the loggers
// every subcommand reads through providers.
type Application struct {
	rootCommand   *cobra.Command
	loader        *utils.ConfigurationLoader
	loggerFactory loggerOutputsFactory
	contexts      utils.CommandContextAccessor

	logger        *zap.Logger
	consoleLogger *zap.Logger
	configuration ApplicationConfiguration
	loaded        utils.LoadedConfiguration

	flagValues      persistentFlagValues
	versionResolver func() string
	exitFunction    func(int)
}

type loggerOutputsFactory interface {
	CreateLoggerOutputs(utils.LogLevel, utils.LogFormat) (utils.LoggerOutputs, error)
}

type persistentFlagValues struct {
	configurationFile string
	logLevel          string
	logFormat         string
	initializeScope   string
	forceOverwrite    bool
	printVersion      bool
}

// NewApplication builds the root command with the version and create subcommands attached.
func NewApplication() *Application {
	application := &Application{
		loader:        utils.NewConfigurationLoader(configurationNameConstant, configurationTypeConstant, environmentPrefixConstant, configurationSearchPaths()),
		loggerFactory: utils.NewLoggerFactory(),
		contexts:      utils.NewCommandContextAccessor(),
		logger:        zap.NewNop(),
		consoleLogger: zap.NewNop(),
		exitFunction:  os.Exit,
	}
	application.versionResolver = func() string {
		return strings.TrimSpace(version.Detect(version.Dependencies{}))
	}
	application.loader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	rootCommand := &cobra.Command{
		Use:               applicationNameConstant,
		Short:             applicationShortConstant,
		Long:              applicationLongConstant,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: application.prepare,
		RunE:              application.runRoot,
	}
	rootCommand.SetContext(context.Background())
	application.bindPersistentFlags(rootCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:           versionCommandUseNameConstant,
		Short:         versionCommandShortConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, _ []string) error {
			application.printVersion(command)
			return nil
		},
	})

	createBuilder := createcmd.CommandBuilder{
		LoggerProvider:        func() *zap.Logger { return application.logger },
		ConfigurationProvider: application.createCommandConfiguration,
	}
	if createCommand, buildError := createBuilder.Build(); buildError == nil {
		rootCommand.AddCommand(createCommand)
	}

	application.rootCommand = rootCommand
	return application
}

func (application *Application) bindPersistentFlags(rootCommand *cobra.Command) {
	flagSet := rootCommand.PersistentFlags()
	flagSet.StringVar(&application.flagValues.configurationFile, configFileFlagNameConstant, "", "Optional path to a configuration file (YAML or JSON).")
	flagSet.StringVar(&application.flagValues.logLevel, logLevelFlagNameConstant, "", "Override the configured log level (debug, info, warn, error).")
	flagSet.StringVar(&application.flagValues.logFormat, logFormatFlagNameConstant, "", "Override the configured log format (structured or console).")
	flagSet.StringVar(&application.flagValues.initializeScope, configurationInitializationFlagNameConstant, configurationScopeLocalConstant,
		"Write the default configuration to local (./config.yaml) or user ($HOME/.reqbatch/config.yaml) scope.")
	flagSet.BoolVar(&application.flagValues.forceOverwrite, configurationForceFlagNameConstant, false, "Overwrite an existing configuration file when initializing.")
	flagSet.BoolVar(&application.flagValues.printVersion, versionFlagNameConstant, false, "Print the application version and exit")
}

// Execute runs the command tree against os.Args and flushes loggers afterwards.
func (application *Application) Execute() error {
	application.rootCommand.SetArgs(normalizeInitializationScopeArguments(os.Args[1:]))

	executionError := application.rootCommand.Execute()
	for _, logger := range []*zap.Logger{application.logger, application.consoleLogger} {
		if syncError := syncLogger(logger); syncError != nil {
			return fmt.Errorf("unable to flush logger: %w", syncError)
		}
	}
	return executionError
}

// Execute builds a fresh application and runs it.
func Execute() error {
	return NewApplication().Execute()
}

// InitializeForCommand loads configuration and loggers as if the named command were about to run.
func (application *Application) InitializeForCommand(commandUse string) error {
	return application.initializeConfiguration(&cobra.Command{Use: commandUse})
}

// ConfigFileUsed reports the configuration file that was merged, if any.
func (application *Application) ConfigFileUsed() string {
	return application.loaded.ConfigFileUsed
}

// Configuration returns the effective configuration.
func (application *Application) Configuration() ApplicationConfiguration {
	return application.configuration
}

func (application *Application) prepare(command *cobra.Command, _ []string) error {
	if initializationError := application.initializeConfiguration(command); initializationError != nil {
		return initializationError
	}

	versionRequested := application.flagValues.printVersion
	if flagValue, changed, flagError := flagutils.BoolFlag(command, versionFlagNameConstant); flagError == nil && changed {
		versionRequested = flagValue
	}
	if versionRequested {
		application.printVersion(command)
		application.exitFunction(0)
	}
	return nil
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaults := map[string]any{
		logLevelConfigurationKeyConstant:  string(utils.LogLevelError),
		logFormatConfigurationKeyConstant: string(utils.LogFormatStructured),
	}
	loaded, loadError := application.loader.LoadConfiguration(application.flagValues.configurationFile, defaults, &application.configuration)
	if loadError != nil {
		return fmt.Errorf("unable to load configuration: %w", loadError)
	}
	application.loaded = loaded

	if flagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.flagValues.logLevel
	}
	if flagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.flagValues.logFormat
	}

	outputs, loggerError := application.loggerFactory.CreateLoggerOutputs(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerError != nil {
		return fmt.Errorf("unable to create logger: %w", loggerError)
	}
	application.logger = nopIfNil(outputs.DiagnosticLogger)
	application.consoleLogger = nopIfNil(outputs.ConsoleLogger)
	application.announceConfiguration()

	commandContext := application.contexts.WithConfigurationFilePath(command.Context(), loaded.ConfigFileUsed)
	commandContext = application.contexts.WithLogLevel(commandContext, application.configuration.Common.LogLevel)
	command.SetContext(commandContext)
	if root := command.Root(); root != command {
		root.SetContext(commandContext)
	}
	return nil
}

func (application *Application) humanReadableLoggingEnabled() bool {
	return strings.EqualFold(strings.TrimSpace(application.configuration.Common.LogFormat), string(utils.LogFormatConsole))
}

func (application *Application) announceConfiguration() {
	common := application.configuration.Common
	if !strings.EqualFold(strings.TrimSpace(common.LogLevel), string(utils.LogLevelDebug)) {
		return
	}
	if application.humanReadableLoggingEnabled() {
		application.consoleLogger.Debug(fmt.Sprintf("configuration initialized | log level=%s | log format=%s | config file=%s",
			common.LogLevel, common.LogFormat, application.loaded.ConfigFileUsed))
		return
	}
	application.logger.Debug("configuration initialized",
		zap.String("log_level", common.LogLevel),
		zap.String("log_format", common.LogFormat),
		zap.String("config_file", application.loaded.ConfigFileUsed),
	)
}

func (application *Application) printVersion(command *cobra.Command) {
	fmt.Fprintf(command.OutOrStdout(), versionOutputTemplateConstant, application.versionResolver())
}

// runRoot either scaffolds a configuration file (--init) or prints help.
func (application *Application) runRoot(command *cobra.Command, arguments []string) error {
	if flagChanged(command, configurationInitializationFlagNameConstant) {
		return application.scaffoldConfiguration()
	}
	application.logger.Info("reqbatch CLI executed",
		zap.String("command_name", command.Name()),
		zap.Int("argument_count", len(arguments)),
	)
	return command.Help()
}

// configurationSearchPaths lists the directories searched for config.yaml, honoring the
// REQBATCH_CONFIG_SEARCH_PATH override.
func configurationSearchPaths() []string {
	if override := strings.TrimSpace(os.Getenv(configurationSearchPathEnvironmentVariableConstant)); len(override) > 0 {
		var paths []string
		for _, candidate := range filepath.SplitList(override) {
			if trimmed := strings.TrimSpace(candidate); len(trimmed) > 0 {
				paths = append(paths, trimmed)
			}
		}
		if len(paths) > 0 {
			return paths
		}
		return []string{"."}
	}

	paths := []string{"."}
	addDirectory := func(base string, name string) {
		if base = strings.TrimSpace(base); len(base) == 0 {
			return
		}
		if candidate := filepath.Join(base, name); !slices.Contains(paths, candidate) {
			paths = append(paths, candidate)
		}
	}
	addDirectory(os.Getenv(xdgConfigHomeEnvironmentVariableConstant), applicationNameConstant)
	if homeDirectory, homeError := os.UserHomeDir(); homeError == nil {
		addDirectory(homeDirectory, userConfigurationDirectoryNameConstant)
	}
	return paths
}

// normalizeInitializationScopeArguments turns a bare --init into --init=local so the
// optional scope value does not swallow the following argument.
func normalizeInitializationScopeArguments(arguments []string) []string {
	if len(arguments) == 0 {
		return nil
	}

	flagToken := "--" + configurationInitializationFlagNameConstant
	defaultToken := flagToken + "=" + configurationScopeLocalConstant
	normalized := make([]string, 0, len(arguments))
	for index, argument := range arguments {
		switch {
		case strings.HasPrefix(argument, flagToken+"=") && len(strings.TrimSpace(strings.TrimPrefix(argument, flagToken+"="))) == 0:
			argument = defaultToken
		case argument == flagToken && (index+1 >= len(arguments) || strings.HasPrefix(arguments[index+1], "-")):
			argument = defaultToken
		}
		normalized = append(normalized, argument)
	}
	return normalized
}

func flagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}
	if command.Flags().Changed(flagName) || command.InheritedFlags().Changed(flagName) {
		return true
	}
	return command.Root().PersistentFlags().Changed(flagName)
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// syncLogger flushes a logger, ignoring the errors terminals and pipes return for fsync.
func syncLogger(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	syncError := logger.Sync()
	for _, benign := range []error{syscall.ENOTSUP, syscall.EINVAL, syscall.EBADF, syscall.ENOTTY} {
		if errors.Is(syncError, benign) {
			return nil
		}
	}
	return syncError
}
