package cli

import (
	_ "embed"

	createcmd "github.com/tyemirov/reqbatch/cmd/cli/create"
	"github.com/tyemirov/reqbatch/internal/requests"
)

//go:embed default_config.yaml
var embeddedDefaultConfigurationContent []byte

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common   ApplicationCommonConfiguration `mapstructure:"common"`
	Batch    createcmd.BatchConfiguration   `mapstructure:"batch"`
	Requests requests.Configuration         `mapstructure:"requests"`
}

// ApplicationCommonConfiguration stores logging defaults shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// EmbeddedDefaultConfiguration returns the configuration shipped with the binary and its format.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	return append([]byte(nil), embeddedDefaultConfigurationContent...), configurationTypeConstant
}

func (application *Application) createCommandConfiguration() createcmd.CommandConfiguration {
	return createcmd.CommandConfiguration{
		Batch:    application.configuration.Batch,
		Requests: application.configuration.Requests,
	}
}
