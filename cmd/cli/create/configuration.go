package create

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tyemirov/reqbatch/internal/progress"
	"github.com/tyemirov/reqbatch/internal/requests"
	"github.com/tyemirov/reqbatch/pkg/taskrunner"
)

// Summary formats.
const (
	SummaryFormatText = "text"
	SummaryFormatYAML = "yaml"
)

const (
	defaultTotalConstant              = 100
	defaultConcurrencyConstant        = 100
	defaultProgressIntervalConstant   = 100 * time.Millisecond
	defaultShutdownTimeoutConstant    = 2 * time.Second
	defaultGatewayURLConstant         = "http://localhost:3000/"
	defaultPollIntervalConstant       = 2 * time.Second
	defaultRequestTimeoutConstant     = 30 * time.Second
	negativeTotalMessageConstant      = "batch.total: must not be negative"
	invalidConcurrencyMessageConstant = "batch.concurrency: must be at least 1"
	unsupportedSummaryFormatTemplate  = "batch.summary_format: unsupported format %q"
)

// BatchConfiguration captures batch sizing and output settings.
type BatchConfiguration struct {
	Total            int           `mapstructure:"total" yaml:"total"`
	Concurrency      int           `mapstructure:"concurrency" yaml:"concurrency"`
	Progress         string        `mapstructure:"progress" yaml:"progress"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
	SummaryFormat    string        `mapstructure:"summary_format" yaml:"summary_format"`
	StatusAddress    string        `mapstructure:"status_address" yaml:"status_address"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// CommandConfiguration captures configuration values for the create command.
type CommandConfiguration struct {
	Batch    BatchConfiguration     `mapstructure:"batch"`
	Requests requests.Configuration `mapstructure:"requests"`
}

// DefaultCommandConfiguration returns baseline configuration.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Batch: BatchConfiguration{
			Total:            defaultTotalConstant,
			Concurrency:      defaultConcurrencyConstant,
			Progress:         string(progress.ModeAuto),
			ProgressInterval: defaultProgressIntervalConstant,
			SummaryFormat:    SummaryFormatText,
			ShutdownTimeout:  defaultShutdownTimeoutConstant,
		},
		Requests: requests.Configuration{
			Mode:           requests.ModeGateway,
			GatewayURL:     defaultGatewayURLConstant,
			PollInterval:   defaultPollIntervalConstant,
			RequestTimeout: defaultRequestTimeoutConstant,
		},
	}
}

// Sanitize trims textual configuration values and applies defaults.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.Batch.Progress = strings.ToLower(strings.TrimSpace(configuration.Batch.Progress))
	sanitized.Batch.SummaryFormat = strings.ToLower(strings.TrimSpace(configuration.Batch.SummaryFormat))
	if len(sanitized.Batch.SummaryFormat) == 0 {
		sanitized.Batch.SummaryFormat = SummaryFormatText
	}
	sanitized.Batch.StatusAddress = strings.TrimSpace(configuration.Batch.StatusAddress)
	if sanitized.Batch.ShutdownTimeout <= 0 {
		sanitized.Batch.ShutdownTimeout = defaultShutdownTimeoutConstant
	}
	sanitized.Requests = configuration.Requests.Sanitize()
	return sanitized
}

// Validate reports setup problems as *taskrunner.SetupError values.
func (configuration CommandConfiguration) Validate() error {
	if configuration.Batch.Total < 0 {
		return taskrunner.NewSetupError(errors.New(negativeTotalMessageConstant))
	}
	if configuration.Batch.Concurrency < 1 {
		return taskrunner.NewSetupError(errors.New(invalidConcurrencyMessageConstant))
	}
	if _, modeError := progress.ParseMode(configuration.Batch.Progress); modeError != nil {
		return taskrunner.NewSetupError(modeError)
	}
	switch configuration.Batch.SummaryFormat {
	case SummaryFormatText, SummaryFormatYAML:
	default:
		return taskrunner.NewSetupError(fmt.Errorf(unsupportedSummaryFormatTemplate, configuration.Batch.SummaryFormat))
	}
	return requests.ValidateSetup(configuration.Requests)
}
