package requests

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tyemirov/reqbatch/pkg/taskrunner"
)

// Client modes.
const (
	ModeGateway   = "gateway"
	ModeSimulated = "simulated"
)

const (
	unsupportedModeTemplateConstant        = "requests.mode: unsupported mode %q"
	invalidGatewayURLTemplateConstant      = "requests.gateway_url: %w"
	gatewayURLSchemeMessageConstant        = "requests.gateway_url: scheme must be http or https"
	invalidPollIntervalMessageConstant     = "requests.poll_interval: must be positive"
	httpSchemeConstant                     = "http"
	httpsSchemeConstant                    = "https"
	missingAPIKeyMessageConstant           = "requests.api_key: not configured; set REQBATCH_REQUESTS_API_KEY"
	missingPayeeAddressMessageConstant     = "requests.payee_address: not configured; set REQBATCH_REQUESTS_PAYEE_ADDRESS"
	negativeFailEveryMessageConstant       = "requests.simulation.fail_every: must not be negative"
	negativeSimulationDelayMessageConstant = "requests.simulation: latency and jitter must not be negative"
)

// SimulationConfiguration tunes the simulated client.
type SimulationConfiguration struct {
	Latency   time.Duration `mapstructure:"latency" yaml:"latency"`
	Jitter    time.Duration `mapstructure:"jitter" yaml:"jitter"`
	FailEvery int           `mapstructure:"fail_every" yaml:"fail_every"`
}

// Configuration describes the request template and the client used to submit it.
type Configuration struct {
	Mode           string                  `mapstructure:"mode" yaml:"mode"`
	GatewayURL     string                  `mapstructure:"gateway_url" yaml:"gateway_url"`
	APIKey         string                  `mapstructure:"api_key" yaml:"api_key"`
	PayeeAddress   string                  `mapstructure:"payee_address" yaml:"payee_address"`
	PayerAddress   string                  `mapstructure:"payer_address" yaml:"payer_address"`
	Currency       Currency                `mapstructure:"currency" yaml:"currency"`
	ExpectedAmount string                  `mapstructure:"expected_amount" yaml:"expected_amount"`
	PaymentNetwork PaymentNetwork          `mapstructure:"payment_network" yaml:"payment_network"`
	Reason         string                  `mapstructure:"reason" yaml:"reason"`
	DueDate        string                  `mapstructure:"due_date" yaml:"due_date"`
	PollInterval   time.Duration           `mapstructure:"poll_interval" yaml:"poll_interval"`
	RequestTimeout time.Duration           `mapstructure:"request_timeout" yaml:"request_timeout"`
	Simulation     SimulationConfiguration `mapstructure:"simulation" yaml:"simulation"`
}

// Sanitize trims values and fills participant defaults: the payer and the
// payment recipient default to the payee.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.Mode = strings.ToLower(strings.TrimSpace(configuration.Mode))
	if len(sanitized.Mode) == 0 {
		sanitized.Mode = ModeGateway
	}
	sanitized.GatewayURL = strings.TrimSpace(configuration.GatewayURL)
	sanitized.APIKey = strings.TrimSpace(configuration.APIKey)
	sanitized.PayeeAddress = strings.TrimSpace(configuration.PayeeAddress)
	sanitized.PayerAddress = strings.TrimSpace(configuration.PayerAddress)
	if len(sanitized.PayerAddress) == 0 {
		sanitized.PayerAddress = sanitized.PayeeAddress
	}
	sanitized.PaymentNetwork.Parameters.PaymentAddress = strings.TrimSpace(configuration.PaymentNetwork.Parameters.PaymentAddress)
	if len(sanitized.PaymentNetwork.Parameters.PaymentAddress) == 0 {
		sanitized.PaymentNetwork.Parameters.PaymentAddress = sanitized.PayeeAddress
	}
	return sanitized
}

// ValidateSetup reports configuration problems that must stop the batch
// before any task starts. Every problem is a *taskrunner.SetupError.
func ValidateSetup(configuration Configuration) error {
	sanitized := configuration.Sanitize()
	switch sanitized.Mode {
	case ModeGateway:
		if len(sanitized.APIKey) == 0 {
			return taskrunner.NewSetupError(errors.New(missingAPIKeyMessageConstant))
		}
		if len(sanitized.PayeeAddress) == 0 {
			return taskrunner.NewSetupError(errors.New(missingPayeeAddressMessageConstant))
		}
		parsedURL, parseError := url.Parse(sanitized.GatewayURL)
		if parseError != nil {
			return taskrunner.NewSetupError(fmt.Errorf(invalidGatewayURLTemplateConstant, parseError))
		}
		if parsedURL.Scheme != httpSchemeConstant && parsedURL.Scheme != httpsSchemeConstant {
			return taskrunner.NewSetupError(errors.New(gatewayURLSchemeMessageConstant))
		}
		if sanitized.PollInterval <= 0 {
			return taskrunner.NewSetupError(errors.New(invalidPollIntervalMessageConstant))
		}
	case ModeSimulated:
		if sanitized.Simulation.FailEvery < 0 {
			return taskrunner.NewSetupError(errors.New(negativeFailEveryMessageConstant))
		}
		if sanitized.Simulation.Latency < 0 || sanitized.Simulation.Jitter < 0 {
			return taskrunner.NewSetupError(errors.New(negativeSimulationDelayMessageConstant))
		}
	default:
		return taskrunner.NewSetupError(fmt.Errorf(unsupportedModeTemplateConstant, sanitized.Mode))
	}
	return nil
}

// Template builds the request payload shared by every request in a batch.
func (configuration Configuration) Template() CreateParameters {
	sanitized := configuration.Sanitize()
	return CreateParameters{
		RequestInfo: RequestInfo{
			Currency:       sanitized.Currency,
			ExpectedAmount: sanitized.ExpectedAmount,
			Payee:          Identity{Type: IdentityTypeEthereumAddress, Value: sanitized.PayeeAddress},
			Payer:          Identity{Type: IdentityTypeEthereumAddress, Value: sanitized.PayerAddress},
		},
		PaymentNetwork: sanitized.PaymentNetwork,
		ContentData: ContentData{
			Reason:  sanitized.Reason,
			DueDate: sanitized.DueDate,
		},
	}
}
