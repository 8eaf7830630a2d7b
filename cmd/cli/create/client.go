package create

import (
	"go.uber.org/zap"

	"github.com/tyemirov/reqbatch/internal/requests"
)

// NewClient builds the gateway client, or the simulated one in simulated mode.
func NewClient(configuration requests.Configuration, logger *zap.Logger) (requests.Client, error) {
	if configuration.Mode == requests.ModeSimulated {
		return requests.NewSimulatedClient(requests.SimulatedOptions{
			Latency:   configuration.Simulation.Latency,
			Jitter:    configuration.Simulation.Jitter,
			FailEvery: configuration.Simulation.FailEvery,
		}), nil
	}
	gatewayClient, gatewayError := requests.NewGatewayClient(requests.GatewayOptions{
		BaseURL:        configuration.GatewayURL,
		APIKey:         configuration.APIKey,
		PollInterval:   configuration.PollInterval,
		RequestTimeout: configuration.RequestTimeout,
		Logger:         logger,
	})
	if gatewayError != nil {
		return nil, gatewayError
	}
	return gatewayClient, nil
}
