package requests

import (
	"context"
	"time"
)

// Identity types understood by the gateway.
const (
	IdentityTypeEthereumAddress = "ethereumAddress"
)

// Currency identifies the asset a request is denominated in.
type Currency struct {
	Type    string `json:"type" mapstructure:"type" yaml:"type"`
	Value   string `json:"value" mapstructure:"value" yaml:"value"`
	Network string `json:"network" mapstructure:"network" yaml:"network"`
}

// Identity names a request participant.
type Identity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// RequestInfo carries the core request fields.
type RequestInfo struct {
	Currency       Currency `json:"currency"`
	ExpectedAmount string   `json:"expectedAmount"`
	Payee          Identity `json:"payee"`
	Payer          Identity `json:"payer"`
	Timestamp      int64    `json:"timestamp"`
}

// PaymentNetworkParameters configures the payment network extension.
type PaymentNetworkParameters struct {
	PaymentNetworkName string `json:"paymentNetworkName" mapstructure:"payment_network_name" yaml:"payment_network_name"`
	PaymentAddress     string `json:"paymentAddress" mapstructure:"payment_address" yaml:"payment_address"`
	FeeAddress         string `json:"feeAddress" mapstructure:"fee_address" yaml:"fee_address"`
	FeeAmount          string `json:"feeAmount" mapstructure:"fee_amount" yaml:"fee_amount"`
}

// PaymentNetwork selects the payment network extension for a request.
type PaymentNetwork struct {
	ID         string                   `json:"id" mapstructure:"id" yaml:"id"`
	Parameters PaymentNetworkParameters `json:"parameters" mapstructure:"parameters" yaml:"parameters"`
}

// ContentData is free-form content attached to a request.
type ContentData struct {
	Reason  string `json:"reason"`
	DueDate string `json:"dueDate"`
}

// CreateParameters is the payload submitted for a single request.
type CreateParameters struct {
	RequestInfo    RequestInfo    `json:"requestInfo"`
	PaymentNetwork PaymentNetwork `json:"paymentNetwork"`
	ContentData    ContentData    `json:"contentData"`
}

// RequestData is the gateway's view of a created request.
type RequestData struct {
	RequestID     string    `json:"requestId" yaml:"request_id"`
	Confirmed     bool      `json:"confirmed" yaml:"confirmed"`
	TransactionID string    `json:"transactionHash,omitempty" yaml:"transaction_id,omitempty"`
	ConfirmedAt   time.Time `json:"-" yaml:"confirmed_at"`
}

// Confirmation resolves once, when the created request is confirmed or fails.
type Confirmation interface {
	Wait(executionContext context.Context) (RequestData, error)
}

// Client creates requests.
type Client interface {
	CreateRequest(executionContext context.Context, parameters CreateParameters) (Confirmation, error)
}
