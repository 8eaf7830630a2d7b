package requests

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

const (
	requestCollectionPathConstant    = "v2/request"
	apiKeyHeaderNameConstant         = "x-api-key"
	contentTypeHeaderNameConstant    = "Content-Type"
	acceptHeaderNameConstant         = "Accept"
	jsonContentTypeConstant          = "application/json"
	gatewayResponseBodyLimitConstant = 1 << 20
	defaultPollIntervalConstant      = 2 * time.Second
	defaultNotFoundLimitConstant     = 5
	gatewayURLParseErrorTemplate     = "requests.gateway: invalid base URL: %w"
	gatewayEncodeErrorTemplate       = "requests.gateway.encode: %w"
	gatewayTransportErrorTemplate    = "requests.gateway.%s: %w"
	gatewayDecodeErrorTemplate       = "requests.gateway.decode: %w"
	gatewayStatusErrorTemplate       = "gateway responded %d: %s"
	gatewayNotFoundErrorTemplate     = "%w: %s"
	gatewayMissingRequestIDMessage   = "requests.gateway: response did not include a request id"
	gatewayCreateOperationConstant   = "create"
	gatewayConfirmOperationConstant  = "confirm"
	logMessageRequestCreated         = "gateway_request_created"
	logMessageConfirmationPending    = "gateway_confirmation_pending"
	logMessageRequestConfirmed       = "gateway_request_confirmed"
	logFieldRequestIDConstant        = "request_id"
	logFieldNotFoundPollsConstant    = "not_found_polls"
	emptyGatewayResponseBodyConstant = "empty response body"
)

// ErrRequestNotFound is returned by Wait when the gateway keeps answering 404
// for a request it accepted.
var ErrRequestNotFound = errors.New("requests.gateway: request not found")

// GatewayError reports a non-success HTTP status from the gateway.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (gatewayError *GatewayError) Error() string {
	return fmt.Sprintf(gatewayStatusErrorTemplate, gatewayError.StatusCode, gatewayError.Message)
}

// GatewayOptions configures a GatewayClient. NotFoundLimit caps the
// consecutive 404 answers a confirmation tolerates before failing.
type GatewayOptions struct {
	BaseURL        string
	APIKey         string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	NotFoundLimit  int
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// GatewayClient creates requests through the gateway REST API.
type GatewayClient struct {
	baseURL       *url.URL
	apiKey        string
	pollInterval  time.Duration
	notFoundLimit int
	httpClient    *http.Client
	logger        *zap.Logger
}

type createRequestResponse struct {
	RequestID string `json:"requestId"`
}

// NewGatewayClient constructs a GatewayClient backed by a pooled HTTP transport.
func NewGatewayClient(options GatewayOptions) (*GatewayClient, error) {
	baseURL, parseError := url.Parse(strings.TrimSpace(options.BaseURL))
	if parseError != nil {
		return nil, fmt.Errorf(gatewayURLParseErrorTemplate, parseError)
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
		httpClient.Timeout = options.RequestTimeout
	}

	pollInterval := options.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollIntervalConstant
	}

	notFoundLimit := options.NotFoundLimit
	if notFoundLimit <= 0 {
		notFoundLimit = defaultNotFoundLimitConstant
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GatewayClient{
		baseURL:       baseURL,
		apiKey:        options.APIKey,
		pollInterval:  pollInterval,
		notFoundLimit: notFoundLimit,
		httpClient:    httpClient,
		logger:        logger,
	}, nil
}

// CreateRequest submits the request and returns a confirmation that polls
// the gateway until the request is confirmed.
func (client *GatewayClient) CreateRequest(executionContext context.Context, parameters CreateParameters) (Confirmation, error) {
	payload, encodeError := json.Marshal(parameters)
	if encodeError != nil {
		return nil, fmt.Errorf(gatewayEncodeErrorTemplate, encodeError)
	}

	var response createRequestResponse
	if _, callError := client.call(executionContext, gatewayCreateOperationConstant, http.MethodPost, client.baseURL.JoinPath(requestCollectionPathConstant), payload, &response); callError != nil {
		return nil, callError
	}
	if len(strings.TrimSpace(response.RequestID)) == 0 {
		return nil, errors.New(gatewayMissingRequestIDMessage)
	}

	client.logger.Debug(logMessageRequestCreated, zap.String(logFieldRequestIDConstant, response.RequestID))
	return &gatewayConfirmation{client: client, requestID: response.RequestID}, nil
}

func (client *GatewayClient) fetchRequest(executionContext context.Context, requestID string) (RequestData, bool, error) {
	var data RequestData
	statusCode, callError := client.call(executionContext, gatewayConfirmOperationConstant, http.MethodGet, client.baseURL.JoinPath(requestCollectionPathConstant, requestID), nil, &data)
	if statusCode == http.StatusNotFound {
		return RequestData{}, false, ErrRequestNotFound
	}
	if callError != nil {
		return RequestData{}, false, callError
	}
	if len(data.RequestID) == 0 {
		data.RequestID = requestID
	}
	return data, data.Confirmed, nil
}

func (client *GatewayClient) call(executionContext context.Context, operation string, method string, endpoint *url.URL, payload []byte, target any) (int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpRequest, requestError := http.NewRequestWithContext(executionContext, method, endpoint.String(), body)
	if requestError != nil {
		return 0, fmt.Errorf(gatewayTransportErrorTemplate, operation, requestError)
	}
	httpRequest.Header.Set(acceptHeaderNameConstant, jsonContentTypeConstant)
	if payload != nil {
		httpRequest.Header.Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)
	}
	if len(client.apiKey) > 0 {
		httpRequest.Header.Set(apiKeyHeaderNameConstant, client.apiKey)
	}

	httpResponse, responseError := client.httpClient.Do(httpRequest)
	if responseError != nil {
		return 0, fmt.Errorf(gatewayTransportErrorTemplate, operation, responseError)
	}
	defer httpResponse.Body.Close()

	responseBody, readError := io.ReadAll(io.LimitReader(httpResponse.Body, gatewayResponseBodyLimitConstant))
	if readError != nil {
		return httpResponse.StatusCode, fmt.Errorf(gatewayTransportErrorTemplate, operation, readError)
	}

	if httpResponse.StatusCode < http.StatusOK || httpResponse.StatusCode >= http.StatusMultipleChoices {
		return httpResponse.StatusCode, &GatewayError{StatusCode: httpResponse.StatusCode, Message: firstResponseLine(responseBody)}
	}

	if decodeError := json.Unmarshal(responseBody, target); decodeError != nil {
		return httpResponse.StatusCode, fmt.Errorf(gatewayDecodeErrorTemplate, decodeError)
	}
	return httpResponse.StatusCode, nil
}

func firstResponseLine(body []byte) string {
	trimmedBody := strings.TrimSpace(string(body))
	if len(trimmedBody) == 0 {
		return emptyGatewayResponseBodyConstant
	}
	if newlineIndex := strings.IndexByte(trimmedBody, '\n'); newlineIndex >= 0 {
		return strings.TrimSpace(trimmedBody[:newlineIndex])
	}
	return trimmedBody
}

type gatewayConfirmation struct {
	client    *GatewayClient
	requestID string

	mutex    sync.Mutex
	resolved bool
	data     RequestData
	err      error
}

// Wait polls until the request is confirmed, the gateway reports an error,
// the request stays unknown for too many polls, or the context ends.
// Terminal outcomes are remembered.
func (confirmation *gatewayConfirmation) Wait(executionContext context.Context) (RequestData, error) {
	confirmation.mutex.Lock()
	defer confirmation.mutex.Unlock()
	if confirmation.resolved {
		return confirmation.data, confirmation.err
	}

	ticker := time.NewTicker(confirmation.client.pollInterval)
	defer ticker.Stop()

	notFoundPolls := 0
	for {
		data, confirmed, fetchError := confirmation.client.fetchRequest(executionContext, confirmation.requestID)
		switch {
		case errors.Is(fetchError, ErrRequestNotFound):
			notFoundPolls++
			if notFoundPolls >= confirmation.client.notFoundLimit {
				return confirmation.resolve(RequestData{}, fmt.Errorf(gatewayNotFoundErrorTemplate, ErrRequestNotFound, confirmation.requestID))
			}
			fetchError = nil
		case fetchError == nil:
			notFoundPolls = 0
		}
		if fetchError != nil {
			if contextError := executionContext.Err(); contextError != nil {
				return RequestData{}, contextError
			}
			return confirmation.resolve(RequestData{}, fetchError)
		}
		if confirmed {
			data.ConfirmedAt = time.Now().UTC()
			confirmation.client.logger.Debug(logMessageRequestConfirmed, zap.String(logFieldRequestIDConstant, confirmation.requestID))
			return confirmation.resolve(data, nil)
		}

		confirmation.client.logger.Debug(
			logMessageConfirmationPending,
			zap.String(logFieldRequestIDConstant, confirmation.requestID),
			zap.Int(logFieldNotFoundPollsConstant, notFoundPolls),
		)
		select {
		case <-executionContext.Done():
			return RequestData{}, executionContext.Err()
		case <-ticker.C:
		}
	}
}

func (confirmation *gatewayConfirmation) resolve(data RequestData, err error) (RequestData, error) {
	confirmation.resolved = true
	confirmation.data = data
	confirmation.err = err
	return data, err
}
