package requests_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/reqbatch/internal/requests"
)

const (
	testAPIKeyConstant    = "test-api-key"
	testRequestIDConstant = "01abc"
	testPayeeConstant     = "0x1111111111111111111111111111111111111111"
)

type gatewayStub struct {
	pendingPolls int32
	neverFound   bool
	createStatus int
	createBody   string
	polls        atomic.Int32
	received     atomic.Value
}

func (stub *gatewayStub) handler(testInstance *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/request", func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.Header.Get("x-api-key") != testAPIKeyConstant {
			responseWriter.WriteHeader(http.StatusUnauthorized)
			_, _ = responseWriter.Write([]byte("invalid api key\nsee documentation"))
			return
		}
		var parameters requests.CreateParameters
		require.NoError(testInstance, json.NewDecoder(request.Body).Decode(&parameters))
		stub.received.Store(parameters)
		if stub.createStatus != 0 {
			responseWriter.WriteHeader(stub.createStatus)
			_, _ = responseWriter.Write([]byte(stub.createBody))
			return
		}
		_ = json.NewEncoder(responseWriter).Encode(map[string]string{"requestId": testRequestIDConstant})
	})
	mux.HandleFunc("GET /v2/request/{requestID}", func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, testRequestIDConstant, request.PathValue("requestID"))
		pollNumber := stub.polls.Add(1)
		if pollNumber == 1 || stub.neverFound {
			responseWriter.WriteHeader(http.StatusNotFound)
			return
		}
		confirmed := pollNumber > stub.pendingPolls+1
		_ = json.NewEncoder(responseWriter).Encode(map[string]any{"requestId": testRequestIDConstant, "confirmed": confirmed})
	})
	return mux
}

func newGatewayClient(testInstance *testing.T, server *httptest.Server, apiKey string) *requests.GatewayClient {
	client, clientError := requests.NewGatewayClient(requests.GatewayOptions{
		BaseURL:      server.URL + "/",
		APIKey:       apiKey,
		PollInterval: time.Millisecond,
		HTTPClient:   server.Client(),
	})
	require.NoError(testInstance, clientError)
	return client
}

func TestGatewayClientCreatesAndConfirmsRequest(testInstance *testing.T) {
	stub := &gatewayStub{pendingPolls: 2}
	server := httptest.NewServer(stub.handler(testInstance))
	defer server.Close()

	client := newGatewayClient(testInstance, server, testAPIKeyConstant)
	template := requests.Configuration{PayeeAddress: testPayeeConstant, Reason: "pizza", ExpectedAmount: "10"}.Template()

	confirmation, createError := client.CreateRequest(context.Background(), template)
	require.NoError(testInstance, createError)

	received, _ := stub.received.Load().(requests.CreateParameters)
	require.Equal(testInstance, testPayeeConstant, received.RequestInfo.Payee.Value)
	require.Equal(testInstance, testPayeeConstant, received.RequestInfo.Payer.Value)
	require.Equal(testInstance, "pizza", received.ContentData.Reason)

	requestData, waitError := confirmation.Wait(context.Background())
	require.NoError(testInstance, waitError)
	require.True(testInstance, requestData.Confirmed)
	require.Equal(testInstance, testRequestIDConstant, requestData.RequestID)
	require.EqualValues(testInstance, 4, stub.polls.Load())

	repeated, repeatedError := confirmation.Wait(context.Background())
	require.NoError(testInstance, repeatedError)
	require.Equal(testInstance, requestData, repeated)
	require.EqualValues(testInstance, 4, stub.polls.Load())
}

func TestGatewayClientReportsFirstLineOfErrorBody(testInstance *testing.T) {
	stub := &gatewayStub{}
	server := httptest.NewServer(stub.handler(testInstance))
	defer server.Close()

	client := newGatewayClient(testInstance, server, "wrong-key")
	_, createError := client.CreateRequest(context.Background(), requests.CreateParameters{})
	require.Error(testInstance, createError)

	var gatewayError *requests.GatewayError
	require.True(testInstance, errors.As(createError, &gatewayError))
	require.Equal(testInstance, http.StatusUnauthorized, gatewayError.StatusCode)
	require.Equal(testInstance, "invalid api key", gatewayError.Message)
	require.NotContains(testInstance, createError.Error(), "documentation")
}

func TestGatewayClientRejectsMissingRequestID(testInstance *testing.T) {
	stub := &gatewayStub{createStatus: http.StatusCreated, createBody: `{}`}
	server := httptest.NewServer(stub.handler(testInstance))
	defer server.Close()

	client := newGatewayClient(testInstance, server, testAPIKeyConstant)
	_, createError := client.CreateRequest(context.Background(), requests.CreateParameters{})
	require.Error(testInstance, createError)
	require.True(testInstance, strings.Contains(createError.Error(), "request id"))
}

func TestGatewayConfirmationStopsWhenContextEnds(testInstance *testing.T) {
	stub := &gatewayStub{pendingPolls: 1 << 30}
	server := httptest.NewServer(stub.handler(testInstance))
	defer server.Close()

	client := newGatewayClient(testInstance, server, testAPIKeyConstant)
	confirmation, createError := client.CreateRequest(context.Background(), requests.CreateParameters{})
	require.NoError(testInstance, createError)

	waitContext, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, waitError := confirmation.Wait(waitContext)
	require.ErrorIs(testInstance, waitError, context.DeadlineExceeded)
}

func TestGatewayConfirmationGivesUpOnUnknownRequest(testInstance *testing.T) {
	stub := &gatewayStub{neverFound: true}
	server := httptest.NewServer(stub.handler(testInstance))
	defer server.Close()

	client, clientError := requests.NewGatewayClient(requests.GatewayOptions{
		BaseURL:       server.URL,
		APIKey:        testAPIKeyConstant,
		PollInterval:  time.Millisecond,
		NotFoundLimit: 3,
		HTTPClient:    server.Client(),
	})
	require.NoError(testInstance, clientError)

	confirmation, createError := client.CreateRequest(context.Background(), requests.CreateParameters{})
	require.NoError(testInstance, createError)

	waitContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, waitError := confirmation.Wait(waitContext)
	require.ErrorIs(testInstance, waitError, requests.ErrRequestNotFound)
	require.ErrorContains(testInstance, waitError, testRequestIDConstant)
	require.NoError(testInstance, waitContext.Err())
	require.EqualValues(testInstance, 3, stub.polls.Load())

	_, repeatedError := confirmation.Wait(context.Background())
	require.ErrorIs(testInstance, repeatedError, requests.ErrRequestNotFound)
	require.EqualValues(testInstance, 3, stub.polls.Load())
}
