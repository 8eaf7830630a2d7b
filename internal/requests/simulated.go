package requests

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const simulatedFailureTemplateConstant = "simulated gateway rejected request %d"

// ErrSimulatedFailure marks failures injected by SimulatedClient.
var ErrSimulatedFailure = errors.New("simulated failure")

// SleepFunc waits for the duration or until the context ends.
type SleepFunc func(executionContext context.Context, duration time.Duration) error

// SimulatedOptions configures a SimulatedClient.
type SimulatedOptions struct {
	Latency   time.Duration
	Jitter    time.Duration
	FailEvery int
	Sleep     SleepFunc
	Now       func() time.Time
}

// SimulatedClient stands in for the gateway. Creation and confirmation each
// take Latency plus up to Jitter, and every FailEvery-th creation fails.
type SimulatedClient struct {
	latency   time.Duration
	jitter    time.Duration
	failEvery int64
	sleep     SleepFunc
	now       func() time.Time
	calls     atomic.Int64

	randomMutex sync.Mutex
	random      *rand.Rand
}

// NewSimulatedClient constructs a SimulatedClient.
func NewSimulatedClient(options SimulatedOptions) *SimulatedClient {
	sleep := options.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &SimulatedClient{
		latency:   options.Latency,
		jitter:    options.Jitter,
		failEvery: int64(options.FailEvery),
		sleep:     sleep,
		now:       now,
		random:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
}

// Calls reports how many requests have been submitted.
func (client *SimulatedClient) Calls() int64 {
	return client.calls.Load()
}

// CreateRequest simulates request creation.
func (client *SimulatedClient) CreateRequest(executionContext context.Context, parameters CreateParameters) (Confirmation, error) {
	callNumber := client.calls.Add(1)
	if sleepError := client.sleep(executionContext, client.delay()); sleepError != nil {
		return nil, sleepError
	}
	if client.failEvery > 0 && callNumber%client.failEvery == 0 {
		return nil, fmt.Errorf("%w: "+simulatedFailureTemplateConstant, ErrSimulatedFailure, callNumber)
	}
	return &simulatedConfirmation{client: client, requestID: uuid.NewString()}, nil
}

func (client *SimulatedClient) delay() time.Duration {
	if client.jitter <= 0 {
		return client.latency
	}
	client.randomMutex.Lock()
	defer client.randomMutex.Unlock()
	return client.latency + time.Duration(client.random.Int64N(int64(client.jitter)+1))
}

type simulatedConfirmation struct {
	client    *SimulatedClient
	requestID string
	once      sync.Once
	data      RequestData
	err       error
}

func (confirmation *simulatedConfirmation) Wait(executionContext context.Context) (RequestData, error) {
	confirmation.once.Do(func() {
		if sleepError := confirmation.client.sleep(executionContext, confirmation.client.delay()); sleepError != nil {
			confirmation.err = sleepError
			return
		}
		confirmation.data = RequestData{
			RequestID:   confirmation.requestID,
			Confirmed:   true,
			ConfirmedAt: confirmation.client.now().UTC(),
		}
	})
	return confirmation.data, confirmation.err
}

func sleepContext(executionContext context.Context, duration time.Duration) error {
	if duration <= 0 {
		return executionContext.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-timer.C:
		return nil
	}
}
