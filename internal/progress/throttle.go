package progress

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/tyemirov/reqbatch/pkg/taskrunner"
)

const defaultRenderIntervalConstant = 100 * time.Millisecond

// throttle admits renders at most once per interval. Final snapshots are
// always admitted.
type throttle struct {
	limiter *rate.Limiter
}

func newThrottle(interval time.Duration) throttle {
	if interval < 0 {
		return throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	if interval == 0 {
		interval = defaultRenderIntervalConstant
	}
	return throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (gate throttle) allow(snapshot taskrunner.Snapshot) bool {
	if isFinal(snapshot) {
		return true
	}
	return gate.limiter.Allow()
}

func isFinal(snapshot taskrunner.Snapshot) bool {
	return snapshot.InFlight == 0 && snapshot.Completed >= snapshot.Total
}
