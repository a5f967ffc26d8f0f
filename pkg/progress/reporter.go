package progress

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultThrottle is the minimum interval between reports forwarded by a
// Reporter. Sinks that log or emit events must not be allowed to slow the
// per-point computation, so updates arriving faster than this are dropped.
const DefaultThrottle = 100 * time.Millisecond

// Reporter forwards progress updates to a sink at a bounded frequency.
// The zero value is not usable; construct with NewReporter.
type Reporter struct {
	sink     DetailedCallback
	throttle time.Duration

	mu         sync.Mutex
	lastReport time.Time
}

// NewReporter creates a throttled reporter around sink. A throttle of zero
// uses DefaultThrottle. A nil sink yields a reporter that drops everything,
// which keeps call sites free of nil checks.
func NewReporter(sink DetailedCallback, throttle time.Duration) *Reporter {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Reporter{sink: sink, throttle: throttle}
}

// NewLogReporter creates a reporter that writes progress lines to log at
// debug level. Useful as the default sink for command-line runs.
func NewLogReporter(log zerolog.Logger, throttle time.Duration) *Reporter {
	return NewReporter(func(u Update) {
		log.Debug().
			Str("phase", u.Phase).
			Int("current", u.Current).
			Int("total", u.Total).
			Msg(u.Message)
	}, throttle)
}

// Report forwards an update unless one was forwarded within the throttle
// interval. The final update of a phase (Current == Total) is always
// forwarded so consumers see completion.
func (r *Reporter) Report(u Update) {
	if r == nil || r.sink == nil {
		return
	}

	r.mu.Lock()
	final := u.Total > 0 && u.Current >= u.Total
	if !final && time.Since(r.lastReport) < r.throttle {
		r.mu.Unlock()
		return
	}
	r.lastReport = time.Now()
	r.mu.Unlock()

	r.sink(u)
}

// Callback adapts the reporter to the simple Callback signature used by the
// simulator APIs.
func (r *Reporter) Callback(phase string) Callback {
	return func(current, total int, message string) {
		r.Report(Update{
			Phase:   phase,
			Current: current,
			Total:   total,
			Message: message,
		})
	}
}
