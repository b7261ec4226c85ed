// internal/timer/timer.go
package timer

import (
	"sync"
	"time"
)

// StepKind says what a cascade step does when its interval elapses.
type StepKind int

const (
	// Pause covers the leading remainder of the wait and fires nothing.
	Pause StepKind = iota
	// Alert is informational ("N seconds remaining").
	Alert
	// Timeout is the hard expiration of the wait.
	Timeout
)

func (k StepKind) String() string {
	switch k {
	case Pause:
		return "pause"
	case Alert:
		return "alert"
	case Timeout:
		return "timeout"
	}
	return "unknown"
}

// Step is one (interval, callback) pair of an alert cascade. Interval is measured from
// the previous step's firing, not from the start of the cascade.
type Step struct {
	Interval time.Duration
	Kind     StepKind
	// Remaining is the time left until Timeout once this step fires.
	Remaining time.Duration
}

// Cascade builds the alert cascade for a wait of total with the given minimum alert
// granularity and returns it in firing order.
//
// If total/2 < granularity the cascade is the single step (total, Timeout). Otherwise the
// last step is (granularity, Timeout), preceded by alerts whose intervals double while the
// running sum stays within total/2, preceded by one Pause step covering the remainder.
func Cascade(total, granularity time.Duration) []Step {
	if total <= 0 {
		return []Step{{Interval: 0, Kind: Timeout}}
	}
	if granularity <= 0 || total/2 < granularity {
		return []Step{{Interval: total, Kind: Timeout}}
	}

	// built back to front: the first element fires last
	built := []Step{{Interval: granularity, Kind: Timeout}}
	sum := granularity
	for next := granularity * 2; sum+next <= total/2; next *= 2 {
		built = append(built, Step{Interval: next, Kind: Alert, Remaining: sum})
		sum += next
	}
	built = append(built, Step{Interval: total - sum, Kind: Pause, Remaining: sum})

	steps := make([]Step, len(built))
	for i, s := range built {
		steps[len(built)-1-i] = s
	}
	return steps
}

// Target is the owner of a running cascade. Lock and Unlock guard both the target's own
// state and the cascade's over flag; Fire is called with the lock held and only while the
// cascade is still current.
type Target interface {
	Lock()
	Unlock()
	Fire(h *Handle, s Step)
}

// Handle is one running cascade.
type Handle struct {
	over     bool // guarded by the target's lock
	stop     chan struct{}
	stopOnce sync.Once
}

// Start runs steps on a background goroutine and returns immediately. resolve is called
// before every firing to obtain the target; a nil result means the target is gone and the
// cascade exits quietly.
func Start(steps []Step, resolve func() Target) *Handle {
	h := &Handle{stop: make(chan struct{})}
	go h.run(steps, resolve)
	return h
}

// Cancel discards every step that has not fired yet. The caller must hold the target's
// lock. A firing already waiting on that lock observes the flag and does nothing.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.over = true
	h.stopOnce.Do(func() { close(h.stop) })
}

// Over reports whether the cascade was cancelled. The caller must hold the target's lock.
func (h *Handle) Over() bool {
	return h == nil || h.over
}

func (h *Handle) run(steps []Step, resolve func() Target) {
	for _, s := range steps {
		t := time.NewTimer(s.Interval)
		select {
		case <-h.stop:
			t.Stop()
			return
		case <-t.C:
		}
		if !h.fire(s, resolve) {
			return
		}
	}
}

// fire resolves, locks and re-checks before handing the step to the target. It reports
// whether the cascade should keep running.
func (h *Handle) fire(s Step, resolve func() Target) bool {
	target := resolve()
	if target == nil {
		return false
	}
	target.Lock()
	defer target.Unlock()
	if h.over {
		return false
	}
	target.Fire(h, s)
	return !h.over
}
