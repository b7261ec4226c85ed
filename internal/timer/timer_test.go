package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCascadeShortWaitIsSingleTimeout(t *testing.T) {
	steps := Cascade(1*time.Second, 10*time.Second)
	require.Len(t, steps, 1)
	assert.Equal(t, Step{Interval: time.Second, Kind: Timeout}, steps[0])
}

func TestCascadeDoublingAlerts(t *testing.T) {
	steps := Cascade(100*time.Second, 10*time.Second)
	require.Len(t, steps, 3)

	assert.Equal(t, Pause, steps[0].Kind)
	assert.Equal(t, 70*time.Second, steps[0].Interval)
	assert.Equal(t, 30*time.Second, steps[0].Remaining)

	assert.Equal(t, Alert, steps[1].Kind)
	assert.Equal(t, 20*time.Second, steps[1].Interval)
	assert.Equal(t, 10*time.Second, steps[1].Remaining)

	assert.Equal(t, Timeout, steps[2].Kind)
	assert.Equal(t, 10*time.Second, steps[2].Interval)
}

func TestCascadeIntervalsSumToTotal(t *testing.T) {
	for _, total := range []time.Duration{1, 19, 20, 21, 60, 100, 200, 301, 3600} {
		steps := Cascade(total*time.Second, 10*time.Second)
		var sum time.Duration
		for _, s := range steps {
			sum += s.Interval
		}
		assert.Equal(t, total*time.Second, sum, "total %d", total)
		assert.Equal(t, Timeout, steps[len(steps)-1].Kind, "total %d", total)
		if len(steps) > 1 {
			assert.Equal(t, 10*time.Second, steps[len(steps)-1].Interval)
			assert.Equal(t, Pause, steps[0].Kind)
		}
	}
}

func TestCascadeLongWait(t *testing.T) {
	steps := Cascade(200*time.Second, 10*time.Second)
	kinds := make([]StepKind, len(steps))
	for i, s := range steps {
		kinds[i] = s.Kind
	}
	assert.Equal(t, []StepKind{Pause, Alert, Alert, Timeout}, kinds)
	assert.Equal(t, 30*time.Second, steps[1].Remaining)
	assert.Equal(t, 10*time.Second, steps[2].Remaining)
}

type recordingTarget struct {
	mu    sync.Mutex
	fired []StepKind
	done  chan struct{}
}

func (r *recordingTarget) Lock()   { r.mu.Lock() }
func (r *recordingTarget) Unlock() { r.mu.Unlock() }
func (r *recordingTarget) Fire(h *Handle, s Step) {
	r.fired = append(r.fired, s.Kind)
	if s.Kind == Timeout {
		close(r.done)
	}
}

func TestStartFiresInOrder(t *testing.T) {
	target := &recordingTarget{done: make(chan struct{})}
	steps := Cascade(40*time.Millisecond, 10*time.Millisecond)
	Start(steps, func() Target { return target })

	select {
	case <-target.done:
	case <-time.After(2 * time.Second):
		t.Fatal("cascade never timed out")
	}
	target.Lock()
	defer target.Unlock()
	assert.Equal(t, []StepKind{Pause, Timeout}, target.fired)
}

func TestCancelBeforeFiring(t *testing.T) {
	target := &recordingTarget{done: make(chan struct{})}
	h := Start([]Step{{Interval: 20 * time.Millisecond, Kind: Timeout}}, func() Target { return target })

	target.Lock()
	h.Cancel()
	h.Cancel()
	assert.True(t, h.Over())
	target.Unlock()

	time.Sleep(60 * time.Millisecond)
	target.Lock()
	defer target.Unlock()
	assert.Empty(t, target.fired)
}

func TestCancelWhileFiringWaitsOnLock(t *testing.T) {
	target := &recordingTarget{done: make(chan struct{})}
	h := Start([]Step{{Interval: 5 * time.Millisecond, Kind: Timeout}}, func() Target { return target })

	// hold the lock past the interval so the firing is in flight when we cancel
	target.Lock()
	time.Sleep(30 * time.Millisecond)
	h.Cancel()
	target.Unlock()

	time.Sleep(30 * time.Millisecond)
	target.Lock()
	defer target.Unlock()
	assert.Empty(t, target.fired)
}

func TestResolveNilStopsCascade(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	Start([]Step{{Interval: time.Millisecond, Kind: Alert}, {Interval: time.Millisecond, Kind: Timeout}}, func() Target {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	})
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}
