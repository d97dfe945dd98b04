package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockChecker implements Checker for testing
type MockChecker struct {
	HealthFunc func(ctx context.Context) error
	calls      int32
}

func (m *MockChecker) Health(ctx context.Context) error {
	atomic.AddInt32(&m.calls, 1)
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

func (m *MockChecker) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

var errDown = errors.New("connection refused")

func fastDelay(int) time.Duration { return time.Millisecond }

// failUntil returns a checker failing the first n probes.
func failUntil(n int) *MockChecker {
	var count int32
	return &MockChecker{HealthFunc: func(context.Context) error {
		if int(atomic.AddInt32(&count, 1)) <= n {
			return errDown
		}
		return nil
	}}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for poller events")
			return out
		}
	}
}

func TestDelay_Schedule(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2000 * time.Millisecond},
		{1, 2500 * time.Millisecond},
		{2, 3000 * time.Millisecond},
		{5, 4500 * time.Millisecond},
		{6, 5000 * time.Millisecond},
		{7, 5000 * time.Millisecond},
		{60, 5000 * time.Millisecond},
		{1000, 5000 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Delay(tt.attempt), "Delay(%d)", tt.attempt)
	}
}

func TestDelay_NonDecreasingAndBounded(t *testing.T) {
	prev := Delay(0)
	for attempt := 1; attempt <= 500; attempt++ {
		d := Delay(attempt)
		want := time.Duration(2000+attempt*500) * time.Millisecond
		if want > 5*time.Second {
			want = 5 * time.Second
		}
		require.Equal(t, want, d, "Delay(%d)", attempt)
		require.GreaterOrEqual(t, d, prev, "Delay must not decrease at attempt %d", attempt)
		prev = d
	}
}

func TestPoller_ReadyImmediately(t *testing.T) {
	checker := &MockChecker{}
	p := NewPoller(checker, Config{Delay: fastDelay})

	events, err := p.Start(context.Background())
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 1)
	assert.Equal(t, EventReady, got[0].Kind)
	assert.Equal(t, 1, checker.Calls())
}

func TestPoller_WaitingThenReadyThenStops(t *testing.T) {
	checker := failUntil(3)
	p := NewPoller(checker, Config{Delay: fastDelay})

	events, err := p.Start(context.Background())
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 4)
	for i := 0; i < 3; i++ {
		assert.Equal(t, EventWaiting, got[i].Kind)
		assert.Equal(t, i+1, got[i].Attempt)
		assert.ErrorIs(t, got[i].Err, errDown)
	}
	assert.Equal(t, EventReady, got[3].Kind)

	// Polling stops permanently after the first ready.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 4, checker.Calls())
}

func TestPoller_DegradedOnceThenKeepsPolling(t *testing.T) {
	checker := failUntil(7)
	p := NewPoller(checker, Config{Ceiling: 3, Delay: fastDelay})

	events, err := p.Start(context.Background())
	require.NoError(t, err)

	got := collect(t, events)

	var degraded []Event
	for _, ev := range got {
		if ev.Kind == EventDegraded {
			degraded = append(degraded, ev)
		}
	}
	require.Len(t, degraded, 1, "degraded is reported once")
	assert.Equal(t, 3, degraded[0].Attempt)
	assert.Contains(t, degraded[0].Message, "continuing to retry")

	assert.Equal(t, EventReady, got[len(got)-1].Kind, "polling continues past the ceiling")
	assert.Equal(t, 8, checker.Calls())
}

func TestPoller_UsesBackoffSchedule(t *testing.T) {
	var mu sync.Mutex
	var asked []int
	delay := func(attempt int) time.Duration {
		mu.Lock()
		asked = append(asked, attempt)
		mu.Unlock()
		return time.Millisecond
	}

	p := NewPoller(failUntil(3), Config{Delay: delay})
	events, err := p.Start(context.Background())
	require.NoError(t, err)
	collect(t, events)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, asked)
}

func TestPoller_StopCancelsPendingRetry(t *testing.T) {
	checker := &MockChecker{HealthFunc: func(context.Context) error { return errDown }}
	p := NewPoller(checker, Config{Delay: func(int) time.Duration { return time.Hour }})

	events, err := p.Start(context.Background())
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, EventWaiting, first.Kind)

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a retry was pending")
	}

	_, open := <-events
	assert.False(t, open, "event stream must be closed after Stop")
	assert.Equal(t, 1, checker.Calls(), "no probe may fire after Stop")
}

func TestPoller_StopWithUnreadEvent(t *testing.T) {
	p := NewPoller(&MockChecker{HealthFunc: func(context.Context) error { return errDown }}, Config{Delay: fastDelay})

	events, err := p.Start(context.Background())
	require.NoError(t, err)

	// Nobody reads; Stop must still return and nothing is delivered afterwards.
	p.Stop()
	for ev := range events {
		t.Fatalf("unexpected event after Stop: %+v", ev)
	}
}

func TestPoller_StopBeforeStartAndTwice(t *testing.T) {
	p := NewPoller(&MockChecker{}, Config{})
	p.Stop()

	_, err := p.Start(context.Background())
	require.NoError(t, err)
	p.Stop()
	p.Stop()
}

func TestPoller_StartTwiceFails(t *testing.T) {
	p := NewPoller(&MockChecker{}, Config{Delay: fastDelay})
	_, err := p.Start(context.Background())
	require.NoError(t, err)
	defer p.Stop()

	_, err = p.Start(context.Background())
	assert.Error(t, err)
}

func TestPoller_ProbeTimeout(t *testing.T) {
	checker := &MockChecker{HealthFunc: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	p := NewPoller(checker, Config{RequestTimeout: 5 * time.Millisecond, Delay: fastDelay})

	events, err := p.Start(context.Background())
	require.NoError(t, err)
	defer p.Stop()

	ev := <-events
	assert.Equal(t, EventWaiting, ev.Kind)
	assert.ErrorIs(t, ev.Err, context.DeadlineExceeded)
}

func TestWait_ReturnsOnReady(t *testing.T) {
	p := NewPoller(failUntil(2), Config{Delay: fastDelay})

	var seen []EventKind
	err := Wait(context.Background(), p, func(ev Event) { seen = append(seen, ev.Kind) })
	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventWaiting, EventWaiting, EventReady}, seen)
}

func TestWait_ContextCancelled(t *testing.T) {
	p := NewPoller(&MockChecker{HealthFunc: func(context.Context) error { return errDown }}, Config{Delay: fastDelay})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Wait(ctx, p, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
