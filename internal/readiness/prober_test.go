package readiness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTarget implements ProbeTarget with pluggable behavior.
type fakeTarget struct {
	mu    sync.Mutex
	run   func(command []string) (string, error)
	logs  func() (string, error)
	calls [][]string
}

func (f *fakeTarget) RunCommand(_ context.Context, command []string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.mu.Unlock()
	if f.run == nil {
		return "", errors.New("no command handler")
	}
	return f.run(command)
}

func (f *fakeTarget) ReadLogs(_ context.Context, _ int64) (string, error) {
	if f.logs == nil {
		return "", errors.New("no log handler")
	}
	return f.logs()
}

// fakeClock advances only when the prober sleeps.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestProber(clock *fakeClock) Prober {
	return Prober{
		PollInterval: 5 * time.Second,
		ProbeTimeout: 10 * time.Second,
		Now:          clock.Now,
		Sleep:        clock.Sleep,
	}
}

func TestWaitReadyFirstMatchWins(t *testing.T) {
	// B and C would both match; declared order must pick B.
	target := &fakeTarget{
		run: func(command []string) (string, error) {
			switch command[0] {
			case "probe-a":
				return "nope", nil
			default:
				return "broker ok", nil
			}
		},
	}
	checks := []Check{
		CommandCheck("A", []string{"probe-a"}, "broker ok"),
		CommandCheck("B", []string{"probe-b"}, "broker ok"),
		CommandCheck("C", []string{"probe-c"}, "broker ok"),
	}

	clock := &fakeClock{}
	result, err := newTestProber(clock).WaitReady(context.Background(), target, checks, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, result.Ready)
	assert.Equal(t, "B", result.SatisfiedBy)
	// C must not have been probed: the pass short-circuits at B.
	for _, call := range target.calls {
		assert.NotEqual(t, "probe-c", call[0])
	}
}

func TestWaitReadyOnlyLastStrategySucceeds(t *testing.T) {
	target := &fakeTarget{
		run: func(command []string) (string, error) {
			if command[0] == "probe-c" {
				return "ready", nil
			}
			return "", errors.New("connection refused")
		},
	}
	checks := []Check{
		CommandCheck("A", []string{"probe-a"}, ""),
		CommandCheck("B", []string{"probe-b"}, ""),
		CommandCheck("C", []string{"probe-c"}, "ready"),
	}

	clock := &fakeClock{}
	result, err := newTestProber(clock).WaitReady(context.Background(), target, checks, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, result.Ready)
	assert.Equal(t, "C", result.SatisfiedBy)
	// Succeeds in the first pass: no poll sleeps, so no fake time passed.
	assert.LessOrEqual(t, result.Elapsed, 10*time.Second)
}

func TestWaitReadyTimesOut(t *testing.T) {
	target := &fakeTarget{
		run: func([]string) (string, error) { return "not yet", nil },
	}
	checks := []Check{CommandCheck("A", []string{"probe"}, "ready")}

	clock := &fakeClock{}
	prober := newTestProber(clock)
	result, err := prober.WaitReady(context.Background(), target, checks, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, result.Ready)
	assert.Empty(t, result.SatisfiedBy)
	// Overshoot is bounded by one poll interval.
	assert.LessOrEqual(t, result.Elapsed, 10*time.Second+prober.PollInterval)
}

func TestWaitReadyProbeErrorsAreNotFatal(t *testing.T) {
	var attempts int
	target := &fakeTarget{
		run: func([]string) (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("exec failed")
			}
			return "started", nil
		},
	}
	checks := []Check{CommandCheck("flaky", []string{"probe"}, "started")}

	clock := &fakeClock{}
	result, err := newTestProber(clock).WaitReady(context.Background(), target, checks, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Ready)
	assert.Equal(t, "flaky", result.SatisfiedBy)
}

func TestWaitReadyBecomesReadyOnLaterPass(t *testing.T) {
	ready := false
	target := &fakeTarget{
		run: func([]string) (string, error) {
			if ready {
				return "started", nil
			}
			return "starting", nil
		},
	}
	checks := []Check{CommandCheck("A", []string{"probe"}, "started")}

	clock := &fakeClock{}
	prober := newTestProber(clock)
	// Flip the target to ready during the first poll sleep.
	prober.Sleep = func(d time.Duration) {
		ready = true
		clock.Sleep(d)
	}

	result, err := prober.WaitReady(context.Background(), target, checks, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, result.Ready)
	assert.Equal(t, 5*time.Second, result.Elapsed)
}

func TestWaitReadyLogPatternCheck(t *testing.T) {
	target := &fakeTarget{
		run: func([]string) (string, error) { return "", errors.New("no exec") },
		logs: func() (string, error) {
			return "INFO [KafkaServer id=1] started (kafka.server.KafkaServer)", nil
		},
	}
	checks := DefaultKafkaChecks("localhost:9092")

	clock := &fakeClock{}
	result, err := newTestProber(clock).WaitReady(context.Background(), target, checks, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, result.Ready)
	assert.Equal(t, "server-log", result.SatisfiedBy)
}

func TestWaitReadyArgumentValidation(t *testing.T) {
	target := &fakeTarget{}
	valid := []Check{CommandCheck("A", []string{"probe"}, "")}
	clock := &fakeClock{}
	prober := newTestProber(clock)

	_, err := prober.WaitReady(context.Background(), nil, valid, time.Second)
	assert.Error(t, err)

	_, err = prober.WaitReady(context.Background(), target, nil, time.Second)
	assert.Error(t, err)

	_, err = prober.WaitReady(context.Background(), target, valid, 0)
	assert.Error(t, err)

	_, err = prober.WaitReady(context.Background(), target, []Check{{Name: "empty"}}, time.Second)
	assert.Error(t, err)

	_, err = prober.WaitReady(context.Background(), target, []Check{{Command: []string{"x"}}}, time.Second)
	assert.Error(t, err)
}

func TestWaitReadyContextCancellation(t *testing.T) {
	target := &fakeTarget{
		run: func([]string) (string, error) { return "not yet", nil },
	}
	checks := []Check{CommandCheck("A", []string{"probe"}, "ready")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	clock := &fakeClock{}
	result, err := newTestProber(clock).WaitReady(ctx, target, checks, time.Minute)
	require.Error(t, err)
	assert.False(t, result.Ready)
}

func TestDefaultKafkaChecksOrdering(t *testing.T) {
	checks := DefaultKafkaChecks("localhost:9092")
	require.Len(t, checks, 3)
	assert.Equal(t, "broker-api", checks[0].Name)
	assert.Equal(t, "topic-list", checks[1].Name)
	assert.Equal(t, "server-log", checks[2].Name)
	assert.Contains(t, checks[0].Command, "--bootstrap-server")
	assert.Empty(t, checks[2].Command)
	assert.NotEmpty(t, checks[2].LogPattern)
}
