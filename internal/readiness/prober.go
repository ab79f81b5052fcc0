package readiness

import (
	"context"
	"fmt"
	"time"

	"brokerctl/pkg/logging"
)

const subsystem = "Readiness"

const (
	// DefaultPollInterval is the pause between full polling passes.
	DefaultPollInterval = 5 * time.Second
	// DefaultProbeTimeout bounds a single strategy evaluation so one slow
	// probe cannot silently eat the whole readiness budget.
	DefaultProbeTimeout = 10 * time.Second
	// DefaultLogTail is how many log lines a log-pattern probe inspects.
	DefaultLogTail = int64(400)
)

// Result is the outcome of one WaitReady call.
type Result struct {
	// Ready reports whether any strategy succeeded before the deadline.
	Ready bool
	// SatisfiedBy names the first strategy whose predicate matched, or is
	// empty when the wait timed out.
	SatisfiedBy string
	// Elapsed is the wall-clock time the wait consumed.
	Elapsed time.Duration
}

// Prober polls a target with an ordered set of checks. The zero value is
// usable; unset fields take the package defaults.
type Prober struct {
	PollInterval time.Duration
	ProbeTimeout time.Duration
	LogTail      int64

	// Injectable clock for deterministic tests.
	Now   func() time.Time
	Sleep func(time.Duration)
}

func (p *Prober) defaults() {
	if p.PollInterval <= 0 {
		p.PollInterval = DefaultPollInterval
	}
	if p.ProbeTimeout <= 0 {
		p.ProbeTimeout = DefaultProbeTimeout
	}
	if p.LogTail <= 0 {
		p.LogTail = DefaultLogTail
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
}

// WaitReady polls the target until one check succeeds or timeout elapses.
//
// Checks are evaluated in declared order on every pass, short-circuiting
// on the first success; prior passes do not reorder them. Each evaluation
// runs under its own probe timeout, independent of the outer budget.
// Probe errors are treated as "not yet ready" and logged, never surfaced.
//
// The returned error is non-nil only for invalid arguments or context
// cancellation; an exhausted timeout is reported as Result.Ready=false.
func (p Prober) WaitReady(ctx context.Context, target ProbeTarget, checks []Check, timeout time.Duration) (Result, error) {
	p.defaults()

	if target == nil {
		return Result{}, fmt.Errorf("readiness: target is nil")
	}
	if len(checks) == 0 {
		return Result{}, fmt.Errorf("readiness: no checks given")
	}
	if timeout <= 0 {
		return Result{}, fmt.Errorf("readiness: timeout must be positive, got %s", timeout)
	}
	for _, c := range checks {
		if err := c.validate(); err != nil {
			return Result{}, fmt.Errorf("readiness: %w", err)
		}
	}

	start := p.Now()
	deadline := start.Add(timeout)

	for {
		for _, check := range checks {
			probeCtx, cancel := context.WithTimeout(ctx, p.ProbeTimeout)
			ok, err := check.evaluate(probeCtx, target, p.LogTail)
			cancel()

			if err != nil {
				// Not fatal: a refused connection or exec failure just
				// means the target is not serving yet.
				logging.Debug(subsystem, "Check %q probe failed (treated as not ready): %v", check.Name, err)
				continue
			}
			if ok {
				elapsed := p.Now().Sub(start)
				logging.Info(subsystem, "Target ready, satisfied by check %q after %s", check.Name, elapsed.Round(time.Millisecond))
				return Result{Ready: true, SatisfiedBy: check.Name, Elapsed: elapsed}, nil
			}
		}

		if ctx.Err() != nil {
			return Result{Ready: false, Elapsed: p.Now().Sub(start)}, ctx.Err()
		}
		if !p.Now().Before(deadline) {
			elapsed := p.Now().Sub(start)
			logging.Warn(subsystem, "Target did not become ready within %s", timeout)
			return Result{Ready: false, Elapsed: elapsed}, nil
		}

		p.Sleep(p.PollInterval)
	}
}
