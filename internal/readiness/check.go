package readiness

import (
	"context"
	"fmt"
	"strings"
)

// ProbeTarget is the capability surface a readiness check probes through.
// Pods and containers both satisfy it.
type ProbeTarget interface {
	// RunCommand executes a command inside the target and returns its
	// combined output.
	RunCommand(ctx context.Context, command []string) (string, error)
	// ReadLogs returns up to tail lines of the target's recent log output.
	ReadLogs(ctx context.Context, tail int64) (string, error)
}

// Check is one named readiness strategy. Exactly one of Command or
// LogPattern must be set. A Check is immutable once defined; its position
// in the slice passed to WaitReady is its priority.
type Check struct {
	// Name identifies the strategy in results and logs.
	Name string
	// Command is executed inside the target when set.
	Command []string
	// Expect is a substring the command output must contain. Empty means
	// any successful execution satisfies the check.
	Expect string
	// LogPattern is a substring searched for in the target's log when set.
	LogPattern string
}

// CommandCheck builds an exec-based check: the command must succeed and
// its output must contain expect (if non-empty).
func CommandCheck(name string, command []string, expect string) Check {
	return Check{Name: name, Command: command, Expect: expect}
}

// LogCheck builds a log-grep check matching pattern as a substring.
func LogCheck(name, pattern string) Check {
	return Check{Name: name, LogPattern: pattern}
}

func (c Check) validate() error {
	if c.Name == "" {
		return fmt.Errorf("readiness check has no name")
	}
	if len(c.Command) == 0 && c.LogPattern == "" {
		return fmt.Errorf("readiness check %q has neither command nor log pattern", c.Name)
	}
	return nil
}

// evaluate runs the probe once. Probe errors are returned to the caller
// for logging but are not fatal to the polling loop.
func (c Check) evaluate(ctx context.Context, target ProbeTarget, logTail int64) (bool, error) {
	if len(c.Command) > 0 {
		out, err := target.RunCommand(ctx, c.Command)
		if err != nil {
			return false, err
		}
		if c.Expect == "" {
			return true, nil
		}
		return strings.Contains(out, c.Expect), nil
	}

	out, err := target.ReadLogs(ctx, logTail)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, c.LogPattern), nil
}

// DefaultKafkaChecks returns the standard strategy ordering for a Kafka
// broker: a direct protocol probe first, then a topic listing, then the
// startup marker in the server log as a last resort.
func DefaultKafkaChecks(bootstrapServer string) []Check {
	return []Check{
		CommandCheck("broker-api",
			[]string{"kafka-broker-api-versions", "--bootstrap-server", bootstrapServer},
			"id:"),
		CommandCheck("topic-list",
			[]string{"kafka-topics", "--bootstrap-server", bootstrapServer, "--list"},
			""),
		LogCheck("server-log", "started (kafka.server.KafkaServer)"),
	}
}
