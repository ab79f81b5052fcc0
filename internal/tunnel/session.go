package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"brokerctl/pkg/logging"
)

const subsystem = "Tunnel"

var (
	// ErrPortInUse indicates the requested local port is already bound by
	// another process. Not retried; the caller owns port allocation.
	ErrPortInUse = errors.New("local port already in use")
	// ErrRetryExhausted indicates the relay kept failing until the
	// reconnect budget ran out.
	ErrRetryExhausted = errors.New("tunnel reconnect attempts exhausted")
)

// State is the lifecycle state of a tunnel session.
type State string

const (
	StateInit         State = "Init"
	StateBinding      State = "Binding"
	StateRelaying     State = "Relaying"
	StateReconnecting State = "Reconnecting"
	StateClosed       State = "Closed"
	StateFailed       State = "Failed"
)

const (
	// DefaultRetryLimit bounds reconnect attempts after a relay failure.
	DefaultRetryLimit = 3
	// DefaultRetryDelay is the pause between reconnect attempts.
	DefaultRetryDelay = time.Second
	// DefaultSettleTimeout bounds how long Start waits for the relay to
	// accept on the local port before declaring the open failed.
	DefaultSettleTimeout = 2 * time.Second

	probeDialTimeout = 500 * time.Millisecond
)

// Mockable for tests; the real thing dials TCP on loopback.
var dialLocal = func(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

// RelayFunc runs one forwarding attempt from 127.0.0.1:localPort to the
// pod's remotePort. It must close readyChan once the local listener is
// accepting, return when stopChan is closed, and return an error when the
// relay breaks. client-go's port-forwarder has exactly this shape.
type RelayFunc func(podName, namespace string, localPort, remotePort int, stopChan <-chan struct{}, readyChan chan struct{}) error

// Session is one live local-to-pod forwarding relationship. It is created
// by the Registry and mutated only by its own background goroutine and by
// Close.
type Session struct {
	PodName    string
	Namespace  string
	LocalPort  int
	RemotePort int

	relay         RelayFunc
	retryLimit    int
	retryDelay    time.Duration
	settleTimeout time.Duration

	mu         sync.Mutex
	state      State
	retryCount int
	err        error
	closing    bool
	attemptSeq int
	readySent  bool

	stopChan chan struct{}
	done     chan struct{}
}

// SessionConfig carries the tuning knobs for a session. Zero fields take
// the package defaults.
type SessionConfig struct {
	RetryLimit    int
	RetryDelay    time.Duration
	SettleTimeout time.Duration
}

// NewSession builds a session in StateInit. No network resources are held
// until Start.
func NewSession(podName, namespace string, localPort, remotePort int, relay RelayFunc, cfg SessionConfig) *Session {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = DefaultRetryLimit
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = DefaultSettleTimeout
	}
	return &Session{
		PodName:       podName,
		Namespace:     namespace,
		LocalPort:     localPort,
		RemotePort:    remotePort,
		relay:         relay,
		retryLimit:    cfg.RetryLimit,
		retryDelay:    cfg.RetryDelay,
		settleTimeout: cfg.SettleTimeout,
		state:         StateInit,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RetryCount returns how many reconnect attempts the session has made.
func (s *Session) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

// Err returns the terminal error recorded on the session, if any. A
// session that exhausted its reconnect budget reports ErrRetryExhausted
// here; nothing is thrown asynchronously.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the background relay goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) localAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.LocalPort)
}

// Start claims the local port and launches the background relay. It
// returns once a liveness probe confirms the relay accepts connections on
// the local port, or with an error when binding fails, the port is taken,
// or the relay never comes up within the settle window. The relay and any
// reconnects continue asynchronously after a successful return.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateInit {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("tunnel session for %s already started (state %s)", s.localAddr(), st)
	}
	s.state = StateBinding
	s.mu.Unlock()

	// A connect probe before binding: anything answering on the port means
	// it belongs to someone else. The relay's own bind failure is also
	// surfaced, this probe just gives a cleaner error.
	if conn, err := dialLocal(s.localAddr(), probeDialTimeout); err == nil {
		conn.Close()
		s.mu.Lock()
		s.state = StateFailed
		s.err = fmt.Errorf("port %d: %w", s.LocalPort, ErrPortInUse)
		err := s.err
		s.mu.Unlock()
		close(s.done)
		return err
	}

	firstReady := make(chan struct{})
	go s.run(firstReady)

	select {
	case <-firstReady:
	case <-s.done:
		if err := s.Err(); err != nil {
			return fmt.Errorf("tunnel to %s/%s failed to start: %w", s.Namespace, s.PodName, err)
		}
		return fmt.Errorf("tunnel to %s/%s stopped before becoming ready", s.Namespace, s.PodName)
	case <-time.After(s.settleTimeout):
		s.Close()
		return fmt.Errorf("tunnel to %s/%s did not become ready within %s", s.Namespace, s.PodName, s.settleTimeout)
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	}

	// Liveness: the relay reported ready, verify the port really accepts.
	conn, err := dialLocal(s.localAddr(), s.settleTimeout)
	if err != nil {
		s.Close()
		return fmt.Errorf("tunnel to %s/%s liveness check on %s failed: %w", s.Namespace, s.PodName, s.localAddr(), err)
	}
	conn.Close()

	logging.Info(subsystem, "Forwarding %s -> %s/%s:%d", s.localAddr(), s.Namespace, s.PodName, s.RemotePort)
	return nil
}

// markRelaying records that the relay for the given attempt is accepting.
// Guarded by the attempt sequence so a late ready signal from a finished
// attempt cannot override a Reconnecting or Failed transition.
func (s *Session) markRelaying(seq int, firstReady chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attemptSeq != seq || s.closing {
		return
	}
	s.state = StateRelaying
	if !s.readySent {
		s.readySent = true
		close(firstReady)
	}
}

// run drives the relay and its reconnects. It owns all state transitions
// after Binding and exits on stop, on terminal failure, or when the relay
// finishes cleanly.
func (s *Session) run(firstReady chan struct{}) {
	defer close(s.done)

	for {
		s.mu.Lock()
		s.attemptSeq++
		seq := s.attemptSeq
		s.mu.Unlock()

		attemptReady := make(chan struct{})
		attemptDone := make(chan struct{})

		go func() {
			select {
			case <-attemptReady:
				s.markRelaying(seq, firstReady)
			case <-attemptDone:
			}
		}()

		err := s.relay(s.PodName, s.Namespace, s.LocalPort, s.RemotePort, s.stopChan, attemptReady)

		// Invalidate the attempt before any state transition below.
		s.mu.Lock()
		s.attemptSeq++
		s.mu.Unlock()
		close(attemptDone)

		if s.stopRequested() {
			s.setState(StateClosed)
			return
		}
		if err == nil {
			// Relay ended without error and without a stop request: the
			// remote side closed cleanly. Treat like a drop and reconnect.
			err = fmt.Errorf("relay to %s/%s ended unexpectedly", s.Namespace, s.PodName)
		}

		s.mu.Lock()
		if s.retryCount >= s.retryLimit {
			s.state = StateFailed
			s.err = fmt.Errorf("tunnel %s -> %s/%s:%d: %w",
				s.localAddr(), s.Namespace, s.PodName, s.RemotePort, ErrRetryExhausted)
			s.mu.Unlock()
			logging.Error(subsystem, err, "Giving up on tunnel %s after %d reconnect attempts", s.localAddr(), s.retryLimit)
			return
		}
		s.retryCount++
		attempt := s.retryCount
		s.state = StateReconnecting
		s.mu.Unlock()

		logging.Warn(subsystem, "Relay for %s dropped (%v), reconnect attempt %d/%d", s.localAddr(), err, attempt, s.retryLimit)

		select {
		case <-s.stopChan:
			s.setState(StateClosed)
			return
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *Session) stopRequested() bool {
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}

// Close stops the session from any state: it signals the background
// goroutine, which releases the local port, and transitions to Closed.
// Closing twice is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	alreadyDone := s.state == StateFailed || s.state == StateClosed || s.state == StateInit
	s.state = StateClosed
	s.mu.Unlock()

	close(s.stopChan)
	if alreadyDone {
		// No goroutine is running (never started, or already exited);
		// nothing will observe the stop signal.
		return
	}
	// Wait briefly for the relay to let go of the port.
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		logging.Warn(subsystem, "Relay for %s did not stop within 5s", s.localAddr())
	}
}
