package tunnel

import (
	"context"
	"fmt"
	"sort"
	"time"

	"brokerctl/internal/kube"
	"brokerctl/pkg/logging"
)

// Key identifies a session in the registry. The pod name is the resolved
// concrete name, never a selector.
type Key struct {
	PodName   string
	LocalPort int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.PodName, k.LocalPort)
}

// Status is a point-in-time snapshot of one session, for status queries.
type Status struct {
	Key        Key
	Namespace  string
	RemotePort int
	State      State
	RetryCount int
	Err        error
}

// DefaultResolveTimeout bounds how long Open waits for a label selector
// to resolve to a ready pod.
const DefaultResolveTimeout = 60 * time.Second

// Registry tracks all active tunnel sessions. All map access runs under
// one mutex covering the full check-then-act sequence, so a concurrent
// open superseding a key and a close removing it cannot interleave.
type Registry struct {
	client         *kube.Client
	relay          RelayFunc
	sessionCfg     SessionConfig
	resolveTimeout time.Duration

	mu       chan struct{} // semaphore-of-one, held across Open's blocking work
	sessions map[Key]*Session
}

// NewRegistry builds a registry that forwards through the given client.
// relay may be nil, in which case the client-go pod relay is used.
func NewRegistry(client *kube.Client, relay RelayFunc, cfg SessionConfig) *Registry {
	if relay == nil {
		relay = NewPodRelay(client)
	}
	r := &Registry{
		client:         client,
		relay:          relay,
		sessionCfg:     cfg,
		resolveTimeout: DefaultResolveTimeout,
		mu:             make(chan struct{}, 1),
		sessions:       make(map[Key]*Session),
	}
	return r
}

func (r *Registry) lock()   { r.mu <- struct{}{} }
func (r *Registry) unlock() { <-r.mu }

// Open resolves the target, supersedes any session already registered for
// (resolved pod, localPort), and starts a new session. It returns once the
// new session's liveness check has passed. On failure no registry entry is
// left behind.
func (r *Registry) Open(ctx context.Context, target kube.Target, localPort, remotePort int) error {
	// Resolution happens before touching the registry: an unresolvable
	// target must fail without disturbing an existing session.
	podName, err := r.client.Resolve(ctx, target, r.resolveTimeout)
	if err != nil {
		return fmt.Errorf("cannot open tunnel for %s: %w", target, err)
	}

	r.lock()
	defer r.unlock()

	key := Key{PodName: podName, LocalPort: localPort}
	if existing, ok := r.sessions[key]; ok {
		logging.Info(subsystem, "Superseding existing tunnel %s", key)
		existing.Close()
		delete(r.sessions, key)
	}

	session := NewSession(podName, target.Namespace, localPort, remotePort, r.relay, r.sessionCfg)
	if err := session.Start(ctx); err != nil {
		return err
	}

	r.sessions[key] = session
	return nil
}

// Close stops and removes the session for (podName, localPort). It
// reports whether a session was present; closing an absent or already
// closed session is a no-op, never an error.
func (r *Registry) Close(podName string, localPort int) bool {
	key := Key{PodName: podName, LocalPort: localPort}

	r.lock()
	session, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.unlock()

	if !ok {
		return false
	}
	session.Close()
	logging.Info(subsystem, "Tunnel %s closed", key)
	return true
}

// CloseAll tears down every session. It iterates a snapshot of the keys,
// not the live map, so concurrent opens or closes during teardown cannot
// cause skipped or doubly-visited entries.
func (r *Registry) CloseAll() {
	r.lock()
	keys := make([]Key, 0, len(r.sessions))
	for key := range r.sessions {
		keys = append(keys, key)
	}
	r.unlock()

	for _, key := range keys {
		r.Close(key.PodName, key.LocalPort)
	}
}

// Statuses returns a snapshot of all sessions, sorted by key for stable
// output.
func (r *Registry) Statuses() []Status {
	r.lock()
	statuses := make([]Status, 0, len(r.sessions))
	for key, session := range r.sessions {
		statuses = append(statuses, Status{
			Key:        key,
			Namespace:  session.Namespace,
			RemotePort: session.RemotePort,
			State:      session.State(),
			RetryCount: session.RetryCount(),
			Err:        session.Err(),
		})
	}
	r.unlock()

	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Key.PodName != statuses[j].Key.PodName {
			return statuses[i].Key.PodName < statuses[j].Key.PodName
		}
		return statuses[i].Key.LocalPort < statuses[j].Key.LocalPort
	})
	return statuses
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.lock()
	defer r.unlock()
	return len(r.sessions)
}
