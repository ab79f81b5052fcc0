package kube

import (
	"context"
	"fmt"
	"time"

	"brokerctl/pkg/logging"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const resolveSubsystem = "Resolver"

// DefaultResolvePollInterval is how often ResolveTarget re-lists pods
// while waiting for one to become ready.
const DefaultResolvePollInterval = 2 * time.Second

// Mockable clock for deterministic tests.
var (
	timeNow = time.Now
	sleepFn = time.Sleep
)

// Target identifies an addressable pod, either by explicit name or by a
// label selector that must resolve to exactly one ready pod before use.
type Target struct {
	Name      string
	Selector  string
	Namespace string
}

// String renders the target for log lines.
func (t Target) String() string {
	if t.Name != "" {
		return fmt.Sprintf("%s/%s", t.Namespace, t.Name)
	}
	return fmt.Sprintf("%s/[%s]", t.Namespace, t.Selector)
}

// Resolve returns the concrete pod name for the target. Explicit names are
// returned as-is; selectors are resolved through ResolveTarget and gated on
// readiness. Selectors are resolved fresh on every call, since the same
// selector may map to a different pod after a restart.
func (c *Client) Resolve(ctx context.Context, t Target, readyTimeout time.Duration) (string, error) {
	if t.Name != "" {
		return t.Name, nil
	}
	if t.Selector == "" {
		return "", fmt.Errorf("target has neither name nor selector: %w", ErrNotFound)
	}
	return ResolveTarget(ctx, c.Clientset, t.Selector, t.Namespace, readyTimeout)
}

// ResolveTarget waits for a pod matching the label selector to be Running
// with all containers ready, polling until readyTimeout elapses. It returns
// the name of the first ready pod in listing order. A not-ready pod name is
// never returned: if nothing becomes ready in time the caller gets
// ErrNoReadyPod.
//
// When several pods are ready simultaneously the first in listing order is
// chosen. This is a simplification, not an ordering guarantee from the
// API server; callers needing a specific instance must pass an explicit
// pod name.
func ResolveTarget(ctx context.Context, clientset kubernetes.Interface, selector, namespace string, readyTimeout time.Duration) (string, error) {
	deadline := timeNow().Add(readyTimeout)

	for {
		pods, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
			LabelSelector: selector,
		})
		if err != nil {
			// Transient listing failures are treated as "not ready yet";
			// only the deadline terminates the wait.
			logging.Warn(resolveSubsystem, "Failed to list pods for selector %q in %q: %v", selector, namespace, err)
		} else {
			for i := range pods.Items {
				if PodIsReady(&pods.Items[i]) {
					return pods.Items[i].Name, nil
				}
			}
		}

		if ctx.Err() != nil {
			return "", fmt.Errorf("resolving selector %q in %q: %w", selector, namespace, ctx.Err())
		}
		if !timeNow().Before(deadline) {
			return "", fmt.Errorf("no pod matching %q in %q became ready within %s: %w",
				selector, namespace, readyTimeout, ErrNoReadyPod)
		}
		sleepFn(DefaultResolvePollInterval)
	}
}

// PodIsReady reports whether the pod is Running with every container ready.
// A Running pod with no reported container statuses counts as not ready,
// since it may still be initializing.
func PodIsReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	if len(pod.Status.ContainerStatuses) == 0 && len(pod.Spec.Containers) > 0 {
		return false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return true
}

// GetPodByLabel returns the name of the first Running pod matching the
// selector, without waiting. Used for operations that do not require
// application-level readiness, such as log retrieval.
func GetPodByLabel(ctx context.Context, clientset kubernetes.Interface, selector, namespace string) (string, error) {
	pods, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list pods for selector %q in %q: %w", selector, namespace, err)
	}
	for i := range pods.Items {
		if pods.Items[i].Status.Phase == corev1.PodRunning {
			return pods.Items[i].Name, nil
		}
	}
	return "", fmt.Errorf("no running pod matching %q in %q: %w", selector, namespace, ErrNotFound)
}
