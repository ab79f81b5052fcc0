// Package kube wraps the Kubernetes client for brokerctl.
//
// It provides the small set of cluster operations the rest of the tool
// needs: creating and deleting workload manifests, executing commands
// inside pods, fetching pod logs, and resolving a label selector to a
// concrete pod that is ready to serve traffic.
//
// # Client
//
// A Client is built from the local kubeconfig (honouring the standard
// loading rules) with an optional context override. It carries both the
// typed clientset and the rest.Config, since port-forwarding and exec
// need the raw config for their SPDY transports.
//
// # Target resolution
//
// ResolveTarget waits for a pod matching a label selector to reach the
// Running phase with every container ready, polling at a fixed interval
// until a deadline. It never returns the name of a pod that is not yet
// ready; callers that need a specific instance should pass an explicit
// pod name instead of a selector. When several pods are ready at the
// same time the first one in listing order wins, which is a documented
// simplification rather than a platform guarantee.
//
// # Errors
//
// ErrNotFound and ErrNoReadyPod are returned as wrapped sentinels so
// callers can branch with errors.Is without parsing messages.
package kube
