package kube

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
)

// ExecCommand runs a command inside a pod without a TTY and returns the
// combined stdout and stderr. The timeout bounds the whole exec round trip.
func (c *Client) ExecCommand(ctx context.Context, podName, namespace string, command []string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := c.Clientset.CoreV1().RESTClient().Post().
		Namespace(namespace).
		Resource("pods").
		Name(podName).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Command: command,
			Stdin:   false,
			Stdout:  true,
			Stderr:  true,
			TTY:     false,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(c.RESTConfig, http.MethodPost, req.URL())
	if err != nil {
		return "", fmt.Errorf("failed to create exec executor for pod %s/%s: %w", namespace, podName, err)
	}

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		return stdout.String() + stderr.String(),
			fmt.Errorf("exec in pod %s/%s failed: %w", namespace, podName, err)
	}

	return stdout.String() + stderr.String(), nil
}

// PodLogs returns up to tail lines from the pod's log. tail <= 0 fetches
// the whole log.
func (c *Client) PodLogs(ctx context.Context, podName, namespace string, tail int64) (string, error) {
	opts := &corev1.PodLogOptions{}
	if tail > 0 {
		opts.TailLines = &tail
	}

	stream, err := c.Clientset.CoreV1().Pods(namespace).GetLogs(podName, opts).Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to stream logs for pod %s/%s: %w", namespace, podName, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("failed to read logs for pod %s/%s: %w", namespace, podName, err)
	}
	return string(data), nil
}

// PodProbe adapts a resolved pod to the probe capabilities the readiness
// package expects (command execution and log reading).
type PodProbe struct {
	Client    *Client
	PodName   string
	Namespace string
}

// RunCommand executes the command in the pod, bounded by the context.
func (p *PodProbe) RunCommand(ctx context.Context, command []string) (string, error) {
	return p.Client.ExecCommand(ctx, p.PodName, p.Namespace, command, 0)
}

// ReadLogs returns up to tail lines of the pod's log.
func (p *PodProbe) ReadLogs(ctx context.Context, tail int64) (string, error) {
	return p.Client.PodLogs(ctx, p.PodName, p.Namespace, tail)
}
