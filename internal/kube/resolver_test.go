package kube

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func newPod(name string, phase corev1.PodPhase, ready bool) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "default",
			Labels:    map[string]string{"app": "kafka"},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "broker"}},
		},
		Status: corev1.PodStatus{
			Phase: phase,
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "broker", Ready: ready},
			},
		},
	}
}

func TestResolveTargetReturnsReadyPod(t *testing.T) {
	clientset := fake.NewSimpleClientset(newPod("kafka-0", corev1.PodRunning, true))

	name, err := ResolveTarget(context.Background(), clientset, "app=kafka", "default", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "kafka-0", name)
}

func TestResolveTargetSkipsNotReadyPods(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		newPod("kafka-0", corev1.PodPending, false),
		newPod("kafka-1", corev1.PodRunning, false),
		newPod("kafka-2", corev1.PodRunning, true),
	)

	name, err := ResolveTarget(context.Background(), clientset, "app=kafka", "default", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "kafka-2", name)
}

func TestResolveTargetTimesOutWithoutReadyPod(t *testing.T) {
	clientset := fake.NewSimpleClientset(newPod("kafka-0", corev1.PodRunning, false))

	// Zero timeout: the deadline has passed after the first listing pass.
	_, err := ResolveTarget(context.Background(), clientset, "app=kafka", "default", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoReadyPod))
}

func TestResolveTargetWaitsForPodToBecomeReady(t *testing.T) {
	pod := newPod("kafka-0", corev1.PodRunning, false)
	clientset := fake.NewSimpleClientset(pod)

	origSleep := sleepFn
	defer func() { sleepFn = origSleep }()
	sleepFn = func(time.Duration) {
		// Pod becomes ready between polling passes.
		pod.Status.ContainerStatuses[0].Ready = true
		_, err := clientset.CoreV1().Pods("default").UpdateStatus(context.Background(), pod, metav1.UpdateOptions{})
		require.NoError(t, err)
	}

	name, err := ResolveTarget(context.Background(), clientset, "app=kafka", "default", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "kafka-0", name)
}

func TestResolveTargetHonorsContextCancellation(t *testing.T) {
	clientset := fake.NewSimpleClientset(newPod("kafka-0", corev1.PodRunning, false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ResolveTarget(ctx, clientset, "app=kafka", "default", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClientResolveExplicitName(t *testing.T) {
	c := &Client{Clientset: fake.NewSimpleClientset()}

	name, err := c.Resolve(context.Background(), Target{Name: "kafka-0", Namespace: "default"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "kafka-0", name)
}

func TestClientResolveEmptyTarget(t *testing.T) {
	c := &Client{Clientset: fake.NewSimpleClientset()}

	_, err := c.Resolve(context.Background(), Target{Namespace: "default"}, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetPodByLabelPrefersRunning(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		newPod("kafka-pending", corev1.PodPending, false),
		newPod("kafka-running", corev1.PodRunning, false),
	)

	name, err := GetPodByLabel(context.Background(), clientset, "app=kafka", "default")
	require.NoError(t, err)
	assert.Equal(t, "kafka-running", name)
}

func TestGetPodByLabelNotFound(t *testing.T) {
	clientset := fake.NewSimpleClientset()

	_, err := GetPodByLabel(context.Background(), clientset, "app=kafka", "default")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPodIsReady(t *testing.T) {
	tests := []struct {
		name     string
		pod      *corev1.Pod
		expected bool
	}{
		{"running and ready", newPod("a", corev1.PodRunning, true), true},
		{"running not ready", newPod("b", corev1.PodRunning, false), false},
		{"pending", newPod("c", corev1.PodPending, true), false},
		{
			"running without reported statuses",
			&corev1.Pod{
				Spec:   corev1.PodSpec{Containers: []corev1.Container{{Name: "broker"}}},
				Status: corev1.PodStatus{Phase: corev1.PodRunning},
			},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PodIsReady(tt.pod))
		})
	}
}
