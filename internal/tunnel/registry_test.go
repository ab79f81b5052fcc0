package tunnel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"brokerctl/internal/kube"
)

func readyPod(name, namespace string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Spec:       corev1.PodSpec{Containers: []corev1.Container{{Name: "broker"}}},
		Status: corev1.PodStatus{
			Phase:             corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{{Name: "broker", Ready: true}},
		},
	}
}

func newTestRegistry(relay RelayFunc) *Registry {
	client := &kube.Client{Clientset: fake.NewSimpleClientset()}
	return NewRegistry(client, relay, fastConfig())
}

func TestRegistryOpenByName(t *testing.T) {
	netw := newTestNetwork(t)
	r := newTestRegistry(netw.steadyRelay(nil))
	defer r.CloseAll()

	target := kube.Target{Name: "kafka-0", Namespace: "kafka"}
	require.NoError(t, r.Open(context.Background(), target, 19200, 9092))

	require.Equal(t, 1, r.Len())
	statuses := r.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "kafka-0", statuses[0].Key.PodName)
	assert.Equal(t, 19200, statuses[0].Key.LocalPort)
	assert.Equal(t, 9092, statuses[0].RemotePort)
	assert.Equal(t, "kafka", statuses[0].Namespace)
	assert.Equal(t, StateRelaying, statuses[0].State)
}

func TestRegistryOpenBySelector(t *testing.T) {
	netw := newTestNetwork(t)
	pod := readyPod("kafka-7f9b", "kafka", map[string]string{"app": "kafka"})
	client := &kube.Client{Clientset: fake.NewSimpleClientset(pod)}
	r := NewRegistry(client, netw.steadyRelay(nil), fastConfig())
	defer r.CloseAll()

	target := kube.Target{Selector: "app=kafka", Namespace: "kafka"}
	require.NoError(t, r.Open(context.Background(), target, 19201, 9092))

	statuses := r.Statuses()
	require.Len(t, statuses, 1)
	// The key carries the resolved concrete pod name, not the selector.
	assert.Equal(t, "kafka-7f9b", statuses[0].Key.PodName)
}

func TestRegistryOpenUnresolvableSelector(t *testing.T) {
	netw := newTestNetwork(t)
	client := &kube.Client{Clientset: fake.NewSimpleClientset()}
	r := NewRegistry(client, netw.steadyRelay(nil), fastConfig())
	r.resolveTimeout = 0

	target := kube.Target{Selector: "app=missing", Namespace: "kafka"}
	err := r.Open(context.Background(), target, 19202, 9092)
	require.Error(t, err)
	assert.ErrorIs(t, err, kube.ErrNoReadyPod)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryOpenSupersedesExistingKey(t *testing.T) {
	netw := newTestNetwork(t)
	r := newTestRegistry(netw.steadyRelay(nil))
	defer r.CloseAll()

	target := kube.Target{Name: "kafka-0", Namespace: "kafka"}
	require.NoError(t, r.Open(context.Background(), target, 19203, 9092))

	r.lock()
	first := r.sessions[Key{PodName: "kafka-0", LocalPort: 19203}]
	r.unlock()
	require.NotNil(t, first)

	require.NoError(t, r.Open(context.Background(), target, 19203, 9092))

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, StateClosed, first.State())

	r.lock()
	second := r.sessions[Key{PodName: "kafka-0", LocalPort: 19203}]
	r.unlock()
	assert.NotSame(t, first, second)
	assert.Equal(t, StateRelaying, second.State())
}

func TestRegistryOpenFailureLeavesNoEntry(t *testing.T) {
	netw := newTestNetwork(t)
	netw.set(addrFor(19204), true)
	r := newTestRegistry(netw.steadyRelay(nil))

	target := kube.Target{Name: "kafka-0", Namespace: "kafka"}
	err := r.Open(context.Background(), target, 19204, 9092)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPortInUse)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryCloseIsIdempotent(t *testing.T) {
	netw := newTestNetwork(t)
	r := newTestRegistry(netw.steadyRelay(nil))

	target := kube.Target{Name: "kafka-0", Namespace: "kafka"}
	require.NoError(t, r.Open(context.Background(), target, 19205, 9092))

	assert.True(t, r.Close("kafka-0", 19205))
	assert.False(t, r.Close("kafka-0", 19205))
	assert.False(t, r.Close("never-opened", 19205))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryCloseAll(t *testing.T) {
	netw := newTestNetwork(t)
	r := newTestRegistry(netw.steadyRelay(nil))

	require.NoError(t, r.Open(context.Background(), kube.Target{Name: "kafka-0", Namespace: "kafka"}, 19206, 9092))
	require.NoError(t, r.Open(context.Background(), kube.Target{Name: "kafka-1", Namespace: "kafka"}, 19207, 9092))
	require.Equal(t, 2, r.Len())

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	// Closing everything again is harmless.
	r.CloseAll()
}

func TestRegistryStatusesSorted(t *testing.T) {
	netw := newTestNetwork(t)
	r := newTestRegistry(netw.steadyRelay(nil))
	defer r.CloseAll()

	require.NoError(t, r.Open(context.Background(), kube.Target{Name: "zk-0", Namespace: "kafka"}, 19208, 2181))
	require.NoError(t, r.Open(context.Background(), kube.Target{Name: "kafka-0", Namespace: "kafka"}, 19210, 9092))
	require.NoError(t, r.Open(context.Background(), kube.Target{Name: "kafka-0", Namespace: "kafka"}, 19209, 9093))

	statuses := r.Statuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, Key{PodName: "kafka-0", LocalPort: 19209}, statuses[0].Key)
	assert.Equal(t, Key{PodName: "kafka-0", LocalPort: 19210}, statuses[1].Key)
	assert.Equal(t, Key{PodName: "zk-0", LocalPort: 19208}, statuses[2].Key)
}
