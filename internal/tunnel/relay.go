package tunnel

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"brokerctl/internal/kube"
	"brokerctl/pkg/logging"

	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

// relayLogWriter forwards the port-forwarder's own output into the
// logging system, one line at a time.
type relayLogWriter struct {
	label   string
	asError bool
}

func (w *relayLogWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSuffix(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		if w.asError {
			logging.Warn(subsystem, "[%s] %s", w.label, line)
		} else {
			logging.Debug(subsystem, "[%s] %s", w.label, line)
		}
	}
	return len(p), nil
}

// NewPodRelay returns a RelayFunc backed by client-go's SPDY
// port-forwarder against the pod's portforward subresource.
func NewPodRelay(client *kube.Client) RelayFunc {
	return func(podName, namespace string, localPort, remotePort int, stopChan <-chan struct{}, readyChan chan struct{}) error {
		reqURL := client.Clientset.CoreV1().RESTClient().Post().
			Resource("pods").
			Namespace(namespace).
			Name(podName).
			SubResource("portforward").
			URL()

		transport, upgrader, err := spdy.RoundTripperFor(client.RESTConfig)
		if err != nil {
			return fmt.Errorf("failed to create SPDY round tripper: %w", err)
		}
		dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, reqURL)

		label := fmt.Sprintf("%d:%s/%s:%d", localPort, namespace, podName, remotePort)
		ports := []string{fmt.Sprintf("%d:%d", localPort, remotePort)}

		fw, err := portforward.NewOnAddresses(
			dialer,
			[]string{"127.0.0.1"},
			ports,
			stopChan,
			readyChan,
			io.Discard,
			&relayLogWriter{label: label, asError: true},
		)
		if err != nil {
			return fmt.Errorf("failed to create port forwarder: %w", err)
		}

		return fw.ForwardPorts()
	}
}
