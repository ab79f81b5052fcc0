package kube

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"brokerctl/pkg/logging"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	yamlutil "k8s.io/apimachinery/pkg/util/yaml"
)

const manifestSubsystem = "Manifests"

// deleteGracePeriodSeconds is the grace period applied to deployment
// deletion so workloads get a chance to stop cleanly.
const deleteGracePeriodSeconds = int64(5)

func decodeManifest(path string, into interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	decoder := yamlutil.NewYAMLOrJSONDecoder(bytes.NewReader(data), 4096)
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return nil
}

// CreateDeployment creates a Deployment from a YAML manifest file. An
// existing deployment with the same name is replaced (last writer wins).
func (c *Client) CreateDeployment(ctx context.Context, manifestPath, namespace string) (*appsv1.Deployment, error) {
	var dep appsv1.Deployment
	if err := decodeManifest(manifestPath, &dep); err != nil {
		return nil, err
	}

	created, err := c.Clientset.AppsV1().Deployments(namespace).Create(ctx, &dep, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		logging.Info(manifestSubsystem, "Deployment %s already exists, replacing", dep.Name)
		created, err = c.Clientset.AppsV1().Deployments(namespace).Update(ctx, &dep, metav1.UpdateOptions{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create deployment from %s: %w", manifestPath, err)
	}

	logging.Info(manifestSubsystem, "Deployment %s created in namespace %s", created.Name, namespace)
	return created, nil
}

// CreateService creates a Service from a YAML manifest file.
func (c *Client) CreateService(ctx context.Context, manifestPath, namespace string) (*corev1.Service, error) {
	var svc corev1.Service
	if err := decodeManifest(manifestPath, &svc); err != nil {
		return nil, err
	}

	created, err := c.Clientset.CoreV1().Services(namespace).Create(ctx, &svc, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create service from %s: %w", manifestPath, err)
	}

	logging.Info(manifestSubsystem, "Service %s created in namespace %s", created.Name, namespace)
	return created, nil
}

// DeleteDeployment deletes a deployment by name with foreground propagation
// so dependent pods are removed before the call is considered done.
func (c *Client) DeleteDeployment(ctx context.Context, name, namespace string) error {
	propagation := metav1.DeletePropagationForeground
	grace := deleteGracePeriodSeconds
	err := c.Clientset.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy:  &propagation,
		GracePeriodSeconds: &grace,
	})
	if k8serrors.IsNotFound(err) {
		return fmt.Errorf("deployment %s/%s: %w", namespace, name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete deployment %s/%s: %w", namespace, name, err)
	}
	logging.Info(manifestSubsystem, "Deployment %s deleted from namespace %s", name, namespace)
	return nil
}

// DeleteService deletes a service by name.
func (c *Client) DeleteService(ctx context.Context, name, namespace string) error {
	err := c.Clientset.CoreV1().Services(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if k8serrors.IsNotFound(err) {
		return fmt.Errorf("service %s/%s: %w", namespace, name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete service %s/%s: %w", namespace, name, err)
	}
	logging.Info(manifestSubsystem, "Service %s deleted from namespace %s", name, namespace)
	return nil
}

// ExposeNodePort creates a NodePort service selecting app=<name>, exposing
// the given port/targetPort pair on nodePort.
func (c *Client) ExposeNodePort(ctx context.Context, name, namespace string, port, targetPort int32, nodePort int32) (*corev1.Service, error) {
	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
		},
		Spec: corev1.ServiceSpec{
			Type: corev1.ServiceTypeNodePort,
			Ports: []corev1.ServicePort{
				{
					Port:       port,
					TargetPort: intstr.FromInt32(targetPort),
					NodePort:   nodePort,
				},
			},
			Selector: map[string]string{"app": name},
		},
	}

	created, err := c.Clientset.CoreV1().Services(namespace).Create(ctx, svc, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create NodePort service %s: %w", name, err)
	}

	logging.Info(manifestSubsystem, "NodePort service %s created on node port %d", name, nodePort)
	return created, nil
}
