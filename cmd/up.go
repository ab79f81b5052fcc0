package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"brokerctl/internal/config"
	"brokerctl/internal/container"
	"brokerctl/internal/kube"
	"brokerctl/internal/tunnel"
)

const defaultContainerWaitTimeout = 30 * time.Second

var upCmdDef = &cobra.Command{
	Use:   "up",
	Short: "Bring up the broker environment and keep tunnels open",
	Long: `Brings up the configured broker environment in order:

1. Starts the configured Docker containers, optionally waiting for each
   one's startup log pattern.
2. Applies the configured Kubernetes manifests (deployments, services).
3. Waits until the broker answers one of the readiness checks.
4. Opens all configured port-forwards and keeps them alive, reconnecting
   automatically when a forward drops.

The command then blocks until Ctrl+C; on shutdown all tunnels are closed
and the started containers are stopped. Manifests stay applied until
'brokerctl down'.`,
	Args: cobra.NoArgs,
	RunE: runUp,
}

func newUpCmd() *cobra.Command {
	return upCmdDef
}

func runUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadEnvironment()
	if err != nil {
		return err
	}
	if len(cfg.Containers) == 0 && len(cfg.Manifests) == 0 && len(cfg.Forwards) == 0 {
		fmt.Println("Nothing configured: no containers, manifests, or forwards. Exiting.")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var runtime *container.Runtime
	if len(cfg.Containers) > 0 {
		runtime, err = container.NewRuntime(ctx)
		if err != nil {
			return err
		}
		fmt.Println("--- Containers ---")
		if err := startContainers(ctx, runtime, cfg.Containers); err != nil {
			runtime.CleanupAll(ctx)
			return err
		}
	}

	teardownContainers := func() {
		if runtime != nil {
			fmt.Println("Stopping containers...")
			runtime.CleanupAll(ctx)
		}
	}

	var client *kube.Client
	if len(cfg.Manifests) > 0 || len(cfg.Forwards) > 0 {
		client, err = newKubeClient(cfg)
		if err != nil {
			teardownContainers()
			return err
		}
	}

	if len(cfg.Manifests) > 0 {
		fmt.Println("--- Manifests ---")
		if err := applyManifests(ctx, client, cfg); err != nil {
			teardownContainers()
			return err
		}
	}

	if len(cfg.Forwards) > 0 {
		if err := waitForBroker(ctx, client, cfg, cfg.Forwards[0]); err != nil {
			teardownContainers()
			return err
		}

		fmt.Println("--- Port Forwarding ---")
		registry := tunnel.NewRegistry(client, nil, tunnel.SessionConfig{})
		if err := openForwards(ctx, registry, cfg); err != nil {
			registry.CloseAll()
			teardownContainers()
			return err
		}

		for _, status := range registry.Statuses() {
			fmt.Printf("[%s] 127.0.0.1:%d -> %s/%s:%d\n",
				status.State, status.Key.LocalPort, status.Namespace,
				status.Key.PodName, status.RemotePort)
		}
		fmt.Println("Environment is up. Press Ctrl+C to stop.")

		waitForShutdownSignal()

		fmt.Println("Closing tunnels...")
		registry.CloseAll()
	} else {
		fmt.Println("Environment is up (no forwards configured). Press Ctrl+C to stop.")
		waitForShutdownSignal()
	}

	teardownContainers()
	fmt.Println("Shutdown complete.")
	return nil
}

func startContainers(ctx context.Context, runtime *container.Runtime, defs []config.ContainerDefinition) error {
	for _, def := range defs {
		fmt.Printf("Starting container %s (%s)...\n", def.Name, def.Image)
		err := runtime.StartContainer(ctx, container.Spec{
			Name:        def.Name,
			Image:       def.Image,
			Env:         def.Env,
			Ports:       def.Ports,
			Command:     def.Command,
			NetworkMode: def.NetworkMode,
		})
		if err != nil {
			return err
		}

		if def.WaitForLog == "" {
			continue
		}
		timeout := def.WaitTimeout
		if timeout <= 0 {
			timeout = defaultContainerWaitTimeout
		}
		found, err := runtime.WaitForLog(ctx, def.Name, def.WaitForLog, timeout)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("container %s did not log %q within %s", def.Name, def.WaitForLog, timeout)
		}
	}
	return nil
}

func applyManifests(ctx context.Context, client *kube.Client, cfg config.Config) error {
	namespace := cfg.GlobalSettings.Namespace
	for _, def := range cfg.Manifests {
		switch def.Kind {
		case config.ManifestKindDeployment:
			if _, err := client.CreateDeployment(ctx, def.Path, namespace); err != nil {
				return err
			}
		case config.ManifestKindService:
			if _, err := client.CreateService(ctx, def.Path, namespace); err != nil {
				return err
			}
		default:
			return fmt.Errorf("manifest %s has unknown kind %q", def.Name, def.Kind)
		}
	}
	return nil
}

// waitForBroker gates tunnel opening on application-level readiness of the
// pod behind the first configured forward.
func waitForBroker(ctx context.Context, client *kube.Client, cfg config.Config, broker config.ForwardDefinition) error {
	target := forwardTarget(broker, cfg.GlobalSettings.Namespace)
	podName, err := client.Resolve(ctx, target, cfg.Readiness.Timeout)
	if err != nil {
		return fmt.Errorf("broker pod not resolvable: %w", err)
	}

	fmt.Printf("Waiting for broker %s/%s to become ready...\n", target.Namespace, podName)
	probe := &kube.PodProbe{Client: client, PodName: podName, Namespace: target.Namespace}
	result, err := newProber(cfg).WaitReady(ctx, probe, checksFromConfig(cfg), cfg.Readiness.Timeout)
	if err != nil {
		return err
	}
	if !result.Ready {
		return fmt.Errorf("broker did not become ready within %s", cfg.Readiness.Timeout)
	}
	fmt.Printf("Broker ready (check %q, %s).\n", result.SatisfiedBy, result.Elapsed.Round(time.Millisecond))
	return nil
}

func forwardTarget(def config.ForwardDefinition, defaultNamespace string) kube.Target {
	namespace := def.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	return kube.Target{Name: def.PodName, Selector: def.Selector, Namespace: namespace}
}

func openForwards(ctx context.Context, registry *tunnel.Registry, cfg config.Config) error {
	for _, def := range cfg.Forwards {
		target := forwardTarget(def, cfg.GlobalSettings.Namespace)
		fmt.Printf("Opening forward %s: 127.0.0.1:%d -> %s:%d...\n", def.Name, def.LocalPort, target, def.RemotePort)
		if err := registry.Open(ctx, target, def.LocalPort, def.RemotePort); err != nil {
			return fmt.Errorf("forward %s: %w", def.Name, err)
		}
	}
	return nil
}
