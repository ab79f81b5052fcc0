package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"brokerctl/internal/config"
	"brokerctl/internal/kube"
	"brokerctl/internal/readiness"
	"brokerctl/pkg/logging"
)

// loadEnvironment loads the layered configuration and initializes logging
// from it. Every subcommand starts here.
func loadEnvironment() (config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Init(logging.ParseLevel(cfg.GlobalSettings.LogLevel), os.Stderr)
	return cfg, nil
}

func newKubeClient(cfg config.Config) (*kube.Client, error) {
	client, err := kube.NewClient(cfg.GlobalSettings.KubeContext)
	if err != nil {
		return nil, fmt.Errorf("failed to build Kubernetes client: %w", err)
	}
	return client, nil
}

// targetFlags holds the pod-addressing flags shared by forward, wait,
// exec, and logs.
type targetFlags struct {
	pod       string
	selector  string
	namespace string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.pod, "pod", "", "Explicit pod name")
	cmd.Flags().StringVar(&f.selector, "selector", "", "Label selector resolving to a ready pod (e.g. app=kafka)")
	cmd.Flags().StringVarP(&f.namespace, "namespace", "n", "", "Namespace (defaults to the configured namespace)")
}

func (f *targetFlags) target(cfg config.Config) (kube.Target, error) {
	if f.pod == "" && f.selector == "" {
		return kube.Target{}, fmt.Errorf("either --pod or --selector is required")
	}
	if f.pod != "" && f.selector != "" {
		return kube.Target{}, fmt.Errorf("--pod and --selector are mutually exclusive")
	}
	namespace := f.namespace
	if namespace == "" {
		namespace = cfg.GlobalSettings.Namespace
	}
	return kube.Target{Name: f.pod, Selector: f.selector, Namespace: namespace}, nil
}

// checksFromConfig converts configured readiness checks into prober
// checks, falling back to the built-in Kafka strategies when none are
// configured.
func checksFromConfig(cfg config.Config) []readiness.Check {
	if len(cfg.Readiness.Checks) == 0 {
		return readiness.DefaultKafkaChecks(cfg.GlobalSettings.BootstrapServer)
	}
	checks := make([]readiness.Check, 0, len(cfg.Readiness.Checks))
	for _, def := range cfg.Readiness.Checks {
		if def.LogPattern != "" {
			checks = append(checks, readiness.LogCheck(def.Name, def.LogPattern))
		} else {
			checks = append(checks, readiness.CommandCheck(def.Name, def.Command, def.Expect))
		}
	}
	return checks
}

func newProber(cfg config.Config) readiness.Prober {
	return readiness.Prober{PollInterval: cfg.Readiness.PollInterval}
}

// parsePortSpec parses "local:remote" into its two ports.
func parsePortSpec(spec string) (int, int, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("port spec %q must be local:remote", spec)
	}
	local, err := strconv.Atoi(parts[0])
	if err != nil || local <= 0 {
		return 0, 0, fmt.Errorf("invalid local port in %q", spec)
	}
	remote, err := strconv.Atoi(parts[1])
	if err != nil || remote <= 0 {
		return 0, 0, fmt.Errorf("invalid remote port in %q", spec)
	}
	return local, remote, nil
}

// waitForShutdownSignal blocks until SIGINT or SIGTERM.
func waitForShutdownSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\nReceived interrupt signal. Shutting down...")
}
