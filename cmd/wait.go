package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"brokerctl/internal/kube"
)

var (
	waitFlags   targetFlags
	waitTimeout time.Duration
)

var waitCmdDef = &cobra.Command{
	Use:   "wait",
	Short: "Wait until the broker answers a readiness check",
	Long: `Resolves the target pod and polls it with the configured readiness
checks (or the built-in Kafka checks) until one succeeds. Exits zero on
readiness and non-zero when the timeout elapses, which makes it usable as
a gate in scripts and CI pipelines.`,
	Example: `  brokerctl wait --selector app=kafka --timeout 90s
  brokerctl wait --pod kafka-0 -n kafka`,
	Args: cobra.NoArgs,
	RunE: runWait,
}

func newWaitCmd() *cobra.Command {
	waitFlags.register(waitCmdDef)
	waitCmdDef.Flags().DurationVar(&waitTimeout, "timeout", 0, "Overall readiness budget (defaults to the configured timeout)")
	return waitCmdDef
}

func runWait(cmd *cobra.Command, args []string) error {
	cfg, err := loadEnvironment()
	if err != nil {
		return err
	}
	target, err := waitFlags.target(cfg)
	if err != nil {
		return err
	}
	timeout := waitTimeout
	if timeout <= 0 {
		timeout = cfg.Readiness.Timeout
	}

	client, err := newKubeClient(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	podName, err := client.Resolve(ctx, target, timeout)
	if err != nil {
		return err
	}

	probe := &kube.PodProbe{Client: client, PodName: podName, Namespace: target.Namespace}
	result, err := newProber(cfg).WaitReady(ctx, probe, checksFromConfig(cfg), timeout)
	if err != nil {
		return err
	}
	if !result.Ready {
		return fmt.Errorf("%s/%s did not become ready within %s", target.Namespace, podName, timeout)
	}

	fmt.Printf("%s/%s is ready (check %q, %s).\n",
		target.Namespace, podName, result.SatisfiedBy, result.Elapsed.Round(time.Millisecond))
	return nil
}
