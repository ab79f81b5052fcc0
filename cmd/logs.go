package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"brokerctl/internal/kube"
)

var (
	logsFlags targetFlags
	logsTail  int64
)

var logsCmdDef = &cobra.Command{
	Use:   "logs",
	Short: "Print logs from a broker pod",
	Long: `Prints recent log output from the target pod. A selector picks the
first running pod without waiting for application readiness, since logs
are most useful precisely when the broker is not ready.`,
	Example: `  brokerctl logs --selector app=kafka --tail 100
  brokerctl logs --pod kafka-0 -n kafka`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func newLogsCmd() *cobra.Command {
	logsFlags.register(logsCmdDef)
	logsCmdDef.Flags().Int64Var(&logsTail, "tail", 200, "Number of trailing log lines (0 for everything)")
	return logsCmdDef
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadEnvironment()
	if err != nil {
		return err
	}
	target, err := logsFlags.target(cfg)
	if err != nil {
		return err
	}

	client, err := newKubeClient(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	podName := target.Name
	if podName == "" {
		// Deliberately not gated on readiness: a crash-looping pod still
		// has logs worth reading.
		podName, err = kube.GetPodByLabel(ctx, client.Clientset, target.Selector, target.Namespace)
		if err != nil {
			return err
		}
	}

	logs, err := client.PodLogs(ctx, podName, target.Namespace, logsTail)
	if err != nil {
		return err
	}
	fmt.Print(logs)
	return nil
}
