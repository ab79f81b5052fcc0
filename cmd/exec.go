package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	execFlags   targetFlags
	execTimeout time.Duration
)

var execCmdDef = &cobra.Command{
	Use:   "exec -- <command> [args...]",
	Short: "Run a command inside a broker pod",
	Long: `Runs a command inside the target pod and prints its combined output.
Useful for one-off broker administration, e.g. creating a topic or
checking consumer group lag.`,
	Example: `  brokerctl exec --selector app=kafka -- kafka-topics --bootstrap-server localhost:9092 --list
  brokerctl exec --pod kafka-0 -- kafka-configs --describe --all`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func newExecCmd() *cobra.Command {
	execFlags.register(execCmdDef)
	execCmdDef.Flags().DurationVar(&execTimeout, "timeout", 30*time.Second, "Exec round-trip timeout")
	return execCmdDef
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadEnvironment()
	if err != nil {
		return err
	}
	target, err := execFlags.target(cfg)
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

	podName, err := client.Resolve(ctx, target, cfg.Readiness.Timeout)
	if err != nil {
		return err
	}

	output, err := client.ExecCommand(ctx, podName, target.Namespace, args, execTimeout)
	if output != "" {
		fmt.Print(output)
	}
	return err
}
