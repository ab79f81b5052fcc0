package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"brokerctl/internal/tunnel"
)

var forwardFlags targetFlags

var forwardCmdDef = &cobra.Command{
	Use:   "forward <local:remote>",
	Short: "Open an auto-reconnecting port-forward to a broker pod",
	Long: `Opens a tunnel from 127.0.0.1:<local> to <remote> on the target pod
and keeps it open until Ctrl+C. When the connection drops, the tunnel
reconnects automatically (up to the retry limit) without changing the
local endpoint.

The target is either an explicit pod (--pod) or a label selector
(--selector); a selector waits until a matching pod is ready before the
tunnel opens.`,
	Example: `  brokerctl forward 19092:9092 --selector app=kafka
  brokerctl forward 12181:2181 --pod zookeeper-0 -n kafka`,
	Args: cobra.ExactArgs(1),
	RunE: runForward,
}

func newForwardCmd() *cobra.Command {
	forwardFlags.register(forwardCmdDef)
	return forwardCmdDef
}

func runForward(cmd *cobra.Command, args []string) error {
	cfg, err := loadEnvironment()
	if err != nil {
		return err
	}
	localPort, remotePort, err := parsePortSpec(args[0])
	if err != nil {
		return err
	}
	target, err := forwardFlags.target(cfg)
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

	registry := tunnel.NewRegistry(client, nil, tunnel.SessionConfig{})
	if err := registry.Open(ctx, target, localPort, remotePort); err != nil {
		return err
	}

	for _, status := range registry.Statuses() {
		fmt.Printf("Forwarding 127.0.0.1:%d -> %s/%s:%d. Press Ctrl+C to stop.\n",
			status.Key.LocalPort, status.Namespace, status.Key.PodName, status.RemotePort)
	}

	waitForShutdownSignal()
	registry.CloseAll()
	return nil
}
