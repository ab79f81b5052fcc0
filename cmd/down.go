package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"brokerctl/internal/config"
	"brokerctl/internal/container"
	"brokerctl/internal/kube"
)

var downCmdDef = &cobra.Command{
	Use:   "down",
	Short: "Tear down the broker environment",
	Long: `Deletes the configured Kubernetes manifests (in reverse declaration
order, so services go before the deployments backing them) and stops the
configured Docker containers. Objects that are already gone are skipped.`,
	Args: cobra.NoArgs,
	RunE: runDown,
}

func newDownCmd() *cobra.Command {
	return downCmdDef
}

func runDown(cmd *cobra.Command, args []string) error {
	cfg, err := loadEnvironment()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var firstErr error

	if len(cfg.Manifests) > 0 {
		client, err := newKubeClient(cfg)
		if err != nil {
			return err
		}
		fmt.Println("--- Manifests ---")
		if err := deleteManifests(ctx, client, cfg); err != nil {
			firstErr = err
		}
	}

	if len(cfg.Containers) > 0 {
		runtime, err := container.NewRuntime(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			fmt.Println("--- Containers ---")
			for _, def := range cfg.Containers {
				fmt.Printf("Stopping container %s...\n", def.Name)
				if err := runtime.StopByName(ctx, def.Name); err != nil {
					fmt.Printf("Failed to stop %s: %v\n", def.Name, err)
					if firstErr == nil {
						firstErr = err
					}
				}
			}
		}
	}

	if firstErr == nil {
		fmt.Println("Environment torn down.")
	}
	return firstErr
}

func deleteManifests(ctx context.Context, client *kube.Client, cfg config.Config) error {
	namespace := cfg.GlobalSettings.Namespace
	var firstErr error
	for i := len(cfg.Manifests) - 1; i >= 0; i-- {
		def := cfg.Manifests[i]
		var err error
		switch def.Kind {
		case config.ManifestKindDeployment:
			err = client.DeleteDeployment(ctx, def.Name, namespace)
		case config.ManifestKindService:
			err = client.DeleteService(ctx, def.Name, namespace)
		default:
			err = fmt.Errorf("manifest %s has unknown kind %q", def.Name, def.Kind)
		}
		if errors.Is(err, kube.ErrNotFound) {
			fmt.Printf("%s %s already gone, skipping.\n", def.Kind, def.Name)
			continue
		}
		if err != nil {
			fmt.Printf("Failed to delete %s %s: %v\n", def.Kind, def.Name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fmt.Printf("Deleted %s %s.\n", def.Kind, def.Name)
	}
	return firstErr
}
