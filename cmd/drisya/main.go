package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"drisya/internal/bootstrap"
	"drisya/internal/infra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "drisya",
		Short: "AI image enhancement for product photography",
		Long: `Drisya enhances product photos through a chain of image providers.
Each image is edited by the first provider that can handle it, falling back
to generation and then to the next provider.

Examples:
  drisya enhance ring.jpg --template ivory-silk-luxury-scene
  drisya batch ./photos --prompt "clean white background" --archive
  drisya enqueue ./photos --template charcoal-velvet-noir
  drisya templates --category jewelry
  drisya migrate`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newEnhanceCmd(),
		newBatchCmd(),
		newEnqueueCmd(),
		newTemplatesCmd(),
		newMigrateCmd(),
		newCredentialsCmd(),
	)
	return root
}

// loadPipeline reads the environment and builds the enhancement pipeline.
func loadPipeline(ctx context.Context) (*infra.Config, *bootstrap.Pipeline, *infra.Logger, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel).Output(os.Stderr)
	store, err := bootstrap.NewStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := bootstrap.New(cfg, store, &logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, p, &logger, nil
}
