package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drblury/fixtureflow/internal/playground"
	"github.com/drblury/fixtureflow/internal/runtime"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
	_ "github.com/drblury/fixtureflow/transport/transports"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the dev server and coordinate renderers until interrupted",
		RunE:  runServe,
	}
	cmd.Flags().String("dev-server-url", "", "Dev server URL, e.g. http://localhost:5000")
	cmd.Flags().String("transport", "", "Dev server transport (websocket or memory)")
	cmd.Flags().Bool("api", false, "Serve the HTTP state API")
	cmd.Flags().Bool("metrics", false, "Serve Prometheus metrics")
	cmd.Flags().Bool("trace-frames", false, "Log every inbound dev server frame at trace level")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger(cmd)

	conf, err := loadFromFlags(cmd)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.Info("Starting fixtureflow", loggingpkg.LogFields{"config": conf.String()})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := playground.Options{Config: &conf, Logger: logger}
	if traceFrames, _ := cmd.Flags().GetBool("trace-frames"); traceFrames {
		opts.Dependencies.Hooks = runtime.LoggingHooks(logger)
	}
	return serve(ctx, opts)
}

// serve runs a playground until ctx is cancelled.
func serve(ctx context.Context, opts playground.Options) error {
	p, err := playground.New(opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			opts.Logger.Error("Failed to close playground", err, nil)
		}
	}()

	if err := p.Start(ctx); err != nil {
		return err
	}
	conf := p.Config()
	opts.Logger.Info("Playground running", loggingpkg.LogFields{
		"transport": conf.GetTransport(),
		"connected": p.Transport().Connected(),
	})

	<-ctx.Done()
	opts.Logger.Info("Shutting down", nil)
	return nil
}
