package run

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watchgate/watchgate/config"
	"github.com/watchgate/watchgate/httpapi"
	"github.com/watchgate/watchgate/legacycrypt"
	"github.com/watchgate/watchgate/metrics"
	"github.com/watchgate/watchgate/server"
	"github.com/watchgate/watchgate/server/push"
	"github.com/watchgate/watchgate/server/registry"
	"github.com/watchgate/watchgate/storage"
)

var (
	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Start the watch backend",
		Args:  cobra.NoArgs,
		RunE:  runServer,
	}
)

func runServer(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "server-cmd").Logger()

	logger.Info().Str("config", configFile).Msg("loading configuration")
	cfg, err := config.LoadServerConfig(configFile)
	if err != nil {
		return err
	}

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	store := storage.NewMemoryStore()
	reg := registry.New(log.Logger)

	nc, err := push.Connect(&cfg.Nats, log.Logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	tcpServer, err := server.New(cfg, store, legacycrypt.Cipher{}, reg)
	if err != nil {
		return err
	}
	notifier := push.New(nc, &cfg.Nats, reg, store)
	api := httpapi.New(cfg, store, nc)

	errCh := make(chan error, 3)
	go func() {
		if err := tcpServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	go func() {
		if err := notifier.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	go func() {
		if err := api.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	case err := <-errCh:
		logger.Error().Err(err).Msg("service error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
