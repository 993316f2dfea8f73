// Package serve implements the HTTP server subcommand.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gymcheck/gymcheck-go/internal/api"
	"github.com/gymcheck/gymcheck-go/internal/classifier"
	"github.com/gymcheck/gymcheck-go/internal/conf"
	"github.com/gymcheck/gymcheck-go/internal/datastore"
	"github.com/gymcheck/gymcheck-go/internal/httpclient"
	"github.com/gymcheck/gymcheck-go/internal/logging"
	"github.com/gymcheck/gymcheck-go/internal/mealscan"
	"github.com/gymcheck/gymcheck-go/internal/observability"
)

// Command creates the serve subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the verification HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}

	cmd.Flags().StringVar(&settings.Server.Port, "port", viper.GetString("server.port"), "HTTP listen port")
	cmd.Flags().StringVar(&settings.Remote.Endpoint, "remote-endpoint", viper.GetString("remote.endpoint"), "Remote classifier chat-completion endpoint")
	_ = viper.BindPFlags(cmd.Flags())

	return cmd
}

func run(settings *conf.Settings) error {
	log := logging.ForService("serve")

	if settings.Main.Log.Enabled && settings.Main.Log.Path != "" {
		fileLog, closeLog, err := logging.NewFileLogger(
			settings.Main.Log.Path, "serve", slog.LevelInfo, logging.DefaultFileLoggerConfig())
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = closeLog() }()
		log = fileLog
	}

	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	client := httpclient.New(nil)
	defer client.Close()

	scene := classifier.NewSceneClassifier(settings)
	legacy := classifier.NewLegacyClassifier(settings)
	remote := classifier.NewRemoteClassifier(settings, client, metrics)

	checkin := classifier.NewCascade(metrics, scene, legacy, remote)
	profile := classifier.NewCascade(metrics, scene, legacy)

	scanner := mealscan.NewScanner(settings, client, mealscan.NoopLookup{})

	tiers := func() api.TierStatus {
		return api.TierStatus{
			Scene:  scene.Enabled(),
			Legacy: legacy.Enabled(),
			Remote: remote.Enabled(),
		}
	}

	controller := api.New(settings, store, checkin, profile, scanner, tiers, metrics, registry)

	// Operators watching stderr get one readable line; the structured
	// stream carries the same event for shippers.
	logging.HumanReadable().Info("gymcheck listening", "port", settings.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", settings.Server.Port)
		errCh <- controller.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return controller.Shutdown(ctx)
	}
}
