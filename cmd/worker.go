package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/pos-payments/internal/core/events"
	"github.com/frahmantamala/pos-payments/internal/provider"
	"github.com/frahmantamala/pos-payments/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers like provider health probes and event consumers.`,
}

// Provider probe worker command
var probeWorkerCmd = &cobra.Command{
	Use:   "probe",
	Short: "Start provider health probe worker",
	Long:  `Periodically checks connectivity to every configured payment provider`,
	Run: func(cmd *cobra.Command, args []string) {
		startProbeWorker()
	},
}

// Event Bus worker command
var eventWorkerCmd = &cobra.Command{
	Use:   "events",
	Short: "Start event bus worker",
	Long:  `Consumes payment lifecycle events`,
	Run: func(cmd *cobra.Command, args []string) {
		startEventWorker()
	},
}

var probeInterval time.Duration

func startProbeWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	clients, err := buildProviderClients(config.Payment.Providers, config.Payment.AttemptTimeout, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build provider clients: %v\n", err)
		os.Exit(1)
	}

	lg.Info("provider probe worker started",
		"providers", len(clients),
		"interval", probeInterval.String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	probeAll(clients, lg)

	for {
		select {
		case <-ticker.C:
			probeAll(clients, lg)
		case sig := <-sigChan:
			lg.Info("received signal, shutting down probe worker", "signal", sig.String())
			return
		}
	}
}

func probeAll(clients []provider.Client, lg *slog.Logger) {
	for _, client := range clients {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.TestConnection(ctx)
		cancel()

		if err != nil {
			lg.Warn("provider unreachable",
				"provider", client.Name(),
				"error", err.Error())
			continue
		}
		lg.Info("provider healthy", "provider", client.Name())
	}
}

func startEventWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	eventBus := events.NewEventBus(lg)

	eventBus.Subscribe(events.EventTypePaymentCompleted, func(ctx context.Context, event events.Event) error {
		lg.Info("payment completed",
			"event_id", event.EventID(),
			"payload", event.Payload())
		return nil
	})
	eventBus.Subscribe(events.EventTypePaymentFailed, func(ctx context.Context, event events.Event) error {
		lg.Warn("payment failed",
			"event_id", event.EventID(),
			"payload", event.Payload())
		return nil
	})

	lg.Info("event bus worker started. Waiting for events...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	lg.Info("received signal, shutting down event bus", "signal", sig.String())
}

func init() {
	probeWorkerCmd.Flags().DurationVar(&probeInterval, "interval", 30*time.Second, "Time between provider connectivity probes")

	workerCmd.AddCommand(probeWorkerCmd)
	workerCmd.AddCommand(eventWorkerCmd)
}
