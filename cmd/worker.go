package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ipeimoveis/crm-backend/internal/core/events"
	"github.com/ipeimoveis/crm-backend/internal/notification"
	"github.com/ipeimoveis/crm-backend/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background worker processes",
	Long:  `Start and manage background workers: notification delivery, event bus monitoring.`,
}

var notificationWorkerCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Start the notification dispatcher",
	Long:  `Start a standalone notification dispatcher consuming domain events and fanning them out to the configured sinks`,
	Run: func(cmd *cobra.Command, args []string) {
		startNotificationWorker()
	},
}

var eventWorkerCmd = &cobra.Command{
	Use:   "events",
	Short: "Start event bus worker",
	Long:  `Start the event bus and log every domain event it sees`,
	Run: func(cmd *cobra.Command, args []string) {
		startEventWorker()
	},
}

var (
	maxWorkers   int
	queueSize    int
	webhookURL   string
	adminChannel string
)

func startNotificationWorker() {
	cfg, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg := logger.LoggerWrapper()

	sinks := []notification.Sink{notification.NewLogSink(lg)}
	hookURL := getStringFlag(webhookURL, cfg.Notification.WebhookURL)
	if hookURL != "" {
		sinks = append(sinks, notification.NewWebhookSink(hookURL))
	}

	dispatcherConfig := notification.Config{
		MaxWorkers:  getIntFlag(maxWorkers, cfg.Notification.MaxWorkers),
		QueueSize:   getIntFlag(queueSize, cfg.Notification.QueueSize),
		SendTimeout: cfg.Notification.SendTimeout,
	}

	lg.Info("starting notification worker",
		"max_workers", dispatcherConfig.MaxWorkers,
		"queue_size", dispatcherConfig.QueueSize,
		"webhook_url", hookURL)

	dispatcher := notification.NewDispatcher(dispatcherConfig, lg, sinks...)

	bus := events.NewEventBus(lg)
	notification.RegisterEventHandlers(bus, dispatcher, getStringFlag(adminChannel, cfg.Notification.AdminChannel))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	lg.Info("notification worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	lg.Info("received signal, shutting down notification worker", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		dispatcher.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		lg.Info("notification worker shutdown complete")
	case <-ctx.Done():
		lg.Warn("shutdown timeout reached, forcing exit")
	}
}

func startEventWorker() {
	if _, err := loadConfig("."); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg := logger.LoggerWrapper()

	bus := events.NewEventBus(lg)

	for _, eventType := range []string{
		events.EventTypeAccessRequestSubmitted,
		events.EventTypeAccessRequestReviewed,
		events.EventTypeLeadCreated,
		events.EventTypeLeadStatusChanged,
		events.EventTypeDocumentUploaded,
		events.EventTypeDocumentReviewed,
		events.EventTypeTaskAssigned,
	} {
		bus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
			lg.Info("received event",
				"event_id", event.EventID(),
				"event_type", event.EventType(),
				"payload", event.Payload())
			return nil
		})
	}

	lg.Info("event bus worker started. Waiting for events...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	lg.Info("received signal, shutting down event bus", "signal", sig)
	lg.Info("event bus shutdown complete")
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	notificationWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	notificationWorkerCmd.Flags().IntVar(&queueSize, "queue-size", 0, "Message queue buffer size (overrides config)")
	notificationWorkerCmd.Flags().StringVar(&webhookURL, "webhook-url", "", "Webhook sink URL (overrides config)")
	notificationWorkerCmd.Flags().StringVar(&adminChannel, "admin-channel", "", "Back office notification channel (overrides config)")

	workerCmd.AddCommand(notificationWorkerCmd)
	workerCmd.AddCommand(eventWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
