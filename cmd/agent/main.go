package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/consite-erp/notify-agent/internal/config"
	"github.com/consite-erp/notify-agent/internal/diag"
	appHTTP "github.com/consite-erp/notify-agent/internal/handler/http"
	"github.com/consite-erp/notify-agent/internal/hub"
	"github.com/consite-erp/notify-agent/internal/pkg/cron"
	"github.com/consite-erp/notify-agent/internal/pkg/sse"
	"github.com/consite-erp/notify-agent/internal/session"
	"github.com/consite-erp/notify-agent/internal/sink"
	"github.com/consite-erp/notify-agent/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.App.LogLevel),
	}))
	recorder := diag.NewRecorder(logger)

	sessions := session.NewStore(cfg.Session.Path, recorder)
	notificationStore := store.NewMemoryStore()
	ui := sse.NewHub()

	notifier := sink.NewDesktopNotifier(os.Getenv("NOTIFY_ICON"))
	deliverySink := sink.New(notificationStore, ui, notifier, sink.NewHubPresence(ui), recorder, sessions.Current)

	lifecycle := hub.New(hub.Config{
		PushURL:        cfg.Backend.PushURL,
		APIBaseURL:     cfg.Backend.APIBaseURL,
		FeedDSN:        cfg.DatabaseURL(),
		PollInterval:   cfg.Delivery.PollInterval,
		PollLimit:      cfg.Delivery.PollLimit,
		ReconcileDelay: cfg.Delivery.ReconcileDelay,
	}, sessions, deliverySink, ui, recorder)
	lifecycle.Start()

	scheduler := cron.NewScheduler()
	scheduler.AddJob("credential-check", cfg.Delivery.CredentialCheckInterval, lifecycle.CheckCredentials)
	scheduler.AddJob("health-check", cfg.Delivery.HealthCheckInterval, lifecycle.HealthCheck)
	scheduler.Start()

	notificationHandler := appHTTP.NewNotificationHandler(notificationStore, ui)
	statusHandler := appHTTP.NewStatusHandler(lifecycle, recorder)
	router := appHTTP.NewRouter(cfg.App.Env, notificationHandler, statusHandler)

	server := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Agent listening at http://%s\n", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Println("Server error:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		fmt.Println("Server shutdown error:", err)
	}

	scheduler.Stop()
	lifecycle.Stop()
	sessions.Close()
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
