package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/library-reservations/internal/platform/mailer"
	"github.com/diagnosis/library-reservations/pkg/config"
	"github.com/diagnosis/library-reservations/pkg/events"
	"github.com/diagnosis/library-reservations/pkg/logger"
	mw "github.com/diagnosis/library-reservations/pkg/middleware"
	"github.com/diagnosis/library-reservations/services/notify/internal/consumer"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "notify")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	var m mailer.Service
	if cfg.Email.DevMode || cfg.Email.MailerSendKey == "" {
		logger.Info("Using dev mailer, emails are logged only")
		m = mailer.NewDevMailer()
	} else {
		m = mailer.NewMailer(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail, cfg.Email.ReplyTo)
	}

	if err := consumer.New(m).Subscribe(eventBus, cfg.NATS.QueueGroup); err != nil {
		logger.Error("Failed to subscribe to events", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Logging)
	r.Use(mw.Health)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.NotifyPort,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down notify service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Notify service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting notify service", "port", cfg.Server.NotifyPort, "queue", cfg.NATS.QueueGroup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Notify service error", "error", err)
		os.Exit(1)
	}
}
