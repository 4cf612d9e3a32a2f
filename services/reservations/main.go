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
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	httpmw "github.com/diagnosis/library-reservations/internal/http/middleware"
	"github.com/diagnosis/library-reservations/internal/platform/payments"
	"github.com/diagnosis/library-reservations/pkg/cache"
	"github.com/diagnosis/library-reservations/pkg/config"
	"github.com/diagnosis/library-reservations/pkg/database"
	"github.com/diagnosis/library-reservations/pkg/events"
	"github.com/diagnosis/library-reservations/pkg/logger"
	mw "github.com/diagnosis/library-reservations/pkg/middleware"
	"github.com/diagnosis/library-reservations/services/reservations/internal/handlers"
	"github.com/diagnosis/library-reservations/services/reservations/internal/repository"
	"github.com/diagnosis/library-reservations/services/reservations/internal/rules"
	"github.com/diagnosis/library-reservations/services/reservations/internal/service"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "reservations")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	opts := handlers.Options{JWTSecret: cfg.Auth.JWTSecret}

	// Redis backs rate limiting and response replay; the service still runs without it
	if rdb, err := cache.Connect(ctx, cfg.Redis); err != nil {
		logger.Warn("Redis unavailable, rate limiting and response replay disabled", "error", err)
	} else {
		defer rdb.Close()
		opts.RateLimiter = httpmw.NewRateLimiter(
			cache.NewRateLimiter(rdb, cfg.Redis.RateLimit, cfg.Redis.RateWindow),
			httpmw.RateLimitConfig{},
		)
		opts.Idempotency = cache.NewIdempotencyStore(rdb)
	}

	if cfg.Stripe.SecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, late fees will not be charged")
	}

	// Initialize repositories
	reservationRepo := repository.NewReservationRepository(pool)
	waitlistRepo := repository.NewWaitlistRepository(pool)
	idempotencyRepo := repository.NewIdempotencyRepository(pool)

	// Initialize services
	validator := rules.NewValidator(policyFromConfig(cfg.Policy), time.Now)
	reservationService := service.NewReservationService(
		reservationRepo, idempotencyRepo, validator, payments.New(cfg.Stripe.SecretKey), eventBus,
	)
	waitlistService := service.NewWaitlistService(waitlistRepo, validator, eventBus)
	sweeper := service.NewOverdueSweeper(reservationService, idempotencyRepo, cfg.Sweeper.Interval)

	h := handlers.New(reservationService, waitlistService, opts)

	// Setup router
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("reservations"))
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health)
	r.Mount("/v1", h.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting reservations service", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down reservations service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Reservations service error", "error", err)
		os.Exit(1)
	}
}

func policyFromConfig(p config.PolicyConfig) rules.Policy {
	return rules.Policy{
		MinPickupDays:      p.MinPickupDays,
		MaxAdvanceDays:     p.MaxAdvanceDays,
		MaxReservationDays: p.MaxReservationDays,
		AverageLoanDays:    p.AverageLoanDays,
	}
}
