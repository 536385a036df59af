package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cloudtickets/internal/auth"
	"cloudtickets/internal/checkin"
	checkin_db "cloudtickets/internal/checkin/db"
	"cloudtickets/internal/checkin/checkin_api"
	"cloudtickets/internal/config"
	"cloudtickets/internal/credential"
	"cloudtickets/internal/database"
	"cloudtickets/internal/database/migrations"
	"cloudtickets/internal/delivery"
	"cloudtickets/internal/kafka"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/metrics"
	"cloudtickets/internal/order"
	order_db "cloudtickets/internal/order/db"
	"cloudtickets/internal/order/order_api"
	"cloudtickets/internal/payment"
	"cloudtickets/internal/payment/payment_api"
	"cloudtickets/internal/sse"
	ticket_db "cloudtickets/internal/tickets/db"
	tickets "cloudtickets/internal/tickets/service"
	"cloudtickets/internal/tickets/ticket_api"
)

func main() {
	logger := logger.NewLogger("cloudtickets")
	defer logger.Close()

	logger.Info("APP", "Starting cloudtickets initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("CONFIG", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		// the runner shares bunDB's pool, so it is not closed here
		if err := migrations.NewRunner(bunDB, cfg.Database.MigrationsDir, logger).Up(); err != nil {
			logger.Fatal("MIGRATE", err.Error())
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	signer, err := credential.NewSigner(cfg.Tickets.Secret)
	if err != nil {
		logger.Fatal("CONFIG", err.Error())
	}

	// --- Device lookup, cached in Redis when available ---
	var devices auth.DeviceStore = &auth.DeviceDB{Bun: bunDB}
	if cfg.Redis.Enabled {
		redisClient, err := auth.InitializeRedis(ctx, cfg.Redis.Addr, logger)
		if err != nil {
			logger.Warn("REDIS", "Continuing without device cache")
		} else {
			defer redisClient.Close()
			devices = auth.NewRedisDeviceCache(devices, redisClient, cfg.Redis.DeviceCacheTTL, logger)
		}
	}

	// --- TicketsIssued delivery through the transactional outbox ---
	var notifier delivery.Notifier = &delivery.LogNotifier{Logger: logger}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, []string{cfg.Kafka.Topics.TicketsIssued}, logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.TicketsIssued, logger)
		defer producer.Close()
		notifier = &delivery.KafkaNotifier{Publisher: producer}
		logger.Info("KAFKA", "Kafka producer initialized successfully")
	}
	backend, err := delivery.NewPostgresBackend(bunDB.DB, cfg.Delivery.PollInterval, logger)
	if err != nil {
		logger.Fatal("DELIVERY", err.Error())
	}
	defer backend.Close()
	relay, err := delivery.NewRelay(backend, notifier, cfg.Delivery, logger, m)
	if err != nil {
		logger.Fatal("DELIVERY", err.Error())
	}
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := relay.Run(ctx); err != nil {
			logger.Error("DELIVERY", fmt.Sprintf("Relay stopped: %v", err))
		}
	}()

	// --- User tokens ---
	var verifier auth.TokenVerifier
	if cfg.Auth.OIDCIssuer != "" {
		verifier, err = auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			logger.Fatal("AUTH", err.Error())
		}
	} else {
		verifier = auth.NewHMACVerifier(cfg.Auth.JWTSecret)
	}

	// --- Services ---
	orderService := order.NewOrderService(&order_db.DB{Bun: bunDB}, cfg.Payment, logger, m)
	ticketService := tickets.NewTicketService(&ticket_db.DB{Bun: bunDB}, signer, logger, m, cfg.Tickets.CredentialTTL)
	webhookService, err := payment.NewWebhookService(orderService, ticketService, backend.Outbox, cfg.Payment, logger, m)
	if err != nil {
		logger.Fatal("CONFIG", err.Error())
	}
	paymentEvents := sse.NewPaymentEvents()
	webhookService.Updates = paymentEvents
	validator := checkin.NewValidator(&checkin_db.DB{Bun: bunDB}, signer, logger, m)

	router := newRouter(routes{
		Orders:   order_api.NewHandler(orderService, ticketService, paymentEvents, logger),
		Tickets:  ticket_api.NewHandler(ticketService, logger),
		Payments: &payment_api.Handler{Webhooks: webhookService, Logger: logger, MaxBytes: cfg.Server.MaxWebhookBytes},
		Checkin:  &checkin_api.Handler{Validator: validator, Logger: logger},
		Users:    verifier,
		Devices:  devices,
		Metrics:  m,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("cloudtickets running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP", fmt.Sprintf("HTTP server error: %v", err))
			stop()
		}
	}()

	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	// staged events survive in the outbox table and are relayed on next start
	if err := relay.Close(); err != nil {
		logger.Warn("DELIVERY", fmt.Sprintf("Relay close: %v", err))
	}
	select {
	case <-relayDone:
	case <-ctxShutdown.Done():
		logger.Warn("DELIVERY", "Relay did not stop before the shutdown timeout")
	}
	logger.Info("APP", "cloudtickets shutdown complete")
}
