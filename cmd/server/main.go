package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flightwatch-service/internal/infrastructure/config"
	"flightwatch-service/internal/infrastructure/persistence"
	"flightwatch-service/internal/interface/provider"
	repo "flightwatch-service/internal/interface/repository"
	"flightwatch-service/internal/usecase"
	"flightwatch-service/pkg/logger"
	"flightwatch-service/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// Create logger
	log := logger.NewLogger()
	log.Info("Starting Flightwatch Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up MongoDB connection
	log.Info("Connecting to MongoDB")
	mongoClient, db, err := persistence.NewMongoClient(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}

	gormDB, err := gorm.Open(postgres.Open(cfg.PostgresURI), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", "error", err)
	}

	// Set up metrics
	m := metrics.NewMetrics("flightwatch")

	// Set up repositories
	tripRepo := repo.NewMongoTripRepository(db)
	snapshotRepo := repo.NewMongoSnapshotRepository(db)
	ledgerRepo := repo.NewMongoLedgerRepository(db)
	settingsRepo := repo.NewGormTenantSettingsRepository(gormDB, log)
	timezoneRepo := repo.NewGormTimezoneRepository(gormDB)
	airlineRepo := repo.NewGormAirlineRepository(gormDB)

	// Set up external clients
	statusRepo := provider.NewAeroDataClient(
		ctx,
		cfg.ProviderBaseURL,
		cfg.ProviderTokenURL,
		cfg.ProviderClientID,
		cfg.ProviderClientSecret,
		cfg.ProviderTimeout,
		log,
	)
	whatsappRepo := repo.NewWhatsappRepository(
		cfg.WhatsAppEndpoint,
		cfg.WhatsAppToken,
		cfg.CompanyID,
		cfg.AgentID,
		log,
	)

	// Set up the engine
	detector := usecase.NewChangeDetector(airlineRepo, log)
	dispatcher := usecase.NewDispatcher(
		ledgerRepo,
		settingsRepo,
		timezoneRepo,
		whatsappRepo,
		detector,
		log,
		m,
		cfg.DispatchInterval,
		cfg.DispatchBatchSize,
	)
	scheduler := usecase.NewPollScheduler(
		tripRepo,
		snapshotRepo,
		statusRepo,
		settingsRepo,
		detector,
		dispatcher,
		log,
		m,
		cfg.ProviderRateLimit,
		cfg.PollWorkers,
		cfg.PollBatchSize,
		cfg.ProviderTimeout,
	)

	// Start the poll scheduler in a goroutine
	go scheduler.Run(ctx, cfg.TickInterval)

	// Start the delivery sweep in a goroutine
	go dispatcher.Run(ctx)

	// Set up HTTP server for metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Healthy"))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received signal", "signal", sig)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	cancel() // Cancel the context to stop the scheduler and dispatcher

	// Disconnect from MongoDB
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		log.Error("MongoDB disconnect error", "error", err)
	}

	log.Info("Flightwatch Service stopped")
}
