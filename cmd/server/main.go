package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sanjeevani-backend/internal/classifier"
	"sanjeevani-backend/internal/config"
	"sanjeevani-backend/internal/handlers"
	"sanjeevani-backend/internal/provider"
	"sanjeevani-backend/internal/repository"
	"sanjeevani-backend/internal/services"
	"sanjeevani-backend/internal/uploads"
	"sanjeevani-backend/pkg/database"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("sanjeevani-api", version, logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting spray advisory API server", logging.Fields{
		"server_host":  cfg.Server.Host,
		"server_port":  cfg.Server.Port,
		"db_host":      cfg.Database.Host,
		"db_name":      cfg.Database.Database,
		"frontend_url": cfg.Server.FrontendURL,
		"model_url":    cfg.Classifier.ModelURL,
		"disease_url":  cfg.Classifier.DiseaseModelURL,
	})

	metricsCollector := metrics.NewCollector("sanjeevani", prometheus.DefaultRegisterer)

	db, err := database.NewPostgresDB(cfg.Database.Connection(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", nil, err)
	}
	defer db.Close()

	imageStore, err := uploads.NewStore(cfg.Uploads.Folder, cfg.Uploads.MaxBytes)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to prepare upload folder", logging.Fields{
			"upload_folder": cfg.Uploads.Folder,
		}, err)
	}

	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)
	diagnosisRepo := repository.NewDiagnosisRepository(db, logger)

	forecastSource := provider.NewOpenWeatherProvider(cfg.Weather.OpenWeather(), logger, metricsCollector)
	sprayClassifier := classifier.New(cfg.Classifier.ModelURL, cfg.Classifier.Timeout, cfg.Classifier.Thresholds())

	var diagnoser classifier.ImageClassifier
	if cfg.Classifier.DiseaseModelURL != "" {
		diagnoser = classifier.NewRemoteImageClassifier(cfg.Classifier.DiseaseModelURL, cfg.Classifier.DiseaseTimeout)
	} else {
		logger.Warn(ctx, "[STARTUP] DISEASE_MODEL_URL not set, /predict/{crop} will answer 503", nil)
	}

	ingestionService := services.NewIngestionService(forecastSource, weatherRepo, cfg.Weather.Source, logger, metricsCollector)
	predictionService := services.NewPredictionService(weatherRepo, sprayClassifier, logger, metricsCollector)
	windowService := services.NewWindowService(weatherRepo, logger, metricsCollector)
	diagnosisService := services.NewDiagnosisService(diagnosisRepo, imageStore, diagnoser, logger, metricsCollector)

	sprayHandler := handlers.NewSprayHandler(ingestionService, predictionService, windowService, weatherRepo, logger, metricsCollector)
	diagnosisHandler := handlers.NewDiagnosisHandler(diagnosisService, cfg.Uploads.MaxBytes, logger, metricsCollector)

	router := mux.NewRouter()
	router.Use(handlers.RequestID)

	sprayHandler.RegisterRoutes(router)
	diagnosisHandler.RegisterRoutes(router)
	handlers.RegisterDocsRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins([]string{cfg.Server.FrontendURL}),
		gorillahandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "Authorization", handlers.RequestIDHeader}),
		gorillahandlers.ExposedHeaders([]string{handlers.RequestIDHeader}),
		gorillahandlers.AllowCredentials(),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      cors(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     logger.StdLog(),
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address":    server.Addr,
			"classifier": sprayClassifier.Name(),
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", nil, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", nil, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", nil)
}
