package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"sanjeevani-backend/internal/classifier"
	"sanjeevani-backend/internal/config"
	"sanjeevani-backend/internal/provider"
	"sanjeevani-backend/internal/repository"
	"sanjeevani-backend/internal/services"
	"sanjeevani-backend/pkg/database"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

func main() {
	lat := flag.Float64("lat", 0, "Latitude of the field")
	lon := flag.Float64("lon", 0, "Longitude of the field")
	session := flag.String("session", "", "Session id for the capture (random when empty)")
	predict := flag.Bool("predict", false, "Run spray prediction after the capture")
	flag.Parse()

	if *session == "" {
		*session = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("sanjeevani-ingester", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[INGESTER_START] Starting forecast capture", logging.Fields{
		"latitude":   *lat,
		"longitude":  *lon,
		"session_id": *session,
		"predict":    *predict,
	})

	// metrics are not exported from a one-shot run
	metricsCollector := metrics.NewCollector("sanjeevani_ingester", prometheus.NewRegistry())

	db, err := database.NewPostgresDB(cfg.Database.Connection(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", nil, err)
	}
	defer db.Close()

	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)
	forecastSource := provider.NewOpenWeatherProvider(cfg.Weather.OpenWeather(), logger, metricsCollector)
	ingestionService := services.NewIngestionService(forecastSource, weatherRepo, cfg.Weather.Source, logger, metricsCollector)

	result, err := ingestionService.CaptureForecast(ctx, services.CaptureRequest{
		Latitude:  *lat,
		Longitude: *lon,
		SessionID: *session,
	})
	if err != nil {
		logger.Error(ctx, "[INGESTER_ERROR] Capture failed", nil, err)
		db.Close()
		os.Exit(1)
	}

	fmt.Println("\n=== Capture Summary ===")
	fmt.Printf("Session:            %s\n", result.SessionID)
	fmt.Printf("Days:               %d\n", result.Days)
	fmt.Printf("Blocks:             %d (%d synthesized)\n", result.Blocks, result.Synthesized)
	fmt.Printf("Samples accepted:   %d\n", result.AcceptedSamples)
	fmt.Printf("Samples rejected:   %d\n", result.RejectedSamples)
	fmt.Printf("Duration:           %v\n", result.Duration)

	if !*predict {
		return
	}

	sprayClassifier := classifier.New(cfg.Classifier.ModelURL, cfg.Classifier.Timeout, cfg.Classifier.Thresholds())
	predictionService := services.NewPredictionService(weatherRepo, sprayClassifier, logger, metricsCollector)

	prediction, err := predictionService.RunSprayPrediction(ctx)
	if err != nil {
		logger.Error(ctx, "[INGESTER_ERROR] Spray prediction failed", nil, err)
		db.Close()
		os.Exit(1)
	}

	fmt.Println("\n=== Prediction Summary ===")
	fmt.Printf("Classifier:         %s\n", sprayClassifier.Name())
	fmt.Printf("Classified:         %d\n", prediction.Classified)
	fmt.Printf("Favorable:          %d\n", prediction.Favorable)
	if prediction.Failures != nil {
		fmt.Printf("Failures:           %v\n", prediction.Failures)
	}
}
