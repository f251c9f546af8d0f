package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sanjeevani-backend/internal/classifier"
	"sanjeevani-backend/internal/config"
	"sanjeevani-backend/internal/forecast"
	"sanjeevani-backend/internal/provider"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

// preview runs the block and window pipeline on one forecast without a database
func main() {
	file := flag.String("file", "", "Saved OpenWeatherMap forecast JSON (fetched live when empty)")
	lat := flag.Float64("lat", 0, "Latitude of the field")
	lon := flag.Float64("lon", 0, "Longitude of the field")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("sanjeevani-preview", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()
	ctx := context.Background()

	raw, err := loadForecast(ctx, cfg, *file, *lat, *lon, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load forecast: %v\n", err)
		os.Exit(1)
	}

	blocks, rejected := forecast.BuildBlocks(raw)

	rule := strings.Repeat("─", 72)
	fmt.Println(rule)
	fmt.Println("SPRAY WINDOW PREVIEW")
	fmt.Println(rule)
	fmt.Printf("Samples: %d   Rejected: %d   Blocks: %d   UTC offset: %ds\n\n",
		len(raw.Samples), rejected, len(blocks), raw.UTCOffsetSeconds)

	if len(blocks) == 0 {
		fmt.Println("No operational blocks in this forecast.")
		return
	}

	sprayClassifier := classifier.New(cfg.Classifier.ModelURL, cfg.Classifier.Timeout, cfg.Classifier.Thresholds())

	fmt.Printf("%-4s %-5s %-17s %8s %8s %8s %6s\n", "Day", "Block", "Local time", "Temp C", "Hum %", "Rain mm", "Status")
	classified := make([]forecast.ClassifiedBlock, 0, len(blocks))
	for _, b := range blocks {
		status, err := sprayClassifier.Classify(ctx, classifier.FeaturesOf(b))
		if err != nil {
			logger.Warn(ctx, "[PREVIEW_CLASSIFY_ERROR] Block left unclassified", logging.Fields{
				"day":   b.DayIndex,
				"block": b.BlockIndex,
				"error": err.Error(),
			})
			status = "?"
		}
		marker := ""
		if b.Synthesized {
			marker = " *"
		}
		fmt.Printf("%-4d %-5d %-17s %8.2f %8.2f %8.2f %6s%s\n",
			b.DayIndex, b.BlockIndex, b.ReferenceTime.Format("2006-01-02 15:04"),
			b.TemperatureC, b.HumidityPercent, b.RainfallMm, status, marker)
		classified = append(classified, forecast.ClassifiedBlock{Block: b, Status: status})
	}
	fmt.Println("\n* no forecast sample fell in this block")

	fmt.Println()
	fmt.Println(rule)
	fmt.Printf("BEST SPRAY WINDOWS (%s classifier)\n", sprayClassifier.Name())
	fmt.Println(rule)
	windows := forecast.SelectWindows(classified)
	if len(windows) == 0 {
		fmt.Println("No favorable windows.")
	}
	for _, w := range windows {
		fmt.Printf("%s  %.2f C  %.2f %%  %.2f mm\n",
			w.ReferenceTime.Format(time.RFC1123Z), w.TemperatureC, w.HumidityPercent, w.RainfallMm)
	}
}

func loadForecast(ctx context.Context, cfg *config.Config, path string, lat, lon float64, logger *logging.StructuredLogger) (forecast.Forecast, error) {
	if path == "" {
		source := provider.NewOpenWeatherProvider(cfg.Weather.OpenWeather(), logger,
			metrics.NewCollector("sanjeevani_preview", prometheus.NewRegistry()))
		return source.FetchForecast(ctx, lat, lon)
	}

	f, err := os.Open(path)
	if err != nil {
		return forecast.Forecast{}, err
	}
	defer f.Close()

	return provider.DecodeForecast(f, lat, lon)
}
