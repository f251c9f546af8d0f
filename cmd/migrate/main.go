package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"sanjeevani-backend/internal/config"
	"sanjeevani-backend/migrations"
	"sanjeevani-backend/pkg/database"
	"sanjeevani-backend/pkg/logging"
)

func main() {
	direction := flag.String("direction", database.MigrateUp, "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("sanjeevani-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	if err := database.Migrate(context.Background(), cfg.Database.Connection(), migrations.FS, *direction, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Migration completed successfully")
}
