package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"sanjeevani-backend/internal/classifier"
	"sanjeevani-backend/internal/provider"
	"sanjeevani-backend/pkg/database"
)

// Config is the full runtime configuration shared by the server and the CLIs
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Logging    LoggingConfig
	Weather    WeatherConfig
	Classifier ClassifierConfig
	Uploads    UploadConfig
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// FrontendURL is the only origin allowed by CORS
	FrontendURL string
}

// DatabaseConfig configures the PostgreSQL connection pool
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level string
}

// WeatherConfig configures the forecast provider
type WeatherConfig struct {
	OpenWeatherAPIKey string
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	// Source is the provenance label stored with every block
	Source string
}

// ClassifierConfig selects and tunes the spray classifier. An empty ModelURL
// selects the threshold classifier.
type ClassifierConfig struct {
	ModelURL        string
	Timeout         time.Duration
	MinTemperatureC float64
	MaxTemperatureC float64
	MinHumidity     float64
	MaxHumidity     float64
	MaxRainfallMm   float64

	// DiseaseModelURL is the base URL of the crop and disease image models.
	// Crop diagnosis is unavailable while it is empty.
	DiseaseModelURL string
	DiseaseTimeout  time.Duration
}

// UploadConfig configures plant image uploads
type UploadConfig struct {
	Folder   string
	MaxBytes int64
}

// LoadConfig reads configuration from the environment, after loading a .env
// file when one is present.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	cfg.Server.Host = getenvDefault("SERVER_HOST", "0.0.0.0")
	if cfg.Server.Port, err = getenvInt("SERVER_PORT", 8000); err != nil {
		return nil, err
	}
	// PORT is set by most hosting platforms and wins over SERVER_PORT
	if cfg.Server.Port, err = getenvInt("PORT", cfg.Server.Port); err != nil {
		return nil, err
	}
	cfg.Server.FrontendURL = getenvDefault("FRONTEND_URL", "http://localhost:3000")
	if cfg.Server.ReadTimeout, err = getenvDuration("SERVER_READ_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = getenvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = getenvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	cfg.Database = DatabaseConfig{
		Host:     getenvDefault("DB_HOST", "localhost"),
		User:     getenvDefault("DB_USER", "postgres"),
		Password: os.Getenv("DB_PASSWORD"),
		Database: getenvDefault("DB_NAME", "sanjeevani"),
		SSLMode:  getenvDefault("DB_SSLMODE", "disable"),
	}
	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"DB_PORT", 5432, &cfg.Database.Port},
		{"DB_MAX_OPEN_CONNS", 25, &cfg.Database.MaxOpenConns},
		{"DB_MAX_IDLE_CONNS", 5, &cfg.Database.MaxIdleConns},
		{"OPENWEATHER_MAX_RETRIES", 2, &cfg.Weather.MaxRetries},
	}
	for _, in := range ints {
		if *in.dest, err = getenvInt(in.key, in.def); err != nil {
			return nil, err
		}
	}
	if rawURL := os.Getenv("DATABASE_URL"); rawURL != "" {
		if err := cfg.Database.applyURL(rawURL); err != nil {
			return nil, err
		}
	}
	if cfg.Database.ConnMaxLifetime, err = getenvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Database.ConnMaxIdleTime, err = getenvDuration("DB_CONN_MAX_IDLE_TIME", time.Minute); err != nil {
		return nil, err
	}

	cfg.Logging.Level = getenvDefault("LOG_LEVEL", "info")

	cfg.Weather.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.Weather.BaseURL = getenvDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org")
	cfg.Weather.Source = getenvDefault("WEATHER_SOURCE", "OpenWeatherMap")
	if cfg.Weather.Timeout, err = getenvDuration("OPENWEATHER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.Classifier.ModelURL = os.Getenv("SPRAY_MODEL_URL")
	if cfg.Classifier.Timeout, err = getenvDuration("SPRAY_MODEL_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	thresholds := []struct {
		key  string
		def  float64
		dest *float64
	}{
		{"SPRAY_MIN_TEMP_C", 10, &cfg.Classifier.MinTemperatureC},
		{"SPRAY_MAX_TEMP_C", 32, &cfg.Classifier.MaxTemperatureC},
		{"SPRAY_MIN_HUMIDITY", 40, &cfg.Classifier.MinHumidity},
		{"SPRAY_MAX_HUMIDITY", 90, &cfg.Classifier.MaxHumidity},
		{"SPRAY_MAX_RAIN_MM", 0.5, &cfg.Classifier.MaxRainfallMm},
	}
	for _, th := range thresholds {
		if *th.dest, err = getenvFloat(th.key, th.def); err != nil {
			return nil, err
		}
	}

	cfg.Classifier.DiseaseModelURL = os.Getenv("DISEASE_MODEL_URL")
	if cfg.Classifier.DiseaseTimeout, err = getenvDuration("DISEASE_MODEL_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	cfg.Uploads.Folder = getenvDefault("UPLOAD_FOLDER", "uploads")
	maxBytes, err := getenvInt("UPLOAD_MAX_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}
	cfg.Uploads.MaxBytes = int64(maxBytes)

	return cfg, nil
}

// Validate checks the configuration needed to serve traffic
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid server port %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		problems = append(problems, "database host is required")
	}
	if c.Database.Database == "" {
		problems = append(problems, "database name is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		problems = append(problems, "DB_MAX_OPEN_CONNS must be positive")
	}
	if c.Weather.OpenWeatherAPIKey == "" {
		problems = append(problems, "OPENWEATHER_API_KEY is required")
	}
	if c.Weather.MaxRetries < 0 {
		problems = append(problems, "OPENWEATHER_MAX_RETRIES must not be negative")
	}
	if c.Classifier.MinTemperatureC >= c.Classifier.MaxTemperatureC {
		problems = append(problems, "SPRAY_MIN_TEMP_C must be below SPRAY_MAX_TEMP_C")
	}
	if c.Classifier.MinHumidity >= c.Classifier.MaxHumidity {
		problems = append(problems, "SPRAY_MIN_HUMIDITY must be below SPRAY_MAX_HUMIDITY")
	}
	if c.Classifier.ModelURL != "" {
		if _, err := url.ParseRequestURI(c.Classifier.ModelURL); err != nil {
			problems = append(problems, "SPRAY_MODEL_URL is not a valid URL")
		}
	}
	if c.Classifier.DiseaseModelURL != "" {
		if _, err := url.ParseRequestURI(c.Classifier.DiseaseModelURL); err != nil {
			problems = append(problems, "DISEASE_MODEL_URL is not a valid URL")
		}
	}
	if c.Uploads.Folder == "" {
		problems = append(problems, "UPLOAD_FOLDER is required")
	}
	if c.Uploads.MaxBytes <= 0 {
		problems = append(problems, "UPLOAD_MAX_BYTES must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Connection returns the pool settings for pkg/database
func (d *DatabaseConfig) Connection() *database.Config {
	return &database.Config{
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
	}
}

// OpenWeather returns the forecast client settings
func (w *WeatherConfig) OpenWeather() provider.OpenWeatherConfig {
	return provider.OpenWeatherConfig{
		APIKey:     w.OpenWeatherAPIKey,
		BaseURL:    w.BaseURL,
		Timeout:    w.Timeout,
		MaxRetries: w.MaxRetries,
	}
}

// Thresholds returns the bounds used by the threshold classifier
func (c *ClassifierConfig) Thresholds() classifier.Thresholds {
	return classifier.Thresholds{
		MinTemperatureC: c.MinTemperatureC,
		MaxTemperatureC: c.MaxTemperatureC,
		MinHumidity:     c.MinHumidity,
		MaxHumidity:     c.MaxHumidity,
		MaxRainfallMm:   c.MaxRainfallMm,
	}
}

// applyURL overrides connection fields from a postgres:// URL
func (d *DatabaseConfig) applyURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("invalid DATABASE_URL: unsupported scheme %q", u.Scheme)
	}

	if host := u.Hostname(); host != "" {
		d.Host = host
	}
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_URL port: %w", err)
		}
		d.Port = n
	}
	if u.User != nil {
		d.User = u.User.Username()
		if password, ok := u.User.Password(); ok {
			d.Password = password
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		d.Database = name
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		d.SSLMode = mode
	}

	return nil
}

func loadDotEnv() error {
	path := getenvDefault("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
