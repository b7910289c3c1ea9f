package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application's configuration values.
type Config struct {
	ServerPort  string
	LogLevel    slog.Level
	LogFormat   string
	DatabaseURL string

	// Timezone is the business timezone scheduling decisions are made in.
	Timezone string

	// PIQBaseURL and PIQAPIToken point at the downstream core service.
	PIQBaseURL  string
	PIQAPIToken string

	// Dispatcher selects the execution substrate, "pool" or "batch".
	Dispatcher    string
	MaxWorkers    int
	QueueCapacity int

	// Batch backend (Redis-based external queue).
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	BatchQueue    string

	// Control loop.
	LoopInterval     time.Duration
	ScheduledTimeout time.Duration
	StartedTimeout   time.Duration

	// BlobDir is the root of the filesystem blob store.
	BlobDir string
	// WorkDir holds per-run scratch downloads before upload.
	WorkDir string

	// EarliestInvoiceDate is the default start_date for invoice downloads.
	EarliestInvoiceDate string

	// PDFToTextBin is the text-extraction binary invoked for PDFs.
	PDFToTextBin string

	// UnknownLocationID is the downstream location used when a file's
	// location cannot be resolved through the mapping table.
	UnknownLocationID string
	// PaymentsEDIURL is the endpoint for the payments EDI hand-off.
	// Empty disables the payments_edi_upload action.
	PaymentsEDIURL string

	// CatalogPath points at the YAML connector catalog used by seeding.
	CatalogPath string
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults, and validates required fields. It uses the Viper
// library to handle configuration loading and precedence.
func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("TIMEZONE", "America/Los_Angeles")
	viper.SetDefault("DISPATCHER", "pool")
	viper.SetDefault("MAX_WORKERS", 5)
	viper.SetDefault("QUEUE_CAPACITY", 100)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("BATCH_QUEUE", "integrator-runs")
	viper.SetDefault("LOOP_INTERVAL", "3h")
	viper.SetDefault("SCHEDULED_TIMEOUT", "6h")
	viper.SetDefault("STARTED_TIMEOUT", "12h")
	viper.SetDefault("BLOB_DIR", "data/blobs")
	viper.SetDefault("WORK_DIR", "data/work")
	viper.SetDefault("EARLIEST_INVOICE_DATE", "2018-01-01")
	viper.SetDefault("PDFTOTEXT_BIN", "pdftotext")
	viper.SetDefault("UNKNOWN_LOCATION_ID", "")
	viper.SetDefault("PAYMENTS_EDI_URL", "")
	viper.SetDefault("CATALOG_PATH", "catalog.yaml")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", "error", err)
		}
	}

	if viper.GetString("DATABASE_URL") == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}
	if viper.GetString("PIQ_BASE_URL") == "" {
		return nil, fmt.Errorf("PIQ_BASE_URL must be set")
	}
	if _, err := url.Parse(viper.GetString("PIQ_BASE_URL")); err != nil {
		return nil, fmt.Errorf("PIQ_BASE_URL is not a valid URL: %w", err)
	}

	dispatcher := strings.ToLower(viper.GetString("DISPATCHER"))
	if dispatcher != "pool" && dispatcher != "batch" {
		return nil, fmt.Errorf("DISPATCHER must be \"pool\" or \"batch\", got %q", dispatcher)
	}

	loopInterval, err := time.ParseDuration(viper.GetString("LOOP_INTERVAL"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOOP_INTERVAL: %w", err)
	}
	scheduledTimeout, err := time.ParseDuration(viper.GetString("SCHEDULED_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULED_TIMEOUT: %w", err)
	}
	startedTimeout, err := time.ParseDuration(viper.GetString("STARTED_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid STARTED_TIMEOUT: %w", err)
	}

	if _, err := time.Parse("2006-01-02", viper.GetString("EARLIEST_INVOICE_DATE")); err != nil {
		return nil, fmt.Errorf("invalid EARLIEST_INVOICE_DATE: %w", err)
	}

	// Parse the log level string into a slog.Level type.
	var logLevel slog.Level
	logLevelStr := strings.ToLower(viper.GetString("LOG_LEVEL"))
	switch logLevelStr {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	case "info":
		logLevel = slog.LevelInfo
	default:
		slog.Warn("unrecognized log level, defaulting to info", "provided", logLevelStr)
		logLevel = slog.LevelInfo
	}

	return &Config{
		ServerPort:          viper.GetString("SERVER_PORT"),
		LogLevel:            logLevel,
		LogFormat:           strings.ToLower(viper.GetString("LOG_FORMAT")),
		DatabaseURL:         viper.GetString("DATABASE_URL"),
		Timezone:            viper.GetString("TIMEZONE"),
		PIQBaseURL:          viper.GetString("PIQ_BASE_URL"),
		PIQAPIToken:         viper.GetString("PIQ_API_TOKEN"),
		Dispatcher:          dispatcher,
		MaxWorkers:          viper.GetInt("MAX_WORKERS"),
		QueueCapacity:       viper.GetInt("QUEUE_CAPACITY"),
		RedisAddr:           viper.GetString("REDIS_ADDR"),
		RedisPassword:       viper.GetString("REDIS_PASSWORD"),
		RedisDB:             viper.GetInt("REDIS_DB"),
		BatchQueue:          viper.GetString("BATCH_QUEUE"),
		LoopInterval:        loopInterval,
		ScheduledTimeout:    scheduledTimeout,
		StartedTimeout:      startedTimeout,
		BlobDir:             viper.GetString("BLOB_DIR"),
		WorkDir:             viper.GetString("WORK_DIR"),
		EarliestInvoiceDate: viper.GetString("EARLIEST_INVOICE_DATE"),
		PDFToTextBin:        viper.GetString("PDFTOTEXT_BIN"),
		UnknownLocationID:   viper.GetString("UNKNOWN_LOCATION_ID"),
		PaymentsEDIURL:      viper.GetString("PAYMENTS_EDI_URL"),
		CatalogPath:         viper.GetString("CATALOG_PATH"),
	}, nil
}
