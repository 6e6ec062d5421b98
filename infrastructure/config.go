package infrastructure

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	LedgerSheets = "sheets"
	LedgerMySQL  = "mysql"
	BlobGCS      = "gcs"
	BlobS3       = "s3"
)

// Config is read once at start-up and never mutated afterwards.
type Config struct {
	Port     string
	LogLevel string

	LedgerBackend  string
	ContactSheetID string
	CareerSheetID  string
	DSN            string
	ServiceAccount []byte
	BlobBackend    string
	GCSBucket      string
	S3             S3Config
	ContactSecret  string
	CareerSecret   string
	TurnstileURL   string
	RabbitMQURL    string
	RabbitMQQueue  string
	AllowedOrigins []string
}

type S3Config struct {
	Bucket        string
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// LoadConfig reads the environment, optionally seeded from a .env file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LedgerBackend:  getEnv("LEDGER_BACKEND", LedgerSheets),
		ContactSheetID: os.Getenv("GSHEET_ID"),
		CareerSheetID:  os.Getenv("GSHEET_ID_CRP"),
		DSN:            os.Getenv("DB_DSN"),
		BlobBackend:    getEnv("BLOB_BACKEND", BlobGCS),
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		S3: S3Config{
			Bucket:        os.Getenv("S3_BUCKET"),
			Endpoint:      os.Getenv("S3_ENDPOINT"),
			Region:        os.Getenv("S3_REGION"),
			AccessKey:     os.Getenv("S3_ACCESS_KEY"),
			SecretKey:     os.Getenv("S3_SECRET_KEY"),
			PublicBaseURL: strings.TrimSuffix(os.Getenv("S3_PUBLIC_BASE_URL"), "/"),
		},
		ContactSecret:  os.Getenv("TURNSTILE_CONTACT_SECRET_KEY"),
		CareerSecret:   os.Getenv("TURNSTILE_CAREER_SECRET_KEY"),
		TurnstileURL:   getEnv("TURNSTILE_VERIFY_URL", DefaultTurnstileURL),
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		RabbitMQQueue:  getEnv("RABBITMQ_QUEUE", "submission_events"),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	key, err := serviceAccountKey()
	if err != nil {
		return nil, err
	}
	cfg.ServiceAccount = key

	// R2 and other S3-compatible endpoints accept the "auto" region; AWS
	// itself needs a real one.
	if cfg.S3.Region == "" && cfg.S3.Endpoint != "" {
		cfg.S3.Region = "auto"
	}

	if cfg.LedgerBackend == LedgerMySQL {
		if cfg.ContactSheetID == "" {
			cfg.ContactSheetID = "contact"
		}
		if cfg.CareerSheetID == "" {
			cfg.CareerSheetID = "career"
		}
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.LedgerBackend {
	case LedgerSheets:
		if c.ContactSheetID == "" || c.CareerSheetID == "" {
			return fmt.Errorf("GSHEET_ID and GSHEET_ID_CRP must be set for the sheets ledger")
		}
	case LedgerMySQL:
		if c.DSN == "" {
			return fmt.Errorf("DB_DSN must be set for the mysql ledger")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}

	switch c.BlobBackend {
	case BlobGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET must be set for the gcs blob backend")
		}
	case BlobS3:
		if c.S3.Bucket == "" || c.S3.PublicBaseURL == "" {
			return fmt.Errorf("S3_BUCKET and S3_PUBLIC_BASE_URL must be set for the s3 blob backend")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("S3_REGION must be set when S3_ENDPOINT is empty")
		}
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
	}
	return nil
}

// serviceAccountKey returns the inline JSON key, falling back to the key file.
// A nil key means application default credentials.
func serviceAccountKey() ([]byte, error) {
	if v := os.Getenv("GOOGLE_SERVICE_ACCOUNT_KEY"); v != "" {
		return []byte(v), nil
	}
	path := os.Getenv("GOOGLE_SERVICE_ACCOUNT_KEY_PATH")
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}
	return b, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
