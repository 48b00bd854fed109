package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything loaded from config.env and the environment.
type Config struct {
	Port            string `mapstructure:"PORT"`
	DBDriver        string `mapstructure:"DB_DRIVER"`
	DSN             string `mapstructure:"DSN"`
	JWTSecret       string `mapstructure:"JWT_SECRET"`
	AdminEmail      string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword   string `mapstructure:"ADMIN_PASSWORD"`
	AppURL          string `mapstructure:"APP_URL"`
	AllowedOrigins  string `mapstructure:"ALLOWED_ORIGINS"`
	DefaultCampaign string `mapstructure:"DEFAULT_CAMPAIGN"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	FlutterwavePublicKey     string `mapstructure:"FLUTTERWAVE_PUBLIC_KEY"`
	FlutterwaveSecretKey     string `mapstructure:"FLUTTERWAVE_SECRET_KEY"`
	FlutterwaveWebhookSecret string `mapstructure:"FLUTTERWAVE_WEBHOOK_SECRET"`
	FlutterwaveBaseURL       string `mapstructure:"FLUTTERWAVE_BASE_URL"`

	MidtransServerKey  string `mapstructure:"MIDTRANS_SERVER_KEY"`
	MidtransProduction bool   `mapstructure:"MIDTRANS_PRODUCTION"`

	// ArchiveBackend selects where raw webhook payloads are copied:
	// "s3", "supabase" or "" for none.
	ArchiveBackend     string `mapstructure:"ARCHIVE_BACKEND"`
	ArchiveBucket      string `mapstructure:"ARCHIVE_BUCKET"`
	ArchiveRegion      string `mapstructure:"ARCHIVE_REGION"`
	ArchiveEndpoint    string `mapstructure:"ARCHIVE_ENDPOINT"`
	ArchiveAccessKey   string `mapstructure:"ARCHIVE_ACCESS_KEY_ID"`
	ArchiveSecretKey   string `mapstructure:"ARCHIVE_SECRET_ACCESS_KEY"`
	SupabaseURL        string `mapstructure:"SUPABASE_URL"`
	SupabaseServiceKey string `mapstructure:"SUPABASE_SERVICE_ROLE_KEY"`
}

var defaults = map[string]any{
	"PORT":                       "8080",
	"DB_DRIVER":                  "pgx",
	"DSN":                        "",
	"JWT_SECRET":                 "",
	"ADMIN_EMAIL":                "",
	"ADMIN_PASSWORD":             "",
	"APP_URL":                    "http://localhost:5173",
	"ALLOWED_ORIGINS":            "*",
	"DEFAULT_CAMPAIGN":           "Youth Health Education Campaign",
	"STRIPE_SECRET_KEY":          "",
	"STRIPE_WEBHOOK_SECRET":      "",
	"FLUTTERWAVE_PUBLIC_KEY":     "",
	"FLUTTERWAVE_SECRET_KEY":     "",
	"FLUTTERWAVE_WEBHOOK_SECRET": "",
	"FLUTTERWAVE_BASE_URL":       "https://api.flutterwave.com",
	"MIDTRANS_SERVER_KEY":        "",
	"MIDTRANS_PRODUCTION":        false,
	"ARCHIVE_BACKEND":            "",
	"ARCHIVE_BUCKET":             "",
	"ARCHIVE_REGION":             "us-east-1",
	"ARCHIVE_ENDPOINT":           "",
	"ARCHIVE_ACCESS_KEY_ID":      "",
	"ARCHIVE_SECRET_ACCESS_KEY":  "",
	"SUPABASE_URL":               "",
	"SUPABASE_SERVICE_ROLE_KEY":  "",
}

// Load reads config.env from path (when present) and overlays the
// environment. A missing file is fine; every key has a default.
func Load(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unmarshal config: %w", err)
	}
	return config, config.Validate()
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "pgx", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be pgx or sqlite, got %q", c.DBDriver)
	}
	if c.DSN == "" {
		return errors.New("DSN is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.ArchiveBackend {
	case "":
	case "s3", "supabase":
		if c.ArchiveBucket == "" {
			return fmt.Errorf("ARCHIVE_BUCKET is required for the %s archive", c.ArchiveBackend)
		}
		if c.ArchiveBackend == "supabase" && (c.SupabaseURL == "" || c.SupabaseServiceKey == "") {
			return errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for the supabase archive")
		}
	default:
		return fmt.Errorf("unknown ARCHIVE_BACKEND %q", c.ArchiveBackend)
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
