package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeJWT      = "jwt"
)

// Config represents the application configuration.
type Config struct {
	App           ApplicationConfig   `yaml:"app"`
	SQLite        SQLiteConfig        `yaml:"sqlite"`
	Blobs         BlobsConfig         `yaml:"blobs"`
	Auth          AuthConfig          `yaml:"auth"`
	Capture       CaptureConfig       `yaml:"capture"`
	Guard         GuardConfig         `yaml:"guard"`
	Usage         UsageConfig         `yaml:"usage"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"sqlite", &c.SQLite},
		{"blobs", &c.Blobs},
		{"auth", &c.Auth},
		{"capture", &c.Capture},
		{"guard", &c.Guard},
		{"usage", &c.Usage},
		{"transcription", &c.Transcription},
		{"extraction", &c.Extraction},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// BlobsConfig holds the directory for capture and journal audio.
type BlobsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the blob configuration.
func (c *BlobsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how callers are identified:
//   - "disabled" (default): every request runs as DevUser, suitable for local dev.
//   - "jwt": HS256 bearer tokens; Secret must be non-empty.
type AuthConfig struct {
	Mode    string      `yaml:"mode"`
	Secret  string      `yaml:"secret"`
	Issuer  string      `yaml:"issuer"`
	DevUser string      `yaml:"dev_user"`
	DevTier models.Tier `yaml:"dev_tier"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if c.DevTier == "" {
		c.DevTier = models.TierMetered
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeJWT)),
		validation.Field(&c.DevTier, validation.In(models.TierMetered, models.TierUnmetered)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeJWT && c.Secret == "" {
		return fmt.Errorf("auth: mode is %q but secret is empty", AuthModeJWT)
	}
	if c.Mode == AuthModeDisabled && c.DevUser == "" {
		return fmt.Errorf("auth: mode is %q but dev_user is empty", AuthModeDisabled)
	}
	return nil
}

// AuthEnabled returns true when bearer tokens are verified.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeJWT
}

// DevAccount is the account used when authentication is disabled.
func (c *AuthConfig) DevAccount() models.Account {
	return models.Account{UserID: c.DevUser, Tier: c.DevTier}
}

// CaptureConfig bounds temporary captures.
type CaptureConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	MaxBytes int64         `yaml:"max_bytes"`
}

// Validate validates the capture configuration.
func (c *CaptureConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1))),
	)
}

// GuardConfig holds the banned term list. Terms and TermsFile are merged.
type GuardConfig struct {
	Terms     []string `yaml:"terms"`
	TermsFile string   `yaml:"terms_file"`
	MinChars  int      `yaml:"min_chars"`
	Watch     bool     `yaml:"watch"`
}

// Validate validates the guard configuration.
func (c *GuardConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MinChars, validation.Min(0)),
	)
}

// UsageConfig holds quota limits and the day boundary timezone.
type UsageConfig struct {
	Timezone          string  `yaml:"timezone"`
	PreviewDailyLimit int     `yaml:"preview_daily_limit"`
	JournalDailyLimit int     `yaml:"journal_daily_limit"`
	EstimatedCost     float64 `yaml:"estimated_cost"`
}

// Validate validates the usage configuration.
func (c *UsageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timezone, validation.Required, validation.By(func(any) error {
			_, err := time.LoadLocation(c.Timezone)
			return err
		})),
		validation.Field(&c.PreviewDailyLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.JournalDailyLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.EstimatedCost, validation.Min(0.0)),
	)
}

// Location returns the configured timezone. Validate must have passed.
func (c *UsageConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TranscriptionConfig configures the Deepgram client.
type TranscriptionConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Language    string        `yaml:"language"`
	SmartFormat bool          `yaml:"smart_format"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Validate validates the transcription configuration.
func (c *TranscriptionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Timeout, validation.Required),
	)
}

// ExtractionConfig configures the Anthropic model used for extraction and
// emotion classification. Prices are USD per million tokens; zero prices
// charge the fixed usage estimate instead.
type ExtractionConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	MaxTokens     int64         `yaml:"max_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	InputPerMTok  float64       `yaml:"input_price_per_mtok"`
	OutputPerMTok float64       `yaml:"output_price_per_mtok"`
}

// Validate validates the extraction configuration.
func (c *ExtractionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.MaxTokens, validation.Required, validation.Min(int64(64))),
		validation.Field(&c.Timeout, validation.Required),
		validation.Field(&c.InputPerMTok, validation.Min(0.0)),
		validation.Field(&c.OutputPerMTok, validation.Min(0.0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./ansuz.db",
		},
		Blobs: BlobsConfig{
			Path: "./blobs",
		},
		Auth: AuthConfig{
			Mode:    AuthModeDisabled,
			Issuer:  "ansuz",
			DevUser: "local",
			DevTier: models.TierUnmetered,
		},
		Capture: CaptureConfig{
			TTL:      24 * time.Hour,
			MaxBytes: 25 << 20,
		},
		Guard: GuardConfig{
			MinChars: 6,
			Watch:    true,
		},
		Usage: UsageConfig{
			Timezone:          "UTC",
			PreviewDailyLimit: 20,
			JournalDailyLimit: 10,
			EstimatedCost:     0.001,
		},
		Transcription: TranscriptionConfig{
			BaseURL:     "https://api.deepgram.com/v1",
			Model:       "nova-2",
			SmartFormat: true,
			Timeout:     30 * time.Second,
		},
		Extraction: ExtractionConfig{
			Model:     "claude-3-5-haiku-latest",
			MaxTokens: 512,
			Timeout:   30 * time.Second,
		},
	}
}
