package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/synapse/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Store drivers.
const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Auth       AuthConfig        `yaml:"auth"`
	Store      StoreConfig       `yaml:"store"`
	Redis      RedisConfig       `yaml:"redis"`
	Embedding  EmbeddingConfig   `yaml:"embedding"`
	Chunker    ChunkerConfig     `yaml:"chunker"`
	Transcript TranscriptConfig  `yaml:"transcript"`
	Usage      UsageConfig       `yaml:"usage"`
	Queue      QueueConfig       `yaml:"queue"`
	Vault      VaultConfig       `yaml:"vault"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []validation.Validatable{
		&c.App, &c.Auth, &c.Store, &c.Redis, &c.Embedding,
		&c.Chunker, &c.Transcript, &c.Usage, &c.Queue, &c.Vault,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
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

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// StoreConfig selects the chunk and note store.
// Path is used by the sqlite driver, DSN by postgres.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StoreDriverSQLite, StoreDriverPostgres)),
		validation.Field(&c.Path, validation.When(c.Driver == StoreDriverSQLite, validation.Required)),
		validation.Field(&c.DSN, validation.When(c.Driver == StoreDriverPostgres, validation.Required)),
		validation.Field(&c.MaxConns, validation.Min(int32(0))),
	)
}

// RedisConfig holds the connection used for queues, staging and caches.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Validate validates the redis configuration.
func (c *RedisConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.DB, validation.Min(0)),
	)
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"`
	Token      string `yaml:"token"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Dimensions, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchSize, validation.Min(0)),
	)
}

// ChunkerConfig holds chunking settings.
type ChunkerConfig struct {
	Encoding     string `yaml:"encoding"`
	BudgetTokens int    `yaml:"budget_tokens"`
}

// Validate validates the chunker configuration.
func (c *ChunkerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Encoding, validation.Required),
		validation.Field(&c.BudgetTokens, validation.Required, validation.Min(1)),
	)
}

// TranscriptConfig holds the video transcript service settings.
// An empty BaseURL disables transcript enrichment.
type TranscriptConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	LocalSize int           `yaml:"local_size"`
}

// Enabled reports whether transcripts are fetched.
func (c *TranscriptConfig) Enabled() bool {
	return c.BaseURL != ""
}

// Validate validates the transcript configuration.
func (c *TranscriptConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.CacheTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.LocalSize, validation.Min(0)),
	)
}

// UsageConfig holds the per-tier embedded token limits.
type UsageConfig struct {
	DefaultTier models.SubscriptionTier          `yaml:"default_tier"`
	Limits      map[models.SubscriptionTier]int64 `yaml:"limits"`
}

// Validate validates the usage configuration.
func (c *UsageConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DefaultTier, validation.Required,
			validation.In(models.TierBasic, models.TierAdvanced, models.TierElite)),
		validation.Field(&c.Limits, validation.Required),
	); err != nil {
		return err
	}
	if _, ok := c.Limits[c.DefaultTier]; !ok {
		return fmt.Errorf("usage: no limit for default tier %q", c.DefaultTier)
	}
	return nil
}

// QueueConfig holds consumer settings.
type QueueConfig struct {
	PopTimeout  time.Duration `yaml:"pop_timeout"`
	Backoff     time.Duration `yaml:"backoff"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Validate validates the queue configuration.
func (c *QueueConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PopTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Backoff, validation.Required),
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
	)
}

// VaultConfig holds the optional Markdown vault bridge settings.
type VaultConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	UserID  string `yaml:"user_id"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.UserID, validation.When(c.Enabled, validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 5001,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Store: StoreConfig{
			Driver:  StoreDriverSQLite,
			Path:    "./synapse.db",
			Migrate: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  512,
		},
		Chunker: ChunkerConfig{
			Encoding:     "cl100k_base",
			BudgetTokens: 150,
		},
		Transcript: TranscriptConfig{
			Timeout:   10 * time.Second,
			CacheTTL:  2 * time.Hour,
			LocalSize: 256,
		},
		Usage: UsageConfig{
			DefaultTier: models.TierBasic,
			Limits: map[models.SubscriptionTier]int64{
				models.TierBasic:    100_000,
				models.TierAdvanced: 1_000_000,
				models.TierElite:    10_000_000,
			},
		},
		Queue: QueueConfig{
			PopTimeout:  time.Second,
			Backoff:     500 * time.Millisecond,
			MaxAttempts: 5,
		},
		Vault: VaultConfig{
			Path:   "./vault",
			UserID: "local",
		},
	}
}
