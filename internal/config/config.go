// Package config loads cv-screener settings from an optional YAML file,
// CV_SCREENER_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/spigell/cv-screener/internal/dispatch"
	"github.com/spigell/cv-screener/internal/extract"
	"github.com/spigell/cv-screener/internal/recruiting"
	"github.com/spigell/cv-screener/internal/secrets"
)

const (
	EnvPrefix   = "CV_SCREENER"
	DefaultName = "cv-screener"

	DefaultPresignTTL = 15 * time.Minute
)

type Config struct {
	AWS               AWSConfig      `mapstructure:"aws"`
	Tables            TablesConfig   `mapstructure:"tables"`
	Buckets           BucketsConfig  `mapstructure:"buckets"`
	CVPrefix          string         `mapstructure:"cv-prefix" validate:"required"`
	ProcessorFunction string         `mapstructure:"processor-function" validate:"required"`
	DispatchFunction  string         `mapstructure:"dispatch-function" validate:"required"`
	Dispatch          DispatchConfig `mapstructure:"dispatch"`
	Textract          TextractConfig `mapstructure:"textract"`
	AI                AIConfig       `mapstructure:"ai"`
	HTTP              HTTPConfig     `mapstructure:"http"`
	PresignTTL        time.Duration  `mapstructure:"presign-ttl" validate:"gt=0"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

type TablesConfig struct {
	JobPostings  string `mapstructure:"job-postings" validate:"required"`
	Applications string `mapstructure:"applications" validate:"required"`
	Results      string `mapstructure:"results" validate:"required"`
}

type BucketsConfig struct {
	CVs     string `mapstructure:"cvs" validate:"required"`
	Results string `mapstructure:"results" validate:"required"`
}

type DispatchConfig struct {
	dispatch.Config   `mapstructure:",squash"`
	AllowedExtensions []string `mapstructure:"allowed-extensions"`
}

type TextractConfig struct {
	PollInterval time.Duration `mapstructure:"poll-interval" validate:"gt=0"`
}

type AIConfig struct {
	MinimumFitScore float64      `mapstructure:"minimum-fit-score" validate:"gte=0,lte=100"`
	Gemini          GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries" validate:"gte=0"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

// ResolveAPIKey returns the Gemini key from the key file, the inline value or
// GEMINI_API_KEY, in that order.
func (g GeminiConfig) ResolveAPIKey() (string, error) {
	return secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: g.APIKey,
		File:  g.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
}

type HTTPConfig struct {
	AllowedOrigin string `mapstructure:"allowed-origin"`
	ListenAddr    string `mapstructure:"listen-addr" validate:"required"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	d := dispatch.DefaultConfig()

	// Keys without a default are invisible to Unmarshal's env lookup.
	v.SetDefault("aws.region", "")
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("tables.job-postings", "job-postings")
	v.SetDefault("tables.applications", "job-applications")
	v.SetDefault("tables.results", "analysis-results")
	v.SetDefault("buckets.cvs", "cv-screener-uploads")
	v.SetDefault("buckets.results", "cv-screener-results")
	v.SetDefault("cv-prefix", recruiting.DefaultUploadPrefix)
	v.SetDefault("processor-function", "cv-processor")
	v.SetDefault("dispatch-function", "dispatch-cvs")
	v.SetDefault("dispatch.batch-size", d.BatchSize)
	v.SetDefault("dispatch.inter-batch-delay", d.InterBatchDelay)
	v.SetDefault("dispatch.final-delay", d.FinalDelay)
	v.SetDefault("dispatch.allowed-extensions", []string{})
	v.SetDefault("textract.poll-interval", extract.DefaultPollInterval)
	v.SetDefault("ai.minimum-fit-score", 0)
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.max-log-length", 200)
	v.SetDefault("http.allowed-origin", "http://localhost:3000")
	v.SetDefault("http.listen-addr", ":8080")
	v.SetDefault("presign-ttl", DefaultPresignTTL)
}

// Load reads the configuration. A missing config file is not an error unless
// file was set explicitly.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(DefaultName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.Dispatch.UploadPrefix = cfg.CVPrefix

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return c.Dispatch.Validate()
}
