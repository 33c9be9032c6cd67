package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides. Leaf names are split on word
// boundaries and never read unprefixed, e.g. YF_HTTP_REQUEST_TIMEOUT_SEC.
const EnvPrefix = "YF"

type HTTP struct {
	BaseURL              string  `json:"base_url" yaml:"base_url" split_words:"true" validate:"required,url"`
	RequestTimeoutSec    int     `json:"request_timeout_sec" yaml:"request_timeout_sec" split_words:"true" validate:"gte=1"`
	ProxyURL             string  `json:"proxy_url" yaml:"proxy_url" split_words:"true" validate:"omitempty,url"`
	UserAgent            string  `json:"user_agent" yaml:"user_agent" split_words:"true" validate:"required"`
	MaxRequestsPerSecond float64 `json:"max_requests_per_sec" yaml:"max_requests_per_sec" split_words:"true" validate:"gte=0"`
	Burst                int     `json:"burst" yaml:"burst" split_words:"true" validate:"gte=1"`
	MinRequestIntervalMS int     `json:"min_request_interval_ms" yaml:"min_request_interval_ms" split_words:"true" validate:"gte=0"`
	MaxBodyBytes         int64   `json:"max_body_bytes" yaml:"max_body_bytes" split_words:"true" validate:"gte=1024"`
	// ISINLookupURL is the origin of the symbol-to-ISIN search service.
	ISINLookupURL        string  `json:"isin_lookup_url" yaml:"isin_lookup_url" split_words:"true" validate:"required,url"`
}

type Session struct {
	// Strategy is basic, consent, or auto (basic with consent fallback).
	Strategy           string `json:"strategy" yaml:"strategy" split_words:"true" validate:"oneof=basic consent auto"`
	CookieURL          string `json:"cookie_url" yaml:"cookie_url" split_words:"true" validate:"required,url"`
	CrumbURL           string `json:"crumb_url" yaml:"crumb_url" split_words:"true" validate:"required,url"`
	ConsentURL         string `json:"consent_url" yaml:"consent_url" split_words:"true" validate:"required,url"`
	CollectConsentURL  string `json:"collect_consent_url" yaml:"collect_consent_url" split_words:"true" validate:"required,url"`
	BootstrapAttempts  int    `json:"bootstrap_attempts" yaml:"bootstrap_attempts" split_words:"true" validate:"gte=1,lte=10"`
	BootstrapBackoffMS int    `json:"bootstrap_backoff_ms" yaml:"bootstrap_backoff_ms" split_words:"true" validate:"gte=0"`
}

type Retry struct {
	MaxAttempts       int     `json:"max_attempts" yaml:"max_attempts" split_words:"true" validate:"gte=1,lte=20"`
	BackoffBaseMS     int     `json:"backoff_base_ms" yaml:"backoff_base_ms" split_words:"true" validate:"gte=0"`
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier" split_words:"true" validate:"gte=1"`
	BackoffCapMS      int     `json:"backoff_cap_ms" yaml:"backoff_cap_ms" split_words:"true" validate:"gtefield=BackoffBaseMS"`
	MaxTotalWaitMS    int     `json:"max_total_wait_ms" yaml:"max_total_wait_ms" split_words:"true" validate:"gte=0"`
}

type Cache struct {
	// Mode is manual (entries live until invalidated) or ttl.
	Mode       string `json:"mode" yaml:"mode" split_words:"true" validate:"oneof=manual ttl"`
	TTLSec     int    `json:"ttl_sec" yaml:"ttl_sec" split_words:"true" validate:"required_if=Mode ttl,gte=0"`
	MaxSymbols int    `json:"max_symbols" yaml:"max_symbols" split_words:"true" validate:"gte=0"`
}

type Normalize struct {
	MalformedThreshold float64 `json:"malformed_threshold" yaml:"malformed_threshold" split_words:"true" validate:"gte=0,lte=1"`
	ModuleChunkSize    int     `json:"module_chunk_size" yaml:"module_chunk_size" split_words:"true" validate:"gte=1"`
}

type Locale struct {
	Lang   string `json:"lang" yaml:"lang" split_words:"true" validate:"required"`
	Region string `json:"region" yaml:"region" split_words:"true" validate:"required,len=2"`
}

type Log struct {
	Level  string `json:"level" yaml:"level" split_words:"true" validate:"omitempty,oneof=trace debug info warn error disabled"`
	Pretty bool   `json:"pretty" yaml:"pretty" split_words:"true"`
}

type Config struct {
	HTTP      HTTP      `json:"http" yaml:"http" envconfig:"HTTP"`
	Session   Session   `json:"session" yaml:"session" envconfig:"SESSION"`
	Retry     Retry     `json:"retry" yaml:"retry" envconfig:"RETRY"`
	Cache     Cache     `json:"cache" yaml:"cache" envconfig:"CACHE"`
	Normalize Normalize `json:"normalize" yaml:"normalize" envconfig:"NORMALIZE"`
	Locale    Locale    `json:"locale" yaml:"locale" envconfig:"LOCALE"`
	Log       Log       `json:"log" yaml:"log" envconfig:"LOG"`
}

func Default() Config {
	return Config{
		HTTP: HTTP{
			BaseURL:              "https://query2.finance.yahoo.com",
			RequestTimeoutSec:    10,
			UserAgent:            "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			MaxRequestsPerSecond: 2,
			Burst:                4,
			MaxBodyBytes:         32 << 20,
			ISINLookupURL:        "https://markets.businessinsider.com",
		},
		Session: Session{
			Strategy:           "auto",
			CookieURL:          "https://fc.yahoo.com",
			CrumbURL:           "https://query1.finance.yahoo.com/v1/test/getcrumb",
			ConsentURL:         "https://guce.yahoo.com/consent",
			CollectConsentURL:  "https://consent.yahoo.com/v2/collectConsent",
			BootstrapAttempts:  3,
			BootstrapBackoffMS: 250,
		},
		Retry: Retry{
			MaxAttempts:       3,
			BackoffBaseMS:     500,
			BackoffMultiplier: 2,
			BackoffCapMS:      10_000,
			MaxTotalWaitMS:    30_000,
		},
		Cache: Cache{
			Mode:   "manual",
			TTLSec: 300,
		},
		Normalize: Normalize{
			MalformedThreshold: 0.25,
			ModuleChunkSize:    8,
		},
		Locale: Locale{Lang: "en-US", Region: "US"},
		Log:    Log{Level: "info"},
	}
}

// Load reads a JSON or YAML config from path on top of the defaults. If path is empty,
// config.json, config.yaml and config.yml are tried in that order; a missing file is not an
// error. Variables from the env files (default .env, existing variables win) and then
// YF_* environment variables override file values. The result is validated.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decodeFile(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	cfg.Session.Strategy = strings.ToLower(cfg.Session.Strategy)
	cfg.Cache.Mode = strings.ToLower(cfg.Cache.Mode)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeFile(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (h HTTP) RequestTimeout() time.Duration     { return time.Duration(h.RequestTimeoutSec) * time.Second }
func (h HTTP) MinRequestInterval() time.Duration { return ms(h.MinRequestIntervalMS) }

func (s Session) BootstrapBackoff() time.Duration { return ms(s.BootstrapBackoffMS) }

func (r Retry) BackoffBase() time.Duration  { return ms(r.BackoffBaseMS) }
func (r Retry) BackoffCap() time.Duration   { return ms(r.BackoffCapMS) }
func (r Retry) MaxTotalWait() time.Duration { return ms(r.MaxTotalWaitMS) }

// TTL returns 0 in manual mode.
func (c Cache) TTL() time.Duration {
	if c.Mode != "ttl" {
		return 0
	}
	return time.Duration(c.TTLSec) * time.Second
}
