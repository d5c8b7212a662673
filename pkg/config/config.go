// Package config loads titlevault settings from the environment and an
// optional YAML deployment profile.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/wallet"
)

const (
	LedgerModeLocal = "local"
	LedgerModeEVM   = "evm"
)

// Config holds server configuration.
type Config struct {
	Port        string
	LogLevel    string
	LogFormat   string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LedgerMode      string
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ContractVersion string
	LedgerTimeout   time.Duration
	LedgerRPS       float64

	TransferCodeTTL time.Duration
	SyncInterval    time.Duration

	ContentStore    string
	ContentDir      string
	PinataAPIKey    string
	PinataAPISecret string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	GCSBucket       string

	OTelEnabled  bool
	OTelEndpoint string

	ProfilePath string
	AuditFile   string

	problems []string
}

// Load loads configuration from environment variables. Malformed values
// fall back to their defaults and are reported by Validate.
func Load() *Config {
	c := &Config{
		Port:        env("PORT", "8080"),
		LogLevel:    env("LOG_LEVEL", "INFO"),
		LogFormat:   env("LOG_FORMAT", "json"),
		DatabaseURL: env("DATABASE_URL", "memory"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		LedgerMode:      strings.ToLower(env("LEDGER_MODE", LedgerModeLocal)),
		RPCURL:          env("BLOCKCHAIN_RPC_URL", "http://127.0.0.1:8545"),
		ContractAddress: strings.TrimSpace(os.Getenv("CONTRACT_ADDRESS")),
		PrivateKey:      strings.TrimSpace(os.Getenv("BLOCKCHAIN_PRIVATE_KEY")),
		ContractVersion: os.Getenv("LEDGER_CONTRACT_VERSION"),

		ContentStore:    strings.ToLower(env("CONTENT_STORE", "fs")),
		ContentDir:      env("CONTENT_DIR", "data/content"),
		PinataAPIKey:    os.Getenv("PINATA_API_KEY"),
		PinataAPISecret: os.Getenv("PINATA_API_SECRET"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Region:        env("S3_REGION", os.Getenv("AWS_REGION")),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		GCSBucket:       os.Getenv("GCS_BUCKET"),

		OTelEndpoint: env("OTEL_ENDPOINT", "localhost:4317"),

		ProfilePath: os.Getenv("TITLEVAULT_PROFILE"),
		AuditFile:   os.Getenv("AUDIT_FILE"),
	}

	c.RedisDB = c.intEnv("REDIS_DB", 0)
	c.LedgerTimeout = c.durationEnv("LEDGER_TIMEOUT", 15*time.Second)
	c.LedgerRPS = c.floatEnv("LEDGER_RPS", 10)
	c.TransferCodeTTL = c.durationEnv("TRANSFER_CODE_TTL", 10*time.Minute)
	c.SyncInterval = c.durationEnv("SYNC_INTERVAL", time.Minute)
	c.OTelEnabled = c.boolEnv("OTEL_ENABLED", false)
	return c
}

// Validate reports every configuration problem at once. A missing signer key
// is not a problem here; ledger pushes report it per call.
func (c *Config) Validate() error {
	errs := make([]error, 0, len(c.problems))
	for _, p := range c.problems {
		errs = append(errs, errors.New(p))
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be numeric, got %q", c.Port))
	}

	switch c.LedgerMode {
	case LedgerModeLocal:
	case LedgerModeEVM:
		if c.RPCURL == "" {
			errs = append(errs, errors.New("BLOCKCHAIN_RPC_URL is required when LEDGER_MODE=evm"))
		}
		if !wallet.Valid(c.ContractAddress) || !wallet.IsReal(c.ContractAddress) {
			errs = append(errs, fmt.Errorf("CONTRACT_ADDRESS is missing or invalid: %q", c.ContractAddress))
		}
	default:
		errs = append(errs, fmt.Errorf("LEDGER_MODE must be %q or %q, got %q", LedgerModeLocal, LedgerModeEVM, c.LedgerMode))
	}

	switch c.ContentStore {
	case "fs":
	case "ipfs":
		if c.PinataAPIKey == "" || c.PinataAPISecret == "" {
			errs = append(errs, errors.New("PINATA_API_KEY and PINATA_API_SECRET are required when CONTENT_STORE=ipfs"))
		}
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when CONTENT_STORE=s3"))
		}
	case "gcs":
		if c.GCSBucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET is required when CONTENT_STORE=gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("CONTENT_STORE must be one of ipfs, s3, gcs, fs; got %q", c.ContentStore))
	}

	if c.TransferCodeTTL <= 0 {
		errs = append(errs, errors.New("TRANSFER_CODE_TTL must be positive"))
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, errors.New("SYNC_INTERVAL must be positive"))
	}
	if c.LedgerRPS <= 0 {
		errs = append(errs, errors.New("LEDGER_RPS must be positive"))
	}
	return errors.Join(errs...)
}

// SignerConfigured reports whether a ledger signing key is present.
func (c *Config) SignerConfigured() bool {
	return c.PrivateKey != ""
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (c *Config) durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}

func (c *Config) intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return n
}

func (c *Config) floatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return f
}

func (c *Config) boolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return b
}
