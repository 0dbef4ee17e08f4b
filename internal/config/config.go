// Package config loads the settings shared by the testbench commands. Values
// come from environment variables first; command-line flags bound with
// BindFlags override them.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/pflag"

	"github.com/vaadin/testbench-sub002/internal/crypto"
)

const (
	DefaultReferenceDir = "reference-screenshots"
	DefaultErrorDir     = "target/error-screenshots"
	DefaultTolerance    = 0.01
	DefaultMaxRetries   = 2
	DefaultRetryDelay   = 500 * time.Millisecond
	DefaultHighlight    = "#ff00ff"
	DefaultLogLevel     = "info"

	defaultAWSRegion = "auto"
)

// Config holds all testbench configuration.
type Config struct {
	// Comparison
	Tolerance       float64 // TESTBENCH_TOLERANCE, mean block difference in [0, 1]
	CursorDetection bool    // TESTBENCH_CURSOR_DETECTION

	// Retrying
	MaxRetries int           // TESTBENCH_MAX_RETRIES, screenshots taken before giving up
	RetryDelay time.Duration // TESTBENCH_RETRY_DELAY

	// Files
	ReferenceDir string // TESTBENCH_REFERENCE_DIR
	ErrorDir     string // TESTBENCH_ERROR_DIR
	Highlight    string // TESTBENCH_HIGHLIGHT, hex color of diff boxes

	// History ledger (disabled when HistoryDB is empty)
	HistoryDB  string // TESTBENCH_HISTORY_DB
	HistoryKey string // TESTBENCH_HISTORY_KEY, 64 hex characters
	// HistoryMasterKey derives HistoryKey when that is unset
	HistoryMasterKey string // TESTBENCH_HISTORY_MASTER_KEY, at least 32 bytes

	LogLevel string // TESTBENCH_LOG_LEVEL

	// Reference storage in S3 instead of ReferenceDir (--s3)
	UseS3              bool
	ReferencePrefix    string // TESTBENCH_REFERENCE_PREFIX
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load reads the configuration from environment variables. It does not
// validate; call Validate once flags have been applied.
func Load() *Config {
	cfg := &Config{}

	cfg.Tolerance = parseFloat64OrDefault("TESTBENCH_TOLERANCE", DefaultTolerance)
	cfg.CursorDetection = parseBoolOrDefault("TESTBENCH_CURSOR_DETECTION", false)

	cfg.MaxRetries = parseIntOrDefault("TESTBENCH_MAX_RETRIES", DefaultMaxRetries)
	cfg.RetryDelay = parseDurationOrDefault("TESTBENCH_RETRY_DELAY", DefaultRetryDelay)

	cfg.ReferenceDir = getEnvOrDefault("TESTBENCH_REFERENCE_DIR", DefaultReferenceDir)
	cfg.ErrorDir = getEnvOrDefault("TESTBENCH_ERROR_DIR", DefaultErrorDir)
	cfg.Highlight = getEnvOrDefault("TESTBENCH_HIGHLIGHT", DefaultHighlight)

	cfg.HistoryDB = getEnvOrDefault("TESTBENCH_HISTORY_DB", "")
	cfg.HistoryKey = getEnvOrDefault("TESTBENCH_HISTORY_KEY", "")
	cfg.HistoryMasterKey = getEnvOrDefault("TESTBENCH_HISTORY_MASTER_KEY", "")

	cfg.LogLevel = getEnvOrDefault("TESTBENCH_LOG_LEVEL", DefaultLogLevel)

	cfg.ReferencePrefix = getEnvOrDefault("TESTBENCH_REFERENCE_PREFIX", "")
	cfg.AWSEndpointS3 = getEnvOrDefault("AWS_ENDPOINT_URL_S3", "")
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultAWSRegion)
	cfg.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", "")
	cfg.AWSBucketName = getEnvOrDefault("BUCKET_NAME", "")

	return cfg
}

// BindFlags registers the command-line overrides on fs, using the current
// values as defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.Float64VarP(&c.Tolerance, "tolerance", "t", c.Tolerance, "Largest accepted mean RGB difference of a 16x16 block (0-1).")
	fs.BoolVar(&c.CursorDetection, "cursor", c.CursorDetection, "Ignore a blinking text cursor when it is the only difference.")
	fs.IntVarP(&c.MaxRetries, "retries", "r", c.MaxRetries, "Screenshots to take before reporting a mismatch.")
	fs.DurationVar(&c.RetryDelay, "retry-delay", c.RetryDelay, "Pause between screenshot attempts.")
	fs.StringVar(&c.ReferenceDir, "reference-dir", c.ReferenceDir, "Directory holding reference screenshots.")
	fs.StringVarP(&c.ErrorDir, "error-dir", "o", c.ErrorDir, "Directory for failing screenshots and diff images.")
	fs.StringVar(&c.Highlight, "highlight", c.Highlight, "Hex color used to box differing regions.")
	fs.StringVar(&c.HistoryDB, "history", c.HistoryDB, "SQLite file recording every comparison (disabled when empty).")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error).")
	fs.BoolVar(&c.UseS3, "s3", c.UseS3, "Read and write reference screenshots in S3 (BUCKET_NAME).")
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	var errs []string

	if c.Tolerance < 0 || c.Tolerance > 1 {
		errs = append(errs, fmt.Sprintf("TESTBENCH_TOLERANCE must be between 0 and 1, got %v", c.Tolerance))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, "TESTBENCH_MAX_RETRIES must be at least 1")
	}
	if c.RetryDelay < 0 {
		errs = append(errs, "TESTBENCH_RETRY_DELAY must not be negative")
	}
	if _, err := colorful.Hex(c.Highlight); err != nil {
		errs = append(errs, fmt.Sprintf("TESTBENCH_HIGHLIGHT must be a #rrggbb color, got %q", c.Highlight))
	}
	if c.ErrorDir == "" {
		errs = append(errs, "TESTBENCH_ERROR_DIR must not be empty")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("TESTBENCH_LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel))
	}

	if c.HistoryKey != "" && len(c.HistoryKey) != 64 {
		errs = append(errs, "TESTBENCH_HISTORY_KEY must be 64 hex characters (32 bytes)")
	}
	if c.HistoryMasterKey != "" && len(c.HistoryMasterKey) < crypto.MinMasterKeySize {
		errs = append(errs, fmt.Sprintf("TESTBENCH_HISTORY_MASTER_KEY must be at least %d bytes", crypto.MinMasterKeySize))
	}

	if c.UseS3 {
		if c.AWSBucketName == "" {
			errs = append(errs, "BUCKET_NAME is required with --s3")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required with --s3")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required with --s3")
		}
	} else if c.ReferenceDir == "" {
		errs = append(errs, "TESTBENCH_REFERENCE_DIR must not be empty")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	return nil
}

// PrintSummary writes a human-readable summary of the configuration to w.
func (c *Config) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "  Tolerance:  %v\n", c.Tolerance)
	fmt.Fprintf(w, "  Cursor:     %v\n", c.CursorDetection)
	fmt.Fprintf(w, "  Retries:    %d (delay %s)\n", c.MaxRetries, c.RetryDelay)

	if c.UseS3 {
		fmt.Fprintf(w, "  References: s3://%s/%s\n", c.AWSBucketName, c.ReferencePrefix)
	} else {
		fmt.Fprintf(w, "  References: %s\n", c.ReferenceDir)
	}
	fmt.Fprintf(w, "  Errors:     %s\n", c.ErrorDir)

	if c.HistoryDB != "" {
		fmt.Fprintf(w, "  History:    %s (encrypted: %v)\n", c.HistoryDB, c.HistoryKey != "" || c.HistoryMasterKey != "")
	}
}

// HistoryDBKey returns the history encryption key: HistoryKey when set,
// otherwise a key derived from HistoryMasterKey for the reference location,
// otherwise "" for an unencrypted ledger.
func (c *Config) HistoryDBKey() (string, error) {
	if c.HistoryKey != "" || c.HistoryMasterKey == "" {
		return c.HistoryKey, nil
	}
	scope := c.ReferenceDir
	if c.UseS3 {
		scope = "s3://" + c.AWSBucketName + "/" + c.ReferencePrefix
	}
	return crypto.DeriveHexKey([]byte(c.HistoryMasterKey), scope, 1)
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
