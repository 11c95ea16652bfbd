// Package config centralizes process configuration for the three stage
// binaries. All tunables are sourced from command-line flags with
// environment-variable fallbacks (12-factor friendly); flags are defined
// first so `-help` shows every knob and its default.
//
// Typical usage:
//
//	cfg := config.Load() // reads os.Args and os.Environ
//
// For tests, prefer LoadFromArgs to keep them hermetic:
//
//	fs := flag.NewFlagSet("test", flag.ContinueOnError)
//	getenv := func(k string) string { return testEnv[k] }
//	cfg := config.LoadFromArgs(fs, getenv, []string{"-batch_size=10"})
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all process configuration. Fields are plain values so the
// struct can be copied freely after construction.
type Config struct {
	// IO: source CSVs and diagnostic logs.
	ReviewsCSV  string // reviews source file (stage 0)
	ProductsCSV string // product metadata source file (stage 0)
	LogDir      string // directory for the per-entity JSON failure logs

	// DB targets. Driver selects the adapter for every connection in the
	// process; DSNs name the three databases of the pipeline.
	DBDriver  string // "postgres", "sqlite" or "mssql"
	Stage1DSN string
	Stage2DSN string
	ADWDSN    string // warehouse; also hosts the lineage tables

	// Tunables.
	BatchSize      int           // rows per ingest chunk
	ConnRetries    int           // connection attempts before giving up
	ConnRetryDelay time.Duration // fixed delay between attempts
}

// Load reads configuration from os.Args and the process environment.
func Load() *Config {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	return LoadFromArgs(fs, os.Getenv, os.Args[1:])
}

// LoadFromArgs builds a Config by defining flags on fs, wiring each flag to
// an environment-variable fallback via getenv, and then parsing args.
//
// Precedence:
//  1. Environment values seed each flag's default.
//  2. Explicit CLI flags override the seeded defaults.
func LoadFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) *Config {
	cfg := &Config{}

	envOr := func(k, d string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return d
	}
	intEnvOr := func(k string, d int) int {
		if v := getenv(k); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
		return d
	}

	fs.StringVar(&cfg.ReviewsCSV, "reviews_csv", envOr("REVIEWS_CSV", "./data/reviews_Clothing_Shoes_and_Jewelry_5.csv"), "Path to reviews CSV")
	fs.StringVar(&cfg.ProductsCSV, "products_csv", envOr("PRODUCTS_CSV", "./data/metadata_category_clothing_shoes_and_jewelry_only.csv"), "Path to product metadata CSV")
	fs.StringVar(&cfg.LogDir, "log_dir", envOr("LOG_DIR", "./logs"), "Directory for JSON failure logs")

	fs.StringVar(&cfg.DBDriver, "db_driver", envOr("DB_DRIVER", "postgres"), "Database driver: 'postgres', 'sqlite' or 'mssql'")
	fs.StringVar(&cfg.Stage1DSN, "stage1_dsn", envOr("STAGE1_DSN", "postgres://user:password@db_stage1:5432/stage1"), "Stage 1 database DSN")
	fs.StringVar(&cfg.Stage2DSN, "stage2_dsn", envOr("STAGE2_DSN", "postgres://user:password@db_stage2:5432/stage2"), "Stage 2 database DSN")
	fs.StringVar(&cfg.ADWDSN, "adw_dsn", envOr("ADW_DSN", "postgres://user:password@db_adw:5432/adw"), "Warehouse (and lineage) database DSN")

	fs.IntVar(&cfg.BatchSize, "batch_size", intEnvOr("BATCH_SIZE", 1000), "Rows per ingest chunk")
	fs.IntVar(&cfg.ConnRetries, "conn_retries", intEnvOr("CONN_RETRIES", 5), "Connection attempts before giving up")
	retryDelaySec := fs.Int("conn_retry_delay", intEnvOr("CONN_RETRY_DELAY", 5), "Seconds between connection attempts")

	_ = fs.Parse(args)

	cfg.ConnRetryDelay = time.Duration(*retryDelaySec) * time.Second
	return cfg
}

// Validate reports obviously unusable configuration before any connection
// is attempted.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite", "mssql":
	default:
		return fmt.Errorf("config: unknown db_driver %q", c.DBDriver)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be > 0")
	}
	if c.ConnRetries <= 0 {
		return fmt.Errorf("config: conn_retries must be > 0")
	}
	return nil
}
