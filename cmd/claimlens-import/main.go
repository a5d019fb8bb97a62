// Package main implements claimlens-import, which converts a claims CSV
// export into the dataset formats the report server reads and optionally
// publishes the result to object storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claimlens/claimlens/internal/config"
	"github.com/claimlens/claimlens/internal/dataset"
	"github.com/claimlens/claimlens/internal/storage"
)

// Config holds the import options.
type Config struct {
	ConfigFile  string
	In          string
	Out         string
	SQLitePath  string
	PostgresDSN string
	UploadKey   string
}

func main() {
	cfg := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Import failed: %v", err)
	}
}

func run(ctx context.Context, cfg Config) error {
	start := time.Now()
	f, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.In, err)
	}
	rows, err := dataset.ReadCSV(f)
	f.Close()
	if err != nil {
		return err
	}
	log.Printf("Read %d claims from %s in %v", len(rows), cfg.In, time.Since(start))

	if err := dataset.WriteParquet(cfg.Out, rows); err != nil {
		return err
	}
	fp, err := dataset.Fingerprint(cfg.Out)
	if err != nil {
		return err
	}
	log.Printf("Wrote %s (fingerprint %s)", cfg.Out, fp)

	if cfg.SQLitePath != "" {
		if err := dataset.WriteSQLite(ctx, cfg.SQLitePath, rows); err != nil {
			return err
		}
		log.Printf("Wrote %s", cfg.SQLitePath)
	}

	if cfg.PostgresDSN != "" {
		n, err := dataset.LoadPostgres(ctx, cfg.PostgresDSN, rows)
		if err != nil {
			return err
		}
		log.Printf("Loaded %d claims into postgres", n)
	}

	if cfg.UploadKey != "" {
		appCfg := config.DefaultConfig()
		if cfg.ConfigFile != "" {
			if appCfg, err = config.LoadFromFile(cfg.ConfigFile); err != nil {
				return err
			}
		}
		config.LoadFromEnv(appCfg)
		appCfg.Resolve()

		store, err := storage.New(ctx, appCfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := store.Publish(ctx, cfg.Out, cfg.UploadKey, fp); err != nil {
			return err
		}
		log.Printf("Published %s to %s storage as %s", cfg.Out, appCfg.Storage.Type, cfg.UploadKey)
	}
	return nil
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.ConfigFile, "config", "", "Configuration file with the storage section (for -upload)")
	flag.StringVar(&cfg.In, "in", "", "Claims CSV export")
	flag.StringVar(&cfg.Out, "out", "claims_clean.parquet", "Parquet output path")
	flag.StringVar(&cfg.SQLitePath, "sqlite", "", "Also write a SQLite database")
	flag.StringVar(&cfg.PostgresDSN, "pg", "", "Also load the claims table into postgres")
	flag.StringVar(&cfg.UploadKey, "upload", "", "Publish the parquet file to object storage under this key")

	flag.Parse()

	if cfg.In == "" {
		fmt.Fprintf(os.Stderr, "Usage: claimlens-import -in claims.csv [-out claims.parquet] [-sqlite claims.db] [-pg dsn] [-upload key]\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	return cfg
}
