// Package main implements the claimlens report server. It serves the report
// API over HTTP and, when enabled, gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/claimlens/claimlens/internal/app"
	"github.com/claimlens/claimlens/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

// flags holds the command line overrides.
type flags struct {
	configFile string
	dataDir    string
	httpAddr   string
	grpcAddr   string
	dataset    string
	format     string
	objectKey  string
	enableGRPC bool
}

func main() {
	var (
		f           flags
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&f.dataDir, "data-dir", "", "Base directory for data files")
	flag.StringVar(&f.httpAddr, "http-addr", "", "HTTP address of the report API")
	flag.StringVar(&f.grpcAddr, "grpc-addr", "", "gRPC server address")
	flag.BoolVar(&f.enableGRPC, "grpc", false, "Enable the gRPC report service")
	flag.StringVar(&f.dataset, "dataset", "", "Claims dataset path (parquet or sqlite)")
	flag.StringVar(&f.format, "format", "", "Dataset format: parquet, sqlite, postgres")
	flag.StringVar(&f.objectKey, "object-key", "", "Fetch the dataset from object storage at startup")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "claimlens - pharmacy claims report server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: claimlens [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  claimlens --dataset /data/claims_clean.parquet\n")
		fmt.Fprintf(os.Stderr, "  claimlens --config /etc/claimlens/config.yaml --grpc\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  CLAIMLENS_DATA_DIR         Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  CLAIMLENS_HTTP_ADDR        HTTP address\n")
		fmt.Fprintf(os.Stderr, "  CLAIMLENS_DATASET_PATH     Claims dataset path\n")
		fmt.Fprintf(os.Stderr, "  CLAIMLENS_DATASET_FORMAT   Dataset format\n")
		fmt.Fprintf(os.Stderr, "  CLAIMLENS_STORAGE_TYPE     Storage type (local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("claimlens version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig applies the config file, then the environment, then flags.
func loadConfig(f flags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	config.LoadFromEnv(cfg)

	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.httpAddr != "" {
		cfg.HTTP.Addr = f.httpAddr
	}
	if f.grpcAddr != "" {
		cfg.GRPC.Addr = f.grpcAddr
	}
	if f.enableGRPC {
		cfg.GRPC.Enabled = true
	}
	if f.dataset != "" {
		cfg.Dataset.Path = f.dataset
	}
	if f.format != "" {
		cfg.Dataset.Format = f.format
	}
	if f.objectKey != "" {
		cfg.Dataset.ObjectKey = f.objectKey
	}
	return cfg, nil
}

// printBanner logs the configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("claimlens %s (commit: %s)", version, commit)
	log.Printf("Configuration:")
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Dataset:  %s (%s)", cfg.Dataset.Path, cfg.Dataset.Format)
	if cfg.Dataset.ObjectKey != "" {
		log.Printf("  Fetch:    %s from %s storage", cfg.Dataset.ObjectKey, cfg.Storage.Type)
	}
	if cfg.Dataset.PayerID != nil {
		log.Printf("  Payer:    %d", *cfg.Dataset.PayerID)
	}
	log.Printf("  HTTP:     %s", cfg.HTTP.Addr)
	if cfg.GRPC.Enabled {
		log.Printf("  gRPC:     %s", cfg.GRPC.Addr)
	}
	log.Printf("  Defaults: product=%q interval=%s qty=%v min_claims=%d top_n=%d",
		cfg.Report.Product, cfg.Report.Interval, cfg.Report.Quantity, cfg.Report.MinClaims, cfg.Report.TopN)
}
