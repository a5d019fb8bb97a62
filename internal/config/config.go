// Package config provides unified configuration for the claimlens services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/claimlens/claimlens/internal/query/filter"
)

// Dataset formats.
const (
	FormatParquet  = "parquet"
	FormatSQLite   = "sqlite"
	FormatPostgres = "postgres"
)

// Config holds the unified configuration for the claimlens services.
type Config struct {
	// DataDir is the base directory for local data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Dataset configuration
	Dataset DatasetConfig `json:"dataset" yaml:"dataset"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Report defaults
	Report ReportConfig `json:"report" yaml:"report"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP address of the report API
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DatasetConfig locates the claims dataset.
type DatasetConfig struct {
	// Path is the parquet or SQLite file. Relative paths resolve against DataDir.
	Path string `json:"path" yaml:"path"`

	// Format is parquet, sqlite or postgres
	Format string `json:"format" yaml:"format"`

	// DSN is the connection string for the postgres format
	DSN string `json:"dsn" yaml:"dsn"`

	// PayerID restricts every report to one payer when set
	PayerID *int64 `json:"payer_id,omitempty" yaml:"payer_id,omitempty"`

	// ObjectKey is the storage object fetched to Path at startup. A key
	// ending in "/" selects the newest object under that prefix. Empty means
	// the file is already local.
	ObjectKey string `json:"object_key" yaml:"object_key"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// ReportConfig holds the defaults applied to request parameters.
type ReportConfig struct {
	Product   string          `json:"product" yaml:"product"`
	Interval  filter.Interval `json:"interval" yaml:"interval"`
	Quantity  float64         `json:"qty" yaml:"qty"`
	MinClaims int             `json:"min_claims" yaml:"min_claims"`
	TopN      int             `json:"top_n" yaml:"top_n"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: false,
		},
		Dataset: DatasetConfig{
			Path:   "claims_clean.parquet",
			Format: FormatParquet,
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
		Report: ReportConfig{
			Product:   "Atorvastatin Calcium Oral Tablet 20 MG",
			Interval:  filter.Month,
			Quantity:  60,
			MinClaims: 10,
			TopN:      10,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}

	// Resolve storage path
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}

	// Resolve dataset path
	if c.Dataset.Format != FormatPostgres && c.Dataset.Path != "" && !filepath.IsAbs(c.Dataset.Path) {
		c.Dataset.Path = filepath.Join(c.DataDir, c.Dataset.Path)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Dataset.Format {
	case FormatParquet, FormatSQLite:
		if c.Dataset.Path == "" {
			return fmt.Errorf("dataset.path is required for format %s", c.Dataset.Format)
		}
	case FormatPostgres:
		if c.Dataset.DSN == "" {
			return fmt.Errorf("dataset.dsn is required for format postgres")
		}
	default:
		return fmt.Errorf("invalid dataset format: %s (must be parquet, sqlite, or postgres)", c.Dataset.Format)
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if _, err := filter.ParseInterval(string(c.Report.Interval)); err != nil {
		return fmt.Errorf("report.interval: %w", err)
	}
	if c.Report.Quantity <= 0 {
		return fmt.Errorf("report.qty must be positive, got %v", c.Report.Quantity)
	}
	if c.Report.MinClaims < 1 || c.Report.TopN < 1 {
		return fmt.Errorf("report.min_claims and report.top_n must be at least 1")
	}

	return nil
}

// DefaultParams returns the report parameter defaults from configuration.
func (c *Config) DefaultParams() filter.Params {
	p := filter.DefaultParams()
	p.Product = c.Report.Product
	p.Interval = c.Report.Interval
	p.Quantity = c.Report.Quantity
	p.MinClaims = c.Report.MinClaims
	p.TopN = c.Report.TopN
	return p
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the CLAIMLENS_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CLAIMLENS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// HTTP configuration
	if v := os.Getenv("CLAIMLENS_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("CLAIMLENS_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.WriteTimeout = d
		}
	}

	// gRPC configuration
	if v := os.Getenv("CLAIMLENS_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("CLAIMLENS_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	// Dataset configuration
	if v := os.Getenv("CLAIMLENS_DATASET_PATH"); v != "" {
		cfg.Dataset.Path = v
	}
	if v := os.Getenv("CLAIMLENS_DATASET_FORMAT"); v != "" {
		cfg.Dataset.Format = v
	}
	if v := os.Getenv("CLAIMLENS_DATASET_DSN"); v != "" {
		cfg.Dataset.DSN = v
	}
	if v := os.Getenv("CLAIMLENS_DATASET_PAYER_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Dataset.PayerID = &id
		}
	}
	if v := os.Getenv("CLAIMLENS_DATASET_OBJECT_KEY"); v != "" {
		cfg.Dataset.ObjectKey = v
	}

	// Storage configuration
	if v := os.Getenv("CLAIMLENS_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("CLAIMLENS_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("CLAIMLENS_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("CLAIMLENS_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("CLAIMLENS_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	// Report defaults
	if v := os.Getenv("CLAIMLENS_REPORT_PRODUCT"); v != "" {
		cfg.Report.Product = v
	}
	if v := os.Getenv("CLAIMLENS_REPORT_MIN_CLAIMS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Report.MinClaims)
	}
	if v := os.Getenv("CLAIMLENS_REPORT_TOP_N"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Report.TopN)
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	if c.Dataset.Format != FormatPostgres && c.Dataset.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Dataset.Path))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
