package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/claimlens/claimlens/internal/query/filter"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Dataset.Path != filepath.Join("data", "claims_clean.parquet") {
		t.Errorf("dataset path = %q", cfg.Dataset.Path)
	}

	p := cfg.DefaultParams()
	if p.Interval != filter.Month || p.Quantity != 60 || p.TopN != 10 {
		t.Errorf("default params = %+v", p)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad format", func(c *Config) { c.Dataset.Format = "csv" }},
		{"postgres without dsn", func(c *Config) { c.Dataset.Format = FormatPostgres }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"bad storage", func(c *Config) { c.Storage.Type = "gcs" }},
		{"bad interval", func(c *Config) { c.Report.Interval = "Daily" }},
		{"zero qty", func(c *Config) { c.Report.Quantity = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claimlens.yaml")
	content := `
data_dir: /srv/claimlens
http:
  addr: ":9000"
  write_timeout: 15s
dataset:
  format: sqlite
  path: extract.db
  payer_id: 42
report:
  interval: Week
  top_n: 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	cfg.Resolve()
	if cfg.HTTP.Addr != ":9000" || cfg.HTTP.WriteTimeout != 15*time.Second {
		t.Errorf("http = %+v", cfg.HTTP)
	}
	if cfg.Dataset.Path != "/srv/claimlens/extract.db" || cfg.Dataset.PayerID == nil || *cfg.Dataset.PayerID != 42 {
		t.Errorf("dataset = %+v", cfg.Dataset)
	}
	if cfg.Report.Interval != filter.Week || cfg.Report.TopN != 5 || cfg.Report.MinClaims != 10 {
		t.Errorf("report = %+v", cfg.Report)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromFileUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claimlens.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected unsupported format error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CLAIMLENS_HTTP_ADDR", ":7070")
	t.Setenv("CLAIMLENS_DATASET_FORMAT", "postgres")
	t.Setenv("CLAIMLENS_DATASET_DSN", "postgres://localhost/claims")
	t.Setenv("CLAIMLENS_DATASET_PAYER_ID", "7")
	t.Setenv("CLAIMLENS_REPORT_MIN_CLAIMS", "3")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	if cfg.HTTP.Addr != ":7070" || cfg.Dataset.Format != FormatPostgres || cfg.Report.MinClaims != 3 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.Dataset.PayerID == nil || *cfg.Dataset.PayerID != 7 {
		t.Errorf("payer id = %v", cfg.Dataset.PayerID)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
