// Package main implements claimlens-query, which runs one report against a
// claims dataset and prints it as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/claimlens/claimlens/internal/config"
	"github.com/claimlens/claimlens/internal/dataset"
	"github.com/claimlens/claimlens/internal/query/filter"
	"github.com/claimlens/claimlens/internal/report"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to configuration file (YAML or JSON)")
		reportName = flag.String("report", "timeseries", "Report: timeseries, share, providers, products, groups")
		path       = flag.String("dataset", "", "Claims dataset path")
		format     = flag.String("format", "", "Dataset format: parquet, sqlite, postgres")
		dsn        = flag.String("dsn", "", "Postgres connection string")
		payer      = flag.Int64("payer", 0, "Restrict to one payer (pbm_id)")
		pretty     = flag.Bool("pretty", false, "Indent JSON output")

		product   = flag.String("product", "", "Product name")
		interval  = flag.String("interval", "", "Week, Month, Quarter or Year")
		groups    = flag.String("groups", "", "Comma-separated provider groups to plot")
		qty       = flag.Float64("qty", 0, "Quantity the unit costs are scaled to")
		scope     = flag.String("scope", "", "All Drugs or Selected Drug")
		specialty = flag.String("specialty", "", "All, Specialty or Non Specialty")
		brand     = flag.String("brand", "", "All, Brand or Generic")
		minClaims = flag.Int("min-claims", 0, "Minimum claims for a ranked group")
		rankBy    = flag.String("rank-by", "", "Ranking measure key or label")
		topN      = flag.Int("top-n", 0, "Groups shown before the tail is collapsed")
		from      = flag.String("from", "", "First date of service, YYYY-MM-DD")
		to        = flag.String("to", "", "Exclusive last date of service, YYYY-MM-DD")
	)
	flag.Parse()
	log.SetOutput(os.Stderr)

	cfg := config.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(*configFile); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	config.LoadFromEnv(cfg)
	if *path != "" {
		cfg.Dataset.Path = *path
	}
	if *format != "" {
		cfg.Dataset.Format = *format
	}
	if *dsn != "" {
		cfg.Dataset.DSN = *dsn
	}
	if isSet("payer") {
		cfg.Dataset.PayerID = payer
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	p := cfg.DefaultParams()
	var err error
	flag.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "product":
			p.Product = *product
		case "interval":
			p.Interval, err = filter.ParseInterval(*interval)
		case "groups":
			p.ProviderGroups = splitList(*groups)
		case "qty":
			p.Quantity = *qty
		case "scope":
			p.Scope, err = filter.ParseScope(*scope)
		case "specialty":
			p.Specialty, err = filter.ParseSpecialty(*specialty)
		case "brand":
			p.Brand, err = filter.ParseBrand(*brand)
		case "min-claims":
			p.MinClaims = *minClaims
		case "rank-by":
			p.RankBy, err = filter.ParseRankMeasure(*rankBy)
		case "top-n":
			p.TopN = *topN
		case "from":
			p.From, err = filter.ParseDate("from", *from)
		case "to":
			p.To, err = filter.ParseDate("to", *to)
		}
	})
	if err != nil {
		log.Fatalf("Invalid parameter: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := dataset.Open(ctx, cfg.Dataset)
	if err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}
	defer src.Close()

	result, err := run(ctx, report.NewService(src, nil), *reportName, p)
	if err != nil {
		log.Fatalf("Report %s failed: %v", *reportName, err)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
}

// run dispatches to the named report.
func run(ctx context.Context, svc *report.Service, name string, p filter.Params) (interface{}, error) {
	switch name {
	case "timeseries":
		return svc.TimeSeries(ctx, p)
	case "share":
		return svc.PercentOfTotal(ctx, p)
	case "providers":
		return svc.ProviderRanking(ctx, p)
	case "products":
		return svc.Products(ctx)
	case "groups":
		return svc.ProviderGroups(ctx, p.Product)
	default:
		return nil, fmt.Errorf("unknown report %q", name)
	}
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
