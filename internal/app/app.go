// Package app wires configuration, the claims dataset and the report servers
// into one process lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"

	grpcapi "github.com/claimlens/claimlens/internal/api/grpc"
	httpapi "github.com/claimlens/claimlens/internal/api/http"
	"github.com/claimlens/claimlens/internal/config"
	"github.com/claimlens/claimlens/internal/dataset"
	clerrors "github.com/claimlens/claimlens/internal/errors"
	"github.com/claimlens/claimlens/internal/observability"
	"github.com/claimlens/claimlens/internal/report"
	"github.com/claimlens/claimlens/internal/server"
	"github.com/claimlens/claimlens/internal/storage"
)

// statsWindow is how long an idle pipeline stays in /v1/stats.
const statsWindow = 24 * time.Hour

// App manages the claimlens service lifecycle.
type App struct {
	cfg *config.Config

	storage     storage.DatasetStore
	source      dataset.Source
	fingerprint string
	stats       *observability.PipelineStats
	service     *report.Service
	shutdown    *server.ShutdownManager

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg}, nil
}

// Start opens the dataset and starts the configured servers. A missing
// dataset or a schema mismatch fails Start.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())

	if err := a.openDataset(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to open dataset: %w", err)
	}

	a.stats = observability.NewPipelineStats(statsWindow)
	a.service = report.NewService(a.source, a.stats)

	if err := a.startHTTP(); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
	}

	a.wg.Add(1)
	go a.pruneStats(ctx)

	log.Printf("claimlens started: dataset=%s fingerprint=%s", a.source.Describe(), a.fingerprint)
	return nil
}

// openDataset fetches the dataset from object storage when configured,
// opens it and computes its fingerprint. A fetched file must match the
// fingerprint recorded when it was published.
func (a *App) openDataset(ctx context.Context) error {
	ds := a.cfg.Dataset

	var published string
	if ds.ObjectKey != "" {
		store, err := storage.New(ctx, a.cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.storage = store
		log.Printf("Storage initialized: type=%s", a.cfg.Storage.Type)
		if a.cfg.Storage.Type == "s3" {
			log.Printf("S3 Config: Bucket=%s, Region=%s, Endpoint=%s",
				a.cfg.Storage.S3.Bucket, a.cfg.Storage.S3.Region, a.cfg.Storage.S3.Endpoint)
		}

		start := time.Now()
		target, err := storage.Resolve(ctx, a.storage, ds.ObjectKey)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", ds.ObjectKey, err)
		}
		info, err := a.storage.Fetch(ctx, target.Key, ds.Path)
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", target.Key, err)
		}
		published = info.Fingerprint
		log.Printf("Fetched dataset %s (%d bytes) to %s in %v", info.Key, info.Size, ds.Path, time.Since(start))
	}

	if ds.Format == config.FormatPostgres {
		a.fingerprint = dataset.SessionFingerprint(ds.DSN, time.Now())
	} else {
		fp, err := dataset.Fingerprint(ds.Path)
		if err != nil {
			return clerrors.NewDatasetError(clerrors.CodeOpenFailed, "fingerprint "+ds.Path, err)
		}
		if published != "" && published != fp {
			return clerrors.NewStorageError(clerrors.CodeDownloadFailed,
				fmt.Sprintf("fetched dataset fingerprint %s does not match published %s", fp, published), nil)
		}
		a.fingerprint = fp
	}

	src, err := dataset.Open(ctx, ds)
	if err != nil {
		return err
	}
	a.source = src
	a.shutdown.RegisterCloser("dataset", src)
	log.Printf("Dataset opened: %s (%d columns)", src.Describe(), len(src.Columns()))
	return nil
}

// Handler returns the HTTP handler of the report API.
func (a *App) Handler() http.Handler {
	h := httpapi.NewReportHandler(a.service, httpapi.Options{
		Defaults:    a.cfg.DefaultParams(),
		Fingerprint: a.fingerprint,
		Format:      a.cfg.Dataset.Format,
		Stats:       a.stats,
	})

	mux := http.NewServeMux()
	h.Register(mux, httpapi.ChainMiddleware(
		server.ShutdownMiddleware(a.shutdown),
		httpapi.RequestIDMiddleware,
		httpapi.RecoveryMiddleware,
		httpapi.CorrelationIDMiddleware,
		httpapi.ContentTypeMiddleware,
	))
	return mux
}

func (a *App) startHTTP() error {
	lis, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	a.httpListener = lis
	a.httpServer = &http.Server{
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.RegisterCloser("http", server.HTTPServerCloser(a.httpServer))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("HTTP server listening on %s", lis.Addr())
		if err := a.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	return nil
}

func (a *App) startGRPC() error {
	lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return err
	}
	a.grpcListener = lis
	a.grpcServer = grpc.NewServer()
	grpcapi.RegisterReportServiceServer(a.grpcServer, grpcapi.NewReportServer(a.service, a.cfg.DefaultParams()))
	a.shutdown.RegisterCloser("grpc", server.CloserFunc(func() error {
		a.grpcServer.GracefulStop()
		return nil
	}))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("gRPC server listening on %s", lis.Addr())
		if err := a.grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()
	return nil
}

func (a *App) pruneStats(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.stats.Prune()
		}
	}
}

// HTTPAddr returns the bound HTTP address, or "" before Start.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// Fingerprint returns the dataset fingerprint.
func (a *App) Fingerprint() string {
	return a.fingerprint
}

// Stop drains in-flight requests, stops the servers and closes the dataset.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("Initiating graceful shutdown...")
	if a.cancel != nil {
		a.cancel()
	}

	err := a.shutdown.Shutdown(ctx, "stop requested")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("Shutdown timeout, some goroutines may not have finished")
	}

	log.Printf("claimlens stopped")
	return err
}

// cleanup releases resources after a failed Start.
func (a *App) cleanup() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.shutdown != nil {
		a.shutdown.Shutdown(context.Background(), "start failed")
	}
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

// WaitForShutdown blocks until a termination signal arrives or ctx is done,
// then shuts down.
func (a *App) WaitForShutdown(ctx context.Context) error {
	err := a.shutdown.ListenForSignals(ctx)
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if stopErr := a.Stop(stopCtx); err == nil {
		err = stopErr
	}
	return err
}
