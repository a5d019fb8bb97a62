// Package storage publishes claims datasets to object storage and fetches
// them back onto local disk for serving.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/claimlens/claimlens/internal/config"
	clerrors "github.com/claimlens/claimlens/internal/errors"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
)

// partSuffix marks a file that is still being written.
const partSuffix = ".part"

// ObjectInfo describes a published dataset.
type ObjectInfo struct {
	Key      string
	Size     int64
	Modified time.Time
	// Fingerprint is the content fingerprint recorded at publish time, or
	// empty when the object carries none.
	Fingerprint string
}

// DatasetStore holds published dataset files.
type DatasetStore interface {
	// Publish stores the file at localPath under key together with its
	// fingerprint.
	Publish(ctx context.Context, localPath, key, fingerprint string) error

	// Fetch copies the object at key to localPath. localPath is replaced
	// atomically, so readers never see a partial file.
	Fetch(ctx context.Context, key, localPath string) (ObjectInfo, error)

	// Stat describes the object at key. A missing object yields
	// ErrObjectNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// List returns the objects under prefix sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// New creates the store selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (DatasetStore, error) {
	switch cfg.Type {
	case "local", "":
		local, err := NewLocalStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		return local, nil
	case "s3":
		s3Cfg := DefaultS3Config()
		if cfg.S3.Region != "" {
			s3Cfg.Region = cfg.S3.Region
		}
		s3Cfg.Endpoint = cfg.S3.Endpoint
		s3Cfg.UsePathStyle = cfg.S3.UsePathStyle
		remote, err := NewS3Storage(ctx, cfg.S3.Bucket, s3Cfg)
		if err != nil {
			return nil, err
		}
		return remote, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// Resolve maps a configured object key to a concrete object. A key ending
// in "/" names a prefix and resolves to the newest dataset under it.
func Resolve(ctx context.Context, s DatasetStore, key string) (ObjectInfo, error) {
	if !strings.HasSuffix(key, "/") {
		return s.Stat(ctx, key)
	}
	return Latest(ctx, s, key)
}

// Latest returns the most recently modified object under prefix. Equal
// modification times go to the greater key.
func Latest(ctx context.Context, s DatasetStore, prefix string) (ObjectInfo, error) {
	objects, err := s.List(ctx, prefix)
	if err != nil {
		return ObjectInfo{}, wrapErr(ErrDownloadFailed, prefix, err)
	}
	if len(objects) == 0 {
		return ObjectInfo{}, wrapErr(ErrObjectNotFound, prefix, nil)
	}
	latest := objects[0]
	for _, o := range objects[1:] {
		if o.Modified.After(latest.Modified) ||
			(o.Modified.Equal(latest.Modified) && o.Key > latest.Key) {
			latest = o
		}
	}
	return latest, nil
}

// writeAtomic streams r into path through a sibling part file.
func writeAtomic(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + partSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// wrapErr tags a failure with the storage error category. The sentinel stays
// reachable through errors.Is.
func wrapErr(sentinel error, key string, cause error) error {
	code := clerrors.CodeDownloadFailed
	switch sentinel {
	case ErrUploadFailed:
		code = clerrors.CodeUploadFailed
	case ErrObjectNotFound:
		code = clerrors.CodeObjectNotFound
	}
	var err error = sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %v", sentinel, cause)
	}
	return clerrors.NewStorageError(code, fmt.Sprintf("object %q", key), err)
}
