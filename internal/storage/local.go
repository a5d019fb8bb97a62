package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// fingerprintSuffix names the sidecar file holding a dataset's fingerprint.
const fingerprintSuffix = ".fingerprint"

// LocalStorage keeps datasets in a directory tree, for single-host
// deployments and tests.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates the store rooted at root, creating the directory
// if needed.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

func (l *LocalStorage) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// Publish implements DatasetStore.
func (l *LocalStorage) Publish(ctx context.Context, localPath, key, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return wrapErr(ErrUploadFailed, key, err)
	}
	defer src.Close()

	dst := l.path(key)
	if err := writeAtomic(dst, src); err != nil {
		return wrapErr(ErrUploadFailed, key, err)
	}

	sidecar := dst + fingerprintSuffix
	if fingerprint == "" {
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			return wrapErr(ErrUploadFailed, key, err)
		}
		return nil
	}
	if err := writeAtomic(sidecar, strings.NewReader(fingerprint)); err != nil {
		return wrapErr(ErrUploadFailed, key, err)
	}
	return nil
}

// Fetch implements DatasetStore.
func (l *LocalStorage) Fetch(ctx context.Context, key, localPath string) (ObjectInfo, error) {
	info, err := l.Stat(ctx, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	src, err := os.Open(l.path(key))
	if err != nil {
		return ObjectInfo{}, wrapErr(ErrDownloadFailed, key, err)
	}
	defer src.Close()

	if err := writeAtomic(localPath, src); err != nil {
		return ObjectInfo{}, wrapErr(ErrDownloadFailed, key, err)
	}
	return info, nil
}

// Stat implements DatasetStore.
func (l *LocalStorage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	fi, err := os.Stat(l.path(key))
	if os.IsNotExist(err) || (err == nil && fi.IsDir()) {
		return ObjectInfo{}, wrapErr(ErrObjectNotFound, key, nil)
	}
	if err != nil {
		return ObjectInfo{}, wrapErr(ErrDownloadFailed, key, err)
	}
	return l.info(key, fi), nil
}

func (l *LocalStorage) info(key string, fi fs.FileInfo) ObjectInfo {
	info := ObjectInfo{Key: key, Size: fi.Size(), Modified: fi.ModTime()}
	if b, err := os.ReadFile(l.path(key) + fingerprintSuffix); err == nil {
		info.Fingerprint = strings.TrimSpace(string(b))
	}
	return info
}

// List implements DatasetStore. Sidecars and unfinished part files are
// skipped. A missing prefix yields an empty list.
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var objects []ObjectInfo
	err := filepath.WalkDir(l.path(prefix), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, fingerprintSuffix) || strings.HasSuffix(path, partSuffix) {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, l.info(filepath.ToSlash(rel), fi))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}
