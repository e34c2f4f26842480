package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"feedcaster/internal/fileutil"
	"feedcaster/internal/services"
)

// LocalDir stores audio in a directory that a web server publishes under a
// base URL.
type LocalDir struct {
	dir     string
	baseURL *url.URL
}

// NewLocalDir validates the base URL and returns a directory destination.
func NewLocalDir(dir, publicBaseURL string) (*LocalDir, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("local storage dir is empty")
	}
	base, err := url.Parse(strings.TrimRight(publicBaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse public base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("public base url %q must be absolute", publicBaseURL)
	}
	return &LocalDir{dir: dir, baseURL: base}, nil
}

// Put writes the file atomically and returns its public URL.
func (l *LocalDir) Put(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) {
		return "", services.Wrap(services.ErrService, "storage", "local put", fmt.Sprintf("invalid file name %q", name), nil)
	}
	target := filepath.Join(l.dir, name)
	written, _, err := fileutil.WriteAtomic(target, r, 0o644)
	if err != nil {
		return "", services.Wrap(services.ErrService, "storage", "local put", target, err)
	}
	if size >= 0 && written != size {
		_ = os.Remove(target)
		return "", services.Wrap(services.ErrService, "storage", "local put",
			fmt.Sprintf("wrote %d bytes, expected %d", written, size), nil)
	}
	return l.baseURL.JoinPath(name).String(), nil
}

// LocalFeed keeps the feed document in a file.
type LocalFeed struct {
	path string
}

func NewLocalFeed(path string) *LocalFeed {
	return &LocalFeed{path: path}
}

func (f *LocalFeed) Get(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, services.Wrap(services.ErrService, "storage", "local feed read", f.path, err)
	}
	return data, nil
}

func (f *LocalFeed) Put(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(f.path, data, 0o644); err != nil {
		return services.Wrap(services.ErrService, "storage", "local feed write", f.path, err)
	}
	return nil
}
