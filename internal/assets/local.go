package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// Local stores images under Dir and serves them from URLPrefix.
type Local struct {
	Dir       string
	URLPrefix string
}

// NewLocal creates the directory if needed.
func NewLocal(dir, urlPrefix string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	if urlPrefix == "" {
		urlPrefix = "/static"
	}
	return &Local{Dir: dir, URLPrefix: urlPrefix}, nil
}

func (l *Local) file(key, ext string) string {
	return filepath.Join(l.Dir, filepath.FromSlash(key)+"."+ext)
}

// Save writes the image to a temp file and renames it over key.<ext> after
// removing the key's images with other extensions.
func (l *Local) Save(_ context.Context, key, ext string, r io.Reader) (string, error) {
	dst := l.file(key, ext)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", key, err)
	}

	for _, old := range Extensions {
		if old == ext {
			continue
		}
		if err := os.Remove(l.file(key, old)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("remove old %s.%s: %w", key, old, err)
		}
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return l.url(key, ext), nil
}

// URL returns the public path of the key's image, or "" when there is none.
func (l *Local) URL(_ context.Context, key string) (string, error) {
	for _, ext := range Extensions {
		_, err := os.Stat(l.file(key, ext))
		if err == nil {
			return l.url(key, ext), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", key, err)
		}
	}
	return "", nil
}

// Remove deletes every image stored under key. A missing image is not an error.
func (l *Local) Remove(_ context.Context, key string) error {
	for _, ext := range Extensions {
		if err := os.Remove(l.file(key, ext)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s.%s: %w", key, ext, err)
		}
	}
	return nil
}

func (l *Local) url(key, ext string) string {
	return path.Join(l.URLPrefix, key+"."+ext)
}
