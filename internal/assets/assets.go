// Package assets stores the menu photo and member photos, either on local
// disk or in Cloudinary, and cleans them up asynchronously.
package assets

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// MenuKey names the singleton menu photo.
const MenuKey = "menu"

// Extensions accepted for uploads, in lookup order.
var Extensions = []string{"jpg", "jpeg", "png"}

var (
	// ErrInvalidName is returned for an upload filename without an extension.
	ErrInvalidName = errors.New("invalid filename")
	// ErrUnsupportedType is returned for extensions other than jpg, jpeg and png.
	ErrUnsupportedType = errors.New("only JPG/PNG allowed")
)

// Store keeps at most one image per key. Saving replaces any previous image
// under the key whatever its extension.
type Store interface {
	Save(ctx context.Context, key, ext string, r io.Reader) (string, error)
	URL(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
}

// MemberKey names a member's photo.
func MemberKey(id int64) string {
	return "members/" + strconv.FormatInt(id, 10)
}

// Ext validates an upload filename and returns its lower-case extension.
func Ext(filename string) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return "", ErrInvalidName
	}
	ext = strings.ToLower(ext)
	for _, ok := range Extensions {
		if ext == ok {
			return ext, nil
		}
	}
	return "", ErrUnsupportedType
}
