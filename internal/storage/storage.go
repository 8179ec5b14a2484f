// Package storage keeps uploaded images outside the relational store and hands
// back a reference string that the API serves under /api/images/{ref}.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("image not found")
	ErrUnsupportedType = errors.New("unsupported image type")
)

// Object is an opened stored image. Callers must Close it.
type Object struct {
	io.ReadCloser
	ContentType string
	Size        int64
}

// ImageStore persists image bytes and resolves references back to them
type ImageStore interface {
	Save(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (*Object, error)
}

var allowedTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// ContentTypeFor returns the canonical type of an allowed image filename
func ContentTypeFor(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	ct, ok := allowedTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return ct, nil
}

// ObjectName builds a stored name from prefix, a timestamp and the original
// extension, e.g. "product-1700000000000-2.jpeg".
func ObjectName(prefix string, index int, filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if index >= 0 {
		return fmt.Sprintf("%s-%d-%d%s", prefix, now.UnixMilli(), index, ext)
	}
	return fmt.Sprintf("%s-%d%s", prefix, now.UnixMilli(), ext)
}
