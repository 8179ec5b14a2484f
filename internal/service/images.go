package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/storage"
)

// Upload is one file received with a request
type Upload struct {
	Filename string
	Body     io.Reader
}

// saveImage stores an upload under a generated object name and returns the
// reference clients use to fetch it back.
func saveImage(ctx context.Context, store storage.ImageStore, prefix string, index int, up Upload, now time.Time) (string, error) {
	contentType, err := storage.ContentTypeFor(up.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			return "", apperror.Validation("Not an image! Please upload only images.",
				apperror.FieldError{Field: "images", Message: fmt.Sprintf("%s is not a jpg or png file", up.Filename)})
		}
		return "", err
	}

	ref, err := store.Save(ctx, storage.ObjectName(prefix, index, up.Filename, now), contentType, up.Body)
	if err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return ref, nil
}
