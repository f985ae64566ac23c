package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"FileShare/utils"
)

// ErrObjectNotFound is returned when a locator names no stored blob.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidLocator is returned for locators outside the uploads prefix.
var ErrInvalidLocator = errors.New("invalid locator")

const uploadsPrefix = "uploads"

// BlobStore abstracts blob storage for shared files.
type BlobStore interface {
	// Put stores data and returns its locator. The blob is durable once Put returns.
	Put(ctx context.Context, id, filename string, data []byte) (string, error)
	Get(ctx context.Context, locator string) ([]byte, error)
	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, locator string) error
}

// ObjectKey builds the locator for a file id and client filename.
func ObjectKey(id, filename string) string {
	return fmt.Sprintf("%s/%s_%s", uploadsPrefix, id, utils.SafeObjectName(filename))
}

func checkLocator(locator string) error {
	clean := path.Clean(locator)
	if clean != locator || !strings.HasPrefix(clean, uploadsPrefix+"/") {
		return fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	return nil
}
