package repo

import (
	"context"
	"errors"

	"FileShare/model"
)

var (
	ErrNotFound       = errors.New("share not found")
	ErrConflict       = errors.New("share already exists")
	ErrQuotaExhausted = errors.New("download quota exhausted")
)

// ShareRegistry persists share records.
type ShareRegistry interface {
	Create(ctx context.Context, share *model.FileShare) error
	// FindByAccessKey returns the record in any state.
	FindByAccessKey(ctx context.Context, accessKey string) (*model.FileShare, error)
	FindByID(ctx context.Context, id string) (*model.FileShare, error)
	// IncrementDownloadCount adds one download if the record is active and
	// the quota allows it, and returns the new count. Inactive records report
	// ErrNotFound.
	IncrementDownloadCount(ctx context.Context, id string) (int, error)
	Deactivate(ctx context.Context, id string) error
}
