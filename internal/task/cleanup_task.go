package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FileShare/internal/storage"
)

const (
	ReasonUploadRollback = "upload_rollback"
	ReasonRevoke         = "revoke"
	ReasonExpired        = "expired"
)

// CleanupMessage asks the worker to delete an orphaned blob.
type CleanupMessage struct {
	Locator    string    `json:"locator"`
	Reason     string    `json:"reason"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// TaskPublisher publishes a serialized task.
type TaskPublisher interface {
	PublishTask(ctx context.Context, body []byte) error
}

// CleanupQueue enqueues blob deletions that failed in the request path.
type CleanupQueue struct {
	publisher TaskPublisher
}

func NewCleanupQueue(publisher TaskPublisher) *CleanupQueue {
	return &CleanupQueue{publisher: publisher}
}

func (q *CleanupQueue) Enqueue(ctx context.Context, locator, reason string) error {
	msg := CleanupMessage{
		Locator:    locator,
		Reason:     reason,
		Attempt:    0,
		EnqueuedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := q.publisher.PublishTask(ctx, body); err != nil {
		return fmt.Errorf("enqueue cleanup %s: %w", locator, err)
	}
	return nil
}

// ProcessCleanupTask deletes the blob named by msg. A blob that is already
// gone counts as done.
func ProcessCleanupTask(ctx context.Context, store storage.BlobStore, msg CleanupMessage) error {
	if msg.Locator == "" {
		return fmt.Errorf("%w: empty", storage.ErrInvalidLocator)
	}
	err := store.Delete(ctx, msg.Locator)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return err
	}
	return nil
}
