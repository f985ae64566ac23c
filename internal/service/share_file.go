package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"FileShare/config"
	"FileShare/internal/metrics"
	"FileShare/internal/repo"
	"FileShare/internal/storage"
	"FileShare/internal/task"
	"FileShare/internal/xerrors"
	"FileShare/model"
	"FileShare/utils"
)

const (
	msgFileNotFound      = "File not found"
	msgFileExpired       = "File has expired"
	msgLimitReached      = "Download limit reached"
	msgRetrieveFailed    = "Error retrieving file"
	msgStoreFailed       = "Error storing file"
	msgRevokeFailed      = "Error deleting file"
	msgFilenameRequired  = "Filename is required"
	msgInvalidDownloads  = "maxDownloads must be a positive integer"
	msgInvalidExpiration = "expiresInHours must be between 0 and 876000"
)

// Policy holds the limits and defaults applied to uploads.
type Policy struct {
	MaxUploadBytes      int64
	DefaultMaxDownloads int
	// DefaultExpiry applies when an upload does not choose one; zero means never.
	DefaultExpiry   time.Duration
	AccessKeyLength int
	// BasePath prefixes the download URL returned by Upload.
	BasePath string
}

// PolicyFromConfig builds the upload policy from configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxUploadBytes:      cfg.MaxUploadBytes,
		DefaultMaxDownloads: cfg.DefaultMaxDownloads,
		DefaultExpiry:       cfg.DefaultExpiry(),
		AccessKeyLength:     cfg.AccessKeyLength,
		BasePath:            "/api",
	}
}

// CleanupQueue takes blob deletions that could not be completed inline.
type CleanupQueue interface {
	Enqueue(ctx context.Context, locator, reason string) error
}

// ExpiryScheduler arranges for ReclaimExpired to run once a share expires.
type ExpiryScheduler interface {
	Schedule(ctx context.Context, id string, at time.Time) error
}

type UploadInput struct {
	Data []byte
	// DeclaredSize is the size announced by the client, or -1 when unknown.
	DeclaredSize   int64
	Filename       string
	ContentType    string
	MaxDownloads   *int
	ExpiresInHours *int
}

type UploadResult struct {
	ID          string
	AccessKey   string
	Filename    string
	FileSize    int64
	ExpiresAt   *time.Time
	DownloadURL string
}

type ShareInfo struct {
	Filename      string
	FileSize      int64
	ContentType   string
	DownloadCount int
	MaxDownloads  int
	ExpiresAt     *time.Time
	CreatedAt     time.Time
}

type DownloadResult struct {
	Data        []byte
	ContentType string
	Filename    string
	FileSize    int64
}

// ShareService runs the share lifecycle: upload, inspect, download and revoke.
type ShareService struct {
	registry repo.ShareRegistry
	store    storage.BlobStore
	logger   *slog.Logger
	policy   Policy
	now      func() time.Time
	cleanup  CleanupQueue
	expiry   ExpiryScheduler
}

type Option func(*ShareService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ShareService) { s.now = now }
}

func WithCleanupQueue(q CleanupQueue) Option {
	return func(s *ShareService) { s.cleanup = q }
}

func WithExpiryScheduler(e ExpiryScheduler) Option {
	return func(s *ShareService) { s.expiry = e }
}

func NewShareService(registry repo.ShareRegistry, store storage.BlobStore, logger *slog.Logger, policy Policy, opts ...Option) *ShareService {
	if policy.AccessKeyLength <= 0 {
		policy.AccessKeyLength = utils.DefaultAccessKeyLength
	}
	s := &ShareService{
		registry: registry,
		store:    store,
		logger:   logger,
		policy:   policy,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload stores the file and creates its share record. The blob is written
// first; if the record cannot be created the blob is deleted again.
func (s *ShareService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	const op = "upload"
	if in.DeclaredSize > s.policy.MaxUploadBytes {
		return nil, xerrors.E(xerrors.KindPayloadTooLarge, op, SizeLimitMessage(s.policy.MaxUploadBytes))
	}
	if int64(len(in.Data)) > s.policy.MaxUploadBytes {
		return nil, xerrors.E(xerrors.KindPayloadTooLarge, op, SizeLimitMessage(s.policy.MaxUploadBytes))
	}
	if strings.TrimSpace(in.Filename) == "" {
		return nil, xerrors.E(xerrors.KindInvalid, op, msgFilenameRequired)
	}

	maxDownloads := s.policy.DefaultMaxDownloads
	if in.MaxDownloads != nil {
		if *in.MaxDownloads <= 0 {
			return nil, xerrors.E(xerrors.KindInvalid, op, msgInvalidDownloads)
		}
		maxDownloads = *in.MaxDownloads
	}

	now := s.now().UTC()
	var expiresAt *time.Time
	switch {
	case in.ExpiresInHours != nil:
		hours := *in.ExpiresInHours
		if hours < 0 || hours > config.MaxExpiresHours {
			return nil, xerrors.E(xerrors.KindInvalid, op, msgInvalidExpiration)
		}
		at := now.Add(time.Duration(hours) * time.Hour)
		expiresAt = &at
	case s.policy.DefaultExpiry > 0:
		at := now.Add(s.policy.DefaultExpiry)
		expiresAt = &at
	}

	id := utils.NewFileID()
	locator, err := s.store.Put(ctx, id, in.Filename, in.Data)
	if err != nil {
		return nil, xerrors.WrapMsg(xerrors.KindInternal, op, msgStoreFailed, err)
	}

	share := &model.FileShare{
		ID:               id,
		Filename:         in.Filename,
		OriginalFilename: in.Filename,
		FileSize:         int64(len(in.Data)),
		ContentType:      DetectContentType(in.Filename, in.ContentType),
		AccessKey:        utils.NewAccessKey(s.policy.AccessKeyLength),
		DownloadCount:    0,
		MaxDownloads:     maxDownloads,
		ExpiresAt:        expiresAt,
		CreatedAt:        now,
		IsActive:         true,
		FileHash:         utils.Fingerprint(in.Data),
		StoragePath:      locator,
	}
	if err := s.registry.Create(ctx, share); err != nil {
		s.discardBlob(ctx, locator, task.ReasonUploadRollback)
		kind := xerrors.KindInternal
		if errors.Is(err, repo.ErrConflict) {
			kind = xerrors.KindConflict
		}
		return nil, xerrors.WrapMsg(kind, op, msgStoreFailed, err)
	}

	if expiresAt != nil && s.expiry != nil {
		if err := s.expiry.Schedule(ctx, id, *expiresAt); err != nil {
			s.logger.Warn("schedule share expiry failed", slog.String("share_id", id), slog.Any("error", err))
		}
	}

	metrics.ObserveUpload(share.FileSize)
	s.logger.Info("share created",
		slog.String("share_id", id),
		slog.Int64("file_size", share.FileSize),
		slog.Int("max_downloads", maxDownloads),
		slog.Any("expires_at", expiresAt),
	)

	return &UploadResult{
		ID:          id,
		AccessKey:   share.AccessKey,
		Filename:    share.Filename,
		FileSize:    share.FileSize,
		ExpiresAt:   expiresAt,
		DownloadURL: fmt.Sprintf("%s/download/%s", s.policy.BasePath, share.AccessKey),
	}, nil
}

// Inspect returns metadata of an accessible share without consuming it.
func (s *ShareService) Inspect(ctx context.Context, accessKey string) (*ShareInfo, error) {
	const op = "inspect"
	share, err := s.accessible(ctx, op, accessKey)
	if err != nil {
		return nil, err
	}
	return &ShareInfo{
		Filename:      share.OriginalFilename,
		FileSize:      share.FileSize,
		ContentType:   share.ContentType,
		DownloadCount: share.DownloadCount,
		MaxDownloads:  share.MaxDownloads,
		ExpiresAt:     share.ExpiresAt,
		CreatedAt:     share.CreatedAt,
	}, nil
}

// Download reads the blob and consumes one download from the quota. The
// registry's guarded increment decides races for the last download.
func (s *ShareService) Download(ctx context.Context, accessKey string) (*DownloadResult, error) {
	const op = "download"
	share, err := s.accessible(ctx, op, accessKey)
	if err != nil {
		return nil, err
	}

	data, err := s.store.Get(ctx, share.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			// The share may have been revoked or reclaimed after it was looked up.
			if derr := s.recheck(ctx, op, share.ID); derr != nil {
				return nil, derr
			}
			s.logger.Error("blob missing for active share", slog.String("share_id", share.ID), slog.String("locator", share.StoragePath))
		}
		return nil, xerrors.WrapMsg(xerrors.KindInternal, op, msgRetrieveFailed, err)
	}

	count, err := s.registry.IncrementDownloadCount(ctx, share.ID)
	switch {
	case errors.Is(err, repo.ErrQuotaExhausted):
		metrics.ObserveDenied(metrics.ReasonExhausted)
		return nil, xerrors.WrapMsg(xerrors.KindGone, op, msgLimitReached, err)
	case errors.Is(err, repo.ErrNotFound):
		metrics.ObserveDenied(metrics.ReasonNotFound)
		return nil, xerrors.WrapMsg(xerrors.KindNotFound, op, msgFileNotFound, err)
	case err != nil:
		return nil, xerrors.WrapMsg(xerrors.KindInternal, op, msgRetrieveFailed, err)
	}

	metrics.ObserveDownload()
	s.logger.Info("share downloaded",
		slog.String("share_id", share.ID),
		slog.Int("download_count", count),
		slog.Int("max_downloads", share.MaxDownloads),
	)
	return &DownloadResult{
		Data:        data,
		ContentType: share.ContentType,
		Filename:    share.OriginalFilename,
		FileSize:    int64(len(data)),
	}, nil
}

// Revoke deactivates the share and deletes its blob. It finds the record in
// any state, so revoking twice succeeds.
func (s *ShareService) Revoke(ctx context.Context, accessKey string) error {
	const op = "revoke"
	share, err := s.lookup(ctx, op, accessKey)
	if err != nil {
		return err
	}

	if share.IsActive {
		if err := s.registry.Deactivate(ctx, share.ID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return xerrors.WrapMsg(xerrors.KindNotFound, op, msgFileNotFound, err)
			}
			return xerrors.WrapMsg(xerrors.KindInternal, op, msgRevokeFailed, err)
		}
	}

	err = s.store.Delete(ctx, share.StoragePath)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		if s.cleanup == nil {
			return xerrors.WrapMsg(xerrors.KindInternal, op, msgRevokeFailed, err)
		}
		if qerr := s.enqueueCleanup(ctx, share.StoragePath, task.ReasonRevoke, err); qerr != nil {
			return xerrors.WrapMsg(xerrors.KindInternal, op, msgRevokeFailed, errors.Join(err, qerr))
		}
	}

	metrics.ObserveRevocation()
	s.logger.Info("share revoked", slog.String("share_id", share.ID), slog.Bool("was_active", share.IsActive))
	return nil
}

// ReclaimExpired deletes the blob of a share whose expiry has passed. The
// record is left untouched, so lookups keep reporting the share as expired.
func (s *ShareService) ReclaimExpired(ctx context.Context, id string) error {
	share, err := s.registry.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !share.Expired(s.now()) {
		s.logger.Debug("reclaim skipped, share not expired", slog.String("share_id", id))
		return nil
	}
	err = s.store.Delete(ctx, share.StoragePath)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		if s.cleanup == nil {
			return fmt.Errorf("reclaim %s: %w", id, err)
		}
		if qerr := s.enqueueCleanup(ctx, share.StoragePath, task.ReasonExpired, err); qerr != nil {
			return fmt.Errorf("reclaim %s: %w", id, errors.Join(err, qerr))
		}
		return nil
	}
	metrics.ObserveReclaim()
	return nil
}

func (s *ShareService) lookup(ctx context.Context, op, accessKey string) (*model.FileShare, error) {
	if accessKey == "" {
		return nil, xerrors.E(xerrors.KindNotFound, op, msgFileNotFound)
	}
	share, err := s.registry.FindByAccessKey(ctx, accessKey)
	if errors.Is(err, repo.ErrNotFound) {
		metrics.ObserveDenied(metrics.ReasonNotFound)
		return nil, xerrors.WrapMsg(xerrors.KindNotFound, op, msgFileNotFound, err)
	}
	if err != nil {
		return nil, xerrors.WrapMsg(xerrors.KindInternal, op, msgRetrieveFailed, err)
	}
	return share, nil
}

// accessible returns the share if it is in the active state.
func (s *ShareService) accessible(ctx context.Context, op, accessKey string) (*model.FileShare, error) {
	share, err := s.lookup(ctx, op, accessKey)
	if err != nil {
		return nil, err
	}
	if err := s.deny(op, share); err != nil {
		return nil, err
	}
	return share, nil
}

// recheck reads the record by id, bypassing cached snapshots, and returns the
// denial for its current state. It returns nil when the share is still active
// or the registry cannot answer.
func (s *ShareService) recheck(ctx context.Context, op, id string) error {
	share, err := s.registry.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		metrics.ObserveDenied(metrics.ReasonNotFound)
		return xerrors.WrapMsg(xerrors.KindNotFound, op, msgFileNotFound, err)
	}
	if err != nil {
		s.logger.Warn("share recheck failed", slog.String("share_id", id), slog.Any("error", err))
		return nil
	}
	return s.deny(op, share)
}

// deny maps a non-active state to its client error.
func (s *ShareService) deny(op string, share *model.FileShare) error {
	switch share.State(s.now()) {
	case model.StateInactive:
		metrics.ObserveDenied(metrics.ReasonInactive)
		return xerrors.E(xerrors.KindNotFound, op, msgFileNotFound)
	case model.StateExpired:
		metrics.ObserveDenied(metrics.ReasonExpired)
		return xerrors.E(xerrors.KindGone, op, msgFileExpired)
	case model.StateExhausted:
		metrics.ObserveDenied(metrics.ReasonExhausted)
		return xerrors.E(xerrors.KindGone, op, msgLimitReached)
	}
	return nil
}

// discardBlob removes a blob whose record was never created. Failures are
// handed to the cleanup queue when one is configured.
func (s *ShareService) discardBlob(ctx context.Context, locator, reason string) {
	err := s.store.Delete(ctx, locator)
	if err == nil || errors.Is(err, storage.ErrObjectNotFound) {
		return
	}
	if s.cleanup == nil {
		s.logger.Error("orphaned blob left behind", slog.String("locator", locator), slog.Any("error", err))
		return
	}
	if qerr := s.enqueueCleanup(ctx, locator, reason, err); qerr != nil {
		s.logger.Error("orphaned blob left behind", slog.String("locator", locator), slog.Any("error", errors.Join(err, qerr)))
	}
}

func (s *ShareService) enqueueCleanup(ctx context.Context, locator, reason string, cause error) error {
	if err := s.cleanup.Enqueue(ctx, locator, reason); err != nil {
		return err
	}
	metrics.ObserveCleanupEnqueued(reason)
	s.logger.Warn("blob delete deferred to cleanup queue",
		slog.String("locator", locator),
		slog.String("reason", reason),
		slog.Any("error", cause),
	)
	return nil
}

// SizeLimitMessage is the client facing message for uploads over limit bytes.
func SizeLimitMessage(limit int64) string {
	const mib = 1 << 20
	if limit%mib == 0 {
		return fmt.Sprintf("File size exceeds %dMB limit", limit/mib)
	}
	return fmt.Sprintf("File size exceeds %d byte limit", limit)
}
