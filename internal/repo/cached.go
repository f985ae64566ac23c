package repo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"FileShare/model"
	"FileShare/utils"
)

// CachedRegistry caches access-key lookups in front of another registry.
// Writes go to the inner registry first and then drop the cached snapshot.
// The inner registry stays the authority: its increment refuses inactive and
// exhausted records, so a stale snapshot never grants a download.
type CachedRegistry struct {
	inner  ShareRegistry
	cache  utils.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedRegistry(inner ShareRegistry, cache utils.Cache, ttl time.Duration, logger *slog.Logger) *CachedRegistry {
	return &CachedRegistry{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func (r *CachedRegistry) Create(ctx context.Context, share *model.FileShare) error {
	return r.inner.Create(ctx, share)
}

func (r *CachedRegistry) FindByAccessKey(ctx context.Context, accessKey string) (*model.FileShare, error) {
	cacheKey := utils.BuildCacheKey(utils.CacheKeyShareByAccessKey, accessKey)
	var cached model.FileShare
	err := r.cache.Get(ctx, cacheKey, &cached)
	switch {
	case err == nil:
		if r.trusted(ctx, &cached) {
			return &cached, nil
		}
		r.delete(ctx, cached.ID, cacheKey)
	case !errors.Is(err, utils.ErrCacheMiss):
		r.logger.Warn("share cache read failed", slog.String("key", cacheKey), slog.Any("error", err))
	}

	share, err := r.inner.FindByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	r.store(ctx, share)
	return share, nil
}

func (r *CachedRegistry) FindByID(ctx context.Context, id string) (*model.FileShare, error) {
	return r.inner.FindByID(ctx, id)
}

func (r *CachedRegistry) IncrementDownloadCount(ctx context.Context, id string) (int, error) {
	count, err := r.inner.IncrementDownloadCount(ctx, id)
	if err == nil || errors.Is(err, ErrQuotaExhausted) || errors.Is(err, ErrNotFound) {
		r.invalidate(ctx, id)
	}
	return count, err
}

// Deactivate marks the id revoked before dropping the snapshot, so an active
// snapshot written back by a lookup that raced the revoke is not served.
func (r *CachedRegistry) Deactivate(ctx context.Context, id string) error {
	if err := r.inner.Deactivate(ctx, id); err != nil {
		return err
	}
	revoked := utils.BuildCacheKey(utils.CacheKeyShareRevoked, id)
	if err := r.cache.Set(ctx, revoked, true, 2*r.ttl); err != nil {
		r.logger.Warn("share revoke marker write failed", slog.String("share_id", id), slog.Any("error", err))
	}
	r.invalidate(ctx, id)
	return nil
}

// trusted reports whether a cached snapshot may be served. Inactive is final;
// an active snapshot is checked against the revoke marker.
func (r *CachedRegistry) trusted(ctx context.Context, share *model.FileShare) bool {
	if !share.IsActive {
		return true
	}
	revoked, err := r.cache.Exists(ctx, utils.BuildCacheKey(utils.CacheKeyShareRevoked, share.ID))
	if err != nil {
		r.logger.Warn("share revoke marker read failed", slog.String("share_id", share.ID), slog.Any("error", err))
		return false
	}
	return !revoked
}

func (r *CachedRegistry) store(ctx context.Context, share *model.FileShare) {
	byKey := utils.BuildCacheKey(utils.CacheKeyShareByAccessKey, share.AccessKey)
	byID := utils.BuildCacheKey(utils.CacheKeyShareAccessKey, share.ID)
	if err := r.cache.Set(ctx, byID, share.AccessKey, r.ttl); err != nil {
		r.logger.Warn("share cache write failed", slog.String("key", byID), slog.Any("error", err))
		return
	}
	if err := r.cache.Set(ctx, byKey, share, r.ttl); err != nil {
		r.logger.Warn("share cache write failed", slog.String("key", byKey), slog.Any("error", err))
	}
}

// invalidate drops the snapshot of id. The access key comes from the reverse
// entry, or from the inner registry once that entry is gone.
func (r *CachedRegistry) invalidate(ctx context.Context, id string) {
	byID := utils.BuildCacheKey(utils.CacheKeyShareAccessKey, id)
	var accessKey string
	err := r.cache.Get(ctx, byID, &accessKey)
	if err != nil {
		if !errors.Is(err, utils.ErrCacheMiss) {
			r.logger.Warn("share cache read failed", slog.String("key", byID), slog.Any("error", err))
		}
		share, ferr := r.inner.FindByID(ctx, id)
		if ferr != nil {
			if !errors.Is(ferr, ErrNotFound) {
				r.logger.Warn("share cache invalidate lookup failed", slog.String("share_id", id), slog.Any("error", ferr))
			}
			return
		}
		accessKey = share.AccessKey
	}
	r.delete(ctx, id, utils.BuildCacheKey(utils.CacheKeyShareByAccessKey, accessKey))
}

func (r *CachedRegistry) delete(ctx context.Context, id, byKey string) {
	byID := utils.BuildCacheKey(utils.CacheKeyShareAccessKey, id)
	if err := r.cache.Delete(ctx, byKey, byID); err != nil {
		r.logger.Warn("share cache invalidate failed", slog.String("share_id", id), slog.Any("error", err))
	}
}
