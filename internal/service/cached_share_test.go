package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"FileShare/internal/repo"
	"FileShare/internal/storage"
	"FileShare/internal/task"
	"FileShare/internal/xerrors"
	"FileShare/model"
	"FileShare/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func cachedRegistries() map[string]func(t *testing.T) repo.ShareRegistry {
	return map[string]func(t *testing.T) repo.ShareRegistry{
		"redis": func(t *testing.T) repo.ShareRegistry {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return repo.NewCachedRegistry(newBolt(t), utils.NewRedisCache(client), time.Minute, discardLogger())
		},
		"memory": func(t *testing.T) repo.ShareRegistry {
			return repo.NewCachedRegistry(newSQLite(t), utils.NewLRUCache(64, time.Minute), time.Minute, discardLogger())
		},
	}
}

func TestRevokeThroughCache(t *testing.T) {
	for name, open := range cachedRegistries() {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, open(t))
			ctx := context.Background()
			res := upload(t, f, []byte("cached"), "cached.txt", intPtr(3), nil)
			for i := 0; i < 2; i++ {
				if _, err := f.svc.Inspect(ctx, res.AccessKey); err != nil {
					t.Fatalf("Inspect #%d failed: %v", i+1, err)
				}
			}

			if err := f.svc.Revoke(ctx, res.AccessKey); err != nil {
				t.Fatalf("Revoke failed: %v", err)
			}
			_, err := f.svc.Inspect(ctx, res.AccessKey)
			expectKind(t, err, xerrors.KindNotFound)
			_, err = f.svc.Download(ctx, res.AccessKey)
			expectKind(t, err, xerrors.KindNotFound)
		})
	}
}

func TestQuotaThroughCache(t *testing.T) {
	for name, open := range cachedRegistries() {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, open(t))
			ctx := context.Background()
			res := upload(t, f, []byte("twice"), "twice.txt", intPtr(2), nil)
			if _, err := f.svc.Inspect(ctx, res.AccessKey); err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 2; i++ {
				if _, err := f.svc.Download(ctx, res.AccessKey); err != nil {
					t.Fatalf("Download #%d failed: %v", i+1, err)
				}
				info, err := f.svc.Inspect(ctx, res.AccessKey)
				if i == 0 {
					if err != nil || info.DownloadCount != 1 {
						t.Fatalf("expect count 1 after first download, got %+v %v", info, err)
					}
				} else {
					expectKind(t, err, xerrors.KindGone)
				}
			}
			_, err := f.svc.Download(ctx, res.AccessKey)
			expectKind(t, err, xerrors.KindGone)
		})
	}
}

func TestRevokeAfterCacheEviction(t *testing.T) {
	registry := repo.NewCachedRegistry(newBolt(t), utils.NewLRUCache(3, time.Minute), time.Minute, discardLogger())
	f := newFixture(t, registry)
	ctx := context.Background()
	a := upload(t, f, []byte("a"), "a.txt", nil, nil)
	b := upload(t, f, []byte("b"), "b.txt", nil, nil)
	for _, key := range []string{a.AccessKey, a.AccessKey, b.AccessKey} {
		if _, err := f.svc.Inspect(ctx, key); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.svc.Revoke(ctx, a.AccessKey); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.Inspect(ctx, a.AccessKey)
	expectKind(t, err, xerrors.KindNotFound)
	_, err = f.svc.Download(ctx, a.AccessKey)
	expectKind(t, err, xerrors.KindNotFound)
	if _, err := f.svc.Inspect(ctx, b.AccessKey); err != nil {
		t.Fatalf("unrelated share affected: %v", err)
	}
}

// snapshotRegistry answers access-key lookups from a fixed snapshot, the way
// a stale cache entry would.
type snapshotRegistry struct {
	repo.ShareRegistry
	snapshot *model.FileShare
}

func (r *snapshotRegistry) FindByAccessKey(context.Context, string) (*model.FileShare, error) {
	share := *r.snapshot
	return &share, nil
}

func TestDownloadOfStaleSnapshotAfterRevoke(t *testing.T) {
	inner := newBolt(t)
	f := newFixture(t, inner)
	ctx := context.Background()
	res := upload(t, f, []byte("gone"), "gone.txt", nil, nil)
	snapshot, err := inner.FindByAccessKey(ctx, res.AccessKey)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Revoke(ctx, res.AccessKey); err != nil {
		t.Fatal(err)
	}

	stale := NewShareService(&snapshotRegistry{ShareRegistry: inner, snapshot: snapshot}, f.store,
		discardLogger(), testPolicy(), WithClock(f.clock.Now))
	_, err = stale.Download(ctx, res.AccessKey)
	expectKind(t, err, xerrors.KindNotFound)
}

func TestReclaimDeleteFailureIsQueued(t *testing.T) {
	registry := newBolt(t)
	local, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	queue := &recordingQueue{}
	svc := NewShareService(registry, &brokenDeleteStore{BlobStore: local, err: errors.New("disk busy")},
		discardLogger(), testPolicy(), WithClock(clock.Now), WithCleanupQueue(queue))
	ctx := context.Background()

	res, err := svc.Upload(ctx, UploadInput{Data: []byte("x"), DeclaredSize: 1, Filename: "x.txt", ExpiresInHours: intPtr(1)})
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)
	if err := svc.ReclaimExpired(ctx, res.ID); err != nil {
		t.Fatalf("reclaim with cleanup queue should succeed: %v", err)
	}
	if len(queue.entries) != 1 || !strings.HasPrefix(queue.entries[0], task.ReasonExpired+":uploads/") {
		t.Fatalf("expect queued reclaim cleanup, got %v", queue.entries)
	}

	queue.err = errors.New("broker down")
	if err := svc.ReclaimExpired(ctx, res.ID); err == nil {
		t.Fatal("expect error when the delete and the enqueue both fail")
	}
}
