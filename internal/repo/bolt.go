package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FileShare/model"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketShares    = []byte("shares")
	bucketAccessKey = []byte("share_access_keys")
)

// BoltRegistry keeps shares in an embedded bbolt file. Records are JSON
// encoded under their id; a second bucket maps access keys to ids.
type BoltRegistry struct {
	db *bolt.DB
}

// NewBoltRegistry opens (or creates) the bbolt file at path.
func NewBoltRegistry(path string) (*BoltRegistry, error) {
	if path == "" {
		return nil, fmt.Errorf("boltdb: path is required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltdb: open: %w", err)
	}
	r := &BoltRegistry{db: db}
	if err := r.init(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *BoltRegistry) init() error {
	return r.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketShares, bucketAccessKey} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("boltdb: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// Close releases the file lock.
func (r *BoltRegistry) Close() error {
	return r.db.Close()
}

func (r *BoltRegistry) Create(ctx context.Context, share *model.FileShare) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if share.CreatedAt.IsZero() {
		share.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(share)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		shares := tx.Bucket(bucketShares)
		keys := tx.Bucket(bucketAccessKey)
		if shares.Get([]byte(share.ID)) != nil || keys.Get([]byte(share.AccessKey)) != nil {
			return fmt.Errorf("%w: %s", ErrConflict, share.ID)
		}
		if err := shares.Put([]byte(share.ID), data); err != nil {
			return err
		}
		return keys.Put([]byte(share.AccessKey), []byte(share.ID))
	})
}

func (r *BoltRegistry) FindByAccessKey(ctx context.Context, accessKey string) (*model.FileShare, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var share *model.FileShare
	err := r.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketAccessKey).Get([]byte(accessKey))
		if id == nil {
			return ErrNotFound
		}
		var err error
		share, err = getShare(tx, id)
		return err
	})
	return share, err
}

func (r *BoltRegistry) FindByID(ctx context.Context, id string) (*model.FileShare, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var share *model.FileShare
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		share, err = getShare(tx, []byte(id))
		return err
	})
	return share, err
}

// IncrementDownloadCount runs inside a write transaction; bbolt allows one
// writer at a time, so the check and the increment cannot interleave.
func (r *BoltRegistry) IncrementDownloadCount(ctx context.Context, id string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int
	err := r.db.Update(func(tx *bolt.Tx) error {
		share, err := getShare(tx, []byte(id))
		if err != nil {
			return err
		}
		if !share.IsActive {
			return ErrNotFound
		}
		if share.DownloadCount >= share.MaxDownloads {
			return ErrQuotaExhausted
		}
		share.DownloadCount++
		count = share.DownloadCount
		return putShare(tx, share)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *BoltRegistry) Deactivate(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		share, err := getShare(tx, []byte(id))
		if err != nil {
			return err
		}
		if !share.IsActive {
			return nil
		}
		share.IsActive = false
		return putShare(tx, share)
	})
}

func getShare(tx *bolt.Tx, id []byte) (*model.FileShare, error) {
	data := tx.Bucket(bucketShares).Get(id)
	if data == nil {
		return nil, ErrNotFound
	}
	var share model.FileShare
	if err := json.Unmarshal(data, &share); err != nil {
		return nil, fmt.Errorf("boltdb: decode share %s: %w", id, err)
	}
	return &share, nil
}

func putShare(tx *bolt.Tx, share *model.FileShare) error {
	data, err := json.Marshal(share)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketShares).Put([]byte(share.ID), data)
}
