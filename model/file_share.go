package model

import "time"

// ShareState is the lazily evaluated lifecycle state of a share.
type ShareState int

const (
	StateActive ShareState = iota
	StateExpired
	StateExhausted
	StateInactive
)

func (s ShareState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateExhausted:
		return "exhausted"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

type FileShare struct {
	ID string `gorm:"primaryKey;size:32" json:"id"`

	Filename         string `gorm:"column:filename;size:255;not null" json:"filename"`
	OriginalFilename string `gorm:"column:original_filename;size:255;not null" json:"original_filename"`
	FileSize         int64  `gorm:"column:file_size;not null" json:"file_size"`
	ContentType      string `gorm:"column:content_type;size:255;not null" json:"content_type"`

	AccessKey string `gorm:"column:access_key;size:64;uniqueIndex;not null" json:"access_key"`

	DownloadCount int        `gorm:"column:download_count;not null;default:0" json:"download_count"`
	MaxDownloads  int        `gorm:"column:max_downloads;not null;default:10" json:"max_downloads"`
	ExpiresAt     *time.Time `gorm:"column:expires_at" json:"expires_at"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
	IsActive      bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`

	FileHash    string `gorm:"column:file_hash;size:64;not null" json:"file_hash"`
	StoragePath string `gorm:"column:storage_path;size:512;not null" json:"storage_path"`
}

// TableName returns the database table name.
func (FileShare) TableName() string {
	return "file_shares"
}

// Expired reports whether the share has reached its expiry at now.
// The expiry instant itself counts as expired.
func (s *FileShare) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// Exhausted reports whether the download quota is used up.
func (s *FileShare) Exhausted() bool {
	return s.DownloadCount >= s.MaxDownloads
}

// State evaluates the share at now. Inactive wins over expiry and quota.
func (s *FileShare) State(now time.Time) ShareState {
	switch {
	case !s.IsActive:
		return StateInactive
	case s.Expired(now):
		return StateExpired
	case s.Exhausted():
		return StateExhausted
	default:
		return StateActive
	}
}
