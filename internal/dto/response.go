package dto

import "time"

// UploadResponse is returned by POST /api/upload.
type UploadResponse struct {
	ID          string     `json:"id"`
	AccessKey   string     `json:"access_key"`
	Filename    string     `json:"filename"`
	FileSize    int64      `json:"file_size"`
	ExpiresAt   *time.Time `json:"expires_at"`
	DownloadURL string     `json:"download_url"`
}

// FileInfoResponse is returned by GET /api/info/:accessKey.
type FileInfoResponse struct {
	Filename      string     `json:"filename"`
	FileSize      int64      `json:"file_size"`
	ContentType   string     `json:"content_type"`
	DownloadCount int        `json:"download_count"`
	MaxDownloads  int        `json:"max_downloads"`
	ExpiresAt     *time.Time `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
