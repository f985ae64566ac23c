package config

import "fmt"

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// StorageConfig holds blob storage settings.
type StorageConfig struct {
	Backend string `json:"backend"` // local, minio
	Root    string `json:"root"`    // local backend base directory

	MinioHost     string `json:"minio_host"`
	MinioPort     string `json:"minio_port"`
	MinioUsername string `json:"minio_username"`
	MinioPassword string `json:"-"`
	MinioUseSSL   bool   `json:"minio_use_ssl"`
	BucketName    string `json:"bucket_name"`
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:       getEnv("STORAGE_BACKEND", StorageLocal),
		Root:          getEnv("STORAGE_ROOT", "."),
		MinioHost:     getEnv("MINIO_HOST", "localhost"),
		MinioPort:     getEnv("MINIO_PORT", "9000"),
		MinioUsername: getEnv("MINIO_USERNAME", "minioadmin"),
		MinioPassword: getEnv("MINIO_PASSWORD", "minioadmin"),
		MinioUseSSL:   getEnvBool("MINIO_USE_SSL", false),
		BucketName:    getEnv("BUCKET_NAME", "file-share"),
	}
}

// MinioEndpoint returns host:port for the MinIO client.
func (s StorageConfig) MinioEndpoint() string {
	return fmt.Sprintf("%s:%s", s.MinioHost, s.MinioPort)
}

// Validate checks the selected backend has what it needs.
func (s StorageConfig) Validate() error {
	switch s.Backend {
	case StorageLocal:
		if s.Root == "" {
			return fmt.Errorf("STORAGE_ROOT: required for local storage")
		}
	case StorageMinio:
		if s.BucketName == "" {
			return fmt.Errorf("BUCKET_NAME: required for minio storage")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND: unsupported backend %q", s.Backend)
	}
	return nil
}
