package storage

import (
	"context"
	"io"
	"time"
)

// Storage stores uploaded audio blobs and hands back durable URLs.
// The URL returned by Upload is what circulates through the chat
// pipeline as an audio reference.
type Storage interface {
	// Upload stores data under key and returns its durable URL.
	Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error)

	// Download reads back a stored object.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetPresignedDownloadURL returns a time-limited download URL.
	GetPresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)

	// Delete removes an object.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is stored.
	Exists(ctx context.Context, key string) (bool, error)

	// GetStorageType identifies the backend.
	GetStorageType() string
}

// StorageType identifies a storage backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local" // local filesystem
	StorageTypeOSS   StorageType = "oss"   // Aliyun OSS
)
