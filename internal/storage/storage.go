// Package storage abstracts where snapshot artifacts live. The backup
// engine only needs flat named blobs; backends are a local directory
// (the default) and S3-compatible object storage.
package storage

import "context"

type Storage interface {
	Write(ctx context.Context, name string, data []byte) error
	Read(ctx context.Context, name string) ([]byte, error)
	// Stat returns the stored size of the artifact in bytes.
	Stat(ctx context.Context, name string) (int64, error)
	Delete(ctx context.Context, name string) error
}
