package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader stores objects such as team logos and bracket snapshots.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}

// SnapshotKey is the object key of a bracket snapshot taken at generation time.
func SnapshotKey(tournamentID int, at time.Time) string {
	return fmt.Sprintf("snapshots/tournament_%d/%s.json", tournamentID, at.UTC().Format("20060102T150405Z"))
}
