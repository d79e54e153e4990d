package store

import (
	"context"
	"os"
	"time"

	"github.com/dmarwaha/release-relay/internal/metrics"
	"github.com/dmarwaha/release-relay/pkg/models"
)

// How often upload progress is reported to the caller.
const uploadReportInterval = 500 * time.Millisecond

// CancelCheck is polled at chunk boundaries during long transfers. A
// non-nil return aborts the transfer with that error.
type CancelCheck func() error

// ProgressFunc receives the cumulative bytes sent and the total size.
type ProgressFunc func(sent, total int64)

// AssetStore is a remote destination for relayed files. Uploading a name
// that already exists replaces the previous asset.
type AssetStore interface {
	Upload(ctx context.Context, localPath, assetName string, onProgress ProgressFunc, cancel CancelCheck) (models.AssetInfo, error)
	List(ctx context.Context) ([]models.AssetInfo, error)
	Delete(ctx context.Context, assetName string) error
	Rename(ctx context.Context, oldName, newName string) (models.AssetInfo, error)
	Ping(ctx context.Context) error
}

// progressReader feeds a staged file to an HTTP body in bounded chunks,
// reporting progress at most every uploadReportInterval and honoring the
// cancel check between chunks.
type progressReader struct {
	f          *os.File
	total      int64
	sent       int64
	lastEmit   time.Time
	onProgress ProgressFunc
	cancel     CancelCheck
}

func (r *progressReader) Read(p []byte) (int, error) {
	if r.cancel != nil {
		if err := r.cancel(); err != nil {
			return 0, err
		}
	}
	if int64(len(p)) > models.UploadChunkSize {
		p = p[:models.UploadChunkSize]
	}

	n, err := r.f.Read(p)
	if n > 0 {
		r.sent += int64(n)
		metrics.BytesUploaded.Add(float64(n))
		if r.onProgress != nil && (time.Since(r.lastEmit) >= uploadReportInterval || r.sent == r.total) {
			r.lastEmit = time.Now()
			r.onProgress(r.sent, r.total)
		}
	}
	return n, err
}
