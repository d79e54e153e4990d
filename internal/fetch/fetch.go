// Package fetch materializes a transfer item's source bytes onto local
// staging storage. One fetch strategy exists per source kind; all of them
// report progress through the same (bytesSoFar, bytesTotal) callback and
// honor the cooperative cancel check at every chunk boundary.
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dmarwaha/release-relay/internal/format"
	"github.com/dmarwaha/release-relay/pkg/models"
)

var tracer = otel.Tracer("relay-fetch")

// ProgressFunc receives running byte counts while a fetch is streaming.
// total is 0 when the source did not declare a size.
type ProgressFunc func(soFar, total int64)

// CancelCheck returns a non-nil error (ErrStoppedByAdmin) once the global
// stop flag is set.
type CancelCheck func() error

// Sessions registers force-closable network sessions for an owner. The
// queue's session set satisfies this.
type Sessions interface {
	Add(ownerID int64, session io.Closer)
	Remove(ownerID int64, session io.Closer)
}

// StreamFetcher is a delegated downloader (HLS assembler, YouTube
// extractor) that produces a completed local file on its own.
type StreamFetcher interface {
	FetchStream(ctx context.Context, locator string, qualityHint int, onProgress ProgressFunc) (localPath string, size int64, err error)
}

// Fetcher dispatches a transfer item to its per-kind fetch strategy.
type Fetcher struct {
	stagingDir string
	maxSize    int64
	client     *httpClient

	hls     StreamFetcher
	youtube StreamFetcher
}

// Config holds Fetcher dependencies.
type Config struct {
	StagingDir string
	MaxSize    int64
	HLS        StreamFetcher
	YouTube    StreamFetcher
}

// New creates a Fetcher.
func New(cfg *Config) *Fetcher {
	return &Fetcher{
		stagingDir: cfg.StagingDir,
		maxSize:    cfg.MaxSize,
		client:     newHTTPClient(),
		hls:        cfg.HLS,
		youtube:    cfg.YouTube,
	}
}

// Fetch downloads the item's source to a staging file and returns its path
// and actual byte size. The caller owns the returned file and must remove
// it when done, on every exit path.
func (f *Fetcher) Fetch(ctx context.Context, item *models.TransferItem, sessions Sessions, onProgress ProgressFunc, cancel CancelCheck) (string, int64, error) {
	ctx, span := tracer.Start(ctx, "fetch-source")
	defer span.End()
	span.SetAttributes(attribute.String("source.kind", string(item.Kind)))

	// The declared size is rejected before any network I/O. An exact
	// maxSize declaration is still accepted.
	if item.ExpectedByteSize > f.maxSize {
		return "", 0, fmt.Errorf("%w: %s is larger than the %s limit",
			models.ErrTooLarge, format.Size(item.ExpectedByteSize), format.Size(f.maxSize))
	}

	switch item.Kind {
	case models.KindTelegramDocument:
		return f.fetchAttachment(ctx, item, onProgress, cancel)
	case models.KindHTTPURL:
		return f.fetchURL(ctx, item, sessions, onProgress, cancel)
	case models.KindHLSStream:
		return f.fetchDelegated(ctx, f.hls, item, onProgress, cancel)
	case models.KindYouTubeVideo:
		return f.fetchDelegated(ctx, f.youtube, item, onProgress, cancel)
	default:
		return "", 0, fmt.Errorf("%w: no fetch strategy for kind %q", models.ErrDownloadFailed, item.Kind)
	}
}

// fetchDelegated plumbs progress through a delegated downloader and leaves
// cleanup of its output to the caller like every other strategy.
func (f *Fetcher) fetchDelegated(ctx context.Context, fetcher StreamFetcher, item *models.TransferItem, onProgress ProgressFunc, cancel CancelCheck) (string, int64, error) {
	if fetcher == nil {
		return "", 0, fmt.Errorf("%w: no downloader configured for kind %q", models.ErrDownloadFailed, item.Kind)
	}
	if err := cancel(); err != nil {
		return "", 0, err
	}

	path, size, err := fetcher.FetchStream(ctx, item.SourceURL, item.QualityHint, onProgress)
	if err != nil {
		return "", 0, err
	}
	if size > f.maxSize {
		os.Remove(path)
		return "", 0, fmt.Errorf("%w: downloaded stream is %s, limit is %s",
			models.ErrTooLarge, format.Size(size), format.Size(f.maxSize))
	}
	return path, size, nil
}

// stagingFile creates the temp file one item's bytes stream into.
func (f *Fetcher) stagingFile(filename string) (*os.File, error) {
	if err := os.MkdirAll(f.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	ext := filepath.Ext(filename)
	tmpFile, err := os.CreateTemp(f.stagingDir, fmt.Sprintf("item-*%s", ext))
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}
	return tmpFile, nil
}
