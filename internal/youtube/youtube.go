// Package youtube downloads videos through yt-dlp into local staging.
package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dmarwaha/release-relay/internal/fetch"
	"github.com/dmarwaha/release-relay/internal/metrics"
	"github.com/dmarwaha/release-relay/pkg/models"
)

var tracer = otel.Tracer("relay-youtube")

const progressInterval = 500 * time.Millisecond

// Fetcher resolves a video page URL to a downloaded media file.
type Fetcher struct {
	stagingDir string
	log        *slog.Logger
}

func New(stagingDir string, log *slog.Logger) *Fetcher {
	return &Fetcher{stagingDir: stagingDir, log: log}
}

// Install ensures a yt-dlp binary is available, downloading one if needed.
// Called once at startup.
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("yt-dlp install: %w", err)
	}
	return nil
}

// FetchStream downloads the video at locator. qualityHint caps the video
// height when non-zero. The caller owns the returned file.
func (f *Fetcher) FetchStream(ctx context.Context, locator string, qualityHint int, onProgress fetch.ProgressFunc) (string, int64, error) {
	ctx, span := tracer.Start(ctx, "youtube-download")
	defer span.End()
	span.SetAttributes(attribute.Int("youtube.quality_hint", qualityHint))

	if err := os.MkdirAll(f.stagingDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create staging directory: %w", err)
	}

	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		Output(f.stagingDir + "/%(title)s.%(ext)s")
	if qualityHint > 0 {
		dl = dl.Format(fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", qualityHint, qualityHint))
	}

	var lastBytes int64
	dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
		downloaded := int64(update.DownloadedBytes)
		if downloaded > lastBytes {
			metrics.BytesDownloaded.Add(float64(downloaded - lastBytes))
			lastBytes = downloaded
		}
		if onProgress != nil {
			onProgress(downloaded, int64(update.TotalBytes))
		}
	})

	result, err := dl.Run(ctx, locator)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, fmt.Errorf("%w: %v", models.ErrDownloadFailed, err)
	}

	info, err := result.GetExtractedInfo()
	if err != nil || len(info) == 0 || info[0].Filename == nil {
		return "", 0, fmt.Errorf("%w: no downloadable stream for %s", models.ErrNoSuitableStream, locator)
	}
	path := *info[0].Filename

	fi, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: downloaded file missing: %v", models.ErrDownloadFailed, err)
	}
	f.log.InfoContext(ctx, "Video downloaded",
		"path", path,
		"size_bytes", fi.Size())
	return path, fi.Size(), nil
}
