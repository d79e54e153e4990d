package fetch

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dmarwaha/release-relay/internal/metrics"
	"github.com/dmarwaha/release-relay/pkg/models"
)

// fetchAttachment streams a chat attachment into a staging file using the
// transport's own chunked-read primitive. The transport drives the
// (soFar, total) progress pairs; the cancel check rides along inside the
// progress callback, which the transport invokes at every chunk.
func (f *Fetcher) fetchAttachment(ctx context.Context, item *models.TransferItem, onProgress ProgressFunc, cancel CancelCheck) (string, int64, error) {
	ctx, span := tracer.Start(ctx, "fetch-attachment")
	defer span.End()

	att := item.Attachment

	tmpFile, err := f.stagingFile(item.DestinationFilename)
	if err != nil {
		return "", 0, err
	}
	tmpPath := tmpFile.Name()

	// The stream context is cancelled as soon as the stop flag trips, so
	// the transport aborts within one of its own chunk intervals.
	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	var stopped bool
	var lastSoFar int64
	err = att.Stream(streamCtx, tmpFile, func(soFar, total int64) {
		if cancel() != nil {
			stopped = true
			cancelStream()
			return
		}
		if soFar > lastSoFar {
			metrics.BytesDownloaded.Add(float64(soFar - lastSoFar))
			lastSoFar = soFar
		}
		if onProgress != nil {
			onProgress(soFar, total)
		}
	})

	if closeErr := tmpFile.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %v", models.ErrDownloadFailed, closeErr)
	}
	if stopped {
		err = models.ErrStoppedByAdmin
	}
	if err != nil {
		os.Remove(tmpPath)
		if stopped {
			return "", 0, models.ErrStoppedByAdmin
		}
		return "", 0, fmt.Errorf("%w: %v", models.ErrDownloadFailed, err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("%w: %v", models.ErrDownloadFailed, err)
	}

	span.SetAttributes(attribute.Int64("download.size_bytes", info.Size()))
	return tmpPath, info.Size(), nil
}
