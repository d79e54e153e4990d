package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dmarwaha/release-relay/internal/metrics"
	"github.com/dmarwaha/release-relay/pkg/models"
)

// HTTP transport limits. Some origins reject non-browser clients, so every
// request carries a generic browser User-Agent.
const (
	ConnectTimeout  = 30 * time.Second
	MaxConns        = 100
	MaxConnsPerHost = 30
	IdleConnTimeout = 90 * time.Second

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

type httpClient struct {
	*http.Client
}

// newHTTPClient builds the shared download client: pooled keep-alive
// connections, a connect timeout, and no overall request timeout so large
// transfers can run as long as they keep moving.
func newHTTPClient() *httpClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        MaxConns,
		MaxConnsPerHost:     MaxConnsPerHost,
		MaxIdleConnsPerHost: MaxConnsPerHost,
		IdleConnTimeout:     IdleConnTimeout,
	}

	return &httpClient{Client: &http.Client{Transport: transport}}
}

// fetchURL streams an HTTP(S) source into a staging file in 8 MiB chunks.
// The response body is registered with the owner's session set so a global
// stop can force-close it mid-transfer.
func (f *Fetcher) fetchURL(ctx context.Context, item *models.TransferItem, sessions Sessions, onProgress ProgressFunc, cancel CancelCheck) (string, int64, error) {
	ctx, span := tracer.Start(ctx, "fetch-url")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.SourceURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", models.ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", models.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("%w: HTTP %d", models.ErrDownloadFailed, resp.StatusCode)
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	if total > f.maxSize {
		return "", 0, fmt.Errorf("%w: Content-Length %d exceeds limit", models.ErrTooLarge, total)
	}

	if sessions != nil {
		sessions.Add(item.OwnerID, resp.Body)
		defer sessions.Remove(item.OwnerID, resp.Body)
	}

	tmpFile, err := f.stagingFile(item.DestinationFilename)
	if err != nil {
		return "", 0, err
	}
	tmpPath := tmpFile.Name()

	written, err := f.copyChunked(tmpFile, resp, total, onProgress, cancel)
	if closeErr := tmpFile.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %v", models.ErrDownloadFailed, closeErr)
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", 0, err
	}

	span.SetAttributes(attribute.Int64("download.size_bytes", written))
	return tmpPath, written, nil
}

// copyChunked is the shared chunk loop: cancel check first, then write,
// then accumulate, then progress.
func (f *Fetcher) copyChunked(dst *os.File, resp *http.Response, total int64, onProgress ProgressFunc, cancel CancelCheck) (int64, error) {
	buf := make([]byte, models.DownloadChunkSize)
	var written int64

	for {
		if err := cancel(); err != nil {
			return written, err
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("%w: %v", models.ErrDownloadFailed, err)
			}
			written += int64(n)
			metrics.BytesDownloaded.Add(float64(n))
			if written > f.maxSize {
				return written, fmt.Errorf("%w: response grew past the limit", models.ErrTooLarge)
			}
			if onProgress != nil {
				onProgress(written, total)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			// A force-closed session surfaces as a read error; report the
			// stop rather than a generic download failure.
			if err := cancel(); err != nil {
				return written, err
			}
			return written, fmt.Errorf("%w: %v", models.ErrDownloadFailed, readErr)
		}
	}
}
