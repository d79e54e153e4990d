package hls

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/dmarwaha/release-relay/internal/fetch"
	"github.com/dmarwaha/release-relay/internal/metrics"
	"github.com/dmarwaha/release-relay/pkg/models"
)

var tracer = otel.Tracer("relay-hls")

const (
	// Segments are fetched concurrently in fixed-size batches so the
	// output file is written strictly in playlist order.
	maxConcurrentSegments = 10
	segmentBatchSize      = 20

	playlistTimeout = 30 * time.Second
)

// Some origins refuse non-browser clients, so playlist and segment
// requests carry browser-shaped headers.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Accept":          "*/*",
	"Accept-Language": "en-US,en;q=0.9",
	"Referer":         "https://www.google.com/",
}

// Fetcher downloads an HLS stream into a single staged media file.
type Fetcher struct {
	stagingDir string
	client     *http.Client
	log        *slog.Logger
}

func New(stagingDir string, log *slog.Logger) *Fetcher {
	return &Fetcher{
		stagingDir: stagingDir,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        200,
				MaxConnsPerHost:     50,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log,
	}
}

// FetchStream resolves the playlist at locator, selects a variant no
// taller than qualityHint (0 means best available) and concatenates its
// segments into a staging file. The caller owns the returned file.
func (f *Fetcher) FetchStream(ctx context.Context, locator string, qualityHint int, onProgress fetch.ProgressFunc) (string, int64, error) {
	ctx, span := tracer.Start(ctx, "hls-assemble")
	defer span.End()

	content, err := f.playlist(ctx, locator)
	if err != nil {
		return "", 0, err
	}
	if !IsPlaylist(content) {
		return "", 0, fmt.Errorf("%w: %s is not an HLS playlist", models.ErrDownloadFailed, locator)
	}

	mediaURL := locator
	if IsMaster(content) {
		variants := ParseMaster(content, locator)
		if len(variants) == 0 {
			return "", 0, fmt.Errorf("%w: master playlist has no variants", models.ErrNoSuitableStream)
		}
		variant, err := SelectVariant(variants, qualityHint)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", models.ErrNoSuitableStream, err)
		}
		span.SetAttributes(
			attribute.String("hls.variant", variant.Name),
			attribute.Int("hls.bandwidth", variant.Bandwidth),
		)
		f.log.InfoContext(ctx, "Selected HLS variant",
			"variant", variant.Name,
			"bandwidth", variant.Bandwidth)

		mediaURL = variant.URL
		if content, err = f.playlist(ctx, mediaURL); err != nil {
			return "", 0, err
		}
	}

	segments := ParseSegments(content, mediaURL)
	if len(segments) == 0 {
		return "", 0, fmt.Errorf("%w: playlist has no segments", models.ErrNoSuitableStream)
	}
	span.SetAttributes(attribute.Int("hls.segments", len(segments)))

	if err := os.MkdirAll(f.stagingDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create staging directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(f.stagingDir, "item-*.mp4")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create staging file: %w", err)
	}
	tmpPath := tmpFile.Name()

	size, err := f.assemble(ctx, segments, tmpFile, onProgress)
	if cerr := tmpFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", 0, err
	}
	return tmpPath, size, nil
}

// assemble writes segments to dst in playlist order while downloading each
// batch concurrently. A segment that fails to download is skipped after a
// warning; the total size is unknown up front, so progress reports 0 total.
func (f *Fetcher) assemble(ctx context.Context, segments []string, dst *os.File, onProgress fetch.ProgressFunc) (int64, error) {
	var written int64
	for start := 0; start < len(segments); start += segmentBatchSize {
		end := start + segmentBatchSize
		if end > len(segments) {
			end = len(segments)
		}
		batch := segments[start:end]
		results := make([][]byte, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentSegments)
		for i, segmentURL := range batch {
			i, segmentURL := i, segmentURL
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				data, err := f.segment(gctx, segmentURL)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					f.log.WarnContext(gctx, "Failed to download segment",
						"url", segmentURL,
						"error", err)
					return nil
				}
				results[i] = data
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return written, err
		}

		for _, data := range results {
			if err := ctx.Err(); err != nil {
				return written, err
			}
			if len(data) > 0 {
				n, err := dst.Write(data)
				written += int64(n)
				metrics.BytesDownloaded.Add(float64(n))
				if err != nil {
					return written, fmt.Errorf("%w: writing segment: %v", models.ErrDownloadFailed, err)
				}
			}
			if onProgress != nil {
				onProgress(written, 0)
			}
		}
	}
	return written, nil
}

func (f *Fetcher) segment(ctx context.Context, segmentURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, segmentURL, nil)
	if err != nil {
		return nil, err
	}
	setBrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (f *Fetcher) playlist(ctx context.Context, playlistURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, playlistTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return "", err
	}
	setBrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d fetching playlist", models.ErrDownloadFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrDownloadFailed, err)
	}
	return string(body), nil
}

func setBrowserHeaders(req *http.Request) {
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
}
