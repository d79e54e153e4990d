// Package pipeline executes transfer items end to end: materialize the
// source into staging, stream it to the asset store, and keep the owner's
// status message current throughout. It is the processor behind the
// per-owner queues.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dmarwaha/release-relay/internal/fetch"
	"github.com/dmarwaha/release-relay/internal/format"
	"github.com/dmarwaha/release-relay/internal/manifest"
	"github.com/dmarwaha/release-relay/internal/metrics"
	"github.com/dmarwaha/release-relay/internal/progress"
	"github.com/dmarwaha/release-relay/internal/queue"
	"github.com/dmarwaha/release-relay/internal/sanitize"
	"github.com/dmarwaha/release-relay/internal/store"
	"github.com/dmarwaha/release-relay/pkg/models"
)

var tracer = otel.Tracer("relay-pipeline")

// Fetcher materializes an item's source bytes into a staging file.
// *fetch.Fetcher satisfies this.
type Fetcher interface {
	Fetch(ctx context.Context, item *models.TransferItem, sessions fetch.Sessions, onProgress fetch.ProgressFunc, cancel fetch.CancelCheck) (string, int64, error)
}

// Enqueuer re-queues items, used when a batch fans out into individual
// transfers. *queue.Coordinator satisfies this.
type Enqueuer interface {
	Enqueue(ctx context.Context, item *models.TransferItem) int
}

// LinkWrapper turns a raw store URL into the public link shared with
// users. Optional; without one the store URL is shared directly.
type LinkWrapper interface {
	WrapURL(assetName, rawURL string) (string, error)
}

// Pipeline is the queue.Processor for every source kind.
type Pipeline struct {
	fetcher    Fetcher
	store      store.AssetStore
	links      LinkWrapper
	enq        Enqueuer
	stagingDir string
	log        *slog.Logger
}

// Config holds Pipeline dependencies. Links is optional.
type Config struct {
	Fetcher    Fetcher
	Store      store.AssetStore
	Links      LinkWrapper
	StagingDir string
	Log        *slog.Logger
}

func New(cfg *Config) *Pipeline {
	return &Pipeline{
		fetcher:    cfg.Fetcher,
		store:      cfg.Store,
		links:      cfg.Links,
		stagingDir: cfg.StagingDir,
		log:        cfg.Log,
	}
}

// SetEnqueuer wires the coordinator back in for batch fan-out. Called once
// during startup, after the coordinator is constructed around this
// pipeline.
func (p *Pipeline) SetEnqueuer(enq Enqueuer) {
	p.enq = enq
}

// Process implements queue.Processor.
func (p *Pipeline) Process(ctx context.Context, item *models.TransferItem, ic queue.ItemContext) error {
	if err := item.Validate(); err != nil {
		p.post(ctx, item.Reply, fmt.Sprintf("❌ Invalid transfer request: %v", err))
		return err
	}

	if item.Kind == models.KindTextManifestBatch {
		return p.processBatch(ctx, item, ic)
	}
	return p.processSingle(ctx, item, ic)
}

func (p *Pipeline) processSingle(ctx context.Context, item *models.TransferItem, ic queue.ItemContext) error {
	msg := p.post(ctx, item.Reply, fmt.Sprintf("⏳ Starting transfer of %s...", item.DestinationFilename))

	asset, err := p.transfer(ctx, item, msg, ic)
	if err != nil {
		p.edit(ctx, msg, failureText(item.DestinationFilename, err))
		return err
	}

	p.edit(ctx, msg, p.successText(ctx, asset, ic))
	return nil
}

// transfer runs the fetch and upload halves for one item, cleaning up the
// staging file on every path.
func (p *Pipeline) transfer(ctx context.Context, item *models.TransferItem, msg models.StatusMessage, ic queue.ItemContext) (models.AssetInfo, error) {
	ctx, span := tracer.Start(ctx, "transfer-item")
	defer span.End()
	span.SetAttributes(
		attribute.String("item.kind", string(item.Kind)),
		attribute.String("item.filename", item.DestinationFilename),
	)

	dlStart := time.Now()
	var dl *progress.Tracker
	tmpPath, size, err := p.fetcher.Fetch(ctx, item, ic.Sessions, func(soFar, total int64) {
		if dl == nil {
			if total == 0 {
				total = item.ExpectedByteSize
			}
			dl = progress.NewTracker(msg, downloadHeader(item), item.DestinationFilename, total, ic.Remaining)
		}
		dl.Update(ctx, soFar)
	}, ic.CancelCheck)
	if err != nil {
		return models.AssetInfo{}, err
	}
	defer os.Remove(tmpPath)
	metrics.DownloadDuration.Observe(time.Since(dlStart).Seconds())
	span.SetAttributes(attribute.Int64("item.size_bytes", size))

	upStart := time.Now()
	up := progress.NewTracker(msg, uploadHeader(item), item.DestinationFilename, size, ic.Remaining)
	asset, err := p.store.Upload(ctx, tmpPath, item.DestinationFilename, func(sent, total int64) {
		up.Update(ctx, sent)
	}, store.CancelCheck(ic.CancelCheck))
	if err != nil {
		return models.AssetInfo{}, err
	}
	metrics.UploadDuration.Observe(time.Since(upStart).Seconds())

	return asset, nil
}

func (p *Pipeline) processBatch(ctx context.Context, item *models.TransferItem, ic queue.ItemContext) error {
	batch := item.Batch
	if batch.ResultsFile {
		return p.processBatchSequential(ctx, item, ic)
	}

	if p.enq == nil {
		return fmt.Errorf("%w: batch fan-out is not wired", models.ErrDownloadFailed)
	}

	queued := 0
	total := len(batch.Entries)
	for i, entry := range batch.Entries {
		child := p.batchChild(item, entry, i+1, total)
		if pos := p.enq.Enqueue(ctx, child); pos > 0 {
			queued++
		}
	}

	p.post(ctx, item.Reply, fmt.Sprintf("📦 Queued %d files from %s", queued, batch.SourceName))
	p.log.InfoContext(ctx, "Batch fanned out",
		"source", batch.SourceName,
		"entries", total,
		"queued", queued)
	return nil
}

// processBatchSequential runs every entry in a tight sub-loop and delivers
// a results file that parses back as a manifest. A failed entry is
// recorded and skipped; only an admin stop aborts the loop.
func (p *Pipeline) processBatchSequential(ctx context.Context, item *models.TransferItem, ic queue.ItemContext) error {
	batch := item.Batch
	total := len(batch.Entries)
	msg := p.post(ctx, item.Reply, fmt.Sprintf("📦 Processing %d files from %s...", total, batch.SourceName))

	results := make([]manifest.Result, 0, total)
	for i, entry := range batch.Entries {
		if err := ic.CancelCheck(); err != nil {
			p.edit(ctx, msg, failureText(batch.SourceName, err))
			return err
		}

		child := p.batchChild(item, entry, i+1, total)
		named := entry
		named.Filename = child.DestinationFilename

		asset, err := p.transfer(ctx, child, msg, ic)
		if err != nil {
			if errors.Is(err, models.ErrStoppedByAdmin) {
				p.edit(ctx, msg, failureText(batch.SourceName, err))
				return err
			}
			p.log.ErrorContext(ctx, "Batch entry failed",
				"source", batch.SourceName,
				"filename", named.Filename,
				"error", err)
			results = append(results, manifest.Result{Entry: named, Err: err})
			continue
		}
		results = append(results, manifest.Result{Entry: named, PublicURL: p.publicURL(ctx, asset)})
	}

	summary := manifest.Summary(results)
	if path, err := p.writeResults(batch.SourceName, results); err == nil {
		defer os.Remove(path)
		if err := item.Reply.SendFile(ctx, path, filepath.Base(path), summary); err != nil {
			p.log.ErrorContext(ctx, "Failed to send results file", "error", err)
		}
	} else {
		p.log.ErrorContext(ctx, "Failed to write results file", "error", err)
	}

	p.edit(ctx, msg, summary)
	return nil
}

// batchChild builds the individual transfer for one manifest entry. HLS
// entries are assembled into mp4 containers, so the destination name is
// adjusted to match.
func (p *Pipeline) batchChild(item *models.TransferItem, entry models.BatchEntry, index, total int) *models.TransferItem {
	name := sanitize.Filename(entry.Filename)
	kind := manifest.EntryKind(entry)
	if kind == models.KindHLSStream && !strings.HasSuffix(strings.ToLower(name), ".mp4") {
		name += ".mp4"
	}
	return &models.TransferItem{
		Kind:                kind,
		SourceURL:           entry.URL,
		DestinationFilename: name,
		OwnerID:             item.OwnerID,
		Reply:               item.Reply,
		QualityHint:         item.QualityHint,
		BatchIndex:          index,
		BatchTotal:          total,
	}
}

func (p *Pipeline) writeResults(sourceName string, results []manifest.Result) (string, error) {
	if err := os.MkdirAll(p.stagingDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(p.stagingDir, manifest.ResultsFilename())
	content := manifest.ResultsFile(sourceName, results, time.Now())
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (p *Pipeline) successText(ctx context.Context, asset models.AssetInfo, ic queue.ItemContext) string {
	var b strings.Builder
	b.WriteString("✅ Upload complete!\n\n")
	fmt.Fprintf(&b, "📁 %s\n", asset.Name)
	fmt.Fprintf(&b, "📊 %s\n", format.Size(asset.Size))
	fmt.Fprintf(&b, "🔗 %s\n", p.publicURL(ctx, asset))
	if ic.Remaining != nil {
		fmt.Fprintf(&b, "📋 Remaining: %d files\n", ic.Remaining())
	}
	return b.String()
}

func (p *Pipeline) publicURL(ctx context.Context, asset models.AssetInfo) string {
	if p.links == nil {
		return asset.PublicURL
	}
	wrapped, err := p.links.WrapURL(asset.Name, asset.PublicURL)
	if err != nil {
		p.log.WarnContext(ctx, "Failed to wrap public link, sharing raw URL",
			"asset", asset.Name,
			"error", err)
		return asset.PublicURL
	}
	return wrapped
}

func failureText(name string, err error) string {
	if errors.Is(err, models.ErrStoppedByAdmin) {
		return fmt.Sprintf("🛑 Transfer of %s stopped by admin.", name)
	}
	return fmt.Sprintf("❌ Upload of %s failed\n\n⚠️ %v", name, err)
}

func downloadHeader(item *models.TransferItem) string {
	if item.BatchTotal > 0 {
		return fmt.Sprintf("⬇️ Downloading (%d/%d)...", item.BatchIndex, item.BatchTotal)
	}
	return "⬇️ Downloading..."
}

func uploadHeader(item *models.TransferItem) string {
	if item.BatchTotal > 0 {
		return fmt.Sprintf("⬆️ Uploading (%d/%d)...", item.BatchIndex, item.BatchTotal)
	}
	return "⬆️ Uploading..."
}

// post sends a fresh status message, degrading to a no-op message when the
// reply channel rejects it: a missed status line never fails a transfer.
func (p *Pipeline) post(ctx context.Context, reply models.ReplyChannel, text string) models.StatusMessage {
	msg, err := reply.Post(ctx, text)
	if err != nil {
		p.log.WarnContext(ctx, "Failed to post status message", "error", err)
		return nopMessage{}
	}
	return msg
}

func (p *Pipeline) edit(ctx context.Context, msg models.StatusMessage, text string) {
	_ = msg.Edit(ctx, text)
}

type nopMessage struct{}

func (nopMessage) Edit(context.Context, string) error { return nil }
