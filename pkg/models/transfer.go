package models

// Size and chunking constants enforced by the pipeline.
const (
	// MaxItemSize is the largest declared size accepted for a single item.
	MaxItemSize = 4 * 1024 * 1024 * 1024

	// DownloadChunkSize is the read-chunk size for HTTP and chat downloads.
	DownloadChunkSize = 8 * 1024 * 1024

	// UploadChunkSize is the read-chunk size for streaming asset uploads.
	UploadChunkSize = 1 * 1024 * 1024
)

// SourceKind identifies where a transfer item's bytes come from.
type SourceKind string

const (
	KindTelegramDocument  SourceKind = "telegram_document"
	KindHTTPURL           SourceKind = "http_url"
	KindHLSStream         SourceKind = "hls_stream"
	KindYouTubeVideo      SourceKind = "youtube_video"
	KindTextManifestBatch SourceKind = "text_manifest_batch"
)

// IsValid returns true if the kind is a known SourceKind.
func (k SourceKind) IsValid() bool {
	switch k {
	case KindTelegramDocument, KindHTTPURL, KindHLSStream, KindYouTubeVideo, KindTextManifestBatch:
		return true
	}
	return false
}

// BatchEntry is one (filename, url) pair parsed from a text manifest.
type BatchEntry struct {
	Filename string
	URL      string
	Line     int
}

// BatchContext carries the parsed entries of a text-manifest batch along
// with the name of the manifest they came from.
type BatchContext struct {
	SourceName string
	Entries    []BatchEntry

	// ResultsFile selects the batch-with-results-file behavior: entries are
	// processed as one sequential sub-loop and a results file is produced,
	// instead of fanning the entries out as individual queue items.
	ResultsFile bool
}

// TransferItem describes one requested transfer. It is created by the
// command layer, appended to its owner's queue, consumed exactly once by
// the drain loop, and discarded. It is never retried and never persisted.
type TransferItem struct {
	Kind                SourceKind
	SourceURL           string
	Attachment          Attachment // set only for KindTelegramDocument
	DestinationFilename string
	ExpectedByteSize    int64 // 0 means unknown; disables percentage progress
	OwnerID             int64
	Reply               ReplyChannel
	Batch               *BatchContext

	// QualityHint is the desired vertical resolution for delegated
	// fetchers (HLS, YouTube); 0 means best available.
	QualityHint int

	// Position context for status text when the item is part of a fan-out.
	BatchIndex int
	BatchTotal int
}

// Validate checks that the item carries everything its kind requires.
func (t *TransferItem) Validate() error {
	if t.OwnerID == 0 {
		return ErrMissingOwner
	}
	if t.Kind != KindTextManifestBatch && t.DestinationFilename == "" {
		return ErrMissingFilename
	}
	switch t.Kind {
	case KindTelegramDocument:
		if t.Attachment == nil {
			return ErrMissingLocator
		}
	case KindTextManifestBatch:
		if t.Batch == nil || len(t.Batch.Entries) == 0 {
			return ErrMissingLocator
		}
	default:
		if t.SourceURL == "" {
			return ErrMissingLocator
		}
	}
	return nil
}

// AssetInfo describes one asset stored in the remote asset store.
type AssetInfo struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	PublicURL string `json:"browser_download_url"`
}
