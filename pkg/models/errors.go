package models

import "errors"

// Sentinel errors for transfer operations.
var (
	// Validation errors
	ErrMissingOwner    = errors.New("owner id is required")
	ErrMissingFilename = errors.New("destination filename is required")
	ErrMissingLocator  = errors.New("source locator is required")

	// Transfer errors
	ErrTooLarge         = errors.New("file exceeds maximum allowed size")
	ErrDownloadFailed   = errors.New("failed to download source")
	ErrUploadFailed     = errors.New("failed to upload asset")
	ErrNoSuitableStream = errors.New("no suitable stream found")
	ErrStoppedByAdmin   = errors.New("stopped by admin")

	// Store errors
	ErrStoreUnavailable = errors.New("asset store unavailable")
	ErrAssetNotFound    = errors.New("asset not found")

	// Batch errors
	ErrInvalidManifestEntry = errors.New("invalid manifest entry")
)
