package models

import "testing"

func TestSourceKindIsValid(t *testing.T) {
	tests := []struct {
		kind SourceKind
		want bool
	}{
		{KindTelegramDocument, true},
		{KindHTTPURL, true},
		{KindHLSStream, true},
		{KindYouTubeVideo, true},
		{KindTextManifestBatch, true},
		{SourceKind("magnet"), false},
		{SourceKind(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransferItemValidate(t *testing.T) {
	tests := []struct {
		name    string
		item    TransferItem
		wantErr error
	}{
		{
			name:    "missing owner",
			item:    TransferItem{Kind: KindHTTPURL, SourceURL: "http://x/a.bin", DestinationFilename: "a.bin"},
			wantErr: ErrMissingOwner,
		},
		{
			name:    "missing filename",
			item:    TransferItem{Kind: KindHTTPURL, SourceURL: "http://x/a.bin", OwnerID: 1},
			wantErr: ErrMissingFilename,
		},
		{
			name:    "url kind without url",
			item:    TransferItem{Kind: KindHTTPURL, DestinationFilename: "a.bin", OwnerID: 1},
			wantErr: ErrMissingLocator,
		},
		{
			name:    "document kind without attachment",
			item:    TransferItem{Kind: KindTelegramDocument, DestinationFilename: "a.bin", OwnerID: 1},
			wantErr: ErrMissingLocator,
		},
		{
			name:    "batch kind without entries",
			item:    TransferItem{Kind: KindTextManifestBatch, OwnerID: 1, Batch: &BatchContext{}},
			wantErr: ErrMissingLocator,
		},
		{
			name: "valid url item",
			item: TransferItem{Kind: KindHTTPURL, SourceURL: "http://x/a.bin", DestinationFilename: "a.bin", OwnerID: 1},
		},
		{
			name: "valid batch item",
			item: TransferItem{
				Kind:    KindTextManifestBatch,
				OwnerID: 1,
				Batch:   &BatchContext{Entries: []BatchEntry{{Filename: "a.bin", URL: "http://x/a.bin"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
