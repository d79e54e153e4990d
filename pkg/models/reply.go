package models

import (
	"context"
	"io"
)

// StatusMessage is one outstanding status message that can be edited in
// place. Progress updates always edit rather than post, which bounds the
// message rate against the chat transport's own limits.
type StatusMessage interface {
	Edit(ctx context.Context, text string) error
}

// ReplyChannel is the write-only sink a transfer item posts its status to.
// The pipeline never reads from the chat transport.
type ReplyChannel interface {
	Post(ctx context.Context, text string) (StatusMessage, error)
	SendFile(ctx context.Context, path, filename, caption string) error
}

// Attachment is a chat attachment that can be streamed to a local writer.
// The transport supplies (bytesSoFar, bytesTotal) pairs while streaming.
type Attachment interface {
	Name() string
	Size() int64
	Stream(ctx context.Context, dst io.Writer, onProgress func(soFar, total int64)) error
}
