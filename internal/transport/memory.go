package transport

import (
	"context"
	"os"
	"sync"

	"github.com/dmarwaha/release-relay/pkg/models"
)

// MemoryChannel is an in-process ReplyChannel. It backs tests and any
// caller that wants to observe status traffic without a chat transport.
type MemoryChannel struct {
	mu       sync.Mutex
	messages []*MemoryMessage
	files    []SentFile
}

// SentFile records one SendFile call. Content is snapshotted during the
// call, since callers may remove the file as soon as SendFile returns.
type SentFile struct {
	Path     string
	Filename string
	Caption  string
	Content  []byte
}

// NewMemoryChannel creates an empty MemoryChannel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{}
}

// Post appends a new editable message and returns it.
func (c *MemoryChannel) Post(_ context.Context, text string) (models.StatusMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := &MemoryMessage{}
	msg.history = append(msg.history, text)
	c.messages = append(c.messages, msg)
	return msg, nil
}

// SendFile records the file send.
func (c *MemoryChannel) SendFile(_ context.Context, path, filename, caption string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.files = append(c.files, SentFile{Path: path, Filename: filename, Caption: caption, Content: content})
	return nil
}

// Messages returns all messages posted so far.
func (c *MemoryChannel) Messages() []*MemoryMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*MemoryMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Files returns all file sends recorded so far.
func (c *MemoryChannel) Files() []SentFile {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SentFile, len(c.files))
	copy(out, c.files)
	return out
}

// MemoryMessage is an editable in-memory status message that keeps its full
// edit history.
type MemoryMessage struct {
	mu      sync.Mutex
	history []string
}

// Edit appends a new revision.
func (m *MemoryMessage) Edit(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, text)
	return nil
}

// Current returns the latest revision.
func (m *MemoryMessage) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return ""
	}
	return m.history[len(m.history)-1]
}

// History returns every revision in order, the original post first.
func (m *MemoryMessage) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.history))
	copy(out, m.history)
	return out
}

// EditCount returns the number of edits applied after the original post.
func (m *MemoryMessage) EditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return 0
	}
	return len(m.history) - 1
}
