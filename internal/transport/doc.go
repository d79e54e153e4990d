// Package transport provides reply-channel implementations for the chat
// boundary: an in-memory channel for tests and embedding, and a
// rate-limited wrapper that paces status edits. The concrete chat client
// (the command surface) lives outside the pipeline and only needs to
// satisfy models.ReplyChannel.
package transport
