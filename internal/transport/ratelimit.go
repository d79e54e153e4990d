package transport

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/dmarwaha/release-relay/pkg/models"
)

// DefaultEditsPerSecond matches the per-chat edit budget most transports
// tolerate without throttling the bot.
const DefaultEditsPerSecond = 2

// RateLimitedChannel wraps a ReplyChannel and paces message edits through a
// token bucket. Posts and file sends pass through unpaced; only the
// high-frequency edit path is limited.
//
// A concrete chat client should wrap the ReplyChannel it hands to the
// pipeline in NewRateLimitedChannel so progress edits stay inside the
// chat API's per-message edit budget. The pipeline itself never paces
// edits; pacing is a transport property.
type RateLimitedChannel struct {
	inner   models.ReplyChannel
	limiter *rate.Limiter
}

// NewRateLimitedChannel wraps inner with an edit limiter of editsPerSecond.
func NewRateLimitedChannel(inner models.ReplyChannel, editsPerSecond float64) *RateLimitedChannel {
	return &RateLimitedChannel{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(editsPerSecond), 1),
	}
}

// Post posts through the wrapped channel, returning a rate-limited message.
func (c *RateLimitedChannel) Post(ctx context.Context, text string) (models.StatusMessage, error) {
	msg, err := c.inner.Post(ctx, text)
	if err != nil {
		return nil, err
	}
	return &rateLimitedMessage{inner: msg, limiter: c.limiter}, nil
}

// SendFile passes through to the wrapped channel.
func (c *RateLimitedChannel) SendFile(ctx context.Context, path, filename, caption string) error {
	return c.inner.SendFile(ctx, path, filename, caption)
}

type rateLimitedMessage struct {
	inner   models.StatusMessage
	limiter *rate.Limiter
}

// Edit drops the update when no token is available instead of blocking the
// transfer loop; the next eligible progress tick carries the newer numbers.
func (m *rateLimitedMessage) Edit(ctx context.Context, text string) error {
	if !m.limiter.Allow() {
		return nil
	}
	return m.inner.Edit(ctx, text)
}
