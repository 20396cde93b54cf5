package interaction

import (
	"context"
	"time"

	"assistant/pkg/logx"
)

// FallbackChannel tries a primary channel (voice) and drops to a secondary
// (console) when the primary cannot deliver. The reply is awaited on
// whichever channel actually delivered the prompt.
type FallbackChannel struct {
	primary   Channel
	secondary Channel
	logger    *logx.Logger
	active    Channel
}

// NewFallbackChannel creates a channel that prefers primary.
func NewFallbackChannel(primary, secondary Channel) *FallbackChannel {
	return &FallbackChannel{
		primary:   primary,
		secondary: secondary,
		logger:    logx.NewLogger("channel"),
	}
}

// Deliver implements Channel.
func (f *FallbackChannel) Deliver(ctx context.Context, prompt string) error {
	if err := f.primary.Deliver(ctx, prompt); err == nil {
		f.active = f.primary
		return nil
	} else if ctx.Err() != nil {
		return err
	} else {
		f.logger.Warn("Primary channel unreachable, falling back: %v", err)
	}

	f.active = f.secondary
	return f.secondary.Deliver(ctx, prompt)
}

// AwaitReply implements Channel.
func (f *FallbackChannel) AwaitReply(ctx context.Context, deadline time.Time) (string, error) {
	ch := f.active
	if ch == nil {
		ch = f.secondary
	}
	return ch.AwaitReply(ctx, deadline)
}
