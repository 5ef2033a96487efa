package offline

import (
	"context"
	"time"

	"github.com/chess-vn/slduel/internal/domains/entities"
)

const (
	DefaultTTL        = time.Hour
	DefaultMaxBacklog = 100
)

// Queue holds messages for users with no live connection. It is best-effort:
// entries expire after the TTL and the oldest are dropped once a user's
// backlog exceeds MaxBacklog.
type Queue interface {
	Enqueue(ctx context.Context, userId string, payload []byte) (entities.QueuedMessage, error)
	// Drain atomically removes and returns the user's unexpired messages,
	// oldest first.
	Drain(ctx context.Context, userId string) ([]entities.QueuedMessage, error)
	MarkDelivered(ctx context.Context, userId, messageId string) error
}

type Options struct {
	TTL        time.Duration
	MaxBacklog int
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.MaxBacklog <= 0 {
		o.MaxBacklog = DefaultMaxBacklog
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) expired(msg entities.QueuedMessage) bool {
	return o.Now().Sub(msg.Timestamp) > o.TTL
}
