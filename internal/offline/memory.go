package offline

import (
	"context"
	"sync"
	"time"

	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/google/uuid"
)

// MemoryQueue keeps backlogs in process. Delivery marks live for the TTL and
// a user's entry is dropped once it holds nothing.
type MemoryQueue struct {
	opts Options

	mu        sync.Mutex
	backlogs  map[string][]entities.QueuedMessage
	delivered map[deliveryKey]time.Time
	lastPrune time.Time
}

type deliveryKey struct {
	userId    string
	messageId string
}

func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		opts:      opts.withDefaults(),
		backlogs:  map[string][]entities.QueuedMessage{},
		delivered: map[deliveryKey]time.Time{},
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, userId string, payload []byte) (entities.QueuedMessage, error) {
	now := q.opts.Now()
	msg := entities.QueuedMessage{
		Id:        uuid.NewString(),
		UserId:    userId,
		Payload:   append([]byte(nil), payload...),
		Timestamp: now,
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(now)
	messages := append(q.live(q.backlogs[userId]), msg)
	if over := len(messages) - q.opts.MaxBacklog; over > 0 {
		messages = append([]entities.QueuedMessage(nil), messages[over:]...)
	}
	q.backlogs[userId] = messages
	return msg, nil
}

func (q *MemoryQueue) Drain(_ context.Context, userId string) ([]entities.QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(q.opts.Now())
	messages := q.backlogs[userId]
	delete(q.backlogs, userId)
	return q.live(messages), nil
}

func (q *MemoryQueue) MarkDelivered(_ context.Context, userId, messageId string) error {
	now := q.opts.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(now)
	q.delivered[deliveryKey{userId: userId, messageId: messageId}] = now
	return nil
}

// Delivered reports whether messageId was marked delivered for the user
// within the TTL.
func (q *MemoryQueue) Delivered(userId, messageId string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	at, ok := q.delivered[deliveryKey{userId: userId, messageId: messageId}]
	return ok && q.opts.Now().Sub(at) <= q.opts.TTL
}

// prune drops expired delivery marks and backlogs with nothing live. It scans
// at most once per TTL. Callers hold q.mu.
func (q *MemoryQueue) prune(now time.Time) {
	if now.Sub(q.lastPrune) < q.opts.TTL {
		return
	}
	q.lastPrune = now
	for key, at := range q.delivered {
		if now.Sub(at) > q.opts.TTL {
			delete(q.delivered, key)
		}
	}
	for userId, messages := range q.backlogs {
		if live := q.live(messages); len(live) > 0 {
			q.backlogs[userId] = live
		} else {
			delete(q.backlogs, userId)
		}
	}
}

// retained reports how many backlogs and delivery marks are held.
func (q *MemoryQueue) retained() (backlogs, delivered int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlogs), len(q.delivered)
}

func (q *MemoryQueue) live(messages []entities.QueuedMessage) []entities.QueuedMessage {
	out := messages[:0:0]
	for _, msg := range messages {
		if !q.opts.expired(msg) {
			out = append(out, msg)
		}
	}
	return out
}
