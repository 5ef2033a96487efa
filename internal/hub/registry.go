package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/chess-vn/slduel/internal/offline"
	"github.com/chess-vn/slduel/pkg/logging"
	"go.uber.org/zap"
)

const DefaultHeartbeatInterval = 30 * time.Second

// Registry tracks the live channels of every user. Each user has a cell with
// its own lock so deliveries to different users never contend.
type Registry struct {
	cells       sync.Map // user id -> *cell
	queue       offline.Queue
	metrics     *Metrics
	connections atomic.Int64

	hooksMu      sync.RWMutex
	onDisconnect []func(Channel)
}

type cell struct {
	mu       sync.Mutex
	channels map[string]*entry
	// dead is set once the cell has been removed from the map; writers that
	// raced the removal must load a fresh cell.
	dead bool
}

type entry struct {
	ch      Channel
	pending bool
}

func NewRegistry(queue offline.Queue, metrics *Metrics) *Registry {
	return &Registry{
		queue:   queue,
		metrics: metrics,
	}
}

// OnDisconnect adds a hook run for every channel removed from the registry.
func (r *Registry) OnDisconnect(fn func(Channel)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.onDisconnect = append(r.onDisconnect, fn)
}

func (r *Registry) lockCell(userId string) *cell {
	for {
		v, _ := r.cells.LoadOrStore(userId, &cell{channels: map[string]*entry{}})
		c := v.(*cell)
		c.mu.Lock()
		if !c.dead {
			return c
		}
		c.mu.Unlock()
	}
}

// Register admits ch and replays the user's offline backlog to it. Registering
// the same channel twice is a no-op.
func (r *Registry) Register(ctx context.Context, ch Channel) {
	c := r.lockCell(ch.UserId())
	if _, ok := c.channels[ch.Id()]; ok {
		c.mu.Unlock()
		return
	}
	c.channels[ch.Id()] = &entry{ch: ch}
	c.mu.Unlock()

	r.connections.Add(1)
	r.metrics.addConnections(1)
	logging.Info("channel registered",
		zap.String("userId", ch.UserId()),
		zap.String("channelId", ch.Id()),
	)
	r.replay(ctx, ch.UserId(), ch.Send)
}

// Unregister removes ch. When it was the user's last channel the user is
// offline from then on.
func (r *Registry) Unregister(ch Channel) {
	v, ok := r.cells.Load(ch.UserId())
	if !ok {
		return
	}
	c := v.(*cell)
	c.mu.Lock()
	if _, ok := c.channels[ch.Id()]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.channels, ch.Id())
	if len(c.channels) == 0 {
		c.dead = true
		r.cells.Delete(ch.UserId())
	}
	c.mu.Unlock()

	r.connections.Add(-1)
	r.metrics.addConnections(-1)
	logging.Info("channel unregistered",
		zap.String("userId", ch.UserId()),
		zap.String("channelId", ch.Id()),
	)

	r.hooksMu.RLock()
	hooks := r.onDisconnect
	r.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ch)
	}
}

func (r *Registry) channels(userId string) []Channel {
	v, ok := r.cells.Load(userId)
	if !ok {
		return nil
	}
	c := v.(*cell)
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Channel, 0, len(c.channels))
	for _, e := range c.channels {
		out = append(out, e.ch)
	}
	return out
}

// DeliverToUser writes msg to every live channel of the user and reports
// whether at least one accepted it.
func (r *Registry) DeliverToUser(userId string, msg []byte) bool {
	delivered := false
	for _, ch := range r.channels(userId) {
		if ch.Send(msg) {
			delivered = true
		} else {
			logging.Debug("channel rejected message",
				zap.String("userId", userId),
				zap.String("channelId", ch.Id()),
			)
		}
	}
	return delivered
}

// Send delivers msg live or queues it for the user's next connection.
func (r *Registry) Send(ctx context.Context, userId string, msg []byte) bool {
	if r.DeliverToUser(userId, msg) {
		return true
	}
	if r.queue == nil {
		return false
	}
	if _, err := r.queue.Enqueue(ctx, userId, msg); err != nil {
		logging.Error("failed to queue message", zap.String("userId", userId), zap.Error(err))
		return false
	}
	r.metrics.enqueued()
	// The user may have connected after the failed delivery but before the
	// message was queued.
	if r.Online(userId) {
		r.replay(ctx, userId, func(msg []byte) bool {
			return r.DeliverToUser(userId, msg)
		})
	}
	return false
}

// MarkDelivered records a client acknowledgement.
func (r *Registry) MarkDelivered(ctx context.Context, userId, messageId string) {
	if r.queue == nil {
		return
	}
	if err := r.queue.MarkDelivered(ctx, userId, messageId); err != nil {
		logging.Warn("failed to mark message delivered",
			zap.String("userId", userId),
			zap.String("messageId", messageId),
			zap.Error(err),
		)
	}
}

// replay drains the user's backlog through send in FIFO order, each frame
// stamped with its queued id. Whatever send refuses goes back on the queue.
func (r *Registry) replay(ctx context.Context, userId string, send func([]byte) bool) {
	if r.queue == nil {
		return
	}
	messages, err := r.queue.Drain(ctx, userId)
	if err != nil {
		logging.Error("failed to drain offline queue", zap.String("userId", userId), zap.Error(err))
		return
	}
	for i, msg := range messages {
		if !send(withMessageId(msg.Payload, msg.Id)) {
			r.requeue(ctx, userId, messages[i:])
			return
		}
		r.MarkDelivered(ctx, userId, msg.Id)
	}
	if len(messages) > 0 {
		logging.Info("replayed offline messages",
			zap.String("userId", userId),
			zap.Int("count", len(messages)),
		)
	}
}

func (r *Registry) requeue(ctx context.Context, userId string, messages []entities.QueuedMessage) {
	for _, msg := range messages {
		if _, err := r.queue.Enqueue(ctx, userId, msg.Payload); err != nil {
			logging.Error("failed to requeue message", zap.String("userId", userId), zap.Error(err))
			return
		}
	}
}

// MarkAlive clears the pending probe of ch.
func (r *Registry) MarkAlive(ch Channel) {
	v, ok := r.cells.Load(ch.UserId())
	if !ok {
		return
	}
	c := v.(*cell)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.channels[ch.Id()]; ok {
		e.pending = false
	}
}

// Probe runs one heartbeat round. Channels that left the previous probe
// unanswered are closed and unregistered; the rest are marked pending and
// pinged. It returns the number of evicted channels.
func (r *Registry) Probe() int {
	var stale, live []Channel
	r.cells.Range(func(_, v any) bool {
		c := v.(*cell)
		c.mu.Lock()
		for _, e := range c.channels {
			if e.pending {
				stale = append(stale, e.ch)
				continue
			}
			e.pending = true
			live = append(live, e.ch)
		}
		c.mu.Unlock()
		return true
	})

	for _, ch := range live {
		if err := ch.Ping(); err != nil {
			stale = append(stale, ch)
		}
	}
	for _, ch := range stale {
		ch.Close()
		r.Unregister(ch)
		r.metrics.evicted()
	}
	if len(stale) > 0 {
		logging.Debug("heartbeat evicted channels", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// StartHeartbeat probes every interval until ctx is done.
func (r *Registry) StartHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Probe()
			}
		}
	}()
}

func (r *Registry) Online(userId string) bool {
	return len(r.channels(userId)) > 0
}

func (r *Registry) Connections() int {
	return int(r.connections.Load())
}

func (r *Registry) Users() int {
	n := 0
	r.cells.Range(func(_, v any) bool {
		c := v.(*cell)
		c.mu.Lock()
		if len(c.channels) > 0 {
			n++
		}
		c.mu.Unlock()
		return true
	})
	return n
}
