package offline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type backend struct {
	name  string
	build func(t *testing.T, opts Options) Queue
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			build: func(_ *testing.T, opts Options) Queue {
				return NewMemoryQueue(opts)
			},
		},
		{
			name: "redis",
			build: func(t *testing.T, opts Options) Queue {
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { rdb.Close() })
				return NewRedisQueue(rdb, opts)
			},
		},
	}
}

func TestQueueDrainFIFO(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			q := b.build(t, Options{})

			for i := 0; i < 3; i++ {
				msg, err := q.Enqueue(ctx, "alice", []byte(fmt.Sprintf("m%d", i)))
				require.NoError(t, err)
				assert.NotEmpty(t, msg.Id)
				assert.Equal(t, "alice", msg.UserId)
			}
			_, err := q.Enqueue(ctx, "bob", []byte("other"))
			require.NoError(t, err)

			messages, err := q.Drain(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, messages, 3)
			for i, msg := range messages {
				assert.Equal(t, fmt.Sprintf("m%d", i), string(msg.Payload))
			}

			again, err := q.Drain(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, again)

			others, err := q.Drain(ctx, "bob")
			require.NoError(t, err)
			assert.Len(t, others, 1)
		})
	}
}

func TestQueueDropsOldestBeyondBacklog(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			q := b.build(t, Options{MaxBacklog: 3})

			for i := 0; i < 5; i++ {
				_, err := q.Enqueue(ctx, "alice", []byte(fmt.Sprintf("m%d", i)))
				require.NoError(t, err)
			}

			messages, err := q.Drain(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, messages, 3)
			assert.Equal(t, "m2", string(messages[0].Payload))
			assert.Equal(t, "m4", string(messages[2].Payload))
		})
	}
}

func TestQueueSkipsExpired(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			q := b.build(t, Options{TTL: time.Hour, Now: clock.Now})

			_, err := q.Enqueue(ctx, "alice", []byte("stale"))
			require.NoError(t, err)
			clock.Advance(45 * time.Minute)
			_, err = q.Enqueue(ctx, "alice", []byte("fresh"))
			require.NoError(t, err)
			clock.Advance(30 * time.Minute)

			messages, err := q.Drain(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, messages, 1)
			assert.Equal(t, "fresh", string(messages[0].Payload))
		})
	}
}

func TestQueueConcurrentDrainReturnsEachMessageOnce(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			q := b.build(t, Options{})
			for i := 0; i < 20; i++ {
				_, err := q.Enqueue(ctx, "alice", []byte(fmt.Sprintf("m%d", i)))
				require.NoError(t, err)
			}

			var mu sync.Mutex
			total := 0
			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					messages, err := q.Drain(ctx, "alice")
					assert.NoError(t, err)
					mu.Lock()
					total += len(messages)
					mu.Unlock()
				}()
			}
			wg.Wait()
			assert.Equal(t, 20, total)
		})
	}
}

func TestRedisQueueKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	q := NewRedisQueue(rdb, Options{TTL: time.Minute})

	msg, err := q.Enqueue(ctx, "alice", []byte("hello"))
	require.NoError(t, err)
	assert.True(t, mr.Exists(messagesKey("alice")))
	assert.Equal(t, time.Minute, mr.TTL(messagesKey("alice")))

	require.NoError(t, q.MarkDelivered(ctx, "alice", msg.Id))
	delivered, err := mr.IsMember(deliveredKey("alice"), msg.Id)
	require.NoError(t, err)
	assert.True(t, delivered)

	mr.FastForward(2 * time.Minute)
	messages, err := q.Drain(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.False(t, mr.Exists(deliveredKey("alice")))
}

func TestMemoryQueueMarkDelivered(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(Options{})
	msg, err := q.Enqueue(ctx, "alice", []byte("hello"))
	require.NoError(t, err)

	assert.False(t, q.Delivered("alice", msg.Id))
	require.NoError(t, q.MarkDelivered(ctx, "alice", msg.Id))
	assert.True(t, q.Delivered("alice", msg.Id))
}

func TestMemoryQueueReleasesDeliveredState(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := NewMemoryQueue(Options{TTL: time.Minute, Now: clock.Now})

	for i := 0; i < 1000; i++ {
		userId := fmt.Sprintf("user-%d", i%10)
		_, err := q.Enqueue(ctx, userId, []byte("hello"))
		require.NoError(t, err)
		messages, err := q.Drain(ctx, userId)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		require.NoError(t, q.MarkDelivered(ctx, userId, messages[0].Id))
	}
	backlogs, delivered := q.retained()
	assert.Zero(t, backlogs)
	assert.Equal(t, 1000, delivered)

	_, err := q.Enqueue(ctx, "idle", []byte("stale"))
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)

	_, err = q.Drain(ctx, "user-0")
	require.NoError(t, err)
	backlogs, delivered = q.retained()
	assert.Zero(t, backlogs)
	assert.Zero(t, delivered)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	rdb.Close()

	mr.Close()
	_, err = NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	assert.Error(t, err)
}
