package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/internal/offline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id     string
	userId string

	mu       sync.Mutex
	messages [][]byte
	full     bool
	closed   bool
	pings    int
	pingErr  error
}

func newFakeChannel(id, userId string) *fakeChannel {
	return &fakeChannel{id: id, userId: userId}
}

func (c *fakeChannel) Id() string     { return c.id }
func (c *fakeChannel) UserId() string { return c.userId }

func (c *fakeChannel) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.messages = append(c.messages, msg)
	return true
}

func (c *fakeChannel) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.messages))
	for _, msg := range c.messages {
		out = append(out, string(msg))
	}
	return out
}

func (c *fakeChannel) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, raw := range c.received() {
		var msg dtos.SocketMessage
		require.NoError(t, json.Unmarshal([]byte(raw), &msg))
		out = append(out, msg.Type)
	}
	return out
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestDeliverToUser(t *testing.T) {
	reg := NewRegistry(offline.NewMemoryQueue(offline.Options{}), nil)
	ctx := context.Background()
	phone := newFakeChannel("c1", "alice")
	laptop := newFakeChannel("c2", "alice")
	reg.Register(ctx, phone)
	reg.Register(ctx, laptop)
	reg.Register(ctx, phone)

	assert.Equal(t, 2, reg.Connections())
	assert.Equal(t, 1, reg.Users())

	assert.True(t, reg.DeliverToUser("alice", []byte("hi")))
	assert.Equal(t, []string{"hi"}, phone.received())
	assert.Equal(t, []string{"hi"}, laptop.received())

	phone.full = true
	assert.True(t, reg.DeliverToUser("alice", []byte("again")))
	assert.Equal(t, []string{"hi", "again"}, laptop.received())

	laptop.full = true
	assert.False(t, reg.DeliverToUser("alice", []byte("lost")))
	assert.False(t, reg.DeliverToUser("bob", []byte("nobody")))
}

func TestOfflineReplayExactlyOnce(t *testing.T) {
	queue := offline.NewMemoryQueue(offline.Options{})
	reg := NewRegistry(queue, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.False(t, reg.Send(ctx, "bob", []byte(fmt.Sprintf("m%d", i))))
	}

	first := newFakeChannel("c1", "bob")
	reg.Register(ctx, first)
	assert.Equal(t, []string{"m0", "m1", "m2"}, first.received())

	reg.Unregister(first)
	second := newFakeChannel("c2", "bob")
	reg.Register(ctx, second)
	assert.Empty(t, second.received())

	assert.True(t, reg.Send(ctx, "bob", []byte("live")))
	assert.Equal(t, []string{"live"}, second.received())
}

func TestReplayMarksDelivered(t *testing.T) {
	queue := offline.NewMemoryQueue(offline.Options{})
	reg := NewRegistry(queue, nil)
	ctx := context.Background()

	msg, err := queue.Enqueue(ctx, "bob", []byte("m0"))
	require.NoError(t, err)
	reg.Register(ctx, newFakeChannel("c1", "bob"))
	assert.True(t, queue.Delivered("bob", msg.Id))
}

func TestReplayStampsMessageId(t *testing.T) {
	queue := offline.NewMemoryQueue(offline.Options{})
	reg := NewRegistry(queue, nil)
	ctx := context.Background()

	frame, err := Encode(TypeRoomMessage, dtos.RoomEvent{RoomId: "lobby", Text: "hi"})
	require.NoError(t, err)
	msg, err := queue.Enqueue(ctx, "bob", frame)
	require.NoError(t, err)

	ch := newFakeChannel("c1", "bob")
	reg.Register(ctx, ch)
	received := ch.received()
	require.Len(t, received, 1)

	var replayed dtos.SocketMessage
	require.NoError(t, json.Unmarshal([]byte(received[0]), &replayed))
	assert.Equal(t, TypeRoomMessage, replayed.Type)
	assert.Equal(t, msg.Id, replayed.MessageId)
	var event dtos.RoomEvent
	require.NoError(t, json.Unmarshal(replayed.Data, &event))
	assert.Equal(t, "hi", event.Text)
}

func TestReplayRequeuesRejectedMessages(t *testing.T) {
	queue := offline.NewMemoryQueue(offline.Options{})
	reg := NewRegistry(queue, nil)
	ctx := context.Background()
	reg.Send(ctx, "bob", []byte("m0"))
	reg.Send(ctx, "bob", []byte("m1"))

	stuck := newFakeChannel("c1", "bob")
	stuck.full = true
	reg.Register(ctx, stuck)
	reg.Unregister(stuck)

	fresh := newFakeChannel("c2", "bob")
	reg.Register(ctx, fresh)
	assert.Equal(t, []string{"m0", "m1"}, fresh.received())
}

func TestHeartbeatEviction(t *testing.T) {
	reg := NewRegistry(offline.NewMemoryQueue(offline.Options{}), NewMetrics(nil))
	ctx := context.Background()
	silent := newFakeChannel("c1", "alice")
	responsive := newFakeChannel("c2", "bob")
	reg.Register(ctx, silent)
	reg.Register(ctx, responsive)

	assert.Zero(t, reg.Probe())
	assert.Equal(t, 1, silent.pings)
	reg.MarkAlive(responsive)

	assert.Equal(t, 1, reg.Probe())
	assert.True(t, silent.isClosed())
	assert.False(t, responsive.isClosed())
	assert.False(t, reg.Online("alice"))
	assert.True(t, reg.Online("bob"))
	assert.Equal(t, 1, reg.Connections())

	assert.False(t, reg.Send(ctx, "alice", []byte("queued")))
	late := newFakeChannel("c3", "alice")
	reg.Register(ctx, late)
	assert.Equal(t, []string{"queued"}, late.received())
}

func TestProbeEvictsOnPingFailure(t *testing.T) {
	reg := NewRegistry(nil, nil)
	broken := newFakeChannel("c1", "alice")
	broken.pingErr = errors.New("write: broken pipe")
	reg.Register(context.Background(), broken)

	assert.Equal(t, 1, reg.Probe())
	assert.True(t, broken.isClosed())
	assert.Zero(t, reg.Connections())
}

func TestDisconnectHooks(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ch := newFakeChannel("c1", "alice")
	var got []string
	reg.OnDisconnect(func(ch Channel) { got = append(got, ch.Id()) })

	reg.Register(context.Background(), ch)
	reg.Unregister(ch)
	reg.Unregister(ch)
	assert.Equal(t, []string{"c1"}, got)
}

func TestConcurrentRegisterAndDeliver(t *testing.T) {
	reg := NewRegistry(offline.NewMemoryQueue(offline.Options{}), nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch := newFakeChannel(fmt.Sprintf("c%d", i), fmt.Sprintf("user%d", i%5))
			reg.Register(ctx, ch)
			reg.DeliverToUser(ch.UserId(), []byte("ping"))
			if i%2 == 0 {
				reg.Unregister(ch)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, reg.Connections())
	assert.Equal(t, 5, reg.Users())
}

func TestRoomsJoinLeave(t *testing.T) {
	reg := NewRegistry(nil, nil)
	rooms := NewRooms(reg, 2)
	ctx := context.Background()
	alice := newFakeChannel("c1", "alice")
	bob := newFakeChannel("c2", "bob")
	reg.Register(ctx, alice)
	reg.Register(ctx, bob)

	require.NoError(t, rooms.Join("alice", "grind", alice))
	require.NoError(t, rooms.Join("bob", "grind", bob))
	assert.Equal(t, 1, rooms.Count())
	assert.ElementsMatch(t, []string{"alice", "bob"}, rooms.Members("grind"))
	assert.Equal(t, []string{TypeRoomJoined, TypeUserJoined}, alice.types(t))
	assert.Equal(t, []string{TypeRoomJoined}, bob.types(t))

	assert.Equal(t, 1, rooms.Broadcast("grind", []byte(`{"type":"custom"}`), "alice"))

	rooms.Leave("bob", "grind", bob)
	assert.Equal(t, []string{TypeRoomJoined, TypeUserJoined, TypeUserLeft}, alice.types(t))
	assert.Equal(t, []string{TypeRoomJoined, "custom", TypeRoomLeft}, bob.types(t))

	rooms.Leave("alice", "grind", alice)
	assert.Zero(t, rooms.Count())
	assert.Empty(t, rooms.Members("grind"))

	assert.ErrorIs(t, rooms.Join("alice", " ", alice), ErrInvalidRoom)
}

func TestRoomsSecondChannelDoesNotRebroadcast(t *testing.T) {
	reg := NewRegistry(nil, nil)
	rooms := NewRooms(reg, 0)
	ctx := context.Background()
	bob := newFakeChannel("b1", "bob")
	phone := newFakeChannel("a1", "alice")
	laptop := newFakeChannel("a2", "alice")
	for _, ch := range []*fakeChannel{bob, phone, laptop} {
		reg.Register(ctx, ch)
	}

	require.NoError(t, rooms.Join("bob", "grind", bob))
	require.NoError(t, rooms.Join("alice", "grind", phone))
	require.NoError(t, rooms.Join("alice", "grind", laptop))
	assert.Equal(t, []string{TypeRoomJoined, TypeUserJoined}, bob.types(t))

	rooms.Leave("alice", "grind", phone)
	assert.Equal(t, []string{TypeRoomJoined, TypeUserJoined}, bob.types(t))
	rooms.Leave("alice", "grind", laptop)
	assert.Equal(t, []string{TypeRoomJoined, TypeUserJoined, TypeUserLeft}, bob.types(t))
}

func TestRoomsLeaveOnDisconnect(t *testing.T) {
	reg := NewRegistry(nil, nil)
	rooms := NewRooms(reg, 0)
	ctx := context.Background()
	alice := newFakeChannel("c1", "alice")
	bob := newFakeChannel("c2", "bob")
	reg.Register(ctx, alice)
	reg.Register(ctx, bob)

	require.NoError(t, rooms.Join("alice", "grind", alice))
	require.NoError(t, rooms.Join("alice", "lobby", alice))
	require.NoError(t, rooms.Join("bob", "grind", bob))
	assert.Equal(t, 2, rooms.Count())

	reg.Unregister(alice)
	assert.Equal(t, 1, rooms.Count())
	assert.Equal(t, []string{"bob"}, rooms.Members("grind"))
	assert.Contains(t, bob.types(t), TypeUserLeft)
}

func TestRoomsSayKeepsBoundedHistory(t *testing.T) {
	reg := NewRegistry(nil, nil)
	rooms := NewRooms(reg, 2)
	ctx := context.Background()
	alice := newFakeChannel("c1", "alice")
	bob := newFakeChannel("c2", "bob")
	reg.Register(ctx, alice)
	reg.Register(ctx, bob)
	require.NoError(t, rooms.Join("alice", "grind", alice))

	assert.ErrorIs(t, rooms.Say("bob", "grind", "hi"), ErrNotMember)
	assert.ErrorIs(t, rooms.Say("alice", "grind", "  "), ErrEmptyText)
	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, rooms.Say("alice", "grind", text))
	}

	require.NoError(t, rooms.Join("bob", "grind", bob))
	raw := bob.received()
	require.NotEmpty(t, raw)
	var msg dtos.SocketMessage
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &msg))
	require.Equal(t, TypeRoomJoined, msg.Type)
	var event dtos.RoomEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	require.Len(t, event.History, 2)
	assert.Equal(t, "two", event.History[0].Text)
	assert.Equal(t, "three", event.History[1].Text)
}
