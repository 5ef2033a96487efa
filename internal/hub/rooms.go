package hub

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/pkg/logging"
	"go.uber.org/zap"
)

const DefaultRoomHistorySize = 50

var (
	ErrInvalidRoom = errors.New("invalid room id")
	ErrNotMember   = errors.New("not a member of the room")
	ErrEmptyText   = errors.New("empty message")
)

// Rooms maps rooms to users to channels, plus the rooms each channel joined.
// A room is discarded as soon as its last member leaves.
type Rooms struct {
	registry    *Registry
	historySize int
	now         func() time.Time
	count       atomic.Int64

	rooms  sync.Map // room id -> *room
	joined sync.Map // channel id -> *channelRooms
}

type room struct {
	mu      sync.Mutex
	members map[string]map[string]struct{} // user id -> channel ids
	history []dtos.RoomMessage
	dead    bool
}

type channelRooms struct {
	mu    sync.Mutex
	rooms map[string]struct{}
}

// NewRooms creates a directory that leaves every joined room when a channel
// disconnects from registry.
func NewRooms(registry *Registry, historySize int) *Rooms {
	if historySize <= 0 {
		historySize = DefaultRoomHistorySize
	}
	rs := &Rooms{
		registry:    registry,
		historySize: historySize,
		now:         time.Now,
	}
	registry.OnDisconnect(rs.LeaveAll)
	return rs
}

func (rs *Rooms) lockRoom(roomId string) *room {
	for {
		v, loaded := rs.rooms.LoadOrStore(roomId, &room{members: map[string]map[string]struct{}{}})
		r := v.(*room)
		r.mu.Lock()
		if !r.dead {
			if !loaded {
				rs.count.Add(1)
				rs.registry.metrics.addRooms(1)
			}
			return r
		}
		r.mu.Unlock()
	}
}

func (rs *Rooms) channelRooms(channelId string) *channelRooms {
	v, _ := rs.joined.LoadOrStore(channelId, &channelRooms{rooms: map[string]struct{}{}})
	return v.(*channelRooms)
}

// Join adds ch to the room, acknowledges it with the recent history and tells
// the rest of the room when the user was not already present.
func (rs *Rooms) Join(userId, roomId string, ch Channel) error {
	roomId = strings.TrimSpace(roomId)
	if roomId == "" {
		return ErrInvalidRoom
	}
	r := rs.lockRoom(roomId)
	channels, present := r.members[userId]
	if !present {
		channels = map[string]struct{}{}
		r.members[userId] = channels
	}
	channels[ch.Id()] = struct{}{}
	members := len(r.members)
	history := append([]dtos.RoomMessage(nil), r.history...)
	r.mu.Unlock()

	cr := rs.channelRooms(ch.Id())
	cr.mu.Lock()
	cr.rooms[roomId] = struct{}{}
	cr.mu.Unlock()

	now := rs.now()
	if msg, err := Encode(TypeRoomJoined, dtos.RoomEvent{
		RoomId:    roomId,
		UserId:    userId,
		Members:   members,
		History:   history,
		Timestamp: now,
	}); err == nil {
		ch.Send(msg)
	}
	if !present {
		rs.broadcastEvent(TypeUserJoined, dtos.RoomEvent{RoomId: roomId, UserId: userId, Members: members, Timestamp: now}, userId)
	}
	logging.Debug("room joined", zap.String("roomId", roomId), zap.String("userId", userId))
	return nil
}

// Leave removes ch from the room and acknowledges it.
func (rs *Rooms) Leave(userId, roomId string, ch Channel) {
	if rs.leave(userId, roomId, ch) {
		if msg, err := Encode(TypeRoomLeft, dtos.RoomEvent{RoomId: roomId, UserId: userId, Timestamp: rs.now()}); err == nil {
			ch.Send(msg)
		}
	}
}

// LeaveAll leaves every room ch joined. It runs when the channel disconnects.
func (rs *Rooms) LeaveAll(ch Channel) {
	v, ok := rs.joined.LoadAndDelete(ch.Id())
	if !ok {
		return
	}
	cr := v.(*channelRooms)
	cr.mu.Lock()
	roomIds := make([]string, 0, len(cr.rooms))
	for roomId := range cr.rooms {
		roomIds = append(roomIds, roomId)
	}
	cr.mu.Unlock()
	for _, roomId := range roomIds {
		rs.leave(ch.UserId(), roomId, ch)
	}
}

// leave reports whether ch was in the room.
func (rs *Rooms) leave(userId, roomId string, ch Channel) bool {
	v, ok := rs.rooms.Load(roomId)
	if !ok {
		return false
	}
	r := v.(*room)
	r.mu.Lock()
	channels, ok := r.members[userId]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, ok := channels[ch.Id()]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(channels, ch.Id())
	userLeft := len(channels) == 0
	if userLeft {
		delete(r.members, userId)
	}
	members := len(r.members)
	discarded := members == 0
	if discarded {
		r.dead = true
		rs.rooms.Delete(roomId)
	}
	r.mu.Unlock()

	if discarded {
		rs.count.Add(-1)
		rs.registry.metrics.addRooms(-1)
	}
	if v, ok := rs.joined.Load(ch.Id()); ok {
		cr := v.(*channelRooms)
		cr.mu.Lock()
		delete(cr.rooms, roomId)
		cr.mu.Unlock()
	}
	if userLeft && !discarded {
		rs.broadcastEvent(TypeUserLeft, dtos.RoomEvent{RoomId: roomId, UserId: userId, Members: members, Timestamp: rs.now()}, userId)
	}
	logging.Debug("room left", zap.String("roomId", roomId), zap.String("userId", userId))
	return true
}

// Say appends a chat message to the room history and sends it to every member,
// the sender included.
func (rs *Rooms) Say(userId, roomId, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	v, ok := rs.rooms.Load(roomId)
	if !ok {
		return ErrNotMember
	}
	r := v.(*room)
	message := dtos.RoomMessage{UserId: userId, Text: text, Timestamp: rs.now()}
	r.mu.Lock()
	if _, member := r.members[userId]; !member || r.dead {
		r.mu.Unlock()
		return ErrNotMember
	}
	r.history = append(r.history, message)
	if over := len(r.history) - rs.historySize; over > 0 {
		r.history = append([]dtos.RoomMessage(nil), r.history[over:]...)
	}
	r.mu.Unlock()

	rs.broadcastEvent(TypeRoomMessage, dtos.RoomEvent{
		RoomId:    roomId,
		UserId:    userId,
		Text:      text,
		Timestamp: message.Timestamp,
	}, "")
	return nil
}

// Broadcast delivers msg to every member except excludeUserId and returns the
// number of users reached.
func (rs *Rooms) Broadcast(roomId string, msg []byte, excludeUserId string) int {
	reached := 0
	for _, userId := range rs.Members(roomId) {
		if userId == excludeUserId {
			continue
		}
		if rs.registry.DeliverToUser(userId, msg) {
			reached++
		}
	}
	return reached
}

func (rs *Rooms) broadcastEvent(msgType string, event dtos.RoomEvent, excludeUserId string) {
	msg, err := Encode(msgType, event)
	if err != nil {
		logging.Error("failed to encode room event", zap.String("type", msgType), zap.Error(err))
		return
	}
	rs.Broadcast(event.RoomId, msg, excludeUserId)
}

func (rs *Rooms) Members(roomId string) []string {
	v, ok := rs.rooms.Load(roomId)
	if !ok {
		return nil
	}
	r := v.(*room)
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]string, 0, len(r.members))
	for userId := range r.members {
		users = append(users, userId)
	}
	return users
}

func (rs *Rooms) Count() int {
	return int(rs.count.Load())
}
