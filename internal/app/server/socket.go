package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/chess-vn/slduel/internal/auth"
	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/internal/hub"
	"github.com/chess-vn/slduel/pkg/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Inbound socket message types.
const (
	TypeRoomJoin  = "room:join"
	TypeRoomLeave = "room:leave"
	TypeRoomSay   = "room:message"
	TypeAck       = "ack"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// socketChannel adapts a websocket connection to hub.Channel. Writes are
// serialised through one writer goroutine; Send never blocks the caller.
type socketChannel struct {
	id     string
	userId string
	conn   *websocket.Conn
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newSocketChannel(conn *websocket.Conn, userId string) *socketChannel {
	return &socketChannel{
		id:     uuid.NewString(),
		userId: userId,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *socketChannel) Id() string     { return c.id }
func (c *socketChannel) UserId() string { return c.userId }

func (c *socketChannel) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *socketChannel) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *socketChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *socketChannel) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logging.Debug("socket write failed",
					zap.String("channelId", c.id),
					zap.Error(err),
				)
				c.Close()
				return
			}
		}
	}
}

func (s *server) handleSocket(w http.ResponseWriter, r *http.Request) {
	token := socketToken(r)
	if token == "" {
		writeErrorCode(w, http.StatusUnauthorized, CodeUnauthorized, auth.ErrMissingToken.Error())
		return
	}
	claims, err := s.issuer.Validate(token, auth.AudienceSocket)
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, CodeUnauthorized, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	ch := newSocketChannel(conn, claims.UserId)
	conn.SetPongHandler(func(string) error {
		s.registry.MarkAlive(ch)
		return nil
	})
	go ch.writePump()

	ctx := context.WithoutCancel(r.Context())
	s.registry.Register(ctx, ch)
	defer func() {
		ch.Close()
		s.registry.Unregister(ch)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			logging.Info("connection closed",
				zap.String("userId", ch.userId),
				zap.String("remote_address", conn.RemoteAddr().String()),
				zap.Error(err),
			)
			return
		}
		// Any inbound frame proves the client is alive.
		s.registry.MarkAlive(ch)

		var msg dtos.SocketMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendSocketError(ch, CodeInvalidInput, "malformed message")
			continue
		}
		s.handleSocketMessage(ctx, ch, msg)
	}
}

func (s *server) handleSocketMessage(ctx context.Context, ch *socketChannel, msg dtos.SocketMessage) {
	switch msg.Type {
	case TypeRoomJoin, TypeRoomLeave, TypeRoomSay:
		var req dtos.RoomRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.sendSocketError(ch, CodeInvalidInput, "malformed room request")
			return
		}
		var err error
		switch msg.Type {
		case TypeRoomJoin:
			err = s.rooms.Join(ch.userId, req.RoomId, ch)
		case TypeRoomLeave:
			s.rooms.Leave(ch.userId, req.RoomId, ch)
		case TypeRoomSay:
			err = s.rooms.Say(ch.userId, req.RoomId, req.Text)
		}
		if err != nil {
			s.sendSocketError(ch, socketErrorCode(err), err.Error())
		}
	case TypeAck:
		// The id may ride on the frame itself or inside data.
		req := dtos.AckRequest{MessageId: msg.MessageId}
		if req.MessageId == "" && len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				s.sendSocketError(ch, CodeInvalidInput, "malformed ack")
				return
			}
		}
		if req.MessageId == "" {
			s.sendSocketError(ch, CodeInvalidInput, "malformed ack")
			return
		}
		s.registry.MarkDelivered(ctx, ch.userId, req.MessageId)
	default:
		s.sendSocketError(ch, CodeInvalidInput, "unknown message type")
	}
}

func (s *server) sendSocketError(ch hub.Channel, code, message string) {
	msg, err := hub.Encode(hub.TypeError, dtos.ErrorEvent{Code: code, Message: message})
	if err != nil {
		logging.Error("failed to encode error event", zap.Error(err))
		return
	}
	ch.Send(msg)
}
