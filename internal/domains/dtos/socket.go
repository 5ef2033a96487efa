package dtos

import (
	"encoding/json"
	"time"
)

// SocketMessage frames every websocket message in both directions. MessageId
// is set on frames replayed from the offline queue.
type SocketMessage struct {
	Type      string          `json:"type"`
	MessageId string          `json:"messageId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type RoomRequest struct {
	RoomId string `json:"roomId"`
	Text   string `json:"text,omitempty"`
}

type AckRequest struct {
	MessageId string `json:"messageId"`
}

type RoomMessage struct {
	UserId    string    `json:"userId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomEvent struct {
	RoomId    string        `json:"roomId"`
	UserId    string        `json:"userId,omitempty"`
	Text      string        `json:"text,omitempty"`
	Members   int           `json:"members,omitempty"`
	History   []RoomMessage `json:"history,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SocketTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type SocketStatsResponse struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
	Rooms       int `json:"rooms"`
}
