package entities

import "time"

type QueuedMessage struct {
	Id        string    `json:"id"`
	UserId    string    `json:"userId"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	Delivered bool      `json:"delivered"`
}
