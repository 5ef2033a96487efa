package hub

// Channel is one live connection of a user. Send must not block: it returns
// false when the channel is closed or its outbound buffer is full.
type Channel interface {
	Id() string
	UserId() string
	Send(msg []byte) bool
	Ping() error
	Close() error
}
