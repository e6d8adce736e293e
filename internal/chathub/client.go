package chathub

import "github.com/hbkhrishi0412-afk/reride-sub005/internal/models"

const (
	TransportWebSocket = "websocket"
	TransportTelegram  = "telegram"
)

// Delivery is a thread event addressed to one participant. Role is the
// participant's role inside the event's thread.
type Delivery struct {
	Event models.ThreadEvent
	Role  models.Role
}

// Client is the interface for any type of connection (e.g., WebSocket, Telegram).
// It abstracts the underlying communication mechanism, allowing the hub to manage
// different client types uniformly.
type Client interface {
	// GetUserID returns the identifier of the user behind the connection.
	GetUserID() string
	// GetTransport names the connection type for metrics and logs.
	GetTransport() string

	// GetSendChannel returns the channel the hub writes deliveries to.
	GetSendChannel() chan<- Delivery

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the connection and its send channel.
	Close()
}
