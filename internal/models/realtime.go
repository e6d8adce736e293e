package models

const (
	EventMessageCreated = "message_created"
	EventOfferUpdated   = "offer_updated"
)

// ThreadEvent is what travels over Redis pub/sub and out to connected clients.
type ThreadEvent struct {
	Type     string      `json:"type"`
	ThreadID string      `json:"thread_id"`
	Message  ChatMessage `json:"message"`
}

// IncomingMessage is a text line typed into a thread by a connected client.
type IncomingMessage struct {
	SenderID string `json:"-"`
	ThreadID string `json:"thread_id"`
	Content  string `json:"content"`
}
