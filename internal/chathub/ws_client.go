package chathub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// OutgoingEvent is a thread event rendered for the connected viewer.
type OutgoingEvent struct {
	Type     string            `json:"type"`
	ThreadID string            `json:"thread_id"`
	Message  offer.MessageView `json:"message"`
}

// WebSocketClient implements chathub.Client
type WebSocketClient struct {
	UserID string
	Lang   string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Send   chan Delivery

	closeOnce sync.Once
}

func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, userID, lang string) *WebSocketClient {
	return &WebSocketClient{
		UserID: userID,
		Lang:   lang,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan Delivery, 256),
	}
}

func (c *WebSocketClient) GetUserID() string               { return c.UserID }
func (c *WebSocketClient) GetTransport() string            { return TransportWebSocket }
func (c *WebSocketClient) GetSendChannel() chan<- Delivery { return c.Send }

func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the send channel, which stops writePump.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// Render turns a delivery into what this viewer's client draws.
func (c *WebSocketClient) Render(d Delivery) OutgoingEvent {
	viewer := offer.Viewer{UserID: c.UserID, Role: d.Role, Lang: c.Lang}
	return OutgoingEvent{
		Type:     d.Event.Type,
		ThreadID: d.Event.ThreadID,
		Message:  c.Hub.Policy.RenderMessage(d.Event.Message, viewer, c.Hub.Labels),
	}
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("websocket read failed", zap.String("user_id", c.UserID), zap.Error(err))
			}
			break
		}

		var msg models.IncomingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Hub.log.Debug("invalid websocket payload", zap.String("user_id", c.UserID), zap.Error(err))
			continue
		}
		msg.SenderID = c.UserID

		c.Hub.Submit(msg)
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case d, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(c.Render(d)); err != nil {
				c.Hub.log.Debug("websocket write failed", zap.String("user_id", c.UserID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
