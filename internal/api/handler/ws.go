package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/api/middleware"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/chathub"
	"go.uber.org/zap"
)

// NewUpgrader accepts upgrades from the configured origins. An empty list
// accepts any origin.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(allowed) == 0 || origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// ServeWebSocket upgrades the authenticated caller to a transcript stream
// covering every thread they take part in.
func (h *Handler) ServeWebSocket(upgrader websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
			return
		}

		client := chathub.NewWebSocketClient(h.Hub, conn, userID, lang(c))
		h.Hub.RegisterCh <- client
		client.Run()
	}
}
