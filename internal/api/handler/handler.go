// Package handler exposes threads, transcripts and offer responses over
// HTTP and upgrades clients to the transcript WebSocket.
package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/chathub"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/dispatch"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/storage"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/logger"
)

// OfferDispatcher is the part of *dispatch.Dispatcher the handlers use.
type OfferDispatcher interface {
	Submit(ctx context.Context, req dispatch.SubmitRequest) (*models.ChatMessage, error)
	Respond(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(userID string, role models.Role) (string, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	Hub        *chathub.ManagerService
	Storage    storage.Storage
	Dispatcher OfferDispatcher
	Tokens     TokenIssuer
	Policy     offer.Policy
	Labels     offer.Labeler
	Checks     map[string]HealthCheck

	log *logger.Logger
}

func NewHandler(hub *chathub.ManagerService, s storage.Storage, d OfferDispatcher, tokens TokenIssuer, policy offer.Policy, labels offer.Labeler, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Global()
	}
	return &Handler{
		Hub:        hub,
		Storage:    s,
		Dispatcher: d,
		Tokens:     tokens,
		Policy:     policy,
		Labels:     labels,
		Checks:     make(map[string]HealthCheck),
		log:        log,
	}
}

// lang picks the viewer's language from ?lang= or Accept-Language.
func lang(c *gin.Context) string {
	if l := c.Query("lang"); l != "" {
		return l
	}
	if al := c.GetHeader("Accept-Language"); len(al) >= 2 {
		return strings.ToLower(al[:2])
	}
	return "en"
}
