package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/api/middleware"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/config"
	apperr "github.com/hbkhrishi0412-afk/reride-sub005/pkg/errors"
)

type tokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// IssueToken returns a token for an existing user.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.NewAPIError("user_id is required", http.StatusBadRequest))
		return
	}

	user, err := h.Storage.GetUserByID(c.Request.Context(), req.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	token, err := h.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": user.ID, "role": user.Role})
}

// CreateTelegramLink issues a one-time code the caller sends to the bot as
// "/start <code>" to receive offers in Telegram.
func (h *Handler) CreateTelegramLink(c *gin.Context) {
	code, err := h.Storage.CreateTelegramLinkCode(c.Request.Context(), middleware.UserID(c), config.TelegramLinkTTL)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"code":       code,
		"command":    "/start " + code,
		"expires_in": int(config.TelegramLinkTTL.Seconds()),
	})
}
