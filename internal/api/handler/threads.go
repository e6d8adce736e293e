package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/api/middleware"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
	apperr "github.com/hbkhrishi0412-afk/reride-sub005/pkg/errors"
	"go.uber.org/zap"
)

type openThreadRequest struct {
	ListingID string `json:"listing_id" binding:"required"`
}

// OpenThread starts (or resumes) the caller's negotiation on a listing.
func (h *Handler) OpenThread(c *gin.Context) {
	var req openThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.NewAPIError("listing_id is required", http.StatusBadRequest))
		return
	}
	ctx := c.Request.Context()
	buyerID := middleware.UserID(c)

	listing, err := h.Storage.GetListingByID(ctx, req.ListingID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if listing.SellerID == buyerID {
		_ = c.Error(apperr.NewAPIError("you cannot negotiate on your own listing", http.StatusBadRequest))
		return
	}

	existing, err := h.Storage.FindActiveThread(ctx, listing.ID, buyerID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if existing != nil {
		c.JSON(http.StatusOK, existing)
		return
	}

	thread := &models.Thread{
		ThreadID:  uuid.NewString(),
		ListingID: listing.ID,
		BuyerID:   buyerID,
		SellerID:  listing.SellerID,
		IsActive:  true,
		StartedAt: time.Now(),
	}
	if err := h.Storage.SaveThread(ctx, thread); err != nil {
		_ = c.Error(err)
		return
	}
	h.log.ForThread(thread.ThreadID, buyerID).Info("thread opened", zap.String("listing_id", listing.ID))
	c.JSON(http.StatusCreated, thread)
}

func (h *Handler) ListThreads(c *gin.Context) {
	threads, err := h.Storage.GetThreadsForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

// participantThread loads the thread named in the path and the caller's
// role in it.
func (h *Handler) participantThread(c *gin.Context) (*models.Thread, models.Role, error) {
	thread, err := h.Storage.GetThreadByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, "", err
	}
	role, ok := thread.RoleOf(middleware.UserID(c))
	if !ok {
		return nil, "", apperr.ErrForbidden
	}
	return thread, role, nil
}

// GetTranscript returns the thread's messages rendered for the caller.
func (h *Handler) GetTranscript(c *gin.Context) {
	thread, role, err := h.participantThread(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ctx := c.Request.Context()

	messages, err := h.Storage.GetTranscript(ctx, thread.ThreadID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.markInFlight(ctx, messages)

	viewer := offer.Viewer{UserID: middleware.UserID(c), Role: role, Lang: lang(c)}
	views := make([]offer.MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, h.Policy.RenderMessage(msg, viewer, h.Labels))
	}
	c.JSON(http.StatusOK, gin.H{"thread": thread, "messages": views})
}

// markInFlight shows pending offers whose response is being persisted as
// responding, so no controls are drawn for them.
func (h *Handler) markInFlight(ctx context.Context, messages []models.ChatMessage) {
	for i := range messages {
		rec := &messages[i].Offer
		if !messages[i].IsOffer() || !rec.IsActionable() {
			continue
		}
		kind, held, err := h.Storage.InFlightResponse(ctx, messages[i].ID)
		if err != nil {
			h.log.Warn("in-flight lookup failed", zap.Uint("message_id", messages[i].ID), zap.Error(err))
			continue
		}
		if held {
			_ = rec.BeginResponse(kind)
		}
	}
}

// CloseThread ends the negotiation; no further offers can be made in it.
func (h *Handler) CloseThread(c *gin.Context) {
	thread, _, err := h.participantThread(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !thread.IsActive {
		c.JSON(http.StatusOK, thread)
		return
	}

	thread.IsActive = false
	thread.EndedAt = time.Now()
	if err := h.Storage.SaveThread(c.Request.Context(), thread); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, thread)
}
