package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/api/middleware"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/dispatch"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
	apperr "github.com/hbkhrishi0412-afk/reride-sub005/pkg/errors"
)

// amountInput accepts a typed string such as "4,50,000" or a bare number.
type amountInput string

func (a *amountInput) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = amountInput(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return apperr.ErrInvalidAmount
	}
	*a = amountInput(strconv.FormatInt(n, 10))
	return nil
}

type submitOfferRequest struct {
	Amount amountInput `json:"amount"`
}

type respondRequest struct {
	Kind         models.ResponseKind `json:"kind" binding:"required"`
	CounterPrice amountInput         `json:"counter_price"`
}

type respondResponse struct {
	Message  offer.MessageView  `json:"message"`
	Counter  *offer.MessageView `json:"counter,omitempty"`
	Replayed bool               `json:"replayed"`
}

func senderRole(p models.Party) models.Role {
	if p == models.PartySeller {
		return models.RoleSeller
	}
	return models.RoleCustomer
}

// SubmitOffer records an opening offer typed into the offer entry.
func (h *Handler) SubmitOffer(c *gin.Context) {
	var req submitOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.ErrInvalidAmount)
		return
	}

	userID := middleware.UserID(c)
	entry := &offer.Entry{}
	entry.Input(string(req.Amount))

	var msg *models.ChatMessage
	var dispatchErr error
	err := entry.Submit(func(amount int64) {
		msg, dispatchErr = h.Dispatcher.Submit(c.Request.Context(), dispatch.SubmitRequest{
			ThreadID: c.Param("id"),
			ActorID:  userID,
			Amount:   amount,
		})
	})
	if err == nil {
		err = dispatchErr
	}
	if err != nil {
		_ = c.Error(err)
		return
	}

	viewer := offer.Viewer{UserID: userID, Role: senderRole(msg.Offer.Sender), Lang: lang(c)}
	c.JSON(http.StatusCreated, h.Policy.RenderMessage(*msg, viewer, h.Labels))
}

// Respond applies accept, reject, counter or confirm to the offer carried by
// the message in the path.
func (h *Handler) Respond(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		_ = c.Error(apperr.ErrMessageNotFound)
		return
	}
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.ErrInvalidResponse)
		return
	}

	userID := middleware.UserID(c)
	var res *dispatch.Result
	respond := func(counterPrice int64) {
		res, err = h.Dispatcher.Respond(c.Request.Context(), dispatch.Request{
			MessageID:    uint(id),
			ActorID:      userID,
			Kind:         req.Kind,
			CounterPrice: counterPrice,
		})
	}
	if req.Kind == models.ResponseCountered {
		entry := offer.NewCounterEntry()
		entry.Input(string(req.CounterPrice))
		if invalid := entry.Submit(respond); invalid != nil {
			_ = c.Error(invalid)
			return
		}
	} else {
		respond(0)
	}
	if err != nil {
		_ = c.Error(err)
		return
	}

	role := offer.RecipientRole(res.Message.Offer.Sender)
	if req.Kind == models.ResponseConfirmed {
		role = models.RoleAdmin
	}
	viewer := offer.Viewer{UserID: userID, Role: role, Lang: lang(c)}
	out := respondResponse{
		Message:  h.Policy.RenderMessage(res.Message, viewer, h.Labels),
		Replayed: res.Replayed,
	}
	if res.Counter != nil {
		v := h.Policy.RenderMessage(*res.Counter, viewer, h.Labels)
		out.Counter = &v
	}
	c.JSON(http.StatusOK, out)
}
