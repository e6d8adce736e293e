package offer

import (
	"time"

	"github.com/hbkhrishi0412-afk/reride-sub005/internal/config"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
)

// Labeler resolves localized strings; *localization.Localizer satisfies it.
type Labeler interface {
	GetString(lang, key string) string
}

// Viewer is who a transcript is being rendered for.
type Viewer struct {
	UserID string
	// Role is the viewer's role inside the thread being rendered.
	Role models.Role
	Lang string
}

// View is an offer record as the client should draw it.
type View struct {
	OfferPrice   int64              `json:"offer_price"`
	Amount       string             `json:"amount"`
	CounterPrice *int64             `json:"counter_price,omitempty"`
	Previous     string             `json:"previous,omitempty"`
	Status       models.OfferStatus `json:"status"`
	StatusLabel  string             `json:"status_label"`
	Sender       models.Party       `json:"sender"`
	Outgoing     bool               `json:"outgoing"`
	// Final is set once the negotiation on this record is over.
	Final   bool     `json:"final"`
	Actions []Action `json:"actions"`
}

// MessageView is one transcript line.
type MessageView struct {
	ID        uint      `json:"id"`
	ThreadID  string    `json:"thread_id"`
	SenderID  string    `json:"sender_id"`
	Type      string    `json:"type"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Offer     *View     `json:"offer,omitempty"`
}

// Render builds the view of rec for viewer. Controls appear only for the
// relational recipient while the record is pending.
func (p Policy) Render(rec models.Offer, viewer Viewer, labels Labeler) View {
	v := View{
		OfferPrice:   rec.OfferPrice,
		Amount:       FormatINR(rec.OfferPrice),
		CounterPrice: rec.CounterPrice,
		Status:       rec.Status,
		StatusLabel:  statusLabel(rec.Status, viewer.Lang, labels),
		Sender:       rec.Sender,
		Final:        rec.Status.IsTerminal(),
		Actions:      p.Allowed(rec, viewer.Role),
	}
	if rec.CounterPrice != nil {
		v.Previous = FormatINR(*rec.CounterPrice)
	}
	if party, ok := models.PartyForRole(viewer.Role); ok {
		v.Outgoing = party == rec.Sender
	}
	if v.Actions == nil {
		v.Actions = []Action{}
	}
	return v
}

// RenderMessage renders a transcript line, including its offer if any.
func (p Policy) RenderMessage(msg models.ChatMessage, viewer Viewer, labels Labeler) MessageView {
	mv := MessageView{
		ID:        msg.ID,
		ThreadID:  msg.ThreadID,
		SenderID:  msg.SenderID,
		Type:      msg.Type,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	if msg.IsOffer() {
		v := p.Render(msg.Offer, viewer, labels)
		mv.Offer = &v
	}
	return mv
}

func statusLabel(s models.OfferStatus, lang string, labels Labeler) string {
	key, ok := config.StatusLabelKeys[string(s)]
	if !ok {
		return string(s)
	}
	if labels == nil {
		return string(s)
	}
	return labels.GetString(lang, key)
}
