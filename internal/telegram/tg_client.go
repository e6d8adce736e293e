package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/chathub"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/logger"
	"go.uber.org/zap"
)

const (
	callbackAccept = "offer_accept_"
	callbackReject = "offer_reject_"
	callbackLang   = "set_lang_"
)

// Sender is the part of *tgbotapi.BotAPI used to talk to Telegram.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Client implements chathub.Client for a user who linked a Telegram chat.
// Updates from Telegram are read centrally by BotService, so only the
// write side runs here.
type Client struct {
	UserID string
	ChatID int64
	Lang   string
	Send   chan chathub.Delivery

	sender Sender
	policy offer.Policy
	labels offer.Labeler
	log    *logger.Logger

	closeOnce sync.Once
}

func NewClient(user *models.User, sender Sender, policy offer.Policy, labels offer.Labeler, log *logger.Logger) *Client {
	return &Client{
		UserID: user.ID,
		ChatID: user.TelegramID,
		Lang:   user.Language,
		Send:   make(chan chathub.Delivery, 32),
		sender: sender,
		policy: policy,
		labels: labels,
		log:    log,
	}
}

func (c *Client) GetUserID() string                        { return c.UserID }
func (c *Client) GetTransport() string                     { return chathub.TransportTelegram }
func (c *Client) GetSendChannel() chan<- chathub.Delivery { return c.Send }

func (c *Client) Run() {
	go c.writePump()
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *Client) writePump() {
	for d := range c.Send {
		msg, ok := c.notification(d)
		if !ok {
			continue
		}
		if _, err := c.sender.Send(msg); err != nil {
			c.log.Error("failed to send telegram notification",
				zap.String("user_id", c.UserID),
				zap.Uint("message_id", d.Event.Message.ID),
				zap.Error(err))
		}
	}
}

// notification builds the Telegram message for d, if this user should get one:
// new offers addressed to them (with Accept/Reject buttons when they may
// answer), outcomes of offers they sent, and text lines from the other side.
func (c *Client) notification(d chathub.Delivery) (tgbotapi.MessageConfig, bool) {
	msg := d.Event.Message
	own := msg.SenderID == c.UserID

	if !msg.IsOffer() {
		if own || msg.Type != models.MessageText || d.Event.Type != models.EventMessageCreated {
			return tgbotapi.MessageConfig{}, false
		}
		return tgbotapi.NewMessage(c.ChatID, "💬 "+msg.Content), true
	}

	view := c.policy.Render(msg.Offer, offer.Viewer{UserID: c.UserID, Role: d.Role, Lang: c.Lang}, c.labels)

	switch d.Event.Type {
	case models.EventMessageCreated:
		if own {
			return tgbotapi.MessageConfig{}, false
		}
		var text string
		if view.Previous != "" {
			text = fmt.Sprintf(c.labels.GetString(c.Lang, "counter_received"), view.Amount, view.Previous)
		} else {
			text = fmt.Sprintf(c.labels.GetString(c.Lang, "offer_received"), view.Amount)
		}
		out := tgbotapi.NewMessage(c.ChatID, text)
		if hasAction(view.Actions, offer.ActionAccept) {
			out.ReplyMarkup = c.offerKeyboard(msg.ID)
		}
		if hasAction(view.Actions, offer.ActionCounter) {
			out.Text += "\n" + c.labels.GetString(c.Lang, "counter_usage") +
				" (/counter " + strconv.FormatUint(uint64(msg.ID), 10) + " …)"
		}
		return out, true

	case models.EventOfferUpdated:
		if !own {
			return tgbotapi.MessageConfig{}, false
		}
		text := fmt.Sprintf(c.labels.GetString(c.Lang, "offer_settled"), view.Amount, view.StatusLabel)
		return tgbotapi.NewMessage(c.ChatID, text), true
	}
	return tgbotapi.MessageConfig{}, false
}

func (c *Client) offerKeyboard(messageID uint) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatUint(uint64(messageID), 10)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.labels.GetString(c.Lang, "btn_accept"), callbackAccept+id),
			tgbotapi.NewInlineKeyboardButtonData(c.labels.GetString(c.Lang, "btn_reject"), callbackReject+id),
		),
	)
}

func hasAction(actions []offer.Action, a offer.Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

// parseOfferCallback decodes the data of an Accept/Reject button.
func parseOfferCallback(data string) (models.ResponseKind, uint, bool) {
	var kind models.ResponseKind
	var rest string
	switch {
	case strings.HasPrefix(data, callbackAccept):
		kind, rest = models.ResponseAccepted, strings.TrimPrefix(data, callbackAccept)
	case strings.HasPrefix(data, callbackReject):
		kind, rest = models.ResponseRejected, strings.TrimPrefix(data, callbackReject)
	default:
		return "", 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		return "", 0, false
	}
	return kind, uint(id), true
}
