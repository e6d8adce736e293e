// Package telegram lets sellers and buyers who linked a Telegram chat receive
// offers addressed to them and answer them from inline buttons.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/chathub"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/dispatch"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/storage"
	apperr "github.com/hbkhrishi0412-afk/reride-sub005/pkg/errors"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/logger"
	"go.uber.org/zap"
)

// Responder is the part of *dispatch.Dispatcher the bot uses.
type Responder interface {
	Respond(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// BotService is responsible for receiving Telegram updates and routing them
// to the dispatcher.
type BotService struct {
	BotAPI     *tgbotapi.BotAPI
	sender     Sender
	Hub        *chathub.ManagerService
	Storage    storage.Storage
	Dispatcher Responder
	Localizer  offer.Labeler
	Policy     offer.Policy
	// Languages are the codes offered by /language.
	Languages []string
	log       *logger.Logger
}

// NewBotService creates a new BotService instance.
func NewBotService(token string, hub *chathub.ManagerService, s storage.Storage, d Responder, labels offer.Labeler, policy offer.Policy, log *logger.Logger) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Info("telegram bot authorized", zap.String("account", bot.Self.UserName))

	svc := &BotService{
		BotAPI:     bot,
		sender:     bot,
		Hub:        hub,
		Storage:    s,
		Dispatcher: d,
		Localizer:  labels,
		Policy:     policy,
		log:        log,
	}
	hub.SetClientRestorer(svc.restoreClient)
	return svc, nil
}

func (s *BotService) restoreClient(userID string) (chathub.Client, error) {
	user, err := s.Storage.GetUserByID(context.Background(), userID)
	if err != nil {
		return nil, err
	}
	if user.TelegramID == 0 {
		return nil, fmt.Errorf("user %s has no linked telegram chat", userID)
	}
	return NewClient(user, s.sender, s.Policy, s.Localizer, s.log), nil
}

// RestoreActiveSessions registers a Telegram client for every linked user.
func (s *BotService) RestoreActiveSessions(ctx context.Context) {
	users, err := s.Storage.GetTelegramLinkedUsers(ctx)
	if err != nil {
		s.log.Error("failed to load telegram-linked users", zap.Error(err))
		return
	}
	for _, user := range users {
		if err := s.Hub.RestoreClientSession(user.ID); err != nil {
			s.log.Warn("failed to restore telegram session", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	s.log.Info("telegram sessions restored", zap.Int("count", len(users)))
}

// Run is the main loop for receiving Telegram updates.
func (s *BotService) Run(ctx context.Context) {
	s.RestoreActiveSessions(ctx)
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			s.BotAPI.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.handleUpdate(ctx, update)
		}
	}
}

func (s *BotService) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		msg := update.Message
		switch msg.Command() {
		case "start":
			s.handleStartCommand(ctx, msg.Chat.ID, strings.TrimSpace(msg.CommandArguments()))
		case "counter":
			s.handleCounterCommand(ctx, msg.Chat.ID, msg.CommandArguments())
		case "language":
			s.handleLanguageCommand(ctx, msg.Chat.ID)
		}
	case update.CallbackQuery != nil:
		s.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func (s *BotService) reply(chatID int64, text string) {
	if _, err := s.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		s.log.Warn("failed to send telegram reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (s *BotService) lang(ctx context.Context, chatID int64) string {
	user, err := s.Storage.GetUserByTelegramID(ctx, chatID)
	if err != nil {
		return ""
	}
	return user.Language
}

// handleStartCommand links the chat to the account that issued the one-time
// code carried in the deep-link payload.
func (s *BotService) handleStartCommand(ctx context.Context, chatID int64, code string) {
	if code == "" {
		s.reply(chatID, s.Localizer.GetString(s.lang(ctx, chatID), "telegram_link_usage"))
		return
	}
	userID, err := s.Storage.ConsumeTelegramLinkCode(ctx, code)
	if err != nil {
		if !errors.Is(err, apperr.ErrLinkCodeInvalid) {
			s.log.Error("failed to read telegram link code", zap.Error(err))
		}
		s.reply(chatID, s.Localizer.GetString("", "telegram_link_usage"))
		return
	}
	user, err := s.Storage.GetUserByID(ctx, userID)
	if err != nil {
		s.reply(chatID, s.Localizer.GetString("", "telegram_link_usage"))
		return
	}

	user.TelegramID = chatID
	if err := s.Storage.SaveUser(ctx, user); err != nil {
		s.log.Error("failed to link telegram chat", zap.String("user_id", user.ID), zap.Error(err))
		s.reply(chatID, s.Localizer.GetString(user.Language, "response_failed"))
		return
	}
	if err := s.Hub.RestoreClientSession(user.ID); err != nil {
		s.log.Warn("failed to register telegram client", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.reply(chatID, s.Localizer.GetString(user.Language, "telegram_linked"))
}

// handleCounterCommand handles "/counter <message id> <amount>".
func (s *BotService) handleCounterCommand(ctx context.Context, chatID int64, args string) {
	user, err := s.Storage.GetUserByTelegramID(ctx, chatID)
	if err != nil {
		s.reply(chatID, s.Localizer.GetString("", "telegram_link_usage"))
		return
	}

	messageID, entry, err := parseCounterArgs(args)
	if err != nil {
		s.reply(chatID, s.Localizer.GetString(user.Language, "counter_usage"))
		return
	}

	err = entry.Submit(func(amount int64) {
		s.respond(ctx, chatID, user, dispatch.Request{
			MessageID:    messageID,
			ActorID:      user.ID,
			Kind:         models.ResponseCountered,
			CounterPrice: amount,
		})
	})
	if err != nil {
		s.reply(chatID, s.Localizer.GetString(user.Language, "invalid_amount"))
	}
}

func (s *BotService) respond(ctx context.Context, chatID int64, user *models.User, req dispatch.Request) bool {
	if _, err := s.Dispatcher.Respond(ctx, req); err != nil {
		text := s.Localizer.GetString(user.Language, "response_failed")
		if apperr.HTTPStatusFromError(err) < 500 {
			text = err.Error()
		}
		s.reply(chatID, text)
		return false
	}
	return true
}

func (s *BotService) handleCallbackQuery(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}
	chatID := cq.From.ID
	answer := ""

	switch {
	case strings.HasPrefix(cq.Data, callbackLang):
		answer = s.setLanguage(ctx, chatID, strings.TrimPrefix(cq.Data, callbackLang))
	default:
		kind, messageID, ok := parseOfferCallback(cq.Data)
		if !ok {
			break
		}
		user, err := s.Storage.GetUserByTelegramID(ctx, chatID)
		if err != nil {
			answer = s.Localizer.GetString("", "telegram_link_usage")
			break
		}
		if s.respond(ctx, chatID, user, dispatch.Request{MessageID: messageID, ActorID: user.ID, Kind: kind}) {
			answer = s.Localizer.GetString(user.Language, "response_saved")
		}
	}

	// Clears the button's loading state.
	if _, err := s.sender.Request(tgbotapi.NewCallback(cq.ID, answer)); err != nil {
		s.log.Warn("failed to answer callback query", zap.Error(err))
	}
}

// handleLanguageCommand sends a message with a keyboard to choose a language.
func (s *BotService) handleLanguageCommand(ctx context.Context, chatID int64) {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(s.Languages))
	for _, lang := range s.Languages {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(s.Localizer.GetString(lang, "language_name"), callbackLang+lang))
	}
	msg := tgbotapi.NewMessage(chatID, "🌐")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	if _, err := s.sender.Send(msg); err != nil {
		s.log.Warn("failed to send language keyboard", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (s *BotService) setLanguage(ctx context.Context, chatID int64, lang string) string {
	user, err := s.Storage.GetUserByTelegramID(ctx, chatID)
	if err != nil {
		return s.Localizer.GetString("", "telegram_link_usage")
	}
	if !slices.Contains(s.Languages, lang) {
		return s.Localizer.GetString(user.Language, "response_failed")
	}
	user.Language = lang
	if err := s.Storage.SaveUser(ctx, user); err != nil {
		s.log.Error("failed to update language", zap.String("user_id", user.ID), zap.Error(err))
		return s.Localizer.GetString(lang, "response_failed")
	}
	return s.Localizer.GetString(lang, "response_saved")
}

// parseCounterArgs reads "<message id> <amount>" into a counter entry; the
// amount may be typed with separators, e.g. "4,75,000".
func parseCounterArgs(args string) (uint, *offer.Entry, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return 0, nil, apperr.ErrBadRequest
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil || id == 0 {
		return 0, nil, apperr.ErrBadRequest
	}
	entry := offer.NewCounterEntry()
	entry.Input(strings.Join(fields[1:], ""))
	return uint(id), entry, nil
}
