package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/config"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	apperr "github.com/hbkhrishi0412-afk/reride-sub005/pkg/errors"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Storage interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetTelegramLinkedUsers(ctx context.Context) ([]models.User, error)

	SaveListing(ctx context.Context, listing *models.Listing) error
	GetListingByID(ctx context.Context, listingID string) (*models.Listing, error)

	SaveThread(ctx context.Context, thread *models.Thread) error
	GetThreadByID(ctx context.Context, threadID string) (*models.Thread, error)
	FindActiveThread(ctx context.Context, listingID, buyerID string) (*models.Thread, error)
	GetThreadsForUser(ctx context.Context, userID string) ([]models.Thread, error)

	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
	GetTranscript(ctx context.Context, threadID string) ([]models.ChatMessage, error)
	FindMessageByID(ctx context.Context, id uint) (*models.ChatMessage, error)
	FindCounterOf(ctx context.Context, id uint) (*models.ChatMessage, error)

	CreateOffer(ctx context.Context, msg *models.ChatMessage) error
	ApplyOfferResponse(ctx context.Context, messageID uint, from, to models.OfferStatus, counter *models.ChatMessage) (*models.ChatMessage, error)

	AcquireOfferLock(ctx context.Context, messageID uint, kind models.ResponseKind, ttl time.Duration) (string, bool, error)
	ReleaseOfferLock(ctx context.Context, messageID uint, lock string) error
	InFlightResponse(ctx context.Context, messageID uint) (models.ResponseKind, bool, error)

	CreateTelegramLinkCode(ctx context.Context, userID string, ttl time.Duration) (string, error)
	ConsumeTelegramLinkCode(ctx context.Context, code string) (string, error)

	PublishEvent(ctx context.Context, event models.ThreadEvent) error
	SubscribeToThreads(ctx context.Context) *redis.PubSub
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	log   *logger.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Global()
	}
	return &Service{
		DB:    db,
		Redis: rdb,
		log:   log,
	}
}

// Migrate creates the tables and the partial unique index that keeps at most
// one pending offer per thread.
func (s *Service) Migrate() error {
	if err := s.DB.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Thread{},
		&models.ChatMessage{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return s.DB.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_thread_pending_offer
		ON chat_messages (thread_id)
		WHERE type = 'offer' AND offer_status = 'pending' AND deleted_at IS NULL`).Error
}

func (s *Service) SaveUser(ctx context.Context, user *models.User) error {
	return s.DB.WithContext(ctx).Save(user).Error
}

func (s *Service) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetTelegramLinkedUsers returns accounts that receive offers over Telegram.
func (s *Service) GetTelegramLinkedUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.DB.WithContext(ctx).Where("telegram_id <> 0").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Service) SaveListing(ctx context.Context, listing *models.Listing) error {
	return s.DB.WithContext(ctx).Save(listing).Error
}

func (s *Service) GetListingByID(ctx context.Context, listingID string) (*models.Listing, error) {
	var listing models.Listing
	err := s.DB.WithContext(ctx).Where("id = ?", listingID).First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (s *Service) SaveThread(ctx context.Context, thread *models.Thread) error {
	return s.DB.WithContext(ctx).Save(thread).Error
}

func (s *Service) GetThreadByID(ctx context.Context, threadID string) (*models.Thread, error) {
	var thread models.Thread
	err := s.DB.WithContext(ctx).Where("thread_id = ?", threadID).First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrThreadNotFound
	}
	if err != nil {
		s.log.Error("failed to get thread", zap.String("thread_id", threadID), zap.Error(err))
		return nil, err
	}
	return &thread, nil
}

// FindActiveThread returns the open thread of buyerID on listingID, or nil.
func (s *Service) FindActiveThread(ctx context.Context, listingID, buyerID string) (*models.Thread, error) {
	var thread models.Thread
	err := s.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Where("listing_id = ? AND buyer_id = ?", listingID, buyerID).
		First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (s *Service) GetThreadsForUser(ctx context.Context, userID string) ([]models.Thread, error) {
	var threads []models.Thread
	err := s.DB.WithContext(ctx).
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("started_at desc").
		Find(&threads).Error
	if err != nil {
		return nil, err
	}
	return threads, nil
}

// SaveMessage stores a plain chat line; msg.ID is filled in by GORM.
func (s *Service) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.IsOffer() {
		return fmt.Errorf("offer messages must go through CreateOffer")
	}
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		s.log.Error("failed to save message", zap.String("thread_id", msg.ThreadID), zap.Error(err))
		return err
	}
	return nil
}

// GetTranscript returns the thread's messages oldest first.
func (s *Service) GetTranscript(ctx context.Context, threadID string) ([]models.ChatMessage, error) {
	var history []models.ChatMessage
	if err := s.DB.WithContext(ctx).Where("thread_id = ?", threadID).Order("created_at asc, id asc").Find(&history).Error; err != nil {
		s.log.Error("failed to get transcript", zap.String("thread_id", threadID), zap.Error(err))
		return nil, err
	}
	return history, nil
}

func (s *Service) FindMessageByID(ctx context.Context, id uint) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	err := s.DB.WithContext(ctx).First(&msg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindCounterOf returns the record spawned by countering message id, or nil.
func (s *Service) FindCounterOf(ctx context.Context, id uint) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	err := s.DB.WithContext(ctx).Where("counter_of_id = ?", id).Order("id asc").First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func hasPendingOffer(tx *gorm.DB, threadID string) (bool, error) {
	var n int64
	err := tx.Model(&models.ChatMessage{}).
		Where("thread_id = ? AND type = ? AND offer_status = ?", threadID, models.MessageOffer, models.OfferPending).
		Count(&n).Error
	return n > 0, err
}

// CreateOffer inserts a new pending offer unless the thread already has one.
func (s *Service) CreateOffer(ctx context.Context, msg *models.ChatMessage) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := hasPendingOffer(tx, msg.ThreadID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.ErrPendingOfferExists
		}
		return tx.Create(msg).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.ErrPendingOfferExists
	}
	return err
}

// ApplyOfferResponse moves message messageID from one status to another and,
// for counters, inserts the new pending record, all in one transaction.
// The update is conditional on the current status so concurrent responders
// cannot both succeed.
func (s *Service) ApplyOfferResponse(ctx context.Context, messageID uint, from, to models.OfferStatus, counter *models.ChatMessage) (*models.ChatMessage, error) {
	var updated models.ChatMessage
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&updated, messageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrMessageNotFound
			}
			return err
		}
		if !updated.IsOffer() || updated.Offer.Status != from {
			return apperr.ErrNotActionable
		}

		res := tx.Model(&models.ChatMessage{}).
			Where("id = ? AND offer_status = ?", messageID, from).
			Update("offer_status", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrNotActionable
		}
		updated.Offer.Status = to

		if counter == nil {
			return nil
		}
		exists, err := hasPendingOffer(tx, updated.ThreadID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.ErrPendingOfferExists
		}
		id := updated.ID
		counter.ThreadID = updated.ThreadID
		counter.Offer.CounterOfID = &id
		return tx.Create(counter).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperr.ErrPendingOfferExists
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func offerLockKey(messageID uint) string {
	return config.InFlightKeyPrefix + strconv.FormatUint(uint64(messageID), 10)
}

// releaseLockScript deletes the lock only while it still holds the caller's
// value, so an expired holder cannot release a lock taken over by another.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// lockValue is "<kind>:<token>"; the token makes each holder distinct.
func lockValue(kind models.ResponseKind) string {
	return string(kind) + ":" + uuid.NewString()
}

func lockKind(value string) models.ResponseKind {
	kind, _, _ := strings.Cut(value, ":")
	return models.ResponseKind(kind)
}

// AcquireOfferLock marks a response of the given kind to messageID as in
// flight. It returns false when another response holds the lock. The returned
// value must be passed to ReleaseOfferLock.
func (s *Service) AcquireOfferLock(ctx context.Context, messageID uint, kind models.ResponseKind, ttl time.Duration) (string, bool, error) {
	value := lockValue(kind)
	ok, err := s.Redis.SetNX(ctx, offerLockKey(messageID), value, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return value, true, nil
}

// ReleaseOfferLock drops the lock if it is still the one identified by lock.
func (s *Service) ReleaseOfferLock(ctx context.Context, messageID uint, lock string) error {
	n, err := releaseLockScript.Run(ctx, s.Redis, []string{offerLockKey(messageID)}, lock).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		s.log.Warn("in-flight lock expired before release", zap.Uint("message_id", messageID))
	}
	return nil
}

// InFlightResponse returns the kind of the response currently being
// persisted for messageID, if any.
func (s *Service) InFlightResponse(ctx context.Context, messageID uint) (models.ResponseKind, bool, error) {
	v, err := s.Redis.Get(ctx, offerLockKey(messageID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return lockKind(v), true, nil
}

// CreateTelegramLinkCode stores a one-time code that links a Telegram chat to
// userID when sent as the /start payload.
func (s *Service) CreateTelegramLinkCode(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	code := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.Redis.Set(ctx, config.TelegramLinkKeyPrefix+code, userID, ttl).Err(); err != nil {
		return "", err
	}
	return code, nil
}

// ConsumeTelegramLinkCode returns the user the code was issued for and
// deletes it, so a code links at most one chat.
func (s *Service) ConsumeTelegramLinkCode(ctx context.Context, code string) (string, error) {
	userID, err := s.Redis.GetDel(ctx, config.TelegramLinkKeyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperr.ErrLinkCodeInvalid
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// PublishEvent publishes a transcript change on the thread channel.
func (s *Service) PublishEvent(ctx context.Context, event models.ThreadEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, config.ThreadChannelPrefix+event.ThreadID, payload).Err()
}

func (s *Service) SubscribeToThreads(ctx context.Context) *redis.PubSub {
	return s.Redis.PSubscribe(ctx, config.ThreadChannelPattern)
}

// Ping checks that Postgres and Redis are reachable.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}
