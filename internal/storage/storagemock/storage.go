// Package storagemock provides a testify mock of storage.Storage.
package storagemock

import (
	"context"
	"time"

	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

var _ storage.Storage = (*MockStorage)(nil)

type MockStorage struct {
	mock.Mock
}

// User operations
func (m *MockStorage) SaveUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockStorage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetTelegramLinkedUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

// Listing operations
func (m *MockStorage) SaveListing(ctx context.Context, listing *models.Listing) error {
	args := m.Called(ctx, listing)
	return args.Error(0)
}

func (m *MockStorage) GetListingByID(ctx context.Context, listingID string) (*models.Listing, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

// Thread operations
func (m *MockStorage) SaveThread(ctx context.Context, thread *models.Thread) error {
	args := m.Called(ctx, thread)
	return args.Error(0)
}

func (m *MockStorage) GetThreadByID(ctx context.Context, threadID string) (*models.Thread, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

func (m *MockStorage) FindActiveThread(ctx context.Context, listingID, buyerID string) (*models.Thread, error) {
	args := m.Called(ctx, listingID, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

func (m *MockStorage) GetThreadsForUser(ctx context.Context, userID string) ([]models.Thread, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Thread), args.Error(1)
}

// Message operations
func (m *MockStorage) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockStorage) GetTranscript(ctx context.Context, threadID string) ([]models.ChatMessage, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func (m *MockStorage) FindMessageByID(ctx context.Context, id uint) (*models.ChatMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMessage), args.Error(1)
}

func (m *MockStorage) FindCounterOf(ctx context.Context, id uint) (*models.ChatMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMessage), args.Error(1)
}

// Offer operations
func (m *MockStorage) CreateOffer(ctx context.Context, msg *models.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockStorage) ApplyOfferResponse(ctx context.Context, messageID uint, from, to models.OfferStatus, counter *models.ChatMessage) (*models.ChatMessage, error) {
	args := m.Called(ctx, messageID, from, to, counter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMessage), args.Error(1)
}

func (m *MockStorage) AcquireOfferLock(ctx context.Context, messageID uint, kind models.ResponseKind, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, messageID, kind, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockStorage) ReleaseOfferLock(ctx context.Context, messageID uint, lock string) error {
	args := m.Called(ctx, messageID, lock)
	return args.Error(0)
}

func (m *MockStorage) CreateTelegramLinkCode(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, userID, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) ConsumeTelegramLinkCode(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) InFlightResponse(ctx context.Context, messageID uint) (models.ResponseKind, bool, error) {
	args := m.Called(ctx, messageID)
	return args.Get(0).(models.ResponseKind), args.Bool(1), args.Error(2)
}

// Pub/Sub
func (m *MockStorage) PublishEvent(ctx context.Context, event models.ThreadEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStorage) SubscribeToThreads(ctx context.Context) *redis.PubSub {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*redis.PubSub)
}
