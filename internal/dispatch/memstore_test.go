package dispatch_test

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/storage"
	apperr "github.com/hbkhrishi0412-afk/reride-sub005/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ storage.Storage = (*memStore)(nil)

// memStore is an in-memory storage.Storage. It mirrors storage.Service:
// ApplyOfferResponse only moves a record out of the expected status, CreateOffer
// and counters respect the ux_thread_pending_offer index (one pending offer per
// thread), and locks are released only by the holder that took them. Changes
// to those functions in storage.go must be reflected here; the Postgres side is
// exercised by the integration tests in internal/storage.
type memStore struct {
	mu       sync.Mutex
	users    map[string]models.User
	threads  map[string]models.Thread
	messages []models.ChatMessage
	locks    map[uint]string
	lockSeq  int
	events   []models.ThreadEvent

	failApply   error
	failPublish error
	onApply     func()
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]models.User),
		threads: make(map[string]models.Thread),
		locks:   make(map[uint]string),
	}
}

func (s *memStore) SaveUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user
	return nil
}

func (s *memStore) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	return &u, nil
}

func (s *memStore) GetUserByTelegramID(context.Context, int64) (*models.User, error) {
	return nil, apperr.ErrUserNotFound
}

func (s *memStore) GetTelegramLinkedUsers(context.Context) ([]models.User, error) { return nil, nil }

func (s *memStore) SaveListing(context.Context, *models.Listing) error { return nil }

func (s *memStore) GetListingByID(context.Context, string) (*models.Listing, error) {
	return nil, apperr.ErrListingNotFound
}

func (s *memStore) SaveThread(_ context.Context, thread *models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[thread.ThreadID] = *thread
	return nil
}

func (s *memStore) GetThreadByID(_ context.Context, threadID string) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil, apperr.ErrThreadNotFound
	}
	return &t, nil
}

func (s *memStore) FindActiveThread(context.Context, string, string) (*models.Thread, error) {
	return nil, nil
}

func (s *memStore) GetThreadsForUser(context.Context, string) ([]models.Thread, error) {
	return nil, nil
}

func (s *memStore) insert(msg *models.ChatMessage) {
	msg.ID = uint(len(s.messages) + 1)
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt
	s.messages = append(s.messages, *msg)
}

func (s *memStore) SaveMessage(_ context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(msg)
	return nil
}

func (s *memStore) GetTranscript(_ context.Context, threadID string) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) FindMessageByID(_ context.Context, id uint) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == 0 || int(id) > len(s.messages) {
		return nil, apperr.ErrMessageNotFound
	}
	m := s.messages[id-1]
	return &m, nil
}

func (s *memStore) FindCounterOf(_ context.Context, id uint) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.Offer.CounterOfID != nil && *m.Offer.CounterOfID == id {
			return &m, nil
		}
	}
	return nil, nil
}

func (s *memStore) pendingIn(threadID string) bool {
	for _, m := range s.messages {
		if m.ThreadID == threadID && m.IsOffer() && m.Offer.Status == models.OfferPending {
			return true
		}
	}
	return false
}

func (s *memStore) CreateOffer(_ context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingIn(msg.ThreadID) {
		return apperr.ErrPendingOfferExists
	}
	s.insert(msg)
	return nil
}

func (s *memStore) ApplyOfferResponse(_ context.Context, messageID uint, from, to models.OfferStatus, counter *models.ChatMessage) (*models.ChatMessage, error) {
	if s.onApply != nil {
		s.onApply()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failApply != nil {
		return nil, s.failApply
	}
	if messageID == 0 || int(messageID) > len(s.messages) {
		return nil, apperr.ErrMessageNotFound
	}
	m := &s.messages[messageID-1]
	if m.Offer.Status != from {
		return nil, apperr.ErrNotActionable
	}
	m.Offer.Status = to
	m.UpdatedAt = time.Now()
	updated := *m
	if counter != nil {
		if s.pendingIn(updated.ThreadID) {
			m.Offer.Status = from
			return nil, apperr.ErrPendingOfferExists
		}
		id := updated.ID
		counter.ThreadID = updated.ThreadID
		counter.Offer.CounterOfID = &id
		s.insert(counter)
	}
	return &updated, nil
}

func (s *memStore) AcquireOfferLock(_ context.Context, messageID uint, kind models.ResponseKind, _ time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.locks[messageID]; held {
		return "", false, nil
	}
	s.lockSeq++
	value := string(kind) + ":" + strconv.Itoa(s.lockSeq)
	s.locks[messageID] = value
	return value, true, nil
}

func (s *memStore) ReleaseOfferLock(_ context.Context, messageID uint, lock string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[messageID] == lock {
		delete(s.locks, messageID)
	}
	return nil
}

func (s *memStore) InFlightResponse(_ context.Context, messageID uint) (models.ResponseKind, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, held := s.locks[messageID]
	kind, _, _ := strings.Cut(value, ":")
	return models.ResponseKind(kind), held, nil
}

// expireLock replaces the lock on messageID as if its TTL ran out and another
// responder took it.
func (s *memStore) expireLock(messageID uint, kind models.ResponseKind) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockSeq++
	value := string(kind) + ":" + strconv.Itoa(s.lockSeq)
	s.locks[messageID] = value
	return value
}

func (s *memStore) CreateTelegramLinkCode(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

func (s *memStore) ConsumeTelegramLinkCode(context.Context, string) (string, error) {
	return "", apperr.ErrLinkCodeInvalid
}

func (s *memStore) PublishEvent(_ context.Context, event models.ThreadEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPublish != nil {
		return s.failPublish
	}
	s.events = append(s.events, event)
	return nil
}

func (s *memStore) SubscribeToThreads(context.Context) *redis.PubSub { return nil }

func (s *memStore) offers(threadID string) []models.ChatMessage {
	all, _ := s.GetTranscript(context.Background(), threadID)
	var out []models.ChatMessage
	for _, m := range all {
		if m.IsOffer() {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) publishedEvents() []models.ThreadEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ThreadEvent(nil), s.events...)
}
