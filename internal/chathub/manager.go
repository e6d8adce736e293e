// Package chathub fans committed thread changes out to the connected
// participants of each thread and persists the text lines they type.
package chathub

import (
	"context"
	"strings"
	"sync"

	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/storage"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/logger"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/metrics"
	"go.uber.org/zap"
)

const maxTextLength = 2000

// ClientRestorer builds a client for a user that has no live connection,
// e.g. a Telegram chat linked to the account.
type ClientRestorer func(userID string) (Client, error)

type ManagerService struct {
	mu      sync.RWMutex
	Clients map[string]map[Client]struct{}

	// Channels
	IncomingCh   chan models.IncomingMessage
	PubSubCh     chan models.ThreadEvent
	RegisterCh   chan Client
	UnregisterCh chan Client

	Storage storage.Storage
	Policy  offer.Policy
	Labels  offer.Labeler

	ClientRestorer ClientRestorer

	log  *logger.Logger
	done chan struct{}
}

func NewManagerService(s storage.Storage, policy offer.Policy, labels offer.Labeler, log *logger.Logger) *ManagerService {
	if log == nil {
		log = logger.Global()
	}
	return &ManagerService{
		Clients:      make(map[string]map[Client]struct{}),
		IncomingCh:   make(chan models.IncomingMessage),
		PubSubCh:     make(chan models.ThreadEvent, 64),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Storage:      s,
		Policy:       policy,
		Labels:       labels,
		log:          log,
		done:         make(chan struct{}),
	}
}

func (m *ManagerService) SetClientRestorer(restorer ClientRestorer) {
	m.ClientRestorer = restorer
}

// RestoreClientSession registers a restored client for userID unless the
// user already has one on the restorer's transport.
func (m *ManagerService) RestoreClientSession(userID string) error {
	if m.ClientRestorer == nil {
		return nil
	}

	client, err := m.ClientRestorer(userID)
	if err != nil {
		return err
	}
	if m.hasTransport(userID, client.GetTransport()) {
		return nil
	}

	m.add(client)
	client.Run()
	m.log.Info("restored client session", zap.String("user_id", userID), zap.String("transport", client.GetTransport()))
	return nil
}

// IsConnected reports whether userID has at least one registered client.
func (m *ManagerService) IsConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Clients[userID]) > 0
}

func (m *ManagerService) hasTransport(userID, transport string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for c := range m.Clients[userID] {
		if c.GetTransport() == transport {
			return true
		}
	}
	return false
}

// Unregister detaches client. Safe to call after Run has returned.
func (m *ManagerService) Unregister(client Client) {
	select {
	case m.UnregisterCh <- client:
	case <-m.done:
	}
}

// Submit hands a typed text line to the hub.
func (m *ManagerService) Submit(msg models.IncomingMessage) {
	select {
	case m.IncomingCh <- msg:
	case <-m.done:
	}
}

// Run processes registrations, incoming text and thread events until ctx
// is cancelled.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.done)
	m.StartPubSubListener(ctx)

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return

		case client := <-m.RegisterCh:
			m.add(client)
			m.log.Debug("client registered", zap.String("user_id", client.GetUserID()), zap.String("transport", client.GetTransport()))

		case client := <-m.UnregisterCh:
			m.remove(client)

		case msg := <-m.IncomingCh:
			m.handleIncomingMessage(ctx, msg)

		case event := <-m.PubSubCh:
			m.deliver(ctx, event)
		}
	}
}

func (m *ManagerService) add(client Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.Clients[client.GetUserID()]
	if !ok {
		set = make(map[Client]struct{})
		m.Clients[client.GetUserID()] = set
	}
	if _, exists := set[client]; exists {
		return
	}
	set[client] = struct{}{}
	metrics.ClientConnected(client.GetTransport())
}

func (m *ManagerService) remove(client Client) {
	m.mu.Lock()
	set, ok := m.Clients[client.GetUserID()]
	if ok {
		_, ok = set[client]
		delete(set, client)
		if len(set) == 0 {
			delete(m.Clients, client.GetUserID())
		}
	}
	m.mu.Unlock()

	if ok {
		client.Close()
		metrics.ClientDisconnected(client.GetTransport())
	}
}

func (m *ManagerService) closeAll() {
	m.mu.RLock()
	var all []Client
	for _, set := range m.Clients {
		for c := range set {
			all = append(all, c)
		}
	}
	m.mu.RUnlock()
	for _, c := range all {
		m.remove(c)
	}
}

func (m *ManagerService) handleIncomingMessage(ctx context.Context, in models.IncomingMessage) {
	content := strings.TrimSpace(in.Content)
	if content == "" || len(content) > maxTextLength {
		return
	}
	log := m.log.ForThread(in.ThreadID, in.SenderID)

	thread, err := m.Storage.GetThreadByID(ctx, in.ThreadID)
	if err != nil {
		log.Warn("dropping message for unknown thread", zap.Error(err))
		return
	}
	if !thread.IsActive || !thread.HasParticipant(in.SenderID) {
		log.Warn("dropping message from non-participant or closed thread")
		return
	}

	msg := models.ChatMessage{
		ThreadID: thread.ThreadID,
		SenderID: in.SenderID,
		Type:     models.MessageText,
		Content:  content,
	}
	if err := m.Storage.SaveMessage(ctx, &msg); err != nil {
		log.Error("failed to save message", zap.Error(err))
		return
	}

	event := models.ThreadEvent{Type: models.EventMessageCreated, ThreadID: thread.ThreadID, Message: msg}
	if err := m.Storage.PublishEvent(ctx, event); err != nil {
		// Without pub/sub only this instance's clients see the line.
		log.Warn("failed to publish message, delivering locally", zap.Error(err))
		m.deliverTo(thread, event)
	}
}

// deliver sends event to every connected participant of its thread.
func (m *ManagerService) deliver(ctx context.Context, event models.ThreadEvent) {
	thread, err := m.Storage.GetThreadByID(ctx, event.ThreadID)
	if err != nil {
		m.log.Warn("event for unknown thread", zap.String("thread_id", event.ThreadID), zap.Error(err))
		return
	}
	m.deliverTo(thread, event)
}

func (m *ManagerService) deliverTo(thread *models.Thread, event models.ThreadEvent) {
	var slow []Client
	for _, userID := range []string{thread.BuyerID, thread.SellerID} {
		role, _ := thread.RoleOf(userID)
		m.mu.RLock()
		for client := range m.Clients[userID] {
			select {
			case client.GetSendChannel() <- Delivery{Event: event, Role: role}:
			default:
				slow = append(slow, client)
			}
		}
		m.mu.RUnlock()
	}
	for _, client := range slow {
		m.log.Warn("dropping slow client", zap.String("user_id", client.GetUserID()), zap.String("transport", client.GetTransport()))
		m.remove(client)
	}
}
