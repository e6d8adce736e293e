package chathub_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hbkhrishi0412-afk/reride-sub005/internal/chathub"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/storage/storagemock"
	apperr "github.com/hbkhrishi0412-afk/reride-sub005/pkg/errors"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testThread = &models.Thread{ThreadID: "thread1", ListingID: "listing1", BuyerID: "buyer", SellerID: "seller", IsActive: true}

func startHub(t *testing.T, storageMock *storagemock.MockStorage) *chathub.ManagerService {
	t.Helper()
	storageMock.On("SubscribeToThreads", mock.Anything).Return(nil)

	hub := chathub.NewManagerService(storageMock, offer.Policy{}, nil, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *MockClient) chathub.Delivery {
	t.Helper()
	select {
	case d := <-c.RecvChannel:
		return d
	case <-time.After(time.Second):
		t.Fatalf("client %s did not receive an event", c.GetUserID())
	}
	return chathub.Delivery{}
}

func TestManager_RegisterAndUnregister(t *testing.T) {
	hub := startHub(t, new(storagemock.MockStorage))
	clientA := newMockClient("user_A")

	hub.RegisterCh <- clientA
	assert.Eventually(t, func() bool { return hub.IsConnected("user_A") }, time.Second, 10*time.Millisecond)

	hub.UnregisterCh <- clientA
	assert.Eventually(t, func() bool { return !hub.IsConnected("user_A") }, time.Second, 10*time.Millisecond)
	assert.True(t, clientA.IsClosed())

	// A second unregister of the same client is a no-op.
	hub.Unregister(clientA)
}

func TestManager_DeliversToBothParticipantsWithTheirRoles(t *testing.T) {
	storageMock := new(storagemock.MockStorage)
	storageMock.On("GetThreadByID", mock.Anything, "thread1").Return(testThread, nil)
	hub := startHub(t, storageMock)

	buyer := newMockClient("buyer")
	seller := newMockClient("seller")
	stranger := newMockClient("stranger")
	hub.RegisterCh <- buyer
	hub.RegisterCh <- seller
	hub.RegisterCh <- stranger

	event := models.ThreadEvent{
		Type:     models.EventMessageCreated,
		ThreadID: "thread1",
		Message: models.ChatMessage{ThreadID: "thread1", SenderID: "buyer", Type: models.MessageOffer,
			Offer: models.Offer{OfferPrice: 450000, Status: models.OfferPending, Sender: models.PartyBuyer}},
	}
	hub.PubSubCh <- event

	got := receive(t, buyer)
	assert.Equal(t, models.RoleCustomer, got.Role)
	assert.Equal(t, int64(450000), got.Event.Message.Offer.OfferPrice)

	got = receive(t, seller)
	assert.Equal(t, models.RoleSeller, got.Role)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, stranger.RecvChannel)
}

func TestManager_DropsSlowClient(t *testing.T) {
	storageMock := new(storagemock.MockStorage)
	storageMock.On("GetThreadByID", mock.Anything, "thread1").Return(testThread, nil)
	hub := startHub(t, storageMock)

	slow := newMockClientWithBuffer("seller", 0)
	hub.RegisterCh <- slow
	hub.PubSubCh <- models.ThreadEvent{Type: models.EventOfferUpdated, ThreadID: "thread1"}

	assert.Eventually(t, slow.IsClosed, time.Second, 10*time.Millisecond)
	assert.False(t, hub.IsConnected("seller"))
}

func TestManager_handleIncomingMessage(t *testing.T) {
	storageMock := new(storagemock.MockStorage)
	storageMock.On("GetThreadByID", mock.Anything, "thread1").Return(testThread, nil)
	storageMock.On("SaveMessage", mock.Anything, mock.AnythingOfType("*models.ChatMessage")).Return(nil)
	published := make(chan models.ThreadEvent, 1)
	storageMock.On("PublishEvent", mock.Anything, mock.AnythingOfType("models.ThreadEvent")).
		Run(func(args mock.Arguments) { published <- args.Get(1).(models.ThreadEvent) }).
		Return(nil)
	hub := startHub(t, storageMock)

	hub.IncomingCh <- models.IncomingMessage{ThreadID: "thread1", SenderID: "buyer", Content: "  is the price negotiable?  "}

	select {
	case event := <-published:
		assert.Equal(t, models.EventMessageCreated, event.Type)
		assert.Equal(t, "thread1", event.ThreadID)
	case <-time.After(time.Second):
		t.Fatal("message was not published")
	}

	storageMock.AssertCalled(t, "SaveMessage", mock.Anything, mock.MatchedBy(func(m *models.ChatMessage) bool {
		return m.Type == models.MessageText && m.Content == "is the price negotiable?" && m.SenderID == "buyer"
	}))
}

func TestManager_IncomingFromNonParticipantIsDropped(t *testing.T) {
	storageMock := new(storagemock.MockStorage)
	storageMock.On("GetThreadByID", mock.Anything, "thread1").Return(testThread, nil)
	storageMock.On("GetThreadByID", mock.Anything, "missing").Return(nil, apperr.ErrThreadNotFound)
	hub := startHub(t, storageMock)

	hub.IncomingCh <- models.IncomingMessage{ThreadID: "thread1", SenderID: "stranger", Content: "hello"}
	hub.IncomingCh <- models.IncomingMessage{ThreadID: "missing", SenderID: "buyer", Content: "hello"}
	hub.IncomingCh <- models.IncomingMessage{ThreadID: "thread1", SenderID: "buyer", Content: "   "}
	time.Sleep(50 * time.Millisecond)

	storageMock.AssertNotCalled(t, "SaveMessage", mock.Anything, mock.Anything)
}

func TestManager_PublishFailureDeliversLocally(t *testing.T) {
	storageMock := new(storagemock.MockStorage)
	storageMock.On("GetThreadByID", mock.Anything, "thread1").Return(testThread, nil)
	storageMock.On("SaveMessage", mock.Anything, mock.Anything).Return(nil)
	storageMock.On("PublishEvent", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	hub := startHub(t, storageMock)

	seller := newMockClient("seller")
	hub.RegisterCh <- seller
	hub.IncomingCh <- models.IncomingMessage{ThreadID: "thread1", SenderID: "buyer", Content: "hello"}

	got := receive(t, seller)
	assert.Equal(t, "hello", got.Event.Message.Content)
}

func TestManager_RestoreClientSession(t *testing.T) {
	hub := chathub.NewManagerService(nil, offer.Policy{}, nil, logger.NewNop())
	require.NoError(t, hub.RestoreClientSession("seller"), "no restorer configured")

	var restored *MockClient
	hub.SetClientRestorer(func(userID string) (chathub.Client, error) {
		restored = newMockClient(userID)
		restored.transport = chathub.TransportTelegram
		return restored, nil
	})

	require.NoError(t, hub.RestoreClientSession("seller"))
	assert.True(t, hub.IsConnected("seller"))
	assert.True(t, restored.HasRun())

	require.NoError(t, hub.RestoreClientSession("seller"))
	assert.False(t, restored.HasRun(), "a second telegram client is not started")
}
