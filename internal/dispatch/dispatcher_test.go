package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hbkhrishi0412-afk/reride-sub005/internal/dispatch"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/storage/storagemock"
	apperr "github.com/hbkhrishi0412-afk/reride-sub005/pkg/errors"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const threadID = "7b0c7f64-6a55-4d59-9d7c-2f8f0d9f1a10"

func setup(t *testing.T, policy offer.Policy) (*dispatch.Dispatcher, *memStore) {
	t.Helper()
	s := newMemStore()
	ctx := context.Background()
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "buyer", Role: models.RoleCustomer}))
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "seller", Role: models.RoleSeller}))
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "other-seller", Role: models.RoleSeller}))
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "ops", Role: models.RoleAdmin}))
	require.NoError(t, s.SaveThread(ctx, &models.Thread{
		ThreadID: threadID, ListingID: "creta-2019", BuyerID: "buyer", SellerID: "seller", IsActive: true,
	}))
	return dispatch.NewDispatcher(s, policy, time.Second, logger.NewNop()), s
}

func TestScenario_OfferCounterAccept(t *testing.T) {
	d, s := setup(t, offer.Policy{})
	ctx := context.Background()

	// Buyer offers ₹450000.
	first, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
	require.NoError(t, err)
	assert.Equal(t, int64(450000), first.Offer.OfferPrice)
	assert.Equal(t, models.OfferPending, first.Offer.Status)
	assert.Equal(t, models.PartyBuyer, first.Offer.Sender)

	// Seller counters with ₹475000.
	res, err := d.Respond(ctx, dispatch.Request{MessageID: first.ID, ActorID: "seller", Kind: models.ResponseCountered, CounterPrice: 475000})
	require.NoError(t, err)
	assert.Equal(t, models.OfferCountered, res.Message.Offer.Status)
	require.NotNil(t, res.Counter)

	offers := s.offers(threadID)
	require.Len(t, offers, 2)
	assert.Equal(t, int64(450000), offers[0].Offer.OfferPrice)
	assert.Equal(t, models.OfferCountered, offers[0].Offer.Status)
	assert.Equal(t, int64(475000), offers[1].Offer.OfferPrice)
	require.NotNil(t, offers[1].Offer.CounterPrice)
	assert.Equal(t, int64(450000), *offers[1].Offer.CounterPrice)
	assert.Equal(t, models.OfferPending, offers[1].Offer.Status)
	assert.Equal(t, models.PartySeller, offers[1].Offer.Sender)

	// Buyer accepts the counter.
	res, err = d.Respond(ctx, dispatch.Request{MessageID: offers[1].ID, ActorID: "buyer", Kind: models.ResponseAccepted})
	require.NoError(t, err)
	assert.Equal(t, models.OfferAccepted, res.Message.Offer.Status)

	offers = s.offers(threadID)
	assert.Equal(t, models.OfferAccepted, offers[1].Offer.Status)
	assert.Empty(t, offer.Policy{}.Allowed(offers[1].Offer, models.RoleCustomer), "accepted records expose no controls")

	var types []string
	for _, ev := range s.publishedEvents() {
		types = append(types, ev.Type)
		assert.Equal(t, threadID, ev.ThreadID)
	}
	assert.Equal(t, []string{
		models.EventMessageCreated, // opening offer
		models.EventOfferUpdated,   // countered
		models.EventMessageCreated, // counter record
		models.EventOfferUpdated,   // accepted
	}, types)
}

func TestSubmit_OnePendingPerThread(t *testing.T) {
	d, s := setup(t, offer.Policy{})
	ctx := context.Background()

	_, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
	require.NoError(t, err)

	_, err = d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 460000})
	assert.ErrorIs(t, err, apperr.ErrPendingOfferExists)
	assert.Len(t, s.offers(threadID), 1)
}

func TestSubmit_Validation(t *testing.T) {
	d, s := setup(t, offer.Policy{})
	ctx := context.Background()

	_, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 0})
	assert.ErrorIs(t, err, apperr.ErrInvalidAmount)

	_, err = d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "other-seller", Amount: 100})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = d.Submit(ctx, dispatch.SubmitRequest{ThreadID: "missing", ActorID: "buyer", Amount: 100})
	assert.ErrorIs(t, err, apperr.ErrThreadNotFound)

	assert.Empty(t, s.offers(threadID), "rejected submissions create no record")
	assert.Empty(t, s.publishedEvents())
}

func TestSubmit_ClosedThread(t *testing.T) {
	d, s := setup(t, offer.Policy{})
	ctx := context.Background()
	require.NoError(t, s.SaveThread(ctx, &models.Thread{ThreadID: "closed", BuyerID: "buyer", SellerID: "seller"}))

	_, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: "closed", ActorID: "buyer", Amount: 100})
	assert.ErrorIs(t, err, apperr.ErrThreadClosed)
}

func TestRespond_ClosedThread(t *testing.T) {
	d, s := setup(t, offer.Policy{})
	ctx := context.Background()
	msg, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
	require.NoError(t, err)
	before := len(s.publishedEvents())

	thread, err := s.GetThreadByID(ctx, threadID)
	require.NoError(t, err)
	thread.IsActive = false
	require.NoError(t, s.SaveThread(ctx, thread))

	for _, req := range []dispatch.Request{
		{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseCountered, CounterPrice: 475000},
		{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseAccepted},
		{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseRejected},
	} {
		_, err := d.Respond(ctx, req)
		assert.ErrorIs(t, err, apperr.ErrThreadClosed, string(req.Kind))
	}

	offers := s.offers(threadID)
	require.Len(t, offers, 1, "no counter record is created in a closed thread")
	assert.Equal(t, models.OfferPending, offers[0].Offer.Status)
	assert.Equal(t, before, len(s.publishedEvents()))
}

func TestRespond_ConfirmAfterClose(t *testing.T) {
	d, s := setup(t, offer.Policy{})
	ctx := context.Background()
	msg, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
	require.NoError(t, err)
	_, err = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseAccepted})
	require.NoError(t, err)

	thread, err := s.GetThreadByID(ctx, threadID)
	require.NoError(t, err)
	thread.IsActive = false
	require.NoError(t, s.SaveThread(ctx, thread))

	res, err := d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "ops", Kind: models.ResponseConfirmed})
	require.NoError(t, err)
	assert.Equal(t, models.OfferConfirmed, res.Message.Offer.Status)
}

func TestRespond_OnlyRecipient(t *testing.T) {
	d, s := setup(t, offer.Policy{})
	ctx := context.Background()
	msg, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
	require.NoError(t, err)

	_, err = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "buyer", Kind: models.ResponseAccepted})
	assert.ErrorIs(t, err, apperr.ErrNotRecipient, "the originator cannot answer its own offer")

	_, err = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "other-seller", Kind: models.ResponseAccepted})
	assert.ErrorIs(t, err, apperr.ErrForbidden, "a seller outside the thread cannot answer")

	_, err = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "nobody", Kind: models.ResponseAccepted})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	assert.Equal(t, models.OfferPending, s.offers(threadID)[0].Offer.Status)
}

func TestRespond_BuyerCounterIsPolicy(t *testing.T) {
	for _, tt := range []struct {
		name    string
		policy  offer.Policy
		wantErr error
	}{
		{"seller only", offer.Policy{}, apperr.ErrCounterNotAllowed},
		{"buyer may counter", offer.Policy{BuyerMayCounter: true}, nil},
	} {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := setup(t, tt.policy)
			ctx := context.Background()
			first, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
			require.NoError(t, err)
			res, err := d.Respond(ctx, dispatch.Request{MessageID: first.ID, ActorID: "seller", Kind: models.ResponseCountered, CounterPrice: 500000})
			require.NoError(t, err)

			_, err = d.Respond(ctx, dispatch.Request{MessageID: res.Counter.ID, ActorID: "buyer", Kind: models.ResponseCountered, CounterPrice: 470000})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRespond_IdempotentRetry(t *testing.T) {
	d, s := setup(t, offer.Policy{})
	ctx := context.Background()
	msg, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
	require.NoError(t, err)

	req := dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseCountered, CounterPrice: 475000}
	first, err := d.Respond(ctx, req)
	require.NoError(t, err)
	eventsAfterFirst := len(s.publishedEvents())

	again, err := d.Respond(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Counter.ID, again.Counter.ID)
	assert.Len(t, s.offers(threadID), 2, "a double click must not create a second counter")
	assert.Equal(t, eventsAfterFirst, len(s.publishedEvents()))

	// A different answer to the settled record is refused.
	_, err = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseAccepted})
	assert.ErrorIs(t, err, apperr.ErrNotActionable)
	_, err = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseCountered, CounterPrice: 480000})
	assert.ErrorIs(t, err, apperr.ErrNotActionable)
}

func TestRespond_ConcurrentDuplicatesCommitOnce(t *testing.T) {
	d, s := setup(t, offer.Policy{})
	ctx := context.Background()
	msg, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
	require.NoError(t, err)

	const clicks = 8
	var wg sync.WaitGroup
	errs := make([]error, clicks)
	results := make([]*dispatch.Result, clicks)
	for i := 0; i < clicks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseAccepted})
		}(i)
	}
	wg.Wait()

	committed := 0
	for i := range errs {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], apperr.ErrInFlight)
			continue
		}
		if !results[i].Replayed {
			committed++
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, models.OfferAccepted, s.offers(threadID)[0].Offer.Status)

	_, locked, _ := s.InFlightResponse(ctx, msg.ID)
	assert.False(t, locked, "lock is released after the dispatch")
}

func TestRespond_PersistenceFailureKeepsPriorState(t *testing.T) {
	d, s := setup(t, offer.Policy{})
	ctx := context.Background()
	msg, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
	require.NoError(t, err)
	before := len(s.publishedEvents())

	s.failApply = errors.New("connection reset by peer")
	_, err = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseRejected})
	require.Error(t, err)

	assert.Equal(t, models.OfferPending, s.offers(threadID)[0].Offer.Status)
	assert.Equal(t, before, len(s.publishedEvents()), "nothing is shown to the thread on failure")
	_, locked, _ := s.InFlightResponse(ctx, msg.ID)
	assert.False(t, locked)

	// The retry succeeds once the store recovers.
	s.failApply = nil
	res, err := d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseRejected})
	require.NoError(t, err)
	assert.Equal(t, models.OfferRejected, res.Message.Offer.Status)
}

func TestRespond_ExpiredLockIsNotReleased(t *testing.T) {
	d, s := setup(t, offer.Policy{})
	ctx := context.Background()
	msg, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
	require.NoError(t, err)

	var takenOver string
	s.onApply = func() {
		s.onApply = nil
		takenOver = s.expireLock(msg.ID, models.ResponseRejected)
	}
	_, err = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseAccepted})
	require.NoError(t, err)

	kind, locked, _ := s.InFlightResponse(ctx, msg.ID)
	assert.True(t, locked, "the lock taken after expiry belongs to the other responder")
	assert.Equal(t, models.ResponseRejected, kind)
	require.NoError(t, s.ReleaseOfferLock(ctx, msg.ID, takenOver))
	_, locked, _ = s.InFlightResponse(ctx, msg.ID)
	assert.False(t, locked)
}

func TestRespond_PublishFailureStillCommits(t *testing.T) {
	d, s := setup(t, offer.Policy{})
	ctx := context.Background()
	msg, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
	require.NoError(t, err)

	s.failPublish = errors.New("redis down")
	res, err := d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseAccepted})
	require.NoError(t, err)
	assert.Equal(t, models.OfferAccepted, res.Message.Offer.Status)
}

func TestRespond_CounterValidation(t *testing.T) {
	d, _ := setup(t, offer.Policy{})
	ctx := context.Background()
	msg, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
	require.NoError(t, err)

	_, err = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseCountered})
	assert.ErrorIs(t, err, apperr.ErrInvalidAmount)

	_, err = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseKind("maybe")})
	assert.ErrorIs(t, err, apperr.ErrInvalidResponse)

	_, err = d.Respond(ctx, dispatch.Request{MessageID: 999, ActorID: "seller", Kind: models.ResponseAccepted})
	assert.ErrorIs(t, err, apperr.ErrMessageNotFound)
}

func TestRespond_ConfirmIsAdminOnly(t *testing.T) {
	d, _ := setup(t, offer.Policy{})
	ctx := context.Background()
	msg, err := d.Submit(ctx, dispatch.SubmitRequest{ThreadID: threadID, ActorID: "buyer", Amount: 450000})
	require.NoError(t, err)
	_, err = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseAccepted})
	require.NoError(t, err)

	_, err = d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "seller", Kind: models.ResponseConfirmed})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	res, err := d.Respond(ctx, dispatch.Request{MessageID: msg.ID, ActorID: "ops", Kind: models.ResponseConfirmed})
	require.NoError(t, err)
	assert.Equal(t, models.OfferConfirmed, res.Message.Offer.Status)
}

func TestRespond_LockHeldElsewhere(t *testing.T) {
	storageMock := new(storagemock.MockStorage)
	d := dispatch.NewDispatcher(storageMock, offer.Policy{}, time.Second, logger.NewNop())

	msg := &models.ChatMessage{ThreadID: threadID, SenderID: "buyer", Type: models.MessageOffer,
		Offer: models.Offer{OfferPrice: 450000, Status: models.OfferPending, Sender: models.PartyBuyer}}
	msg.ID = 5
	thread := &models.Thread{ThreadID: threadID, BuyerID: "buyer", SellerID: "seller", IsActive: true}

	storageMock.On("FindMessageByID", mock.Anything, uint(5)).Return(msg, nil)
	storageMock.On("GetUserByID", mock.Anything, "seller").Return(&models.User{ID: "seller", Role: models.RoleSeller}, nil)
	storageMock.On("GetThreadByID", mock.Anything, threadID).Return(thread, nil)
	storageMock.On("AcquireOfferLock", mock.Anything, uint(5), models.ResponseAccepted, time.Second).Return("", false, nil)

	_, err := d.Respond(context.Background(), dispatch.Request{MessageID: 5, ActorID: "seller", Kind: models.ResponseAccepted})

	assert.ErrorIs(t, err, apperr.ErrInFlight)
	storageMock.AssertNotCalled(t, "ApplyOfferResponse", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	storageMock.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything)
	storageMock.AssertNotCalled(t, "ReleaseOfferLock", mock.Anything, mock.Anything, mock.Anything)
}
