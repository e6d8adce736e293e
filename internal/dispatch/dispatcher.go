// Package dispatch persists offers and responses to offers and propagates the
// committed result back into the thread transcript.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/storage"
	apperr "github.com/hbkhrishi0412-afk/reride-sub005/pkg/errors"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/logger"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/metrics"
	"go.uber.org/zap"
)

// Request is a response to the offer carried by message MessageID.
type Request struct {
	MessageID uint
	ActorID   string
	Kind      models.ResponseKind
	// CounterPrice is required when Kind is ResponseCountered.
	CounterPrice int64
}

// SubmitRequest opens a new offer in a thread.
type SubmitRequest struct {
	ThreadID string
	ActorID  string
	Amount   int64
}

// Result is the committed state after a response.
type Result struct {
	Message models.ChatMessage  `json:"message"`
	Counter *models.ChatMessage `json:"counter,omitempty"`
	// Replayed is set when the same response had already been recorded.
	Replayed bool `json:"replayed"`
}

type Dispatcher struct {
	Storage storage.Storage
	Policy  offer.Policy
	LockTTL time.Duration
	log     *logger.Logger
}

func NewDispatcher(s storage.Storage, policy offer.Policy, lockTTL time.Duration, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Global()
	}
	return &Dispatcher{Storage: s, Policy: policy, LockTTL: lockTTL, log: log}
}

// Submit records an opening offer of req.Amount from a thread participant.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (*models.ChatMessage, error) {
	if req.Amount <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	thread, err := d.Storage.GetThreadByID(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}
	if !thread.IsActive {
		return nil, apperr.ErrThreadClosed
	}
	sender, ok := thread.PartyOf(req.ActorID)
	if !ok {
		return nil, apperr.ErrForbidden
	}
	rec, err := offer.NewOpening(sender, req.Amount)
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		ThreadID: thread.ThreadID,
		SenderID: req.ActorID,
		Type:     models.MessageOffer,
		Content:  offer.FormatINR(req.Amount),
		Offer:    rec,
	}
	if err := d.Storage.CreateOffer(ctx, msg); err != nil {
		return nil, fmt.Errorf("create offer in thread %s: %w", thread.ThreadID, err)
	}
	metrics.RecordOffer(string(sender), "opening")

	d.publish(ctx, models.EventMessageCreated, *msg)
	d.log.ForThread(thread.ThreadID, req.ActorID).Info("offer submitted",
		zap.Uint("message_id", msg.ID), zap.Int64("amount", req.Amount))
	return msg, nil
}

// Respond records req against the exact message it names. The local record
// only changes after the store has committed; on failure it keeps its prior
// status and the error is returned.
func (d *Dispatcher) Respond(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := d.respond(ctx, req)
	metrics.RecordResponse(string(req.Kind), outcome(res, err), time.Since(start).Seconds())
	if err != nil {
		d.log.Warn("offer response failed",
			zap.Uint("message_id", req.MessageID),
			zap.String("actor_id", req.ActorID),
			zap.String("kind", string(req.Kind)),
			zap.Error(err))
	}
	return res, err
}

func outcome(res *Result, err error) string {
	switch {
	case err == nil && res.Replayed:
		return "replayed"
	case err == nil:
		return "committed"
	case errors.Is(err, apperr.ErrInFlight):
		return "in_flight"
	case apperr.HTTPStatusFromError(err) < 500:
		return "rejected"
	default:
		return "failed"
	}
}

func (d *Dispatcher) respond(ctx context.Context, req Request) (*Result, error) {
	action, ok := offer.ActionFor(req.Kind)
	if !ok {
		return nil, apperr.ErrInvalidResponse
	}
	if req.Kind == models.ResponseCountered && req.CounterPrice <= 0 {
		return nil, apperr.ErrInvalidAmount
	}

	msg, err := d.Storage.FindMessageByID(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}
	if !msg.IsOffer() {
		return nil, apperr.ErrMessageNotFound
	}
	role, err := d.authorize(ctx, msg, req)
	if err != nil {
		return nil, err
	}

	if res, err := d.replay(ctx, msg, req); res != nil || err != nil {
		return res, err
	}

	lock, locked, err := d.Storage.AcquireOfferLock(ctx, msg.ID, req.Kind, d.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire in-flight lock: %w", err)
	}
	if !locked {
		return nil, apperr.ErrInFlight
	}
	defer func() {
		if err := d.Storage.ReleaseOfferLock(context.WithoutCancel(ctx), msg.ID, lock); err != nil {
			d.log.Error("failed to release in-flight lock", zap.Uint("message_id", msg.ID), zap.Error(err))
		}
	}()

	// Another responder may have committed between the first read and the lock.
	msg, err = d.Storage.FindMessageByID(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}
	if res, err := d.replay(ctx, msg, req); res != nil || err != nil {
		return res, err
	}

	tr, err := d.Policy.Decide(msg.Offer, role, action, req.CounterPrice)
	if err != nil {
		return nil, err
	}

	local := *msg
	if tr.Kind != models.ResponseConfirmed {
		if err := local.Offer.BeginResponse(tr.Kind); err != nil {
			return nil, apperr.ErrNotActionable
		}
	}

	var counter *models.ChatMessage
	if tr.Spawned != nil {
		counter = &models.ChatMessage{
			ThreadID: msg.ThreadID,
			SenderID: req.ActorID,
			Type:     models.MessageOffer,
			Content:  offer.FormatINR(tr.Spawned.OfferPrice),
			Offer:    *tr.Spawned,
		}
	}

	updated, err := d.Storage.ApplyOfferResponse(ctx, msg.ID, tr.From, tr.To, counter)
	if err != nil {
		local.Offer.Abort()
		return nil, fmt.Errorf("persist %s response to message %d: %w", tr.Kind, msg.ID, err)
	}
	if local.Offer.Status == models.OfferResponding {
		_ = local.Offer.Settle(updated.Offer.Status)
	} else {
		local.Offer.Status = updated.Offer.Status
	}
	local.UpdatedAt = updated.UpdatedAt

	d.publish(ctx, models.EventOfferUpdated, local)
	if counter != nil {
		metrics.RecordOffer(string(counter.Offer.Sender), "counter")
		d.publish(ctx, models.EventMessageCreated, *counter)
	}

	d.log.ForThread(msg.ThreadID, req.ActorID).Info("offer response committed",
		zap.Uint("message_id", msg.ID),
		zap.String("status", string(local.Offer.Status)))
	return &Result{Message: local, Counter: counter}, nil
}

// authorize checks the actor against the thread, independently of whatever
// controls the client chose to show. It returns the actor's role in the thread.
func (d *Dispatcher) authorize(ctx context.Context, msg *models.ChatMessage, req Request) (models.Role, error) {
	actor, err := d.Storage.GetUserByID(ctx, req.ActorID)
	if err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return "", apperr.ErrUnauthorized
		}
		return "", err
	}
	if req.Kind == models.ResponseConfirmed {
		if actor.Role != models.RoleAdmin {
			return "", apperr.ErrForbidden
		}
		return models.RoleAdmin, nil
	}

	thread, err := d.Storage.GetThreadByID(ctx, msg.ThreadID)
	if err != nil {
		return "", err
	}
	if !thread.IsActive {
		return "", apperr.ErrThreadClosed
	}
	role, ok := thread.RoleOf(actor.ID)
	if !ok {
		return "", apperr.ErrForbidden
	}
	if thread.RecipientID(msg.Offer.Sender) != actor.ID {
		return "", apperr.ErrNotRecipient
	}
	return role, nil
}

// replay returns the stored outcome when req has already been applied to msg.
// A different response to an already settled record is ErrNotActionable.
func (d *Dispatcher) replay(ctx context.Context, msg *models.ChatMessage, req Request) (*Result, error) {
	want, _ := req.Kind.Result()
	if msg.Offer.Status != want {
		return nil, nil
	}
	res := &Result{Message: *msg, Replayed: true}
	if req.Kind != models.ResponseCountered {
		return res, nil
	}
	counter, err := d.Storage.FindCounterOf(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if counter == nil || counter.Offer.OfferPrice != req.CounterPrice {
		return nil, apperr.ErrNotActionable
	}
	res.Counter = counter
	return res, nil
}

// publish pushes a committed change to the thread channel. The change is
// already durable, so a failed publish is logged and clients catch up on the
// next transcript fetch.
func (d *Dispatcher) publish(ctx context.Context, eventType string, msg models.ChatMessage) {
	event := models.ThreadEvent{Type: eventType, ThreadID: msg.ThreadID, Message: msg}
	if err := d.Storage.PublishEvent(ctx, event); err != nil {
		d.log.Error("failed to publish thread event",
			zap.String("thread_id", msg.ThreadID),
			zap.Uint("message_id", msg.ID),
			zap.Error(err))
	}
}
