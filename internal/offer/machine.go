package offer

import (
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	apperr "github.com/hbkhrishi0412-afk/reride-sub005/pkg/errors"
)

// Action is a control a viewer may use on an offer record.
type Action string

const (
	ActionAccept  Action = "accept"
	ActionReject  Action = "reject"
	ActionCounter Action = "counter"
	// ActionConfirm closes an accepted deal. Operators only, never rendered.
	ActionConfirm Action = "confirm"
)

// ActionFor maps a response kind to the control that produces it.
func ActionFor(kind models.ResponseKind) (Action, bool) {
	switch kind {
	case models.ResponseAccepted:
		return ActionAccept, true
	case models.ResponseRejected:
		return ActionReject, true
	case models.ResponseCountered:
		return ActionCounter, true
	case models.ResponseConfirmed:
		return ActionConfirm, true
	}
	return "", false
}

// Policy holds the negotiation rules that are configurable.
type Policy struct {
	// BuyerMayCounter lets a buyer answer a seller's counter with another counter.
	BuyerMayCounter bool
}

// Transition is the outcome of a permitted action.
type Transition struct {
	Kind models.ResponseKind
	From models.OfferStatus
	To   models.OfferStatus
	// Spawned is the new pending record a counter creates.
	Spawned *models.Offer
}

// RecipientRole is the role expected to answer a record sent by sender.
func RecipientRole(sender models.Party) models.Role {
	if sender == models.PartySeller {
		return models.RoleCustomer
	}
	return models.RoleSeller
}

// IsRecipient reports whether role is the relational recipient of rec.
func IsRecipient(rec models.Offer, role models.Role) bool {
	return role != models.RoleAdmin && role == RecipientRole(rec.Sender)
}

func (p Policy) canCounter(role models.Role) bool {
	return role == models.RoleSeller || (p.BuyerMayCounter && role == models.RoleCustomer)
}

// Allowed lists the controls role may use on rec, in display order.
func (p Policy) Allowed(rec models.Offer, role models.Role) []Action {
	if !IsRecipient(rec, role) || !rec.IsActionable() {
		return nil
	}
	actions := []Action{ActionAccept, ActionReject}
	if p.canCounter(role) {
		actions = append(actions, ActionCounter)
	}
	return actions
}

// Decide validates action by role on rec and returns the resulting transition.
// counterPrice is only read for ActionCounter.
func (p Policy) Decide(rec models.Offer, role models.Role, action Action, counterPrice int64) (Transition, error) {
	if action == ActionConfirm {
		if role != models.RoleAdmin {
			return Transition{}, apperr.ErrForbidden
		}
		if rec.Status != models.OfferAccepted {
			return Transition{}, apperr.ErrNotActionable
		}
		return Transition{Kind: models.ResponseConfirmed, From: rec.Status, To: models.OfferConfirmed}, nil
	}

	if rec.Status == models.OfferResponding {
		return Transition{}, apperr.ErrInFlight
	}
	if !IsRecipient(rec, role) {
		return Transition{}, apperr.ErrNotRecipient
	}
	if !rec.IsActionable() {
		return Transition{}, apperr.ErrNotActionable
	}

	switch action {
	case ActionAccept:
		return Transition{Kind: models.ResponseAccepted, From: rec.Status, To: models.OfferAccepted}, nil
	case ActionReject:
		return Transition{Kind: models.ResponseRejected, From: rec.Status, To: models.OfferRejected}, nil
	case ActionCounter:
		if !p.canCounter(role) {
			return Transition{}, apperr.ErrCounterNotAllowed
		}
		if counterPrice <= 0 {
			return Transition{}, apperr.ErrInvalidAmount
		}
		sender, _ := models.PartyForRole(role)
		previous := rec.OfferPrice
		return Transition{
			Kind: models.ResponseCountered,
			From: rec.Status,
			To:   models.OfferCountered,
			Spawned: &models.Offer{
				OfferPrice:   counterPrice,
				CounterPrice: &previous,
				Status:       models.OfferPending,
				Sender:       sender,
			},
		}, nil
	}
	return Transition{}, apperr.ErrInvalidResponse
}

// NewOpening builds the record for an amount submitted through the entry.
func NewOpening(sender models.Party, amount int64) (models.Offer, error) {
	if amount <= 0 {
		return models.Offer{}, apperr.ErrInvalidAmount
	}
	return models.Offer{OfferPrice: amount, Status: models.OfferPending, Sender: sender}, nil
}
