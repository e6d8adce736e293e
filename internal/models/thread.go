package models

import "time"

// Thread is a negotiation chat between one buyer and the seller of a listing.
type Thread struct {
	// ThreadID is the unique identifier for the thread (UUID).
	ThreadID  string    `gorm:"primaryKey" json:"thread_id"`
	ListingID string    `gorm:"type:text;not null;index" json:"listing_id"`
	BuyerID   string    `gorm:"type:text;not null;index" json:"buyer_id"`
	SellerID  string    `gorm:"type:text;not null;index" json:"seller_id"`
	IsActive  bool      `json:"is_active"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// HasParticipant reports whether userID is the buyer or the seller of the thread.
func (t *Thread) HasParticipant(userID string) bool {
	return userID != "" && (userID == t.BuyerID || userID == t.SellerID)
}

// RoleOf returns the role userID plays inside this thread. Account roles do
// not matter here: a dealer buying a car is the customer of that thread.
func (t *Thread) RoleOf(userID string) (Role, bool) {
	switch userID {
	case "":
		return "", false
	case t.SellerID:
		return RoleSeller, true
	case t.BuyerID:
		return RoleCustomer, true
	}
	return "", false
}

// RecipientID returns the participant expected to answer an offer sent by party.
func (t *Thread) RecipientID(party Party) string {
	if party == PartySeller {
		return t.BuyerID
	}
	return t.SellerID
}

// PartyOf maps a participant to the sender tag stored on offer records.
func (t *Thread) PartyOf(userID string) (Party, bool) {
	role, ok := t.RoleOf(userID)
	if !ok {
		return "", false
	}
	return PartyForRole(role)
}
