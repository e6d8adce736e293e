package models

import "errors"

// OfferStatus is the lifecycle tag of an offer record.
type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferRejected  OfferStatus = "rejected"
	OfferCountered OfferStatus = "countered"
	OfferConfirmed OfferStatus = "confirmed"
	// OfferResponding marks a pending record whose response is being
	// persisted. It is never written to the database.
	OfferResponding OfferStatus = "responding"
)

// IsTerminal reports whether no further action may be taken on the record.
func (s OfferStatus) IsTerminal() bool {
	switch s {
	case OfferAccepted, OfferRejected, OfferConfirmed:
		return true
	}
	return false
}

// Party is the side of the deal that originated an offer record.
type Party string

const (
	PartyBuyer  Party = "user"
	PartySeller Party = "seller"
)

// PartyForRole maps a thread role to the party tag written on records.
func PartyForRole(r Role) (Party, bool) {
	switch r {
	case RoleCustomer:
		return PartyBuyer, true
	case RoleSeller:
		return PartySeller, true
	}
	return "", false
}

// ResponseKind is what a recipient (or an operator) answers to an offer.
type ResponseKind string

const (
	ResponseAccepted  ResponseKind = "accepted"
	ResponseRejected  ResponseKind = "rejected"
	ResponseCountered ResponseKind = "countered"
	ResponseConfirmed ResponseKind = "confirmed"
)

// Result returns the status a record ends up in after the response.
func (k ResponseKind) Result() (OfferStatus, bool) {
	switch k {
	case ResponseAccepted:
		return OfferAccepted, true
	case ResponseRejected:
		return OfferRejected, true
	case ResponseCountered:
		return OfferCountered, true
	case ResponseConfirmed:
		return OfferConfirmed, true
	}
	return "", false
}

var (
	errNotPending    = errors.New("offer is not pending")
	errNotResponding = errors.New("offer has no response in flight")
)

// Offer is the price proposal carried by an offer chat message.
type Offer struct {
	// OfferPrice is the amount currently on the table.
	OfferPrice int64 `gorm:"column:offer_price" json:"offerPrice"`
	// CounterPrice is the amount this record superseded, if it is a counter.
	CounterPrice *int64 `gorm:"column:counter_price" json:"counterPrice,omitempty"`
	// CounterOfID points at the message this record countered.
	CounterOfID *uint       `gorm:"column:counter_of_id;index" json:"counterOfId,omitempty"`
	Status      OfferStatus `gorm:"column:offer_status;type:text;index" json:"status"`
	Sender      Party       `gorm:"column:offer_sender;type:text" json:"sender"`

	// Responding holds the response kind while Status is OfferResponding.
	Responding *ResponseKind `gorm:"-" json:"responding,omitempty"`
}

// BeginResponse moves a pending record into the in-flight variant.
func (o *Offer) BeginResponse(kind ResponseKind) error {
	if !o.IsActionable() {
		return errNotPending
	}
	k := kind
	o.Status = OfferResponding
	o.Responding = &k
	return nil
}

// Settle completes an in-flight response with the committed status.
func (o *Offer) Settle(status OfferStatus) error {
	if o.Status != OfferResponding {
		return errNotResponding
	}
	o.Status = status
	o.Responding = nil
	return nil
}

// Abort puts an in-flight record back to pending after a failed dispatch.
func (o *Offer) Abort() {
	if o.Status == OfferResponding {
		o.Status = OfferPending
		o.Responding = nil
	}
}

// IsActionable reports whether a recipient may still answer the record.
func (o *Offer) IsActionable() bool {
	return o.Status == OfferPending
}
