package offer

import "strings"

// Entry is the state of an amount input used for opening offers and
// counter-offers. Only digits are kept; the display is grouped.
type Entry struct {
	digits   string
	negative bool
	// Counter is set when the entry answers an existing offer.
	Counter bool
}

// NewCounterEntry returns an entry opened from the "Counter" control.
func NewCounterEntry() *Entry {
	return &Entry{Counter: true}
}

// Input replaces the entry contents with text, keeping digits only.
func (e *Entry) Input(text string) {
	e.negative = isNegative(strings.TrimSpace(text))
	e.digits = Digits(text)
}

// Value returns the stored digits.
func (e *Entry) Value() string {
	return e.digits
}

// Display returns the stored digits with Indian thousands grouping.
func (e *Entry) Display() string {
	if e.digits == "" {
		return ""
	}
	return GroupIndian(e.digits)
}

// Submit parses the stored digits and hands a positive amount to onSubmit.
// On invalid input onSubmit is not called and ErrInvalidAmount is returned.
func (e *Entry) Submit(onSubmit func(amount int64)) error {
	raw := e.digits
	if e.negative {
		raw = "-" + raw
	}
	amount, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	onSubmit(amount)
	return nil
}

// Reset clears the entry after the caller closes it.
func (e *Entry) Reset() {
	e.digits = ""
	e.negative = false
}
