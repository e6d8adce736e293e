package config

import "time"

const (
	// In-flight response lock
	DefaultInFlightTTL = 15 * time.Second
	InFlightKeyPrefix  = "offer:inflight:"

	// Pub/Sub
	ThreadChannelPrefix  = "thread:"
	ThreadChannelPattern = "thread:*"

	// Offer entry
	MaxOfferDigits = 12

	// Telegram account linking
	TelegramLinkKeyPrefix = "telegram:link:"
	TelegramLinkTTL       = 10 * time.Minute

	// Auth
	TokenTTL    = 72 * time.Hour
	TokenIssuer = "reride-negotiation"
)

// StatusLabelKeys are the localization keys of the status chip.
var StatusLabelKeys = map[string]string{
	"pending":    "status_pending",
	"accepted":   "status_accepted",
	"rejected":   "status_rejected",
	"countered":  "status_countered",
	"confirmed":  "status_confirmed",
	"responding": "status_responding",
}
