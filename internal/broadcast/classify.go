package broadcast

import (
	"strings"

	"vidbot/internal/transport"
)

// Delivery is the per-recipient outcome of one send attempt.
type Delivery int

const (
	DeliverySent Delivery = iota
	// DeliveryBlocked means the recipient can no longer be reached at all:
	// they blocked the bot, deactivated their account, or the chat is gone.
	DeliveryBlocked
	// DeliveryFailed is any other failure; the user stays active and the
	// message is simply not delivered (no retry).
	DeliveryFailed
)

// blockedMarkers are matched against the platform's failure description.
// This is a placeholder policy inherited from the platform's message
// wording; keep Classify the single place that encodes it.
var blockedMarkers = []string{"blocked", "deactivated", "not found"}

// Classify maps a delivery error to an outcome.
func Classify(err error) Delivery {
	if err == nil {
		return DeliverySent
	}
	reason := strings.ToLower(transport.ReasonOf(err))
	for _, marker := range blockedMarkers {
		if strings.Contains(reason, marker) {
			return DeliveryBlocked
		}
	}
	return DeliveryFailed
}
