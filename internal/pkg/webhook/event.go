package webhook

import "strconv"

// Kind is the normalized meaning of a provider event.
type Kind string

const (
	KindPaymentSucceeded      Kind = "payment_succeeded"
	KindPaymentFailed         Kind = "payment_failed"
	KindSubscriptionCancelled Kind = "subscription_cancelled"
	KindRefundProcessed       Kind = "refund_processed"
	KindRefundFailed          Kind = "refund_failed"
	KindIgnored               Kind = "ignored"
)

// Event is a verified provider delivery reduced to what the ledger acts on.
type Event struct {
	Provider string
	ID       string
	Type     string
	Kind     Kind

	OrderID       string
	ChargeID      string
	Reference     string
	Amount        int64
	Currency      string
	MethodClass   string
	FailureReason string
	Notes         map[string]string

	SubscriptionRef string

	RefundID        string
	RefundReference string

	Raw []byte
}

// FallbackID builds an event identity for providers that omit one: "<entityID>.<timestamp>".
func FallbackID(entityID string, timestamp int64) string {
	if entityID == "" {
		return ""
	}
	return entityID + "." + strconv.FormatInt(timestamp, 10)
}
