package billing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ManuelReschke/CreatorVault/app/models"
)

// errIllegalTransition means a caller asked for a move the tables below do not
// allow. It is a programming error, never a race: races show up as moved=false.
var errIllegalTransition = errors.New("illegal state transition")

// transitions lists the allowed next states per current state. Terminal
// states have no entry. Every status UPDATE in the repository takes its
// WHERE status IN (...) clause from one of these tables.
type transitions map[string][]string

func (t transitions) allows(from, to string) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// sources lists every state that may move to "to", sorted.
func (t transitions) sources(to string) []string {
	var out []string
	for from := range t {
		if t.allows(from, to) {
			out = append(out, from)
		}
	}
	sort.Strings(out)
	return out
}

// guard returns from unchanged when every from -> to move is allowed.
func (t transitions) guard(to string, from ...string) ([]string, error) {
	if len(from) == 0 {
		return nil, fmt.Errorf("%w: nothing may move to %s", errIllegalTransition, to)
	}
	for _, f := range from {
		if !t.allows(f, to) {
			return nil, fmt.Errorf("%w: %s -> %s", errIllegalTransition, f, to)
		}
	}
	return from, nil
}

var chargeTransitions = transitions{
	models.ChargeStatusPending:   {models.ChargeStatusCompleted, models.ChargeStatusFailed},
	models.ChargeStatusCompleted: {models.ChargeStatusRefunded},
}

var subscriptionTransitions = transitions{
	models.SubscriptionStatusPending: {models.SubscriptionStatusActive, models.SubscriptionStatusCancelled},
	models.SubscriptionStatusActive:  {models.SubscriptionStatusCancelled},
}

var payoutTransitions = transitions{
	models.PayoutStatusPending:    {models.PayoutStatusProcessing, models.PayoutStatusRejected},
	models.PayoutStatusProcessing: {models.PayoutStatusPaid, models.PayoutStatusFailed},
}

var refundTransitions = transitions{
	models.RefundStatusPending:  {models.RefundStatusApproved, models.RefundStatusRejected},
	models.RefundStatusApproved: {models.RefundStatusCompleted, models.RefundStatusPending},
}

// payoutSourceState returns the state a payout must be in to move to "to".
func payoutSourceState(to string) (string, bool) {
	from := payoutTransitions.sources(to)
	if len(from) != 1 {
		return "", false
	}
	return from[0], true
}
