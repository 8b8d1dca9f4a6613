package billing

import (
	"fmt"
	"strconv"
)

// Metadata keys attached to the external subscription object. All durable
// subscription state lives in this map; there is no local datastore.
const (
	MetaPlan          = "plan"
	MetaWeeksUsed     = "promotional_weeks_used"
	MetaWeeksTotal    = "promotional_weeks_total"
	MetaRegularAmount = "regular_price_amount"
	MetaLastInvoice   = "last_invoice"
	MetaCustomerEmail = "customer_email"
	MetaCustomerName  = "customer_name"
)

// Phase is the promotional lifecycle phase of a subscription.
type Phase int

const (
	// PhasePromotional means promotional counters are present and
	// WeeksUsed < WeeksTotal.
	PhasePromotional Phase = iota

	// PhaseRegular means the subscription is on the regular price tier.
	// Terminal with respect to promotional pricing; it never reverts.
	PhaseRegular

	// PhaseCancelled means the subscription was deleted. Terminal.
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhasePromotional:
		return "promotional"
	case PhaseRegular:
		return "regular"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// State is the explicit, tagged form of the subscription state that the
// platform stores as free-form metadata. Decoding failures are a
// data-integrity error, never a silent default.
type State struct {
	Phase Phase

	// Promotional counters. Meaningful only while Phase == PhasePromotional.
	WeeksUsed  int
	WeeksTotal int

	// RegularAmount is the regular-tier price in minor units, recorded at
	// checkout for the eventual price switch.
	RegularAmount int64

	// Plan is the plan identifier, preserved across the promo transition.
	Plan string

	// LastInvoice is the identifier of the last invoice that advanced the
	// counter. Re-delivery of the same invoice must not advance it again.
	LastInvoice string
}

// FinalCycle reports whether the next successful payment will exhaust the
// promotional window.
func (s State) FinalCycle() bool {
	return s.Phase == PhasePromotional && s.WeeksUsed == s.WeeksTotal-1
}

// Effect names the side effect that must be applied to the external
// subscription after a transition.
type Effect int

const (
	// EffectNone means the event changed nothing.
	EffectNone Effect = iota

	// EffectPersistCounter means the incremented counter (and dedup key)
	// must be written back to subscription metadata.
	EffectPersistCounter

	// EffectSwitchToRegular means the subscription's price must be replaced
	// with the regular tier and the promotional metadata cleared.
	EffectSwitchToRegular
)

// DecodeState decodes a subscription's metadata map (and platform status)
// into an explicit State.
//
// Absent counters mean the subscription is on the regular tier. Counters that
// are present but malformed, or that violate 0 <= used <= total, are reported
// as ErrMetadataCorrupt.
func DecodeState(metadata map[string]string, cancelled bool) (State, error) {
	s := State{
		Plan:        metadata[MetaPlan],
		LastInvoice: metadata[MetaLastInvoice],
	}

	if cancelled {
		s.Phase = PhaseCancelled
		return s, nil
	}

	usedRaw, hasUsed := lookup(metadata, MetaWeeksUsed)
	totalRaw, hasTotal := lookup(metadata, MetaWeeksTotal)
	if !hasUsed && !hasTotal {
		s.Phase = PhaseRegular
		return s, nil
	}
	if hasUsed != hasTotal {
		return State{}, fmt.Errorf("%w: counter keys incomplete", ErrMetadataCorrupt)
	}

	used, err := strconv.Atoi(usedRaw)
	if err != nil {
		return State{}, fmt.Errorf("%w: %s=%q", ErrMetadataCorrupt, MetaWeeksUsed, usedRaw)
	}
	total, err := strconv.Atoi(totalRaw)
	if err != nil {
		return State{}, fmt.Errorf("%w: %s=%q", ErrMetadataCorrupt, MetaWeeksTotal, totalRaw)
	}
	if used < 0 || total <= 0 || used > total {
		return State{}, fmt.Errorf("%w: counters %d/%d out of range", ErrMetadataCorrupt, used, total)
	}

	if amountRaw, ok := lookup(metadata, MetaRegularAmount); ok {
		amount, err := strconv.ParseInt(amountRaw, 10, 64)
		if err != nil || amount <= 0 {
			return State{}, fmt.Errorf("%w: %s=%q", ErrMetadataCorrupt, MetaRegularAmount, amountRaw)
		}
		s.RegularAmount = amount
	}

	s.WeeksUsed = used
	s.WeeksTotal = total
	if used >= total {
		// Counters should have been cleared at the switch; treat a fully
		// consumed window as regular so the tier never reverts.
		s.Phase = PhaseRegular
		return s, nil
	}
	s.Phase = PhasePromotional
	return s, nil
}

// Apply is the pure transition function of the promotional state machine:
// (current state, event) -> (next state, side effect to run). It performs no
// I/O, which keeps the transition testable without a live platform.
func Apply(s State, ev Event) (State, Effect) {
	if s.Phase != PhasePromotional {
		return s, EffectNone
	}
	if ev.Type != EventPaymentSucceeded {
		if ev.Type == EventSubscriptionDeleted {
			s.Phase = PhaseCancelled
		}
		return s, EffectNone
	}
	if ev.InvoiceID != "" && ev.InvoiceID == s.LastInvoice {
		// Duplicate delivery of an already-counted invoice.
		return s, EffectNone
	}

	s.WeeksUsed++
	if s.WeeksUsed > s.WeeksTotal {
		s.WeeksUsed = s.WeeksTotal
	}
	s.LastInvoice = ev.InvoiceID

	if s.WeeksUsed >= s.WeeksTotal {
		s.Phase = PhaseRegular
		return s, EffectSwitchToRegular
	}
	return s, EffectPersistCounter
}

// EncodeMetadata renders the state back into the metadata mutation to send to
// the platform. Setting a key to the empty string deletes it server-side, so
// the regular phase clears the promotional keys while preserving the plan.
func EncodeMetadata(s State) map[string]string {
	if s.Phase == PhaseRegular {
		return map[string]string{
			MetaWeeksUsed:     "",
			MetaWeeksTotal:    "",
			MetaRegularAmount: "",
			MetaLastInvoice:   "",
		}
	}
	return map[string]string{
		MetaWeeksUsed:   strconv.Itoa(s.WeeksUsed),
		MetaLastInvoice: s.LastInvoice,
	}
}

// lookup treats an empty value the same as an absent key. The platform
// deletes metadata keys set to "", but a draft mutation may leave them empty.
func lookup(metadata map[string]string, key string) (string, bool) {
	v, ok := metadata[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
