package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy is the global block/unblock configuration for one evaluation.
type Policy struct {
	TraccarEnabled   bool
	AutoBlockEnabled bool
	UnblockOnPayment bool
	BlockAfterCount  int
	Whitelist        map[string]struct{}
}

func (p Policy) Whitelisted(ids ...string) bool {
	for _, id := range ids {
		if _, ok := p.Whitelist[id]; ok && id != "" {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionNone    Action = "none"
	ActionBlock   Action = "block"
	ActionUnblock Action = "unblock"
)

type DecisionInput struct {
	State           AccessState
	ClientAutoBlock bool
	Whitelisted     bool
	OverdueCount    int
	OverdueTotal    decimal.Decimal
	Policy          Policy
}

// Decision is the outcome of the block table. Warn marks a pre-block warning
// candidate; the 24h window is checked by the notifier.
type Decision struct {
	Action Action
	Warn   bool
	Reason string
}

// Decide applies the block/unblock table. The whitelist only prevents
// blocking; it never prevents an unblock.
func Decide(in DecisionInput) Decision {
	threshold := in.Policy.BlockAfterCount
	if threshold < 1 {
		threshold = 1
	}

	switch in.State.(type) {
	case MappedBlocked:
		if in.Policy.UnblockOnPayment && in.OverdueCount == 0 {
			return Decision{Action: ActionUnblock, Reason: "no overdue payments"}
		}
		return Decision{Action: ActionNone}
	case MappedUnblocked:
		eligible := in.ClientAutoBlock && in.Policy.AutoBlockEnabled && !in.Whitelisted
		if !eligible {
			return Decision{Action: ActionNone}
		}
		if in.OverdueCount >= threshold {
			return Decision{
				Action: ActionBlock,
				Reason: BlockReason(in.OverdueCount, in.OverdueTotal),
			}
		}
		// A threshold of 1 has no "one below" level worth warning about.
		if threshold >= 2 && in.OverdueCount >= threshold-1 {
			return Decision{Action: ActionNone, Warn: true}
		}
		return Decision{Action: ActionNone}
	}
	return Decision{Action: ActionNone}
}

func BlockReason(count int, total decimal.Decimal) string {
	return fmt.Sprintf("automatic block: %d overdue payment(s) totalling %s", count, total.StringFixed(2))
}
