package domain

import "time"

// ContractState is the lifecycle state of a tracked contract. Transitions are
// strictly forward; Fired and Expired are terminal for signal purposes, but a
// fired contract still moves to Expired for outcome resolution.
type ContractState string

const (
	ContractDiscovered     ContractState = "discovered"
	ContractTracked        ContractState = "tracked"
	ContractStrikeCaptured ContractState = "strike_captured"
	ContractEvaluating     ContractState = "evaluating"
	ContractFired          ContractState = "fired"
	ContractExpired        ContractState = "expired"
)

// stateRank orders lifecycle states so that legal transitions always move to a
// higher rank. Expired is reachable from any prior state.
var stateRank = map[ContractState]int{
	ContractDiscovered:     0,
	ContractTracked:        1,
	ContractStrikeCaptured: 2,
	ContractEvaluating:     3,
	ContractFired:          4,
	ContractExpired:        5,
}

// CanTransition reports whether moving from one lifecycle state to another is
// a legal forward transition.
func CanTransition(from, to ContractState) bool {
	fr, ok := stateRank[from]
	if !ok {
		return false
	}
	tr, ok := stateRank[to]
	if !ok {
		return false
	}
	return tr > fr
}

// OutcomeSide identifies one of the two outcomes of a binary contract.
type OutcomeSide string

const (
	OutcomeYes OutcomeSide = "YES"
	OutcomeNo  OutcomeSide = "NO"
)

// Opposite returns the other side of a binary contract.
func (s OutcomeSide) Opposite() OutcomeSide {
	if s == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Contract is one short-lived binary prediction contract tracked by the
// coordinator from discovery to terminal state. The coordinator is the sole
// owner of the lifecycle fields; everything else is immutable once the strike
// is captured.
type Contract struct {
	ConditionID  string
	Question     string
	Asset        string    // BTC, ETH, SOL, XRP
	TokenIDs     [2]string // [yes_token, no_token]
	Outcomes     [2]string
	StartTime    *time.Time // window open, when parsable from the question
	EndTime      time.Time  // expiry
	DiscoveredAt time.Time
	Volume       float64
	Liquidity    float64

	State            ContractState
	StrikePrice      *float64
	StrikeCapturedAt *time.Time
	SignalFired      bool
}

// SecondsToExpiry returns the seconds remaining until the contract expires,
// clamped at zero.
func (c *Contract) SecondsToExpiry(now time.Time) float64 {
	d := c.EndTime.Sub(now).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// WindowOpen reports whether the contract's trading window has started. When
// the start time could not be parsed from the market question, the window is
// considered open as soon as the contract is tracked.
func (c *Contract) WindowOpen(now time.Time) bool {
	if c.StartTime == nil {
		return true
	}
	return !now.Before(*c.StartTime)
}

// YesToken and NoToken return the outcome token IDs by side.
func (c *Contract) YesToken() string { return c.TokenIDs[0] }
func (c *Contract) NoToken() string  { return c.TokenIDs[1] }

// TokenFor returns the token ID for the given side.
func (c *Contract) TokenFor(side OutcomeSide) string {
	if side == OutcomeYes {
		return c.TokenIDs[0]
	}
	return c.TokenIDs[1]
}
