package domain

import "time"

// ExecutionResult is the structured outcome of one execute() call. The
// coordinator persists it unconditionally through the outcome recorder.
type ExecutionResult struct {
	Success     bool
	OrderIDs    []string // per-side order IDs, YES then NO
	TotalCost   float64  // committed cost across both sides
	DryRun      bool
	PartialFill bool // one side filled, the other did not
	Error       string
}

// Resolution carries the fields written exactly once to a trade record after
// the contract's expiry is confirmed.
type Resolution struct {
	Outcome    OutcomeSide
	FinalPrice float64 // reference price at window close
	Payout     float64 // stake / winning ask
	NetReturn  float64 // payout - total cost
	ReturnPct  float64
	Ambiguous  bool // oracle and reference price disagreed
	ResolvedAt time.Time
}

// TradeRecord is one row per fired signal: created at fire time with empty
// resolution fields, mutated exactly once at resolution, never deleted.
type TradeRecord struct {
	ID          string // UUID
	ConditionID string
	Question    string
	Asset       string
	FiredAt     time.Time

	YesAsk        float64
	NoAsk         float64
	Side          OutcomeSide // entered (underdog) side
	AmountPerSide float64
	TotalCost     float64
	Metrics       SignalMetrics

	Success  bool
	OrderIDs []string
	Error    string
	DryRun   bool

	Resolution *Resolution // nil until the contract resolves
}

// Pending reports whether the record still awaits resolution.
func (t TradeRecord) Pending() bool { return t.Resolution == nil }

// ShadowLogEntry is written once for every contract reaching terminal state,
// traded or not. Append-only; unbounded growth is an accepted trade-off for
// offline strategy tuning.
type ShadowLogEntry struct {
	ID          string // UUID
	ConditionID string
	Question    string
	Asset       string
	ExpiredAt   time.Time

	Strike     *float64
	FinalPrice *float64
	Outcome    *OutcomeSide
	WasTraded  bool
	Ambiguous  bool

	TotalSnapshots int
	TightRatio     float64
	AvgSpread      float64
	FinalYesAsk    float64
	FinalNoAsk     float64

	Volatility          float64
	ExpectedMoveExecWin float64
	PriceCrossedStrike  bool
	MinDistanceToStrike *float64
	MaxDistanceToStrike *float64
	MomentumLastSeconds *float64
	ReversalDetected    bool
	MajorityAtExecStart *OutcomeSide
	SkipReasons         map[string]int // skip reason -> tick count
}
