package domain

import (
	"math"
	"time"
)

// PriceSample is one (timestamp, price) observation from the external price
// feed.
type PriceSample struct {
	Time  time.Time
	Price float64
}

// OddsSample is one observation of the best asks for both outcome sides of a
// contract.
type OddsSample struct {
	Time   time.Time
	YesAsk float64
	NoAsk  float64
}

// Spread is the distance of the YES ask from an even 50/50 split.
func (o OddsSample) Spread() float64 {
	return math.Abs(o.YesAsk - 0.5)
}

// PriceSnapshot is an immutable point-in-time copy of one asset's price state,
// sufficient for a single signal evaluation.
type PriceSnapshot struct {
	Asset   string
	Last    PriceSample
	History []PriceSample // time-ordered, bounded window
}

// Empty reports whether the snapshot carries no samples.
func (s PriceSnapshot) Empty() bool { return len(s.History) == 0 }

// Stale reports whether the latest sample is older than maxAge at the given
// reference time. An empty snapshot is always stale.
func (s PriceSnapshot) Stale(now time.Time, maxAge time.Duration) bool {
	if s.Empty() {
		return true
	}
	return now.Sub(s.Last.Time) > maxAge
}

// At returns the sample closest to and not after t, for reference-price
// resolution at expiry. ok is false when no sample precedes t.
func (s PriceSnapshot) At(t time.Time) (PriceSample, bool) {
	var best PriceSample
	found := false
	for _, p := range s.History {
		if p.Time.After(t) {
			break
		}
		best = p
		found = true
	}
	return best, found
}

// Window returns the samples with timestamps in [from, to].
func (s PriceSnapshot) Window(from, to time.Time) []PriceSample {
	out := make([]PriceSample, 0, len(s.History))
	for _, p := range s.History {
		if p.Time.Before(from) || p.Time.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// OddsSnapshot is an immutable point-in-time copy of a contract's odds trail.
type OddsSnapshot struct {
	ConditionID string
	Samples     []OddsSample // time-ordered, bounded
}

// Empty reports whether the trail carries no samples.
func (s OddsSnapshot) Empty() bool { return len(s.Samples) == 0 }

// Latest returns the most recent sample. ok is false for an empty trail.
func (s OddsSnapshot) Latest() (OddsSample, bool) {
	if len(s.Samples) == 0 {
		return OddsSample{}, false
	}
	return s.Samples[len(s.Samples)-1], true
}

// TightRatio is the fraction of samples whose spread stayed within threshold
// of an even split, i.e. how long the market failed to pick a favorite.
func (s OddsSnapshot) TightRatio(threshold float64) float64 {
	if len(s.Samples) == 0 {
		return 0
	}
	tight := 0
	for _, o := range s.Samples {
		if o.Spread() <= threshold {
			tight++
		}
	}
	return float64(tight) / float64(len(s.Samples))
}

// AvgSpread is the mean spread over the trail; 1.0 for an empty trail so that
// empty data reads as maximally decisive-unknown.
func (s OddsSnapshot) AvgSpread() float64 {
	if len(s.Samples) == 0 {
		return 1.0
	}
	var sum float64
	for _, o := range s.Samples {
		sum += o.Spread()
	}
	return sum / float64(len(s.Samples))
}

// Since returns the samples with timestamps at or after t.
func (s OddsSnapshot) Since(t time.Time) []OddsSample {
	out := make([]OddsSample, 0, len(s.Samples))
	for _, o := range s.Samples {
		if o.Time.Before(t) {
			continue
		}
		out = append(out, o)
	}
	return out
}
