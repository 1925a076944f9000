package signal

import (
	"math"
	"time"

	"github.com/strikelab/strikebot/internal/domain"
)

// Minimum data requirements for a volatility estimate. Below these the
// estimate is meaningless and the caller must treat volatility as unavailable.
const (
	minVolSamples = 10
	minVolReturns = 5
)

// Volatility computes the population standard deviation of log-returns over
// samples within the window ending at now. ok is false when there is not
// enough data for a usable estimate.
func Volatility(history []domain.PriceSample, now time.Time, window time.Duration) (float64, bool) {
	cutoff := now.Add(-window)
	points := make([]domain.PriceSample, 0, len(history))
	for _, p := range history {
		if p.Time.Before(cutoff) {
			continue
		}
		points = append(points, p)
	}
	if len(points) < minVolSamples {
		return 0, false
	}

	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Price
		if prev <= 0 {
			continue
		}
		returns = append(returns, math.Log(points[i].Price/prev))
	}
	if len(returns) < minVolReturns {
		return 0, false
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance), true
}

// ExpectedMove is the expected absolute price move over the remaining
// seconds: per-second volatility scaled by price and the square root of time.
func ExpectedMove(volatility, price, secondsRemaining float64) float64 {
	if price <= 0 || secondsRemaining <= 0 {
		return 0
	}
	return volatility * price * math.Sqrt(secondsRemaining)
}

// Momentum is the average price change per second over the samples inside the
// horizon ending at now. Returns 0 when fewer than two samples span a
// positive interval.
func Momentum(history []domain.PriceSample, now time.Time, horizon time.Duration) float64 {
	cutoff := now.Add(-horizon)
	var first, last *domain.PriceSample
	for i := range history {
		p := &history[i]
		if p.Time.Before(cutoff) {
			continue
		}
		if first == nil {
			first = p
		}
		last = p
	}
	if first == nil || last == nil {
		return 0
	}
	dt := last.Time.Sub(first.Time).Seconds()
	if dt <= 0 {
		return 0
	}
	return (last.Price - first.Price) / dt
}

// CrossedStrike reports whether the price crossed the strike at any point in
// the sample run.
func CrossedStrike(history []domain.PriceSample, strike float64) bool {
	var prevAbove, seen bool
	for _, p := range history {
		above := p.Price > strike
		if seen && above != prevAbove {
			return true
		}
		prevAbove = above
		seen = true
	}
	return false
}

// DistanceBounds returns the minimum and maximum absolute distance to the
// strike over the samples. ok is false for an empty run.
func DistanceBounds(history []domain.PriceSample, strike float64) (min, max float64, ok bool) {
	for _, p := range history {
		d := math.Abs(p.Price - strike)
		if !ok {
			min, max, ok = d, d, true
			continue
		}
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max, ok
}
