package marketstate

import (
	"sync"

	"github.com/strikelab/strikebot/internal/domain"
)

// priceRing is a fixed-capacity circular buffer of price samples with one
// writer and any number of readers. The lock is scoped to this single ring so
// a slow reader of one asset never blocks the writer of another.
type priceRing struct {
	mu   sync.RWMutex
	buf  []domain.PriceSample
	head int // index of the oldest sample
	n    int
}

func newPriceRing(capacity int) *priceRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &priceRing{buf: make([]domain.PriceSample, capacity)}
}

func (r *priceRing) append(s domain.PriceSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = s
		r.n++
		return
	}
	// Full: overwrite the oldest.
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
}

func (r *priceRing) snapshot() []domain.PriceSample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PriceSample, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *priceRing) last() (domain.PriceSample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.n == 0 {
		return domain.PriceSample{}, false
	}
	return r.buf[(r.head+r.n-1)%len(r.buf)], true
}

// oddsTrail is the same structure for odds samples.
type oddsTrail struct {
	mu   sync.RWMutex
	buf  []domain.OddsSample
	head int
	n    int
}

func newOddsTrail(capacity int) *oddsTrail {
	if capacity <= 0 {
		capacity = 1
	}
	return &oddsTrail{buf: make([]domain.OddsSample, capacity)}
}

func (t *oddsTrail) append(s domain.OddsSample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n < len(t.buf) {
		t.buf[(t.head+t.n)%len(t.buf)] = s
		t.n++
		return
	}
	t.buf[t.head] = s
	t.head = (t.head + 1) % len(t.buf)
}

func (t *oddsTrail) snapshot() []domain.OddsSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.OddsSample, t.n)
	for i := 0; i < t.n; i++ {
		out[i] = t.buf[(t.head+i)%len(t.buf)]
	}
	return out
}
