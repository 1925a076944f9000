package marketstate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceRingEvictsFIFO(t *testing.T) {
	s := NewStore(3, 3, []string{"BTC"})
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.RecordPrice("BTC", base.Add(time.Duration(i)*time.Second), 100000+float64(i))
	}

	snap := s.PriceSnapshot("BTC")
	require.Len(t, snap.History, 3)
	assert.Equal(t, 100002.0, snap.History[0].Price)
	assert.Equal(t, 100004.0, snap.History[2].Price)
	assert.Equal(t, 100004.0, snap.Last.Price)
}

func TestUnknownAssetIgnored(t *testing.T) {
	s := NewStore(4, 4, []string{"BTC"})
	s.RecordPrice("DOGE", time.Now(), 0.1)

	snap := s.PriceSnapshot("DOGE")
	assert.True(t, snap.Empty())
	_, ok := s.LatestPrice("DOGE")
	assert.False(t, ok)
}

func TestOddsTrailPerContract(t *testing.T) {
	s := NewStore(4, 2, []string{"BTC"})
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	// Unregistered contract: writes are dropped.
	s.RecordOdds("cond-1", base, 0.5, 0.5)
	assert.True(t, s.OddsSnapshot("cond-1").Empty())

	s.TrackContract("cond-1")
	s.RecordOdds("cond-1", base, 0.48, 0.54)
	s.RecordOdds("cond-1", base.Add(time.Second), 0.40, 0.62)
	s.RecordOdds("cond-1", base.Add(2*time.Second), 0.35, 0.67)

	snap := s.OddsSnapshot("cond-1")
	require.Len(t, snap.Samples, 2)
	assert.Equal(t, 0.40, snap.Samples[0].YesAsk)
	latest, ok := snap.Latest()
	require.True(t, ok)
	assert.Equal(t, 0.35, latest.YesAsk)

	s.DropContract("cond-1")
	assert.True(t, s.OddsSnapshot("cond-1").Empty())
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewStore(4, 4, []string{"ETH"})
	now := time.Now()
	s.RecordPrice("ETH", now, 3000)

	snap := s.PriceSnapshot("ETH")
	snap.History[0].Price = -1

	again := s.PriceSnapshot("ETH")
	assert.Equal(t, 3000.0, again.History[0].Price)
}

// One writer per key concurrent with many readers must never tear a sample:
// every observed sample is one the writer actually produced.
func TestConcurrentReadersSeeConsistentSamples(t *testing.T) {
	s := NewStore(64, 64, []string{"BTC"})
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			// Price mirrors the second offset so readers can validate pairs.
			s.RecordPrice("BTC", base.Add(time.Duration(i)*time.Second), float64(i))
		}
		close(done)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				snap := s.PriceSnapshot("BTC")
				for _, p := range snap.History {
					sec := p.Time.Sub(base) / time.Second
					if float64(sec) != p.Price {
						t.Errorf("torn sample: time offset %d, price %f", sec, p.Price)
						return
					}
				}
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}
	wg.Wait()
}

func TestPriceSnapshotAtAndWindow(t *testing.T) {
	s := NewStore(16, 16, []string{"SOL"})
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		s.RecordPrice("SOL", base.Add(time.Duration(i)*time.Second), 200+float64(i))
	}

	snap := s.PriceSnapshot("SOL")

	at, ok := snap.At(base.Add(4500 * time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, 204.0, at.Price)

	_, ok = snap.At(base.Add(-time.Second))
	assert.False(t, ok)

	win := snap.Window(base.Add(2*time.Second), base.Add(5*time.Second))
	require.Len(t, win, 4)
	assert.Equal(t, 202.0, win[0].Price)
}
