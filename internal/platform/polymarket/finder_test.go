package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strikelab/strikebot/internal/domain"
)

var discoveryNow = time.Date(2025, 6, 15, 18, 10, 0, 0, time.UTC)

func allowedAssets() map[string]bool {
	return map[string]bool{"BTC": true, "ETH": true, "SOL": true, "XRP": true}
}

func candidateMarket() APIMarket {
	return APIMarket{
		ID:           "512345",
		ConditionID:  "0xc0ffee",
		Question:     "Bitcoin Up or Down - June 15, 2:15PM-2:30PM ET",
		Active:       true,
		Closed:       false,
		Outcomes:     `["Up","Down"]`,
		ClobTokenIDs: `["111","222"]`,
		Volume:       1234.5,
		Liquidity:    500,
		EndDate:      discoveryNow.Add(15 * time.Minute).Format(time.RFC3339),
	}
}

func TestExtractAsset(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"Bitcoin Up or Down - 2:15PM-2:30PM", "BTC"},
		{"Will BTC close higher?", "BTC"},
		{"Ethereum Up or Down - 2:15PM-2:30PM", "ETH"},
		{"solana price window", "SOL"},
		{"XRP Up or Down", "XRP"},
		{"Dogecoin Up or Down", ""},
		{"Subtlety: ETHEREAL markets", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractAsset(tt.question), tt.question)
	}
}

func TestParseContractHappyPath(t *testing.T) {
	m := candidateMarket()
	c := parseContract(&m, allowedAssets(), discoveryNow)
	require.NotNil(t, c)

	assert.Equal(t, "0xc0ffee", c.ConditionID)
	assert.Equal(t, "BTC", c.Asset)
	assert.Equal(t, [2]string{"111", "222"}, c.TokenIDs)
	assert.Equal(t, [2]string{"Up", "Down"}, c.Outcomes)
	assert.Equal(t, 1234.5, c.Volume)
	assert.Equal(t, domain.ContractDiscovered, c.State)
	require.NotNil(t, c.StartTime)
	// 2:15PM ET on June 15 is 18:15 UTC during daylight saving.
	assert.Equal(t, time.Date(2025, 6, 15, 18, 15, 0, 0, time.UTC), c.StartTime.UTC())
}

func TestParseContractRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*APIMarket)
	}{
		{"wrong asset", func(m *APIMarket) { m.Question = "Dogecoin Up or Down - 2:15PM-2:30PM" }},
		{"no window in question", func(m *APIMarket) { m.Question = "Bitcoin above 100k on June 30?" }},
		{"malformed token ids", func(m *APIMarket) { m.ClobTokenIDs = `["only-one"]` }},
		{"token ids not json", func(m *APIMarket) { m.ClobTokenIDs = "garbage" }},
		{"missing end date", func(m *APIMarket) { m.EndDate = "" }},
		{"expires too soon", func(m *APIMarket) {
			m.EndDate = discoveryNow.Add(30 * time.Second).Format(time.RFC3339)
		}},
		{"expires too far out", func(m *APIMarket) {
			m.EndDate = discoveryNow.Add(30 * time.Minute).Format(time.RFC3339)
		}},
		{"closed", func(m *APIMarket) { m.Closed = true }},
		{"inactive", func(m *APIMarket) { m.Active = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := candidateMarket()
			tt.mutate(&m)
			assert.Nil(t, parseContract(&m, allowedAssets(), discoveryNow))
		})
	}
}

func TestParseContractFallsBackToEndDateISO(t *testing.T) {
	m := candidateMarket()
	m.EndDate = ""
	m.EndDateISO = discoveryNow.Add(10 * time.Minute).Format(time.RFC3339)
	c := parseContract(&m, allowedAssets(), discoveryNow)
	require.NotNil(t, c)
	assert.Equal(t, discoveryNow.Add(10*time.Minute), c.EndTime)
}

func TestParseWindowStartHandlesSpacedClock(t *testing.T) {
	end := time.Date(2025, 6, 15, 18, 30, 0, 0, time.UTC)
	start := parseWindowStart("Ethereum Up or Down - 2:15 PM - 2:30 PM ET", end)
	require.NotNil(t, start)
	assert.Equal(t, time.Date(2025, 6, 15, 18, 15, 0, 0, time.UTC), start.UTC())
}

func TestParseWindowStartCrossesMidnight(t *testing.T) {
	// Window ends 12:00AM ET June 16, i.e. 04:00 UTC. The 11:45PM start
	// belongs to June 15, not to the end date's ET day.
	end := time.Date(2025, 6, 16, 4, 0, 0, 0, time.UTC)
	start := parseWindowStart("Bitcoin Up or Down - 11:45PM-12:00AM ET", end)
	require.NotNil(t, start)
	assert.Equal(t, time.Date(2025, 6, 16, 3, 45, 0, 0, time.UTC), start.UTC())
	assert.True(t, start.Before(end))
}

func TestParseWindowStartNilWithoutWindow(t *testing.T) {
	end := time.Date(2025, 6, 15, 18, 30, 0, 0, time.UTC)
	assert.Nil(t, parseWindowStart("Bitcoin above 100k?", end))
}

func TestFlexFieldsDecode(t *testing.T) {
	var m APIMarket
	raw := `{
		"id": "1",
		"question": "q",
		"active": "true",
		"volume": "123.45",
		"liquidity": 9.5
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.True(t, bool(m.Active))
	assert.Equal(t, 123.45, float64(m.Volume))
	assert.Equal(t, 9.5, float64(m.Liquidity))
}

func TestWinnerIndex(t *testing.T) {
	m := APIMarket{OutcomePrices: `["1","0"]`}
	idx, ok := m.WinnerIndex()
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	m.OutcomePrices = `["0","1"]`
	idx, ok = m.WinnerIndex()
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	m.OutcomePrices = `["0.55","0.45"]`
	_, ok = m.WinnerIndex()
	assert.False(t, ok, "fractional prices mean unresolved")

	m.OutcomePrices = ""
	_, ok = m.WinnerIndex()
	assert.False(t, ok)
}

func TestBookBestAsk(t *testing.T) {
	book := APIBook{
		Asks: []APIPriceLevel{{Price: "0.15", Size: "100"}, {Price: "0.12", Size: "40"}, {Price: "bad", Size: "1"}},
	}
	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 0.12, ask)

	empty := APIBook{}
	_, ok = empty.BestAsk()
	assert.False(t, ok)
}
