package polymarket

import (
	"regexp"
	"strings"
	"time"

	"github.com/strikelab/strikebot/internal/domain"
)

// assetPatterns maps question text to canonical asset symbols.
var assetPatterns = []struct {
	asset string
	re    *regexp.Regexp
}{
	{"BTC", regexp.MustCompile(`(?i)\b(BTC|Bitcoin)\b`)},
	{"ETH", regexp.MustCompile(`(?i)\b(ETH|Ethereum)\b`)},
	{"SOL", regexp.MustCompile(`(?i)\b(SOL|Solana)\b`)},
	{"XRP", regexp.MustCompile(`(?i)\bXRP\b`)},
}

// windowPattern matches 15-minute window markets ("11:15AM-11:30AM" style).
// Group 1 is the window start time, group 2 the end time.
var windowPattern = regexp.MustCompile(`(?i)(\d{1,2}:\d{2}\s*[AP]M)\s*-\s*(\d{1,2}:\d{2}\s*[AP]M)`)

// Candidate bounds on time-to-expiry at discovery.
const (
	minSecondsToExpiry = 60
	maxSecondsToExpiry = 1200
)

// extractAsset returns the canonical asset symbol mentioned in the question,
// or "" when no tracked asset matches.
func extractAsset(question string) string {
	for _, p := range assetPatterns {
		if p.re.MatchString(question) {
			return p.asset
		}
	}
	return ""
}

// parseContract converts a Gamma market row into a tracked contract when it
// is an up/down window market on an allowed asset expiring 1-20 minutes out.
// nil means the row is not a candidate; malformed fields disqualify rather
// than error so one bad row never aborts a discovery page.
func parseContract(m *APIMarket, allowed map[string]bool, now time.Time) *domain.Contract {
	asset := extractAsset(m.Question)
	if asset == "" || !allowed[asset] {
		return nil
	}
	if !windowPattern.MatchString(m.Question) {
		return nil
	}

	tokens, ok := m.TokenIDs()
	if !ok {
		return nil
	}

	endRaw := m.EndDate
	if endRaw == "" {
		endRaw = m.EndDateISO
	}
	if endRaw == "" {
		return nil
	}
	endTime, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return nil
	}
	untilEnd := endTime.Sub(now).Seconds()
	if untilEnd < minSecondsToExpiry || untilEnd > maxSecondsToExpiry {
		return nil
	}
	if m.Closed || !bool(m.Active) {
		return nil
	}

	conditionID := m.ConditionID
	if conditionID == "" {
		conditionID = m.ID
	}

	return &domain.Contract{
		ConditionID:  conditionID,
		Question:     m.Question,
		Asset:        asset,
		TokenIDs:     tokens,
		Outcomes:     m.OutcomeNames(),
		StartTime:    parseWindowStart(m.Question, endTime),
		EndTime:      endTime.UTC(),
		DiscoveredAt: now,
		Volume:       float64(m.Volume),
		Liquidity:    float64(m.Liquidity),
		State:        domain.ContractDiscovered,
	}
}

// parseWindowStart extracts the window start from question text like
// "2:00PM-2:15PM". The clock time is read in US Eastern on the end date's
// day, then converted to UTC. nil when the question or the zone database
// gives nothing usable; the window then counts as open from tracking.
func parseWindowStart(question string, endTime time.Time) *time.Time {
	match := windowPattern.FindStringSubmatch(question)
	if match == nil {
		return nil
	}
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil
	}
	clock, err := parseClock(match[1])
	if err != nil {
		return nil
	}
	endET := endTime.In(et)
	start := time.Date(endET.Year(), endET.Month(), endET.Day(), clock.Hour(), clock.Minute(), 0, 0, et)
	// An "11:45PM-12:00AM" window ends on the next ET day; the start clock
	// read on the end date would land after the end.
	if start.After(endTime) {
		start = start.AddDate(0, 0, -1)
	}
	startUTC := start.UTC()
	return &startUTC
}

// parseClock parses "2:00PM", "2:00 pm" and similar clock times.
func parseClock(s string) (time.Time, error) {
	s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	return time.Parse("3:04PM", s)
}
