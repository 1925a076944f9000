package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string. Gamma sends
// volume and liquidity as strings on some endpoints and numbers on others.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is a market row from the Gamma API. ClobTokenIDs and
// OutcomePrices arrive as JSON-encoded strings nested inside the JSON
// response and need a second decode pass.
type APIMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	ConditionID   string    `json:"conditionId"`
	Slug          string    `json:"slug"`
	Active        flexBool  `json:"active"`
	Closed        bool      `json:"closed"`
	Outcomes      string    `json:"outcomes"`      // e.g. "[\"Up\",\"Down\"]"
	OutcomePrices string    `json:"outcomePrices"` // e.g. "[\"1\",\"0\"]" once resolved
	ClobTokenIDs  string    `json:"clobTokenIds"`  // e.g. "[\"123\",\"456\"]"
	Volume        flexFloat `json:"volume"`
	Liquidity     flexFloat `json:"liquidity"`
	EndDate       string    `json:"endDate"`
	EndDateISO    string    `json:"end_date_iso"`
}

// TokenIDs decodes the nested clobTokenIds list. ok is false unless exactly
// two IDs are present.
func (m *APIMarket) TokenIDs() (ids [2]string, ok bool) {
	var list []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &list); err != nil {
		return ids, false
	}
	if len(list) != 2 {
		return ids, false
	}
	ids[0], ids[1] = list[0], list[1]
	return ids, true
}

// OutcomeNames decodes the nested outcomes list, defaulting to Up/Down when
// absent or malformed.
func (m *APIMarket) OutcomeNames() [2]string {
	names := [2]string{"Up", "Down"}
	var list []string
	if err := json.Unmarshal([]byte(m.Outcomes), &list); err != nil {
		return names
	}
	for i := 0; i < 2 && i < len(list); i++ {
		if list[i] != "" {
			names[i] = list[i]
		}
	}
	return names
}

// WinnerIndex decodes outcomePrices and returns the index of the winning
// outcome once the market has settled to a 1/0 split. ok is false while
// prices are absent or still fractional.
func (m *APIMarket) WinnerIndex() (int, bool) {
	var list []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &list); err != nil {
		return 0, false
	}
	for i, raw := range list {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, false
		}
		if p >= 0.99 {
			return i, true
		}
	}
	return 0, false
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// APIBook is the orderbook snapshot returned by GET /book and delivered on
// the WebSocket "book" channel.
type APIBook struct {
	AssetID   string          `json:"asset_id"`
	Market    string          `json:"market"`
	Bids      []APIPriceLevel `json:"bids"`
	Asks      []APIPriceLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
	Hash      string          `json:"hash"`
}

// APIPriceLevel is a single bid/ask level with decimal-string fields.
type APIPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BestAsk returns the lowest ask in the book. ok is false for an empty or
// unparseable ask side.
func (b *APIBook) BestAsk() (float64, bool) {
	best := 0.0
	for _, lvl := range b.Asks {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil || p <= 0 {
			continue
		}
		if best == 0 || p < best {
			best = p
		}
	}
	return best, best > 0
}

// --------------------------------------------------------------------------
// WebSocket subscription commands
// --------------------------------------------------------------------------

// wsCommand is the JSON payload sent to the market channel WebSocket to
// subscribe or unsubscribe token IDs.
type wsCommand struct {
	Type   string   `json:"type"` // "subscribe" or "unsubscribe"
	Assets []string `json:"assets_ids,omitempty"`
}
