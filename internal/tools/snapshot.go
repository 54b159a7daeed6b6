package tools

import "strings"

// Snapshot is the market data the frontend already holds for the active
// ticker, sent along with each chat request. It is the first cache layer:
// when the snapshot covers a tool call, no server or provider round trip
// happens at all.
//
// The payload mirrors the frontend's dashboard state. Quote and company data
// live nested under "overview"; the remaining sections are top level.
type Snapshot struct {
	ticker string
	data   map[string]any
}

// NewSnapshot binds a frontend context payload to its ticker. A nil or empty
// payload yields a snapshot that covers nothing.
func NewSnapshot(ticker string, data map[string]any) *Snapshot {
	return &Snapshot{
		ticker: strings.ToUpper(ticker),
		data:   data,
	}
}

// snapshot section per tool. Tools absent here (knowledge search, forecast,
// price history) never read the snapshot.
var snapshotKeys = map[string]string{
	ToolStockQuote:  "previousClose",
	ToolCompanyInfo: "details",
	ToolFinancials:  "financials",
	ToolNews:        "news",
	ToolDividends:   "dividends",
	ToolSplits:      "splits",
	ToolSentiment:   "sentiment",
}

// nested under the "overview" object rather than top level.
var overviewKeys = map[string]bool{
	"previousClose": true,
	"details":       true,
}

// lookup returns the snapshot section for a tool call, or nil when the
// snapshot does not cover it. A snapshot only ever answers for its own
// ticker.
func (s *Snapshot) lookup(tool, ticker string) any {
	if s == nil || len(s.data) == 0 || ticker != s.ticker {
		return nil
	}

	key, ok := snapshotKeys[tool]
	if !ok {
		return nil
	}

	var section any
	if overviewKeys[key] {
		overview, _ := s.data["overview"].(map[string]any)
		section = overview[key]
	} else {
		section = s.data[key]
	}

	if isEmptySection(section) {
		return nil
	}
	return section
}

func isEmptySection(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
