package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// QuoteKey addresses one (symbol, field) slot in the latest-value cache.
type QuoteKey struct {
	Symbol string
	Field  FieldKind
}

// String renders the flattened snapshot key, e.g. "SPY:LAST".
func (k QuoteKey) String() string {
	return k.Symbol + ":" + string(k.Field)
}

// Quote is one normalized value captured from the provider. Immutable once
// built. Has is false when the provider reported the value as unavailable or
// sent something unparseable; such quotes never carry a Value.
type Quote struct {
	Field      FieldKind
	Symbol     string
	Value      float64
	Has        bool
	CapturedAt time.Time
}

// NewQuote normalizes a provider-native scalar for the given field kind.
// The provider's "not available" sentinels always map to an absent quote,
// never to a failure.
func NewQuote(field FieldKind, symbol, raw string, at time.Time) Quote {
	q := Quote{Field: field, Symbol: symbol, CapturedAt: at}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "N/A" || trimmed == "!N/A" {
		return q
	}

	v, ok := parseScalar(trimmed)
	if !ok {
		return q
	}

	switch {
	case countFields[field]:
		v = math.Trunc(v)
	case field == FieldImplVol:
		v = math.Round(v*1e4) / 1e4
	}

	q.Value = v
	q.Has = true
	return q
}

// Key returns the cache key for this quote.
func (q Quote) Key() QuoteKey {
	return QuoteKey{Symbol: q.Symbol, Field: q.Field}
}

// parseScalar handles the provider's scalar notations: plain decimals,
// trailing-percent strings, and the treasury futures tick format where
// "109'080" means 109 + 8/32 and a trailing 5 in the third tick digit adds
// half a tick ("123'165" -> 123 + 16.5/32).
func parseScalar(s string) (float64, bool) {
	if i := strings.IndexByte(s, '\''); i >= 0 {
		return parseTicks(s[:i], s[i+1:])
	}
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseTicks(whole, ticks string) (float64, bool) {
	if len(ticks) < 2 {
		return 0, false
	}
	w, err := strconv.ParseFloat(whole, 64)
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(ticks[:2], 64)
	if err != nil {
		return 0, false
	}
	if len(ticks) > 2 && ticks[2] == '5' {
		n += 0.5
	}
	return w + n/32, true
}
