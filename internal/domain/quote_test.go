package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewQuote_AbsentSentinels(t *testing.T) {
	now := time.Now()
	for _, raw := range []string{"", "  ", "N/A", "!N/A"} {
		q := NewQuote(FieldLast, "SPY", raw, now)
		require.False(t, q.Has, "raw %q must normalize to absent", raw)
		require.Zero(t, q.Value)
	}
}

func TestNewQuote_Garbage_IsAbsentNotFailure(t *testing.T) {
	q := NewQuote(FieldLast, "SPY", "not-a-number", time.Now())
	require.False(t, q.Has)
}

func TestNewQuote_PriceFields(t *testing.T) {
	q := NewQuote(FieldLast, "SPY", "512.37", time.Now())
	require.True(t, q.Has)
	require.Equal(t, 512.37, q.Value)
}

func TestNewQuote_TreasuryTickFormat(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"109'080", 109.25},
		{"123'165", 123.515625},
		{"100'000", 100.0},
	}
	for _, tc := range cases {
		q := NewQuote(FieldLast, "/ZN", tc.raw, time.Now())
		require.True(t, q.Has, "raw %q", tc.raw)
		require.Equal(t, tc.want, q.Value, "raw %q", tc.raw)
	}
}

func TestNewQuote_PercentageField(t *testing.T) {
	q := NewQuote(FieldImplVol, "SPY", "37.50%", time.Now())
	require.True(t, q.Has)
	require.Equal(t, 37.5, q.Value)

	q = NewQuote(FieldImplVol, "SPY", "12.345678%", time.Now())
	require.True(t, q.Has)
	require.Equal(t, 12.3457, q.Value)
}

func TestNewQuote_CountFieldsTruncate(t *testing.T) {
	q := NewQuote(FieldVolume, "SPY", "10543.8", time.Now())
	require.True(t, q.Has)
	require.Equal(t, 10543.0, q.Value)

	q = NewQuote(FieldOpenInt, ".SPY260320C500", "2215", time.Now())
	require.True(t, q.Has)
	require.Equal(t, 2215.0, q.Value)
}

func TestQuoteKey_String(t *testing.T) {
	k := QuoteKey{Symbol: "SPY", Field: FieldLast}
	require.Equal(t, "SPY:LAST", k.String())
}

func TestParseField(t *testing.T) {
	f, err := ParseField(" last ")
	require.NoError(t, err)
	require.Equal(t, FieldLast, f)

	_, err = ParseField("NOPE")
	require.Error(t, err)
}
