package domain

import (
	"fmt"
	"strings"
)

// FieldKind names a quotable attribute of a symbol.
type FieldKind string

const (
	FieldLast     FieldKind = "LAST"
	FieldBid      FieldKind = "BID"
	FieldAsk      FieldKind = "ASK"
	FieldHigh     FieldKind = "HIGH"
	FieldLow      FieldKind = "LOW"
	FieldOpen     FieldKind = "OPEN"
	FieldClose    FieldKind = "CLOSE"
	FieldMark     FieldKind = "MARK"
	FieldDelta    FieldKind = "DELTA"
	FieldGamma    FieldKind = "GAMMA"
	FieldVega     FieldKind = "VEGA"
	FieldTheta    FieldKind = "THETA"
	FieldVolume   FieldKind = "VOLUME"
	FieldAskSize  FieldKind = "ASK_SIZE"
	FieldBidSize  FieldKind = "BID_SIZE"
	FieldLastSize FieldKind = "LAST_SIZE"
	FieldOpenInt  FieldKind = "OPEN_INT"
	FieldImplVol  FieldKind = "IMPL_VOL"
)

// priceFields carry fractional values, countFields carry whole quantities.
// FieldImplVol is special-cased: the provider quotes it as a percentage string.
var (
	priceFields = map[FieldKind]bool{
		FieldLast: true, FieldBid: true, FieldAsk: true,
		FieldHigh: true, FieldLow: true, FieldOpen: true,
		FieldClose: true, FieldMark: true,
		FieldDelta: true, FieldGamma: true, FieldVega: true, FieldTheta: true,
	}
	countFields = map[FieldKind]bool{
		FieldVolume: true, FieldAskSize: true, FieldBidSize: true,
		FieldLastSize: true, FieldOpenInt: true,
	}
)

// ParseField normalizes a field name. Unknown names are an error so a typo in
// a subscription list surfaces before it reaches the provider.
func ParseField(s string) (FieldKind, error) {
	f := FieldKind(strings.ToUpper(strings.TrimSpace(s)))
	if !priceFields[f] && !countFields[f] && f != FieldImplVol {
		return "", fmt.Errorf("unknown field kind: %q", s)
	}
	return f, nil
}

// IsDerivative reports whether symbol names a derivative contract. The
// provider's convention is a leading dot (equity and futures options alike);
// plain underlyings and futures roots have no marker.
func IsDerivative(symbol string) bool {
	return strings.HasPrefix(symbol, ".")
}
