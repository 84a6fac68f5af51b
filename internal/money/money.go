// Package money holds the fixed-precision arithmetic used for every amount
// on the exchange. Currency values carry 2 decimal places and asset
// quantities 10, both rounded half-to-even.
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	CurrencyPlaces int32 = 2
	AssetPlaces    int32 = 10
)

var (
	// MinSize is the smallest asset quantity accepted for an order.
	MinSize = decimal.RequireFromString("0.00000001")
	// MinPrice is the smallest limit price accepted for an order.
	MinPrice = decimal.RequireFromString("0.1")
	// MinAmount is the smallest currency amount accepted for a market buy.
	MinAmount = decimal.RequireFromString("10.00")

	// Penny is the floor applied to a one-sided spread.
	Penny = decimal.RequireFromString("0.01")
)

// Currency rounds d to the currency domain.
func Currency(d decimal.Decimal) decimal.Decimal { return d.RoundBank(CurrencyPlaces) }

// Asset rounds d to the asset-quantity domain.
func Asset(d decimal.Decimal) decimal.Decimal { return d.RoundBank(AssetPlaces) }

// Parse converts a wire value into a decimal rounded to places.
// Accepted inputs are strings, json.Number, decimals and integers; floats are
// rejected so a value never passes through binary floating point.
func Parse(v any, places int32) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch x := v.(type) {
	case string:
		d, err = decimal.NewFromString(x)
	case json.Number:
		d, err = decimal.NewFromString(x.String())
	case decimal.Decimal:
		d = x
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric value %v (%T)", v, v)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %v: %w", v, err)
	}
	return d.RoundBank(places), nil
}

// Fixed formats d with exactly places digits after the point.
func Fixed(d decimal.Decimal, places int32) string { return d.StringFixedBank(places) }
