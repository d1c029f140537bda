// Package pricing implements the parimutuel quote model for binary outcome
// markets: an outcome's price is its share of total open interest, expressed
// as a percentage, with a fixed spread separating buy and sell quotes.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The model is pure and deterministic; market aggregates are passed as
// arguments, not stored.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/courtside/matchbook/internal/model"
)

var (
	// ErrInvalidSide is returned when the side is not buy or sell.
	ErrInvalidSide = errors.New("pricing: side must be buy or sell")

	// Spread is the fixed price adjustment separating buy quotes from sell
	// quotes, applied symmetrically to both outcomes.
	Spread = decimal.NewFromInt(2)

	// BasePrice is the quote for both outcomes when the market has no open
	// interest.
	BasePrice = decimal.NewFromInt(50)

	// PriceScale is the number of decimal places for quoted prices.
	PriceScale int32 = 2

	hundred = decimal.NewFromInt(100)
)

// Quote is a buy/sell price pair for one event.
type Quote struct {
	Yes decimal.Decimal `json:"yes_price"`
	No  decimal.Decimal `json:"no_price"`
}

// Base returns the unspread mid prices implied by the open-interest
// aggregates. With no (or non-positive) open interest both outcomes quote at
// BasePrice; otherwise each outcome's price is its share of the total,
// as a percentage.
//
// The aggregates are signed and may be transiently negative, so individual
// base prices can leave [0, 100]; callers get the raw value here and the
// floor is applied in ForSide.
func Base(totalYes, totalNo decimal.Decimal) (yes, no decimal.Decimal) {
	total := totalYes.Add(totalNo)
	if total.LessThanOrEqual(decimal.Zero) {
		return BasePrice, BasePrice
	}
	yes = totalYes.Div(total).Mul(hundred)
	no = hundred.Sub(yes)
	return yes, no
}

// ForSide returns the quote for the given side: spread is added for buys and
// subtracted for sells, and each price is floored at zero. There is no upper
// cap — quotes are spread-adjusted percentages, not probabilities, and the
// documented sum property (yes+no = 100 ± 2·Spread) holds only without one.
// Prices are rounded to PriceScale places.
func ForSide(totalYes, totalNo decimal.Decimal, side model.Side) (Quote, error) {
	if !side.Valid() {
		return Quote{}, ErrInvalidSide
	}

	yes, no := Base(totalYes, totalNo)

	if side == model.SideBuy {
		yes = yes.Add(Spread)
		no = no.Add(Spread)
	} else {
		yes = yes.Sub(Spread)
		no = no.Sub(Spread)
	}

	return Quote{
		Yes: floorZero(yes).Round(PriceScale),
		No:  floorZero(no).Round(PriceScale),
	}, nil
}

// Snapshot returns the unspread mid prices rounded for price-history entries.
func Snapshot(totalYes, totalNo decimal.Decimal) (yes, no decimal.Decimal) {
	y, n := Base(totalYes, totalNo)
	return floorZero(y).Round(PriceScale), floorZero(n).Round(PriceScale)
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
