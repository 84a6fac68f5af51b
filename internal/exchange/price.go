package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/xtrntr/cxgame/internal/models"
	"github.com/xtrntr/cxgame/internal/money"
)

const historyDepth = 3

var two = decimal.NewFromInt(2)

// Oracle derives the market price and spread from the maker book.
type Oracle struct {
	price   decimal.Decimal
	spread  decimal.Decimal
	history []decimal.Decimal
}

// NewOracle starts at price with a spread of 1.00.
func NewOracle(price decimal.Decimal) *Oracle {
	price = money.Currency(price)
	return &Oracle{
		price:   price,
		spread:  decimal.RequireFromString("1.00"),
		history: []decimal.Decimal{price},
	}
}

func (o *Oracle) Price() decimal.Decimal { return o.price }

func (o *Oracle) Spread() decimal.Decimal { return o.spread }

// History returns up to the last three prices, oldest first.
func (o *Oracle) History() []decimal.Decimal {
	return append([]decimal.Decimal(nil), o.history...)
}

// Recompute sets the price to the midpoint of the best open bid and ask.
// With only one side present the price moves halfway toward it; with
// neither it stays put.
func (o *Oracle) Recompute(buys, sells []*models.Order) {
	var (
		highestBuy, lowestSell decimal.Decimal
		foundBuy, foundSell    bool
	)
	for _, b := range buys {
		if b.Status != models.StatusOpen {
			continue
		}
		if !foundBuy || b.Price.GreaterThan(highestBuy) {
			highestBuy = b.Price
		}
		foundBuy = true
	}
	for _, s := range sells {
		if s.Status != models.StatusOpen {
			continue
		}
		if !foundSell || s.Price.LessThan(lowestSell) {
			lowestSell = s.Price
		}
		foundSell = true
	}

	next := o.price
	switch {
	case foundBuy && foundSell:
		next = highestBuy.Add(lowestSell).Div(two)
	case foundSell:
		next = o.price.Add(lowestSell).Div(two)
	case foundBuy:
		next = o.price.Add(highestBuy).Div(two)
	}
	o.price = money.Currency(next)
	o.history = append(o.history, o.price)
	if len(o.history) > historyDepth {
		o.history = o.history[len(o.history)-historyDepth:]
	}

	if foundBuy && foundSell {
		o.spread = money.Currency(lowestSell.Sub(highestBuy))
		return
	}
	n := len(o.history)
	o.spread = money.Currency(o.history[n-2].Sub(o.history[n-1]).Abs())
	if o.spread.LessThan(money.Penny) {
		o.spread = money.Penny
	}
}
