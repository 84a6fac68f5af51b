package exchange

import (
	"slices"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/xtrntr/cxgame/internal/models"
	"github.com/xtrntr/cxgame/internal/money"
)

// MatchMarketBuys matches each open market buy against the maker sell whose
// price is closest to the buy's target price. Each market order takes at
// most one counterparty per pass; a remainder waits for the next pass.
func (e *Exchange) MatchMarketBuys() {
	for _, buy := range slices.Clone(e.marketBuys) {
		if buy.Status != models.StatusOpen {
			continue
		}
		sell := closestMaker(e.sells, buy.Price)
		if sell == nil {
			return
		}
		e.fillMarketBuy(buy, sell)
	}
}

// MatchMarketSells is the mirror of MatchMarketBuys against maker buys.
func (e *Exchange) MatchMarketSells() {
	for _, sell := range slices.Clone(e.marketSells) {
		if sell.Status != models.StatusOpen {
			continue
		}
		buy := closestMaker(e.buys, sell.Price)
		if buy == nil {
			return
		}
		e.fillMarketSell(sell, buy)
	}
}

// MatchMakers crosses maker buys with maker sells at exactly the same price,
// never between orders of the same user. Buys are visited in list order and
// each takes the first eligible sell until it is filled or none is left.
// The price is recomputed afterwards.
func (e *Exchange) MatchMakers() {
	for _, buy := range slices.Clone(e.buys) {
		for buy.Status == models.StatusOpen {
			sell := e.firstCounter(buy)
			if sell == nil {
				break
			}
			e.fillMakers(buy, sell)
		}
	}
	e.recalcPrice()
}

func (e *Exchange) firstCounter(buy *models.Order) *models.Order {
	for _, s := range e.sells {
		if s.Status == models.StatusOpen && s.User != buy.User && s.Price.Equal(buy.Price) {
			return s
		}
	}
	return nil
}

func (e *Exchange) fillMakers(buy, sell *models.Order) {
	price := sell.Price
	var filled decimal.Decimal

	switch buy.Size.Cmp(sell.Size) {
	case 1:
		filled = sell.Size
		closeMaker(sell, filled)
		partialMaker(buy, filled)
		e.settle(buy.User, sell.User, filled, drawReserve(buy, filled))
		e.retireMaker(sell)
	case -1:
		filled = buy.Size
		partialMaker(sell, filled)
		closeMaker(buy, filled)
		e.settle(buy.User, sell.User, filled, drawReserve(buy, filled))
		e.retireMaker(buy)
	default:
		filled = buy.Size
		closeMaker(sell, filled)
		closeMaker(buy, filled)
		e.settle(buy.User, sell.User, filled, drawReserve(buy, filled))
		e.retireMaker(buy)
		e.retireMaker(sell)
	}
	e.recordMatch(buy.ID, sell.ID, buy.User, sell.User, filled, price)
}

// fillMarketBuy compares the market buy's remaining currency with the value
// of the maker sell.
func (e *Exchange) fillMarketBuy(buy *models.MarketOrder, sell *models.Order) {
	price := sell.Price
	value := money.Currency(sell.Size.Mul(price))
	var filled decimal.Decimal

	switch buy.Amount.Cmp(value) {
	case 1:
		filled = sell.Size
		closeMaker(sell, filled)
		buy.FilledSize = money.Asset(buy.FilledSize.Add(filled))
		buy.Amount = money.Currency(buy.Amount.Sub(value))
		e.settle(buy.User, sell.User, filled, value)
		e.retireMaker(sell)
	case -1:
		filled = money.Asset(buy.Amount.Div(price))
		if filled.IsZero() {
			// Too little currency left to buy a single asset unit at this
			// price; the remainder stays open.
			e.log.WithFields(logrus.Fields{
				"order_id": buy.ID,
				"amount":   buy.Amount.String(),
				"price":    price.String(),
			}).Debug("market buy remainder below one unit")
			return
		}
		if filled.GreaterThan(sell.Size) {
			filled = sell.Size
		}
		// The seller receives everything the buyer had left so no
		// currency is lost to rounding.
		spent := buy.Amount
		partialMaker(sell, filled)
		buy.FilledSize = money.Asset(buy.FilledSize.Add(filled))
		buy.Amount = decimal.Zero
		buy.Status = models.StatusFilled
		e.settle(buy.User, sell.User, filled, spent)
		e.retireMarket(buy)
		if !sell.Size.IsPositive() {
			sell.Status = models.StatusFilled
			e.retireMaker(sell)
		}
	default:
		filled = sell.Size
		closeMaker(sell, filled)
		buy.FilledSize = money.Asset(buy.FilledSize.Add(filled))
		buy.Amount = decimal.Zero
		buy.Status = models.StatusFilled
		e.settle(buy.User, sell.User, filled, value)
		e.retireMaker(sell)
		e.retireMarket(buy)
	}
	e.recordMatch(buy.ID, sell.ID, buy.User, sell.User, filled, price)
}

// fillMarketSell compares the market sell's remaining quantity with the size
// of the maker buy.
func (e *Exchange) fillMarketSell(sell *models.MarketOrder, buy *models.Order) {
	price := buy.Price
	var filled decimal.Decimal

	switch buy.Size.Cmp(sell.Amount) {
	case 1:
		filled = sell.Amount
		partialMaker(buy, filled)
		sell.FilledSize = money.Asset(sell.FilledSize.Add(filled))
		sell.Amount = decimal.Zero
		sell.Status = models.StatusFilled
		e.settle(buy.User, sell.User, filled, drawReserve(buy, filled))
		e.retireMarket(sell)
	case -1:
		filled = buy.Size
		closeMaker(buy, filled)
		sell.FilledSize = money.Asset(sell.FilledSize.Add(filled))
		sell.Amount = money.Asset(sell.Amount.Sub(filled))
		e.settle(buy.User, sell.User, filled, drawReserve(buy, filled))
		e.retireMaker(buy)
	default:
		filled = sell.Amount
		closeMaker(buy, filled)
		sell.FilledSize = money.Asset(sell.FilledSize.Add(filled))
		sell.Amount = decimal.Zero
		sell.Status = models.StatusFilled
		e.settle(buy.User, sell.User, filled, drawReserve(buy, filled))
		e.retireMarket(sell)
		e.retireMaker(buy)
	}
	e.recordMatch(buy.ID, sell.ID, buy.User, sell.User, filled, price)
}

func closeMaker(o *models.Order, filled decimal.Decimal) {
	o.Status = models.StatusFilled
	o.Size = decimal.Zero
	o.FilledSize = money.Asset(o.FilledSize.Add(filled))
}

func partialMaker(o *models.Order, filled decimal.Decimal) {
	o.Size = money.Asset(o.Size.Sub(filled))
	o.FilledSize = money.Asset(o.FilledSize.Add(filled))
}

// drawReserve takes the currency for filled units out of a maker buy's
// reservation. Call it after the buy's size is updated: the fill that closes
// the order takes whatever is left, so the pieces always add up to the
// amount reserved at placement.
func drawReserve(buy *models.Order, filled decimal.Decimal) decimal.Decimal {
	pay := buy.Reserved
	if buy.Size.IsPositive() {
		pay = decimal.Min(money.Currency(filled.Mul(buy.Price)), buy.Reserved)
	}
	buy.Reserved = buy.Reserved.Sub(pay)
	return pay
}

// settle moves the traded asset to the buyer and the proceeds to the seller.
// Both sides paid into escrow when their orders were placed.
func (e *Exchange) settle(buyer, seller string, qty, proceeds decimal.Decimal) {
	e.ledger.Credit(buyer, Asset, qty)
	e.ledger.Credit(seller, Currency, proceeds)
}

func (e *Exchange) recordMatch(buyID, sellID, buyer, seller string, size, price decimal.Decimal) {
	for _, user := range []string{seller, buyer} {
		e.fills.Record(user, models.Fill{
			FillID:     e.newID(),
			FilledSize: size,
			Price:      price,
			BuyID:      buyID,
			SellID:     sellID,
		})
	}
	e.publish(models.Event{Type: models.EventMatch, Message: models.Match{
		Size:   size,
		Price:  price,
		BuyID:  buyID,
		SellID: sellID,
	}})
	e.log.WithFields(logrus.Fields{
		"buy_id":  buyID,
		"sell_id": sellID,
		"size":    size.String(),
		"price":   price.String(),
	}).Info("orders matched")
}
