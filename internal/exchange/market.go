package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/xtrntr/cxgame/internal/models"
	"github.com/xtrntr/cxgame/internal/money"
	"github.com/xtrntr/cxgame/internal/staticerr"
)

// BuyMarket reserves amount currency and queues a market buy targeting the
// current market price. It is matched by the next market-buy pass.
func (e *Exchange) BuyMarket(user string, amount decimal.Decimal) (models.MarketOrder, error) {
	amount = money.Currency(amount)
	if amount.LessThan(money.MinAmount) {
		return models.MarketOrder{}, staticerr.Validation("Amount must be greater than or equal to %s", money.MinAmount)
	}
	if err := e.ledger.Sufficient(user, Currency, amount); err != nil {
		return models.MarketOrder{}, err
	}
	if len(e.sells) < 1 {
		return models.MarketOrder{}, staticerr.State("No available sell orders to match.")
	}
	if err := e.ledger.Debit(user, Currency, amount); err != nil {
		return models.MarketOrder{}, err
	}

	order := e.newMarketOrder(models.SideBuyMarket, user, amount)
	e.marketBuys = append(e.marketBuys, order)
	e.publish(models.Event{Type: models.EventBuyMarket, Message: *order})
	return *order, nil
}

// SellMarket reserves amount asset units and queues a market sell.
func (e *Exchange) SellMarket(user string, amount decimal.Decimal) (models.MarketOrder, error) {
	amount = money.Asset(amount)
	if amount.LessThan(money.MinSize) {
		return models.MarketOrder{}, staticerr.Validation("Amount must be greater than or equal to %s", money.MinSize)
	}
	if err := e.ledger.Sufficient(user, Asset, amount); err != nil {
		return models.MarketOrder{}, err
	}
	if len(e.buys) < 1 {
		return models.MarketOrder{}, staticerr.State("No available buy orders to match.")
	}
	if err := e.ledger.Debit(user, Asset, amount); err != nil {
		return models.MarketOrder{}, err
	}

	order := e.newMarketOrder(models.SideSellMarket, user, amount)
	e.marketSells = append(e.marketSells, order)
	e.publish(models.Event{Type: models.EventSellMarket, Message: *order})
	return *order, nil
}

func (e *Exchange) newMarketOrder(side models.Side, user string, amount decimal.Decimal) *models.MarketOrder {
	return &models.MarketOrder{
		ID:         e.newID(),
		Timestamp:  e.now(),
		Side:       side,
		Price:      e.oracle.Price(),
		Amount:     amount,
		FilledSize: decimal.Zero,
		Status:     models.StatusOpen,
		User:       user,
	}
}

// cancelMarket refunds the unspent amount of a market order. Only settlement
// reaches this path; the cancel command is limited to maker orders.
func (e *Exchange) cancelMarket(order *models.MarketOrder) {
	if order.Side == models.SideSellMarket {
		e.ledger.Credit(order.User, Asset, order.Amount)
	} else {
		e.ledger.Credit(order.User, Currency, order.Amount)
	}
	order.Status = models.StatusCancel
	if order.FilledSize.IsPositive() {
		e.fills.Archive(*order)
	}
	e.removeMarket(order)
	e.publish(models.Event{Type: models.EventCancel, Message: order.ID})
}

func (e *Exchange) retireMarket(order *models.MarketOrder) {
	e.fills.Archive(*order)
	e.removeMarket(order)
}

func (e *Exchange) removeMarket(order *models.MarketOrder) bool {
	list := &e.marketBuys
	if order.Side == models.SideSellMarket {
		list = &e.marketSells
	}
	for i, o := range *list {
		if o.ID == order.ID {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

// closestMaker returns the first open order whose price is nearest target.
func closestMaker(orders []*models.Order, target decimal.Decimal) *models.Order {
	var (
		closest *models.Order
		diff    decimal.Decimal
	)
	for _, o := range orders {
		if o.Status != models.StatusOpen {
			continue
		}
		d := target.Sub(o.Price).Abs()
		if closest == nil || d.LessThan(diff) {
			closest, diff = o, d
		}
	}
	return closest
}
