package exchange

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/xtrntr/cxgame/internal/models"
	"github.com/xtrntr/cxgame/internal/money"
	"github.com/xtrntr/cxgame/internal/staticerr"
)

// Buy places a maker buy order below the market price and reserves
// price*size currency from the user's wallet.
func (e *Exchange) Buy(user string, price, size decimal.Decimal) (models.Order, error) {
	price, size = money.Currency(price), money.Asset(size)
	if err := validateMaker(price, size); err != nil {
		return models.Order{}, err
	}
	if price.GreaterThanOrEqual(e.oracle.Price()) {
		return models.Order{}, staticerr.Validation("Price must be < market price (%s).",
			money.Fixed(e.oracle.Price(), money.CurrencyPlaces))
	}
	cost := money.Currency(size.Mul(price))
	if err := e.ledger.Debit(user, Currency, cost); err != nil {
		return models.Order{}, err
	}

	order := e.newOrder(models.SideBuy, user, price, size)
	order.Reserved = cost
	e.buys = append(e.buys, order)
	e.recalcPrice()
	e.publish(models.Event{Type: models.EventBuy, Message: *order})
	return *order, nil
}

// Sell places a maker sell order at or above the market price and reserves
// size asset units from the user's wallet.
func (e *Exchange) Sell(user string, price, size decimal.Decimal) (models.Order, error) {
	price, size = money.Currency(price), money.Asset(size)
	if err := validateMaker(price, size); err != nil {
		return models.Order{}, err
	}
	if price.LessThan(e.oracle.Price()) {
		return models.Order{}, staticerr.Validation("Price must be >= market price (%s).",
			money.Fixed(e.oracle.Price(), money.CurrencyPlaces))
	}
	if err := e.ledger.Debit(user, Asset, size); err != nil {
		return models.Order{}, err
	}

	order := e.newOrder(models.SideSell, user, price, size)
	e.sells = append(e.sells, order)
	e.recalcPrice()
	e.publish(models.Event{Type: models.EventSell, Message: *order})
	return *order, nil
}

func validateMaker(price, size decimal.Decimal) error {
	if size.LessThan(money.MinSize) {
		return staticerr.Validation("Size must be greater than or equal to %s", money.MinSize)
	}
	if price.LessThan(money.MinPrice) {
		return staticerr.Validation("Price must be greater than or equal to %s", money.MinPrice)
	}
	return nil
}

func (e *Exchange) newOrder(side models.Side, user string, price, size decimal.Decimal) *models.Order {
	return &models.Order{
		ID:         e.newID(),
		Timestamp:  e.now(),
		Side:       side,
		Price:      price,
		Size:       size,
		FilledSize: decimal.Zero,
		Reserved:   decimal.Zero,
		Status:     models.StatusOpen,
		User:       user,
	}
}

// Cancel cancels one of the user's open maker orders and refunds what is
// left of its reservation. An order owned by someone else is reported as
// not found.
func (e *Exchange) Cancel(user, orderID string) error {
	order, err := e.findOpenMaker(orderID)
	if err != nil {
		return err
	}
	if order == nil || order.User != user {
		return staticerr.State("Order not found: %s", orderID)
	}
	e.cancelMaker(order)
	return nil
}

// findOpenMaker looks an id up in both maker lists. The same id on both
// sides means the book is corrupt.
func (e *Exchange) findOpenMaker(orderID string) (*models.Order, error) {
	var found *models.Order
	for _, o := range e.buys {
		if o.Status == models.StatusOpen && o.ID == orderID {
			found = o
			break
		}
	}
	for _, o := range e.sells {
		if o.Status == models.StatusOpen && o.ID == orderID {
			if found != nil {
				e.log.WithField("order_id", orderID).Error("duplicate order id on both sides of the book")
				return nil, staticerr.Invariant("Duplicate order ID between buy/sell: %s", orderID)
			}
			found = o
			break
		}
	}
	return found, nil
}

func (e *Exchange) cancelMaker(order *models.Order) {
	if order.Side == models.SideSell {
		e.ledger.Credit(order.User, Asset, order.Size)
	} else {
		e.ledger.Credit(order.User, Currency, order.Reserved)
		order.Reserved = decimal.Zero
	}
	order.Status = models.StatusCancel
	if order.FilledSize.IsPositive() {
		e.fills.Archive(*order)
	}
	if !e.removeMaker(order) {
		e.log.WithField("order_id", order.ID).Warn("order vanished from the book while cancelling")
	}
	e.recalcPrice()
	e.publish(models.Event{Type: models.EventCancel, Message: order.ID})
	e.log.WithFields(logrus.Fields{"order_id": order.ID, "user": order.User}).Info("order cancelled")
}

// retireMaker archives a filled order and drops it from its list.
func (e *Exchange) retireMaker(order *models.Order) {
	e.fills.Archive(*order)
	e.removeMaker(order)
}

func (e *Exchange) removeMaker(order *models.Order) bool {
	list := &e.buys
	if order.Side == models.SideSell {
		list = &e.sells
	}
	for i, o := range *list {
		if o.ID == order.ID {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}
