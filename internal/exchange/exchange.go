package exchange

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/xtrntr/cxgame/internal/models"
	"github.com/xtrntr/cxgame/internal/money"
)

// Publisher receives every state-changing event.
type Publisher interface {
	Publish(event models.Event)
}

// Config holds the starting conditions of a game.
type Config struct {
	StartPrice    decimal.Decimal
	CurrencyStart decimal.Decimal
	AssetStart    decimal.Decimal
}

// DefaultConfig returns the stock game: price 1000.00, wallets of 10000.00
// currency and 10 asset units.
func DefaultConfig() Config {
	return Config{
		StartPrice:    decimal.RequireFromString("1000.00"),
		CurrencyStart: decimal.RequireFromString("10000.00"),
		AssetStart:    decimal.RequireFromString("10.0"),
	}
}

// Exchange manages the order books, wallets, fills and price state.
//
// Exchange is not safe for concurrent use. Every call, including the
// read-only ones, must be serialized by the caller; the command processor
// holds one mutex across each command and its matching passes.
type Exchange struct {
	cfg Config
	log logrus.FieldLogger
	pub Publisher

	newID func() string
	now   func() time.Time

	// Active maker lists in arrival order.
	buys  []*models.Order
	sells []*models.Order

	// Active market order lists in arrival order.
	marketBuys  []*models.MarketOrder
	marketSells []*models.MarketOrder

	ledger *Ledger
	fills  *FillRecorder
	oracle *Oracle
}

// NewExchange creates an empty exchange.
func NewExchange(cfg Config, pub Publisher, log logrus.FieldLogger) *Exchange {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Exchange{
		cfg:    cfg,
		log:    log,
		pub:    pub,
		newID:  uuid.NewString,
		now:    time.Now,
		ledger: NewLedger(),
		fills:  NewFillRecorder(),
		oracle: NewOracle(cfg.StartPrice),
	}
}

// OpenAccount seeds a wallet with the configured starting balances and an
// empty fill history.
func (e *Exchange) OpenAccount(user string) error {
	if err := e.ledger.Open(user, e.cfg.CurrencyStart, e.cfg.AssetStart); err != nil {
		return err
	}
	e.fills.Open(user)
	return nil
}

// Price returns the current market price.
func (e *Exchange) Price() decimal.Decimal { return e.oracle.Price() }

// Spread returns the current spread.
func (e *Exchange) Spread() decimal.Decimal { return e.oracle.Spread() }

// Wallet returns a copy of the user's balances.
func (e *Exchange) Wallet(user string) (models.Wallet, bool) { return e.ledger.Balance(user) }

// Fills returns a copy of the user's fill history.
func (e *Exchange) Fills(user string) []models.Fill { return e.fills.For(user) }

// Completed returns a copy of the completed-orders archive.
func (e *Exchange) Completed() []models.Archived { return e.fills.Completed() }

// Orders returns the user's active maker orders and open market orders.
func (e *Exchange) Orders(user string) models.OrderList {
	list := models.OrderList{Maker: []models.Order{}, Market: []models.MarketOrder{}}
	for _, o := range e.makers() {
		if o.User == user {
			list.Maker = append(list.Maker, *o)
		}
	}
	for _, o := range e.markets() {
		if o.Status == models.StatusOpen && o.User == user {
			list.Market = append(list.Market, *o)
		}
	}
	return list
}

// AllOrders returns every open maker and market order.
func (e *Exchange) AllOrders() models.OrderList {
	list := models.OrderList{Maker: []models.Order{}, Market: []models.MarketOrder{}}
	for _, o := range e.makers() {
		if o.Status == models.StatusOpen {
			list.Maker = append(list.Maker, *o)
		}
	}
	for _, o := range e.markets() {
		if o.Status == models.StatusOpen {
			list.Market = append(list.Market, *o)
		}
	}
	return list
}

// Audit lists orders sitting in an active list with a non-open status.
// A healthy book always yields an empty list.
func (e *Exchange) Audit() []models.AuditEntry {
	entries := []models.AuditEntry{}
	for _, o := range e.makers() {
		if o.Status != models.StatusOpen {
			entries = append(entries, models.AuditEntry{Reason: "ORDER_STATUS_NOT_OPEN", Order: *o})
		}
	}
	for _, o := range e.markets() {
		if o.Status != models.StatusOpen {
			entries = append(entries, models.AuditEntry{Reason: "ORDER_STATUS_NOT_OPEN", Order: *o})
		}
	}
	return entries
}

func (e *Exchange) makers() []*models.Order {
	out := make([]*models.Order, 0, len(e.buys)+len(e.sells))
	out = append(out, e.buys...)
	return append(out, e.sells...)
}

func (e *Exchange) markets() []*models.MarketOrder {
	out := make([]*models.MarketOrder, 0, len(e.marketBuys)+len(e.marketSells))
	out = append(out, e.marketBuys...)
	return append(out, e.marketSells...)
}

func (e *Exchange) publish(event models.Event) {
	if e.pub != nil {
		e.pub.Publish(event)
	}
}

func (e *Exchange) recalcPrice() {
	e.oracle.Recompute(e.buys, e.sells)
	e.log.WithFields(logrus.Fields{
		"market_price": money.Fixed(e.oracle.Price(), money.CurrencyPlaces),
		"spread":       money.Fixed(e.oracle.Spread(), money.CurrencyPlaces),
	}).Debug("price recomputed")
}
