package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which list an order lives in.
type Side string

const (
	SideBuy        Side = "buy"
	SideSell       Side = "sell"
	SideBuyMarket  Side = "buy_market"
	SideSellMarket Side = "sell_market"
)

// Status of an order. Filled and Cancel are terminal.
type Status string

const (
	StatusOpen   Status = "open"
	StatusFilled Status = "filled"
	StatusCancel Status = "cancel"
)

// Order is a resting maker (limit) order. While open, Size is the unfilled
// remainder. A sell reserves exactly Size asset; a buy reserves Reserved
// currency, taken once at placement and paid out fill by fill.
type Order struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	FilledSize decimal.Decimal `json:"filled_size"`
	Reserved   decimal.Decimal `json:"reserved"`
	Status     Status          `json:"status"`
	User       string          `json:"user"`
}

// MarketOrder spends Amount (currency for buys, asset for sells) against the
// maker book. Price is the market price when the order was placed and is
// informational only.
type MarketOrder struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	FilledSize decimal.Decimal `json:"filled_size"`
	Status     Status          `json:"status"`
	User       string          `json:"user"`
}

// Archived is implemented by both order kinds so they can share the
// completed-orders archive.
type Archived interface {
	OrderID() string
	Owner() string
	OrderStatus() Status
}

func (o Order) OrderID() string { return o.ID }

func (o Order) Owner() string { return o.User }

func (o Order) OrderStatus() Status { return o.Status }

func (o MarketOrder) OrderID() string { return o.ID }

func (o MarketOrder) Owner() string { return o.User }

func (o MarketOrder) OrderStatus() Status { return o.Status }

// Fill is one side's record of a match.
type Fill struct {
	FillID     string          `json:"fill_id"`
	FilledSize decimal.Decimal `json:"filled_size"`
	Price      decimal.Decimal `json:"price"`
	BuyID      string          `json:"buy_id"`
	SellID     string          `json:"sell_id"`
}

// Wallet balances. Both are always >= 0.
type Wallet struct {
	Currency decimal.Decimal `json:"usd"`
	Asset    decimal.Decimal `json:"crypto"`
}

// OrderList groups open orders by kind, as returned by orders/all_orders.
type OrderList struct {
	Maker  []Order       `json:"maker"`
	Market []MarketOrder `json:"market"`
}

// AuditEntry reports an order found in an active list with a non-open status.
type AuditEntry struct {
	Reason string   `json:"reason"`
	Order  Archived `json:"order"`
}

// Match is the message of a match event.
type Match struct {
	Size   decimal.Decimal `json:"size"`
	Price  decimal.Decimal `json:"price"`
	BuyID  string          `json:"buy_id"`
	SellID string          `json:"sell_id"`
}

// SettlementRow is one user's line in the final report.
type SettlementRow struct {
	User     string          `json:"user"`
	Asset    decimal.Decimal `json:"crypto"`
	Currency decimal.Decimal `json:"usd"`
	Holdings decimal.Decimal `json:"holdings"`
}

// EventType discriminates feed payloads.
type EventType string

const (
	EventInfo       EventType = "info"
	EventBuy        EventType = "buy"
	EventSell       EventType = "sell"
	EventBuyMarket  EventType = "buy_market"
	EventSellMarket EventType = "sell_market"
	EventMatch      EventType = "match"
	EventCancel     EventType = "cancel"
	EventBcast      EventType = "bcast"
	EventShutdown   EventType = "shutdown"
	EventStart      EventType = "start"
	EventPause      EventType = "pause"
	EventCSV        EventType = "csv"
)

// Event is a broadcast feed payload.
type Event struct {
	Type    EventType `json:"type"`
	Message any       `json:"message"`
	User    string    `json:"user,omitempty"`
	Data    any       `json:"data,omitempty"`
}
