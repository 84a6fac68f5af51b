package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/cxgame/internal/models"
	"github.com/xtrntr/cxgame/internal/money"
	"github.com/xtrntr/cxgame/internal/staticerr"
)

// Unit selects a wallet balance.
type Unit int

const (
	Currency Unit = iota
	Asset
)

func (u Unit) String() string {
	if u == Asset {
		return "crypto"
	}
	return "USD"
}

func (u Unit) round(d decimal.Decimal) decimal.Decimal {
	if u == Asset {
		return money.Asset(d)
	}
	return money.Currency(d)
}

// Ledger tracks per-user balances. Funds reserved by an open order are
// already debited; the order's remaining size or amount is the reservation.
type Ledger struct {
	wallets map[string]*models.Wallet
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{wallets: make(map[string]*models.Wallet)}
}

// Open creates a wallet. Returns an error if one already exists for user.
func (l *Ledger) Open(user string, currency, asset decimal.Decimal) error {
	if _, exists := l.wallets[user]; exists {
		return fmt.Errorf("wallet for %q already exists", user)
	}
	l.wallets[user] = &models.Wallet{Currency: money.Currency(currency), Asset: money.Asset(asset)}
	return nil
}

// Balance returns a copy of the user's wallet.
func (l *Ledger) Balance(user string) (models.Wallet, bool) {
	w, ok := l.wallets[user]
	if !ok {
		return models.Wallet{}, false
	}
	return *w, true
}

// Sufficient reports whether user can be debited amount of unit.
func (l *Ledger) Sufficient(user string, unit Unit, amount decimal.Decimal) error {
	w, ok := l.wallets[user]
	if !ok {
		return staticerr.State("No wallet for user %s.", user)
	}
	balance := w.Currency
	if unit == Asset {
		balance = w.Asset
	}
	if amount.GreaterThan(balance) {
		return staticerr.State("Not enough %s: %s > %s.", unit, amount, balance)
	}
	return nil
}

// Debit removes amount of unit from the user's wallet. Balances never go
// negative: an amount larger than the balance is rejected untouched.
func (l *Ledger) Debit(user string, unit Unit, amount decimal.Decimal) error {
	amount = unit.round(amount)
	if err := l.Sufficient(user, unit, amount); err != nil {
		return err
	}
	w := l.wallets[user]
	if unit == Asset {
		w.Asset = money.Asset(w.Asset.Sub(amount))
	} else {
		w.Currency = money.Currency(w.Currency.Sub(amount))
	}
	return nil
}

// Credit adds amount of unit to the user's wallet. Credits always succeed; a
// missing wallet is created empty first.
func (l *Ledger) Credit(user string, unit Unit, amount decimal.Decimal) {
	w, ok := l.wallets[user]
	if !ok {
		w = &models.Wallet{}
		l.wallets[user] = w
	}
	if unit == Asset {
		w.Asset = money.Asset(w.Asset.Add(amount))
	} else {
		w.Currency = money.Currency(w.Currency.Add(amount))
	}
}
