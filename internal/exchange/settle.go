package exchange

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/xtrntr/cxgame/internal/models"
	"github.com/xtrntr/cxgame/internal/money"
)

// Report is the outcome of a final settlement.
type Report struct {
	Price decimal.Decimal
	Rows  []models.SettlementRow
	CSV   string
}

// Settle force-cancels every order of every listed user, maker and market
// alike, and values each wallet at the market price observed before the
// cancellations. It publishes a shutdown event, the cancels, and finally the
// report as a csv event. Callers must run it at most once.
func (e *Exchange) Settle(users []string, reason string) Report {
	final := e.oracle.Price()
	e.publish(models.Event{Type: models.EventShutdown, Message: reason})

	report := Report{Price: final, Rows: make([]models.SettlementRow, 0, len(users))}
	for _, user := range users {
		for _, o := range e.makers() {
			if o.User == user && o.Status == models.StatusOpen {
				e.cancelMaker(o)
			}
		}
		for _, o := range e.markets() {
			if o.User == user && o.Status == models.StatusOpen {
				e.cancelMarket(o)
			}
		}

		w, _ := e.ledger.Balance(user)
		report.Rows = append(report.Rows, models.SettlementRow{
			User:     user,
			Asset:    w.Asset,
			Currency: w.Currency,
			Holdings: money.Currency(w.Currency.Add(w.Asset.Mul(final))),
		})
	}
	report.CSV = renderCSV(report.Rows)

	e.publish(models.Event{Type: models.EventCSV, Message: reason, Data: report.CSV})
	e.log.WithFields(logrus.Fields{
		"users":       len(users),
		"final_price": money.Fixed(final, money.CurrencyPlaces),
	}).Info("settlement complete")
	return report
}

// renderCSV quotes every field; quotes inside user names become dashes.
func renderCSV(rows []models.SettlementRow) string {
	var b strings.Builder
	b.WriteString(`"user","crypto","usd","holdings"` + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "\"%s\",\"%s\",\"%s\",\"%s\"\n",
			strings.ReplaceAll(r.User, `"`, "-"),
			r.Asset.String(),
			money.Fixed(r.Currency, money.CurrencyPlaces),
			money.Fixed(r.Holdings, money.CurrencyPlaces),
		)
	}
	return b.String()
}
