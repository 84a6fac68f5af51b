package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/xtrntr/cxgame/internal/client"
)

// Demo trader: places random limit and market orders around the market price
func main() {
	url := flag.String("url", "ws://localhost:9877/", "Exchange endpoint.")
	user := flag.String("user", "", "Username (random when empty).")
	token := flag.String("token", "", "Token of an already registered user.")
	rounds := flag.Int("rounds", 0, "Number of trading rounds (0 runs until interrupted).")
	pause := flag.Duration("pause", 2*time.Second, "Mean pause between orders.")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cx, err := client.Dial(ctx, *url)
	if err != nil {
		log.WithError(err).Fatal("failed to connect")
	}
	defer cx.Close()

	if *user == "" {
		*user = fmt.Sprintf("test-%d%d", rand.Intn(1000), time.Now().Unix())
	}
	if *token != "" {
		err = cx.Auth(*user, *token)
	} else {
		err = cx.Register(*user)
	}
	if err != nil {
		log.WithError(err).Fatal("failed to log in")
	}
	log.WithFields(logrus.Fields{"user": cx.User, "token": cx.Token}).Info("logged in")

	b := &bot{cx: cx, log: log.WithField("user", cx.User), pause: *pause}
	for i := 0; *rounds == 0 || i < *rounds; i++ {
		err := b.round(ctx)
		var rejected *client.Rejection
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.As(err, &rejected):
			b.log.WithError(err).Warn("round aborted")
			if err := b.sleep(ctx); err != nil {
				return
			}
		default:
			log.WithError(err).Fatal("connection lost")
		}
	}
}

type bot struct {
	cx    *client.Client
	log   logrus.FieldLogger
	pause time.Duration
}

func uniform(lo, hi float64) decimal.Decimal {
	return decimal.NewFromFloat(lo + rand.Float64()*(hi-lo))
}

func (b *bot) sleep(ctx context.Context) error {
	d := time.Duration(float64(b.pause) * (0.25 + rand.Float64()*1.5))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// report logs an order result. Rejections are part of the game, only
// transport errors end the round.
func (b *bot) report(what string, err error) {
	if err != nil {
		b.log.WithField("order", what).Info(err.Error())
		return
	}
	b.log.WithField("order", what).Info("placed")
}

func (b *bot) round(ctx context.Context) error {
	size := uniform(0.00025, 0.75).Round(10)

	price, err := b.cx.Price()
	if err != nil {
		return err
	}
	_, err = b.cx.Buy(price.Sub(uniform(0.01, 10.5)).Round(2), size)
	b.report("buy", err)
	if err := b.sleep(ctx); err != nil {
		return err
	}

	if price, err = b.cx.Price(); err != nil {
		return err
	}
	_, err = b.cx.Sell(price.Add(uniform(0.01, 10.5)).Round(2), size)
	b.report("sell", err)
	if err := b.sleep(ctx); err != nil {
		return err
	}

	_, err = b.cx.SellMarket(uniform(0.02, 0.5).Round(10))
	b.report("sell_market", err)
	_, err = b.cx.BuyMarket(uniform(20, 100).Round(2))
	b.report("buy_market", err)

	if rand.Intn(51) == 25 {
		orders, err := b.cx.Orders()
		if err != nil {
			return err
		}
		for _, o := range orders.Maker {
			b.report("cancel "+o.ID, b.cx.Cancel(o.ID))
		}
	}

	w, err := b.cx.Wallets()
	if err != nil {
		return err
	}
	fills, err := b.cx.Fills()
	if err != nil {
		return err
	}
	b.log.WithFields(logrus.Fields{
		"usd":    w.Currency.StringFixed(2),
		"crypto": w.Asset.String(),
		"fills":  len(fills),
	}).Info("wallet")
	return b.cx.Broadcast("Hello, World!")
}
