package client

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/cxgame/internal/api"
	"github.com/xtrntr/cxgame/internal/auth"
	"github.com/xtrntr/cxgame/internal/exchange"
	"github.com/xtrntr/cxgame/internal/feed"
	"github.com/xtrntr/cxgame/internal/lifecycle"
	"github.com/xtrntr/cxgame/internal/models"
)

func startServer(t *testing.T) string {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	queue := feed.NewQueue(log)

	users, err := auth.NewAuthService(auth.Options{Secret: []byte("test-secret")})
	require.NoError(t, err)
	admin, err := auth.NewAdminGate("admin", bcrypt.MinCost)
	require.NoError(t, err)

	var p *api.Processor
	life := lifecycle.New(true, 0, func(reason string) { p.Settle(reason) }, log)
	p = api.NewProcessor(exchange.NewExchange(exchange.DefaultConfig(), queue, log), users, admin, life, queue, log)

	ts := httptest.NewServer(api.NewServer(p, feed.NewHub(log), log).ExchangeRouter())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_TradingSession(t *testing.T) {
	url := startServer(t)

	alice := dial(t, url)
	require.NoError(t, alice.Register("alice"))
	assert.NotEmpty(t, alice.Token)

	price, err := alice.Price()
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(price))

	order, err := alice.Buy(decimal.RequireFromString("990.00"), decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, order.Status)
	assert.Equal(t, "alice", order.User)

	w, err := alice.Wallets()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("9505.00").Equal(w.Currency), w.Currency.String())

	orders, err := alice.Orders()
	require.NoError(t, err)
	require.Len(t, orders.Maker, 1)
	assert.Equal(t, order.ID, orders.Maker[0].ID)

	require.NoError(t, alice.Cancel(order.ID))
	err = alice.Cancel(order.ID)
	require.Error(t, err)
	assert.Equal(t, "Order not found: "+order.ID, err.Error())

	require.NoError(t, alice.Broadcast("hello"))

	fills, err := alice.Fills()
	require.NoError(t, err)
	assert.Empty(t, fills)
}

func TestClient_AuthOnSecondConnection(t *testing.T) {
	url := startServer(t)

	first := dial(t, url)
	require.NoError(t, first.Register("bob"))

	second := dial(t, url)
	_, err := second.Wallets()
	require.Error(t, err)
	assert.Equal(t, "Must be authenticated.", err.Error())

	require.NoError(t, second.Auth("bob", first.Token))
	w, err := second.Wallets()
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(w.Asset))

	_, err = second.BuyMarket(decimal.NewFromInt(50))
	require.Error(t, err)
	assert.Equal(t, "No available sell orders to match.", err.Error())
}

func TestResponse_Err(t *testing.T) {
	assert.NoError(t, (&Response{Status: true}).Err())

	err := (&Response{Status: false, Message: "Not enough USD."}).Err()
	var rejected *Rejection
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Not enough USD.", rejected.Message)
}
