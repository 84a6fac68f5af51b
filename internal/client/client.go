// Package client is a small websocket client for the exchange endpoint.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/cxgame/internal/api"
	"github.com/xtrntr/cxgame/internal/models"
	"github.com/xtrntr/cxgame/internal/money"
)

// Response is a command reply with its data left undecoded.
type Response struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Rejection is a command the exchange answered with status false.
type Rejection struct {
	Message string
}

func (r *Rejection) Error() string { return r.Message }

// Err turns a failed reply into a *Rejection.
func (r *Response) Err() error {
	if r.Status {
		return nil
	}
	return &Rejection{Message: r.Message}
}

// Client sends one command at a time and waits for its reply.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn

	User  string
	Token string
}

// Dial connects to an exchange endpoint such as ws://localhost:9877/.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Do sends a command and reads one reply.
func (c *Client) Do(cmd string, params map[string]any) (*Response, error) {
	if params == nil {
		params = map[string]any{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.WriteJSON(api.Request{Cmd: cmd, Params: params}); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	var resp Response
	if err := c.conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("failed to read %s reply: %w", cmd, err)
	}
	return &resp, nil
}

// call runs cmd and decodes a successful reply's data into out.
func (c *Client) call(cmd string, params map[string]any, out any) error {
	resp, err := c.Do(cmd, params)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", cmd, err)
	}
	return nil
}

// Register creates the user and remembers the issued token.
func (c *Client) Register(user string) error {
	var token string
	if err := c.call(api.CmdRegister, map[string]any{"username": user}, &token); err != nil {
		return err
	}
	c.User, c.Token = user, token
	return nil
}

// Auth binds the connection to an already registered user.
func (c *Client) Auth(user, token string) error {
	if err := c.call(api.CmdAuth, map[string]any{"username": user, "token": token}, nil); err != nil {
		return err
	}
	c.User, c.Token = user, token
	return nil
}

func (c *Client) Buy(price, size decimal.Decimal) (models.Order, error) {
	return c.maker(api.CmdBuy, price, size)
}

func (c *Client) Sell(price, size decimal.Decimal) (models.Order, error) {
	return c.maker(api.CmdSell, price, size)
}

func (c *Client) maker(cmd string, price, size decimal.Decimal) (models.Order, error) {
	var order models.Order
	err := c.call(cmd, map[string]any{
		"price": money.Fixed(price, money.CurrencyPlaces),
		"size":  money.Fixed(size, money.AssetPlaces),
	}, &order)
	return order, err
}

func (c *Client) BuyMarket(amount decimal.Decimal) (models.MarketOrder, error) {
	var order models.MarketOrder
	err := c.call(api.CmdBuyMarket, map[string]any{"amount": money.Fixed(amount, money.CurrencyPlaces)}, &order)
	return order, err
}

func (c *Client) SellMarket(amount decimal.Decimal) (models.MarketOrder, error) {
	var order models.MarketOrder
	err := c.call(api.CmdSellMarket, map[string]any{"amount": money.Fixed(amount, money.AssetPlaces)}, &order)
	return order, err
}

func (c *Client) Cancel(orderID string) error {
	return c.call(api.CmdCancel, map[string]any{"order_id": orderID}, nil)
}

func (c *Client) Broadcast(message string) error {
	return c.call(api.CmdBcast, map[string]any{"message": message}, nil)
}

func (c *Client) Price() (decimal.Decimal, error) {
	var price decimal.Decimal
	err := c.call(api.CmdPrice, nil, &price)
	return price, err
}

func (c *Client) Orders() (models.OrderList, error) {
	var list models.OrderList
	err := c.call(api.CmdOrders, nil, &list)
	return list, err
}

func (c *Client) Wallets() (models.Wallet, error) {
	var w models.Wallet
	err := c.call(api.CmdWallets, nil, &w)
	return w, err
}

func (c *Client) Fills() ([]models.Fill, error) {
	var fills []models.Fill
	err := c.call(api.CmdFills, nil, &fills)
	return fills, err
}
