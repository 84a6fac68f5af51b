package api

import (
	"github.com/shopspring/decimal"

	"github.com/xtrntr/cxgame/internal/lifecycle"
	"github.com/xtrntr/cxgame/internal/models"
	"github.com/xtrntr/cxgame/internal/money"
	"github.com/xtrntr/cxgame/internal/staticerr"
)

// Command names accepted on the exchange endpoint.
const (
	CmdRegister   = "register"
	CmdAuth       = "auth"
	CmdBcast      = "bcast"
	CmdBuy        = "buy"
	CmdBuyMarket  = "buy_market"
	CmdSell       = "sell"
	CmdSellMarket = "sell_market"
	CmdCancel     = "cancel"
	CmdPrice      = "price"
	CmdOrders     = "orders"
	CmdAllOrders  = "all_orders"
	CmdWallets    = "wallets"
	CmdFills      = "fills"
	CmdCompleted  = "completed"
	CmdAudit      = "audit"
	CmdShutdown   = "shutdown"
	CmdStart      = "start"
	CmdPause      = "pause"
)

// call is the per-request context handed to a handler.
type call struct {
	conn   string
	user   string // set once the auth gate passes
	params map[string]any
}

type handlerFunc func(p *Processor, c *call) (string, any, error)

type command struct {
	name string
	run  handlerFunc

	auth     bool // requires an authenticated session
	admin    bool // requires the admin secret
	pausable bool // refused while the server is paused
	mutating bool // refused once the exchange is closed
}

var commands = map[string]command{
	CmdRegister:   {name: CmdRegister, run: (*Processor).register, mutating: true},
	CmdAuth:       {name: CmdAuth, run: (*Processor).authenticate},
	CmdBcast:      {name: CmdBcast, run: (*Processor).bcast, auth: true, pausable: true, mutating: true},
	CmdBuy:        {name: CmdBuy, run: (*Processor).buy, auth: true, pausable: true, mutating: true},
	CmdBuyMarket:  {name: CmdBuyMarket, run: (*Processor).buyMarket, auth: true, pausable: true, mutating: true},
	CmdSell:       {name: CmdSell, run: (*Processor).sell, auth: true, pausable: true, mutating: true},
	CmdSellMarket: {name: CmdSellMarket, run: (*Processor).sellMarket, auth: true, pausable: true, mutating: true},
	CmdCancel:     {name: CmdCancel, run: (*Processor).cancel, auth: true, pausable: true, mutating: true},
	CmdPrice:      {name: CmdPrice, run: (*Processor).price, auth: true, pausable: true},
	CmdOrders:     {name: CmdOrders, run: (*Processor).orders, auth: true, pausable: true},
	CmdAllOrders:  {name: CmdAllOrders, run: (*Processor).allOrders, auth: true, pausable: true},
	CmdWallets:    {name: CmdWallets, run: (*Processor).wallets, auth: true, pausable: true},
	CmdFills:      {name: CmdFills, run: (*Processor).fills, auth: true, pausable: true},
	CmdCompleted:  {name: CmdCompleted, run: (*Processor).completed, auth: true, pausable: true},
	CmdAudit:      {name: CmdAudit, run: (*Processor).audit, auth: true, pausable: true},
	CmdShutdown:   {name: CmdShutdown, run: (*Processor).shutdown, auth: true, admin: true, pausable: true},
	CmdStart:      {name: CmdStart, run: (*Processor).start, auth: true, admin: true},
	CmdPause:      {name: CmdPause, run: (*Processor).pause, auth: true, admin: true, pausable: true},
}

func lookup(name string) (command, bool) {
	cmd, ok := commands[name]
	return cmd, ok
}

func (p *Processor) register(c *call) (string, any, error) {
	username := stringParam(c.params, "username")
	token, err := p.Users.Register(username)
	if err != nil {
		return "", nil, err
	}
	if err := p.Exchange.OpenAccount(username); err != nil {
		return "", nil, err
	}
	p.Sessions.Bind(c.conn, username)
	p.Pub.Publish(models.Event{Type: models.EventInfo, Message: "Registered: " + username})
	return "Registered", token, nil
}

func (p *Processor) authenticate(c *call) (string, any, error) {
	username := stringParam(c.params, "username")
	if err := p.Users.Authenticate(username, stringParam(c.params, "token")); err != nil {
		return "", nil, err
	}
	p.Sessions.Bind(c.conn, username)
	p.Pub.Publish(models.Event{Type: models.EventInfo, Message: "Authenticated: " + username})
	return "Authenticated", nil, nil
}

func (p *Processor) bcast(c *call) (string, any, error) {
	msg, present := c.params["message"]
	if !present {
		return "", nil, staticerr.Validation("Missing \"message\" in params.")
	}
	p.Pub.Publish(models.Event{Type: models.EventBcast, Message: msg, User: c.user})
	return "Message broadcasted.", nil, nil
}

func (p *Processor) buy(c *call) (string, any, error) {
	price, size, err := makerParams(c.params)
	if err != nil {
		return "", nil, err
	}
	order, err := p.Exchange.Buy(c.user, price, size)
	if err != nil {
		return "", nil, err
	}
	return "Buy order placed.", order, nil
}

func (p *Processor) sell(c *call) (string, any, error) {
	price, size, err := makerParams(c.params)
	if err != nil {
		return "", nil, err
	}
	order, err := p.Exchange.Sell(c.user, price, size)
	if err != nil {
		return "", nil, err
	}
	return "Sell order placed.", order, nil
}

func (p *Processor) buyMarket(c *call) (string, any, error) {
	amount, err := amountParam(c.params, money.CurrencyPlaces)
	if err != nil {
		return "", nil, err
	}
	order, err := p.Exchange.BuyMarket(c.user, amount)
	if err != nil {
		return "", nil, err
	}
	return "Market buy order placed.", order, nil
}

func (p *Processor) sellMarket(c *call) (string, any, error) {
	amount, err := amountParam(c.params, money.AssetPlaces)
	if err != nil {
		return "", nil, err
	}
	order, err := p.Exchange.SellMarket(c.user, amount)
	if err != nil {
		return "", nil, err
	}
	return "Market sell order placed.", order, nil
}

func (p *Processor) cancel(c *call) (string, any, error) {
	id := stringParam(c.params, "order_id")
	if id == "" {
		return "", nil, staticerr.Validation("Missing \"order_id\" in params.")
	}
	if err := p.Exchange.Cancel(c.user, id); err != nil {
		return "", nil, err
	}
	return "Order cancelled and removed.", nil, nil
}

func (p *Processor) price(c *call) (string, any, error) {
	return "Market price.", money.Fixed(p.Exchange.Price(), money.CurrencyPlaces), nil
}

func (p *Processor) orders(c *call) (string, any, error) {
	return "Open orders list.", p.Exchange.Orders(c.user), nil
}

func (p *Processor) allOrders(c *call) (string, any, error) {
	return "All orders list.", p.Exchange.AllOrders(), nil
}

func (p *Processor) wallets(c *call) (string, any, error) {
	w, ok := p.Exchange.Wallet(c.user)
	if !ok {
		return "", nil, staticerr.State("No wallet for %s.", c.user)
	}
	return "Wallets.", w, nil
}

func (p *Processor) fills(c *call) (string, any, error) {
	return "Here are your fills.", p.Exchange.Fills(c.user), nil
}

func (p *Processor) completed(c *call) (string, any, error) {
	return "Completed orders.", p.Exchange.Completed(), nil
}

func (p *Processor) audit(c *call) (string, any, error) {
	return "Audit done.", p.Exchange.Audit(), nil
}

// shutdown hands settlement to the lifecycle loop; running it here would
// re-enter the processor lock.
func (p *Processor) shutdown(c *call) (string, any, error) {
	p.Pub.Publish(models.Event{Type: models.EventShutdown, Message: "Shutdown command."})
	p.Life.RequestShutdown(lifecycle.ReasonShutdown)
	return "Command accepted. Shutting down.", nil, nil
}

func (p *Processor) start(c *call) (string, any, error) {
	p.Life.SetStarted(true)
	p.Pub.Publish(models.Event{Type: models.EventStart, Message: "Open for business."})
	return "Command accepted. Open for business.", nil, nil
}

func (p *Processor) pause(c *call) (string, any, error) {
	p.Life.SetStarted(false)
	p.Pub.Publish(models.Event{Type: models.EventPause, Message: "Server is paused."})
	return "Command accepted. Server is paused.", nil, nil
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func makerParams(params map[string]any) (price, size decimal.Decimal, err error) {
	rawPrice, hasPrice := params["price"]
	rawSize, hasSize := params["size"]
	if !hasPrice || !hasSize {
		return price, size, staticerr.Validation("Must have \"price\" and \"size\" in params.")
	}
	if price, err = money.Parse(rawPrice, money.CurrencyPlaces); err != nil {
		return price, size, staticerr.Validation("Invalid \"price\": %v", err)
	}
	if size, err = money.Parse(rawSize, money.AssetPlaces); err != nil {
		return price, size, staticerr.Validation("Invalid \"size\": %v", err)
	}
	return price, size, nil
}

func amountParam(params map[string]any, places int32) (decimal.Decimal, error) {
	raw, present := params["amount"]
	if !present {
		return decimal.Zero, staticerr.Validation("Must have \"amount\" in params.")
	}
	amount, err := money.Parse(raw, places)
	if err != nil {
		return decimal.Zero, staticerr.Validation("Invalid \"amount\": %v", err)
	}
	return amount, nil
}
