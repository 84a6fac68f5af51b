package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xtrntr/cxgame/internal/auth"
	"github.com/xtrntr/cxgame/internal/exchange"
	"github.com/xtrntr/cxgame/internal/models"
	"github.com/xtrntr/cxgame/internal/staticerr"
)

// Request is one inbound command frame.
type Request struct {
	Cmd    string         `json:"cmd"`
	Params map[string]any `json:"params"`
}

// Response is the reply to a command.
type Response struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func ok(msg string, data any) Response { return Response{Status: true, Message: msg, Data: data} }

func fail(msg string) Response { return Response{Status: false, Message: msg} }

// Lifecycle is the part of the game clock the processor consults.
type Lifecycle interface {
	Started() bool
	SetStarted(bool)
	Closed() bool
	RequestShutdown(reason string)
}

// Processor validates commands against session and lifecycle state, runs
// them against the exchange and then runs the matching passes. One mutex
// covers a command and its matching passes, so the exchange only ever sees
// one caller at a time.
type Processor struct {
	mu sync.Mutex

	Exchange *exchange.Exchange
	Users    *auth.AuthService
	Sessions *auth.Sessions
	Admin    *auth.AdminGate
	Life     Lifecycle
	Pub      exchange.Publisher

	log logrus.FieldLogger
}

// NewProcessor creates a new command processor
func NewProcessor(ex *exchange.Exchange, users *auth.AuthService, admin *auth.AdminGate,
	life Lifecycle, pub exchange.Publisher, log logrus.FieldLogger) *Processor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Processor{
		Exchange: ex,
		Users:    users,
		Sessions: auth.NewSessions(),
		Admin:    admin,
		Life:     life,
		Pub:      pub,
		log:      log,
	}
}

// HandleMessage decodes a raw frame and handles it. Frames that are not a
// JSON object with a known "cmd" and a "params" object get "Invalid message".
func (p *Processor) HandleMessage(conn string, raw []byte) []Response {
	req, err := decodeRequest(raw)
	if err != nil {
		p.log.WithError(err).WithField("conn", conn).Debug("invalid message")
		return []Response{fail("Invalid message")}
	}
	return p.Handle(conn, req)
}

func decodeRequest(raw []byte) (Request, error) {
	var frame struct {
		Cmd    *string        `json:"cmd"`
		Params map[string]any `json:"params"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&frame); err != nil {
		return Request{}, err
	}
	if frame.Cmd == nil {
		return Request{}, errors.New("missing cmd")
	}
	if frame.Params == nil {
		return Request{}, errors.New("missing params")
	}
	return Request{Cmd: *frame.Cmd, Params: frame.Params}, nil
}

// Handle runs one command for the connection and returns the replies to
// send back: the command result, followed by a matching error if a
// matching pass failed.
func (p *Processor) Handle(conn string, req Request) []Response {
	cmd, known := lookup(req.Cmd)
	if !known || req.Params == nil {
		return []Response{fail("Invalid message")}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.Life.Started() && cmd.pausable {
		return []Response{fail(staticerr.Lifecycle("Server is paused. Wait for admin \"start\" command.").Error())}
	}

	c := &call{conn: conn, params: req.Params}
	resp := p.dispatch(cmd, c)
	replies := []Response{resp}

	p.log.WithFields(logrus.Fields{
		"conn":   conn,
		"cmd":    cmd.name,
		"user":   c.user,
		"status": resp.Status,
	}).Debug("command handled")

	if !p.Life.Closed() {
		if err := p.match(); err != nil {
			replies = append(replies, fail(fmt.Sprintf("Command error: %s. error=%v", cmd.name, err)))
		}
	}
	return replies
}

// dispatch runs the gates and the handler, turning a handler panic into an
// error reply.
func (p *Processor) dispatch(cmd command, c *call) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(logrus.Fields{"cmd": cmd.name, "panic": r}).Error("command panicked")
			resp = fail(fmt.Sprintf("Invalid command: %s. error=%v", cmd.name, r))
		}
	}()

	if cmd.mutating && p.Life.Closed() {
		return fail(staticerr.Lifecycle("Exchange is closed.").Error())
	}
	if cmd.auth {
		user, err := p.Sessions.Require(c.conn)
		if err != nil {
			return fail(err.Error())
		}
		c.user = user
	}
	if cmd.admin {
		if err := p.Admin.Check(stringParam(c.params, "secret")); err != nil {
			return fail(err.Error())
		}
	}

	msg, data, err := cmd.run(p, c)
	if err != nil {
		if errors.Is(err, staticerr.ErrInvariant) {
			p.log.WithError(err).WithField("cmd", cmd.name).Error("book invariant violated")
		}
		return fail(err.Error())
	}
	return ok(msg, data)
}

// match runs the three matching passes in order. Each pass is recovered on
// its own so a failing pass does not skip the others.
func (p *Processor) match() error {
	var errs []error
	for _, pass := range []struct {
		name string
		run  func()
	}{
		{"market_buys", p.Exchange.MatchMarketBuys},
		{"market_sells", p.Exchange.MatchMarketSells},
		{"makers", p.Exchange.MatchMakers},
	} {
		if err := recoverPass(pass.run); err != nil {
			p.log.WithError(err).WithField("pass", pass.name).Error("matching pass failed")
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

func recoverPass(run func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	run()
	return nil
}

// Connect announces a new connection on the feed.
func (p *Processor) Connect(conn, remote string) {
	p.Pub.Publish(models.Event{Type: models.EventInfo, Message: fmt.Sprintf("New connection from %s", remote)})
	p.log.WithFields(logrus.Fields{"conn": conn, "remote": remote}).Info("client connected")
}

// Disconnect forgets the connection's session. Safe to call more than once.
func (p *Processor) Disconnect(conn string) {
	p.mu.Lock()
	p.Sessions.Unbind(conn)
	p.mu.Unlock()
	p.log.WithField("conn", conn).Info("client disconnected")
}

// Settle runs the final settlement for every registered user. The
// lifecycle controller calls it exactly once.
func (p *Processor) Settle(reason string) exchange.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Exchange.Settle(p.Users.Users(), reason)
}
