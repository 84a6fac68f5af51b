package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/cxgame/internal/api"
	"github.com/xtrntr/cxgame/internal/auth"
	"github.com/xtrntr/cxgame/internal/config"
	"github.com/xtrntr/cxgame/internal/db"
	"github.com/xtrntr/cxgame/internal/exchange"
	"github.com/xtrntr/cxgame/internal/feed"
	"github.com/xtrntr/cxgame/internal/lifecycle"
)

// Main entry point: sets up the exchange, the feed and both websocket servers
func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log.SetLevel(cfg.LogLevel)
	if cfg.AdminSecret == config.DefaultAdminSecret {
		log.Warn("default admin password in use")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := feed.NewQueue(log)
	hub := feed.NewHub(log)
	var workers sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := fn(ctx); err != nil {
				log.WithError(err).WithField("worker", name).Error("worker stopped")
			}
		}()
	}

	// Optional event journal
	if cfg.DatabaseURL != "" {
		database, err := db.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to database")
		}
		defer database.Close()
		if err := database.Migrate(ctx, cfg.MigrationsDir); err != nil {
			log.WithError(err).Fatal("failed to migrate database")
		}
		journal := db.NewJournal(database, 1024, log.WithField("component", "journal"))
		hub.Subscribe(journal)
		run("journal", journal.Run)
		log.Info("journaling events to postgres")
	}

	// Optional feed mirror
	if cfg.AMQPURL != "" {
		sink, conn, err := feed.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, log.WithField("component", "amqp"))
		if err != nil {
			log.WithError(err).Fatal("failed to connect to amqp")
		}
		defer conn.Close()
		hub.Subscribe(sink)
		log.WithField("exchange", cfg.AMQPExchange).Info("mirroring feed to amqp")
	}

	tokenSecret := []byte(cfg.TokenSecret)
	if len(tokenSecret) == 0 {
		tokenSecret = make([]byte, 32)
		if _, err := rand.Read(tokenSecret); err != nil {
			log.WithError(err).Fatal("failed to generate token secret")
		}
	}
	users, err := auth.NewAuthService(auth.Options{
		Secret:    tokenSecret,
		Whitelist: cfg.Whitelist,
		UserLimit: cfg.UserLimit,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to create auth service")
	}
	admin, err := auth.NewAdminGate(cfg.AdminSecret, bcrypt.DefaultCost)
	if err != nil {
		log.WithError(err).Fatal("failed to create admin gate")
	}

	ex := exchange.NewExchange(exchange.Config{
		StartPrice:    cfg.StartPrice,
		CurrencyStart: cfg.CurrencyStart,
		AssetStart:    cfg.AssetStart,
	}, queue, log.WithField("component", "exchange"))

	var proc *api.Processor
	life := lifecycle.New(cfg.Started, cfg.TimeLimit, func(reason string) {
		report := proc.Settle(reason)
		log.WithField("final_price", report.Price.StringFixed(2)).Info("final holdings\n" + report.CSV)
	}, log.WithField("component", "lifecycle"))
	proc = api.NewProcessor(ex, users, admin, life, queue, log.WithField("component", "processor"))

	run("feed", func(ctx context.Context) error { return hub.Run(ctx, queue) })
	run("lifecycle", func(ctx context.Context) error { return life.Run(ctx, 100*time.Millisecond) })

	srv := api.NewServer(proc, hub, log)
	servers := []*http.Server{
		{Addr: cfg.ExchangeAddr(), Handler: srv.ExchangeRouter()},
		{Addr: cfg.FeedAddr(), Handler: srv.FeedRouter()},
	}

	var tlsConfig *tls.Config
	if cfg.PemFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.PemFile, cfg.PemFile)
		if err != nil {
			log.WithError(err).Fatal("failed to load pem file")
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	for _, s := range servers {
		s := s
		s.TLSConfig = tlsConfig
		go func() {
			log.WithFields(logrus.Fields{"addr": s.Addr, "tls": tlsConfig != nil}).Info("starting server")
			var err error
			if tlsConfig != nil {
				err = s.ListenAndServeTLS("", "")
			} else {
				err = s.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).WithField("addr", s.Addr).Fatal("server failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).WithField("addr", s.Addr).Warn("server shutdown failed")
		}
	}
	workers.Wait()
}
