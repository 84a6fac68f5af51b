package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/xtrntr/cxgame/internal/feed"
)

const writeWait = 10 * time.Second

// Server exposes the processor and the feed hub over websockets.
type Server struct {
	Processor *Processor
	Hub       *feed.Hub

	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewServer creates the websocket front end
func NewServer(proc *Processor, hub *feed.Hub, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		Processor: proc,
		Hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // game clients connect from anywhere
			},
		},
		log: log,
	}
}

// ExchangeRouter serves the command endpoint at "/" and "/exchange".
func (s *Server) ExchangeRouter() http.Handler {
	r := newRouter()
	r.Get("/", s.handleExchange)
	r.Get("/exchange", s.handleExchange)
	return r
}

// FeedRouter serves the event feed at "/" and "/feed".
func (s *Server) FeedRouter() http.Handler {
	r := newRouter()
	r.Get("/", s.handleFeed)
	r.Get("/feed", s.handleFeed)
	return r
}

func newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return r
}

// handleExchange runs one session: every inbound frame is a command and
// every reply is written back on the same connection.
func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("failed to upgrade exchange connection")
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	s.Processor.Connect(id, r.RemoteAddr)
	defer s.Processor.Disconnect(id)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).WithField("conn", id).Debug("exchange read failed")
			}
			return
		}
		for _, reply := range s.Processor.HandleMessage(id, msg) {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(reply); err != nil {
				s.log.WithError(err).WithField("conn", id).Debug("exchange write failed")
				return
			}
		}
	}
}

// wsClient is a feed subscriber. The hub may call Send from its own
// goroutine while the handler is closing, hence the mutex.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// handleFeed subscribes the connection to the hub until it goes away.
// Inbound frames are read and discarded so close frames are noticed.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("failed to upgrade feed connection")
		return
	}
	client := &wsClient{conn: conn}
	id := s.Hub.Subscribe(client)
	s.log.WithFields(logrus.Fields{"subscriber": id, "remote": r.RemoteAddr}).Info("feed subscriber joined")

	defer func() {
		s.Hub.Unsubscribe(id)
		client.mu.Lock()
		conn.Close()
		client.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
