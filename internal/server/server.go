package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/appodealstack/playkit"
	"github.com/appodealstack/playkit/playstore"
)

const maxNotificationBytes = 1 << 20

var (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Billing is the read side of the purchase manager exposed over HTTP.
type Billing interface {
	Purchases() *playkit.PurchaseFeed
	Ready() bool
	ConnectionState() playkit.ConnState
}

// NotificationHandler consumes Real-time Developer Notifications.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, n playstore.DeveloperNotification) error
}

// Server serves purchase state and receives Play notifications.
type Server struct {
	billing  Billing
	notifier NotificationHandler
	logger   zerolog.Logger

	upgrader       websocket.Upgrader
	allowedOrigins map[string]struct{}

	// closes websocket streams on shutdown
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins lets browsers on other origins open the purchase stream.
// Without it only same-origin and non-browser clients are accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		for _, o := range origins {
			s.allowedOrigins[strings.ToLower(o)] = struct{}{}
		}
	}
}

// New returns a Server. notifier may be nil when notifications are not wired,
// in which case POST /rtdn answers 503.
func New(billing Billing, notifier NotificationHandler, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		billing:        billing,
		notifier:       notifier,
		logger:         logger.With().Str("component", "http").Logger(),
		allowedOrigins: make(map[string]struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin guards the purchase stream, which carries purchase tokens.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := s.allowedOrigins[strings.ToLower(origin)]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	s.logger.Warn().Str("origin", origin).Msg("Rejected purchase stream from foreign origin")
	return false
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rtdn", s.handleNotification)
	mux.HandleFunc("GET /purchases", s.handlePurchases)
	mux.HandleFunc("GET /purchases/stream", s.handleStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Close ends open purchase streams.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		http.Error(w, "notifications are not configured", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	n, err := playstore.DecodePushMessage(body)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rejecting malformed push message")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// A non-2xx answer makes Pub/Sub redeliver the message.
	if err := s.notifier.HandleNotification(r.Context(), n); err != nil {
		s.logger.Error().Err(err).Str("package", n.PackageName).Msg("notification handling failed")
		http.Error(w, "notification handling failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type purchasesResponse struct {
	Ready     bool               `json:"ready"`
	Published bool               `json:"published"`
	Purchases []playkit.Purchase `json:"purchases"`
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	purchases, published := s.billing.Purchases().Latest()
	if purchases == nil {
		purchases = []playkit.Purchase{}
	}
	writeJSON(w, http.StatusOK, purchasesResponse{
		Ready:     s.billing.Ready(),
		Published: published,
		Purchases: purchases,
	})
}

type healthResponse struct {
	Status     string `json:"status"`
	Connection string `json:"connection"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Connection: s.billing.ConnectionState().String()}
	status := http.StatusOK
	if !s.billing.Ready() {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleStream sends the current purchase list, then every update, as JSON
// text frames.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	feed := s.billing.Purchases()
	id, updates, snapshot := feed.Subscribe()
	defer feed.Unsubscribe(id)

	logger := s.logger.With().Str("subscriber", id).Logger()
	logger.Debug().Msg("purchase stream opened")

	// Reader: only needed to observe the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeFrame(conn, snapshot); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case purchases, ok := <-updates:
			if !ok {
				return
			}
			if err := writeFrame(conn, purchases); err != nil {
				logger.Debug().Err(err).Msg("purchase stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			logger.Debug().Msg("purchase stream closed by client")
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, purchases []playkit.Purchase) error {
	if purchases == nil {
		purchases = []playkit.Purchase{}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(purchases)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
