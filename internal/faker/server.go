package faker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gex-live/internal/token"
)

// Options configures a fake feed server.
type Options struct {
	// Token is the only feed token accepted; empty accepts any non-empty token.
	Token string
	// SessionToken guards the quote-token endpoint; empty accepts any value.
	SessionToken string
	// Interval between FEED_DATA snapshots. Defaults to one second.
	Interval time.Duration
	// Stall never reports an auth state, only keepalives.
	Stall bool
}

// Server is a dxLink-compatible feed backed by a synthetic Market.
type Server struct {
	hub          *Hub
	market       *Market
	token        string
	sessionToken string
	interval     time.Duration
	stall        bool
	logger       *zap.Logger
}

// NewServer creates a new Server. Run must be started before serving.
func NewServer(market *Market, opts Options, logger *zap.Logger) *Server {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}

	return &Server{
		hub:          NewHub(logger),
		market:       market,
		token:        opts.Token,
		sessionToken: opts.SessionToken,
		interval:     interval,
		stall:        opts.Stall,
		logger:       logger,
	}
}

// Run drives the connection hub until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// ActiveConnections returns the number of open feed sessions.
func (s *Server) ActiveConnections() int {
	return s.hub.ActiveConnections()
}

func (s *Server) validToken(candidate string) bool {
	if candidate == "" {
		return false
	}
	return s.token == "" || candidate == s.token
}

// quoteTokenResponse matches the broker's /api-quote-tokens payload.
type quoteTokenResponse struct {
	Data quoteTokenData `json:"data"`
}

type quoteTokenData struct {
	Token     string `json:"token"`
	DxlinkURL string `json:"dxlink-url"`
	Level     string `json:"level"`
}

// HandleQuoteToken handles GET /api-quote-tokens.
// The session token is passed verbatim in the Authorization header.
func (s *Server) HandleQuoteToken(w http.ResponseWriter, r *http.Request) {
	session := r.Header.Get("Authorization")
	if session == "" || (s.sessionToken != "" && session != s.sessionToken) {
		s.logger.Debug("quote token request unauthorized", zap.String("session", token.MaskToken(session)))
		http.Error(w, `{"error":"invalid session"}`, http.StatusUnauthorized)
		return
	}

	feedToken := s.token
	if feedToken == "" {
		feedToken = uuid.New().String()
	}

	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}

	response := quoteTokenResponse{
		Data: quoteTokenData{
			Token:     feedToken,
			DxlinkURL: fmt.Sprintf("%s://%s/realtime", scheme, r.Host),
			Level:     "api",
		},
	}

	s.logger.Debug("quote token issued", zap.String("token", token.MaskToken(feedToken)))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("failed to encode quote token response", zap.Error(err))
	}
}

// NewRouter wires the feed, quote-token and health endpoints.
func NewRouter(s *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/realtime", s.HandleRealtime)
	r.Get("/api-quote-tokens", s.HandleQuoteToken)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"connections": s.ActiveConnections(),
			"underlying":  s.market.Underlying,
			"spot":        s.market.Spot,
		})
	})

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r)
		})
	}
}
