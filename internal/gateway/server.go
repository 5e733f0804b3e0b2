package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fractalmind-ai/translatebot/internal/config"
	"github.com/fractalmind-ai/translatebot/internal/pipeline"
	"github.com/fractalmind-ai/translatebot/pkg/protocol"
)

// StatusSource reports the translation pipeline state.
type StatusSource interface {
	Status() pipeline.Status
}

// ChannelLister reports the state of the chat channels.
type ChannelLister interface {
	List() []protocol.ChannelInfo
}

// ShareCounter reports how many shares have been recorded.
type ShareCounter interface {
	Count(ctx context.Context) (int, error)
}

// Deps are the optional sources behind /status.
type Deps struct {
	Pipeline StatusSource
	Channels ChannelLister
	History  ShareCounter
}

// Server represents the gateway WebSocket server
type Server struct {
	config       *config.GatewayConfig
	deps         Deps
	logger       zerolog.Logger
	upgrader     websocket.Upgrader
	clients      map[string]*Client
	clientsMutex sync.RWMutex
	httpServer   *http.Server
	startTime    time.Time
}

// NewServer creates a new gateway server
func NewServer(cfg *config.GatewayConfig, deps Deps, logger zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gateway config is required")
	}

	return &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     buildOriginChecker(cfg.AllowedOrigins),
		},
		clients: make(map[string]*Client),
	}, nil
}

// AttachPipeline sets the status source once the pipeline exists. Call it
// before Start.
func (s *Server) AttachPipeline(p StatusSource) {
	s.deps.Pipeline = p
}

// Handler returns the gateway routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Start serves HTTP until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.startTime.IsZero() {
		s.startTime = time.Now()
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Bind, s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("🌐 HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("gateway server error: %w", err)
	}
}

// Stop disconnects clients and shuts the HTTP server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, client := range s.snapshotClients() {
		client.Close()
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}
	return nil
}

// Publish broadcasts msg to every subscribed client. Clients that cannot
// keep up are disconnected.
func (s *Server) Publish(msg *protocol.Message) {
	if msg == nil {
		return
	}
	for _, client := range s.snapshotClients() {
		if !client.Subscribed() {
			continue
		}
		if err := client.Send(msg); err != nil {
			s.logger.Warn().Err(err).Str("client", client.ID).Msg("⚠️ dropping websocket client")
			client.Close()
		}
	}
}

func buildOriginChecker(allowed []string) func(*http.Request) bool {
	configured := len(allowed) > 0
	allowedSet := make(map[string]struct{})
	for _, origin := range allowed {
		normalized, ok := normalizeOrigin(origin)
		if !ok {
			continue
		}
		allowedSet[normalized] = struct{}{}
	}

	return func(r *http.Request) bool {
		if !configured {
			return true
		}
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return false
		}
		normalized, ok := normalizeOrigin(origin)
		if !ok {
			return false
		}
		_, ok = allowedSet[normalized]
		return ok
	}
}

func normalizeOrigin(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return fmt.Sprintf("%s://%s", strings.ToLower(parsed.Scheme), strings.ToLower(parsed.Host)), true
}

// handleWebSocket handles incoming WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	clientID := r.URL.Query().Get("session")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	client := NewClient(clientID, conn, s)

	s.clientsMutex.Lock()
	if previous, ok := s.clients[clientID]; ok {
		defer previous.Close()
	}
	s.clients[clientID] = client
	s.clientsMutex.Unlock()

	s.logger.Info().Str("client", clientID).Msg("🔌 Client connected")

	go client.Handle()
}

type statusResponse struct {
	Status        string                 `json:"status"`
	ActiveClients int                    `json:"active_clients"`
	Uptime        string                 `json:"uptime"`
	StartedAt     string                 `json:"started_at,omitempty"`
	Channels      []protocol.ChannelInfo `json:"channels,omitempty"`
	Pipeline      *pipeline.Status       `json:"pipeline,omitempty"`
	Shares        *int                   `json:"shares,omitempty"`
}

func (s *Server) status(ctx context.Context) statusResponse {
	resp := statusResponse{
		Status:        "ok",
		ActiveClients: s.activeClients(),
		Uptime:        "0s",
	}
	if !s.startTime.IsZero() {
		resp.Uptime = time.Since(s.startTime).Round(time.Second).String()
		resp.StartedAt = humanize.Time(s.startTime)
	}
	if s.deps.Channels != nil {
		resp.Channels = s.deps.Channels.List()
	}
	if s.deps.Pipeline != nil {
		st := s.deps.Pipeline.Status()
		resp.Pipeline = &st
	}
	if s.deps.History != nil {
		count, err := s.deps.History.Count(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("⚠️ failed to count shares")
			resp.Status = "degraded"
		} else {
			resp.Shares = &count
		}
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.status(r.Context()))
}

func (s *Server) activeClients() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

func (s *Server) snapshotClients() []*Client {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()

	clients := make([]*Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}
	return clients
}

// removeClient forgets client unless its session id was taken over.
func (s *Server) removeClient(client *Client) {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	if current, ok := s.clients[client.ID]; ok && current == client {
		delete(s.clients, client.ID)
	}
}
