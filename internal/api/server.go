package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"auctionchess/internal/auction"
	"auctionchess/internal/errs"
	"auctionchess/internal/lobby"
	"auctionchess/internal/store"
)

// Options configures a Server
type Options struct {
	CORSOrigins []string // empty allows all origins
	RateLimit   int      // requests per minute per client, 0 disables
	HostColor   lobby.HostColor
	Logger      *zap.Logger
}

type Server struct {
	registry    *lobby.Registry
	hub         *Hub
	store       *store.Store
	tokens      *TokenStore
	rateLimiter *RateLimiter
	upgrader    websocket.Upgrader
	corsOrigins []string
	hostColor   lobby.HostColor
	logger      *zap.Logger
}

func NewServer(registry *lobby.Registry, st *store.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry:    registry,
		hub:         NewHub(),
		store:       st,
		tokens:      NewTokenStore(st, logger),
		corsOrigins: opts.CORSOrigins,
		hostColor:   opts.HostColor,
		logger:      logger,
	}
	if opts.RateLimit > 0 {
		s.rateLimiter = NewRateLimiter(opts.RateLimit, time.Minute)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.checkCORSOrigin(r.Header.Get("Origin"))
		},
	}
	return s
}

// checkCORSOrigin checks if an origin is allowed
func (s *Server) checkCORSOrigin(origin string) bool {
	if len(s.corsOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range s.corsOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	allowedOrigins := s.corsOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if s.rateLimiter != nil {
			r.Use(s.rateLimiter.Middleware)
		}

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/profile", s.handleProfile)

			r.Post("/lobbies", s.createLobby)
			r.Get("/lobbies/mine", s.myLobby)
			r.Route("/lobbies/{id}", func(r chi.Router) {
				r.Get("/", s.getLobby)
				r.Delete("/", s.deleteLobby)
				r.Post("/join", s.joinLobby)
				r.Post("/leave", s.leaveLobby)
				r.Post("/start", s.startGame)
				r.Post("/end", s.endGame)
				r.Get("/game", s.getGame)
				r.Post("/bid", s.submitBid)
				r.Post("/move", s.submitMove)
				r.Post("/resign", s.resign)
			})
		})
	})

	r.With(s.requireAuth).Get("/ws", s.handleWebSocket)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.registry.Len(),
		"clients":  s.hub.Len(),
	})
}

func lobbyID(r *http.Request) lobby.ID {
	return lobby.ID(strings.ToUpper(chi.URLParam(r, "id")))
}

func caller(r *http.Request) lobby.Identity {
	return principalFrom(r.Context()).Identity()
}

type CreateLobbyRequest struct {
	HostColor *lobby.HostColor `json:"host_color"`
}

func (s *Server) createLobby(w http.ResponseWriter, r *http.Request) {
	var req CreateLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorCode(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	hostColor := s.hostColor
	if req.HostColor != nil {
		hostColor = *req.HostColor
	}

	pkt, err := s.registry.Create(caller(r), hostColor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pkt)
}

func (s *Server) myLobby(w http.ResponseWriter, r *http.Request) {
	pkt, err := s.registry.GetByIdentity(caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkt)
}

func (s *Server) getLobby(w http.ResponseWriter, r *http.Request) {
	pkt, err := s.registry.Get(lobbyID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkt)
}

func (s *Server) joinLobby(w http.ResponseWriter, r *http.Request) {
	pkt, err := s.registry.Join(lobbyID(r), caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkt)
}

func (s *Server) leaveLobby(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, r, s.registry.Leave(lobbyID(r), caller(r)))
}

func (s *Server) deleteLobby(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, r, s.registry.Delete(lobbyID(r), caller(r)))
}

func (s *Server) endGame(w http.ResponseWriter, r *http.Request) {
	s.noContent(w, r, s.registry.End(lobbyID(r), caller(r)))
}

func (s *Server) noContent(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startGame(w http.ResponseWriter, r *http.Request) {
	game, err := s.registry.Start(lobbyID(r), caller(r))
	s.respondGame(w, r, game, err)
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	game, err := s.registry.Game(lobbyID(r))
	s.respondGame(w, r, game, err)
}

// respondGame writes the game state an action produced, or its error.
func (s *Server) respondGame(w http.ResponseWriter, r *http.Request, game lobby.GamePacket, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// BidRequest is {"type":"raise","amount":n} or {"type":"fold"}
type BidRequest struct {
	Type   string `json:"type"`
	Amount *int64 `json:"amount"`
}

func (b BidRequest) Action() (auction.BidAction, error) {
	switch b.Type {
	case "raise":
		if b.Amount == nil {
			return nil, fmt.Errorf("%w: raise needs an amount", auction.ErrInvalidBid)
		}
		return auction.Raise{Amount: *b.Amount}, nil
	case "fold":
		return auction.Fold{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown bid type %q", auction.ErrInvalidBid, b.Type)
	}
}

type MoveRequest struct {
	Move string `json:"move"`
}

func (s *Server) submitBid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	action, err := req.Action()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	game, err := s.registry.SubmitBid(lobbyID(r), caller(r), action)
	s.respondGame(w, r, game, err)
}

func (s *Server) submitMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	game, err := s.registry.SubmitMove(lobbyID(r), caller(r), auction.Move(strings.ToLower(req.Move)))
	s.respondGame(w, r, game, err)
}

func (s *Server) resign(w http.ResponseWriter, r *http.Request) {
	game, err := s.registry.Resign(lobbyID(r), caller(r))
	s.respondGame(w, r, game, err)
}

// Frame is an inbound WebSocket message
type Frame struct {
	Type string      `json:"type"`
	Bid  *BidRequest `json:"bid,omitempty"`
	Move string      `json:"move,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := lobby.ID(strings.ToUpper(r.URL.Query().Get("lobby")))
	identity := caller(r)

	if _, err := s.registry.Get(id); err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(s.hub, conn, id, identity, s.logger)
	s.hub.Register(client)
	go client.WritePump()

	if err := s.registry.SetChannel(id, identity, client); err != nil {
		client.sendError(errs.CodeOf(err), err.Error())
		s.hub.Unregister(client)
		return
	}
	client.logger.Debug("client connected")

	go func() {
		client.ReadPump(s.handleFrame)
		s.registry.ClearChannel(id, identity, client)
		client.logger.Debug("client disconnected")
	}()
}

// handleFrame routes one inbound frame. Failures go back to the sender only.
func (s *Server) handleFrame(c *Client, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.sendError("invalid_frame", "malformed message")
		return
	}

	var err error
	switch f.Type {
	case "bid":
		if f.Bid == nil {
			err = fmt.Errorf("%w: missing bid", auction.ErrInvalidBid)
			break
		}
		var action auction.BidAction
		if action, err = f.Bid.Action(); err == nil {
			_, err = s.registry.SubmitBid(c.lobby, c.identity, action)
		}
	case "move":
		_, err = s.registry.SubmitMove(c.lobby, c.identity, auction.Move(strings.ToLower(f.Move)))
	case "resign":
		_, err = s.registry.Resign(c.lobby, c.identity)
	default:
		c.sendError("invalid_frame", fmt.Sprintf("unknown message type %q", f.Type))
		return
	}

	if err != nil {
		if errs.KindOf(err) == errs.KindUnknown {
			c.logger.Error("frame failed", zap.String("type", f.Type), zap.Error(err))
			c.sendError("internal", "internal error")
			return
		}
		c.sendError(errs.CodeOf(err), err.Error())
	}
}

// Shutdown stops background goroutines and closes every connection
func (s *Server) Shutdown() {
	s.tokens.Stop()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.hub.CloseAll()
}
