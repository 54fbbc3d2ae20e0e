package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"auctionchess/internal/lobby"
	"auctionchess/internal/store"
)

const tokenTTL = 24 * time.Hour

// Principal is the authenticated caller of a request
type Principal struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

func (p *Principal) Identity() lobby.Identity {
	return lobby.Identity(p.UserID)
}

// TokenStore caches login tokens in front of the database
type TokenStore struct {
	store  *store.Store
	logger *zap.Logger
	mu     sync.RWMutex
	cache  map[string]*Principal
	stopCh chan struct{}
	once   sync.Once
}

func NewTokenStore(s *store.Store, logger *zap.Logger) *TokenStore {
	ts := &TokenStore{
		store:  s,
		logger: logger,
		cache:  make(map[string]*Principal),
		stopCh: make(chan struct{}),
	}
	go ts.cleanupLoop()
	return ts
}

// cleanupLoop periodically removes expired tokens
func (ts *TokenStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ts.cleanup()
		case <-ts.stopCh:
			return
		}
	}
}

func (ts *TokenStore) cleanup() {
	ts.mu.Lock()
	now := time.Now()
	for token, p := range ts.cache {
		if now.After(p.ExpiresAt) {
			delete(ts.cache, token)
		}
	}
	ts.mu.Unlock()

	n, err := ts.store.CleanupExpiredTokens()
	if err != nil {
		ts.logger.Warn("token cleanup failed", zap.Error(err))
		return
	}
	if n > 0 {
		ts.logger.Debug("expired tokens removed", zap.Int64("count", n))
	}
}

// Stop halts the cleanup goroutine
func (ts *TokenStore) Stop() {
	ts.once.Do(func() { close(ts.stopCh) })
}

func (ts *TokenStore) Create(userID string) (*Principal, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	p := &Principal{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(tokenTTL),
	}
	if err := ts.store.CreateToken(p.Token, p.UserID, p.ExpiresAt); err != nil {
		return nil, err
	}

	ts.mu.Lock()
	ts.cache[token] = p
	ts.mu.Unlock()
	return p, nil
}

// Get returns the principal for token, or nil when it is unknown or expired
func (ts *TokenStore) Get(token string) *Principal {
	ts.mu.RLock()
	p, ok := ts.cache[token]
	ts.mu.RUnlock()
	if ok && time.Now().Before(p.ExpiresAt) {
		return p
	}

	row, err := ts.store.GetToken(token)
	if err != nil {
		ts.logger.Warn("token lookup failed", zap.Error(err))
		return nil
	}
	if row == nil {
		return nil
	}
	p = &Principal{Token: row.Token, UserID: row.UserID, ExpiresAt: row.ExpiresAt}
	ts.mu.Lock()
	ts.cache[token] = p
	ts.mu.Unlock()
	return p
}

func (ts *TokenStore) Delete(token string) error {
	ts.mu.Lock()
	delete(ts.cache, token)
	ts.mu.Unlock()
	return ts.store.DeleteToken(token)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type ProfileResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeErrorCode(w, http.StatusBadRequest, "invalid_credentials", "username and password required")
		return
	}
	if len(req.Username) < 3 || len(req.Username) > 32 {
		writeErrorCode(w, http.StatusBadRequest, "invalid_credentials", "username must be 3-32 characters")
		return
	}
	if len(req.Password) < 6 {
		writeErrorCode(w, http.StatusBadRequest, "invalid_credentials", "password must be at least 6 characters")
		return
	}

	user, err := s.store.CreateUser(req.Username, req.Password)
	if errors.Is(err, store.ErrUserExists) {
		writeErrorCode(w, http.StatusConflict, "username_taken", "username already taken")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.issueToken(w, r, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	user, err := s.store.AuthenticateUser(req.Username, req.Password)
	if errors.Is(err, store.ErrUserNotFound) || errors.Is(err, store.ErrInvalidPassword) {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "invalid username or password")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.issueToken(w, r, http.StatusOK, user)
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, status int, user *store.User) {
	p, err := s.tokens.Create(user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, AuthResponse{
		Token:    p.Token,
		UserID:   user.ID,
		Username: user.Username,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if err := s.tokens.Delete(p.Token); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	user, err := s.store.GetUserByID(p.UserID)
	if errors.Is(err, store.ErrUserNotFound) {
		writeErrorCode(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	})
}

type principalKey struct{}

func principalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// bearerToken reads the token from the Authorization header, falling back to
// the token query parameter for WebSocket clients that cannot set headers.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		return parts[1]
	}
	return r.URL.Query().Get("token")
}

// requireAuth rejects requests without a valid token and stores the caller's
// principal in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		p := s.tokens.Get(token)
		if p == nil {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}
