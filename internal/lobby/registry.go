package lobby

import (
	"crypto/rand"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"auctionchess/internal/auction"
)

const (
	idAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	idLength      = 6
	idMaxAttempts = 100
)

// Registry owns every live session and keeps each identity seated in at most
// one of them. Lock order is registry then session.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[ID]*Session
	byIdentity map[Identity]ID

	oracle auction.Oracle
	rules  auction.Rules
	logger *zap.Logger
	newID  func() (ID, error)
}

// NewRegistry returns an empty registry whose games are played under rules.
func NewRegistry(oracle auction.Oracle, rules auction.Rules, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions:   make(map[ID]*Session),
		byIdentity: make(map[Identity]ID),
		oracle:     oracle,
		rules:      rules,
		logger:     logger,
		newID:      generateID,
	}
}

// generateID returns a random code drawn from an alphabet without look-alike
// characters.
func generateID() (ID, error) {
	size := big.NewInt(int64(len(idAlphabet)))
	code := make([]byte, idLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		code[i] = idAlphabet[n.Int64()]
	}
	return ID(code), nil
}

// allocateID must be called with mu held.
func (r *Registry) allocateID() (ID, error) {
	for range idMaxAttempts {
		id, err := r.newID()
		if err != nil {
			return "", err
		}
		if _, taken := r.sessions[id]; !taken {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

// Create opens a new pending session hosted by identity.
func (r *Registry) Create(identity Identity, hostColor HostColor) (SessionPacket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byIdentity[identity]; ok {
		return SessionPacket{}, &AlreadyActiveError{ID: existing}
	}
	id, err := r.allocateID()
	if err != nil {
		return SessionPacket{}, err
	}

	s := newSession(id, identity, hostColor, r.oracle, r.rules, r.logger)
	r.sessions[id] = s
	r.byIdentity[identity] = id
	r.logger.Info("session created", zap.String("session", string(id)), zap.String("host", string(identity)))
	return s.Packet(), nil
}

func (r *Registry) Get(id ID) (SessionPacket, error) {
	s, err := r.lookup(id)
	if err != nil {
		return SessionPacket{}, err
	}
	return s.Packet(), nil
}

// GetByIdentity returns the session identity is seated in.
func (r *Registry) GetByIdentity(identity Identity) (SessionPacket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byIdentity[identity]
	if !ok {
		return SessionPacket{}, ErrNotFound
	}
	return r.sessions[id].Packet(), nil
}

func (r *Registry) Game(id ID) (GamePacket, error) {
	s, err := r.lookup(id)
	if err != nil {
		return GamePacket{}, err
	}
	return s.Game()
}

func (r *Registry) lookup(id ID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Join seats identity as the guest of session id.
func (r *Registry) Join(id ID, identity Identity) (SessionPacket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return SessionPacket{}, ErrNotFound
	}
	if existing, seated := r.byIdentity[identity]; seated && existing != id {
		return SessionPacket{}, &AlreadyActiveError{ID: existing}
	}
	if err := s.join(identity); err != nil {
		return SessionPacket{}, err
	}
	r.byIdentity[identity] = id
	return s.Packet(), nil
}

// Leave removes identity from session id, dropping the session when its host
// leaves it empty.
func (r *Registry) Leave(id ID, identity Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	deleted, err := s.leave(identity)
	if err != nil {
		return err
	}
	delete(r.byIdentity, identity)
	if deleted {
		delete(r.sessions, id)
		r.logger.Info("session deleted", zap.String("session", string(id)), zap.String("reason", "host left"))
	}
	return nil
}

func (r *Registry) Start(id ID, caller Identity) (GamePacket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return GamePacket{}, ErrNotFound
	}
	return s.start(caller)
}

// End stops the running game and returns the session to pending.
func (r *Registry) End(id ID, caller Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	return s.end(caller)
}

// Delete closes session id on behalf of its host and unseats both members.
func (r *Registry) Delete(id ID, caller Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	members, err := s.checkDelete(caller)
	if err != nil {
		return err
	}
	s.close()
	for _, m := range members {
		delete(r.byIdentity, m)
	}
	delete(r.sessions, id)
	r.logger.Info("session deleted", zap.String("session", string(id)), zap.String("reason", "host deleted"))
	return nil
}

func (r *Registry) SubmitBid(id ID, identity Identity, action auction.BidAction) (GamePacket, error) {
	s, err := r.lookup(id)
	if err != nil {
		return GamePacket{}, err
	}
	return s.submitBid(identity, action)
}

func (r *Registry) SubmitMove(id ID, identity Identity, move auction.Move) (GamePacket, error) {
	s, err := r.lookup(id)
	if err != nil {
		return GamePacket{}, err
	}
	return s.submitMove(identity, move)
}

func (r *Registry) Resign(id ID, identity Identity) (GamePacket, error) {
	s, err := r.lookup(id)
	if err != nil {
		return GamePacket{}, err
	}
	return s.resign(identity)
}

// SetChannel attaches ch as identity's connection to session id.
func (r *Registry) SetChannel(id ID, identity Identity, ch Channel) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	return s.setChannel(identity, ch)
}

// ClearChannel detaches ch if it is still identity's connection. Missing
// sessions are ignored since the connection may outlive its session.
func (r *Registry) ClearChannel(id ID, identity Identity, ch Channel) {
	s, err := r.lookup(id)
	if err != nil {
		return
	}
	s.clearChannel(identity, ch)
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown closes every session and reports how many were open.
func (r *Registry) Shutdown() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.sessions)
	for id, s := range r.sessions {
		s.close()
		delete(r.sessions, id)
	}
	clear(r.byIdentity)
	r.logger.Info("registry shut down", zap.Int("sessions", n))
	return n
}
