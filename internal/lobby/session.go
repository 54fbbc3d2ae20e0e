package lobby

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"auctionchess/internal/auction"
)

// Session pairs a host and an optional guest with at most one running
// engine. All mutations hold mu; packets are sent while it is held so both
// members observe them in the order the mutations were applied.
type Session struct {
	mu sync.RWMutex

	id        ID
	host      Identity
	guest     *Identity
	status    Status
	hostColor HostColor
	createdAt time.Time

	channels map[Identity]Channel
	players  [2]Identity
	engine   *auction.Engine

	oracle auction.Oracle
	rules  auction.Rules
	logger *zap.Logger
}

func newSession(id ID, host Identity, hostColor HostColor, oracle auction.Oracle, rules auction.Rules, logger *zap.Logger) *Session {
	return &Session{
		id:        id,
		host:      host,
		status:    Pending,
		hostColor: hostColor,
		createdAt: time.Now().UTC(),
		channels:  make(map[Identity]Channel),
		oracle:    oracle,
		rules:     rules,
		logger:    logger.With(zap.String("session", string(id))),
	}
}

func (s *Session) ID() ID {
	return s.id
}

// Packet returns the session profile.
func (s *Session) Packet() SessionPacket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionPacket()
}

// Game returns the current game state, or ErrNotActive before start.
func (s *Session) Game() (GamePacket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.engine == nil {
		return GamePacket{}, ErrNotActive
	}
	return newGamePacket(s.id, s.engine, s.players), nil
}

func (s *Session) sessionPacket() SessionPacket {
	var guest *Identity
	if s.guest != nil {
		g := *s.guest
		guest = &g
	}
	return SessionPacket{
		Type:      "session",
		ID:        s.id,
		Status:    s.status,
		Host:      s.host,
		Guest:     guest,
		HostColor: s.hostColor,
		CreatedAt: s.createdAt,
	}
}

func (s *Session) isMember(identity Identity) bool {
	return identity == s.host || (s.guest != nil && *s.guest == identity)
}

func (s *Session) join(guest Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if guest == s.host {
		return ErrSelfJoin
	}
	if s.guest != nil {
		return ErrAlreadyFull
	}
	s.guest = &guest
	s.logger.Debug("guest joined", zap.String("guest", string(guest)))
	s.broadcast(s.sessionPacket())
	return nil
}

// leave removes identity from the session. It reports true when the host
// left an empty session, which the caller must then drop.
func (s *Session) leave(identity Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.guest != nil && *s.guest == identity:
		s.guest = nil
	case identity == s.host && s.guest == nil:
		s.broadcast(ClosedPacket{Type: "closed", ID: s.id})
		s.channels = make(map[Identity]Channel)
		s.logger.Debug("host left empty session")
		return true, nil
	case identity == s.host:
		s.host = *s.guest
		s.guest = nil
		s.logger.Debug("guest promoted to host", zap.String("host", string(s.host)))
	default:
		return false, ErrIllegalPermission
	}

	delete(s.channels, identity)
	s.status = Pending
	s.engine = nil
	s.players = [2]Identity{}
	s.broadcast(s.sessionPacket())
	return false, nil
}

// start seats both members and returns the opening game state.
func (s *Session) start(caller Identity) (GamePacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.host {
		if s.isMember(caller) {
			return GamePacket{}, ErrNotHost
		}
		return GamePacket{}, ErrIllegalPermission
	}
	if s.status == Active {
		return GamePacket{}, ErrAlreadyStarted
	}
	if s.guest == nil {
		return GamePacket{}, ErrNotReady
	}

	engine, err := auction.New(s.oracle, s.rules)
	if err != nil {
		return GamePacket{}, fmt.Errorf("start session %s: %w", s.id, err)
	}

	hostSide := auction.First
	switch s.hostColor {
	case HostSecond:
		hostSide = auction.Second
	case HostRandom:
		if rand.IntN(2) == 1 {
			hostSide = auction.Second
		}
	}
	s.players[hostSide] = s.host
	s.players[hostSide.Opponent()] = *s.guest
	s.engine = engine
	s.status = Active

	s.logger.Info("game started",
		zap.String("first", string(s.players[auction.First])),
		zap.String("second", string(s.players[auction.Second])),
	)
	game := newGamePacket(s.id, s.engine, s.players)
	s.broadcast(s.sessionPacket(), game)
	return game, nil
}

// end returns an active session to Pending so the pair can start a rematch.
func (s *Session) end(caller Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.host {
		if s.isMember(caller) {
			return ErrNotHost
		}
		return ErrIllegalPermission
	}
	if s.status != Active {
		return ErrNotActive
	}
	s.status = Pending
	s.engine = nil
	s.players = [2]Identity{}
	s.broadcast(s.sessionPacket())
	return nil
}

// checkDelete verifies caller may delete the session and returns the members
// to unmap.
func (s *Session) checkDelete(caller Identity) ([]Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if caller != s.host {
		if s.isMember(caller) {
			return nil, ErrNotHost
		}
		return nil, ErrIllegalPermission
	}
	members := []Identity{s.host}
	if s.guest != nil {
		members = append(members, *s.guest)
	}
	return members, nil
}

// close notifies members and drops every channel reference.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.broadcast(ClosedPacket{Type: "closed", ID: s.id})
	s.channels = make(map[Identity]Channel)
	s.engine = nil
}

func (s *Session) submitBid(identity Identity, action auction.BidAction) (GamePacket, error) {
	return s.play(identity, func(c auction.Color) error {
		return s.engine.SubmitBid(c, action)
	})
}

func (s *Session) submitMove(identity Identity, move auction.Move) (GamePacket, error) {
	return s.play(identity, func(c auction.Color) error {
		return s.engine.SubmitMove(c, move)
	})
}

func (s *Session) resign(identity Identity) (GamePacket, error) {
	return s.play(identity, func(c auction.Color) error {
		return s.engine.Resign(c)
	})
}

// play runs one engine action for identity. On success it broadcasts the
// resulting game state and returns that same packet.
func (s *Session) play(identity Identity, action func(auction.Color) error) (GamePacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isMember(identity) {
		return GamePacket{}, ErrIllegalPermission
	}
	if s.status != Active || s.engine == nil {
		return GamePacket{}, ErrNotActive
	}
	color, ok := s.colorOf(identity)
	if !ok {
		return GamePacket{}, ErrIllegalPermission
	}
	if err := action(color); err != nil {
		return GamePacket{}, err
	}

	if out, over := s.engine.Outcome(); over {
		s.logger.Info("game over", zap.Stringer("outcome", out))
	}
	game := newGamePacket(s.id, s.engine, s.players)
	s.broadcast(game)
	return game, nil
}

func (s *Session) colorOf(identity Identity) (auction.Color, bool) {
	switch identity {
	case s.players[auction.First]:
		return auction.First, true
	case s.players[auction.Second]:
		return auction.Second, true
	}
	return 0, false
}

func (s *Session) setChannel(identity Identity, ch Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isMember(identity) {
		return ErrIllegalPermission
	}
	s.channels[identity] = ch

	pkts := []Packet{s.sessionPacket()}
	if s.status == Active && s.engine != nil {
		pkts = append(pkts, newGamePacket(s.id, s.engine, s.players))
	}
	s.broadcast(pkts...)
	return nil
}

// clearChannel drops identity's channel if it is still ch. A nil ch clears
// unconditionally.
func (s *Session) clearChannel(identity Identity, ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.channels[identity]
	if !ok {
		return
	}
	if ch != nil && current != ch {
		return
	}
	delete(s.channels, identity)
}

// broadcast sends pkts to every connected member, host first. A failed send
// is logged and does not stop delivery to the other member.
func (s *Session) broadcast(pkts ...Packet) {
	members := []Identity{s.host}
	if s.guest != nil {
		members = append(members, *s.guest)
	}

	var err error
	for _, identity := range members {
		ch, ok := s.channels[identity]
		if !ok {
			continue
		}
		for _, pkt := range pkts {
			if sendErr := ch.Send(pkt); sendErr != nil {
				err = multierr.Append(err, fmt.Errorf("send %s to %s: %w", pkt.PacketType(), identity, sendErr))
			}
		}
	}
	if err != nil {
		s.logger.Warn("broadcast incomplete", zap.Errors("errors", multierr.Errors(err)))
	}
}
