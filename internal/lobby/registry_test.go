package lobby

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auctionchess/internal/auction"
	"auctionchess/internal/errs"
)

type stubOracle struct{}

func (stubOracle) Apply(board string, side auction.Color, move auction.Move) (string, error) {
	if move == "a1a8" {
		return "", errors.New("no")
	}
	return board + " " + string(move), nil
}

func (stubOracle) LegalMoves(board string, side auction.Color) []auction.Move {
	return []auction.Move{"e2e4"}
}

func (stubOracle) Winner(board string) (auction.Color, bool) {
	return 0, false
}

func (stubOracle) Status(board string, side auction.Color) auction.BoardStatus {
	return auction.Playable
}

type recorder struct {
	mu      sync.Mutex
	packets []Packet
	fail    bool
}

func (r *recorder) Send(p Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("buffer full")
	}
	r.packets = append(r.packets, p)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.packets))
	for i, p := range r.packets {
		out[i] = p.PacketType()
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.packets = nil
	r.mu.Unlock()
}

func (r *recorder) last() Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.packets) == 0 {
		return nil
	}
	return r.packets[len(r.packets)-1]
}

func newTestRegistry() *Registry {
	return NewRegistry(stubOracle{}, auction.DefaultRules(), nil)
}

// played drops the game state returned by a registry action.
func played(_ GamePacket, err error) error {
	return err
}

// startedGame returns a registry with alice hosting bob, both connected, and
// the game running with alice as First.
func startedGame(t *testing.T) (*Registry, ID, *recorder, *recorder) {
	t.Helper()
	r := newTestRegistry()
	s, err := r.Create("alice", HostFirst)
	require.NoError(t, err)
	_, err = r.Join(s.ID, "bob")
	require.NoError(t, err)

	hostCh, guestCh := &recorder{}, &recorder{}
	require.NoError(t, r.SetChannel(s.ID, "alice", hostCh))
	require.NoError(t, r.SetChannel(s.ID, "bob", guestCh))
	require.NoError(t, played(r.Start(s.ID, "alice")))
	hostCh.reset()
	guestCh.reset()
	return r, s.ID, hostCh, guestCh
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry()

	s, err := r.Create("alice", HostFirst)
	require.NoError(t, err)
	assert.Len(t, string(s.ID), idLength)
	assert.Equal(t, Pending, s.Status)
	assert.Equal(t, Identity("alice"), s.Host)
	assert.Nil(t, s.Guest)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	mine, err := r.GetByIdentity("alice")
	require.NoError(t, err)
	assert.Equal(t, s.ID, mine.ID)

	_, err = r.Get("NOPE00")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetByIdentity("carol")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateLeaveRecreate(t *testing.T) {
	r := newTestRegistry()

	s1, err := r.Create("alice", HostFirst)
	require.NoError(t, err)

	_, err = r.Create("alice", HostFirst)
	require.ErrorIs(t, err, ErrAlreadyActive)
	var active *AlreadyActiveError
	require.True(t, errors.As(err, &active))
	assert.Equal(t, s1.ID, active.ID)
	assert.Equal(t, errs.KindState, errs.KindOf(err))

	require.NoError(t, r.Leave(s1.ID, "alice"))
	assert.Equal(t, 0, r.Len())
	_, err = r.GetByIdentity("alice")
	assert.ErrorIs(t, err, ErrNotFound)

	s2, err := r.Create("alice", HostFirst)
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestLastMemberLeavingSendsClosed(t *testing.T) {
	r, id, hostCh, guestCh := startedGame(t)

	require.NoError(t, r.Leave(id, "bob"))
	hostCh.reset()
	guestCh.reset()
	require.NoError(t, r.Leave(id, "alice"))

	assert.Equal(t, []string{"closed"}, hostCh.types())
	assert.Equal(t, ClosedPacket{Type: "closed", ID: id}, hostCh.last())
	assert.Empty(t, guestCh.types(), "a member who already left hears nothing")
	assert.Equal(t, 0, r.Len())
}

func TestJoinRules(t *testing.T) {
	r := newTestRegistry()
	s, err := r.Create("alice", HostFirst)
	require.NoError(t, err)
	other, err := r.Create("carol", HostFirst)
	require.NoError(t, err)

	_, err = r.Join(s.ID, "alice")
	assert.ErrorIs(t, err, ErrSelfJoin)

	_, err = r.Join(s.ID, "carol")
	var active *AlreadyActiveError
	require.ErrorAs(t, err, &active)
	assert.Equal(t, other.ID, active.ID)

	joined, err := r.Join(s.ID, "bob")
	require.NoError(t, err)
	require.NotNil(t, joined.Guest)
	assert.Equal(t, Identity("bob"), *joined.Guest)

	_, err = r.Join(s.ID, "dave")
	assert.ErrorIs(t, err, ErrAlreadyFull)
	_, err = r.GetByIdentity("dave")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Join("MISSING", "dave")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGuestLeaveDiscardsGame(t *testing.T) {
	r, id, hostCh, _ := startedGame(t)

	require.NoError(t, r.Leave(id, "bob"))

	s, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, Pending, s.Status)
	assert.Nil(t, s.Guest)
	_, err = r.Game(id)
	assert.ErrorIs(t, err, ErrNotActive)
	_, err = r.GetByIdentity("bob")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"session"}, hostCh.types())
}

func TestHostLeavePromotesGuest(t *testing.T) {
	r, id, _, guestCh := startedGame(t)

	require.NoError(t, r.Leave(id, "alice"))

	s, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, Identity("bob"), s.Host)
	assert.Nil(t, s.Guest)
	assert.Equal(t, Pending, s.Status)

	mine, err := r.GetByIdentity("bob")
	require.NoError(t, err)
	assert.Equal(t, id, mine.ID)
	_, err = r.GetByIdentity("alice")
	assert.ErrorIs(t, err, ErrNotFound)

	// the promoted host keeps its connection
	require.Equal(t, []string{"session"}, guestCh.types())
	assert.Equal(t, Identity("bob"), guestCh.last().(SessionPacket).Host)
}

func TestLeaveByStranger(t *testing.T) {
	r := newTestRegistry()
	s, err := r.Create("alice", HostFirst)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Leave(s.ID, "mallory"), ErrIllegalPermission)
	assert.Equal(t, 1, r.Len())
}

func TestStartRules(t *testing.T) {
	r := newTestRegistry()
	s, err := r.Create("alice", HostFirst)
	require.NoError(t, err)

	assert.ErrorIs(t, played(r.Start(s.ID, "alice")), ErrNotReady)

	_, err = r.Join(s.ID, "bob")
	require.NoError(t, err)
	assert.ErrorIs(t, played(r.Start(s.ID, "bob")), ErrNotHost)
	assert.ErrorIs(t, played(r.Start(s.ID, "mallory")), ErrIllegalPermission)

	require.NoError(t, played(r.Start(s.ID, "alice")))
	assert.ErrorIs(t, played(r.Start(s.ID, "alice")), ErrAlreadyStarted)

	game, err := r.Game(s.ID)
	require.NoError(t, err)
	assert.Equal(t, Colors{First: "alice", Second: "bob"}, game.Colors)
	assert.Equal(t, auction.Balances{auction.StartingBalance, auction.StartingBalance}, game.Balances)
	assert.Equal(t, auction.Bidding, game.Phase)
}

func TestStartBroadcastsSessionAndGame(t *testing.T) {
	r := newTestRegistry()
	s, err := r.Create("alice", HostSecond)
	require.NoError(t, err)
	_, err = r.Join(s.ID, "bob")
	require.NoError(t, err)

	hostCh, guestCh := &recorder{}, &recorder{}
	require.NoError(t, r.SetChannel(s.ID, "alice", hostCh))
	require.NoError(t, r.SetChannel(s.ID, "bob", guestCh))
	hostCh.reset()
	guestCh.reset()

	require.NoError(t, played(r.Start(s.ID, "alice")))
	assert.Equal(t, []string{"session", "game"}, hostCh.types())
	assert.Equal(t, []string{"session", "game"}, guestCh.types())

	game := hostCh.last().(GamePacket)
	assert.Equal(t, Colors{First: "bob", Second: "alice"}, game.Colors)
}

func TestSubmitBroadcastsOnce(t *testing.T) {
	r, id, hostCh, guestCh := startedGame(t)

	require.NoError(t, played(r.SubmitBid(id, "alice", auction.Raise{Amount: 100})))
	assert.Equal(t, []string{"game"}, hostCh.types())
	assert.Equal(t, []string{"game"}, guestCh.types())

	require.NoError(t, played(r.SubmitBid(id, "bob", auction.Fold{})))
	game := guestCh.last().(GamePacket)
	assert.Equal(t, auction.Moving, game.Phase)
	assert.Equal(t, auction.First, game.MoveTurn)
	assert.Equal(t, auction.Balances{900, 1000}, game.Balances)
	assert.Equal(t, []auction.Move{"e2e4"}, game.LegalMoves)

	require.NoError(t, played(r.SubmitMove(id, "alice", "e2e4")))
	game = hostCh.last().(GamePacket)
	assert.Equal(t, auction.Bidding, game.Phase)
	assert.Empty(t, game.LegalMoves)
	assert.Len(t, hostCh.types(), 3)
	assert.Len(t, guestCh.types(), 3)
}

func TestActionsReturnTheBroadcastState(t *testing.T) {
	r, id, hostCh, guestCh := startedGame(t)

	game, err := r.SubmitBid(id, "alice", auction.Raise{Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(100), game.CurrentHighBid)
	assert.Equal(t, hostCh.last(), game)
	assert.Equal(t, guestCh.last(), game)

	game, err = r.SubmitBid(id, "bob", auction.Fold{})
	require.NoError(t, err)
	assert.Equal(t, auction.Moving, game.Phase)

	// a later action does not change what the earlier call returned
	_, err = r.SubmitMove(id, "alice", "e2e4")
	require.NoError(t, err)
	assert.Equal(t, auction.Moving, game.Phase)
	assert.Equal(t, auction.Bidding, hostCh.last().(GamePacket).Phase)

	game, err = r.Resign(id, "bob")
	require.NoError(t, err)
	require.NotNil(t, game.Outcome)
	assert.Equal(t, auction.ReasonResigned, game.Outcome.Reason)

	_, err = r.SubmitBid(id, "alice", auction.Fold{})
	assert.ErrorIs(t, err, auction.ErrGameOver)
}

func TestStartReturnsOpeningState(t *testing.T) {
	r := newTestRegistry()
	s, err := r.Create("alice", HostSecond)
	require.NoError(t, err)
	_, err = r.Join(s.ID, "bob")
	require.NoError(t, err)

	game, err := r.Start(s.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, auction.Bidding, game.Phase)
	assert.Equal(t, Colors{First: "bob", Second: "alice"}, game.Colors)

	_, err = r.Start(s.ID, "alice")
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestRejectedActionsDoNotBroadcast(t *testing.T) {
	r, id, hostCh, guestCh := startedGame(t)

	assert.ErrorIs(t, played(r.SubmitBid(id, "bob", auction.Raise{Amount: 1})), auction.ErrNotYourTurn)
	assert.ErrorIs(t, played(r.SubmitBid(id, "alice", auction.Raise{Amount: 5000})), auction.ErrInsufficientFunds)
	assert.ErrorIs(t, played(r.SubmitMove(id, "alice", "e2e4")), auction.ErrWrongPhase)
	assert.ErrorIs(t, played(r.SubmitBid(id, "mallory", auction.Fold{})), ErrIllegalPermission)
	assert.ErrorIs(t, played(r.SubmitBid("MISSING", "alice", auction.Fold{})), ErrNotFound)

	assert.Empty(t, hostCh.types())
	assert.Empty(t, guestCh.types())
}

func TestSubmitBeforeStart(t *testing.T) {
	r := newTestRegistry()
	s, err := r.Create("alice", HostFirst)
	require.NoError(t, err)

	assert.ErrorIs(t, played(r.SubmitBid(s.ID, "alice", auction.Raise{Amount: 1})), ErrNotActive)
	assert.ErrorIs(t, played(r.Resign(s.ID, "alice")), ErrNotActive)
}

func TestResignAndRematch(t *testing.T) {
	r, id, hostCh, _ := startedGame(t)

	require.NoError(t, played(r.Resign(id, "bob")))
	game := hostCh.last().(GamePacket)
	require.NotNil(t, game.Outcome)
	assert.Equal(t, auction.First, *game.Outcome.Winner)
	assert.Equal(t, auction.ReasonResigned, game.Outcome.Reason)

	assert.ErrorIs(t, r.End(id, "bob"), ErrNotHost)
	require.NoError(t, r.End(id, "alice"))
	s, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, Pending, s.Status)

	require.NoError(t, played(r.Start(id, "alice")))
	game, err = r.Game(id)
	require.NoError(t, err)
	assert.Nil(t, game.Outcome)
}

func TestPartialBroadcastDelivery(t *testing.T) {
	r, id, hostCh, guestCh := startedGame(t)
	hostCh.fail = true

	require.NoError(t, played(r.SubmitBid(id, "alice", auction.Raise{Amount: 10})))
	assert.Empty(t, hostCh.types())
	assert.Equal(t, []string{"game"}, guestCh.types())
}

func TestClearChannelIsCompareAndClear(t *testing.T) {
	r, id, hostCh, _ := startedGame(t)

	newer := &recorder{}
	require.NoError(t, r.SetChannel(id, "alice", newer))
	newer.reset()

	// the stale connection closing must not detach the newer one
	r.ClearChannel(id, "alice", hostCh)
	require.NoError(t, played(r.SubmitBid(id, "alice", auction.Raise{Amount: 10})))
	assert.Equal(t, []string{"game"}, newer.types())

	r.ClearChannel(id, "alice", newer)
	require.NoError(t, played(r.SubmitBid(id, "bob", auction.Raise{Amount: 20})))
	assert.Equal(t, []string{"game"}, newer.types())

	r.ClearChannel("MISSING", "alice", newer)
}

func TestSetChannelRequiresMembership(t *testing.T) {
	r := newTestRegistry()
	s, err := r.Create("alice", HostFirst)
	require.NoError(t, err)

	assert.ErrorIs(t, r.SetChannel(s.ID, "mallory", &recorder{}), ErrIllegalPermission)

	ch := &recorder{}
	require.NoError(t, r.SetChannel(s.ID, "alice", ch))
	assert.Equal(t, []string{"session"}, ch.types())
}

func TestDelete(t *testing.T) {
	r, id, hostCh, guestCh := startedGame(t)

	assert.ErrorIs(t, r.Delete(id, "bob"), ErrNotHost)
	assert.ErrorIs(t, r.Delete(id, "mallory"), ErrIllegalPermission)

	require.NoError(t, r.Delete(id, "alice"))
	assert.Equal(t, []string{"closed"}, hostCh.types())
	assert.Equal(t, []string{"closed"}, guestCh.types())
	assert.Equal(t, 0, r.Len())

	_, err := r.GetByIdentity("alice")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetByIdentity("bob")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Delete(id, "alice"), ErrNotFound)
}

func TestIDCollisionRetries(t *testing.T) {
	r := newTestRegistry()
	codes := []ID{"AAAAAA", "AAAAAA", "BBBBBB"}
	r.newID = func() (ID, error) {
		id := codes[0]
		codes = codes[1:]
		return id, nil
	}

	first, err := r.Create("alice", HostFirst)
	require.NoError(t, err)
	second, err := r.Create("bob", HostFirst)
	require.NoError(t, err)

	assert.Equal(t, ID("AAAAAA"), first.ID)
	assert.Equal(t, ID("BBBBBB"), second.ID)
}

func TestIDExhaustion(t *testing.T) {
	r := newTestRegistry()
	r.newID = func() (ID, error) { return "AAAAAA", nil }

	_, err := r.Create("alice", HostFirst)
	require.NoError(t, err)
	_, err = r.Create("bob", HostFirst)
	assert.ErrorIs(t, err, ErrIDExhausted)
	_, err = r.GetByIdentity("bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateIDAlphabet(t *testing.T) {
	for range 50 {
		id, err := generateID()
		require.NoError(t, err)
		require.Len(t, string(id), idLength)
		for _, c := range string(id) {
			assert.Contains(t, idAlphabet, string(c))
		}
	}
}

func TestConcurrentMembershipKeepsIdentitiesUnique(t *testing.T) {
	r := newTestRegistry()

	hosts := make([]ID, 5)
	for i := range hosts {
		s, err := r.Create(Identity(fmt.Sprintf("host-%d", i)), HostFirst)
		require.NoError(t, err)
		hosts[i] = s.ID
	}

	var wg sync.WaitGroup
	for p := 0; p < 20; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			player := Identity(fmt.Sprintf("player-%d", p))
			for round := 0; round < 50; round++ {
				id := hosts[(p+round)%len(hosts)]
				if _, err := r.Join(id, player); err == nil {
					_ = r.Leave(id, player)
				}
				if s, err := r.Create(player, HostFirst); err == nil {
					_ = r.Leave(s.ID, player)
				}
			}
		}(p)
	}
	wg.Wait()

	r.mu.RLock()
	defer r.mu.RUnlock()
	seats := make(map[Identity]int)
	for id, s := range r.sessions {
		p := s.Packet()
		seats[p.Host]++
		assert.Equal(t, id, r.byIdentity[p.Host])
		if p.Guest != nil {
			seats[*p.Guest]++
			assert.Equal(t, id, r.byIdentity[*p.Guest])
		}
	}
	for identity, n := range seats {
		assert.Equal(t, 1, n, identity)
	}
	assert.Len(t, r.byIdentity, len(seats))
}

func TestShutdownClosesSessions(t *testing.T) {
	r, _, hostCh, guestCh := startedGame(t)

	assert.Equal(t, 1, r.Shutdown())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, []string{"closed"}, hostCh.types())
	assert.Equal(t, []string{"closed"}, guestCh.types())
}
