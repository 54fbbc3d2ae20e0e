package lobby

import (
	"time"

	"auctionchess/internal/auction"
)

// Packet is a message pushed to a member's Channel.
type Packet interface {
	PacketType() string
}

type SessionPacket struct {
	Type      string    `json:"type"`
	ID        ID        `json:"id"`
	Status    Status    `json:"status"`
	Host      Identity  `json:"host"`
	Guest     *Identity `json:"guest"`
	HostColor HostColor `json:"host_color"`
	CreatedAt time.Time `json:"created_at"`
}

func (SessionPacket) PacketType() string { return "session" }

// Colors maps each side to the identity playing it.
type Colors struct {
	First  Identity `json:"first"`
	Second Identity `json:"second"`
}

type GamePacket struct {
	Type           string             `json:"type"`
	ID             ID                 `json:"id"`
	Outcome        *auction.Outcome   `json:"outcome"`
	Phase          auction.Phase      `json:"phase"`
	MoveTurn       auction.Color      `json:"move_turn"`
	BidTurn        auction.Color      `json:"bid_turn"`
	Board          string             `json:"board"`
	LegalMoves     []auction.Move     `json:"legal_moves"`
	Balances       auction.Balances   `json:"balances"`
	CurrentHighBid int64              `json:"current_high_bid"`
	CurrentRound   auction.BidRound   `json:"current_round"`
	BidHistory     []auction.BidRound `json:"bid_history"`
	Colors         Colors             `json:"colors"`
}

func (GamePacket) PacketType() string { return "game" }

// ClosedPacket tells members the session no longer exists.
type ClosedPacket struct {
	Type string `json:"type"`
	ID   ID     `json:"id"`
}

func (ClosedPacket) PacketType() string { return "closed" }

func newGamePacket(id ID, engine *auction.Engine, players [2]Identity) GamePacket {
	state := engine.Snapshot()
	legal := engine.LegalMoves()
	if legal == nil {
		legal = []auction.Move{}
	}
	return GamePacket{
		Type:           "game",
		ID:             id,
		Outcome:        state.Outcome,
		Phase:          state.Phase,
		MoveTurn:       state.MoveTurn,
		BidTurn:        state.BidTurn,
		Board:          state.Board,
		LegalMoves:     legal,
		Balances:       state.Balances,
		CurrentHighBid: state.CurrentHighBid,
		CurrentRound:   state.CurrentRound,
		BidHistory:     state.BidHistory,
		Colors: Colors{
			First:  players[auction.First],
			Second: players[auction.Second],
		},
	}
}
