package auction

import (
	"encoding/json"
	"fmt"
)

// Color identifies one of the two sides. First plays the white pieces.
type Color int

const (
	First Color = iota
	Second
)

func (c Color) String() string {
	switch c {
	case First:
		return "first"
	case Second:
		return "second"
	default:
		return "unknown"
	}
}

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == First {
		return Second
	}
	return First
}

func (c Color) Valid() bool {
	return c == First || c == Second
}

func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid color %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseColor accepts "first"/"second" and the board aliases "white"/"black".
func ParseColor(s string) (Color, error) {
	switch s {
	case "first", "white":
		return First, nil
	case "second", "black":
		return Second, nil
	default:
		return 0, fmt.Errorf("unknown color %q", s)
	}
}

// Phase is the auction state machine's current state.
type Phase int

const (
	Bidding Phase = iota
	Moving
)

func (p Phase) String() string {
	switch p {
	case Bidding:
		return "bidding"
	case Moving:
		return "moving"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// BidAction is either a Raise or a Fold.
type BidAction interface{ isBidAction() }

// Raise offers Amount for the right to move.
type Raise struct {
	Amount int64
}

// Fold concedes the auction to the standing high bidder.
type Fold struct{}

func (Raise) isBidAction() {}
func (Fold) isBidAction()  {}

// Bid is one entry in a bid round.
type Bid struct {
	Color  Color
	Action BidAction
}

type bidJSON struct {
	Color  Color  `json:"color"`
	Type   string `json:"type"`
	Amount *int64 `json:"amount,omitempty"`
}

func (b Bid) MarshalJSON() ([]byte, error) {
	out := bidJSON{Color: b.Color}
	switch a := b.Action.(type) {
	case Raise:
		amount := a.Amount
		out.Type = "raise"
		out.Amount = &amount
	case Fold:
		out.Type = "fold"
	default:
		return nil, fmt.Errorf("unknown bid action %T", b.Action)
	}
	return json.Marshal(out)
}

// Balances holds each side's remaining funds, indexed by Color.
type Balances [2]int64

func (b Balances) Of(c Color) int64 {
	return b[c]
}

func (b Balances) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]int64{
		First.String():  b[First],
		Second.String(): b[Second],
	})
}

// Reason explains how a game concluded.
type Reason string

const (
	ReasonKingCaptured Reason = "king_captured"
	ReasonMate         Reason = "mate"
	ReasonStalemate    Reason = "stalemate"
	ReasonBankrupt     Reason = "bankrupt"
	ReasonResigned     Reason = "resigned"
)

// Outcome is a concluded game. A nil Winner is a draw.
type Outcome struct {
	Winner *Color `json:"winner"`
	Reason Reason `json:"reason"`
}

func Win(c Color, reason Reason) *Outcome {
	return &Outcome{Winner: &c, Reason: reason}
}

func Draw(reason Reason) *Outcome {
	return &Outcome{Reason: reason}
}

func (o Outcome) IsDraw() bool {
	return o.Winner == nil
}

func (o Outcome) String() string {
	if o.Winner == nil {
		return fmt.Sprintf("draw (%s)", o.Reason)
	}
	return fmt.Sprintf("%s wins (%s)", *o.Winner, o.Reason)
}

func (o *Outcome) clone() *Outcome {
	if o == nil {
		return nil
	}
	out := &Outcome{Reason: o.Reason}
	if o.Winner != nil {
		w := *o.Winner
		out.Winner = &w
	}
	return out
}

// AllInPolicy decides when a raise ends the auction immediately.
type AllInPolicy int

const (
	// AllInAtLeast resolves when the raise is >= the opponent's balance.
	AllInAtLeast AllInPolicy = iota
	// AllInExceeds resolves only when the raise is > the opponent's balance.
	AllInExceeds
)

func (p AllInPolicy) String() string {
	if p == AllInExceeds {
		return "exceeds"
	}
	return "at_least"
}

func ParseAllInPolicy(s string) (AllInPolicy, error) {
	switch s {
	case "", "at_least":
		return AllInAtLeast, nil
	case "exceeds":
		return AllInExceeds, nil
	default:
		return 0, fmt.Errorf("unknown all-in policy %q", s)
	}
}

func (p AllInPolicy) resolves(amount, opponentBalance int64) bool {
	if p == AllInExceeds {
		return amount > opponentBalance
	}
	return amount >= opponentBalance
}

const (
	StartingBalance = 1000
	StartPosition   = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
)

// Rules configures a new Engine.
type Rules struct {
	Balances Balances
	AllIn    AllInPolicy
	Position string // FEN, StartPosition when empty
}

// DefaultRules returns the standard starting configuration.
func DefaultRules() Rules {
	return Rules{
		Balances: Balances{StartingBalance, StartingBalance},
		AllIn:    AllInAtLeast,
		Position: StartPosition,
	}
}

// State is a point-in-time copy of an Engine.
type State struct {
	Phase          Phase      `json:"phase"`
	MoveTurn       Color      `json:"move_turn"`
	BidTurn        Color      `json:"bid_turn"`
	Balances       Balances   `json:"balances"`
	CurrentHighBid int64      `json:"current_high_bid"`
	CurrentRound   BidRound   `json:"current_round"`
	BidHistory     []BidRound `json:"bid_history"`
	Board          string     `json:"board"`
	Outcome        *Outcome   `json:"outcome"`
}
