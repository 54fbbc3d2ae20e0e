// Package chess adapts github.com/notnil/chess to the auction engine's move
// oracle. Boards travel as FEN strings; the side to move recorded in the FEN
// is ignored because the auction, not alternation, decides who moves.
package chess

import (
	"fmt"
	"strings"

	notnil "github.com/notnil/chess"

	"auctionchess/internal/auction"
)

// Oracle is stateless and safe for concurrent use.
type Oracle struct{}

func NewOracle() *Oracle {
	return &Oracle{}
}

var _ auction.Oracle = (*Oracle)(nil)

// Apply plays move for side and returns the resulting FEN.
func (o *Oracle) Apply(board string, side auction.Color, move auction.Move) (string, error) {
	pos, err := position(board, side)
	if err != nil {
		return "", err
	}
	m, ok := find(pos, move)
	if !ok {
		return "", fmt.Errorf("move %s is not legal for %s", move, side)
	}
	return pos.Update(m).String(), nil
}

// LegalMoves lists the UCI moves available to side. An unparsable board has
// none.
func (o *Oracle) LegalMoves(board string, side auction.Color) []auction.Move {
	pos, err := position(board, side)
	if err != nil {
		return nil
	}
	var uci notnil.UCINotation
	valid := pos.ValidMoves()
	moves := make([]auction.Move, 0, len(valid))
	for _, m := range valid {
		moves = append(moves, auction.Move(uci.Encode(pos, m)))
	}
	return moves
}

// Status tells checkmate from stalemate when side has no legal moves. An
// unparsable board is reported as playable.
func (o *Oracle) Status(board string, side auction.Color) auction.BoardStatus {
	pos, err := position(board, side)
	if err != nil {
		return auction.Playable
	}
	switch pos.Status() {
	case notnil.Checkmate:
		return auction.Checkmated
	case notnil.Stalemate:
		return auction.Stalemated
	default:
		return auction.Playable
	}
}

// Winner reports the side still holding a king when the other has lost
// theirs. Only the placement field is read, so boards missing a king never
// reach the library.
func (o *Oracle) Winner(board string) (auction.Color, bool) {
	fields := strings.Fields(board)
	if len(fields) == 0 {
		return 0, false
	}
	white := strings.ContainsRune(fields[0], 'K')
	black := strings.ContainsRune(fields[0], 'k')
	switch {
	case white && !black:
		return auction.First, true
	case black && !white:
		return auction.Second, true
	default:
		return 0, false
	}
}

// Validate reports whether board is a FEN the oracle can work with.
func Validate(board string) error {
	_, err := position(board, auction.First)
	return err
}

func find(pos *notnil.Position, move auction.Move) (*notnil.Move, bool) {
	var uci notnil.UCINotation
	for _, m := range pos.ValidMoves() {
		if uci.Encode(pos, m) == string(move) {
			return m, true
		}
	}
	return nil, false
}

// position parses board with side forced to move. When the side changes the
// en passant target no longer applies.
func position(board string, side auction.Color) (*notnil.Position, error) {
	fields := strings.Fields(board)
	if len(fields) != 6 {
		return nil, fmt.Errorf("invalid fen %q: want 6 fields, got %d", board, len(fields))
	}
	turn := "w"
	if side == auction.Second {
		turn = "b"
	}
	if fields[1] != turn {
		fields[1] = turn
		fields[3] = "-"
	}

	opt, err := notnil.FEN(strings.Join(fields, " "))
	if err != nil {
		return nil, fmt.Errorf("invalid fen %q: %w", board, err)
	}
	return notnil.NewGame(opt).Position(), nil
}
