package auction

// Move is a move in UCI long algebraic form, e.g. "e2e4" or "e7e8q".
type Move string

// Valid reports whether m has the shape of a UCI move. It says nothing about
// legality on any board.
func (m Move) Valid() bool {
	if len(m) != 4 && len(m) != 5 {
		return false
	}
	if !isFile(m[0]) || !isRank(m[1]) || !isFile(m[2]) || !isRank(m[3]) {
		return false
	}
	if m[0] == m[2] && m[1] == m[3] {
		return false
	}
	if len(m) == 5 {
		switch m[4] {
		case 'q', 'r', 'b', 'n':
		default:
			return false
		}
	}
	return true
}

func isFile(b byte) bool { return b >= 'a' && b <= 'h' }
func isRank(b byte) bool { return b >= '1' && b <= '8' }

// Oracle validates and applies moves on a board serialized as FEN. The engine
// never derives legality itself.
//
// Apply must not modify anything observable when it returns an error.
type Oracle interface {
	Apply(board string, side Color, move Move) (string, error)
	LegalMoves(board string, side Color) []Move
	// Winner reports the side whose opponent's king is no longer on the board.
	Winner(board string) (Color, bool)
	// Status reports whether side, holding the move, is checkmated or
	// stalemated.
	Status(board string, side Color) BoardStatus
}

// BoardStatus is the state of the board for the side about to move.
type BoardStatus int

const (
	Playable BoardStatus = iota
	Checkmated
	Stalemated
)
