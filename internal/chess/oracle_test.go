package chess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auctionchess/internal/auction"
)

func TestLegalMovesFromStart(t *testing.T) {
	o := NewOracle()

	white := o.LegalMoves(auction.StartPosition, auction.First)
	assert.Len(t, white, 20)
	assert.Contains(t, white, auction.Move("e2e4"))

	black := o.LegalMoves(auction.StartPosition, auction.Second)
	assert.Len(t, black, 20)
	assert.Contains(t, black, auction.Move("e7e5"))
}

func TestApplyLegalMove(t *testing.T) {
	o := NewOracle()

	next, err := o.Apply(auction.StartPosition, auction.First, "e2e4")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(next, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b"), next)
}

func TestApplyIgnoresFENSideToMove(t *testing.T) {
	o := NewOracle()

	next, err := o.Apply(auction.StartPosition, auction.First, "e2e4")
	require.NoError(t, err)

	// first wins the next auction too and moves again
	next, err = o.Apply(next, auction.First, "d2d4")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(next, "rnbqkbnr/pppppppp/8/8/3PP3/8/PPP2PPP/RNBQKBNR"), next)
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	o := NewOracle()

	_, err := o.Apply(auction.StartPosition, auction.First, "e2e5")
	assert.Error(t, err)

	_, err = o.Apply(auction.StartPosition, auction.First, "e7e5")
	assert.Error(t, err)

	_, err = o.Apply("not a fen", auction.First, "e2e4")
	assert.Error(t, err)
}

func TestPromotionMoves(t *testing.T) {
	o := NewOracle()
	board := "8/4P3/8/8/8/8/8/k6K w - - 0 1"

	moves := o.LegalMoves(board, auction.First)
	assert.Contains(t, moves, auction.Move("e7e8q"))
	assert.Contains(t, moves, auction.Move("e7e8n"))
}

func TestWinner(t *testing.T) {
	o := NewOracle()

	_, ok := o.Winner(auction.StartPosition)
	assert.False(t, ok)

	c, ok := o.Winner("4Q3/8/8/8/8/8/8/4K3 b - - 0 1")
	require.True(t, ok)
	assert.Equal(t, auction.First, c)

	c, ok = o.Winner("4k3/8/8/8/8/8/8/4q3 w - - 0 1")
	require.True(t, ok)
	assert.Equal(t, auction.Second, c)
}

func TestKingCapture(t *testing.T) {
	o := NewOracle()
	// black is in check with first to move again
	board := "4k3/8/8/8/8/8/8/4QK2 w - - 0 1"

	next, err := o.Apply(board, auction.First, "e1e8")
	require.NoError(t, err)

	c, ok := o.Winner(next)
	require.True(t, ok)
	assert.Equal(t, auction.First, c)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(auction.StartPosition))
	assert.Error(t, Validate("rnbqkbnr w"))
}

func TestStatus(t *testing.T) {
	o := NewOracle()

	tests := []struct {
		name  string
		board string
		side  auction.Color
		want  auction.BoardStatus
	}{
		{"start", auction.StartPosition, auction.First, auction.Playable},
		{"stalemate", "k7/8/1Q6/8/8/8/8/7K w - - 0 1", auction.Second, auction.Stalemated},
		{"same board other side", "k7/8/1Q6/8/8/8/8/7K w - - 0 1", auction.First, auction.Playable},
		{"checkmate", "k7/1Q6/1K6/8/8/8/8/8 w - - 0 1", auction.Second, auction.Checkmated},
		{"bad fen", "nonsense", auction.First, auction.Playable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, o.Status(tt.board, tt.side))
		})
	}

	assert.Empty(t, o.LegalMoves("k7/8/1Q6/8/8/8/8/7K w - - 0 1", auction.Second))
}
