// Package auction implements the bidding state machine of Auction Chess:
// two players alternate raising for the right to make the next move, and the
// winner of each auction pays for it.
package auction

import (
	"fmt"
)

// Engine holds the state of one game. It is not safe for concurrent use;
// callers serialize access.
type Engine struct {
	oracle Oracle
	allIn  AllInPolicy

	phase    Phase
	moveTurn Color
	bidTurn  Color
	balances Balances
	highBid  int64
	board    string
	ledger   Ledger
	outcome  *Outcome
}

// New returns an engine in the Bidding phase with First to bid.
func New(oracle Oracle, rules Rules) (*Engine, error) {
	if oracle == nil {
		return nil, fmt.Errorf("%w: nil oracle", ErrInvalidRules)
	}
	if rules.Balances[First] < 0 || rules.Balances[Second] < 0 {
		return nil, fmt.Errorf("%w: negative starting balance", ErrInvalidRules)
	}
	board := rules.Position
	if board == "" {
		board = StartPosition
	}

	e := &Engine{
		oracle:   oracle,
		allIn:    rules.AllIn,
		phase:    Bidding,
		moveTurn: First,
		bidTurn:  First,
		balances: rules.Balances,
		board:    board,
	}
	e.ledger.Open()
	if e.balances[First] == 0 && e.balances[Second] == 0 {
		e.outcome = Draw(ReasonBankrupt)
	}
	return e, nil
}

// SubmitBid applies a raise or fold for actor. On error nothing changes.
func (e *Engine) SubmitBid(actor Color, action BidAction) error {
	if !actor.Valid() {
		return ErrInvalidColor
	}
	if err := e.checkTurn(Bidding, actor, e.bidTurn); err != nil {
		return err
	}

	switch a := action.(type) {
	case Raise:
		return e.raise(actor, a.Amount)
	case Fold:
		e.fold(actor)
		return nil
	default:
		return fmt.Errorf("%w: unknown action %T", ErrInvalidBid, action)
	}
}

func (e *Engine) raise(actor Color, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: negative amount %d", ErrInvalidBid, amount)
	}
	if amount > e.balances[actor] {
		return ErrInsufficientFunds
	}
	if amount <= e.highBid {
		return ErrMustIncreaseBid
	}

	e.ledger.Record(Bid{Color: actor, Action: Raise{Amount: amount}})
	if e.allIn.resolves(amount, e.balances[actor.Opponent()]) {
		e.balances[actor] -= amount
		e.enterMoving(actor)
		return nil
	}
	e.highBid = amount
	e.bidTurn = actor.Opponent()
	return nil
}

// fold hands the move to the standing high bidder, who pays the high bid.
// Bid turn stays with the folder so the loser of this auction opens the next.
func (e *Engine) fold(actor Color) {
	winner := actor.Opponent()
	e.ledger.Record(Bid{Color: actor, Action: Fold{}})
	e.balances[winner] -= e.highBid
	e.enterMoving(winner)
}

func (e *Engine) enterMoving(mover Color) {
	e.phase = Moving
	e.moveTurn = mover
	e.highBid = 0
	e.ledger.Seal()

	if e.balances[First] == 0 && e.balances[Second] == 0 {
		e.outcome = Draw(ReasonBankrupt)
		return
	}
	// A mover left without moves cannot play the move it paid for.
	switch e.oracle.Status(e.board, mover) {
	case Checkmated:
		e.outcome = Win(mover.Opponent(), ReasonMate)
	case Stalemated:
		e.outcome = Draw(ReasonStalemate)
	}
}

// SubmitMove plays move for actor and opens the next auction.
func (e *Engine) SubmitMove(actor Color, move Move) error {
	if !actor.Valid() {
		return ErrInvalidColor
	}
	if err := e.checkTurn(Moving, actor, e.moveTurn); err != nil {
		return err
	}
	if !move.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMove, string(move))
	}

	next, err := e.oracle.Apply(e.board, actor, move)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	e.board = next
	e.phase = Bidding
	e.highBid = 0
	e.ledger.Open()
	if winner, ok := e.oracle.Winner(e.board); ok {
		e.outcome = Win(winner, ReasonKingCaptured)
	}
	return nil
}

// Resign concedes the game to actor's opponent in either phase.
func (e *Engine) Resign(actor Color) error {
	if !actor.Valid() {
		return ErrInvalidColor
	}
	if e.outcome != nil {
		return ErrGameOver
	}
	e.outcome = Win(actor.Opponent(), ReasonResigned)
	return nil
}

func (e *Engine) checkTurn(phase Phase, actor, turn Color) error {
	if e.outcome != nil {
		return ErrGameOver
	}
	if e.phase != phase {
		return ErrWrongPhase
	}
	if actor != turn {
		return ErrNotYourTurn
	}
	return nil
}

// Outcome returns the result once the game has concluded.
func (e *Engine) Outcome() (Outcome, bool) {
	if e.outcome == nil {
		return Outcome{}, false
	}
	return *e.outcome.clone(), true
}

func (e *Engine) Phase() Phase {
	return e.phase
}

func (e *Engine) Board() string {
	return e.board
}

// LegalMoves lists the moves available to the side on move. It is empty
// outside the Moving phase or once the game is over.
func (e *Engine) LegalMoves() []Move {
	if e.phase != Moving || e.outcome != nil {
		return nil
	}
	return e.oracle.LegalMoves(e.board, e.moveTurn)
}

// Snapshot returns a copy of the full engine state.
func (e *Engine) Snapshot() State {
	current, _ := e.ledger.Current()
	if current == nil {
		current = BidRound{}
	}
	return State{
		Phase:          e.phase,
		MoveTurn:       e.moveTurn,
		BidTurn:        e.bidTurn,
		Balances:       e.balances,
		CurrentHighBid: e.highBid,
		CurrentRound:   current,
		BidHistory:     e.ledger.Rounds(),
		Board:          e.board,
		Outcome:        e.outcome.clone(),
	}
}
