package auction

import "auctionchess/internal/errs"

var (
	ErrGameOver          = errs.New(errs.KindState, "game_over", "game is over")
	ErrWrongPhase        = errs.New(errs.KindState, "wrong_phase", "action not allowed in the current phase")
	ErrNotYourTurn       = errs.New(errs.KindState, "not_your_turn", "not your turn")
	ErrInvalidBid        = errs.New(errs.KindValidation, "invalid_bid", "invalid bid")
	ErrInsufficientFunds = errs.New(errs.KindResource, "insufficient_funds", "insufficient funds")
	ErrMustIncreaseBid   = errs.New(errs.KindValidation, "must_increase_bid", "bid must exceed the current high bid")
	ErrInvalidMove       = errs.New(errs.KindValidation, "invalid_move", "malformed move")
	ErrIllegalMove       = errs.New(errs.KindIllegalMove, "illegal_move", "illegal move")
	ErrInvalidColor      = errs.New(errs.KindValidation, "invalid_color", "invalid color")
	ErrInvalidRules      = errs.New(errs.KindValidation, "invalid_rules", "invalid rules")
)
