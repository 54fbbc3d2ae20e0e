// Package lobby pairs two players with an auction engine and fans game state
// out to their connections. The Registry is the entry point; a Session is
// only reached through it.
package lobby

import (
	"fmt"

	"auctionchess/internal/errs"
)

// Identity is the opaque player handle supplied by the auth layer.
type Identity string

// ID is a session's short join code.
type ID string

// Channel delivers packets to one connected client. Send must not block.
type Channel interface {
	Send(Packet) error
}

type Status int

const (
	Pending Status = iota
	Active
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HostColor decides which side the host plays when a game starts.
type HostColor int

const (
	HostFirst HostColor = iota
	HostSecond
	HostRandom
)

func (h HostColor) String() string {
	switch h {
	case HostSecond:
		return "second"
	case HostRandom:
		return "random"
	default:
		return "first"
	}
}

func (h HostColor) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *HostColor) UnmarshalText(text []byte) error {
	parsed, err := ParseHostColor(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func ParseHostColor(s string) (HostColor, error) {
	switch s {
	case "", "first", "white":
		return HostFirst, nil
	case "second", "black":
		return HostSecond, nil
	case "random":
		return HostRandom, nil
	default:
		return 0, fmt.Errorf("%w: unknown host color %q", ErrInvalidHostColor, s)
	}
}

var (
	ErrNotFound          = errs.New(errs.KindNotFound, "not_found", "session not found")
	ErrAlreadyActive     = errs.New(errs.KindState, "already_active", "already in a session")
	ErrAlreadyFull       = errs.New(errs.KindState, "already_full", "session is full")
	ErrSelfJoin          = errs.New(errs.KindValidation, "self_join", "cannot join your own session")
	ErrNotHost           = errs.New(errs.KindPermission, "not_host", "only the host can do that")
	ErrIllegalPermission = errs.New(errs.KindPermission, "illegal_permission", "not a member of this session")
	ErrNotReady          = errs.New(errs.KindState, "not_ready", "session needs a guest to start")
	ErrAlreadyStarted    = errs.New(errs.KindState, "already_started", "game already started")
	ErrNotActive         = errs.New(errs.KindState, "not_active", "no game in progress")
	ErrInvalidHostColor  = errs.New(errs.KindValidation, "invalid_host_color", "invalid host color")
	ErrIDExhausted       = errs.New(errs.KindResource, "id_exhausted", "could not allocate a session id")
)

// AlreadyActiveError is returned by Create and Join when the identity is
// already seated in another session.
type AlreadyActiveError struct {
	ID ID
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("already in session %s", e.ID)
}

func (e *AlreadyActiveError) Unwrap() error {
	return ErrAlreadyActive
}
