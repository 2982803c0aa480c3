package gate

import (
	"errors"
	"fmt"
)

// State is the auth gate's view of the current render
type State int

const (
	// Unknown is the initial state, before a browser has been confirmed
	Unknown State = iota
	Unauthenticated
	Verifying
	Authenticated
	VerificationFailed
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Unauthenticated:
		return "unauthenticated"
	case Verifying:
		return "verifying"
	case Authenticated:
		return "authenticated"
	case VerificationFailed:
		return "verification_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event moves the gate between states
type Event interface {
	event()
}

// BrowserConfirmed is raised once a real browser is confirmed and the
// cookie jar has been inspected
type BrowserConfirmed struct {
	HasToken bool
}

// VerifySucceeded is raised when the SSO proxy confirms the session
type VerifySucceeded struct{}

// VerifyFailed is raised when the session could not be confirmed
type VerifyFailed struct {
	Err error
}

// SessionRevoked is raised once the session cookies have been deleted
type SessionRevoked struct{}

func (BrowserConfirmed) event() {}
func (VerifySucceeded) event()  {}
func (VerifyFailed) event()     {}
func (SessionRevoked) event()   {}

// ErrInvalidTransition is returned for an event the state does not accept
var ErrInvalidTransition = errors.New("invalid auth gate transition")

// Transition returns the state that follows s on e. It has no side effects.
func Transition(s State, e Event) (State, error) {
	switch ev := e.(type) {
	case BrowserConfirmed:
		if s == Unknown {
			if ev.HasToken {
				return Verifying, nil
			}
			return Unauthenticated, nil
		}
	case VerifySucceeded:
		if s == Verifying {
			return Authenticated, nil
		}
	case VerifyFailed:
		if s == Verifying {
			return VerificationFailed, nil
		}
	case SessionRevoked:
		if s == VerificationFailed || s == Authenticated {
			return Unauthenticated, nil
		}
	}
	return s, fmt.Errorf("%w: %T in state %s", ErrInvalidTransition, e, s)
}
