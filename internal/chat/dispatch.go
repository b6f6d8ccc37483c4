package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kpanalytix/kpa-assistant/internal"
)

var (
	ErrUnknownAction = errors.New("unknown action type")
	ErrInvalidPath   = errors.New("navigation path must be site relative")
)

// Navigator performs a client-side route change.
type Navigator interface {
	Navigate(path string) error
}

type NavigatorFunc func(path string) error

func (f NavigatorFunc) Navigate(path string) error { return f(path) }

// Dispatcher carries out the action attached to a bot reply.
type Dispatcher struct {
	session *Session
	nav     Navigator
}

func NewDispatcher(s *Session, nav Navigator) *Dispatcher {
	return &Dispatcher{session: s, nav: nav}
}

// Dispatch does nothing for a nil action. A navigate action closes the
// widget and then asks the navigator to change route.
func (d *Dispatcher) Dispatch(a *internal.Action) error {
	if a == nil {
		return nil
	}
	switch a.Type {
	case internal.ActionNavigate:
		if !strings.HasPrefix(a.Path, "/") || strings.HasPrefix(a.Path, "//") {
			return fmt.Errorf("%w: %q", ErrInvalidPath, a.Path)
		}
		d.session.Close()
		if err := d.nav.Navigate(a.Path); err != nil {
			return fmt.Errorf("navigate to %s: %w", a.Path, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
}
