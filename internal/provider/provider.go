package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/kpanalytix/kpa-assistant/internal"
)

// ChatProvider sends a complete message list, system prompt included, to a
// hosted chat-completion backend and returns the reply text.
type ChatProvider interface {
	Model() string
	Complete(ctx context.Context, messages []internal.Message) (string, error)
}

var (
	// ErrRemoteTransport covers network failures and non-success statuses.
	ErrRemoteTransport = errors.New("remote transport error")

	// ErrRemoteMalformed covers success responses without a usable reply.
	ErrRemoteMalformed = errors.New("remote malformed response")
)

type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindMalformed
)

func (k ErrorKind) String() string {
	if k == KindMalformed {
		return "malformed"
	}
	return "transport"
}

// RemoteError is the single failure type returned by providers.
type RemoteError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemoteTransport:
		return e.Kind == KindTransport
	case ErrRemoteMalformed:
		return e.Kind == KindMalformed
	}
	return false
}

func transportError(provider string, status int, msg string, err error) *RemoteError {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return &RemoteError{Kind: KindTransport, Provider: provider, StatusCode: status, Message: msg, Err: err}
}

func malformedError(provider, msg string, err error) *RemoteError {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &RemoteError{Kind: KindMalformed, Provider: provider, Message: msg, Err: err}
}

// AsRemoteError returns err unchanged when it already is a *RemoteError and
// wraps it as a transport failure otherwise.
func AsRemoteError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return transportError(provider, 0, "", err)
}
