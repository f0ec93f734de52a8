package playback

import (
	"errors"
	"fmt"

	"github.com/llehouerou/wavesbot/internal/errmsg"
)

// Kind classifies engine failures.
type Kind int

const (
	KindInternal Kind = iota
	KindNotJoinable
	KindConnection
	KindAlreadyExists
	KindSessionNotFound
	KindTrackNotFound
	KindInvalidQueueEdit
	KindInvalidArgument
	KindUnknownOperation
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal error"
	case KindNotJoinable:
		return "not joinable"
	case KindConnection:
		return "connection error"
	case KindAlreadyExists:
		return "already exists"
	case KindSessionNotFound:
		return "session not found"
	case KindTrackNotFound:
		return "track not found"
	case KindInvalidQueueEdit:
		return "invalid queue edit"
	case KindInvalidArgument:
		return "invalid argument"
	case KindUnknownOperation:
		return "unknown operation"
	default:
		return "unknown"
	}
}

// Error is the single error representation used across the engine.
type Error struct {
	Kind    Kind
	Op      errmsg.Op
	Context string // search term, track title, operation name...
	Err     error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrNotJoinable      = &Error{Kind: KindNotJoinable}
	ErrConnection       = &Error{Kind: KindConnection}
	ErrAlreadyExists    = &Error{Kind: KindAlreadyExists}
	ErrSessionNotFound  = &Error{Kind: KindSessionNotFound}
	ErrTrackNotFound    = &Error{Kind: KindTrackNotFound}
	ErrInvalidQueueEdit = &Error{Kind: KindInvalidQueueEdit}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrUnknownOperation = &Error{Kind: KindUnknownOperation}
	ErrInternal         = &Error{Kind: KindInternal}
)

var (
	errSessionStopped = errors.New("session has stopped")
	errConnectionLost = errors.New("connection lost")
)

func newError(kind Kind, op errmsg.Op, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Message returns a short human-readable text for chat or remote clients.
func (e *Error) Message() string {
	switch e.Kind {
	case KindSessionNotFound:
		return "No player available"
	case KindAlreadyExists:
		return "A player is already running for this server"
	case KindUnknownOperation:
		return fmt.Sprintf("Unknown operation '%s'", e.Context)
	case KindInternal:
		if e.Op == "" {
			return "Something went wrong"
		}
		return fmt.Sprintf("Something went wrong while trying to %s", e.Op)
	}

	cause := e.Err
	if cause == nil {
		cause = errors.New(e.Kind.String())
	}
	if e.Op == "" {
		return cause.Error()
	}
	return errmsg.FormatWith(e.Op, e.Context, cause)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message renders any error the way Error.Message does.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return "Something went wrong"
}
