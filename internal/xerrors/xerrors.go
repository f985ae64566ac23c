package xerrors

import (
	"errors"
	"net/http"
)

// Kind classifies share errors.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
	KindGone
	KindPayloadTooLarge
	KindConflict
)

// Error wraps an underlying error with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	base := e.Msg
	if base == "" {
		base = kindString(e.Kind)
	}
	if e.Op != "" {
		base = e.Op + ": " + base
	}
	if e.Err != nil {
		return base + ": " + e.Err.Error()
	}
	return base
}

func (e *Error) Unwrap() error { return e.Err }

func kindString(kind Kind) string {
	switch kind {
	case KindInvalid:
		return "invalid request"
	case KindNotFound:
		return "not found"
	case KindGone:
		return "gone"
	case KindPayloadTooLarge:
		return "payload too large"
	case KindConflict:
		return "conflict"
	default:
		return "internal error"
	}
}

func (k Kind) String() string { return kindString(k) }

// Wrap annotates err with kind and op. If err is nil, Wrap returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// E creates an error carrying a client facing message.
func E(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// KindOf extracts the Kind from err. Errors that were never classified are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// WrapMsg is Wrap with a client facing message.
func WrapMsg(kind Kind, op, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Message returns the client facing message of err. The wrapped cause is
// never part of it.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return kindString(KindInternal)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Kind == KindConflict {
		return kindString(KindInternal)
	}
	return kindString(e.Kind)
}

// HTTPStatus maps an error to its response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalid:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindGone:
		return http.StatusGone
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
