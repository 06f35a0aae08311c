// Package terrors defines TimeFlow's typed error kinds (spec §7) so that
// callers at a Store or Ingestor boundary can branch with errors.Is/As
// instead of parsing message strings.
package terrors

import "fmt"

// Kind classifies an error for logging severity and caller recovery.
type Kind string

const (
	KindIO          Kind = "io"
	KindParse       Kind = "parse"
	KindIntegrity   Kind = "integrity"
	KindConcurrency Kind = "concurrency"
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindTransient   Kind = "transient"
)

// Error wraps an underlying cause with a Kind and a short operator-facing
// message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so callers can
// write errors.Is(err, terrors.Integrity("")) against a Kind-only sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" {
		return t.Kind == e.Kind && t.Message == e.Message
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func IO(message string, cause error) *Error          { return Wrap(KindIO, message, cause) }
func Parse(message string, cause error) *Error       { return Wrap(KindParse, message, cause) }
func Integrity(message string) *Error                { return New(KindIntegrity, message) }
func IntegrityWrap(message string, cause error) *Error { return Wrap(KindIntegrity, message, cause) }
func Concurrency(message string) *Error               { return New(KindConcurrency, message) }
func Validation(message string) *Error                { return New(KindValidation, message) }
func NotFound(message string) *Error                  { return New(KindNotFound, message) }
func Transient(message string, cause error) *Error    { return Wrap(KindTransient, message, cause) }

// OfKind reports whether err (or any error it wraps) is a *Error of kind k.
func OfKind(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == k {
				return true
			}
			err = e.Cause
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
