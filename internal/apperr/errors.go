// Package apperr defines the error taxonomy shared by every operation.
package apperr

import "errors"

var (
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrRepositoryFetch = errors.New("repository fetch error")
	ErrPathTraversal   = errors.New("path traversal")
	ErrFileNotFound    = errors.New("file not found")
	ErrRemoteSearch    = errors.New("remote search error")
)

// Error carries a user-facing message while still matching one of the
// sentinels above through errors.Is.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// New returns an error of the given kind with msg as its text.
func New(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap returns an error of the given kind whose text is "msg: cause".
func Wrap(kind error, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}
