package panel

import (
	"errors"
	"net/http"

	"grimm.is/hearth/internal/i18n"
)

// Error is a command failure. Key is a message catalog key, Args fill its
// placeholders; the HTTP edge renders it in the caller's language.
type Error struct {
	Status int
	Key    string
	Args   []any
}

func (e *Error) Error() string {
	return i18n.Text(i18n.NewPrinter(i18n.DefaultLang), e.Key, e.Args...)
}

func newError(status int, key string, args ...any) *Error {
	return &Error{Status: status, Key: key, Args: args}
}

// invalid is the generic input error (HTTP 400).
func invalid(key string, args ...any) *Error {
	return newError(http.StatusBadRequest, key, args...)
}

func errNotAllowed() *Error { return newError(http.StatusForbidden, "notallowed") }

func errNoResources() *Error { return newError(http.StatusNotAcceptable, "noresources") }

func wrongField(field string) *Error {
	return invalid("stringiswrong", i18n.Label(field))
}

func emptyField(field string) *Error {
	return invalid("stringisempty", i18n.Label(field))
}

// StatusOf returns the HTTP status of err, 500 for anything but *Error.
func StatusOf(err error) int {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Status
	}
	return http.StatusInternalServerError
}

// KeyOf returns the catalog key of err, "internalerror" for anything but
// *Error.
func KeyOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Key
	}
	return "internalerror"
}
