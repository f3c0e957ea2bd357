package auth

import (
	"errors"
	"sort"
	"strings"
)

// Errors shared by every layer that talks to the identity provider. Adapters
// wrap these with provider detail; callers branch with errors.Is.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountExists        = errors.New("account already exists")
	ErrValidationRejected   = errors.New("submission rejected by identity provider")
	ErrNetwork              = errors.New("identity provider unavailable")
	ErrSessionIndeterminate = errors.New("session state indeterminate")
)

// FieldErrors maps a form field name to the message shown next to it.
type FieldErrors map[string]string

// Has reports whether field carries an error.
func (f FieldErrors) Has(field string) bool {
	_, ok := f[field]
	return ok
}

// Get returns the message for field, or "".
func (f FieldErrors) Get(field string) string {
	return f[field]
}

func (f FieldErrors) add(field, msg string) {
	if _, exists := f[field]; exists {
		return
	}
	f[field] = msg
}

// ValidationError is returned by the Validator. It never leaves the process:
// it is rendered inline and no network call is made.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "invalid " + strings.Join(names, ", ")
}
