package sending

import (
	"errors"
	"fmt"
)

// Class is the retry disposition of a transport failure.
type Class int

const (
	// ClassTransient failures (timeouts, throttling, 5xx) may succeed later.
	ClassTransient Class = iota
	// ClassPermanent failures (invalid recipient, rejected content) never will.
	ClassPermanent
	// ClassAuthRequired means the account's credentials were refused or revoked.
	ClassAuthRequired
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassAuthRequired:
		return "auth_required"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Error is a classified transport failure.
type Error struct {
	Class Class
	// Code is the provider's own error code or reply code, for logs.
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %v", e.Class, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a transient failure.
func Transient(code string, err error) error { return &Error{Class: ClassTransient, Code: code, Err: err} }

// Permanent wraps err as a permanent failure.
func Permanent(code string, err error) error { return &Error{Class: ClassPermanent, Code: code, Err: err} }

// AuthRequired wraps err as a credential failure.
func AuthRequired(code string, err error) error {
	return &Error{Class: ClassAuthRequired, Code: code, Err: err}
}

// Classify returns the class of err. Unclassified errors, including
// deadlines and network failures, are transient.
func Classify(err error) Class {
	var se *Error
	if errors.As(err, &se) {
		return se.Class
	}
	return ClassTransient
}
