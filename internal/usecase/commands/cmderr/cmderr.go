// Package cmderr defines the command execution error taxonomy. Every failure
// the dispatcher reports to chat is one of these kinds; the message is what
// the user sees after the "Error: " prefix.
package cmderr

import (
	"errors"
	"fmt"

	"polybot/internal/domain"
)

type Kind int

const (
	KindMissingArgument Kind = iota
	KindInvalidArgument
	KindNoPermissions
	KindDatabase
	KindTemplateRender
	KindConfiguration
	KindGeneric
)

// Error carries the failure kind alongside the wrapped cause, if any.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.err }

// Is matches two command errors by kind so tests and callers can use
// errors.Is against a bare kind sentinel.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind && (other.msg == "" || other.msg == e.msg)
}

// KindOf extracts the kind from an error chain, or KindGeneric.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindGeneric
}

func MissingArgument(name string) *Error {
	return &Error{Kind: KindMissingArgument, msg: "missing argument: " + name}
}

func InvalidArgument(value string) *Error {
	return &Error{Kind: KindInvalidArgument, msg: "invalid argument: " + value}
}

func NoPermissions(required domain.Permission) *Error {
	return &Error{
		Kind: KindNoPermissions,
		msg:  fmt.Sprintf("you don't have the permissions to run this command (%s required)", required),
	}
}

// Disabled reports a capability that exists but is switched off for this
// deployment. It carries the NoPermissions kind so callers treat it as a
// hard rejection rather than a misconfiguration.
func Disabled(what string) *Error {
	return &Error{Kind: KindNoPermissions, msg: what + " is disabled"}
}

func Database(err error) *Error {
	return &Error{Kind: KindDatabase, msg: "database error: " + err.Error(), err: err}
}

func TemplateRender(err error) *Error {
	return &Error{Kind: KindTemplateRender, msg: err.Error(), err: err}
}

func Configuration(msg string) *Error {
	return &Error{Kind: KindConfiguration, msg: msg}
}

func Generic(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Kind: KindGeneric, msg: err.Error(), err: err}
}
