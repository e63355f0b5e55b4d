// Package services defines the business logic for the agent turn and the
// trade-in lifecycle. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Agent-turn errors.
var (
	// ErrEmptyMessage is returned when a turn carries no user text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when the user message exceeds the configured
	// maximum length.
	ErrTooLong = errors.New("message too long")

	// ErrMissingSession is returned when a turn has no session id.
	ErrMissingSession = errors.New("session id is required")

	// ErrUpstream wraps model backend failures. Handlers map it to a generic 500.
	ErrUpstream = errors.New("model backend unavailable")
)

// Trade-in errors.
var (
	// ErrLeadNotFound indicates that the requested lead does not exist.
	ErrLeadNotFound = errors.New("trade-in lead not found")

	// ErrLeadClosed is returned when mutating a submitted or abandoned lead.
	ErrLeadClosed = errors.New("trade-in lead is closed")

	// ErrInvalidTransition is returned when a status change is not an allowed edge.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrIncompleteLead is returned by Submit when required fields are missing.
	// The wrapping error lists them.
	ErrIncompleteLead = errors.New("trade-in lead is incomplete")

	// ErrAlreadySubmitted is returned when the lead's staff notification has
	// already been claimed.
	ErrAlreadySubmitted = errors.New("trade-in lead already submitted")

	// ErrEmptyPatch is returned when an upsert discloses nothing.
	ErrEmptyPatch = errors.New("nothing to update")

	// ErrInvalidPhone is returned for phone numbers that do not parse as valid.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrInvalidEmail is returned for malformed email addresses.
	ErrInvalidEmail = errors.New("invalid email address")
)
