package models

import "errors"

var (
	// ErrNotFound is returned for an unknown room, round or player.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned for a wrong secret or the wrong actor for an action.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidPhase is returned for an action submitted outside its phase.
	ErrInvalidPhase = errors.New("invalid phase")
	// ErrFull is returned when a room is at capacity.
	ErrFull = errors.New("room full")
	// ErrInvalidState is returned for room lifecycle violations.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransientIO marks generator or storage hiccups that are recovered locally.
	ErrTransientIO = errors.New("transient io")
)
