package service

import "errors"

// Engine error taxonomy. Every failed scheduler call returns exactly one of
// these (possibly wrapped with detail); the transport layer maps them to
// status codes.
var (
	ErrSpotNotFound     = errors.New("spot not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrRSVPNotFound     = errors.New("no rsvp to withdraw")
	ErrPermissionDenied = errors.New("actor lacks permission for this session")
	ErrSessionFull      = errors.New("session is at capacity")
	ErrSessionInactive  = errors.New("session is not accepting changes")
	ErrInvalidSchedule  = errors.New("invalid session schedule")
)
