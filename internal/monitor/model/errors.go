package model

import "errors"

var (
	// ErrPushNotFound is returned when no push matches a lookup.
	ErrPushNotFound = errors.New("push not found")

	// ErrExecNotFound is returned when no exec matches a lookup.
	ErrExecNotFound = errors.New("exec not found")

	// ErrWorkerNotFound is returned when no active worker matches a lookup.
	ErrWorkerNotFound = errors.New("worker not found")
)
