package domain

import "errors"

// Sentinel error taxonomy. Services wrap these with fmt.Errorf("...: %w", ...)
// so handlers can map them to precise responses with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrConfiguration = errors.New("invalid configuration")
	ErrExternalDependency = errors.New("external dependency unavailable")
)
