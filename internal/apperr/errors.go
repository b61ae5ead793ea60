// Package apperr holds sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrTransport     = errors.New("transport failure")
	ErrInvalidImport = errors.New("invalid import")
	ErrSyncDisabled  = errors.New("sync is not configured")
)
