// internal/models/errors.go
package models

import "errors"

// Sentinels returned by collaborators and matched with errors.Is.
var (
	ErrProfileNotFound   = errors.New("profile not found")
	ErrSchemeNotFound    = errors.New("scheme not found")
	ErrDependencyTimeout = errors.New("dependency timeout")
)
