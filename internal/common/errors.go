// Package common defines sentinel errors shared by the transfer server, its
// storage layers and the client. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Lookup errors.
	ErrorNotFound = errors.New("not found")

	// Lifecycle errors.
	ErrorInvalidState = errors.New("invalid state")
	ErrorOutOfRange   = errors.New("out of range")

	// Validation errors for incoming requests.
	ErrorInvalidArgument = errors.New("invalid argument")

	// Integrity errors, chunk or whole-file.
	ErrorIntegrity       = errors.New("integrity error")
	ErrorSizeMismatch    = errors.New("size mismatch")
	ErrorAssemblyCorrupt = errors.New("assembly corrupt")

	// Collaborator and I/O errors.
	ErrorUpstreamFetch = errors.New("upstream fetch error")
	ErrorStorage       = errors.New("storage error")

	ErrorInternal = errors.New("internal error")
)
