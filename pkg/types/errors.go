package types

import "errors"

// Store and registry errors.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	ErrLockBusy  = errors.New("store lock is busy")
)

// Assignment errors.
var (
	ErrAlreadyAssigned    = errors.New("subject already assigned for stage")
	ErrDependencyNotReady = errors.New("dependency stage not assigned for subject")
	ErrConfig             = errors.New("invalid configuration")
)

// Label lifecycle and reconciliation errors.
var (
	ErrAlreadyUsed    = errors.New("code already marked used")
	ErrVoided         = errors.New("code has been voided")
	ErrAmbiguousMatch = errors.New("receipt matches more than one issued code")
)

// Input and integrity errors.
var (
	ErrValidation        = errors.New("invalid input")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrIntegrity         = errors.New("digest mismatch")
)
