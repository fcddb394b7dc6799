package errors

import "errors"

// Domain errors
var (
	// Scan errors
	ErrRootNotFound  = errors.New("scan root not found")
	ErrNotADirectory = errors.New("scan root is not a directory")
	ErrParseFailed   = errors.New("html parse failed")
	ErrTraversal     = errors.New("directory traversal failed")
	ErrMalformedURL  = errors.New("malformed resource url")
	ErrUnknownType   = errors.New("unknown resource type")
	ErrScanNotFound  = errors.New("scan snapshot not found")
	ErrInvalidScanID = errors.New("invalid scan ID")

	// Policy errors
	ErrUnknownDialect   = errors.New("unknown config dialect")
	ErrUnknownSelection = errors.New("unknown selection mode")
	ErrInvalidAllowList = errors.New("invalid allow-list")
	ErrEmptyPolicy      = errors.New("policy cannot be empty")

	// Violation report errors
	ErrInvalidReport = errors.New("invalid violation report")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
)
