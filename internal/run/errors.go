// internal/run/errors.go
package run

import "errors"

// Validation errors. Raised before any device I/O; the run never starts.
var (
	ErrPatternSizeMismatch = errors.New("run: array size and write pattern do not match")
	ErrPatternNotBinary    = errors.New("run: pattern must be a binary number")
)

// ErrInvalidPatternChar marks a pattern character that is neither '0' nor
// '1'. Non-fatal: the character contributes no write request.
var ErrInvalidPatternChar = errors.New("run: write pattern error - use 0 or 1")

// ErrCancelled means the operator cancelled the run. Already-collected
// result blocks remain available.
var ErrCancelled = errors.New("run: cancelled")
