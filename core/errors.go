package core

import "errors"

// Error taxonomy shared by every component. Implementations wrap these with
// fmt.Errorf("...: %w", ...) so callers can branch with errors.Is.
var (
	// ErrNotFound reports an unknown thread, message or snapshot reference.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument reports malformed input such as an empty resource id
	// or a non-positive topK.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDimensionMismatch reports an embedding whose length differs from the
	// vectors already stored for the same model and scope.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrConfigurationMissing reports an absent RuntimeContainer key.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrTransientUpstream reports a recoverable embedder or storage I/O failure.
	ErrTransientUpstream = errors.New("transient upstream failure")
)

// IsTransient reports whether err is (or wraps) ErrTransientUpstream.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientUpstream)
}
