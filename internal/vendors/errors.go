package vendors

import (
	"errors"
	"fmt"
)

// ErrUnsupported marks an optional adapter operation the vendor's API
// cannot serve. Callers check it with errors.Is and treat it as a
// capability gap, not a failure.
var ErrUnsupported = errors.New("operation not supported by vendor")

// AuthError is a vendor-level authentication failure: missing or
// schema-mismatched credentials, or a login the vendor rejected after the
// adapter's retry policy was exhausted.
type AuthError struct {
	Vendor string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vendor %s: authentication failed: %s: %v", e.Vendor, e.Reason, e.Err)
	}
	return fmt.Sprintf("vendor %s: authentication failed: %s", e.Vendor, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError is a non-success response or malformed payload from a
// vendor API.
type UpstreamError struct {
	Vendor  string
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("vendor %s: upstream error (HTTP %d): %s", e.Vendor, e.Status, e.Message)
	}
	return fmt.Sprintf("vendor %s: upstream error: %s", e.Vendor, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
