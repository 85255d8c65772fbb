package tokencache

import (
	"errors"
	"fmt"
)

// ErrTokenAcquisition matches every failure to obtain an upstream token.
var ErrTokenAcquisition = errors.New("tokencache: token acquisition failed")

// AcquisitionError reports why an upstream token could not be obtained.
// Message carries the upstream error code or description, never credentials.
type AcquisitionError struct {
	// StatusCode is the upstream HTTP status, or 0 when no response arrived.
	StatusCode int
	Message    string
	Err        error
}

func (e *AcquisitionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token acquisition failed: status %d: %s", e.StatusCode, e.Message)
	}
	return "token acquisition failed: " + e.Message
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Is reports ErrTokenAcquisition as a match.
func (e *AcquisitionError) Is(target error) bool {
	return target == ErrTokenAcquisition
}

func asAcquisitionError(err error) *AcquisitionError {
	var ae *AcquisitionError
	if errors.As(err, &ae) {
		return ae
	}
	return &AcquisitionError{Message: err.Error(), Err: err}
}
