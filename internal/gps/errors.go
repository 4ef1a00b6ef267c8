package gps

import (
	"errors"
	"fmt"
	"io/fs"

	"go.bug.st/serial"
)

// ErrorCode mirrors the geolocation failure classes.
type ErrorCode int

const (
	PermissionDenied    ErrorCode = 1
	PositionUnavailable ErrorCode = 2
	Timeout             ErrorCode = 3
)

func (c ErrorCode) String() string {
	switch c {
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case PositionUnavailable:
		return "POSITION_UNAVAILABLE"
	case Timeout:
		return "TIMEOUT"
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// PositionError is a failed position request.
type PositionError struct {
	Code ErrorCode
	Err  error
}

var (
	ErrPermissionDenied    = &PositionError{Code: PermissionDenied}
	ErrPositionUnavailable = &PositionError{Code: PositionUnavailable}
	ErrTimeout             = &PositionError{Code: Timeout}
)

func (e *PositionError) Error() string {
	if e.Err == nil {
		return "gps: " + e.Code.String()
	}
	return fmt.Sprintf("gps: %s: %v", e.Code, e.Err)
}

func (e *PositionError) Unwrap() error { return e.Err }

// Is matches any PositionError with the same code, so callers can write
// errors.Is(err, gps.ErrTimeout).
func (e *PositionError) Is(target error) bool {
	t, ok := target.(*PositionError)
	return ok && t.Code == e.Code
}

// classify wraps err in a PositionError. Permission failures opening the
// device map to PermissionDenied, everything else to PositionUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pe *PositionError
	if errors.As(err, &pe) {
		return err
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PermissionDenied {
		return &PositionError{Code: PermissionDenied, Err: err}
	}
	if errors.Is(err, fs.ErrPermission) {
		return &PositionError{Code: PermissionDenied, Err: err}
	}
	return &PositionError{Code: PositionUnavailable, Err: err}
}
