package errors

import (
	"fmt"
	"time"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *PickError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *PickError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// ConnectFailure creates an error for an unreachable daemon endpoint
func ConnectFailure(socket string, err error) *PickError {
	return Wrap(err, ErrCodeConnectFailure, "cannot reach picker daemon").
		WithDetail("socket", socket)
}

// BootstrapFailure creates an error for a daemon that could not be started
// or did not come up within the retry budget
func BootstrapFailure(attempts int, err error) *PickError {
	return Wrap(err, ErrCodeBootstrapFailure,
		fmt.Sprintf("daemon did not become reachable after %d attempts", attempts)).
		WithDetail("attempts", attempts)
}

// Timeout creates an error for an operation that exceeded its deadline
func Timeout(op string, after time.Duration) *PickError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", op, after)).
		WithDetail("operation", op).
		WithDetail("timeout", after.String())
}

// Busy creates the rejection returned while another session is active
func Busy(activeSession string) *PickError {
	return New(ErrCodeBusy, "picker is already open in another session").
		WithDetail("session", activeSession)
}

// Protocol creates a wire protocol violation error
func Protocol(format string, args ...interface{}) *PickError {
	return New(ErrCodeProtocol, fmt.Sprintf(format, args...))
}

// CatalogCorrupt creates an error for an unreadable or inconsistent catalog
func CatalogCorrupt(reason string) *PickError {
	return New(ErrCodeCatalogCorrupt, fmt.Sprintf("catalog is corrupt: %s", reason))
}

// CatalogVersionMismatch creates an error for an unsupported catalog version
func CatalogVersionMismatch(got, want uint16) *PickError {
	return New(ErrCodeCatalogVersionMismatch,
		fmt.Sprintf("catalog version %d is not supported (want %d)", got, want)).
		WithDetail("version", got).
		WithDetail("supported", want)
}

// ContextInit creates an error for a render surface that failed to initialize
func ContextInit(err error) *PickError {
	return Wrap(err, ErrCodeContextInit, "failed to initialize render context")
}
