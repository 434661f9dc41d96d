package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrParse            = errors.New("parse error")
	ErrToolUnavailable  = errors.New("tool unavailable")
	ErrTransport        = errors.New("transport error")
	ErrTimeout          = errors.New("timeout")
	ErrDeviceBusy       = errors.New("device busy")
	ErrCheckFailed      = errors.New("filesystem check failed")
	ErrMountFailed      = errors.New("mount failed")
	ErrRepairInProgress = errors.New("repair already in progress")
	ErrNotConfirmed     = errors.New("operator confirmation required")
	ErrInternal         = errors.New("internal error")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeParse     ErrorType = "parse"
	ErrorTypeTool      ErrorType = "tool"
	ErrorTypeTransport ErrorType = "transport"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeRepair    ErrorType = "repair"
	ErrorTypeConflict  ErrorType = "conflict"
	ErrorTypeInternal  ErrorType = "internal"
)

// MonitorError is a structured error for disk monitoring and repair
// operations. It carries the failing operation and device so per-device
// failures can be surfaced without aborting the rest of a cycle.
type MonitorError struct {
	Type      ErrorType
	Op        string // Operation that failed (e.g., "run_smartctl", "send_mail")
	Device    string // Device the operation targeted, if any
	Stage     string // Repair stage, for repair errors
	Err       error  // Underlying error
	Timestamp time.Time
	Retryable bool
}

func (e *MonitorError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s failed at stage %s on %s: %v", e.Op, e.Stage, e.Device, e.Err)
	}
	if e.Device != "" {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Device, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *MonitorError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *MonitorError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrParse:
		return e.Type == ErrorTypeParse
	case ErrToolUnavailable:
		return e.Type == ErrorTypeTool
	case ErrTransport:
		return e.Type == ErrorTypeTransport
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrRepairInProgress:
		return e.Type == ErrorTypeConflict
	}

	return errors.Is(e.Err, target)
}

// NewMonitorError creates a new MonitorError
func NewMonitorError(errorType ErrorType, op, device string, err error) *MonitorError {
	return &MonitorError{
		Type:      errorType,
		Op:        op,
		Device:    device,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

// WithStage records the repair stage that the error terminated at.
func (e *MonitorError) WithStage(stage string) *MonitorError {
	e.Stage = stage
	return e
}

// isRetryable determines if an error should be retried. Transport errors get
// one retry within a cycle; repair-stage errors are never retried
// automatically because blind re-runs of a disk repair risk data loss.
func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransport, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// Helper functions

// WrapParseError wraps a diagnostic-output parse failure with context
func WrapParseError(op, device string, err error) error {
	return NewMonitorError(ErrorTypeParse, op, device, err)
}

// WrapToolError wraps a missing or failed external tool with context
func WrapToolError(op, device string, err error) error {
	return NewMonitorError(ErrorTypeTool, op, device, err)
}

// WrapTransportError wraps a mail transport failure with context
func WrapTransportError(op string, err error) error {
	return NewMonitorError(ErrorTypeTransport, op, "", err)
}

// WrapRepairError wraps a repair-stage failure with the stage it died at
func WrapRepairError(op, device, stage string, err error) error {
	return NewMonitorError(ErrorTypeRepair, op, device, err).WithStage(stage)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var monErr *MonitorError
	if errors.As(err, &monErr) {
		return monErr.Retryable
	}
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout)
}
