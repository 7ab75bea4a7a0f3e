package serial

import (
	"errors"
	"fmt"
)

// ErrPortClosed is returned by Read, Write and Close once the port is closed
var ErrPortClosed = errors.New("serial port is not open")

// SerialError records which operation failed on which port
type SerialError struct {
	Operation string
	Port      string
	Cause     error
}

func (e *SerialError) Error() string {
	msg := fmt.Sprintf("serial %s operation failed on port %s", e.Operation, e.Port)
	if e.Cause == nil {
		return msg
	}
	return msg + ": " + e.Cause.Error()
}

func (e *SerialError) Unwrap() error {
	return e.Cause
}

// NewSerialError wraps cause
func NewSerialError(operation, port string, cause error) *SerialError {
	return &SerialError{Operation: operation, Port: port, Cause: cause}
}

// ConnectionState is the lifecycle of a session's device
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

var stateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateError:        "error",
}

func (s ConnectionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
