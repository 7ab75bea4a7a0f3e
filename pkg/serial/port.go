package serial

import (
	"errors"
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// Port is a serial device a session reads from and writes to
type Port interface {
	Open(config SerialConfig) error
	Close() error
	Read(buffer []byte) (int, error)
	Write(data []byte) (int, error)
	IsOpen() bool
	GetConfig() SerialConfig
}

// openFunc matches serial.Open
type openFunc func(name string, mode *serial.Mode) (serial.Port, error)

// CrossPlatformSerialPort implements Port using go.bug.st/serial. A nil
// port means closed.
type CrossPlatformSerialPort struct {
	mu     sync.RWMutex
	port   serial.Port
	config SerialConfig
	open   openFunc
}

// NewCrossPlatformSerialPort returns a closed port
func NewCrossPlatformSerialPort() *CrossPlatformSerialPort {
	return &CrossPlatformSerialPort{open: serial.Open}
}

// Open opens the device named by config. The configured timeout bounds
// every Read so the session's read loop can notice cancellation.
func (sp *CrossPlatformSerialPort) Open(config SerialConfig) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.port != nil {
		return fmt.Errorf("port %s is already open", sp.config.Port)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	port, err := sp.open(config.Port, config.Mode())
	if err != nil {
		return NewSerialError("open", config.Port, err)
	}

	if config.Timeout > 0 {
		if err := port.SetReadTimeout(config.Timeout); err != nil {
			port.Close()
			return NewSerialError("configure", config.Port, err)
		}
	}

	sp.port, sp.config = port, config
	return nil
}

// Close releases the device
func (sp *CrossPlatformSerialPort) Close() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.port == nil {
		return ErrPortClosed
	}

	port := sp.port
	sp.port = nil
	if err := port.Close(); err != nil {
		return NewSerialError("close", sp.config.Port, err)
	}
	return nil
}

// Read returns whatever the device delivered before the read timeout; a
// timeout is 0 bytes and no error.
func (sp *CrossPlatformSerialPort) Read(buffer []byte) (int, error) {
	return sp.transfer("read", func(p serial.Port) (int, error) {
		return p.Read(buffer)
	})
}

// Write sends data to the device
func (sp *CrossPlatformSerialPort) Write(data []byte) (int, error) {
	return sp.transfer("write", func(p serial.Port) (int, error) {
		return p.Write(data)
	})
}

// transfer runs fn against the open device without holding the lock, so a
// blocked Read never delays Write or Close.
func (sp *CrossPlatformSerialPort) transfer(op string, fn func(serial.Port) (int, error)) (int, error) {
	sp.mu.RLock()
	port, name := sp.port, sp.config.Port
	sp.mu.RUnlock()

	if port == nil {
		return 0, ErrPortClosed
	}

	n, err := fn(port)
	switch {
	case err == nil:
		return n, nil
	case isPortClosed(err):
		return n, ErrPortClosed
	default:
		return n, NewSerialError(op, name, err)
	}
}

// IsOpen reports whether the device is open
func (sp *CrossPlatformSerialPort) IsOpen() bool {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	return sp.port != nil
}

// Connected is IsOpen under the name the console expects
func (sp *CrossPlatformSerialPort) Connected() bool {
	return sp.IsOpen()
}

// GetConfig returns the configuration of the last successful Open
func (sp *CrossPlatformSerialPort) GetConfig() SerialConfig {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	return sp.config
}

func isPortClosed(err error) bool {
	var portErr *serial.PortError
	return errors.As(err, &portErr) && portErr.Code() == serial.PortClosed
}
