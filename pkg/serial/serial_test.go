package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

func validConfig() SerialConfig {
	return SerialConfig{
		Port:     "COM1",
		BaudRate: 115200,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  time.Second * 5,
	}
}

func TestSerialConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*SerialConfig)
		wantErr bool
	}{
		{"valid config", func(c *SerialConfig) {}, false},
		{"empty port", func(c *SerialConfig) { c.Port = "" }, true},
		{"invalid baud rate", func(c *SerialConfig) { c.BaudRate = 12345 }, true},
		{"low baud rate", func(c *SerialConfig) { c.BaudRate = 1200 }, false},
		{"invalid data bits", func(c *SerialConfig) { c.DataBits = 9 }, true},
		{"invalid stop bits", func(c *SerialConfig) { c.StopBits = 3 }, true},
		{"invalid parity", func(c *SerialConfig) { c.Parity = "invalid" }, true},
		{"negative timeout", func(c *SerialConfig) { c.Timeout = -time.Second }, true},
		{"zero timeout", func(c *SerialConfig) { c.Timeout = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.modify(&config)

			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("SerialConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Errorf("DefaultConfig() returned invalid config: %v", err)
	}

	if config.BaudRate != 115200 {
		t.Errorf("DefaultConfig() BaudRate = %d, want 115200", config.BaudRate)
	}

	if config.DataBits != 8 || config.StopBits != 1 || config.Parity != "none" {
		t.Errorf("DefaultConfig() framing = %s, want 8N1", config)
	}
}

func TestSerialConfig_ValidBaudRates(t *testing.T) {
	for _, rate := range StandardBaudRates {
		config := validConfig()
		config.BaudRate = rate

		if err := config.Validate(); err != nil {
			t.Errorf("Valid baud rate %d should not cause validation error: %v", rate, err)
		}
	}
}

func TestSerialConfig_ValidParityValues(t *testing.T) {
	for _, parity := range Parities {
		config := validConfig()
		config.Parity = parity

		if err := config.Validate(); err != nil {
			t.Errorf("Valid parity %s should not cause validation error: %v", parity, err)
		}
	}
}

func TestSerialConfig_String(t *testing.T) {
	config := validConfig()
	config.Parity = "even"
	config.StopBits = 2

	if got, want := config.String(), "COM1 115200 8E2"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestSerialConfig_Mode(t *testing.T) {
	config := validConfig()
	config.Parity = "odd"
	config.StopBits = 2
	config.DTR = true

	mode := config.Mode()
	if mode.BaudRate != 115200 || mode.DataBits != 8 {
		t.Errorf("Mode() = %+v", mode)
	}
	if mode.Parity != serial.OddParity {
		t.Errorf("Mode().Parity = %v, want OddParity", mode.Parity)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("Mode().StopBits = %v, want TwoStopBits", mode.StopBits)
	}
	if mode.InitialStatusBits == nil || !mode.InitialStatusBits.DTR || mode.InitialStatusBits.RTS {
		t.Errorf("Mode().InitialStatusBits = %+v, want DTR only", mode.InitialStatusBits)
	}
}

// fakePort implements serial.Port; only the methods used here are overridden
type fakePort struct {
	serial.Port

	mu      sync.Mutex
	rx      []byte
	tx      []byte
	closed  bool
	timeout time.Duration
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := copy(buf, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tx = append(p.tx, data...)
	return len(data), nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	return nil
}

func newFakeBackedPort(fake *fakePort, openErr error) *CrossPlatformSerialPort {
	sp := NewCrossPlatformSerialPort()
	sp.open = func(name string, mode *serial.Mode) (serial.Port, error) {
		if openErr != nil {
			return nil, openErr
		}
		return fake, nil
	}
	return sp
}

func TestNewCrossPlatformSerialPort(t *testing.T) {
	port := NewCrossPlatformSerialPort()

	if port.IsOpen() || port.Connected() {
		t.Error("New serial port should not be open")
	}

	if port.GetConfig().Port != "" {
		t.Error("New serial port should have empty config")
	}
}

func TestCrossPlatformSerialPort_OpenInvalidConfig(t *testing.T) {
	port := newFakeBackedPort(&fakePort{}, nil)

	config := validConfig()
	config.Port = ""

	if err := port.Open(config); err == nil {
		t.Error("Opening with invalid config should return error")
	}

	if port.IsOpen() {
		t.Error("Port should not be open after failed open")
	}
}

func TestCrossPlatformSerialPort_OpenReadWriteClose(t *testing.T) {
	fake := &fakePort{rx: []byte("OK\r\n")}
	port := newFakeBackedPort(fake, nil)

	if err := port.Open(validConfig()); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if !port.Connected() {
		t.Fatal("Connected() = false after Open()")
	}
	if fake.timeout != 5*time.Second {
		t.Errorf("read timeout = %v, want 5s", fake.timeout)
	}

	buf := make([]byte, 16)
	n, err := port.Read(buf)
	if err != nil || string(buf[:n]) != "OK\r\n" {
		t.Errorf("Read() = %q, %v", buf[:n], err)
	}

	if n, err := port.Write([]byte("AT\r")); err != nil || n != 3 {
		t.Errorf("Write() = %d, %v", n, err)
	}
	if string(fake.tx) != "AT\r" {
		t.Errorf("device received %q, want %q", fake.tx, "AT\r")
	}

	if err := port.Open(validConfig()); err == nil {
		t.Error("Opening already open port should return error")
	}

	if err := port.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if port.IsOpen() {
		t.Error("IsOpen() = true after Close()")
	}
}

func TestCrossPlatformSerialPort_OpenFailure(t *testing.T) {
	cause := errors.New("no such file or directory")
	port := newFakeBackedPort(nil, cause)

	err := port.Open(validConfig())

	var serr *SerialError
	if !errors.As(err, &serr) {
		t.Fatalf("Open() error = %v, want *SerialError", err)
	}
	if serr.Operation != "open" || serr.Port != "COM1" {
		t.Errorf("SerialError = %+v", serr)
	}
	if !errors.Is(err, cause) {
		t.Error("SerialError should unwrap to the cause")
	}
}

func TestCrossPlatformSerialPort_NotOpen(t *testing.T) {
	port := NewCrossPlatformSerialPort()

	if err := port.Close(); err == nil {
		t.Error("Closing not open port should return error")
	}

	if _, err := port.Read(make([]byte, 10)); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Read() error = %v, want ErrPortClosed", err)
	}

	if _, err := port.Write([]byte("test")); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Write() error = %v, want ErrPortClosed", err)
	}
}

func TestConvertStopBits(t *testing.T) {
	tests := []struct {
		input    int
		expected serial.StopBits
	}{
		{1, serial.OneStopBit},
		{2, serial.TwoStopBits},
		{3, serial.OneStopBit},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("stopbits_%d", tt.input), func(t *testing.T) {
			if got := convertStopBits(tt.input); got != tt.expected {
				t.Errorf("convertStopBits(%d) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestConvertParity(t *testing.T) {
	tests := []struct {
		input    string
		expected serial.Parity
	}{
		{"none", serial.NoParity},
		{"odd", serial.OddParity},
		{"even", serial.EvenParity},
		{"mark", serial.MarkParity},
		{"space", serial.SpaceParity},
		{"invalid", serial.NoParity},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("parity_%s", tt.input), func(t *testing.T) {
			if got := convertParity(tt.input); got != tt.expected {
				t.Errorf("convertParity(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPortInfos(t *testing.T) {
	details := []*enumerator.PortDetails{
		{Name: "/dev/ttyUSB1", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A1", Product: "FT232R"},
		nil,
		{Name: "/dev/ttyS0", IsUSB: false, VID: "ignored"},
	}

	infos := portInfos(details)

	if len(infos) != 2 {
		t.Fatalf("portInfos() returned %d entries, want 2", len(infos))
	}
	if infos[0].Name != "/dev/ttyS0" || infos[0].VID != "" {
		t.Errorf("infos[0] = %+v, want non-USB ttyS0 without VID", infos[0])
	}
	if infos[1].Description != "FT232R" || infos[1].VID != "0403" || infos[1].PID != "6001" || infos[1].SerialNumber != "A1" {
		t.Errorf("infos[1] = %+v", infos[1])
	}
}

func TestSerialError_Error(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		port      string
		cause     error
		expected  string
	}{
		{
			name:      "error with cause",
			operation: "open",
			port:      "COM1",
			cause:     fmt.Errorf("device not found"),
			expected:  "serial open operation failed on port COM1: device not found",
		},
		{
			name:      "error without cause",
			operation: "read",
			port:      "COM2",
			cause:     nil,
			expected:  "serial read operation failed on port COM2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewSerialError(tt.operation, tt.port, tt.cause)

			if got := err.Error(); got != tt.expected {
				t.Errorf("SerialError.Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		expected string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateError, "error"},
		{ConnectionState(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("ConnectionState.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RetryConfig
		wantErr bool
	}{
		{"default", DefaultRetryConfig(), false},
		{"negative retries", RetryConfig{MaxRetries: -1, BackoffFactor: 1}, true},
		{"negative interval", RetryConfig{RetryInterval: -time.Second, BackoffFactor: 1}, true},
		{"small backoff", RetryConfig{BackoffFactor: 0.5}, true},
		{"max below interval", RetryConfig{RetryInterval: time.Second, MaxInterval: time.Millisecond, BackoffFactor: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("RetryConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// flakyPort fails to open a fixed number of times
type flakyPort struct {
	CrossPlatformSerialPort
	failures int
	err      error
	attempts int
}

func (p *flakyPort) Open(config SerialConfig) error {
	p.attempts++
	if p.attempts <= p.failures {
		return p.err
	}
	return nil
}

func fastRetry(n int) RetryConfig {
	return RetryConfig{
		MaxRetries:    n,
		RetryInterval: time.Millisecond,
		BackoffFactor: 2,
		MaxInterval:   4 * time.Millisecond,
	}
}

func TestOpenWithRetry(t *testing.T) {
	busy := &serial.PortError{}
	if busy.Code() != serial.PortBusy {
		t.Skip("zero PortError is not PortBusy")
	}

	tests := []struct {
		name         string
		failures     int
		err          error
		wantErr      bool
		wantAttempts int
	}{
		{"first try", 0, nil, false, 1},
		{"recovers after busy", 2, busy, false, 3},
		{"gives up", 10, busy, true, 4},
		{"permanent error", 10, errors.New("permission denied"), true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &flakyPort{failures: tt.failures, err: tt.err}

			err := OpenWithRetry(context.Background(), port, validConfig(), fastRetry(3))
			if (err != nil) != tt.wantErr {
				t.Errorf("OpenWithRetry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if port.attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", port.attempts, tt.wantAttempts)
			}
		})
	}
}

func TestOpenWithRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	port := &flakyPort{failures: 10, err: errors.New("device busy")}
	retry := fastRetry(5)
	retry.RetryInterval = time.Hour
	retry.MaxInterval = time.Hour

	err := OpenWithRetry(ctx, port, validConfig(), retry)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("OpenWithRetry() error = %v, want context.Canceled", err)
	}
	if port.attempts != 1 {
		t.Errorf("attempts = %d, want 1", port.attempts)
	}
}

func TestOpenWithRetry_InvalidConfig(t *testing.T) {
	port := &flakyPort{}
	config := validConfig()
	config.BaudRate = 1

	if err := OpenWithRetry(context.Background(), port, config, DefaultRetryConfig()); err == nil {
		t.Error("OpenWithRetry() with invalid config should fail")
	}
	if port.attempts != 0 {
		t.Errorf("attempts = %d, want 0", port.attempts)
	}
}

func TestIsRecoverableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"device busy text", errors.New("open /dev/ttyUSB0: device busy"), true},
		{"no such device text", errors.New("No such device"), true},
		{"permission", errors.New("permission denied"), false},
		{"wrapped port busy", fmt.Errorf("open: %w", &serial.PortError{}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRecoverableError(tt.err); got != tt.expected {
				t.Errorf("isRecoverableError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}
