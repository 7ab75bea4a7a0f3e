// Package serial opens serial devices through go.bug.st/serial and keeps the
// configuration, error and retry types the console session is built on.
package serial

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"go.bug.st/serial"
)

// StandardBaudRates lists the baud rates accepted by SerialConfig.Validate
var StandardBaudRates = []int{
	300, 1200, 2400, 4800, 9600, 14400, 19200, 38400, 57600,
	115200, 230400, 250000, 460800, 500000, 921600, 1000000, 2000000,
}

// Parities lists the accepted parity names
var Parities = []string{"none", "odd", "even", "mark", "space"}

var parityModes = map[string]serial.Parity{
	"none":  serial.NoParity,
	"odd":   serial.OddParity,
	"even":  serial.EvenParity,
	"mark":  serial.MarkParity,
	"space": serial.SpaceParity,
}

var stopBitModes = map[int]serial.StopBits{
	1: serial.OneStopBit,
	2: serial.TwoStopBits,
}

// SerialConfig holds the line parameters of one device
type SerialConfig struct {
	Port     string        `json:"port"`
	BaudRate int           `json:"baud_rate"`
	DataBits int           `json:"data_bits"`
	StopBits int           `json:"stop_bits"`
	Parity   string        `json:"parity"`
	Timeout  time.Duration `json:"timeout"`
	DTR      bool          `json:"dtr"`
	RTS      bool          `json:"rts"`
}

// Validate reports every invalid field at once
func (c SerialConfig) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("port name is required"))
	}
	if !slices.Contains(StandardBaudRates, c.BaudRate) {
		errs = append(errs, fmt.Errorf("unsupported baud rate %d", c.BaudRate))
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		errs = append(errs, fmt.Errorf("data bits %d outside 5..8", c.DataBits))
	}
	if _, ok := stopBitModes[c.StopBits]; !ok {
		errs = append(errs, fmt.Errorf("stop bits %d, want 1 or 2", c.StopBits))
	}
	if _, ok := parityModes[c.Parity]; !ok {
		errs = append(errs, fmt.Errorf("unknown parity %q", c.Parity))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("negative read timeout %v", c.Timeout))
	}

	return errors.Join(errs...)
}

// Mode converts the configuration to a go.bug.st/serial mode
func (c SerialConfig) Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: convertStopBits(c.StopBits),
		Parity:   convertParity(c.Parity),
		InitialStatusBits: &serial.ModemOutputBits{
			DTR: c.DTR,
			RTS: c.RTS,
		},
	}
}

// String returns a short description such as "/dev/ttyUSB0 115200 8N1"
func (c SerialConfig) String() string {
	parity := "N"
	if c.Parity != "" {
		parity = strings.ToUpper(c.Parity[:1])
	}
	return fmt.Sprintf("%s %d %d%s%d", c.Port, c.BaudRate, c.DataBits, parity, c.StopBits)
}

// DefaultConfig returns 115200 8N1 on the first USB adapter, or COM1 on
// Windows
func DefaultConfig() SerialConfig {
	c := SerialConfig{
		Port:     "/dev/ttyUSB0",
		BaudRate: 115200,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  100 * time.Millisecond,
		DTR:      true,
		RTS:      true,
	}
	if runtime.GOOS == "windows" {
		c.Port = "COM1"
	}
	return c
}

// convertStopBits maps a stop bit count to its mode, one stop bit when the
// count is unsupported
func convertStopBits(stopBits int) serial.StopBits {
	if mode, ok := stopBitModes[stopBits]; ok {
		return mode
	}
	return serial.OneStopBit
}

// convertParity maps a parity name to its mode, no parity when the name is
// unknown
func convertParity(parity string) serial.Parity {
	if mode, ok := parityModes[parity]; ok {
		return mode
	}
	return serial.NoParity
}
