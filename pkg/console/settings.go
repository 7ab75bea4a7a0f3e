package console

import (
	"fmt"
	"strings"

	"serial-console/pkg/codec"
)

// DataMode is the encoding of commands typed by the user
type DataMode int

const (
	DataUTF8 DataMode = iota
	DataHex
)

// String returns the string representation of DataMode
func (m DataMode) String() string {
	switch m {
	case DataUTF8:
		return "utf8"
	case DataHex:
		return "hex"
	default:
		return "unknown"
	}
}

// ParseDataMode parses the string form produced by DataMode.String
func ParseDataMode(s string) (DataMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "utf8", "utf-8", "ascii", "text":
		return DataUTF8, nil
	case "hex", "hexadecimal":
		return DataHex, nil
	default:
		return DataUTF8, fmt.Errorf("invalid data mode: %s", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (m DataMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *DataMode) UnmarshalText(text []byte) error {
	v, err := ParseDataMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// LineEnding is appended to every command sent to the device
type LineEnding int

const (
	LineEndingNone LineEnding = iota
	LineEndingLF
	LineEndingCR
	LineEndingCRLF
)

// String returns the string representation of LineEnding
func (e LineEnding) String() string {
	switch e {
	case LineEndingNone:
		return "none"
	case LineEndingLF:
		return "lf"
	case LineEndingCR:
		return "cr"
	case LineEndingCRLF:
		return "crlf"
	default:
		return "unknown"
	}
}

// Bytes returns the bytes the line ending adds to a command
func (e LineEnding) Bytes() []byte {
	switch e {
	case LineEndingLF:
		return []byte{'\n'}
	case LineEndingCR:
		return []byte{'\r'}
	case LineEndingCRLF:
		return []byte{'\r', '\n'}
	default:
		return nil
	}
}

// ParseLineEnding parses the string form produced by LineEnding.String
func ParseLineEnding(s string) (LineEnding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return LineEndingNone, nil
	case "lf", "nl", "newline":
		return LineEndingLF, nil
	case "cr":
		return LineEndingCR, nil
	case "crlf", "both":
		return LineEndingCRLF, nil
	default:
		return LineEndingNone, fmt.Errorf("invalid line ending: %s", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (e LineEnding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (e *LineEnding) UnmarshalText(text []byte) error {
	v, err := ParseLineEnding(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// DisplayMode selects how received bytes are rendered
type DisplayMode = codec.DisplayMode

const (
	DisplayPlainText   = codec.DisplayPlainText
	DisplayHexadecimal = codec.DisplayHexadecimal
)

// ParseDisplayMode parses the string form produced by DisplayMode.String
func ParseDisplayMode(s string) (DisplayMode, error) {
	return codec.ParseDisplayMode(s)
}

// Settings is the console configuration state
type Settings struct {
	DataMode      DataMode    `json:"data_mode"`
	LineEnding    LineEnding  `json:"line_ending"`
	DisplayMode   DisplayMode `json:"display_mode"`
	Echo          bool        `json:"echo"`
	Autoscroll    bool        `json:"autoscroll"`
	ShowTimestamp bool        `json:"show_timestamp"`
}

// DefaultSettings returns the settings a fresh console starts with
func DefaultSettings() Settings {
	return Settings{
		DataMode:      DataUTF8,
		LineEnding:    LineEndingNone,
		DisplayMode:   DisplayPlainText,
		Echo:          false,
		Autoscroll:    true,
		ShowTimestamp: true,
	}
}

// Validate checks that every enumerated field holds a known value
func (s Settings) Validate() error {
	if s.DataMode != DataUTF8 && s.DataMode != DataHex {
		return fmt.Errorf("invalid data mode: %d", s.DataMode)
	}

	if s.LineEnding < LineEndingNone || s.LineEnding > LineEndingCRLF {
		return fmt.Errorf("invalid line ending: %d", s.LineEnding)
	}

	if s.DisplayMode != DisplayPlainText && s.DisplayMode != DisplayHexadecimal {
		return fmt.Errorf("invalid display mode: %d", s.DisplayMode)
	}

	return nil
}

// DataModes returns the labels of the data modes, in enum order
func DataModes() []string {
	return []string{"ASCII", "HEX"}
}

// LineEndings returns the labels of the line endings, in enum order
func LineEndings() []string {
	return []string{"No line ending", "New line", "Carriage return", "NL + CR"}
}

// DisplayModes returns the labels of the display modes, in enum order
func DisplayModes() []string {
	return []string{"Plain text", "Hexadecimal"}
}
