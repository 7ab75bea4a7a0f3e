// Package codec converts raw device bytes to display text and hand typed hex
// back to raw bytes.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DisplayMode selects how received bytes are rendered
type DisplayMode int

const (
	DisplayPlainText DisplayMode = iota
	DisplayHexadecimal
)

// String returns the string representation of DisplayMode
func (m DisplayMode) String() string {
	switch m {
	case DisplayPlainText:
		return "text"
	case DisplayHexadecimal:
		return "hex"
	default:
		return "unknown"
	}
}

// ParseDisplayMode parses the string form produced by DisplayMode.String
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "plain", "plaintext":
		return DisplayPlainText, nil
	case "hex", "hexadecimal":
		return DisplayHexadecimal, nil
	default:
		return DisplayPlainText, fmt.Errorf("invalid display mode: %s", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (m DisplayMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *DisplayMode) UnmarshalText(text []byte) error {
	v, err := ParseDisplayMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ErrMalformedHexInput is matched by every error returned from EncodeFromHex
var ErrMalformedHexInput = errors.New("malformed hex input")

// HexError describes why a hex string could not be converted
type HexError struct {
	Offset int
	Reason string
}

// Error implements the error interface
func (e *HexError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", ErrMalformedHexInput, e.Offset, e.Reason)
}

// Is reports whether target is ErrMalformedHexInput
func (e *HexError) Is(target error) bool {
	return target == ErrMalformedHexInput
}

// DecodeForDisplay converts data to a string according to the display mode.
// It never fails and never drops a byte.
func DecodeForDisplay(data []byte, mode DisplayMode) string {
	switch mode {
	case DisplayHexadecimal:
		return hexDump(data)
	default:
		return plainText(data)
	}
}

// plainText decodes data as UTF-8, falling back to ISO-8859-1 for anything
// that is not valid UTF-8.
func plainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	str, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return latin1(data)
	}
	return string(str)
}

func latin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

// hexDump renders each byte as a lowercase pair followed by a space. A
// carriage return follows the pair of every 0x0a byte and a line feed the
// pair of every 0x0d byte so that dumps of line oriented text break lines.
func hexDump(data []byte) string {
	const digits = "0123456789abcdef"

	var sb strings.Builder
	sb.Grow(len(data) * 3)
	for _, b := range data {
		sb.WriteByte(digits[b>>4])
		sb.WriteByte(digits[b&0x0f])
		switch b {
		case '\n':
			sb.WriteByte('\r')
		case '\r':
			sb.WriteByte('\n')
		}
		sb.WriteByte(' ')
	}
	return sb.String()
}

// EncodeFromHex converts text made of hex pairs into bytes. Whitespace
// between pairs is ignored. Odd digit counts and non-hex characters are
// rejected and no bytes are returned.
func EncodeFromHex(text string) ([]byte, error) {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)

	if len(stripped)%2 != 0 {
		return nil, &HexError{Offset: len(stripped), Reason: "odd number of hex digits"}
	}

	out, err := hex.DecodeString(stripped)
	if err != nil {
		var invalid hex.InvalidByteError
		if errors.As(err, &invalid) {
			return nil, &HexError{
				Offset: strings.IndexByte(stripped, byte(invalid)),
				Reason: fmt.Sprintf("invalid hex digit %q", rune(invalid)),
			}
		}
		return nil, &HexError{Offset: 0, Reason: err.Error()}
	}

	return out, nil
}
