// internal/program/program.go
package program

import (
	"errors"
	"fmt"
)

// Kind is one controller program.
// The numeric value is the wire code and MUST NOT change.
type Kind uint8

const (
	CamRead   Kind = 1
	Form      Kind = 2
	WriteZero Kind = 3
	WriteOne  Kind = 4
	StdRead   Kind = 5
)

var kindNames = map[Kind]string{
	CamRead:   "camread",
	Form:      "form",
	WriteZero: "writezero",
	WriteOne:  "writeone",
	StdRead:   "stdread",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind resolves a program name as used in config files.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("program: unknown program %q (camread, form, writezero, writeone, stdread)", name)
}

// Default request parameters.
const (
	DefaultBaud          = 115200
	DefaultReadWriteMs   = 100
	DefaultFormMs        = 200
	DefaultLoopCount     = 1
	DefaultGroundMs      = 100
	DefaultMaxPulseWidth = 250
)

// ErrPulseWidthTooLarge means a pulse-width field exceeds the configured maximum.
var ErrPulseWidthTooLarge = errors.New("program: pulse width exceeds maximum")

// Request is one parameterized command to the controller.
// Built once, sent once, discarded.
type Request struct {
	Kind     Kind
	Wordline uint8
	Bitline  uint8
	Pattern  uint8

	ReadWriteTimeMs uint8
	FormTimeMs      uint8
	LoopCount       uint8
	GroundTimeMs    uint8

	Baud int
}

// New returns a request for kind with the controller defaults filled in.
// Callers overwrite only the fields their operation needs.
func New(kind Kind) Request {
	return Request{
		Kind:            kind,
		ReadWriteTimeMs: DefaultReadWriteMs,
		FormTimeMs:      DefaultFormMs,
		LoopCount:       DefaultLoopCount,
		GroundTimeMs:    DefaultGroundMs,
		Baud:            DefaultBaud,
	}
}

// CheckPulseWidths verifies every pulse-width field against max.
// A request failing this check MUST NOT be transmitted.
func (r Request) CheckPulseWidths(max uint8) error {
	if r.ReadWriteTimeMs > max {
		return fmt.Errorf("%w: read/write time %d ms > %d ms", ErrPulseWidthTooLarge, r.ReadWriteTimeMs, max)
	}
	if r.FormTimeMs > max {
		return fmt.Errorf("%w: form/precharge time %d ms > %d ms", ErrPulseWidthTooLarge, r.FormTimeMs, max)
	}
	if r.GroundTimeMs > max {
		return fmt.Errorf("%w: ground time %d ms > %d ms", ErrPulseWidthTooLarge, r.GroundTimeMs, max)
	}
	return nil
}

// Frame encodes the command frame:
// one ASCII-decimal byte for the program code, then seven raw parameter
// bytes in fixed order. Layout is locked by the controller firmware.
func (r Request) Frame() []byte {
	return []byte{
		'0' + uint8(r.Kind),
		r.Wordline,
		r.Bitline,
		r.Pattern,
		r.ReadWriteTimeMs,
		r.FormTimeMs,
		r.LoopCount,
		r.GroundTimeMs,
	}
}

// HeaderLines renders the request settings in the layout the result
// file has always used.
func (r Request) HeaderLines() []string {
	return []string{
		fmt.Sprintf("Program: %d %s", uint8(r.Kind), r.Kind),
		fmt.Sprintf("Address: WL %d   BL %d", r.Wordline, r.Bitline),
		fmt.Sprintf("Data Pattern: %03b", r.Pattern),
		fmt.Sprintf("Read/write time: %d ms", r.ReadWriteTimeMs),
		fmt.Sprintf("Form/precharge time: %d ms", r.FormTimeMs),
		fmt.Sprintf("Number of read/write pulses: %d", r.LoopCount),
		fmt.Sprintf("Ground time: %d ms", r.GroundTimeMs),
	}
}

// Address maps a flat pattern index onto array coordinates.
// The array is square with side arraySize.
func Address(index, arraySize int) (wordline, bitline uint8) {
	return uint8(index / arraySize), uint8(index % arraySize)
}
