// Package midiport abstracts the MIDI ports a device client talks to.
package midiport

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrPortNotFound = errors.New("midi port not found")
	ErrPortClosed   = errors.New("midi port closed")
)

// BootloaderMarker appears in port names of boards running the DFU
// bootloader. Other vendors' DFU ports do not carry it.
const BootloaderMarker = "OpenDeck DFU"

var throughName = regexp.MustCompile(`(?i)\bmidi\s*(thru|through)\b`)

// PortInfo identifies a port. ID is stable for as long as the port exists.
type PortInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

func (p PortInfo) String() string {
	if p.ID == p.Name {
		return p.Name
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}

// Input delivers SysEx frames from a device.
type Input interface {
	Info() PortInfo
	// Listen calls fn with a private copy of every SysEx frame. The returned
	// stop function is safe to call more than once.
	Listen(fn func([]byte)) (stop func(), err error)
}

// Output sends SysEx frames to a device.
type Output interface {
	Info() PortInfo
	Send(frame []byte) error
}

// Driver enumerates the ports of a MIDI backend.
type Driver interface {
	Inputs() ([]Input, error)
	Outputs() ([]Output, error)
	Close() error
}

// IsThrough reports whether name is a generic "MIDI Through" port.
func IsThrough(name string) bool {
	return throughName.MatchString(name)
}

// IsBootloader reports whether name belongs to a board in bootloader mode.
func IsBootloader(name string) bool {
	return strings.Contains(name, BootloaderMarker)
}

// FindOutput returns the output whose ID is id.
func FindOutput(d Driver, id string) (Output, error) {
	outs, err := d.Outputs()
	if err != nil {
		return nil, err
	}
	for _, o := range outs {
		if o.Info().ID == id {
			return o, nil
		}
	}
	return nil, fmt.Errorf("output %q: %w", id, ErrPortNotFound)
}

// ResolveOutput picks an output by exact id, then by case-insensitive name
// fragment.
func ResolveOutput(d Driver, hint string) (Output, error) {
	outs, err := d.Outputs()
	if err != nil {
		return nil, err
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("no MIDI outputs available: %w", ErrPortNotFound)
	}
	for _, o := range outs {
		if o.Info().ID == hint {
			return o, nil
		}
	}

	lower := strings.ToLower(hint)
	for _, o := range outs {
		if strings.Contains(strings.ToLower(o.Info().Name), lower) {
			return o, nil
		}
	}
	return nil, fmt.Errorf("no MIDI output contains %q: %w", hint, ErrPortNotFound)
}

// OnlyThrough reports whether every listed port is a "MIDI Through" port.
// That usually means the OS does not see the USB device at all.
func OnlyThrough(ports []PortInfo) bool {
	if len(ports) == 0 {
		return false
	}
	for _, p := range ports {
		if !IsThrough(p.Name) {
			return false
		}
	}
	return true
}

// List returns the info of every input and output.
func List(d Driver) (ins []PortInfo, outs []PortInfo, err error) {
	inputs, err := d.Inputs()
	if err != nil {
		return nil, nil, err
	}
	outputs, err := d.Outputs()
	if err != nil {
		return nil, nil, err
	}
	for _, i := range inputs {
		ins = append(ins, i.Info())
	}
	for _, o := range outputs {
		outs = append(outs, o.Info())
	}
	return ins, outs, nil
}
