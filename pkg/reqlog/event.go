package reqlog

import (
	"fmt"
	"strings"
	"time"

	"opendeckmcp/pkg/sysex"
)

// Event is a single logged request, reply or failure.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	SessionID string    `cbor:"2,keyasint,omitempty"`
	Direction Direction `cbor:"3,keyasint"`
	Kind      Kind      `cbor:"4,keyasint"`
	Command   string    `cbor:"5,keyasint,omitempty"`
	Request   string    `cbor:"6,keyasint,omitempty"`
	Frame     []byte    `cbor:"7,keyasint,omitempty"`
	Error     string    `cbor:"8,keyasint,omitempty"`
	State     string    `cbor:"9,keyasint,omitempty"`
}

type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

type Kind uint8

const (
	KindFrame Kind = 0
	KindError Kind = 1
	KindState Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "FRAME"
	case KindError:
		return "ERROR"
	case KindState:
		return "STATE"
	default:
		return "UNKNOWN"
	}
}

// String renders the event as a single human readable line.
func (e Event) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-3s %-5s", e.Timestamp.Format("15:04:05.000"), e.Direction, e.Kind)
	if e.Command != "" {
		fmt.Fprintf(&sb, " %s", e.Command)
	}
	if e.Request != "" {
		fmt.Fprintf(&sb, " [%s]", e.Request)
	}
	if len(e.Frame) > 0 {
		fmt.Fprintf(&sb, " %s", sysex.FormatHex(e.Frame))
	}
	if e.State != "" {
		fmt.Fprintf(&sb, " -> %s", e.State)
	}
	if e.Error != "" {
		fmt.Fprintf(&sb, " error: %s", e.Error)
	}
	return sb.String()
}
