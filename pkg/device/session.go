// Package device manages the connection to an OpenDeck board: port matching,
// the capability probe sequence, the output watcher and the request queue.
package device

import (
	"errors"
	"fmt"
	"time"

	"opendeckmcp/pkg/opendeck"
)

var (
	ErrNotConnected    = errors.New("device not connected")
	ErrBootloaderMode  = errors.New("device is in bootloader mode")
	ErrOutputVanished  = errors.New("device output disappeared")
	ErrLoadAborted     = errors.New("value load aborted")
	ErrInvalidOutputID = errors.New("missing or invalid device output id")
	ErrConnectAborted  = errors.New("connect aborted")
)

// State is the connection state of a Client.
type State uint8

const (
	StateClosed State = iota
	StatePending
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StatePending:
		return "PENDING"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// StepFailedError reports a probe that failed during connect. It is logged
// and the step falls back to its default.
type StepFailedError struct {
	Step string
	Err  error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("connect step %s failed: %v", e.Step, e.Err)
}

func (e *StepFailedError) Unwrap() error { return e.Err }

// Session describes the connected board.
type Session struct {
	ID     string `json:"id,omitempty"`
	State  State  `json:"-"`
	Status string `json:"state"`

	OutputID       string `json:"output_id,omitempty"`
	OutputName     string `json:"output_name,omitempty"`
	InputName      string `json:"input_name,omitempty"`
	BootloaderMode bool   `json:"bootloader_mode"`

	ValueSize         opendeck.ValueSize       `json:"value_size,omitempty"`
	ValuesPerMessage  int                      `json:"values_per_message,omitempty"`
	FirmwareVersion   string                   `json:"firmware_version,omitempty"`
	BoardUID          string                   `json:"board_uid,omitempty"`
	BoardName         string                   `json:"board_name,omitempty"`
	FirmwareFile      string                   `json:"firmware_file,omitempty"`
	Components        opendeck.ComponentCounts `json:"components"`
	BootloaderSupport bool                     `json:"bootloader_support"`
	SupportedPresets  int                      `json:"supported_presets"`

	ConnectedAt time.Time `json:"connected_at,omitempty"`
	// LastError is the most recent connection error. It survives a reset.
	LastError string `json:"last_error,omitempty"`
}

// Value is a loaded setting.
type Value struct {
	Config opendeck.RequestConfig `json:"config"`
	Value  uint16                 `json:"value"`
}

// Metrics is a snapshot of client counters.
type Metrics struct {
	State             State
	Connects          uint64
	ConnectFailures   uint64
	HandshakeAttempts uint64
	Disconnects       uint64
	StepFailures      uint64
}
