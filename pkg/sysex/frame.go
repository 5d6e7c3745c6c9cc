// Package sysex encodes and decodes MIDI system exclusive frames.
//
// A frame on the wire is
//
//	F0 id0 id1 id2 command payload... F7
//
// Every byte between the delimiters is a 7-bit data byte.
package sysex

import (
	"errors"
	"fmt"
)

const (
	Start byte = 0xF0
	End   byte = 0xF7

	// MinFrameSize is F0, the manufacturer id, the command byte and F7.
	MinFrameSize = 6
)

var (
	ErrMalformedFrame = errors.New("malformed sysex frame")
	ErrDataByte       = errors.New("sysex data byte out of 7-bit range")
)

// ManufacturerID is the 3-byte extended manufacturer identifier.
type ManufacturerID [3]byte

func (m ManufacturerID) String() string {
	return fmt.Sprintf("%02X %02X %02X", m[0], m[1], m[2])
}

// Matches reports whether frame carries this manufacturer id. The frame is
// only inspected, not validated.
func (m ManufacturerID) Matches(frame []byte) bool {
	return len(frame) >= 4 && frame[1] == m[0] && frame[2] == m[1] && frame[3] == m[2]
}

// Frame is a decoded SysEx message.
type Frame struct {
	Command byte
	Payload []byte
}

type MalformedFrameError struct {
	Reason string
	Frame  []byte
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed sysex frame (%d bytes): %s", len(e.Frame), e.Reason)
}

func (e *MalformedFrameError) Unwrap() error { return ErrMalformedFrame }

// EncodeFrame builds a complete SysEx frame.
func EncodeFrame(id ManufacturerID, command byte, payload []byte) ([]byte, error) {
	if command > 0x7F {
		return nil, fmt.Errorf("command 0x%02X: %w", command, ErrDataByte)
	}
	for i, b := range id {
		if b > 0x7F {
			return nil, fmt.Errorf("manufacturer id byte %d (0x%02X): %w", i, b, ErrDataByte)
		}
	}

	out := make([]byte, 0, MinFrameSize+len(payload))
	out = append(out, Start, id[0], id[1], id[2], command)
	for i, b := range payload {
		if b > 0x7F {
			return nil, fmt.Errorf("payload byte %d (0x%02X): %w", i, b, ErrDataByte)
		}
		out = append(out, b)
	}
	return append(out, End), nil
}

// DecodeFrame validates frame and splits it into command and payload. The
// returned payload aliases frame.
func DecodeFrame(id ManufacturerID, frame []byte) (Frame, error) {
	if len(frame) < MinFrameSize {
		return Frame{}, &MalformedFrameError{Reason: "frame too short", Frame: frame}
	}
	if frame[0] != Start {
		return Frame{}, &MalformedFrameError{Reason: "missing F0 start byte", Frame: frame}
	}
	if frame[len(frame)-1] != End {
		return Frame{}, &MalformedFrameError{Reason: "missing F7 end byte", Frame: frame}
	}
	if !id.Matches(frame) {
		return Frame{}, &MalformedFrameError{Reason: "manufacturer id mismatch", Frame: frame}
	}

	return Frame{
		Command: frame[4],
		Payload: frame[5 : len(frame)-1],
	}, nil
}
