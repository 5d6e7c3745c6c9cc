// Package opendeck defines the OpenDeck SysEx configuration protocol: its
// commands, request encoding and reply decoding.
package opendeck

import (
	"fmt"

	"opendeckmcp/pkg/sysex"
)

// ManufacturerID is the extended manufacturer id used by OpenDeck firmware.
var ManufacturerID = sysex.ManufacturerID{0x00, 0x53, 0x43}

// Status is the first byte after the manufacturer id.
type Status byte

const (
	StatusRequest            Status = 0x00
	StatusAck                Status = 0x01
	StatusErrorStatus        Status = 0x02
	StatusErrorConnection    Status = 0x03
	StatusErrorWish          Status = 0x04
	StatusErrorAmount        Status = 0x05
	StatusErrorBlock         Status = 0x06
	StatusErrorSection       Status = 0x07
	StatusErrorPart          Status = 0x08
	StatusErrorIndex         Status = 0x09
	StatusErrorNewValue      Status = 0x0A
	StatusErrorMessageLength Status = 0x0B
	StatusErrorWrite         Status = 0x0C
	StatusErrorNotSupported  Status = 0x0D
	StatusErrorRead          Status = 0x0E
)

var statusNames = map[Status]string{
	StatusRequest:            "REQUEST",
	StatusAck:                "ACK",
	StatusErrorStatus:        "ERROR_STATUS",
	StatusErrorConnection:    "ERROR_CONNECTION",
	StatusErrorWish:          "ERROR_WISH",
	StatusErrorAmount:        "ERROR_AMOUNT",
	StatusErrorBlock:         "ERROR_BLOCK",
	StatusErrorSection:       "ERROR_SECTION",
	StatusErrorPart:          "ERROR_PART",
	StatusErrorIndex:         "ERROR_INDEX",
	StatusErrorNewValue:      "ERROR_NEW_VALUE",
	StatusErrorMessageLength: "ERROR_MESSAGE_LENGTH",
	StatusErrorWrite:         "ERROR_WRITE",
	StatusErrorNotSupported:  "ERROR_NOT_SUPPORTED",
	StatusErrorRead:          "ERROR_READ",
}

var statusDescriptions = map[Status]string{
	StatusErrorStatus:        "invalid status byte in request",
	StatusErrorConnection:    "connection with the device is not open",
	StatusErrorWish:          "unknown wish",
	StatusErrorAmount:        "unknown amount",
	StatusErrorBlock:         "unknown block",
	StatusErrorSection:       "unknown section",
	StatusErrorPart:          "invalid message part",
	StatusErrorIndex:         "index out of range",
	StatusErrorNewValue:      "value out of range",
	StatusErrorMessageLength: "unexpected message length",
	StatusErrorWrite:         "device failed to store the value",
	StatusErrorNotSupported:  "request not supported by this firmware",
	StatusErrorRead:          "device failed to read the value",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_0x%02X", byte(s))
}

// Description is a human readable explanation of an error status.
func (s Status) Description() string {
	return statusDescriptions[s]
}

// IsError reports whether the device rejected the request.
func (s Status) IsError() bool {
	return s >= StatusErrorStatus
}

// StatusError is returned when the device answers a request with an error
// status.
type StatusError struct {
	Command Command
	Status  Status
}

func (e *StatusError) Error() string {
	if desc := e.Status.Description(); desc != "" {
		return fmt.Sprintf("%s rejected by device: %s (%s)", e.Command, e.Status, desc)
	}
	return fmt.Sprintf("%s rejected by device: %s", e.Command, e.Status)
}
