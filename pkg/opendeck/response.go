package opendeck

import (
	"errors"
	"fmt"

	"opendeckmcp/pkg/sysex"
)

var ErrShortResponse = errors.New("response too short")

// Response is a decoded reply frame:
//
//	F0 00 53 43 status part id data... F7
//
// For value commands the id is the echoed wish and data continues with
// amount, block, section, index and value.
type Response struct {
	Status Status
	Part   byte
	ID     byte
	HasID  bool
	Data   []byte
	Raw    []byte
}

// ParseResponse decodes an OpenDeck frame. Raw is a private copy of frame.
func ParseResponse(frame []byte) (Response, error) {
	f, err := sysex.DecodeFrame(ManufacturerID, frame)
	if err != nil {
		return Response{}, err
	}

	raw := make([]byte, len(frame))
	copy(raw, frame)
	payload := raw[5 : len(raw)-1]

	resp := Response{Status: Status(f.Command), Raw: raw}
	if len(payload) > 0 {
		resp.Part = payload[0]
	}
	if len(payload) > 1 {
		resp.ID = payload[1]
		resp.HasID = true
		resp.Data = payload[2:]
	}
	return resp, nil
}

// Words decodes Data at the given width.
func (r Response) Words(width ValueSize) []uint16 {
	return decodeWords(r.Data, width)
}

// Value extracts the value of a GetValue or SetValue reply.
func (r Response) Value(width ValueSize) (uint16, error) {
	if !width.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownSize, width)
	}
	// amount, block, section, index, value
	offset := 3 + int(width)
	if len(r.Data) < offset+int(width) {
		return 0, fmt.Errorf("value reply of %d bytes: %w", len(r.Raw), ErrShortResponse)
	}
	words := decodeWords(r.Data[offset:offset+int(width)], width)
	return words[0], nil
}

func decodeWords(data []byte, width ValueSize) []uint16 {
	if width == ValueSize2 {
		return sysex.BytesToWords(data)
	}
	out := make([]uint16, len(data))
	for i, b := range data {
		out[i] = uint16(b)
	}
	return out
}

func firstWord(r Response, width ValueSize, what string) (uint16, error) {
	words := r.Words(width)
	if len(words) == 0 {
		return 0, fmt.Errorf("%s: %w", what, ErrShortResponse)
	}
	return words[0], nil
}

// DecodeValueSize reads a GetValueSize reply.
func DecodeValueSize(r Response, width ValueSize) (ValueSize, error) {
	v, err := firstWord(r, width, "value size")
	if err != nil {
		return 0, err
	}
	size := ValueSize(v)
	if !size.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownSize, v)
	}
	return size, nil
}

// DecodeValuesPerMessage reads a GetValuesPerMessage reply.
func DecodeValuesPerMessage(r Response, width ValueSize) (int, error) {
	v, err := firstWord(r, width, "values per message")
	return int(v), err
}

// DecodeSupportedPresets reads a GetNumberOfSupportedPresets reply.
func DecodeSupportedPresets(r Response, width ValueSize) (int, error) {
	v, err := firstWord(r, width, "supported presets")
	return int(v), err
}

// DecodeBootloaderSupport reads a GetBootLoaderSupport reply.
func DecodeBootloaderSupport(r Response, width ValueSize) (bool, error) {
	v, err := firstWord(r, width, "bootloader support")
	return v == 1, err
}

// ComponentCounts is the number of each component type the board supports.
type ComponentCounts struct {
	Buttons     int `json:"buttons"`
	Encoders    int `json:"encoders"`
	Analog      int `json:"analog"`
	LEDs        int `json:"leds"`
	Touchscreen int `json:"touchscreen"`
}

// Any reports whether at least one component type is present.
func (c ComponentCounts) Any() bool {
	return c.Buttons > 0 || c.Encoders > 0 || c.Analog > 0 || c.LEDs > 0 || c.Touchscreen > 0
}

// DecodeComponentCounts reads a GetNumberOfSupportedComponents reply. Older
// firmware reports fewer component types; missing ones are zero.
func DecodeComponentCounts(r Response, width ValueSize) (ComponentCounts, error) {
	words := r.Words(width)
	if len(words) == 0 {
		return ComponentCounts{}, fmt.Errorf("component counts: %w", ErrShortResponse)
	}
	var c ComponentCounts
	fields := []*int{&c.Buttons, &c.Encoders, &c.Analog, &c.LEDs, &c.Touchscreen}
	for i, w := range words {
		if i == len(fields) {
			break
		}
		*fields[i] = int(w)
	}
	return c, nil
}
