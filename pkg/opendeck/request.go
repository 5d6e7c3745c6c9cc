package opendeck

import (
	"errors"
	"fmt"

	"opendeckmcp/pkg/sysex"
)

var (
	ErrNoConfig    = errors.New("value command requires a request config")
	ErrRawCommand  = errors.New("command carries its own frame")
	ErrValueRange  = errors.New("value does not fit the negotiated width")
	ErrUnknownSize = errors.New("unsupported value size")
)

// ValueSize is the number of 7-bit bytes used per index and value.
type ValueSize int

const (
	ValueSize1 ValueSize = 1
	ValueSize2 ValueSize = 2
)

func (v ValueSize) Valid() bool { return v == ValueSize1 || v == ValueSize2 }

// Max is the largest value encodable at this width.
func (v ValueSize) Max() uint16 {
	if v == ValueSize2 {
		return sysex.MaxWord
	}
	return 0x7F
}

// Block is a top-level configuration area of the device.
type Block byte

const (
	BlockGlobal Block = iota
	BlockButton
	BlockEncoder
	BlockAnalog
	BlockLed
	BlockDisplay
	BlockTouchscreen
)

var blockNames = [...]string{
	BlockGlobal:      "global",
	BlockButton:      "button",
	BlockEncoder:     "encoder",
	BlockAnalog:      "analog",
	BlockLed:         "led",
	BlockDisplay:     "display",
	BlockTouchscreen: "touchscreen",
}

func (b Block) String() string {
	if int(b) < len(blockNames) {
		return blockNames[b]
	}
	return fmt.Sprintf("block(%d)", byte(b))
}

func (b Block) Valid() bool { return int(b) < len(blockNames) }

// ParseBlock accepts a block name or its numeric value.
func ParseBlock(s string) (Block, error) {
	for i, name := range blockNames {
		if name == s {
			return Block(i), nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && n >= 0 && n < len(blockNames) {
		return Block(n), nil
	}
	return 0, fmt.Errorf("unknown block %q", s)
}

// RequestConfig addresses a single value on the device.
type RequestConfig struct {
	Block   Block  `json:"block"`
	Section uint8  `json:"section"`
	Index   uint16 `json:"index"`
	Value   uint16 `json:"value"`
}

func (c RequestConfig) String() string {
	return fmt.Sprintf("%s/%d/%d=%d", c.Block, c.Section, c.Index, c.Value)
}

// EncodeRequest renders cmd as a SysEx frame. Value commands need cfg and a
// valid width. Raw commands cannot be encoded here.
func EncodeRequest(cmd Command, cfg *RequestConfig, width ValueSize) ([]byte, error) {
	switch cmd.Kind() {
	case KindSpecial:
		return EncodeSpecial(cmd.ID())
	case KindRaw:
		return nil, fmt.Errorf("%s: %w", cmd, ErrRawCommand)
	}

	if cfg == nil {
		return nil, fmt.Errorf("%s: %w", cmd, ErrNoConfig)
	}
	if !width.Valid() {
		return nil, fmt.Errorf("%s: %w: %d", cmd, ErrUnknownSize, width)
	}
	if cfg.Section > 0x7F || byte(cfg.Block) > 0x7F {
		return nil, fmt.Errorf("%s %s: %w", cmd, cfg, sysex.ErrDataByte)
	}

	value := cfg.Value
	if cmd == GetValue {
		value = 0
	}
	if cfg.Index > width.Max() || value > width.Max() {
		return nil, fmt.Errorf("%s %s: %w (width %d)", cmd, cfg, ErrValueRange, width)
	}

	payload := []byte{0x00, byte(cmd.ID()), byte(AmountSingle), byte(cfg.Block), cfg.Section}
	payload = appendWord(payload, cfg.Index, width)
	payload = appendWord(payload, value, width)

	return sysex.EncodeFrame(ManufacturerID, byte(StatusRequest), payload)
}

// EncodeSpecial renders a special request such as the handshake.
func EncodeSpecial(id byte) ([]byte, error) {
	return sysex.EncodeFrame(ManufacturerID, byte(StatusRequest), []byte{0x00, id})
}

// HandshakePayload is what the port matcher sends to find the paired input.
var HandshakePayload = []byte{byte(StatusRequest), 0x00, SpecialConnOpen}

func appendWord(dst []byte, v uint16, width ValueSize) []byte {
	if width == ValueSize1 {
		return append(dst, byte(v))
	}
	return sysex.AppendWord(dst, v)
}
