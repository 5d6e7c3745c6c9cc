package sysex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testID = ManufacturerID{0x00, 0x53, 0x43}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{0x00},
		{0x00, 0x00, 0x01},
		{0x7F, 0x40, 0x01, 0x00, 0x55},
	}

	for _, payload := range payloads {
		for _, cmd := range []byte{0x00, 0x01, 0x7F} {
			frame, err := EncodeFrame(testID, cmd, payload)
			require.NoError(t, err)
			assert.Equal(t, Start, frame[0])
			assert.Equal(t, End, frame[len(frame)-1])
			assert.Len(t, frame, MinFrameSize+len(payload))

			decoded, err := DecodeFrame(testID, frame)
			require.NoError(t, err)
			assert.Equal(t, cmd, decoded.Command)
			assert.Equal(t, len(payload), len(decoded.Payload))
			if len(payload) > 0 {
				assert.Equal(t, payload, decoded.Payload)
			}
		}
	}
}

func TestEncodeFrameHighBit(t *testing.T) {
	_, err := EncodeFrame(testID, 0x00, []byte{0x01, 0x80})
	assert.ErrorIs(t, err, ErrDataByte)

	_, err = EncodeFrame(testID, 0x90, nil)
	assert.ErrorIs(t, err, ErrDataByte)

	_, err = EncodeFrame(ManufacturerID{0x80, 0, 0}, 0x00, nil)
	assert.ErrorIs(t, err, ErrDataByte)
}

func TestDecodeFrameMalformed(t *testing.T) {
	cases := map[string][]byte{
		"short":        {0xF0, 0x00, 0x53, 0x43, 0xF7},
		"no start":     {0x00, 0x00, 0x53, 0x43, 0x01, 0xF7},
		"no end":       {0xF0, 0x00, 0x53, 0x43, 0x01, 0x00},
		"wrong vendor": {0xF0, 0x3E, 0x13, 0x00, 0x01, 0xF7},
	}

	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFrame(testID, frame)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFrame))

			var mf *MalformedFrameError
			require.ErrorAs(t, err, &mf)
			assert.Equal(t, frame, mf.Frame)
		})
	}
}

func TestWordPacking(t *testing.T) {
	assert.Equal(t, uint16(0), PackWord(0, 0))
	assert.Equal(t, uint16(0x7F), PackWord(0x7F, 0))
	assert.Equal(t, uint16(0x80), PackWord(0, 1))
	assert.Equal(t, uint16(MaxWord), PackWord(0x7F, 0x7F))

	for _, v := range []uint16{0, 1, 127, 128, 1000, 8191, MaxWord} {
		lsb, msb := UnpackWord(v)
		assert.LessOrEqual(t, lsb, byte(0x7F))
		assert.LessOrEqual(t, msb, byte(0x7F))
		assert.Equal(t, v, PackWord(lsb, msb))
	}

	wire := AppendWord(AppendWord(nil, 0x80), 0x05)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x05}, wire)
	assert.Equal(t, []uint16{0x80, 0x05}, BytesToWords(wire))
	assert.Equal(t, []uint16{0x80}, BytesToWords([]byte{0x01, 0x00, 0x7F}))
}

func TestParseHex(t *testing.T) {
	cases := []struct {
		in   string
		want []byte
	}{
		{"F0 00 53 43 F7", []byte{0xF0, 0x00, 0x53, 0x43, 0xF7}},
		{"0xF0,0x00, 0x53", []byte{0xF0, 0x00, 0x53}},
		{"F0005343F7", []byte{0xF0, 0x00, 0x53, 0x43, 0xF7}},
		{"F0 01 ... F7", []byte{0xF0, 0x01, 0xF7}},
		{"  \t ", nil},
		{"7", []byte{0x07}},
	}

	for _, c := range cases {
		got, err := ParseHex(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	_, err := ParseHex("F0 GG F7")
	assert.Error(t, err)
	_, err = ParseHex("F0 123 F7")
	assert.Error(t, err)
}

func TestFormatHex(t *testing.T) {
	assert.Equal(t, "F0 00 53 43 0A F7", FormatHex([]byte{0xF0, 0x00, 0x53, 0x43, 0x0A, 0xF7}))
	assert.Equal(t, "", FormatHex(nil))

	line := FormatHex([]byte{0xF0, 0x7F, 0xF7})
	back, err := ParseHex(line)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x7F, 0xF7}, back)
}
