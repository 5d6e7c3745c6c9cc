package sysex

// MaxWord is the largest value a 14-bit word can hold.
const MaxWord = 0x3FFF

// PackWord joins two 7-bit bytes into a 14-bit value.
func PackWord(lsb, msb byte) uint16 {
	return uint16(lsb&0x7F) | uint16(msb&0x7F)<<7
}

// UnpackWord splits a 14-bit value into its low and high 7-bit halves.
// Bits above 13 are dropped.
func UnpackWord(v uint16) (lsb, msb byte) {
	return byte(v & 0x7F), byte((v >> 7) & 0x7F)
}

// AppendWord appends v in wire order: high half first.
func AppendWord(dst []byte, v uint16) []byte {
	lsb, msb := UnpackWord(v)
	return append(dst, msb, lsb)
}

// BytesToWords decodes consecutive high, low byte pairs as written by
// AppendWord. A trailing odd byte is ignored.
func BytesToWords(data []byte) []uint16 {
	words := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		words = append(words, PackWord(data[i+1], data[i]))
	}
	return words
}
