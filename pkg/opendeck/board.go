package opendeck

import (
	"fmt"

	"opendeckmcp/pkg/sysex"
)

// UnknownBoardName is reported for boards missing from the board table.
const UnknownBoardName = "Custom OpenDeck board"

// BoardUID is the 4-byte target id reported by IdentifyBoard.
type BoardUID [4]byte

func (u BoardUID) String() string { return sysex.FormatHex(u[:]) }

// ParseBoardUID parses a UID written as hex bytes, e.g. "12 34 56 78".
func ParseBoardUID(s string) (BoardUID, error) {
	b, err := sysex.ParseHex(s)
	if err != nil {
		return BoardUID{}, err
	}
	if len(b) != 4 {
		return BoardUID{}, fmt.Errorf("board uid %q: want 4 bytes, got %d", s, len(b))
	}
	var uid BoardUID
	copy(uid[:], b)
	return uid, nil
}

// DecodeBoardUID reads an IdentifyBoard reply. The firmware sends the UID
// most significant byte first, one byte per value.
func DecodeBoardUID(r Response, width ValueSize) (BoardUID, error) {
	words := r.Words(width)
	if len(words) != 4 {
		return BoardUID{}, fmt.Errorf("board uid of %d values: %w", len(words), ErrShortResponse)
	}
	var uid BoardUID
	for i, w := range words {
		if w > 0xFF {
			return BoardUID{}, fmt.Errorf("board uid byte %d out of range: %d", i, w)
		}
		uid[i] = byte(w)
	}
	return uid, nil
}

// Board describes a known OpenDeck target.
type Board struct {
	Name         string
	ID           BoardUID
	OldID        *BoardUID
	FirmwareFile string
}

// BoardTable maps target ids to boards.
type BoardTable []Board

// Lookup finds the board for uid, matching current and legacy ids. Unknown
// ids yield a board named UnknownBoardName.
func (t BoardTable) Lookup(uid BoardUID) (Board, bool) {
	for _, b := range t {
		if b.ID == uid || (b.OldID != nil && *b.OldID == uid) {
			return b, true
		}
	}
	return Board{Name: UnknownBoardName, ID: uid}, false
}
