package sysex

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ellipsis       = regexp.MustCompile(`\.{3,}|…`)
	continuousHex  = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	hexTokenFormat = regexp.MustCompile(`^[0-9a-fA-F]{1,2}$`)
)

// FormatHex renders data as upper-case, space separated hex bytes.
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// ParseHex parses a line of hex bytes. Tokens may be separated by spaces,
// tabs or commas and may carry a 0x prefix. A continuous even-length hex
// string such as "F04300F7" is split into pairs.
func ParseHex(line string) ([]byte, error) {
	normalized := ellipsis.ReplaceAllString(line, "")
	normalized = strings.NewReplacer(",", " ", "\t", " ", "\r", " ", "\n", " ").Replace(normalized)
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return nil, nil
	}

	var tokens []string
	if continuousHex.MatchString(normalized) && len(normalized) > 2 && len(normalized)%2 == 0 {
		for i := 0; i < len(normalized); i += 2 {
			tokens = append(tokens, normalized[i:i+2])
		}
	} else {
		tokens = strings.Fields(normalized)
	}

	out := make([]byte, 0, len(tokens))
	for _, raw := range tokens {
		tok := raw
		if len(tok) > 2 && (tok[:2] == "0x" || tok[:2] == "0X") {
			tok = tok[2:]
		}
		if !hexTokenFormat.MatchString(tok) {
			return nil, fmt.Errorf("invalid hex byte %q", raw)
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", raw, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
