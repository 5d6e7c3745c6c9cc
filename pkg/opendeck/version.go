package opendeck

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// FallbackFirmwareVersion is used when the device does not report its
// version. It compares below every release.
const FallbackFirmwareVersion = "v0.0.0"

// DecodeFirmwareVersion reads a GetFirmwareVersion reply as "vX.Y.Z".
func DecodeFirmwareVersion(r Response, width ValueSize) (string, error) {
	words := r.Words(width)
	if len(words) < 3 {
		return "", fmt.Errorf("firmware version: %w", ErrShortResponse)
	}
	return fmt.Sprintf("v%d.%d.%d", words[0], words[1], words[2]), nil
}

// CanonicalVersion normalizes release names such as "1.2.3" or "v1.2". An
// unparsable version becomes FallbackFirmwareVersion.
func CanonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return FallbackFirmwareVersion
	}
	return semver.Canonical(v)
}

// CompareVersions returns -1, 0 or +1 as a is lower than, equal to or higher
// than b.
func CompareVersions(a, b string) int {
	return semver.Compare(CanonicalVersion(a), CanonicalVersion(b))
}

// HasUpdate reports whether release is newer than current.
func HasUpdate(current, release string) bool {
	return CompareVersions(release, current) > 0
}
