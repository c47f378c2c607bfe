package utils

import (
	"encoding/hex"
	"strings"
)

// SafeFirst16Bytes returns a hex dump of the first 16 bytes of the given data,
// suitable for logging data that could not be parsed.
func SafeFirst16Bytes(data []byte) string {
	if len(data) == 0 {
		return "<empty>"
	}

	return strings.TrimPrefix(
		strings.SplitN(hex.Dump(data), "\n", 2)[0],
		"00000000  ",
	)
}
