package codec

import (
	"encoding/hex"
	"strconv"
	"strings"
	"unicode/utf8"
)

// register type tags used by the chain's serialized constant format.
const (
	tagByteCollection byte = 0x0e
	tagInt32          byte = 0x04
	tagInt64          byte = 0x05
)

const maxVLQGroups = 5

// decodeVLQ reads a 7-bit little-endian-grouped variable-length
// unsigned integer, high bit set = continuation. Returns the decoded
// value and the number of bytes consumed. Fails past a 5-group (35-bit)
// ceiling, matching the chain's own VLQ reader.
func decodeVLQ(b []byte) (value uint64, consumed int, ok bool) {
	var result uint64
	for i := 0; i < len(b) && i < maxVLQGroups; i++ {
		result |= uint64(b[i]&0x7f) << (7 * uint(i))
		if b[i]&0x80 == 0 {
			return result, i + 1, true
		}
	}
	return 0, 0, false
}

// zigZagDecode reverses the zig-zag encoding used for signed VLQ
// integers: (v >> 1) XOR -(v & 1).
func zigZagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// DecodeRegisterString decodes a tagged register payload as a string.
// It expects tag 0x0e (byte collection) followed by a VLQ length and
// the raw bytes, interpreted as UTF-8. On any structural mismatch it
// falls back to treating the whole payload as raw UTF-8.
func DecodeRegisterString(registerHex string) (string, bool) {
	raw, err := hex.DecodeString(registerHex)
	if err != nil || len(raw) == 0 {
		return "", false
	}

	if raw[0] == tagByteCollection {
		length, n, ok := decodeVLQ(raw[1:])
		if ok {
			start := 1 + n
			end := start + int(length)
			if end <= len(raw) {
				return string(raw[start:end]), true
			}
		}
	}

	if s := string(raw); utf8.ValidString(s) {
		return s, true
	}
	return "", false
}

// DecodeRegisterInt decodes a tagged register payload as a signed
// 32-bit integer. It expects tag 0x04 or 0x05 followed by a zig-zag
// encoded VLQ. On structural mismatch it falls back to parsing the
// payload as a trimmed decimal string.
func DecodeRegisterInt(registerHex string) (int32, bool) {
	raw, err := hex.DecodeString(registerHex)
	if err != nil || len(raw) == 0 {
		return 0, false
	}

	if raw[0] == tagInt32 || raw[0] == tagInt64 {
		v, _, ok := decodeVLQ(raw[1:])
		if ok {
			return int32(zigZagDecode(v)), true
		}
	}

	trimmed := strings.TrimSpace(string(raw))
	if n, err := strconv.ParseInt(trimmed, 10, 32); err == nil {
		return int32(n), true
	}
	return 0, false
}
