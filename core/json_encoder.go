package core

import (
	"math"
	"strconv"
	"unicode/utf8"
)

// For JSON-escaping; see jsonEncoder.encodeString below.
const _hex = "0123456789abcdef"

// jsonEncoder is a fast / lite json encoder with just enough functionality to
// render decoded spans as JSON lines.
type jsonEncoder struct{}

func (enc *jsonEncoder) encodeKeyString(bytes []byte, key, val string) []byte {
	bytes = enc.encodeKey(bytes, key)
	bytes = append(bytes, '"')
	bytes = enc.encodeString(bytes, val)
	bytes = append(bytes, '"')
	return bytes
}

// encodeKeyID writes id as 16 lower-case hex digits.
func (enc *jsonEncoder) encodeKeyID(bytes []byte, key string, id uint64) []byte {
	bytes = enc.encodeKey(bytes, key)
	bytes = append(bytes, '"')
	for shift := 60; shift >= 0; shift -= 4 {
		bytes = append(bytes, _hex[(id>>uint(shift))&0xF])
	}
	bytes = append(bytes, '"')
	return bytes
}

func (enc *jsonEncoder) encodeKeyInt(bytes []byte, key string, i int64) []byte {
	bytes = enc.encodeKey(bytes, key)
	return strconv.AppendInt(bytes, i, 10)
}

func (enc *jsonEncoder) encodeKeyUint(bytes []byte, key string, u uint64) []byte {
	bytes = enc.encodeKey(bytes, key)
	return strconv.AppendUint(bytes, u, 10)
}

// encodeKeyFloat writes NaN and the infinities as strings, since JSON has no
// literal for them.
func (enc *jsonEncoder) encodeKeyFloat(bytes []byte, key string, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return enc.encodeKeyString(bytes, key, strconv.FormatFloat(f, 'f', -1, 64))
	}
	bytes = enc.encodeKey(bytes, key)
	return strconv.AppendFloat(bytes, f, 'f', -1, 64)
}

func (enc *jsonEncoder) encodeKey(bytes []byte, key string) []byte {
	last := len(bytes) - 1
	if last >= 0 && bytes[last] != '{' {
		bytes = append(bytes, ',')
	}
	bytes = append(bytes, '"')
	bytes = enc.encodeString(bytes, key)
	bytes = append(bytes, '"', ':')

	return bytes
}

// encodeString JSON-escapes a string and appends it to bytes. Unlike the
// standard library's escaping function, it doesn't attempt to protect the
// user from browser vulnerabilities or JSONP-related problems.
func (enc *jsonEncoder) encodeString(bytes []byte, s string) []byte {
	for i := 0; i < len(s); {
		if b := s[i]; b < utf8.RuneSelf {
			i++
			if 0x20 <= b && b != '\\' && b != '"' {
				bytes = append(bytes, b)
				continue
			}
			switch b {
			case '\\', '"':
				bytes = append(bytes, '\\', b)
			case '\n':
				bytes = append(bytes, '\\', 'n')
			case '\r':
				bytes = append(bytes, '\\', 'r')
			case '\t':
				bytes = append(bytes, '\\', 't')
			default:
				// Encode bytes < 0x20, except for the escape sequences above.
				bytes = append(bytes, `\u00`...)
				bytes = append(bytes, _hex[b>>4], _hex[b&0xF])
			}
			continue
		}
		c, size := utf8.DecodeRuneInString(s[i:])
		if c == utf8.RuneError && size == 1 {
			bytes = append(bytes, `\ufffd`...)
			i++
			continue
		}
		bytes = append(bytes, s[i:i+size]...)
		i += size
	}
	return bytes
}
