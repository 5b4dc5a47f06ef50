package token

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Bytes decodes the escapes of a string token's raw text.
func Bytes(raw string) ([]byte, error) {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(raw) {
			return nil, fmt.Errorf("dangling escape")
		}
		switch e := raw[i]; e {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '\\', '"', '\'':
			out = append(out, e)
		case 'u':
			end := i + 1
			for end < len(raw) && raw[end] != '}' {
				end++
			}
			if i+1 >= len(raw) || raw[i+1] != '{' || end >= len(raw) {
				return nil, fmt.Errorf("malformed unicode escape")
			}
			cp, err := strconv.ParseUint(raw[i+2:end], 16, 32)
			if err != nil || !utf8.ValidRune(rune(cp)) {
				return nil, fmt.Errorf("invalid code point %q", raw[i+2:end])
			}
			out = utf8.AppendRune(out, rune(cp))
			i = end
		default:
			if i+1 >= len(raw) || !isHex(e) || !isHex(raw[i+1]) {
				return nil, fmt.Errorf("unknown escape \\%c", e)
			}
			out = append(out, unhex(e)<<4|unhex(raw[i+1]))
			i++
		}
	}
	return out, nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
