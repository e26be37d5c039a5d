package constexpr

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"unicode/utf8"
)

// IsFloatLiteral reports whether a preprocessing number spells a floating
// constant (5.12, 1e3, 0x1p-3, 1.0f).
func IsFloatLiteral(text string) bool {
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "0x") {
		return strings.ContainsAny(lower, ".p")
	}
	return strings.ContainsAny(lower, ".e")
}

// splitSuffix separates an integer suffix (u, l, ul, ll, ull in any case
// and order) from the digits.
func splitSuffix(text string) (digits string, unsigned bool, longs int, err error) {
	end := len(text)
	for end > 0 {
		c := text[end-1]
		if c == 'u' || c == 'U' || c == 'l' || c == 'L' {
			end--
			continue
		}
		break
	}
	suffix := strings.ToLower(text[end:])
	switch suffix {
	case "":
	case "u":
		unsigned = true
	case "l":
		longs = 1
	case "ul", "lu":
		unsigned, longs = true, 1
	case "ll":
		longs = 2
	case "ull", "llu":
		unsigned, longs = true, 2
	default:
		return "", false, 0, fmt.Errorf("invalid integer suffix %q", text[end:])
	}
	return text[:end], unsigned, longs, nil
}

// ParseInt interprets an integer literal with its C classification. A
// decimal literal too large for long is classified unsigned long.
func ParseInt(text string) (Value, error) {
	if IsFloatLiteral(text) {
		return Value{}, fmt.Errorf("%w: %s", ErrNotInteger, text)
	}
	digits, unsigned, longs, err := splitSuffix(text)
	if err != nil {
		return Value{}, err
	}
	base := 10
	switch {
	case strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X"):
		base, digits = 16, digits[2:]
	case strings.HasPrefix(digits, "0b") || strings.HasPrefix(digits, "0B"):
		base, digits = 2, digits[2:]
	case len(digits) > 1 && digits[0] == '0':
		base, digits = 8, digits[1:]
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok || digits == "" || strings.ContainsAny(digits, "+-_") {
		return Value{}, fmt.Errorf("invalid integer constant %q", text)
	}
	if n.BitLen() > 64 {
		return Value{}, &OverflowError{Op: "integer constant", Expr: text}
	}
	u := n.Uint64()

	rank := Rank(longs)
	if rank == RankInt {
		switch {
		case unsigned && u > math.MaxUint32:
			rank = RankLong
		case !unsigned && base == 10 && u > math.MaxInt32:
			rank = RankLong
		case !unsigned && base != 10 && u > math.MaxUint32:
			rank = RankLong
		case !unsigned && base != 10 && u > math.MaxInt32:
			unsigned = true // hex 0x80000000 is unsigned int
		}
	}
	if !unsigned && u > math.MaxInt64 {
		unsigned = true
	}
	return Value{Bits: u, Unsigned: unsigned, Rank: rank}, nil
}

// decodeEscapes turns the body of a character literal into code units.
// \e is the GNU escape for ESC.
func decodeEscapes(body string) ([]uint32, error) {
	var out []uint32
	for i := 0; i < len(body); {
		if body[i] != '\\' {
			r, size := utf8.DecodeRuneInString(body[i:])
			out = append(out, uint32(r))
			i += size
			continue
		}
		v, _, next, err := decodeEscape(body, i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		i = next
	}
	return out, nil
}

// decodeEscape decodes the escape sequence starting at body[i] == '\\'.
// ucn is set for \u and \U, whose value is a code point rather than a
// code unit.
func decodeEscape(body string, i int) (v uint32, ucn bool, next int, err error) {
	i++
	if i >= len(body) {
		return 0, false, i, fmt.Errorf("trailing backslash")
	}
	c := body[i]
	i++
	switch c {
	case 'n':
		return '\n', false, i, nil
	case 't':
		return '\t', false, i, nil
	case 'r':
		return '\r', false, i, nil
	case 'v':
		return '\v', false, i, nil
	case 'a':
		return '\a', false, i, nil
	case 'b':
		return '\b', false, i, nil
	case 'f':
		return '\f', false, i, nil
	case 'e', 'E':
		return 27, false, i, nil
	case 'x':
		start := i
		for i < len(body) && isHex(body[i]) {
			v = v<<4 | hexVal(body[i])
			i++
		}
		if i == start {
			return 0, false, i, fmt.Errorf("\\x used with no following hex digits")
		}
		return v, false, i, nil
	case 'u', 'U':
		n := 4
		if c == 'U' {
			n = 8
		}
		if i+n > len(body) {
			return 0, false, i, fmt.Errorf("incomplete universal character name")
		}
		for _, h := range []byte(body[i : i+n]) {
			if !isHex(h) {
				return 0, false, i, fmt.Errorf("invalid universal character name")
			}
			v = v<<4 | hexVal(h)
		}
		return v, true, i + n, nil
	}
	if c >= '0' && c <= '7' {
		v = uint32(c - '0')
		for k := 0; k < 2 && i < len(body) && body[i] >= '0' && body[i] <= '7'; k++ {
			v = v<<3 | uint32(body[i]-'0')
			i++
		}
		return v, false, i, nil
	}
	// \\ \' \" \? and unknown escapes stand for the character itself
	return uint32(c), false, i, nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) uint32 {
	switch {
	case c >= '0' && c <= '9':
		return uint32(c - '0')
	case c >= 'a' && c <= 'f':
		return uint32(c-'a') + 10
	}
	return uint32(c-'A') + 10
}

// splitPrefix returns the encoding prefix (L, u, U, u8) and the text
// between the quotes.
func splitPrefix(text string, quote byte) (prefix, body string, err error) {
	open := strings.IndexByte(text, quote)
	if open < 0 || len(text) < open+2 || text[len(text)-1] != quote {
		return "", "", fmt.Errorf("malformed literal %s", text)
	}
	return text[:open], text[open+1 : len(text)-1], nil
}

// CharValue interprets a character constant. A plain one-byte constant is
// a signed char promoted to int, so '\xff' is -1. Multi-character
// constants pack bytes big-endian as GCC does.
func CharValue(text string) (Value, error) {
	prefix, body, err := splitPrefix(text, '\'')
	if err != nil {
		return Value{}, err
	}
	units, err := decodeEscapes(body)
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", text, err)
	}
	if len(units) == 0 {
		return Value{}, fmt.Errorf("empty character constant")
	}
	switch prefix {
	case "L":
		return Int(int64(int32(units[len(units)-1]))), nil
	case "u", "U", "u8":
		return Value{Bits: uint64(units[len(units)-1]), Unsigned: prefix != "u8", Rank: RankInt}, nil
	}
	if len(units) == 1 {
		return Int(int64(int8(units[0]))), nil
	}
	var v uint32
	for _, u := range units {
		v = v<<8 | (u & 0xff)
	}
	return Int(int64(int32(v))), nil
}

// StringValue decodes a string literal into bytes. Source characters are
// kept as written; \u escapes are encoded as UTF-8.
func StringValue(text string) (string, error) {
	_, body, err := splitPrefix(text, '"')
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i := 0; i < len(body); {
		if body[i] != '\\' {
			sb.WriteByte(body[i])
			i++
			continue
		}
		v, ucn, next, err := decodeEscape(body, i)
		if err != nil {
			return "", fmt.Errorf("%s: %w", text, err)
		}
		if ucn {
			sb.WriteRune(rune(v))
		} else {
			sb.WriteByte(byte(v))
		}
		i = next
	}
	return sb.String(), nil
}
