package rdm

import (
	"fmt"
)

// The parameter data block of an RDM message has no single fixed layout;
// each parameter describes its wire format with a compact format string:
//
//	b/B   unsigned byte                                   1 byte
//	w/W   big-endian 16-bit word                          2 bytes
//	d/D   big-endian 32-bit dword                         4 bytes
//	u/U   UID, network order                              6 bytes
//	v/V   optional UID, omitted when null; must be last   6 bytes
//	a/A   ASCII, fixed length when digits follow, else
//	      variable length (up to 32) and must be last     N bytes
//	#..h  hex integer literal, emitted MSB first          1-8 bytes
//	$     end anchor; marks the parameter non-repeating
//
// A parameter without a variable-length field, optional UID or end
// anchor is "repeating": Emplace packs as many whole repeats as fit.
//
// Conversion is symmetric. The host-side layout is the same field
// sequence in little-endian byte order, so running Emplace over an
// encoded block converts it back to host order.

type fieldKind uint8

const (
	fieldByte fieldKind = iota
	fieldWord
	fieldDword
	fieldUID
	fieldOptionalUID
	fieldASCIIFixed
	fieldASCIIVariable
	fieldLiteral
	fieldEnd
)

// field is one parsed token of a format string.
type field struct {
	kind    fieldKind
	size    int    // encoded size; budgeted maximum for variable strings
	literal []byte // fieldLiteral only
}

// Format is a parsed parameter format string. Parse once, emplace many.
type Format struct {
	fields    []field
	size      int
	singleton bool
}

// Size returns the encoded size of one repeat of the parameter.
// Variable-length strings are budgeted at their 32-byte maximum.
func (f *Format) Size() int { return f.size }

// Singleton reports whether the parameter occurs exactly once rather
// than repeating to fill the destination.
func (f *Format) Singleton() bool { return f.singleton }

// ParseFormat validates a format string and compiles it into field
// descriptors. Format errors indicate a firmware bug, not a wire
// condition: they are reported eagerly and nothing is ever emplaced
// from an invalid format.
func ParseFormat(format string) (*Format, error) {
	f := &Format{}
	for i := 0; i < len(format); i++ {
		var fd field
		switch c := format[i]; c {
		case 'b', 'B':
			fd = field{kind: fieldByte, size: 1}
		case 'w', 'W':
			fd = field{kind: fieldWord, size: 2}
		case 'd', 'D':
			fd = field{kind: fieldDword, size: 4}
		case 'u', 'U':
			fd = field{kind: fieldUID, size: UIDSize}
		case 'v', 'V':
			if !lastOrAnchored(format, i) {
				return nil, fmt.Errorf("%w: optional UID at index %d", ErrFormatMisplacedToken, i)
			}
			fd = field{kind: fieldOptionalUID, size: UIDSize}
			f.singleton = true
		case 'a', 'A':
			j := i + 1
			for j < len(format) && isDigit(format[j]) {
				j++
			}
			if j > i+1 {
				n := 0
				for _, d := range []byte(format[i+1 : j]) {
					n = n*10 + int(d-'0')
					if n > MaxPDL {
						break
					}
				}
				if n == 0 {
					return nil, fmt.Errorf("%w: at index %d", ErrFormatBadString, i)
				}
				if n > MaxPDL-f.size {
					return nil, fmt.Errorf("%w: string of %d bytes", ErrFormatTooBig, n)
				}
				fd = field{kind: fieldASCIIFixed, size: n}
				i = j - 1
			} else {
				if !lastOrAnchored(format, i) {
					return nil, fmt.Errorf("%w: variable-length string at index %d", ErrFormatMisplacedToken, i)
				}
				fd = field{kind: fieldASCIIVariable, size: 32}
				f.singleton = true
			}
		case '#':
			j := i + 1
			for j < len(format) && isHexDigit(format[j]) {
				j++
			}
			digits := j - i - 1
			if digits == 0 || digits > 16 {
				return nil, fmt.Errorf("%w: at index %d", ErrFormatBadLiteral, i)
			}
			if j >= len(format) || (format[j] != 'h' && format[j] != 'H') {
				return nil, fmt.Errorf("%w: unterminated literal at index %d", ErrFormatBadLiteral, i)
			}
			fd = field{kind: fieldLiteral, literal: literalBytes(format[i+1 : j])}
			fd.size = len(fd.literal)
			i = j
		case '$':
			if i != len(format)-1 {
				return nil, fmt.Errorf("%w: end anchor at index %d", ErrFormatMisplacedToken, i)
			}
			fd = field{kind: fieldEnd}
			f.singleton = true
		default:
			return nil, fmt.Errorf("%w: %q at index %d", ErrFormatUnknownToken, c, i)
		}

		if f.size+fd.size > MaxPDL {
			return nil, ErrFormatTooBig
		}
		f.size += fd.size
		f.fields = append(f.fields, fd)
	}

	if f.size == 0 {
		return nil, ErrFormatEmpty
	}
	return f, nil
}

// MustFormat is ParseFormat for compile-time-constant format strings.
// It panics on error.
func MustFormat(format string) *Format {
	f, err := ParseFormat(format)
	if err != nil {
		panic(err)
	}
	return f
}

// lastOrAnchored reports whether format[i] is the final field token,
// allowing only an end anchor after it.
func lastOrAnchored(format string, i int) bool {
	rest := format[i+1:]
	return rest == "" || rest == "$"
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// literalBytes packs hex digits into bytes, most significant first.
func literalBytes(digits string) []byte {
	var v uint64
	for i := 0; i < len(digits); i++ {
		v = v<<4 | uint64(hexVal(digits[i]))
	}
	n := (len(digits) + 1) / 2
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// Emplace converts between host order and wire order, walking the
// format once per repeat. src holds the source fields, dst receives the
// converted output; both sides use the same offsets, so the conversion
// is its own inverse. When encodeNulls is set, ASCII fields gain a
// counted NUL terminator.
//
// Singleton parameters are emplaced once; repeating parameters fill
// min(len(dst), len(src)) with whole repeats. Emplace never writes past
// len(dst) and returns the number of bytes produced.
func (f *Format) Emplace(dst, src []byte, encodeNulls bool) int {
	if len(src) > MaxPDL {
		src = src[:MaxPDL]
	}
	size := len(dst)
	if len(src) < size {
		size = len(src)
	}

	repeats := 1
	if !f.singleton {
		repeats = size / f.size
	}

	n := 0
	for r := 0; r < repeats; r++ {
	fields:
		for _, fd := range f.fields {
			switch fd.kind {
			case fieldByte:
				if n+1 > size {
					return n
				}
				dst[n] = src[n]
				n++
			case fieldWord:
				if n+2 > size {
					return n
				}
				dst[n], dst[n+1] = src[n+1], src[n]
				n += 2
			case fieldDword:
				if n+4 > size {
					return n
				}
				dst[n], dst[n+1], dst[n+2], dst[n+3] = src[n+3], src[n+2], src[n+1], src[n]
				n += 4
			case fieldUID, fieldOptionalUID:
				if n+UIDSize > size {
					return n
				}
				if fd.kind == fieldOptionalUID && !encodeNulls && isZero(src[n:n+UIDSize]) {
					break fields // optional UIDs are the last field
				}
				// Manufacturer word then device dword, each swapped.
				dst[n], dst[n+1] = src[n+1], src[n]
				dst[n+2], dst[n+3], dst[n+4], dst[n+5] = src[n+5], src[n+4], src[n+3], src[n+2]
				n += UIDSize
			case fieldASCIIFixed, fieldASCIIVariable:
				l := fd.size
				if fd.kind == fieldASCIIVariable {
					strSize := size
					if encodeNulls {
						strSize--
					}
					max := strSize - n
					if max > 32 {
						max = 32
					}
					if max < 0 {
						max = 0
					}
					l = strLen(src[n:], max)
				}
				if n+l > size {
					l = size - n
					if l < 0 {
						return n
					}
				}
				copy(dst[n:n+l], src[n:n+l])
				if encodeNulls && n+l < len(dst) {
					dst[n+l] = 0
					n++
				}
				n += l
			case fieldLiteral:
				if n+len(fd.literal) > len(dst) {
					return n
				}
				copy(dst[n:], fd.literal)
				n += len(fd.literal)
			case fieldEnd:
			}
		}
	}
	return n
}

// Emplace is the single-call form: parse format, then emplace once.
func Emplace(dst []byte, format string, src []byte, encodeNulls bool) (int, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return 0, err
	}
	return f.Emplace(dst, src, encodeNulls), nil
}

// strLen is strnlen: the index of the first NUL in b, capped at max.
func strLen(b []byte, max int) int {
	if len(b) < max {
		max = len(b)
	}
	for i := 0; i < max; i++ {
		if b[i] == 0 {
			return i
		}
	}
	return max
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
