package wire

import (
	"encoding/binary"
	"strings"

	"github.com/haukened/rr-relay/internal/dns/domain"
)

const (
	pointerMask  = 0xC0
	pointerValue = 0xC0
	offsetMask   = 0x3FFF
)

// decodeName reads the name starting at start and returns it with the offset
// just past it in the original byte stream. The root name decodes to ".".
//
// Each compression pointer must target an offset strictly below the previous
// limit, which starts at the name's own offset. Together with the jump cap
// this rules out loops and forward references.
func decodeName(data []byte, start int) (string, int, error) {
	var sb strings.Builder
	pos := start
	limit := start
	next := -1
	jumps := 0
	wireLen := 1 // terminating zero

	for {
		if pos >= len(data) {
			return "", 0, ErrNameOverrun
		}
		l := int(data[pos])
		switch l & pointerMask {
		case 0x00:
			if l == 0 {
				if next < 0 {
					next = pos + 1
				}
				if sb.Len() == 0 {
					return ".", next, nil
				}
				return sb.String(), next, nil
			}
			if pos+1+l > len(data) {
				return "", 0, ErrNameOverrun
			}
			wireLen += 1 + l
			if wireLen > domain.MaxNameLength {
				return "", 0, ErrNameTooLong
			}
			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
			sb.Write(data[pos+1 : pos+1+l])
			pos += 1 + l
		case pointerValue:
			if pos+1 >= len(data) {
				return "", 0, ErrNameOverrun
			}
			target := int(binary.BigEndian.Uint16(data[pos:pos+2]) & offsetMask)
			if target >= limit {
				return "", 0, ErrBadPointer
			}
			jumps++
			if jumps > domain.MaxPointerJumps {
				return "", 0, ErrTooManyJumps
			}
			if next < 0 {
				next = pos + 2
			}
			limit = target
			pos = target
		default:
			return "", 0, ErrBadLabel
		}
	}
}

// putName appends name as literal labels. Both "" and "." encode the root.
func (b *builder) putName(name string) error {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return b.putByte(0)
	}
	if len(name)+2 > domain.MaxNameLength {
		return ErrNameTooLong
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" {
			return ErrEmptyLabel
		}
		if len(label) > domain.MaxLabelLength {
			return ErrLabelTooLong
		}
		if err := b.putByte(byte(len(label))); err != nil {
			return err
		}
		if err := b.putBytes([]byte(label)); err != nil {
			return err
		}
	}
	return b.putByte(0)
}
