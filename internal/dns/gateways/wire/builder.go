package wire

import "encoding/binary"

// builder appends to a buffer that may never grow past limit.
type builder struct {
	buf   []byte
	limit int
}

func newBuilder(limit int) *builder {
	return &builder{buf: make([]byte, 0, limit), limit: limit}
}

func (b *builder) room(n int) error {
	if len(b.buf)+n > b.limit {
		return ErrBufferOverflow
	}
	return nil
}

func (b *builder) putByte(v byte) error {
	if err := b.room(1); err != nil {
		return err
	}
	b.buf = append(b.buf, v)
	return nil
}

func (b *builder) putBytes(p []byte) error {
	if err := b.room(len(p)); err != nil {
		return err
	}
	b.buf = append(b.buf, p...)
	return nil
}

func (b *builder) u16(v uint16) error {
	if err := b.room(2); err != nil {
		return err
	}
	b.buf = binary.BigEndian.AppendUint16(b.buf, v)
	return nil
}

func (b *builder) u32(v uint32) error {
	if err := b.room(4); err != nil {
		return err
	}
	b.buf = binary.BigEndian.AppendUint32(b.buf, v)
	return nil
}

// header writes the 12-byte header.
func (b *builder) header(id, flags, qd, an, ns, ar uint16) error {
	for _, v := range [...]uint16{id, flags, qd, an, ns, ar} {
		if err := b.u16(v); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) size() int { return len(b.buf) }
