package wire

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/haukened/rr-relay/internal/dns/domain"
)

// Parse decodes a complete DNS message. Any malformed field fails the whole
// message; callers drop the packet rather than act on a partial decode.
func (c *UDPCodec) Parse(data []byte) (domain.Message, error) {
	if len(data) < domain.HeaderSize {
		return domain.Message{}, ErrShortMessage
	}

	h := domain.Header{
		ID:      binary.BigEndian.Uint16(data[0:2]),
		Flags:   binary.BigEndian.Uint16(data[2:4]),
		QDCount: binary.BigEndian.Uint16(data[4:6]),
		ANCount: binary.BigEndian.Uint16(data[6:8]),
		NSCount: binary.BigEndian.Uint16(data[8:10]),
		ARCount: binary.BigEndian.Uint16(data[10:12]),
	}
	msg := domain.Message{Header: h}
	off := domain.HeaderSize

	for i := 0; i < int(h.QDCount); i++ {
		name, next, err := decodeName(data, off)
		if err != nil {
			return domain.Message{}, fmt.Errorf("question %d: %w", i, err)
		}
		if next+4 > len(data) {
			return domain.Message{}, fmt.Errorf("question %d: %w", i, ErrTruncated)
		}
		msg.Questions = append(msg.Questions, domain.Question{
			ID:    h.ID,
			Name:  name,
			Type:  domain.RRType(binary.BigEndian.Uint16(data[next : next+2])),
			Class: domain.RRClass(binary.BigEndian.Uint16(data[next+2 : next+4])),
		})
		off = next + 4
	}

	sections := []struct {
		name  string
		count uint16
		dst   *[]domain.ResourceRecord
	}{
		{"answer", h.ANCount, &msg.Answers},
		{"authority", h.NSCount, &msg.Authority},
		{"additional", h.ARCount, &msg.Additional},
	}
	for _, s := range sections {
		for i := 0; i < int(s.count); i++ {
			rr, next, err := parseResourceRecord(data, off)
			if err != nil {
				return domain.Message{}, fmt.Errorf("%s record %d: %w", s.name, i, err)
			}
			*s.dst = append(*s.dst, rr)
			off = next
		}
	}

	return msg, nil
}

// parseResourceRecord decodes one record at off and returns the offset after
// its RDATA.
func parseResourceRecord(data []byte, off int) (domain.ResourceRecord, int, error) {
	name, off, err := decodeName(data, off)
	if err != nil {
		return domain.ResourceRecord{}, 0, err
	}
	if off+10 > len(data) {
		return domain.ResourceRecord{}, 0, ErrTruncated
	}

	rr := domain.ResourceRecord{
		Name:  name,
		Type:  domain.RRType(binary.BigEndian.Uint16(data[off : off+2])),
		Class: domain.RRClass(binary.BigEndian.Uint16(data[off+2 : off+4])),
		TTL:   binary.BigEndian.Uint32(data[off+4 : off+8]),
	}
	rdLen := int(binary.BigEndian.Uint16(data[off+8 : off+10]))
	off += 10
	end := off + rdLen
	if end > len(data) {
		return domain.ResourceRecord{}, 0, ErrRDataOverrun
	}
	rdata := data[off:end]

	switch rr.Type {
	case domain.RRTypeA:
		if rdLen != 4 {
			return domain.ResourceRecord{}, 0, ErrBadRData
		}
		rr.Data = domain.AData{Addr: netip.AddrFrom4([4]byte(rdata))}
	case domain.RRTypeAAAA:
		if rdLen != 16 {
			return domain.ResourceRecord{}, 0, ErrBadRData
		}
		rr.Data = domain.AAAAData{Addr: netip.AddrFrom16([16]byte(rdata))}
	case domain.RRTypeCNAME:
		target, next, err := decodeName(data, off)
		if err != nil {
			return domain.ResourceRecord{}, 0, err
		}
		if next != end {
			return domain.ResourceRecord{}, 0, ErrBadRData
		}
		rr.Data = domain.CNAMEData{Target: target}
	case domain.RRTypeSOA:
		soa, err := parseSOA(data, off, end)
		if err != nil {
			return domain.ResourceRecord{}, 0, err
		}
		rr.Data = soa
	default:
		rr.Data = domain.RawData{Length: uint16(rdLen)}
	}

	return rr, end, nil
}

func parseSOA(data []byte, off, end int) (domain.SOAData, error) {
	mname, off, err := decodeName(data, off)
	if err != nil {
		return domain.SOAData{}, err
	}
	rname, off, err := decodeName(data, off)
	if err != nil {
		return domain.SOAData{}, err
	}
	if off+20 != end {
		return domain.SOAData{}, ErrBadRData
	}
	u := func(i int) uint32 { return binary.BigEndian.Uint32(data[off+4*i : off+4*i+4]) }
	return domain.SOAData{
		MName:   mname,
		RName:   rname,
		Serial:  u(0),
		Refresh: u(1),
		Retry:   u(2),
		Expire:  u(3),
		Minimum: u(4),
	}, nil
}
