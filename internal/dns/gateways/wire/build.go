package wire

import (
	"fmt"
	"time"

	"github.com/haukened/rr-relay/internal/dns/domain"
)

const (
	flagsQuery = domain.FlagRD

	// pointerToName is a compression pointer to the question name, which
	// always starts right after the header.
	pointerToName = 0xC000 | domain.HeaderSize
)

// answerFlags is the header flag word for a positive answer: QR, RD and RA set.
const answerFlags uint16 = 0x8180

// nxdomainFlags is answerFlags with RCODE 3.
const nxdomainFlags uint16 = answerFlags | uint16(domain.RCodeNXDomain)

// BuildAnswer encodes a response to (qname, qtype) from cached records. The
// records normally start with the CNAME chain and end in the terminal
// addresses. Only records of qtype are written, plus CNAMEs when qtype is
// A or AAAA. The first answer's owner is written as a pointer to the question
// name, so records[0] must be owned by qname. TTLs are the remaining lifetime
// at now.
func (c *UDPCodec) BuildAnswer(id uint16, qname string, qtype domain.RRType, records []domain.Record, now time.Time) ([]byte, error) {
	answers := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if r.Type == qtype || (qtype.IsAddress() && r.Type == domain.RRTypeCNAME) {
			answers = append(answers, r)
		}
	}
	if len(answers) == 0 {
		return nil, ErrNoAnswers
	}

	b := newBuilder(c.limit)
	if err := b.header(id, answerFlags, 1, uint16(len(answers)), 0, 0); err != nil {
		return nil, err
	}
	if err := b.question(qname, qtype); err != nil {
		return nil, err
	}

	c.logger.Debug(map[string]any{
		"step":  "question_written",
		"id":    id,
		"name":  qname,
		"type":  qtype.String(),
		"an":    len(answers),
		"bytes": b.size(),
	}, "Wrote answer header and question")

	for i, r := range answers {
		if err := b.answer(i == 0, r, now); err != nil {
			return nil, fmt.Errorf("answer %d (%s %s): %w", i, r.Domain, r.Type, err)
		}
	}

	c.logger.Debug(map[string]any{
		"step": "final_packet",
		"id":   id,
		"size": b.size(),
	}, "Built DNS answer")

	return b.buf, nil
}

// BuildNXDomain encodes a name-error response echoing the question.
func (c *UDPCodec) BuildNXDomain(id uint16, qname string, qtype domain.RRType) ([]byte, error) {
	b := newBuilder(c.limit)
	if err := b.header(id, nxdomainFlags, 1, 0, 0, 0); err != nil {
		return nil, err
	}
	if err := b.question(qname, qtype); err != nil {
		return nil, err
	}
	return b.buf, nil
}

// BuildQuery encodes a standard recursive query for (qname, qtype).
func (c *UDPCodec) BuildQuery(id uint16, qname string, qtype domain.RRType) ([]byte, error) {
	b := newBuilder(c.limit)
	if err := b.header(id, flagsQuery, 1, 0, 0, 0); err != nil {
		return nil, err
	}
	if err := b.question(qname, qtype); err != nil {
		return nil, err
	}
	return b.buf, nil
}

func (b *builder) question(qname string, qtype domain.RRType) error {
	if err := b.putName(qname); err != nil {
		return err
	}
	if err := b.u16(uint16(qtype)); err != nil {
		return err
	}
	return b.u16(uint16(domain.RRClassIN))
}

func (b *builder) answer(first bool, r domain.Record, now time.Time) error {
	var err error
	if first {
		err = b.u16(pointerToName)
	} else {
		err = b.putName(r.Domain)
	}
	if err != nil {
		return err
	}
	if err := b.u16(uint16(r.Type)); err != nil {
		return err
	}
	if err := b.u16(uint16(domain.RRClassIN)); err != nil {
		return err
	}
	if err := b.u32(r.TTLAt(now)); err != nil {
		return err
	}

	switch r.Type {
	case domain.RRTypeA:
		if !r.Value.Addr.Is4() {
			return ErrBadRData
		}
		a := r.Value.Addr.As4()
		if err := b.u16(4); err != nil {
			return err
		}
		return b.putBytes(a[:])
	case domain.RRTypeAAAA:
		if !r.Value.Addr.Is6() {
			return ErrBadRData
		}
		a := r.Value.Addr.As16()
		if err := b.u16(16); err != nil {
			return err
		}
		return b.putBytes(a[:])
	case domain.RRTypeCNAME:
		target := newBuilder(domain.MaxNameLength)
		if err := target.putName(r.Value.Target); err != nil {
			return err
		}
		if err := b.u16(uint16(target.size())); err != nil {
			return err
		}
		return b.putBytes(target.buf)
	default:
		return ErrBadRData
	}
}
