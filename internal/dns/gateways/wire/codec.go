// Package wire encodes and decodes DNS messages in the RFC 1035 wire format.
// Parsing is bounds-checked throughout and building never exceeds the
// 512-byte UDP limit.
package wire

import (
	"errors"
	"time"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

var (
	ErrShortMessage   = errors.New("message shorter than header")
	ErrTruncated      = errors.New("message truncated")
	ErrNameOverrun    = errors.New("name runs past end of message")
	ErrBadPointer     = errors.New("compression pointer does not point backwards")
	ErrTooManyJumps   = errors.New("too many compression pointer jumps")
	ErrBadLabel       = errors.New("unsupported label type")
	ErrLabelTooLong   = errors.New("label too long")
	ErrNameTooLong    = errors.New("name too long")
	ErrEmptyLabel     = errors.New("empty label in name")
	ErrRDataOverrun   = errors.New("rdata runs past end of message")
	ErrBadRData       = errors.New("rdata does not match record type")
	ErrBufferOverflow = errors.New("message exceeds buffer capacity")
	ErrNoAnswers      = errors.New("no records match the query type")
)

// DNSCodec is what the relay needs from the wire layer.
type DNSCodec interface {
	Parse(data []byte) (domain.Message, error)
	BuildAnswer(id uint16, qname string, qtype domain.RRType, records []domain.Record, now time.Time) ([]byte, error)
	BuildNXDomain(id uint16, qname string, qtype domain.RRType) ([]byte, error)
}

// UDPCodec implements DNSCodec for classic DNS over UDP.
type UDPCodec struct {
	logger log.Logger
	limit  int
}

// NewUDPCodec returns a codec that builds messages of at most
// domain.MaxUDPMessageSize bytes.
func NewUDPCodec(logger log.Logger) *UDPCodec {
	return &UDPCodec{
		logger: logger,
		limit:  domain.MaxUDPMessageSize,
	}
}

var _ DNSCodec = (*UDPCodec)(nil)
