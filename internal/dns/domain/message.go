package domain

import "net/netip"

// Header flag bits and masks.
const (
	FlagQR uint16 = 1 << 15
	FlagAA uint16 = 1 << 10
	FlagTC uint16 = 1 << 9
	FlagRD uint16 = 1 << 8
	FlagRA uint16 = 1 << 7

	opcodeShift        = 11
	opcodeMask  uint16 = 0xF
	rcodeMask   uint16 = 0xF
)

// Header is the fixed 12-byte DNS message header.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// IsResponse reports whether the QR bit is set.
func (h Header) IsResponse() bool { return h.Flags&FlagQR != 0 }

// Opcode returns the 4-bit opcode.
func (h Header) Opcode() uint8 { return uint8((h.Flags >> opcodeShift) & opcodeMask) }

// RCode returns the 4-bit response code.
func (h Header) RCode() RCode { return RCode(h.Flags & rcodeMask) }

// Message is a parsed DNS message. It only lives for one parse or build.
type Message struct {
	Header     Header
	Questions  []Question
	Answers    []ResourceRecord
	Authority  []ResourceRecord
	Additional []ResourceRecord
}

// Question returns the first question, which is the only one relays care about.
func (m Message) Question() (Question, bool) {
	if len(m.Questions) == 0 {
		return Question{}, false
	}
	return m.Questions[0], true
}

// ResourceRecord is one decoded record as seen on the wire. TTL is the raw
// 32-bit value from the message.
type ResourceRecord struct {
	Name  string
	Type  RRType
	Class RRClass
	TTL   uint32
	Data  RData
}

// RData is the typed payload of a ResourceRecord. It is one of AData,
// AAAAData, CNAMEData, SOAData or RawData.
type RData interface {
	rdata()
}

type AData struct{ Addr netip.Addr }

type AAAAData struct{ Addr netip.Addr }

type CNAMEData struct{ Target string }

type SOAData struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

// RawData stands in for types that are skipped without decoding.
type RawData struct{ Length uint16 }

func (AData) rdata()     {}
func (AAAAData) rdata()  {}
func (CNAMEData) rdata() {}
func (SOAData) rdata()   {}
func (RawData) rdata()   {}

// CacheValue extracts the cacheable value of an A, AAAA or CNAME record.
func (rr ResourceRecord) CacheValue() (RecordValue, bool) {
	switch d := rr.Data.(type) {
	case AData:
		return AddressValue(d.Addr), rr.Type == RRTypeA
	case AAAAData:
		return AddressValue(d.Addr), rr.Type == RRTypeAAAA
	case CNAMEData:
		return CNAMEValue(d.Target), rr.Type == RRTypeCNAME
	default:
		return RecordValue{}, false
	}
}
