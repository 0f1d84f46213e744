package domain

import "fmt"

// RRType represents a DNS resource record type (e.g. A, AAAA, CNAME).
type RRType uint16

const (
	RRTypeA     RRType = 1   // A - IPv4 address
	RRTypeNS    RRType = 2   // NS - Name server
	RRTypeCNAME RRType = 5   // CNAME - Canonical name
	RRTypeSOA   RRType = 6   // SOA - Start of authority
	RRTypePTR   RRType = 12  // PTR - Pointer
	RRTypeMX    RRType = 15  // MX - Mail exchange
	RRTypeTXT   RRType = 16  // TXT - Text
	RRTypeAAAA  RRType = 28  // AAAA - IPv6 address
	RRTypeSRV   RRType = 33  // SRV - Service
	RRTypeOPT   RRType = 41  // OPT - EDNS option
	RRTypeANY   RRType = 255 // ANY - Any type (query only)
)

var rrTypeNames = map[RRType]string{
	RRTypeA:     "A",
	RRTypeNS:    "NS",
	RRTypeCNAME: "CNAME",
	RRTypeSOA:   "SOA",
	RRTypePTR:   "PTR",
	RRTypeMX:    "MX",
	RRTypeTXT:   "TXT",
	RRTypeAAAA:  "AAAA",
	RRTypeSRV:   "SRV",
	RRTypeOPT:   "OPT",
	RRTypeANY:   "ANY",
}

// String returns the mnemonic, or "TYPE<n>" for types the relay does not name.
func (t RRType) String() string {
	if s, ok := rrTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TYPE%d", uint16(t))
}

// IsCacheable reports whether records of this type can live in the cache.
func (t RRType) IsCacheable() bool {
	return t == RRTypeA || t == RRTypeAAAA || t == RRTypeCNAME
}

// IsAddress reports whether t is A or AAAA.
func (t RRType) IsAddress() bool {
	return t == RRTypeA || t == RRTypeAAAA
}

// RRTypeFromString converts a mnemonic such as "AAAA" to its RRType.
// Unknown mnemonics return 0.
func RRTypeFromString(s string) RRType {
	for t, name := range rrTypeNames {
		if name == s {
			return t
		}
	}
	return 0
}
