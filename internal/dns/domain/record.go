package domain

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/haukened/rr-relay/internal/dns/common/utils"
)

// RecordValue is the payload of a cached record: an address for A/AAAA or a
// canonical target name for CNAME.
type RecordValue struct {
	Addr   netip.Addr
	Target string
}

// AddressValue wraps an IPv4 or IPv6 address.
func AddressValue(a netip.Addr) RecordValue {
	return RecordValue{Addr: a}
}

// CNAMEValue wraps an alias target in canonical form.
func CNAMEValue(target string) RecordValue {
	return RecordValue{Target: utils.CanonicalDNSName(target)}
}

// Equal compares two values.
func (v RecordValue) Equal(o RecordValue) bool {
	return v.Addr == o.Addr && v.Target == o.Target
}

func (v RecordValue) String() string {
	if v.Addr.IsValid() {
		return v.Addr.String()
	}
	return v.Target
}

// Record is one cached resource record with an absolute expiry.
type Record struct {
	Domain    string
	Type      RRType
	Value     RecordValue
	ExpiresAt time.Time
}

// NewRecord builds and validates a cache record expiring ttl after now.
func NewRecord(name string, rrtype RRType, value RecordValue, ttl time.Duration, now time.Time) (Record, error) {
	r := Record{
		Domain:    utils.CanonicalDNSName(name),
		Type:      rrtype,
		Value:     value,
		ExpiresAt: now.Add(ttl),
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Validate checks that the value matches the record type.
func (r Record) Validate() error {
	if r.Domain == "" {
		return fmt.Errorf("record domain must not be empty")
	}
	switch r.Type {
	case RRTypeA:
		if !r.Value.Addr.Is4() {
			return fmt.Errorf("A record %s needs an IPv4 value, got %q", r.Domain, r.Value)
		}
	case RRTypeAAAA:
		if !r.Value.Addr.Is6() {
			return fmt.Errorf("AAAA record %s needs an IPv6 value, got %q", r.Domain, r.Value)
		}
	case RRTypeCNAME:
		if r.Value.Target == "" {
			return fmt.Errorf("CNAME record %s needs a target", r.Domain)
		}
	default:
		return fmt.Errorf("record type %s is not cacheable", r.Type)
	}
	return nil
}

// Same reports whether r and o are the same record regardless of expiry.
func (r Record) Same(o Record) bool {
	return r.Domain == o.Domain && r.Type == o.Type && r.Value.Equal(o.Value)
}

// ExpiredAt reports whether the record has no lifetime left at now.
func (r Record) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// TTLAt returns the remaining lifetime in whole seconds, floored at zero.
func (r Record) TTLAt(now time.Time) uint32 {
	d := r.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if secs > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(secs)
}

// IsBlocked reports whether the record carries the blocked sentinel
// address 0.0.0.0 or ::.
func (r Record) IsBlocked() bool {
	return r.Value.Addr.IsValid() && r.Value.Addr.IsUnspecified()
}
