package domain

import "net/netip"

// HostEntry is one static mapping loaded before serving: an address and the
// names that resolve to it.
type HostEntry struct {
	Addr   netip.Addr
	Names  []string
	Source string
}

// IsBlocked reports whether the entry maps its names to the blocked sentinel.
// Such entries feed the blacklist instead of the cache.
func (h HostEntry) IsBlocked() bool {
	return h.Addr.IsValid() && h.Addr.IsUnspecified()
}

// RecordType returns A or AAAA depending on the address family.
func (h HostEntry) RecordType() RRType {
	if h.Addr.Is4() {
		return RRTypeA
	}
	return RRTypeAAAA
}
