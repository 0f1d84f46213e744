package domain

import "time"

// Seed is a static record to load into the cache before serving, from a
// hosts file or a zone file.
type Seed struct {
	Name   string
	Type   RRType
	Value  RecordValue
	TTL    time.Duration
	Source string
}

// Seeds expands a host entry into one seed per name.
func (h HostEntry) Seeds(ttl time.Duration) []Seed {
	out := make([]Seed, 0, len(h.Names))
	for _, n := range h.Names {
		out = append(out, Seed{
			Name:   n,
			Type:   h.RecordType(),
			Value:  AddressValue(h.Addr),
			TTL:    ttl,
			Source: h.Source,
		})
	}
	return out
}
