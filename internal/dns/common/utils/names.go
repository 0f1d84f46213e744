// Package utils holds small name helpers shared by the cache, the blocklist
// and the seed loaders.
package utils

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// CanonicalDNSName returns a DNS name in canonical form: lowercased, trimmed
// of surrounding whitespace and without trailing dots.
func CanonicalDNSName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimRight(name, ".")
}

// GetApexDomain returns the registrable domain (eTLD+1) for name, or the
// canonical name itself when the public suffix list has no answer.
func GetApexDomain(name string) string {
	name = CanonicalDNSName(name)
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}

// ReverseName reverses the bytes of a canonical name. The cache trie and the
// blocklist suffix index both key on reversed names so that siblings share a
// prefix.
func ReverseName(name string) string {
	b := []byte(name)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// SuffixAnchors lists name and each parent domain down to its apex, most
// specific first. Names without a registrable apex walk down to the last
// label.
//
//	SuffixAnchors("a.b.example.co.uk") = [a.b.example.co.uk b.example.co.uk example.co.uk]
func SuffixAnchors(name string) []string {
	name = CanonicalDNSName(name)
	if name == "" {
		return nil
	}
	apex := GetApexDomain(name)
	out := []string{name}
	for cur := name; cur != apex; {
		i := strings.IndexByte(cur, '.')
		if i < 0 {
			break
		}
		cur = cur[i+1:]
		if cur == "" {
			break
		}
		out = append(out, cur)
	}
	return out
}
