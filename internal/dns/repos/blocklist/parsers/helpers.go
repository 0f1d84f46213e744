// Package parsers turns blocklist and hosts files into domain values.
package parsers

import (
	"strings"
	"unicode"

	"github.com/haukened/rr-relay/internal/dns/common/utils"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

// LineKind classifies a raw input line before any tokenizing.
type LineKind uint8

const (
	LineContent LineKind = iota
	LineEmpty
	LineComment
)

// CleanLine strips a leading BOM and any inline '#' comment and reports
// what kind of line it was. Content lines are returned trimmed.
func CleanLine(line string) (string, LineKind) {
	line = stripLineBOM(line)
	if kind := classifyLine(line); kind != LineContent {
		return "", kind
	}
	return strings.TrimSpace(stripInlineComment(line)), LineContent
}

func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine detects empty and whole-line comment lines.
func classifyLine(line string) LineKind {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return LineEmpty
	case strings.HasPrefix(trimmed, "#"):
		return LineComment
	default:
		return LineContent
	}
}

func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// ruleKindFromRaw decides the BlockRuleKind based on the raw, uncanonicalized input.
// Returns BlockRuleSuffix if the name begins with "*." or ".", otherwise BlockRuleExact.
func ruleKindFromRaw(raw string) domain.BlockRuleKind {
	if strings.HasPrefix(raw, "*.") || strings.HasPrefix(raw, ".") {
		return domain.BlockRuleSuffix
	}
	return domain.BlockRuleExact
}

// isValidFQDN checks that name is at most 255 bytes, has at least two
// non-empty labels of at most 63 bytes and starts with a letter, digit or
// wildcard.
func isValidFQDN(name string) bool {
	labels, ok := splitLabels(name)
	if !ok || len(labels) < 2 {
		return false
	}
	first := []rune(labels[0])[0]
	return isAlphaNumeric(first) || isWildcard(first)
}

// IsValidHostname is the looser check used for hosts-file names: a single
// label such as "localhost" is allowed, but every byte must be a letter,
// digit, '-' or '.' since the cache cannot key anything else.
func IsValidHostname(name string) bool {
	labels, ok := splitLabels(name)
	if !ok {
		return false
	}
	for _, l := range labels {
		if l[0] == '-' {
			return false
		}
		for i := 0; i < len(l); i++ {
			c := l[i]
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
				return false
			}
		}
	}
	return true
}

func splitLabels(name string) ([]string, bool) {
	if name == "" || len(name) > domain.MaxNameLength {
		return nil, false
	}
	labels := strings.Split(name, ".")
	for _, label := range labels {
		if len(label) == 0 || len(label) > domain.MaxLabelLength {
			return nil, false
		}
	}
	return labels, true
}

// normalizeDomainName trims whitespace and any leading "*." or "." marker
// and returns the canonical name.
func normalizeDomainName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.CanonicalDNSName(name)
}

func isAlphaNumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isWildcard(r rune) bool {
	return r == '*'
}
