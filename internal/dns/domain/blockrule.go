package domain

import (
	"fmt"
	"strings"
	"time"
)

// BlockRuleKind defines how a rule matches domains.
//
// exact  - matches the name only
// suffix - matches the name and any subdomain of it
type BlockRuleKind uint8

const (
	// BlockRuleExact matches only the exact domain.
	BlockRuleExact BlockRuleKind = iota
	// BlockRuleSuffix matches the domain and all its subdomains.
	BlockRuleSuffix
)

// String returns a stable string representation of the rule kind.
func (k BlockRuleKind) String() string {
	switch k {
	case BlockRuleExact:
		return "exact"
	case BlockRuleSuffix:
		return "suffix"
	default:
		return fmt.Sprintf("BlockRuleKind(%d)", k)
	}
}

// BlockRule is one blacklist entry, sourced from a hosts file (sentinel
// address) or a plain domain list.
type BlockRule struct {
	Name    string        // canonical domain, e.g. "ads.example.com"
	Kind    BlockRuleKind // exact or suffix
	Source  string        // file the rule came from
	AddedAt time.Time
}

// NewBlockRule constructs a BlockRule and validates its fields.
func NewBlockRule(name string, kind BlockRuleKind, source string, addedAt time.Time) (BlockRule, error) {
	r := BlockRule{
		Name:    strings.TrimSpace(name),
		Kind:    kind,
		Source:  strings.TrimSpace(source),
		AddedAt: addedAt,
	}
	if err := r.Validate(); err != nil {
		return BlockRule{}, err
	}
	return r, nil
}

// NewExactBlockRule is shorthand for an exact rule.
func NewExactBlockRule(name, source string, addedAt time.Time) (BlockRule, error) {
	return NewBlockRule(name, BlockRuleExact, source, addedAt)
}

// NewSuffixBlockRule is shorthand for a suffix rule.
func NewSuffixBlockRule(name, source string, addedAt time.Time) (BlockRule, error) {
	return NewBlockRule(name, BlockRuleSuffix, source, addedAt)
}

// Validate checks the BlockRule for required fields and supported values.
func (r BlockRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if r.Source == "" {
		return fmt.Errorf("rule source must not be empty")
	}
	if r.AddedAt.IsZero() {
		return fmt.Errorf("rule addedAt must be set")
	}
	if r.Kind != BlockRuleExact && r.Kind != BlockRuleSuffix {
		return fmt.Errorf("unsupported BlockRuleKind: %d", r.Kind)
	}
	return nil
}

// Key identifies a rule for de-duplication; an exact and a suffix rule for
// the same name are distinct.
func (r BlockRule) Key() string { return r.Kind.String() + "|" + r.Name }
