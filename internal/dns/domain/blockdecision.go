package domain

// BlockDecision is the outcome of evaluating a domain against the blacklist.
type BlockDecision struct {
	Blocked     bool
	MatchedRule string // rule name that matched
	Source      string // file of the matched rule
	Kind        BlockRuleKind
}

// IsBlocked is a convenience accessor.
func (d BlockDecision) IsBlocked() bool { return d.Blocked }

// EmptyDecision returns a not-blocked decision.
func EmptyDecision() BlockDecision { return BlockDecision{} }
