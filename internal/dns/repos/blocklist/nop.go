package blocklist

import "github.com/haukened/rr-relay/internal/dns/domain"

// NopRepository is used when the blacklist is disabled: nothing is blocked
// and updates are discarded.
type NopRepository struct{}

func (NopRepository) Decide(string) domain.BlockDecision { return domain.EmptyDecision() }

func (NopRepository) UpdateAll([]domain.BlockRule, uint64, int64) error { return nil }

func (NopRepository) Stats() RepoStats { return RepoStats{} }

func (NopRepository) Close() error { return nil }

var _ Repository = NopRepository{}
