package blocklist

import (
	"sync"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/common/utils"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

// DefaultMaxEntries bounds the blacklist when no limit is configured.
const DefaultMaxEntries = 1000

// Options configures a Repository.
type Options struct {
	Store      Store
	Cache      DecisionCache
	Factory    BloomFactory
	FPRate     float64
	MaxEntries int
	Logger     log.Logger
}

// repository composes a Store, a Bloom filter (via factory) and a
// DecisionCache. Reads go cache -> bloom -> store; writes swap a complete
// snapshot.
type repository struct {
	mu         sync.RWMutex
	store      Store
	cache      DecisionCache
	bloom      BloomFilter
	factory    BloomFactory
	fpRate     float64
	maxEntries int
	logger     log.Logger

	rules   int
	dropped int
}

// NewRepository constructs a Repository. The Bloom filter is built on the
// first UpdateAll; until then every lookup goes to the store.
func NewRepository(opts Options) Repository {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &repository{
		store:      opts.Store,
		cache:      opts.Cache,
		factory:    opts.Factory,
		fpRate:     opts.FPRate,
		maxEntries: opts.MaxEntries,
		logger:     opts.Logger,
	}
}

// Decide returns a BlockDecision for the provided domain name.
// Policy: on internal errors, prefer Allow (not blocked).
func (r *repository) Decide(name string) domain.BlockDecision {
	cn := utils.CanonicalDNSName(name)
	if cn == "" {
		return domain.EmptyDecision()
	}
	if d, ok := r.checkCache(cn); ok {
		return d
	}
	if !r.checkBloom(cn) {
		return domain.EmptyDecision()
	}
	dec := r.checkStore(cn)
	r.updateCache(cn, dec)
	return dec
}

// UpdateAll performs an atomic snapshot update across store, bloom, and cache.
// Duplicate rules are skipped; once maxEntries rules are accepted the rest
// are dropped with a warning.
func (r *repository) UpdateAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error {
	accepted, dropped := r.limit(rules)

	if err := r.store.RebuildAll(accepted, version, updatedUnix); err != nil {
		return err
	}

	var n uint64
	for _, ru := range accepted {
		if ru.Kind == domain.BlockRuleExact || ru.Kind == domain.BlockRuleSuffix {
			n++
		}
	}
	bf := r.factory.New(n, r.fpRate)
	for _, ru := range accepted {
		switch ru.Kind {
		case domain.BlockRuleExact:
			bf.Add([]byte(ru.Name))
		case domain.BlockRuleSuffix:
			bf.Add([]byte(utils.ReverseName(ru.Name)))
		}
	}

	r.mu.Lock()
	r.bloom = bf
	r.cache.Purge()
	r.rules = len(accepted)
	r.dropped = dropped
	r.mu.Unlock()

	r.logger.Info(map[string]any{
		"rules":   len(accepted),
		"dropped": dropped,
		"version": version,
	}, "Blocklist updated")
	return nil
}

func (r *repository) limit(rules []domain.BlockRule) ([]domain.BlockRule, int) {
	seen := make(map[string]struct{}, len(rules))
	out := make([]domain.BlockRule, 0, min(len(rules), r.maxEntries))
	dropped := 0
	for _, ru := range rules {
		if _, dup := seen[ru.Key()]; dup {
			dropped++
			continue
		}
		if len(out) == r.maxEntries {
			dropped++
			continue
		}
		seen[ru.Key()] = struct{}{}
		out = append(out, ru)
	}
	if len(out) == r.maxEntries && dropped > 0 {
		r.logger.Warn(map[string]any{
			"limit":   r.maxEntries,
			"offered": len(rules),
		}, "Blocklist entry limit reached, extra rules ignored")
	}
	return out, dropped
}

// checkBloom returns true if we should consult the store (maybe-positive),
// or false if we can early-allow (definitely negative). If no bloom is loaded,
// returns true to allow authoritative checking.
func (r *repository) checkBloom(cn string) bool {
	r.mu.RLock()
	bf := r.bloom
	r.mu.RUnlock()
	if bf == nil {
		return true
	}
	if bf.MightContain([]byte(cn)) {
		return true
	}
	for _, anchor := range utils.SuffixAnchors(cn) {
		if bf.MightContain([]byte(utils.ReverseName(anchor))) {
			return true
		}
	}
	return false
}

func (r *repository) checkCache(cn string) (domain.BlockDecision, bool) {
	r.mu.RLock()
	d, ok := r.cache.Get(cn)
	r.mu.RUnlock()
	return d, ok
}

// checkStore consults the authoritative store and materializes a decision.
// On any error or miss, returns Allow (EmptyDecision).
func (r *repository) checkStore(cn string) domain.BlockDecision {
	rule, ok, err := r.store.GetFirstMatch(cn)
	if err != nil {
		r.logger.Warn(map[string]any{"name": cn, "error": err.Error()}, "Blocklist store lookup failed")
		return domain.EmptyDecision()
	}
	if ok {
		return domain.BlockDecision{Blocked: true, MatchedRule: rule.Name, Source: rule.Source, Kind: rule.Kind}
	}
	return domain.EmptyDecision()
}

func (r *repository) updateCache(cn string, dec domain.BlockDecision) {
	r.mu.Lock()
	r.cache.Put(cn, dec)
	r.mu.Unlock()
}

func (r *repository) Stats() RepoStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RepoStats{
		Rules:   r.rules,
		Dropped: r.dropped,
		Cache:   r.cache.Stats(),
		Store:   r.store.Stats(),
	}
}

func (r *repository) Close() error {
	return r.store.Close()
}
