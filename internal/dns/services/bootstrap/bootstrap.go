// Package bootstrap fills the cache and the blacklist from local files before
// the relay starts serving.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/haukened/rr-relay/internal/dns/common/clock"
	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/domain"
	"github.com/haukened/rr-relay/internal/dns/repos/blocklist"
	"github.com/haukened/rr-relay/internal/dns/repos/blocklist/parsers"
	"github.com/haukened/rr-relay/internal/dns/repos/hosts"
	"github.com/haukened/rr-relay/internal/dns/repos/zone"
)

// RecordCache is the part of the record store the loader writes to.
type RecordCache interface {
	Update(name string, rrtype domain.RRType, value domain.RecordValue, ttl time.Duration) error
}

// Options configures a Loader. Every file list may be empty.
type Options struct {
	Cache          RecordCache
	Blocklist      blocklist.Repository
	HostsFiles     []string
	BlocklistFiles []string
	ZoneDir        string
	ZoneTTL        time.Duration
	Clock          clock.Clock
	Logger         log.Logger
}

// Result summarizes a Load.
type Result struct {
	Hosts       hosts.Stats
	Seeded      int
	SeedErrors  int
	ZoneSeeds   int
	Rules       int
	MissingFile int
}

// Loader reads hosts files, plain blocklists and a zone directory.
type Loader struct {
	opts Options
}

func NewLoader(opts Options) *Loader {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.ZoneTTL <= 0 {
		opts.ZoneTTL = domain.StaticTTL
	}
	return &Loader{opts: opts}
}

// Load reads every configured source, seeds the cache and replaces the
// blacklist snapshot. A missing file is logged and skipped. Parse failures
// of individual files are collected and returned together; whatever loaded
// cleanly is still applied.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	var (
		res   Result
		errs  error
		rules []domain.BlockRule
		seeds []domain.Seed
		now   = l.opts.Clock.Now()
	)

	for _, path := range l.opts.HostsFiles {
		if err := ctx.Err(); err != nil {
			return res, multierr.Append(errs, err)
		}
		entries, st, err := l.readHosts(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				res.MissingFile++
				l.opts.Logger.Warn(map[string]any{"file": path}, "Hosts file not found, skipping")
				continue
			}
			errs = multierr.Append(errs, err)
			continue
		}
		res.Hosts.Add(st)
		l.opts.Logger.Info(withFile(st.Fields(), path), "Hosts file loaded")

		for _, e := range entries {
			if !e.IsBlocked() {
				seeds = append(seeds, e.Seeds(domain.StaticTTL)...)
				continue
			}
			for _, name := range e.Names {
				r, err := domain.NewExactBlockRule(name, path, now)
				if err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
					continue
				}
				rules = append(rules, r)
			}
		}
	}

	for _, path := range l.opts.BlocklistFiles {
		if err := ctx.Err(); err != nil {
			return res, multierr.Append(errs, err)
		}
		fileRules, err := l.readPlain(path, now)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				res.MissingFile++
				l.opts.Logger.Warn(map[string]any{"file": path}, "Blocklist file not found, skipping")
				continue
			}
			errs = multierr.Append(errs, err)
			continue
		}
		l.opts.Logger.Info(map[string]any{"file": path, "rules": len(fileRules)}, "Blocklist file loaded")
		rules = append(rules, fileRules...)
	}

	if dir := l.opts.ZoneDir; dir != "" {
		zoneSeeds, err := zone.LoadZoneDirectory(dir, l.opts.ZoneTTL, l.opts.Logger)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			res.MissingFile++
			l.opts.Logger.Warn(map[string]any{"dir": dir}, "Zone directory not found, skipping")
		case err != nil:
			errs = multierr.Append(errs, err)
		default:
			res.ZoneSeeds = len(zoneSeeds)
			seeds = append(seeds, zoneSeeds...)
		}
	}

	for _, s := range seeds {
		if err := l.opts.Cache.Update(s.Name, s.Type, s.Value, s.TTL); err != nil {
			res.SeedErrors++
			l.opts.Logger.Warn(map[string]any{
				"name":   s.Name,
				"type":   s.Type.String(),
				"source": s.Source,
				"error":  err.Error(),
			}, "Seed record rejected")
			continue
		}
		res.Seeded++
	}

	if l.opts.Blocklist != nil {
		if err := l.opts.Blocklist.UpdateAll(rules, uint64(now.Unix()), now.Unix()); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("update blocklist: %w", err))
		} else {
			res.Rules = l.opts.Blocklist.Stats().Rules
		}
	}

	l.opts.Logger.Info(map[string]any{
		"seeded":      res.Seeded,
		"seed_errors": res.SeedErrors,
		"zone_seeds":  res.ZoneSeeds,
		"rules":       res.Rules,
		"missing":     res.MissingFile,
		"errors":      len(multierr.Errors(errs)),
	}, "Bootstrap complete")
	return res, errs
}

func (l *Loader) readHosts(path string) ([]domain.HostEntry, hosts.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, hosts.Stats{}, err
	}
	defer f.Close()
	entries, st, err := hosts.Parse(f, path, l.opts.Logger)
	if err != nil {
		return nil, st, fmt.Errorf("parse hosts file %s: %w", path, err)
	}
	return entries, st, nil
}

func (l *Loader) readPlain(path string, now time.Time) ([]domain.BlockRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rules, err := parsers.ParsePlainList(f, path, l.opts.Logger, now)
	if err != nil {
		return nil, fmt.Errorf("parse blocklist file %s: %w", path, err)
	}
	return rules, nil
}

func withFile(fields map[string]any, path string) map[string]any {
	fields["file"] = path
	return fields
}
