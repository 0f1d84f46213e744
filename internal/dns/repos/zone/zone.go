// Package zone loads static zone files (YAML, JSON or TOML) whose A, AAAA and
// CNAME entries are seeded into the relay cache at startup. Zone files never
// make the relay authoritative; seeded records age out like learned ones.
//
//	zone_root: example.test
//	"@":
//	  A: 10.0.0.1
//	www:
//	  CNAME: "@"
//	api:
//	  AAAA: [fd00::1, fd00::2]
package zone

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/common/utils"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

var ErrMissingRoot = errors.New("zone file missing 'zone_root'")

// LoadZoneDirectory walks dir and returns the seeds from every supported
// zone file, ordered by name and type. Files with other extensions are
// ignored. Record types the cache cannot hold are skipped with a warning;
// a malformed value of a supported type fails the whole load.
func LoadZoneDirectory(dir string, defaultTTL time.Duration, logger log.Logger) ([]domain.Seed, error) {
	var seeds []domain.Seed
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		fileSeeds, err := loadZoneFile(path, defaultTTL, logger)
		if err != nil {
			return fmt.Errorf("error parsing zone file %s: %w", path, err)
		}
		seeds = append(seeds, fileSeeds...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(seeds, func(i, j int) bool {
		if seeds[i].Name != seeds[j].Name {
			return seeds[i].Name < seeds[j].Name
		}
		return seeds[i].Type < seeds[j].Type
	})
	return seeds, nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	case ".json":
		return json.Parser()
	case ".toml":
		return toml.Parser()
	default:
		return nil
	}
}

func loadZoneFile(path string, ttl time.Duration, logger log.Logger) ([]domain.Seed, error) {
	parser := parserFor(path)
	if parser == nil {
		return nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load zone file %s: %w", path, err)
	}
	root := utils.CanonicalDNSName(k.String("zone_root"))
	if root == "" {
		return nil, ErrMissingRoot
	}

	var seeds []domain.Seed
	for label, raw := range k.Raw() {
		if label == "zone_root" {
			continue
		}
		entries, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		owner := expandName(label, root)
		for typ, val := range entries {
			rrtype := domain.RRTypeFromString(strings.ToUpper(typ))
			if !rrtype.IsCacheable() {
				logger.Warn(map[string]any{"file": path, "name": owner, "type": typ}, "Zone record type cannot be seeded, skipping")
				continue
			}
			for _, s := range toStringValues(val) {
				value, err := parseValue(rrtype, s, root)
				if err != nil {
					return nil, fmt.Errorf("invalid %s record for %s: %w", rrtype, owner, err)
				}
				seeds = append(seeds, domain.Seed{Name: owner, Type: rrtype, Value: value, TTL: ttl, Source: path})
			}
		}
	}
	return seeds, nil
}

func parseValue(rrtype domain.RRType, s, root string) (domain.RecordValue, error) {
	switch rrtype {
	case domain.RRTypeA, domain.RRTypeAAAA:
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return domain.RecordValue{}, err
		}
		addr = addr.Unmap()
		if (rrtype == domain.RRTypeA) != addr.Is4() {
			return domain.RecordValue{}, fmt.Errorf("address %s does not match record type", s)
		}
		return domain.AddressValue(addr), nil
	default:
		return domain.CNAMEValue(expandName(s, root)), nil
	}
}

// expandName returns the canonical owner for a label: '@' is the root, a
// name ending in '.' is absolute and anything else is relative to the root.
func expandName(label, root string) string {
	switch {
	case label == "@":
		return root
	case strings.HasSuffix(label, "."):
		return utils.CanonicalDNSName(label)
	default:
		return utils.CanonicalDNSName(label + "." + root)
	}
}

// toStringValues accepts a string or a list of strings and drops anything
// empty or of another type.
func toStringValues(val any) []string {
	var in []any
	switch v := val.(type) {
	case string:
		in = []any{v}
	case []any:
		in = v
	default:
		return nil
	}
	out := make([]string, 0, len(in))
	for _, elem := range in {
		s, ok := elem.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
