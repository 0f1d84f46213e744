// Package hosts reads /etc/hosts-style files used to seed the relay before it
// starts serving. Lines are "address name [aliases...]" with '#' comments.
// IPv4 and IPv6 entries may share a file.
package hosts

import (
	"bufio"
	"io"
	"net/netip"
	"strings"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/common/utils"
	"github.com/haukened/rr-relay/internal/dns/domain"
	"github.com/haukened/rr-relay/internal/dns/repos/blocklist/parsers"
)

// Stats counts what a parse produced. IPv4, IPv6 and Blocked count names,
// ParsedLines and ErrorLines count lines.
type Stats struct {
	IPv4        int
	IPv6        int
	Blocked     int
	ParsedLines int
	ErrorLines  int
	SkippedName int
}

// Add accumulates another file's counts.
func (s *Stats) Add(o Stats) {
	s.IPv4 += o.IPv4
	s.IPv6 += o.IPv6
	s.Blocked += o.Blocked
	s.ParsedLines += o.ParsedLines
	s.ErrorLines += o.ErrorLines
	s.SkippedName += o.SkippedName
}

// Fields renders the stats as log fields.
func (s Stats) Fields() map[string]any {
	return map[string]any{
		"ipv4":          s.IPv4,
		"ipv6":          s.IPv6,
		"blocked":       s.Blocked,
		"parsed_lines":  s.ParsedLines,
		"error_lines":   s.ErrorLines,
		"skipped_names": s.SkippedName,
	}
}

// Parse reads every entry from r. Malformed lines (no name, bad address) are
// counted and skipped; only a read error fails the parse. Names are
// canonicalized and must be valid hostnames. Entries whose address is 0.0.0.0
// or :: are returned with IsBlocked set so the caller can route them to the
// blacklist.
func Parse(r io.Reader, source string, logger log.Logger) ([]domain.HostEntry, Stats, error) {
	var (
		st  Stats
		out []domain.HostEntry
	)
	scanner := bufio.NewScanner(r)
	logger.Debug(map[string]any{"source": source}, "parse_hosts_start")

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line, kind := parsers.CleanLine(scanner.Text())
		if kind != parsers.LineContent {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			st.ErrorLines++
			logger.Debug(map[string]any{"source": source, "line": lineNum}, "hosts_no_hostnames")
			continue
		}
		addr, err := netip.ParseAddr(fields[0])
		if err != nil || addr.Zone() != "" {
			st.ErrorLines++
			logger.Debug(map[string]any{"source": source, "line": lineNum, "addr": fields[0]}, "hosts_invalid_address")
			continue
		}
		addr = addr.Unmap()

		entry := domain.HostEntry{Addr: addr, Source: source}
		for _, raw := range fields[1:] {
			name := utils.CanonicalDNSName(raw)
			if !parsers.IsValidHostname(name) {
				st.SkippedName++
				logger.Debug(map[string]any{"source": source, "line": lineNum, "raw": raw}, "hosts_skip_invalid_name")
				continue
			}
			entry.Names = append(entry.Names, name)
		}
		if len(entry.Names) == 0 {
			st.ErrorLines++
			continue
		}

		switch {
		case entry.IsBlocked():
			st.Blocked += len(entry.Names)
		case addr.Is4():
			st.IPv4 += len(entry.Names)
		default:
			st.IPv6 += len(entry.Names)
		}
		st.ParsedLines++
		out = append(out, entry)
		logger.Debug(map[string]any{"source": source, "line": lineNum, "addr": addr.String(), "names": entry.Names}, "hosts_emit_entry")
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_hosts_scan_error")
		return nil, st, err
	}
	logger.Debug(map[string]any{"source": source, "entries": len(out)}, "parse_hosts_done")
	return out, st, nil
}
