package parsers

import (
	"bufio"
	"io"
	"time"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

// ParsePlainList parses a newline-delimited list of domains into BlockRules.
// Default is exact; a leading "*." or "." marks a suffix rule that also
// covers the name itself. '#' starts a comment. Rules are de-duplicated by
// name and kind in first-seen order and attributed to source and now.
func ParsePlainList(r io.Reader, source string, logger log.Logger, now time.Time) ([]domain.BlockRule, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]domain.BlockRule, 0, 256)
	logger.Debug(map[string]any{"source": source}, "parse_plain_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		s, kind := CleanLine(scanner.Text())
		switch kind {
		case LineEmpty:
			logger.Debug(map[string]any{"line": lineNum}, "skip_empty")
			continue
		case LineComment:
			logger.Debug(map[string]any{"line": lineNum}, "skip_comment")
			continue
		}

		ruleKind := ruleKindFromRaw(s)
		name := normalizeDomainName(s)
		if !isValidFQDN(name) {
			logger.Debug(map[string]any{"line": lineNum, "raw": s, "name": name}, "skip_invalid_fqdn")
			continue
		}

		rule, err := domain.NewBlockRule(name, ruleKind, source, now)
		if err != nil {
			logger.Debug(map[string]any{"line": lineNum, "name": name, "kind": ruleKind.String(), "error": err.Error()}, "skip_constructor_error")
			continue
		}
		if _, ok := seen[rule.Key()]; ok {
			logger.Debug(map[string]any{"line": lineNum, "name": name, "kind": ruleKind.String()}, "skip_duplicate")
			continue
		}
		out = append(out, rule)
		seen[rule.Key()] = struct{}{}
		logger.Debug(map[string]any{"line": lineNum, "name": rule.Name, "kind": rule.Kind.String()}, "emit_rule")
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_plain_list_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_plain_list_done")
	return out, nil
}
