package zone

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/domain"
)

const testYAML = `
zone_root: example.com
"@":
  A: "10.0.0.1"
www:
  CNAME: "@"
api:
  AAAA: ["fd00::1", "fd00::2"]
mail:
  MX: "10 mx.example.com."
`

const testJSON = `{
	"zone_root": "example.org.",
	"api": {
	  "a": "5.6.7.8",
	  "cname": "ignored-if-a-is-present.example.net."
	}
}
`

const testTOML = `zone_root = "example.net"
[web]
A = "1.2.3.4"
`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func seedIndex(seeds []domain.Seed) map[string][]domain.Seed {
	out := make(map[string][]domain.Seed)
	for _, s := range seeds {
		key := s.Name + "/" + s.Type.String()
		out[key] = append(out[key], s)
	}
	return out
}

func TestLoadZoneDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "zone.yaml", testYAML)
	writeFile(t, dir, "zone.json", testJSON)
	writeFile(t, dir, "zone.toml", testTOML)
	writeFile(t, dir, "README.md", "not a zone")

	seeds, err := LoadZoneDirectory(dir, time.Hour, log.NewNoopLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idx := seedIndex(seeds)

	if got := idx["example.com/A"]; len(got) != 1 || got[0].Value.Addr != netip.MustParseAddr("10.0.0.1") {
		t.Fatalf("apex A seed unexpected: %+v", got)
	}
	if got := idx["www.example.com/CNAME"]; len(got) != 1 || got[0].Value.Target != "example.com" {
		t.Fatalf("www CNAME seed unexpected: %+v", got)
	}
	if got := idx["api.example.com/AAAA"]; len(got) != 2 {
		t.Fatalf("expected two AAAA seeds, got %+v", got)
	}
	if _, ok := idx["mail.example.com/MX"]; ok {
		t.Fatalf("MX must not be seeded")
	}
	if got := idx["api.example.org/A"]; len(got) != 1 || got[0].TTL != time.Hour {
		t.Fatalf("lower-case JSON type not honoured: %+v", got)
	}
	if got := idx["api.example.org/CNAME"]; len(got) != 1 || got[0].Value.Target != "ignored-if-a-is-present.example.net" {
		t.Fatalf("absolute CNAME target unexpected: %+v", got)
	}
	if got := idx["web.example.net/A"]; len(got) != 1 || got[0].Source != filepath.Join(dir, "zone.toml") {
		t.Fatalf("TOML seed unexpected: %+v", got)
	}

	for i := 1; i < len(seeds); i++ {
		if seeds[i-1].Name > seeds[i].Name {
			t.Fatalf("seeds not sorted by name: %q before %q", seeds[i-1].Name, seeds[i].Name)
		}
	}
}

func TestLoadZoneDirectory_Empty(t *testing.T) {
	seeds, err := LoadZoneDirectory(t.TempDir(), time.Hour, log.NewNoopLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seeds) != 0 {
		t.Fatalf("expected no seeds, got %d", len(seeds))
	}
}

func TestLoadZoneDirectory_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"missing root", "z.yaml", "www:\n  A: 1.2.3.4\n"},
		{"bad address", "z.yaml", "zone_root: example.com\nwww:\n  A: not-an-ip\n"},
		{"v6 in A", "z.yaml", "zone_root: example.com\nwww:\n  A: \"fd00::1\"\n"},
		{"v4 in AAAA", "z.json", `{"zone_root": "example.com", "www": {"AAAA": "1.2.3.4"}}`},
		{"broken syntax", "z.toml", "zone_root = \n[["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, tt.file, tt.body)
			if _, err := LoadZoneDirectory(dir, time.Hour, log.NewNoopLogger()); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	_, err := LoadZoneDirectory(filepath.Join(t.TempDir(), "missing"), time.Hour, log.NewNoopLogger())
	if err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestLoadZoneDirectory_MissingRootIsTyped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "z.yml", "www:\n  A: 1.2.3.4\n")
	_, err := LoadZoneDirectory(dir, time.Hour, log.NewNoopLogger())
	if !errors.Is(err, ErrMissingRoot) {
		t.Fatalf("expected ErrMissingRoot, got %v", err)
	}
}

func TestExpandName(t *testing.T) {
	tests := []struct {
		label, root, want string
	}{
		{"@", "example.com", "example.com"},
		{"www", "example.com", "www.example.com"},
		{"WWW", "example.com", "www.example.com"},
		{"other.example.net.", "example.com", "other.example.net"},
	}
	for _, tt := range tests {
		if got := expandName(tt.label, tt.root); got != tt.want {
			t.Errorf("expandName(%q, %q) = %q, want %q", tt.label, tt.root, got, tt.want)
		}
	}
}

func TestToStringValues(t *testing.T) {
	if got := toStringValues(" a "); len(got) != 1 || got[0] != "a" {
		t.Fatalf("string: %v", got)
	}
	if got := toStringValues([]any{"a", 1, "", " b "}); len(got) != 2 || got[1] != "b" {
		t.Fatalf("list: %v", got)
	}
	if got := toStringValues(42); len(got) != 0 {
		t.Fatalf("other: %v", got)
	}
}
