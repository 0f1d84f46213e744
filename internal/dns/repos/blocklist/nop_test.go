package blocklist

import (
	"testing"
	"time"

	"github.com/haukened/rr-relay/internal/dns/domain"
)

func TestNopRepository(t *testing.T) {
	var r Repository = NopRepository{}

	tests := []string{"example.com.", "", "ads.blocked.test"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			if r.Decide(name).IsBlocked() {
				t.Errorf("Decide(%q) blocked, want allow", name)
			}
		})
	}

	rule := domain.BlockRule{Name: "ads.blocked.test", Kind: domain.BlockRuleExact, Source: "s", AddedAt: time.Now()}
	if err := r.UpdateAll([]domain.BlockRule{rule}, 1, 1); err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	if r.Decide("ads.blocked.test").IsBlocked() {
		t.Fatalf("nop repository must ignore updates")
	}
	if r.Stats() != (RepoStats{}) {
		t.Fatalf("expected zero stats, got %+v", r.Stats())
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
