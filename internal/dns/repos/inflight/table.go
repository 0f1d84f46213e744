// Package inflight tracks queries forwarded upstream. Each pending query
// occupies one slot of a fixed table; the slot's index plus one is the
// transaction ID written on the upstream wire, so replies find their client
// without a map lookup.
package inflight

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/haukened/rr-relay/internal/dns/domain"
)

var (
	ErrTableFull  = errors.New("no free in-flight slot")
	ErrInvalidID  = errors.New("transaction id outside slot range")
	ErrUnmatched  = errors.New("no query pending for transaction id")
	ErrBadTimeout = errors.New("slot timeout must be positive")
)

// Slot is one pending upstream query.
type Slot struct {
	Index      int
	ClientID   uint16
	Client     netip.AddrPort
	Question   domain.Question
	SentAt     time.Time
	Generation uint64
}

// WireID is the transaction ID the forwarded query carries upstream.
func (s Slot) WireID() uint16 {
	return uint16(s.Index + 1)
}

// Table is the fixed-size slot table. It is not safe for concurrent use.
type Table struct {
	slots      []Slot
	used       *bitset.BitSet
	timeout    time.Duration
	generation uint64
}

// New returns an empty table of domain.MaxInflight slots whose entries expire
// timeout after allocation.
func New(timeout time.Duration) (*Table, error) {
	return newTable(domain.MaxInflight, timeout)
}

func newTable(size int, timeout time.Duration) (*Table, error) {
	if timeout <= 0 {
		return nil, ErrBadTimeout
	}
	return &Table{
		slots:   make([]Slot, size),
		used:    bitset.New(uint(size)),
		timeout: timeout,
	}, nil
}

// FindFree returns the lowest unused slot index.
func (t *Table) FindFree() (int, bool) {
	idx, ok := t.used.NextClear(0)
	if !ok || idx >= uint(len(t.slots)) {
		return 0, false
	}
	return int(idx), true
}

// Allocate claims a free slot for a query from client.
func (t *Table) Allocate(clientID uint16, client netip.AddrPort, q domain.Question, now time.Time) (Slot, error) {
	idx, ok := t.FindFree()
	if !ok {
		return Slot{}, ErrTableFull
	}
	t.generation++
	s := Slot{
		Index:      idx,
		ClientID:   clientID,
		Client:     client,
		Question:   q,
		SentAt:     now,
		Generation: t.generation,
	}
	t.slots[idx] = s
	t.used.Set(uint(idx))
	return s, nil
}

// Lookup returns the pending slot for an upstream transaction ID.
func (t *Table) Lookup(wireID uint16) (Slot, error) {
	if wireID == 0 || int(wireID) > len(t.slots) {
		return Slot{}, fmt.Errorf("%w: %d", ErrInvalidID, wireID)
	}
	idx := int(wireID) - 1
	if !t.used.Test(uint(idx)) {
		return Slot{}, fmt.Errorf("%w: %d", ErrUnmatched, wireID)
	}
	return t.slots[idx], nil
}

// Release frees a slot. Releasing a free or out-of-range slot is a no-op.
func (t *Table) Release(index int) {
	if index < 0 || index >= len(t.slots) {
		return
	}
	t.used.Clear(uint(index))
	t.slots[index] = Slot{}
}

// Sweep frees every slot allocated at least the timeout before now and
// returns what it freed.
func (t *Table) Sweep(now time.Time) []Slot {
	var expired []Slot
	for i, ok := t.used.NextSet(0); ok && i < uint(len(t.slots)); i, ok = t.used.NextSet(i + 1) {
		s := t.slots[i]
		if now.Sub(s.SentAt) >= t.timeout {
			expired = append(expired, s)
			t.Release(int(i))
		}
	}
	return expired
}

// InUse returns the number of allocated slots.
func (t *Table) InUse() int {
	return int(t.used.Count())
}

// Cap returns the number of slots.
func (t *Table) Cap() int {
	return len(t.slots)
}

// Timeout returns how long a slot may stay allocated.
func (t *Table) Timeout() time.Duration {
	return t.timeout
}
