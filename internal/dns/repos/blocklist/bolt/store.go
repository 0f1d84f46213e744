// Package bolt persists blacklist rules in a bbolt database. Exact rules are
// keyed by canonical name, suffix rules by reversed name, and the snapshot
// version lives in a meta bucket.
package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
	bberrors "go.etcd.io/bbolt/errors"

	"github.com/haukened/rr-relay/internal/dns/common/utils"
	"github.com/haukened/rr-relay/internal/dns/domain"
	"github.com/haukened/rr-relay/internal/dns/repos/blocklist"
)

var (
	bucketExact  = []byte("exact")
	bucketSuffix = []byte("suffix")
	bucketMeta   = []byte("meta")

	keyVersion = []byte("version")
	keyUpdated = []byte("updated")
)

// rule values are kind(1) | addedAt unix(8) | len(source)(2) | source
const valueHeaderLen = 11

// seams for tests
var (
	ensureBucketsFn   = ensureBuckets
	deleteBucketsFn   = deleteBuckets
	loadRulesFn       = loadRules
	writeMetaFn       = writeMeta
	decodeRuleValueFn = decodeRuleValue
)

type bucketCreator interface {
	CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error)
}

type bucketDeleter interface {
	DeleteBucket(name []byte) error
}

// boltStore implements blocklist.Store using bbolt.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (blocklist.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blocklist db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error { return ensureBucketsFn(tx) }); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func ensureBuckets(tx bucketCreator) error {
	for _, name := range [][]byte{bucketExact, bucketSuffix, bucketMeta} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
	}
	return nil
}

func deleteBuckets(tx bucketDeleter, names ...[]byte) error {
	for _, name := range names {
		if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bberrors.ErrBucketNotFound) {
			return fmt.Errorf("delete bucket %s: %w", name, err)
		}
	}
	return nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// GetFirstMatch returns the exact rule for name if there is one, otherwise the
// most specific suffix rule covering name, walking parents down to the apex.
func (s *boltStore) GetFirstMatch(name string) (domain.BlockRule, bool, error) {
	var (
		rule  domain.BlockRule
		found bool
	)
	name = utils.CanonicalDNSName(name)
	if name == "" {
		return rule, false, nil
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketExact); b != nil {
			if v := b.Get([]byte(name)); v != nil {
				r, err := decodeRuleValueFn(name, v, domain.BlockRuleExact)
				if err != nil {
					return err
				}
				rule, found = r, true
				return nil
			}
		}
		b := tx.Bucket(bucketSuffix)
		if b == nil {
			return nil
		}
		for _, anchor := range utils.SuffixAnchors(name) {
			v := b.Get([]byte(utils.ReverseName(anchor)))
			if v == nil {
				continue
			}
			r, err := decodeRuleValueFn(anchor, v, domain.BlockRuleSuffix)
			if err != nil {
				return err
			}
			rule, found = r, true
			return nil
		}
		return nil
	})
	if err != nil {
		return domain.BlockRule{}, false, err
	}
	return rule, found, nil
}

// RebuildAll replaces every rule and the metadata in a single transaction.
func (s *boltStore) RebuildAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteBucketsFn(tx, bucketExact, bucketSuffix, bucketMeta); err != nil {
			return err
		}
		if err := ensureBucketsFn(tx); err != nil {
			return err
		}
		if err := loadRulesFn(tx, rules); err != nil {
			return err
		}
		return writeMetaFn(tx, version, updatedUnix)
	})
}

// Purge drops every rule and the metadata.
func (s *boltStore) Purge() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteBucketsFn(tx, bucketExact, bucketSuffix, bucketMeta); err != nil {
			return err
		}
		return ensureBucketsFn(tx)
	})
}

func loadRules(tx *bbolt.Tx, rules []domain.BlockRule) error {
	exact := tx.Bucket(bucketExact)
	suffix := tx.Bucket(bucketSuffix)
	for _, r := range rules {
		var (
			b   *bbolt.Bucket
			key []byte
		)
		switch r.Kind {
		case domain.BlockRuleExact:
			b, key = exact, []byte(r.Name)
		case domain.BlockRuleSuffix:
			b, key = suffix, []byte(utils.ReverseName(r.Name))
		default:
			continue
		}
		if err := b.Put(key, encodeRuleValue(r)); err != nil {
			return fmt.Errorf("store rule %q: %w", r.Name, err)
		}
	}
	return nil
}

func writeMeta(tx *bbolt.Tx, version uint64, updatedUnix int64) error {
	b := tx.Bucket(bucketMeta)
	if b == nil {
		return bberrors.ErrBucketNotFound
	}
	vbuf := make([]byte, 8)
	ubuf := make([]byte, 8)
	binary.BigEndian.PutUint64(vbuf, version)
	binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
	if err := b.Put(keyVersion, vbuf); err != nil {
		return err
	}
	return b.Put(keyUpdated, ubuf)
}

func encodeRuleValue(r domain.BlockRule) []byte {
	src := r.Source
	if len(src) > 0xFFFF {
		src = src[:0xFFFF]
	}
	v := make([]byte, valueHeaderLen+len(src))
	v[0] = byte(r.Kind)
	var added int64
	if !r.AddedAt.IsZero() {
		added = r.AddedAt.Unix()
	}
	binary.BigEndian.PutUint64(v[1:9], uint64(added))
	binary.BigEndian.PutUint16(v[9:11], uint16(len(src)))
	copy(v[valueHeaderLen:], src)
	return v
}

// decodeRuleValue rebuilds a rule from its stored value. Short values and
// unknown kinds fall back to defaultKind with no source or timestamp.
func decodeRuleValue(name string, v []byte, defaultKind domain.BlockRuleKind) (domain.BlockRule, error) {
	r := domain.BlockRule{Name: name, Kind: defaultKind}
	if len(v) < valueHeaderLen {
		return r, nil
	}
	if k := domain.BlockRuleKind(v[0]); k == domain.BlockRuleExact || k == domain.BlockRuleSuffix {
		r.Kind = k
	}
	if added := int64(binary.BigEndian.Uint64(v[1:9])); added != 0 {
		r.AddedAt = time.Unix(added, 0)
	}
	n := int(binary.BigEndian.Uint16(v[9:11]))
	if valueHeaderLen+n <= len(v) {
		r.Source = string(v[valueHeaderLen : valueHeaderLen+n])
	}
	return r, nil
}

func (s *boltStore) Stats() blocklist.StoreStats {
	st := blocklist.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketExact); b != nil {
			st.ExactKeys = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketSuffix); b != nil {
			st.SuffixKeys = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(keyVersion); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(keyUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

var _ blocklist.Store = (*boltStore)(nil)
