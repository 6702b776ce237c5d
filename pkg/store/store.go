// Package store maps forge's records onto a ports.KVStore.
//
// It knows the key layout and the JSON encoding of components, branches and
// versions, and exposes typed reads plus the two atomic writes the engines
// build on: appending a record that must not exist yet and swapping a branch
// pointer from a previously read snapshot.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/ports"
)

// maxSwapAttempts bounds read-modify-write loops on contended records.
const maxSwapAttempts = 64

// Store is the typed version store.
type Store struct {
	kv ports.KVStore
}

// New wraps kv.
func New(kv ports.KVStore) *Store {
	return &Store{kv: kv}
}

// KV exposes the underlying port for collaborators that keep their own
// records next to the version store, such as the audit trail.
func (s *Store) KV() ports.KVStore { return s.kv }

// Close closes the underlying store.
func (s *Store) Close() error { return s.kv.Close() }

// BranchSnapshot is a branch together with the exact bytes it was read from.
// Swaps succeed only if the stored bytes are still the same.
type BranchSnapshot struct {
	domain.Branch
	raw []byte
}

// ComponentSnapshot is the component counterpart of BranchSnapshot.
type ComponentSnapshot struct {
	domain.Component
	raw []byte
}

func (s *Store) get(ctx context.Context, key string, notFound error, out any) ([]byte, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return raw, nil
}

func (s *Store) insert(ctx context.Context, key string, v any) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	ok, err := s.kv.InsertIfAbsent(ctx, key, data)
	if err != nil {
		return false, domain.Unavailable(err)
	}
	return ok, nil
}

func (s *Store) swap(ctx context.Context, key string, prev []byte, next any) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	ok, err := s.kv.CompareAndSwap(ctx, key, prev, data)
	if err != nil {
		return false, domain.Unavailable(err)
	}
	return ok, nil
}

func (s *Store) scan(ctx context.Context, prefix string, opts ports.ScanOptions) ([]ports.KV, error) {
	kvs, err := s.kv.Scan(ctx, prefix, opts)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	return kvs, nil
}

// ---- components ----

// CreateComponent registers c. The slug record is the arbiter: a second
// registration of the same slug fails with ErrComponentExists. The id index
// goes in first, so a stored component is always reachable by id; an index
// left behind by a failed registration is ignored by ComponentByID.
func (s *Store) CreateComponent(ctx context.Context, c domain.Component) error {
	if _, err := s.kv.InsertIfAbsent(ctx, componentIDKey(c.ID), []byte(c.Slug)); err != nil {
		return domain.Unavailable(err)
	}
	ok, err := s.insert(ctx, componentSlugKey(c.Slug), c)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrComponentExists, c.Slug)
	}
	return nil
}

// LoadComponent reads a component by slug, archived or not.
func (s *Store) LoadComponent(ctx context.Context, slug string) (ComponentSnapshot, error) {
	var snap ComponentSnapshot
	raw, err := s.get(ctx, componentSlugKey(slug), fmt.Errorf("%w: %q", domain.ErrComponentNotFound, slug), &snap.Component)
	if err != nil {
		return ComponentSnapshot{}, err
	}
	snap.raw = raw
	return snap, nil
}

// ComponentBySlug reads a component by slug, archived or not.
func (s *Store) ComponentBySlug(ctx context.Context, slug string) (domain.Component, error) {
	snap, err := s.LoadComponent(ctx, slug)
	return snap.Component, err
}

// ComponentByID resolves the id index and reads the component.
func (s *Store) ComponentByID(ctx context.Context, id string) (domain.Component, error) {
	slug, err := s.kv.Get(ctx, componentIDKey(id))
	if errors.Is(err, ports.ErrKeyNotFound) {
		return domain.Component{}, fmt.Errorf("%w: id %s", domain.ErrComponentNotFound, id)
	}
	if err != nil {
		return domain.Component{}, domain.Unavailable(err)
	}
	c, err := s.ComponentBySlug(ctx, string(slug))
	if errors.Is(err, domain.ErrComponentNotFound) || (err == nil && c.ID != id) {
		return domain.Component{}, fmt.Errorf("%w: id %s", domain.ErrComponentNotFound, id)
	}
	return c, err
}

// ListComponents returns every component ordered by slug.
func (s *Store) ListComponents(ctx context.Context) ([]domain.Component, error) {
	kvs, err := s.scan(ctx, componentSlugPrefix, ports.ScanOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Component, 0, len(kvs))
	for _, kv := range kvs {
		var c domain.Component
		if err := json.Unmarshal(kv.Value, &c); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", kv.Key, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// UpdateComponent applies fn to the current record and swaps it in,
// re-reading and re-applying fn when a concurrent writer got there first.
func (s *Store) UpdateComponent(ctx context.Context, slug string, fn func(*domain.Component) error) (domain.Component, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		snap, err := s.LoadComponent(ctx, slug)
		if err != nil {
			return domain.Component{}, err
		}
		next := snap.Component
		next.Tags = append([]string(nil), snap.Tags...)
		if err := fn(&next); err != nil {
			return domain.Component{}, err
		}
		ok, err := s.swap(ctx, componentSlugKey(slug), snap.raw, next)
		if err != nil {
			return domain.Component{}, err
		}
		if ok {
			return next, nil
		}
	}
	return domain.Component{}, fmt.Errorf("component %q: too much contention: %w", slug, domain.ErrConflict)
}

// ---- branches ----

// CreateBranch inserts b; a taken name fails with ErrBranchExists.
func (s *Store) CreateBranch(ctx context.Context, b domain.Branch) error {
	ok, err := s.insert(ctx, branchKey(b.ComponentID, b.Name), b)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrBranchExists, b.Name)
	}
	return nil
}

// LoadBranch reads a branch together with its raw bytes.
func (s *Store) LoadBranch(ctx context.Context, componentID, name string) (BranchSnapshot, error) {
	var snap BranchSnapshot
	raw, err := s.get(ctx, branchKey(componentID, name), fmt.Errorf("%w: %q", domain.ErrBranchNotFound, name), &snap.Branch)
	if err != nil {
		return BranchSnapshot{}, err
	}
	snap.raw = raw
	return snap, nil
}

// SwapBranch replaces prev with next if nobody changed it since it was read.
func (s *Store) SwapBranch(ctx context.Context, prev BranchSnapshot, next domain.Branch) (bool, error) {
	return s.swap(ctx, branchKey(prev.ComponentID, prev.Name), prev.raw, next)
}

// UpdateBranch applies fn to the current branch and swaps it in, retrying on
// contention. fn sees the fresh record on every attempt and may refuse.
func (s *Store) UpdateBranch(ctx context.Context, componentID, name string, fn func(*domain.Branch) error) (domain.Branch, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		snap, err := s.LoadBranch(ctx, componentID, name)
		if err != nil {
			return domain.Branch{}, err
		}
		next := snap.Branch
		if err := fn(&next); err != nil {
			return domain.Branch{}, err
		}
		ok, err := s.SwapBranch(ctx, snap, next)
		if err != nil {
			return domain.Branch{}, err
		}
		if ok {
			return next, nil
		}
	}
	return domain.Branch{}, fmt.Errorf("branch %q: too much contention: %w", name, domain.ErrConflict)
}

// ListBranches returns the component's branches ordered by escaped name.
func (s *Store) ListBranches(ctx context.Context, componentID string) ([]domain.Branch, error) {
	kvs, err := s.scan(ctx, branchesKey(componentID), ports.ScanOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Branch, 0, len(kvs))
	for _, kv := range kvs {
		var b domain.Branch
		if err := json.Unmarshal(kv.Value, &b); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", kv.Key, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// ---- versions ----

// AppendVersion inserts v at its (component, branch, sequence) slot.
// It reports false when the slot is already taken; the caller lost the race.
// The id index is written first so that a stored version is always
// reachable by id.
func (s *Store) AppendVersion(ctx context.Context, v domain.Version) (bool, error) {
	if err := s.IndexVersion(ctx, v); err != nil {
		return false, err
	}
	return s.insert(ctx, versionKey(v.ComponentID, v.Branch, v.Sequence), v)
}

// IndexVersion records the id lookup for v. It is idempotent.
func (s *Store) IndexVersion(ctx context.Context, v domain.Version) error {
	key := versionKey(v.ComponentID, v.Branch, v.Sequence)
	if _, err := s.kv.InsertIfAbsent(ctx, versionIDKey(v.ID), []byte(key)); err != nil {
		return domain.Unavailable(err)
	}
	return nil
}

// Version reads the version at seq on the branch.
func (s *Store) Version(ctx context.Context, componentID, branch string, seq int64) (domain.Version, error) {
	var v domain.Version
	notFound := fmt.Errorf("%w: %s@%d", domain.ErrVersionNotFound, branch, seq)
	if _, err := s.get(ctx, versionKey(componentID, branch, seq), notFound, &v); err != nil {
		return domain.Version{}, err
	}
	return v, nil
}

// VersionByID resolves the id index and reads the version.
func (s *Store) VersionByID(ctx context.Context, id string) (domain.Version, error) {
	key, err := s.kv.Get(ctx, versionIDKey(id))
	if errors.Is(err, ports.ErrKeyNotFound) {
		return domain.Version{}, fmt.Errorf("%w: id %s", domain.ErrVersionNotFound, id)
	}
	if err != nil {
		return domain.Version{}, domain.Unavailable(err)
	}
	// An index whose slot went to a concurrent commit points at someone else.
	notFound := fmt.Errorf("%w: id %s", domain.ErrVersionNotFound, id)
	var v domain.Version
	if _, err := s.get(ctx, string(key), notFound, &v); err != nil {
		return domain.Version{}, err
	}
	if v.ID != id {
		return domain.Version{}, notFound
	}
	return v, nil
}

// Versions lists versions on a branch, highest sequence first. When
// beforeSeq is positive only sequences below it are returned. A zero limit
// returns everything.
func (s *Store) Versions(ctx context.Context, componentID, branch string, beforeSeq int64, limit int) ([]domain.Version, error) {
	opts := ports.ScanOptions{Reverse: true, Limit: limit}
	if beforeSeq > 0 {
		opts.Before = versionKey(componentID, branch, beforeSeq)
	}
	kvs, err := s.scan(ctx, versionsKey(componentID, branch), opts)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Version, 0, len(kvs))
	for _, kv := range kvs {
		var v domain.Version
		if err := json.Unmarshal(kv.Value, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", kv.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}
