// Package store is the named-collection registry: a Store maps collection
// names to live *collection.Collection instances. Grounded on
// pkg/tenant/manager.go's Manager — its namespace-keyed map, RWMutex, and
// Create/Get/Delete/List method shape — repurposed here from tenant quota
// bookkeeping to collection lifecycle.
package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vectorizer-db/vectorizer/pkg/collection"
)

// Store holds every collection in one process, keyed by name. Lifecycle
// operations are idempotent under identical arguments, per spec §4.10.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection.Collection
}

// New creates an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]*collection.Collection)}
}

// CreateCollection creates and registers a new, empty collection under
// name. Calling it again with the same name returns the existing
// collection; cfg is not compared with the existing collection's config.
// A name whose collection is in the Deleted state is an error.
func (s *Store) CreateCollection(name string, cfg collection.Config) (*collection.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.collections[name]; ok {
		if existing.State() == collection.Deleted {
			return nil, fmt.Errorf("store: collection %q was deleted", name)
		}
		return existing, nil
	}

	cfg.Name = name
	c, err := collection.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create collection %q: %w", name, err)
	}
	s.collections[name] = c
	return c, nil
}

// GetCollection returns the live collection registered under name.
func (s *Store) GetCollection(name string) (*collection.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("store: collection %q not found", name)
	}
	return c, nil
}

// DeleteCollection removes name from the registry and closes its
// resources. Deleting an already-absent name is a no-op, matching spec
// §4.10's idempotency requirement.
func (s *Store) DeleteCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	delete(s.collections, name)
	return c.Close()
}

// ListCollections returns every registered collection name, sorted.
func (s *Store) ListCollections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health aggregates per-collection health, per spec §4.10.
func (s *Store) Health() map[string]collection.Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]collection.Health, len(s.collections))
	for name, c := range s.collections {
		out[name] = c.Health()
	}
	return out
}

// Snapshot takes a global snapshot: the union of a per-collection snapshot
// file under dir for every registered collection, each one individually
// quiesced (writes blocked, reads still served) for the duration of its own
// save, per spec §4.10's "global snapshot is the union of per-collection
// snapshots taken with read consistency". A failure snapshotting one
// collection does not stop the rest; all per-collection errors are
// collected and returned together.
func (s *Store) Snapshot(dir string) error {
	s.mu.RLock()
	names := make([]string, 0, len(s.collections))
	collections := make(map[string]*collection.Collection, len(s.collections))
	for name, c := range s.collections {
		names = append(names, name)
		collections[name] = c
	}
	s.mu.RUnlock()
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		path := filepath.Join(dir, name+".snapshot")
		if err := collections[name].Compact(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("store: snapshot: %v", errs)
	}
	return nil
}

// Close closes every registered collection, collecting per-collection
// errors rather than aborting on the first failure.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, c := range s.collections {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	s.collections = make(map[string]*collection.Collection)
	if len(errs) > 0 {
		return fmt.Errorf("store: close: %v", errs)
	}
	return nil
}
