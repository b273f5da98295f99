// Package definitions holds the metric definitions that declare which
// sample attributes act as identity tags for each metric name.
package definitions

import "sync/atomic"

// Definition declares the identity tag keys for one metric name.
type Definition struct {
	// Tags is the ordered list of sample attribute keys that form
	// the metric's identity.
	Tags []string `json:"tags"`
}

// Snapshot maps source -> family -> metric name -> definition.
type Snapshot map[string]map[string]map[string]Definition

// Store is an atomically installed, immutable definitions snapshot.
// Lookups before the first install return absent; after the first
// successful install the snapshot is never replaced.
type Store struct {
	snap atomic.Pointer[Snapshot]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Loaded reports whether a snapshot has been installed.
func (s *Store) Loaded() bool {
	return s.snap.Load() != nil
}

// Install publishes the snapshot. Only the first call has effect.
func (s *Store) Install(snap Snapshot) {
	s.snap.CompareAndSwap(nil, &snap)
}

// Lookup returns the definition for (source, family, name), if any.
func (s *Store) Lookup(source, family, name string) (Definition, bool) {
	snap := s.snap.Load()
	if snap == nil {
		return Definition{}, false
	}

	def, ok := (*snap)[source][family][name]

	return def, ok
}
