package markov

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
)

// SnapshotVersion is the schema version written by Export and required by Import.
const SnapshotVersion = 1

// Snapshot is a detached copy of every database in a Store, keyed by name.
type Snapshot map[string]Index

// ExportedStore is the serializable representation of a Store,
// used for JSON-based import and export.
type ExportedStore struct {
	Version   int                `json:"version"`
	Databases []ExportedDatabase `json:"databases"`
}

// ExportedDatabase is the serializable representation of a single named
// database, used within an ExportedStore.
type ExportedDatabase struct {
	Name   string          `json:"name"`
	Chains []ExportedChain `json:"chains"`
}

// ExportedChain is the serializable representation of a single key and
// its successor list.
type ExportedChain struct {
	Prefix     [2]string `json:"prefix"`
	Successors []string  `json:"successors"`
}

// Snapshot returns a deep copy of every database in the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(Snapshot, len(s.data))
	for name, idx := range s.data {
		snap[name] = idx.clone()
	}
	return snap
}

// Load applies a snapshot to the store. With overwrite, the store is replaced
// by a copy of snap. Otherwise snap is merged in: keys the store lacks are
// copied, and keys it already has get the loaded successors appended after
// their existing ones. Databases missing from the store are created.
// The store never shares storage with snap afterwards.
func (s *Store) Load(snap Snapshot, overwrite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if overwrite {
		data := make(map[string]Index, len(snap)+1)
		for name, idx := range snap {
			data[name] = idx.clone()
		}
		if _, ok := data[DefaultDatabase]; !ok {
			data[DefaultDatabase] = Index{}
		}
		s.data = data
		s.logger.Info("Store replaced from snapshot", slog.Int("databases", len(snap)))
		return
	}

	var added, extended int
	for name, loaded := range snap {
		idx := s.database(name)
		for k, list := range loaded {
			if existing, ok := idx[k]; ok {
				idx[k] = append(existing, list...)
				extended++
			} else {
				idx[k] = append([]string(nil), list...)
				added++
			}
		}
	}
	s.logger.Info("Snapshot merged into store",
		slog.Int("databases", len(snap)),
		slog.Int("keys_added", added),
		slog.Int("keys_extended", extended),
	)
}

// Export serializes the whole store into a versioned JSON document and writes
// it to the provided io.Writer. Databases and chains are written in sorted
// order so that equal stores produce equal output.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	snap := s.Snapshot()

	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	exported := ExportedStore{
		Version:   SnapshotVersion,
		Databases: make([]ExportedDatabase, 0, len(names)),
	}
	chainCount := 0
	for _, name := range names {
		idx := snap[name]
		keys := make([]Key, 0, len(idx))
		for k := range idx {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i][0] != keys[j][0] {
				return keys[i][0] < keys[j][0]
			}
			return keys[i][1] < keys[j][1]
		})

		chains := make([]ExportedChain, 0, len(keys))
		for _, k := range keys {
			chains = append(chains, ExportedChain{Prefix: k, Successors: idx[k]})
		}
		chainCount += len(chains)
		exported.Databases = append(exported.Databases, ExportedDatabase{Name: name, Chains: chains})
	}

	s.logger.InfoContext(ctx, "Store exported",
		slog.Int("databases_exported", len(names)),
		slog.Int("chains_exported", chainCount),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// Import reads a JSON document written by Export and applies it with Load.
// The document is validated completely before the store is touched.
func (s *Store) Import(ctx context.Context, r io.Reader, overwrite bool) error {
	var imported ExportedStore
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return fmt.Errorf("failed to decode json snapshot: %w: %w", ErrInvalidSnapshot, err)
	}
	snap, err := imported.snapshot()
	if err != nil {
		return err
	}

	s.Load(snap, overwrite)

	s.logger.InfoContext(ctx, "Store imported",
		slog.Bool("overwrite", overwrite),
		slog.Int("databases_imported", len(snap)),
	)
	return nil
}

// snapshot validates the document and converts it to a Snapshot.
func (e *ExportedStore) snapshot() (Snapshot, error) {
	if e.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d: %w", e.Version, ErrInvalidSnapshot)
	}
	snap := make(Snapshot, len(e.Databases))
	for _, db := range e.Databases {
		idx, ok := snap[db.Name]
		if !ok {
			idx = Index{}
			snap[db.Name] = idx
		}
		for _, chain := range db.Chains {
			if chain.Prefix[0] == "" || chain.Prefix[1] == "" {
				return nil, fmt.Errorf("database %q has a chain with an empty prefix word: %w", db.Name, ErrInvalidSnapshot)
			}
			if len(chain.Successors) == 0 {
				return nil, fmt.Errorf("database %q has no successors for %q: %w", db.Name, chain.Prefix, ErrInvalidSnapshot)
			}
			for _, next := range chain.Successors {
				if next == "" {
					return nil, fmt.Errorf("database %q has an empty successor for %q: %w", db.Name, chain.Prefix, ErrInvalidSnapshot)
				}
			}
			idx[Key(chain.Prefix)] = append(idx[Key(chain.Prefix)], chain.Successors...)
		}
	}
	return snap, nil
}
