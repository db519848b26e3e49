package markov

import "sort"

// StoreStats holds aggregated statistics for the entire store, including a
// list of all databases and their individual stats.
type StoreStats struct {
	Databases        []string                 // The database names, sorted
	Stats            map[string]DatabaseStats // A mapping of database names to their stats
	TotalKeys        int                      // The number of keys across all databases
	TotalTransitions int                      // The number of trained transitions across all databases
}

// DatabaseStats holds aggregated statistics for a single database.
type DatabaseStats struct {
	Keys         int `json:"keys"`          // The number of unique word pairs.
	Transitions  int `json:"transitions"`   // The sum of all successor list lengths.
	UniqueTokens int `json:"unique_tokens"` // The number of distinct successor words.
}

// Stats returns a snapshot of statistics for the entire store,
// including global counts and per-database stats.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := StoreStats{
		Databases: make([]string, 0, len(s.data)),
		Stats:     make(map[string]DatabaseStats, len(s.data)),
	}
	for name, idx := range s.data {
		out.Databases = append(out.Databases, name)

		unique := make(map[string]struct{})
		stats := DatabaseStats{Keys: len(idx)}
		for _, list := range idx {
			stats.Transitions += len(list)
			for _, w := range list {
				unique[w] = struct{}{}
			}
		}
		stats.UniqueTokens = len(unique)

		out.Stats[name] = stats
		out.TotalKeys += stats.Keys
		out.TotalTransitions += stats.Transitions
	}
	sort.Strings(out.Databases)
	return out
}
