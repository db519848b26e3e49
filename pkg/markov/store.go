package markov

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
)

// DefaultDatabase is the name of the database every Store is created with.
const DefaultDatabase = "default"

var (
	// ErrConfiguration reports an unreadable source or a disallowed file.
	ErrConfiguration = errors.New("configuration error")
	// ErrEmptyDatabase reports generation from a database with no chains.
	ErrEmptyDatabase = errors.New("database is empty")
	// ErrDatabaseNotFound reports an operation on a database name that does not exist.
	ErrDatabaseNotFound = errors.New("database not found")
	// ErrGenerationExhausted reports that every generation attempt failed.
	ErrGenerationExhausted = errors.New("generation attempts exhausted")
	// ErrInvalidArgument reports a generation option outside its valid range.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidSnapshot reports a serialized store that cannot be imported.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// Key is an ordered pair of consecutive tokens.
type Key [2]string

// Index maps a Key to every token observed after it, in order of observation.
// Duplicates are kept so that frequent successors are chosen more often.
type Index map[Key][]string

// clone returns a deep copy that shares no backing arrays with idx.
func (idx Index) clone() Index {
	out := make(Index, len(idx))
	for k, list := range idx {
		out[k] = append([]string(nil), list...)
	}
	return out
}

// Store is the main entry point for interacting with the Markov chain library.
// It holds every named database, a tokenizer, the random source used for
// generation, and a logger.
// All methods are concurrent-safe: mutations are exclusive, generation and
// reads share access.
type Store struct {
	mu        sync.RWMutex
	data      map[string]Index
	tokenizer Tokenizer
	rng       *rand.Rand
	logger    *slog.Logger
}

// NewStore creates and returns a new Store containing an empty "default"
// database. It takes a Tokenizer implementation used for training.
func NewStore(tokenizer Tokenizer) *Store {
	return &Store{
		data:      map[string]Index{DefaultDatabase: {}},
		tokenizer: tokenizer,
		rng:       rand.New(&lockedSource{src: rand.NewPCG(rand.Uint64(), rand.Uint64())}),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
// Providing a `log/slog.Logger` will enable logging for training, generation,
// and other operations.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetRandSource replaces the source of randomness used by Generate. Passing a
// seeded source makes generation reproducible.
func (s *Store) SetRandSource(src rand.Source) {
	if src == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(&lockedSource{src: src})
}

// lockedSource serializes access to a rand.Source, which is not safe for
// concurrent use on its own.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (l *lockedSource) Uint64() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Uint64()
}

// Reset drops every database and leaves the Store holding only an empty
// "default" database.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = map[string]Index{DefaultDatabase: {}}
	s.logger.Info("Store reset")
}

// Clear removes the named database. It returns ErrDatabaseNotFound if no
// database by that name exists.
func (s *Store) Clear(database string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[database]; !ok {
		return fmt.Errorf("could not clear %q: %w", database, ErrDatabaseNotFound)
	}
	delete(s.data, database)
	s.logger.Info("Database cleared", slog.String("database", database))
	return nil
}

// Databases returns the names of all databases in sorted order.
func (s *Store) Databases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasDatabase reports whether a database with the given name exists.
func (s *Store) HasDatabase(database string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[database]
	return ok
}

// Index returns a deep copy of the named database, and whether it exists.
func (s *Store) Index(database string) (Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.data[database]
	if !ok {
		return nil, false
	}
	return idx.clone(), true
}

// database returns the named index, creating it when missing. The caller must
// hold the write lock.
func (s *Store) database(name string) Index {
	idx, ok := s.data[name]
	if !ok {
		s.logger.Info("Creating new database", slog.String("database", name))
		idx = Index{}
		s.data[name] = idx
	}
	return idx
}

// truncate empties the named index ahead of an overwriting train. The caller
// must hold the write lock.
func (s *Store) truncate(name string) error {
	if _, ok := s.data[name]; !ok && name != DefaultDatabase {
		return fmt.Errorf("could not overwrite %q: %w", name, ErrDatabaseNotFound)
	}
	s.data[name] = Index{}
	return nil
}
