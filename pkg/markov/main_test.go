package markov

import (
	"context"
	"database/sql"
	"go/build"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates a new file-backed SQLite database with the schema in place.
// It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) *sql.DB {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	return db
}

// setupTestStore creates a Store with a fixed random source so runs are reproducible.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(NewDefaultTokenizer())
	s.SetRandSource(rand.NewPCG(1, 2))
	return s
}

// setupTestStoreWithTraining is a convenience helper that also trains the default database.
func setupTestStoreWithTraining(t *testing.T) (context.Context, *Store) {
	s := setupTestStore(t)
	ctx := context.Background()
	trainingData := "A dog runs fast. A dog barks loud."
	if err := s.TrainString(ctx, DefaultDatabase, trainingData, false); err != nil {
		t.Fatalf("setup: Train() failed: %v", err)
	}
	return ctx, s
}

// assertNoEmptyLists fails the test if any key in the store has no successors.
func assertNoEmptyLists(t *testing.T, s *Store) {
	t.Helper()
	for name, idx := range s.Snapshot() {
		for k, list := range idx {
			if len(list) == 0 {
				t.Errorf("database %q key %v has an empty successor list", name, k)
			}
		}
	}
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
