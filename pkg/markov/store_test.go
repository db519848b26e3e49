package markov

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestNewStore(t *testing.T) {
	s := NewStore(NewDefaultTokenizer())

	want := Snapshot{DefaultDatabase: {}}
	if got := s.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected new store to be %v, got %v", want, got)
	}
}

func TestReset(t *testing.T) {
	ctx, s := setupTestStoreWithTraining(t)
	_ = s.TrainString(ctx, "other", "more words here", false)

	s.Reset()

	want := Snapshot{DefaultDatabase: {}}
	if got := s.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected reset store to be %v, got %v", want, got)
	}
}

func TestClear(t *testing.T) {
	ctx, s := setupTestStoreWithTraining(t)
	_ = s.TrainString(ctx, "x", "more words here", false)

	if err := s.Clear("x"); err != nil {
		t.Fatalf("Clear(x) failed: %v", err)
	}
	if _, ok := s.Index("x"); ok {
		t.Error("expected database x to be gone")
	}
	if s.HasDatabase("x") || !s.HasDatabase(DefaultDatabase) {
		t.Errorf("HasDatabase disagrees with the store contents: %v", s.Databases())
	}
	if idx, _ := s.Index(DefaultDatabase); len(idx) == 0 {
		t.Error("clearing x should not touch the default database")
	}

	if err := s.Clear("missing"); !errors.Is(err, ErrDatabaseNotFound) {
		t.Errorf("expected ErrDatabaseNotFound, got %v", err)
	}
}

func TestIndexIsACopy(t *testing.T) {
	_, s := setupTestStoreWithTraining(t)

	idx, _ := s.Index(DefaultDatabase)
	idx[Key{"A", "dog"}][0] = "changed"
	idx[Key{"new", "key"}] = []string{"value"}

	fresh, _ := s.Index(DefaultDatabase)
	if fresh[Key{"A", "dog"}][0] != "runs" {
		t.Error("mutating a returned index changed the store")
	}
	if _, ok := fresh[Key{"new", "key"}]; ok {
		t.Error("adding to a returned index changed the store")
	}
}

func TestStats(t *testing.T) {
	ctx, s := setupTestStoreWithTraining(t)
	_ = s.TrainString(ctx, "other", "one two three", false)

	stats := s.Stats()
	if want := []string{"default", "other"}; !reflect.DeepEqual(stats.Databases, want) {
		t.Errorf("expected databases %v, got %v", want, stats.Databases)
	}

	// "A dog runs fast. A dog barks loud." yields 5 keys and 6 transitions.
	want := DatabaseStats{Keys: 5, Transitions: 6, UniqueTokens: 6}
	if got := stats.Stats[DefaultDatabase]; got != want {
		t.Errorf("expected default stats %+v, got %+v", want, got)
	}
	if stats.TotalKeys != 6 || stats.TotalTransitions != 7 {
		t.Errorf("expected totals 6/7, got %d/%d", stats.TotalKeys, stats.TotalTransitions)
	}
}

func TestClearThenGenerate(t *testing.T) {
	ctx, s := setupTestStoreWithTraining(t)
	s.Reset()

	if _, err := s.Generate(ctx, DefaultDatabase); !errors.Is(err, ErrEmptyDatabase) {
		t.Errorf("expected ErrEmptyDatabase after reset, got %v", err)
	}
	if err := s.Clear(DefaultDatabase); err != nil {
		t.Fatalf("Clear(default) failed: %v", err)
	}
	if _, err := s.Generate(context.Background(), DefaultDatabase); !errors.Is(err, ErrDatabaseNotFound) {
		t.Errorf("expected ErrDatabaseNotFound after clearing default, got %v", err)
	}
}
