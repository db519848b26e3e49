package markov

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestLoadOverwrite(t *testing.T) {
	ctx, s := setupTestStoreWithTraining(t)
	_ = s.TrainString(ctx, "other", "more words here", false)
	snap := s.Snapshot()

	fresh := setupTestStore(t)
	_ = fresh.TrainString(ctx, "stale", "should be gone", false)
	fresh.Load(snap, true)

	if got := fresh.Snapshot(); !reflect.DeepEqual(got, snap) {
		t.Errorf("expected loaded store to equal snapshot\nwant %v\ngot  %v", snap, got)
	}

	// The store must not share storage with the snapshot it was loaded from.
	snap[DefaultDatabase][Key{"A", "dog"}][0] = "changed"
	if idx, _ := fresh.Index(DefaultDatabase); idx[Key{"A", "dog"}][0] != "runs" {
		t.Error("mutating the snapshot changed the loaded store")
	}
}

func TestLoadOverwriteKeepsDefault(t *testing.T) {
	s := setupTestStore(t)
	s.Load(Snapshot{"only": {{"a", "b"}: {"c."}}}, true)

	if got, want := s.Databases(), []string{"default", "only"}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected databases %v, got %v", want, got)
	}
}

func TestLoadMergeDoubles(t *testing.T) {
	_, s := setupTestStoreWithTraining(t)
	snap := s.Snapshot()

	target := setupTestStore(t)
	target.Load(snap, false)
	target.Load(snap, false)

	merged := target.Snapshot()
	for name, idx := range snap {
		if len(merged[name]) != len(idx) {
			t.Errorf("database %q: expected %d keys, got %d", name, len(idx), len(merged[name]))
		}
		for k, list := range idx {
			want := append(append([]string(nil), list...), list...)
			if got := merged[name][k]; !reflect.DeepEqual(got, want) {
				t.Errorf("database %q key %v: expected %q, got %q", name, k, want, got)
			}
		}
	}
}

func TestLoadMergeExtendsExisting(t *testing.T) {
	s := setupTestStore(t)
	s.Load(Snapshot{DefaultDatabase: {{"a", "b"}: {"c"}}}, true)
	s.Load(Snapshot{
		DefaultDatabase: {{"a", "b"}: {"d", "c"}, {"b", "c"}: {"e."}},
		"new":           {{"x", "y"}: {"z."}},
	}, false)

	want := Snapshot{
		DefaultDatabase: {{"a", "b"}: {"c", "d", "c"}, {"b", "c"}: {"e."}},
		"new":           {{"x", "y"}: {"z."}},
	}
	if got := s.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLoadMergeDoesNotAlias(t *testing.T) {
	snap := Snapshot{DefaultDatabase: {{"a", "b"}: {"c."}}}
	s := setupTestStore(t)
	s.Load(snap, false)

	_ = s.TrainString(context.Background(), DefaultDatabase, "a b d.", false)
	if got := snap[DefaultDatabase][Key{"a", "b"}]; !reflect.DeepEqual(got, []string{"c."}) {
		t.Errorf("training after a merge changed the source snapshot: %q", got)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx, s := setupTestStoreWithTraining(t)
	_ = s.TrainString(ctx, "empty", "x", false)

	// 1. Export the trained store to an in-memory buffer
	var buf bytes.Buffer
	if err := s.Export(ctx, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	exported := buf.String()

	// 2. Import into a completely new store
	s2 := setupTestStore(t)
	if err := s2.Import(ctx, strings.NewReader(exported), true); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	// 3. Verify the imported data matches key-for-key and list-for-list
	if got, want := s2.Snapshot(), s.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch\nwant %v\ngot  %v", want, got)
	}

	// 4. Export is stable
	var again bytes.Buffer
	if err := s2.Export(ctx, &again); err != nil {
		t.Fatalf("second Export failed: %v", err)
	}
	if again.String() != exported {
		t.Error("exporting an identical store produced different output")
	}
}

func TestImportMergeTwiceDoubles(t *testing.T) {
	ctx, s := setupTestStoreWithTraining(t)
	var buf bytes.Buffer
	if err := s.Export(ctx, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	target := setupTestStore(t)
	for i := 0; i < 2; i++ {
		if err := target.Import(ctx, bytes.NewReader(buf.Bytes()), false); err != nil {
			t.Fatalf("Import #%d failed: %v", i+1, err)
		}
	}

	before := s.Stats().Stats[DefaultDatabase]
	after := target.Stats().Stats[DefaultDatabase]
	if after.Keys != before.Keys {
		t.Errorf("expected key count %d, got %d", before.Keys, after.Keys)
	}
	if after.Transitions != 2*before.Transitions {
		t.Errorf("expected %d transitions, got %d", 2*before.Transitions, after.Transitions)
	}
}

func TestImportInvalid(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{name: "Not JSON", doc: "pickle"},
		{name: "Wrong version", doc: `{"version": 2, "databases": []}`},
		{name: "Missing version", doc: `{"databases": []}`},
		{name: "Empty successors", doc: `{"version": 1, "databases": [{"name": "default", "chains": [{"prefix": ["a", "b"], "successors": []}]}]}`},
		{name: "Empty successor word", doc: `{"version": 1, "databases": [{"name": "default", "chains": [{"prefix": ["a", "b"], "successors": [""]}]}]}`},
		{name: "Empty prefix word", doc: `{"version": 1, "databases": [{"name": "default", "chains": [{"prefix": ["", "b"], "successors": ["c"]}]}]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, s := setupTestStoreWithTraining(t)
			before := s.Snapshot()

			err := s.Import(ctx, strings.NewReader(tc.doc), true)
			if !errors.Is(err, ErrInvalidSnapshot) {
				t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
			}
			if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
				t.Error("a rejected import modified the store")
			}
		})
	}
}
