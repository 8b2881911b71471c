package reftable_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/alnah/go-scimd/internal/reftable"
)

func TestTable_InsertLookup(t *testing.T) {
	t.Parallel()

	tbl := reftable.New()
	if err := tbl.Insert("refA", "Figure 2.1"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	label, ok := tbl.Lookup("refA")
	if !ok || label != "Figure 2.1" {
		t.Errorf("Lookup(refA) = %q, %v; want %q, true", label, ok, "Figure 2.1")
	}
	if _, ok := tbl.Lookup("missing"); ok {
		t.Error("Lookup(missing) should report false")
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
}

// ---------------------------------------------------------------------------
// TestTable_Collisions - Same label is idempotent, different label fails
// ---------------------------------------------------------------------------

func TestTable_Collisions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		second    string
		wantErr   error
		wantLabel string
	}{
		{name: "same label re-registered", second: "2.1", wantLabel: "2.1"},
		{name: "different label rejected", second: "3.1", wantErr: reftable.ErrDuplicateReference, wantLabel: "2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tbl := reftable.New()
			if err := tbl.Insert("eq", "2.1"); err != nil {
				t.Fatal(err)
			}
			err := tbl.Insert("eq", tt.second)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("second Insert() error = %v, want %v", err, tt.wantErr)
			}
			if got, _ := tbl.Lookup("eq"); got != tt.wantLabel {
				t.Errorf("label after collision = %q, want %q (first writer kept)", got, tt.wantLabel)
			}
		})
	}
}

func TestTable_Merge(t *testing.T) {
	t.Parallel()

	tbl := reftable.New()
	err := tbl.Merge([]reftable.Entry{
		{Key: "a", Label: "Figure 1.1"},
		{Key: "b", Label: "1.1"},
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got := tbl.Keys(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Keys() = %v", got)
	}

	err = tbl.Merge([]reftable.Entry{
		{Key: "c", Label: "Figure 2.1"},
		{Key: "a", Label: "Figure 2.2"},
	})
	if !errors.Is(err, reftable.ErrDuplicateReference) {
		t.Fatalf("Merge() conflict error = %v, want ErrDuplicateReference", err)
	}
}

func TestTable_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	tbl := reftable.New()
	_ = tbl.Insert("k", "1")
	snap := tbl.Snapshot()
	snap["k"] = "changed"
	snap["new"] = "x"

	if got, _ := tbl.Lookup("k"); got != "1" {
		t.Errorf("table mutated through snapshot: %q", got)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
}
