package scimd

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func makeDocs(n int) []*Document {
	docs := make([]*Document, n)
	for i := range docs {
		docs[i] = &Document{ID: string(rune('a' + i))}
	}
	return docs
}

// ---------------------------------------------------------------------------
// TestForEach - Ordered results and sequential error semantics
// ---------------------------------------------------------------------------

func TestForEach_Results(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 3} {
		got, idx, err := forEach(context.Background(), workers, makeDocs(6),
			func(_ context.Context, i int, d *Document) (string, error) {
				return d.ID + strings.Repeat("!", i), nil
			})
		if err != nil || idx != -1 {
			t.Fatalf("workers=%d: forEach() = %d, %v", workers, idx, err)
		}
		want := []string{"a", "b!", "c!!", "d!!!", "e!!!!", "f!!!!!"}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("workers=%d: results[%d] = %q, want %q", workers, i, got[i], want[i])
			}
		}
	}
}

func TestForEach_ReportsLowestFailingIndex(t *testing.T) {
	t.Parallel()

	errLate := errors.New("chapter e failed first")
	errEarly := errors.New("chapter b failed second")
	lateFailed := make(chan struct{})

	_, idx, err := forEach(context.Background(), 3, makeDocs(6),
		func(ctx context.Context, i int, _ *Document) (int, error) {
			switch i {
			case 1:
				select {
				case <-lateFailed:
				case <-ctx.Done():
					return 0, ctx.Err()
				}
				return 0, errEarly
			case 4:
				defer close(lateFailed)
				return 0, errLate
			}
			return i, nil
		})
	if idx != 1 || !errors.Is(err, errEarly) {
		t.Errorf("forEach() = %d, %v, want 1, %v", idx, err, errEarly)
	}
}

func TestForEach_Panic(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 2} {
		_, idx, err := forEach(context.Background(), workers, makeDocs(3),
			func(_ context.Context, i int, _ *Document) (int, error) {
				if i == 1 {
					panic("boom")
				}
				return i, nil
			})
		if idx != 1 || err == nil || !strings.Contains(err.Error(), "internal error: boom") {
			t.Errorf("workers=%d: forEach() = %d, %v, want 1 and an internal error", workers, idx, err)
		}
	}
}

func TestForEach_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 4} {
		_, idx, err := forEach(ctx, workers, makeDocs(3),
			func(ctx context.Context, _ int, _ *Document) (int, error) {
				return 0, ctx.Err()
			})
		if idx != -1 || !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: forEach() = %d, %v, want -1, context.Canceled", workers, idx, err)
		}
	}
}
