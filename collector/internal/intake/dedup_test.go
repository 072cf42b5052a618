package intake

import (
	"context"
	"testing"
)

func TestMemoryDedupDetectsSecondOccurrence(t *testing.T) {
	d := newMemoryDedup()
	ctx := context.Background()

	if d.seen(ctx, "batch-1") {
		t.Fatal("first occurrence should not be reported as a duplicate")
	}
	if !d.seen(ctx, "batch-1") {
		t.Fatal("second occurrence should be reported as a duplicate")
	}
	if d.seen(ctx, "batch-2") {
		t.Fatal("a distinct batch_id should not be a duplicate")
	}
}
