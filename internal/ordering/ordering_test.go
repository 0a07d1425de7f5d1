package ordering

import (
	"errors"
	"testing"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

func TestPrependAppendEmpty(t *testing.T) {
	if got := Prepend(nil); got != 0 {
		t.Errorf("Prepend(nil) = %d, want 0", got)
	}
	if got := Append([]*int64{nil, nil}); got != 0 {
		t.Errorf("Append(all nulls) = %d, want 0", got)
	}
}

func TestPrependAppendWithGaps(t *testing.T) {
	indices := []*int64{domain.Int64(4), nil, domain.Int64(-3), domain.Int64(17)}

	if got := Prepend(indices); got != -4 {
		t.Errorf("Prepend() = %d, want -4", got)
	}
	if got := Append(indices); got != 18 {
		t.Errorf("Append() = %d, want 18", got)
	}
}

func TestPrependMonotonic(t *testing.T) {
	var indices []*int64
	for i := 0; i < 50; i++ {
		next := Prepend(indices)
		for _, idx := range indices {
			if next >= *idx {
				t.Fatalf("prepend #%d produced %d which is not below %d", i, next, *idx)
			}
		}
		indices = append(indices, domain.Int64(next))
	}
}

func TestReorderScenario(t *testing.T) {
	current := map[string]*int64{
		"A": domain.Int64(-7),
		"B": domain.Int64(3),
		"C": domain.Int64(40),
	}

	changed, err := Reorder(current, []string{"C", "A", "B"})
	if err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}

	got := make(map[string]int64, len(changed))
	for _, p := range changed {
		got[p.ID] = p.Index
	}
	want := map[string]int64{"C": 0, "A": 1, "B": 2}
	for id, idx := range want {
		if got[id] != idx {
			t.Errorf("%s = %d, want %d", id, got[id], idx)
		}
	}
}

func TestReorderOnlyChanged(t *testing.T) {
	current := map[string]*int64{
		"A": domain.Int64(0),
		"B": domain.Int64(1),
		"C": nil,
	}

	changed, err := Reorder(current, []string{"A", "C", "B"})
	if err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	if len(changed) != 2 {
		t.Fatalf("Reorder() changed %d items, want 2: %+v", len(changed), changed)
	}
	for _, p := range changed {
		if p.ID == "A" {
			t.Errorf("A kept its position and should not be in the batch")
		}
	}
}

func TestReorderRejectsForeignAndDuplicateIDs(t *testing.T) {
	current := map[string]*int64{"A": nil, "B": nil}

	tests := []struct {
		name     string
		sequence []string
	}{
		{name: "foreign id", sequence: []string{"A", "Z"}},
		{name: "duplicate id", sequence: []string{"A", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reorder(current, tt.sequence)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("Reorder(%v) error = %v, want validation error", tt.sequence, err)
			}
		})
	}
}
