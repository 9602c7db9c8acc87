package scheduler

import (
	"testing"

	"envload/internal/actor"
)

func TestDistribute(t *testing.T) {
	classes := func(shares ...int) []*actor.Class {
		out := make([]*actor.Class, len(shares))
		for i, s := range shares {
			out[i] = &actor.Class{Name: string(rune('a' + i)), Share: s}
		}
		return out
	}

	tests := []struct {
		name   string
		shares []int
		total  int
		want   []int
	}{
		{"exact", []int{5, 3, 2}, 10, []int{5, 3, 2}},
		{"scaled", []int{5, 3, 2}, 100, []int{50, 30, 20}},
		{"largest remainder", []int{5, 3, 2}, 7, []int{4, 2, 1}},
		{"minimum one each", []int{98, 1, 1}, 3, []int{1, 1, 1}},
		{"fewer users than classes", []int{5, 3, 2}, 2, []int{1, 1, 0}},
		{"equal shares tie to first", []int{1, 1, 1}, 4, []int{2, 1, 1}},
		{"zero", []int{5, 3, 2}, 0, []int{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distribute(classes(tt.shares...), tt.total)
			sum := 0
			for i, a := range got {
				sum += a.Count
				if a.Count != tt.want[i] {
					t.Errorf("class %d: got %d, want %d (all %v)", i, a.Count, tt.want[i], counts(got))
				}
			}
			if tt.total > 0 && sum != tt.total {
				t.Errorf("sum %d != total %d", sum, tt.total)
			}
		})
	}
}

func counts(allocs []Allocation) []int {
	out := make([]int, len(allocs))
	for i, a := range allocs {
		out[i] = a.Count
	}
	return out
}
