package tryon

import "github.com/sakif/tryon-studio/internal/model"

// Results accumulates the images generated during one controller lifetime,
// in completion order. Entries are never removed or rewritten.
type Results struct {
	items []model.ResultRef
}

// Append records one result. Duplicates are kept: generating the same pair
// twice yields two entries.
func (r *Results) Append(ref model.ResultRef) {
	r.items = append(r.items, ref)
}

// All returns the results so far. The slice shares the backing array but its
// capacity is clipped, so appending to it cannot reach later entries and
// later Appends never change what the caller already holds.
func (r *Results) All() []model.ResultRef {
	return r.items[:len(r.items):len(r.items)]
}

func (r *Results) Len() int {
	return len(r.items)
}
