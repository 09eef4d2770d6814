package store

import (
	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
)

// ChunkRange calls fn for consecutive [start, end) windows of at most chunkSize.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// DedupeIDs drops zero and repeated ids while keeping first-seen order.
func DedupeIDs(in []int64) []int64 {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(in))
	out := make([]int64, 0, len(in))
	for _, v := range in {
		if v == 0 {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Matches reports whether r satisfies the filters of q, ignoring paging.
func (q RelationQuery) Matches(r common.Relation) bool {
	if r.Deleted && !q.IncludeDeleted {
		return false
	}
	if q.Source != nil && r.Source != *q.Source {
		return false
	}
	if q.PredicateID != nil && r.PredicateID != *q.PredicateID {
		return false
	}
	if q.Target != nil && r.Target != *q.Target {
		return false
	}
	return true
}
