package mergekit

import (
	"github.com/Havanyani/go-merge-kit/record"
)

// mergeArrays combines two array values that diverged on both sides under the
// configured policy. ArrayReplace is handled upstream: a replaced array is an
// ordinary field under the active field strategy and never reaches here.
//
// Elements that cannot be deep-compared (nesting beyond the record depth
// limit) count as distinct, favoring retention over loss.
func mergeArrays(policy ArrayMergePolicy, local, remote []record.Value) []record.Value {
	switch policy {
	case ArrayConcat:
		out := make([]record.Value, 0, len(remote)+len(local))
		out = append(out, remote...)
		out = append(out, local...)
		return out

	case ArrayUnion:
		// Set union by deep equality, remote items first.
		out := make([]record.Value, 0, len(remote)+len(local))
		for _, v := range remote {
			if !containsValue(out, v) {
				out = append(out, v)
			}
		}
		for _, v := range local {
			if !containsValue(out, v) {
				out = append(out, v)
			}
		}
		return out

	case ArrayIntersection:
		// Elements present on both sides by deep equality, remote ordering.
		out := make([]record.Value, 0, len(remote))
		for _, v := range remote {
			if containsValue(local, v) && !containsValue(out, v) {
				out = append(out, v)
			}
		}
		return out

	default:
		return remote
	}
}

func containsValue(list []record.Value, v record.Value) bool {
	for _, item := range list {
		if eq, err := record.Equal(item, v); err == nil && eq {
			return true
		}
	}
	return false
}
