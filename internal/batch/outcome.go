// Package batch drives an analysis function over a work list in sequential,
// internally concurrent batches and accumulates run metrics.
package batch

import (
	"github.com/mapd-tech/civic-impact/internal/model"
)

// Outcome is the result of analyzing one item. Exactly one of Result and Err
// is set.
type Outcome[T any] struct {
	Item      T
	Result    *model.AnalysisResult
	Succeeded bool
	Err       error
}

// OK reports whether the item was analyzed successfully.
func (o Outcome[T]) OK() bool { return o.Succeeded }

// Error returns the failure message, or "" for a success.
func (o Outcome[T]) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Partition splits items into contiguous chunks of size n. The last chunk may
// be shorter. n must be positive.
func Partition[T any](items []T, n int) [][]T {
	if n <= 0 || len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+n-1)/n)
	for start := 0; start < len(items); start += n {
		end := min(start+n, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}
