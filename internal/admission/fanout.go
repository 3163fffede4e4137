package admission

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map calls fn for every item with at most workers calls in flight and
// returns the results fn kept, in input order. fn does its own gating.
//
// Per-item failures are expressed by fn returning keep=false; they never
// stop the other items. Map only fails when ctx is done, in which case the
// results gathered so far are returned with the context error.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) (R, bool)) ([]R, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]R, len(items))
	kept := make([]bool, len(items))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i], kept[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]R, 0, len(items))
	for i := range items {
		if kept[i] {
			out = append(out, results[i])
		}
	}
	return out, ctx.Err()
}
