// Package workpool runs independent per-item work on a bounded number of goroutines.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is used when a non-positive limit is supplied
const DefaultLimit = 8

// Map applies fn to every item with at most limit calls in flight and returns
// the results in input order. The context is checked before each item starts;
// once it is done, or once fn fails, no further items are started and the first
// error is returned.
func Map[T, R any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	results := make([]R, len(items))
	if len(items) == 0 {
		return results, ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, item := range items {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// the loop may have stopped early on a cancelled parent without any item failing
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

