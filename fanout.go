package tdk

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// FanOut calls fn once for each element of params, running at most limit calls
// at a time (limit < 1 means one at a time). The calls share nothing but ctx:
// a failing call doesn't cancel the others. The returned error lists every
// failed element and wraps each underlying error.
func FanOut[P any](ctx context.Context, params []P, limit int, fn func(ctx context.Context, p P) error) error {
	if limit < 1 {
		limit = 1
	}
	errs := make([]error, len(params))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, p := range params {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	var failed errorList
	for i, err := range errs {
		if err != nil {
			failed = append(failed, &fanOutError{param: fmt.Sprint(params[i]), err: err})
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return failed
}

type fanOutError struct {
	param string
	err   error
}

func (e *fanOutError) Error() string { return e.param + ": " + e.err.Error() }
func (e *fanOutError) Unwrap() error { return e.err }
