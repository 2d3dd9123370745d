package variant

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BuildAll runs Build concurrently across orchestrators, capped at
// runtime.NumCPU() in flight at once, mirroring please_js/esmdev's own
// prebundleAllPackages fan-out over errgroup.WithContext +
// errgroup.Group.SetLimit. The returned slice is positional: result[i]
// corresponds to orchestrators[i]. The first error from any orchestrator
// cancels the group's context and is returned; results for orchestrators
// that hadn't started yet are nil.
func BuildAll(ctx context.Context, orchestrators []*Orchestrator) ([]*BuildResult, error) {
	results := make([]*BuildResult, len(orchestrators))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, o := range orchestrators {
		i, o := i, o
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := o.Build()
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
