package flight

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/calccache/calc"
)

// SubmitBatch submits every request with at most limit running at once and
// returns the outcomes in request order. A non-positive limit means no
// limit. Duplicate requests in one batch share a single computation.
func (o *Orchestrator) SubmitBatch(ctx context.Context, reqs []calc.Request, opts SubmitOptions, limit int) []calc.Outcome {
	out := make([]calc.Outcome, len(reqs))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		g.Go(func() error {
			out[i] = o.Submit(ctx, req, opts)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
