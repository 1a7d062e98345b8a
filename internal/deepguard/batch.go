package deepguard

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/upload"
)

// BatchItem is the outcome of one image in a batch check.
type BatchItem struct {
	Payload upload.Payload
	Outcome Outcome
	Err     error
}

// CheckMany analyzes payloads with at most api.workers requests in flight. A failure on
// one image does not stop the others. Results are returned in input order.
func (a *Analyzer) CheckMany(ctx context.Context, payloads []upload.Payload, source history.Source) []BatchItem {
	items := make([]BatchItem, len(payloads))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.config.API.Workers, 1))

	for i, p := range payloads {
		items[i].Payload = p

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				items[i].Err = err
				return nil
			}

			out, err := a.AnalyzePayload(ctx, p, source)
			items[i].Outcome = out
			items[i].Err = err
			return nil
		})
	}

	_ = g.Wait()

	a.log.Debug().Int("count", len(payloads)).Msg("batch complete")

	return items
}
