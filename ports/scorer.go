package ports

import "context"

// MultivariateScorer is the capability interface behind the optional
// multivariate detector. features is row-major with one row per sampled
// record; the returned outlier scores are in [0,1], one per row, higher
// meaning more anomalous. An implementation that is not wired in
// returns contract.ErrScorerUnavailable, which the engine reports as a
// skipped method rather than a failure.
type MultivariateScorer interface {
	Name() string
	Score(ctx context.Context, features [][]float64) ([]float64, error)
}
