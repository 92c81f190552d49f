package detector

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cast"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"dataguard/domain/contract"
)

// MahalanobisScorer is the built-in multivariate scorer: it fits a
// covariance matrix over the sampled feature space and converts each
// row's Mahalanobis distance into a density-style outlier score in
// [0,1]. A near-singular covariance gets a small ridge before
// factorization.
type MahalanobisScorer struct{}

func (MahalanobisScorer) Name() string { return "mahalanobis" }

func (MahalanobisScorer) Score(ctx context.Context, features [][]float64) ([]float64, error) {
	n := len(features)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty feature matrix", contract.ErrInsufficientData)
	}
	d := len(features[0])
	if n <= d {
		return nil, fmt.Errorf("%w: %d rows for %d features", contract.ErrInsufficientData, n, d)
	}

	flat := make([]float64, 0, n*d)
	for _, row := range features {
		if len(row) != d {
			return nil, fmt.Errorf("%w: ragged feature matrix", contract.ErrDetector)
		}
		flat = append(flat, row...)
	}
	data := mat.NewDense(n, d, flat)

	means := make([]float64, d)
	for c := 0; c < d; c++ {
		means[c] = stat.Mean(mat.Col(nil, c, data), nil)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)
	for i := 0; i < d; i++ {
		cov.SetSym(i, i, cov.At(i, i)+1e-9)
	}

	var chol mat.Cholesky
	if !chol.Factorize(&cov) {
		return nil, fmt.Errorf("%w: covariance matrix is not positive definite", contract.ErrInsufficientData)
	}

	scores := make([]float64, n)
	diff := mat.NewVecDense(d, nil)
	solved := mat.NewVecDense(d, nil)
	for r := 0; r < n; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for c := 0; c < d; c++ {
			diff.SetVec(c, features[r][c]-means[c])
		}
		if err := chol.SolveVecTo(solved, diff); err != nil {
			return nil, fmt.Errorf("%w: %v", contract.ErrDetector, err)
		}
		d2 := mat.Dot(diff, solved)
		// Squash the squared distance so scores stay comparable across
		// dimensionalities.
		scores[r] = 1 - math.Exp(-d2/(2*float64(d)))
	}
	return scores, nil
}

// UnavailableScorer stands in when no multivariate capability is wired.
// The engine surfaces the method as skipped, never silently omitted.
type UnavailableScorer struct{}

func (UnavailableScorer) Name() string { return "unavailable" }

func (UnavailableScorer) Score(ctx context.Context, features [][]float64) ([]float64, error) {
	return nil, contract.ErrScorerUnavailable
}

// toFloat coerces a raw column value into a float64, rejecting nulls.
func toFloat(v any) (float64, bool) {
	if contract.IsNull(v) {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}
