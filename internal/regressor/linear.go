package regressor

import (
	"math"

	"preheat/internal/types"
)

// ridgeLambda is a small L2 penalty that keeps the normal equations solvable
// when features are collinear or constant (a common case: absent side
// channels all flattened to 0.0).
const ridgeLambda = 1e-6

// linearModel is the serializable trained state: weights per feature plus
// an intercept.
type linearModel struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// Linear is the least-squares fallback backend: a ridge-regularized linear
// model fitted via the normal equations. Used when the tree ensemble is
// disabled or a stored payload demands it.
type Linear struct {
	model *linearModel
}

// NewLinear creates an untrained linear regressor.
func NewLinear() *Linear {
	return &Linear{}
}

// Backend identifies this implementation in serialized payloads.
func (l *Linear) Backend() types.RegressorBackend { return types.BackendLinear }

// Fit solves (XᵀX + λI)w = Xᵀy over bias-augmented inputs and returns
// training-set metrics.
func (l *Linear) Fit(x [][]float64, y []float64) (types.TrainingMetrics, error) {
	if err := validateTrainingInput(x, y); err != nil {
		return types.TrainingMetrics{}, err
	}

	// Augment with a bias column so the intercept falls out of the solve.
	dim := len(x[0]) + 1
	xtx := make([][]float64, dim)
	for i := range xtx {
		xtx[i] = make([]float64, dim)
	}
	xty := make([]float64, dim)

	for r, row := range x {
		aug := append(append(make([]float64, 0, dim), row...), 1.0)
		for i := 0; i < dim; i++ {
			for j := 0; j < dim; j++ {
				xtx[i][j] += aug[i] * aug[j]
			}
			xty[i] += aug[i] * y[r]
		}
	}
	for i := 0; i < dim; i++ {
		xtx[i][i] += ridgeLambda
	}

	solution, err := solveLinearSystem(xtx, xty)
	if err != nil {
		return types.TrainingMetrics{}, err
	}

	l.model = &linearModel{
		Weights:   solution[:dim-1],
		Intercept: solution[dim-1],
	}

	return trainingMetrics(l.predictRow, x, y), nil
}

// Predict returns the estimate for one feature vector.
func (l *Linear) Predict(features []float64) (float64, error) {
	if l.model == nil {
		return 0, types.NewAppError(types.ErrCodeConflictModelNotTrained, "linear model has not been trained", nil)
	}
	if len(features) != len(l.model.Weights) {
		return 0, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidFeatures,
			"feature vector width does not match the trained model",
			nil,
			map[string]any{"got": len(features), "want": len(l.model.Weights)},
		)
	}
	return l.predictRow(features), nil
}

func (l *Linear) predictRow(row []float64) float64 {
	out := l.model.Intercept
	for i, w := range l.model.Weights {
		out += w * row[i]
	}
	return out
}

// FeatureImportance reports normalized absolute weights. Coarser than the
// tree ensemble's variance gains but comparable across features after the
// 0.0-default flattening.
func (l *Linear) FeatureImportance(featureNames []string) map[string]float64 {
	if l.model == nil || len(featureNames) != len(l.model.Weights) {
		return nil
	}

	abs := make([]float64, len(l.model.Weights))
	for i, w := range l.model.Weights {
		abs[i] = math.Abs(w)
	}
	normalize(abs)

	out := make(map[string]float64, len(featureNames))
	for i, name := range featureNames {
		out[name] = abs[i]
	}
	return out
}

// Serialize seals the trained state in the compressed backend envelope.
func (l *Linear) Serialize() ([]byte, error) {
	if l.model == nil {
		return nil, types.NewAppError(types.ErrCodeConflictModelNotTrained, "cannot serialize an untrained linear model", nil)
	}
	return seal(types.BackendLinear, l.model)
}

// solveLinearSystem solves Ax = b in place via Gaussian elimination with
// partial pivoting.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, types.NewAppError(
				types.ErrCodeValidationInvalidFeatures,
				"training matrix is singular",
				nil,
			)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			factor := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for c := row + 1; c < n; c++ {
			sum -= a[row][c] * x[c]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}
