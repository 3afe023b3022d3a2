package regressor

import (
	"sort"

	"preheat/internal/types"
)

// GBRTParams tunes the gradient-boosted tree ensemble. Training is fully
// deterministic: no subsampling, no random feature selection.
type GBRTParams struct {
	NEstimators    int     `json:"n_estimators"`
	LearningRate   float64 `json:"learning_rate"`
	MaxDepth       int     `json:"max_depth"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
}

// DefaultGBRTParams returns the default ensemble configuration. The dataset
// sizes here are small (tens to low hundreds of cycles), so a shallow,
// moderately sized ensemble is enough.
func DefaultGBRTParams() GBRTParams {
	return GBRTParams{
		NEstimators:    100,
		LearningRate:   0.1,
		MaxDepth:       3,
		MinSamplesLeaf: 2,
	}
}

// treeNode is one node of a regression tree. Leaves carry the prediction
// value; internal nodes route on feature <= threshold.
type treeNode struct {
	Feature   int       `json:"f,omitempty"`
	Threshold float64   `json:"t,omitempty"`
	Left      *treeNode `json:"l,omitempty"`
	Right     *treeNode `json:"r,omitempty"`
	Leaf      bool      `json:"leaf,omitempty"`
	Value     float64   `json:"v,omitempty"`
}

func (n *treeNode) predict(row []float64) float64 {
	for !n.Leaf {
		if row[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// gbrtModel is the serializable trained state.
type gbrtModel struct {
	Params     GBRTParams  `json:"params"`
	Init       float64     `json:"init"`
	Trees      []*treeNode `json:"trees"`
	NFeatures  int         `json:"n_features"`
	Importance []float64   `json:"importance"`
}

// GBRT is a gradient-boosted regression tree ensemble for squared loss:
// each stage fits a shallow tree to the residuals of the running prediction.
type GBRT struct {
	params GBRTParams
	model  *gbrtModel
}

// NewGBRT creates an untrained ensemble.
func NewGBRT(params GBRTParams) *GBRT {
	return &GBRT{params: params}
}

// Backend identifies this implementation in serialized payloads.
func (g *GBRT) Backend() types.RegressorBackend { return types.BackendGBRT }

// Fit trains the ensemble and returns training-set metrics.
func (g *GBRT) Fit(x [][]float64, y []float64) (types.TrainingMetrics, error) {
	if err := validateTrainingInput(x, y); err != nil {
		return types.TrainingMetrics{}, err
	}

	nFeatures := len(x[0])
	init := meanOf(y)

	preds := make([]float64, len(y))
	for i := range preds {
		preds[i] = init
	}

	residuals := make([]float64, len(y))
	importance := make([]float64, nFeatures)
	trees := make([]*treeNode, 0, g.params.NEstimators)

	for iter := 0; iter < g.params.NEstimators; iter++ {
		for i := range y {
			residuals[i] = y[i] - preds[i]
		}

		tree := buildTree(x, residuals, allIndices(len(y)), g.params.MaxDepth, g.params.MinSamplesLeaf, importance)
		trees = append(trees, tree)

		for i, row := range x {
			preds[i] += g.params.LearningRate * tree.predict(row)
		}
	}

	normalize(importance)
	g.model = &gbrtModel{
		Params:     g.params,
		Init:       init,
		Trees:      trees,
		NFeatures:  nFeatures,
		Importance: importance,
	}

	return trainingMetrics(g.predictRow, x, y), nil
}

// Predict returns the estimate for one feature vector.
func (g *GBRT) Predict(features []float64) (float64, error) {
	if g.model == nil {
		return 0, types.NewAppError(types.ErrCodeConflictModelNotTrained, "gbrt model has not been trained", nil)
	}
	if len(features) != g.model.NFeatures {
		return 0, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidFeatures,
			"feature vector width does not match the trained model",
			nil,
			map[string]any{"got": len(features), "want": g.model.NFeatures},
		)
	}
	return g.predictRow(features), nil
}

func (g *GBRT) predictRow(row []float64) float64 {
	out := g.model.Init
	for _, tree := range g.model.Trees {
		out += g.model.Params.LearningRate * tree.predict(row)
	}
	return out
}

// FeatureImportance reports the normalized variance reduction attributed to
// each feature across the ensemble, keyed by the caller's feature names.
func (g *GBRT) FeatureImportance(featureNames []string) map[string]float64 {
	if g.model == nil || len(featureNames) != len(g.model.Importance) {
		return nil
	}
	out := make(map[string]float64, len(featureNames))
	for i, name := range featureNames {
		out[name] = g.model.Importance[i]
	}
	return out
}

// Serialize seals the trained state in the compressed backend envelope.
func (g *GBRT) Serialize() ([]byte, error) {
	if g.model == nil {
		return nil, types.NewAppError(types.ErrCodeConflictModelNotTrained, "cannot serialize an untrained gbrt model", nil)
	}
	return seal(types.BackendGBRT, g.model)
}

// buildTree grows a regression tree greedily by variance reduction. The
// importance slice accumulates each split's weighted variance gain.
func buildTree(x [][]float64, target []float64, idx []int, depth, minLeaf int, importance []float64) *treeNode {
	if depth == 0 || len(idx) < 2*minLeaf {
		return &treeNode{Leaf: true, Value: meanAt(target, idx)}
	}

	feature, threshold, gain, ok := bestSplit(x, target, idx, minLeaf)
	if !ok {
		return &treeNode{Leaf: true, Value: meanAt(target, idx)}
	}
	importance[feature] += gain

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      buildTree(x, target, left, depth-1, minLeaf, importance),
		Right:     buildTree(x, target, right, depth-1, minLeaf, importance),
	}
}

// bestSplit scans every feature's midpoints for the split with the highest
// weighted variance reduction that respects the minimum leaf size.
func bestSplit(x [][]float64, target []float64, idx []int, minLeaf int) (feature int, threshold, gain float64, ok bool) {
	parentVar := varianceAt(target, idx)
	if parentVar == 0 {
		return 0, 0, 0, false
	}
	n := float64(len(idx))
	nFeatures := len(x[idx[0]])

	bestGain := 0.0
	sorted := make([]int, len(idx))

	for f := 0; f < nFeatures; f++ {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool { return x[sorted[a]][f] < x[sorted[b]][f] })

		for cut := minLeaf; cut <= len(sorted)-minLeaf; cut++ {
			lo, hi := x[sorted[cut-1]][f], x[sorted[cut]][f]
			if lo == hi {
				continue
			}

			left, right := sorted[:cut], sorted[cut:]
			weighted := (float64(len(left))*varianceAt(target, left) +
				float64(len(right))*varianceAt(target, right)) / n
			g := parentVar - weighted
			if g > bestGain {
				bestGain = g
				feature = f
				threshold = (lo + hi) / 2.0
				ok = true
			}
		}
	}
	return feature, threshold, bestGain, ok
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanAt(values []float64, idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += values[i]
	}
	return sum / float64(len(idx))
}

func varianceAt(values []float64, idx []int) float64 {
	m := meanAt(values, idx)
	var sum float64
	for _, i := range idx {
		d := values[i] - m
		sum += d * d
	}
	return sum / float64(len(idx))
}

func normalize(values []float64) {
	var total float64
	for _, v := range values {
		total += v
	}
	if total == 0 {
		return
	}
	for i := range values {
		values[i] /= total
	}
}
