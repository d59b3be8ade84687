// Package scoring turns a feature vector into a fraud probability and a
// discrete risk level. The trained classifier is an external artifact; when
// it is absent or fails, a deterministic rule cascade takes over so a
// degraded-but-functional score is always produced.
package scoring

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// Classifier is the contract with the trained model: named feature columns
// in, positive-class probability out. Implementations declare their own
// column order; callers must never assume it matches the vector's.
type Classifier interface {
	FeatureNames() []string
	PredictProba(features map[string]float64) (float64, error)
}

// forestArtifact is the JSON export of the trained tree ensemble.
type forestArtifact struct {
	FeatureNames []string       `json:"feature_names"`
	Trees        []artifactTree `json:"trees"`
}

// artifactTree holds a decision tree in scikit-style parallel arrays. A node
// with ChildrenLeft[i] == -1 is a leaf; Values[i] is its [negative, positive]
// class tally.
type artifactTree struct {
	ChildrenLeft  []int        `json:"children_left"`
	ChildrenRight []int        `json:"children_right"`
	Feature       []int        `json:"feature"`
	Threshold     []float64    `json:"threshold"`
	Values        [][2]float64 `json:"values"`
}

// ForestModel evaluates the exported ensemble natively. Immutable after load;
// safe for concurrent use.
type ForestModel struct {
	featureNames []string
	trees        []artifactTree
}

// LoadForest reads a forest artifact from disk and validates its shape.
func LoadForest(path string) (*ForestModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: read model artifact %s", path)
	}
	var artifact forestArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, eris.Wrapf(err, "scoring: parse model artifact %s", path)
	}
	if len(artifact.FeatureNames) == 0 {
		return nil, eris.New("scoring: model artifact declares no feature names")
	}
	if len(artifact.Trees) == 0 {
		return nil, eris.New("scoring: model artifact has no trees")
	}
	for i, tree := range artifact.Trees {
		n := len(tree.ChildrenLeft)
		if len(tree.ChildrenRight) != n || len(tree.Feature) != n ||
			len(tree.Threshold) != n || len(tree.Values) != n || n == 0 {
			return nil, eris.Errorf("scoring: tree %d has inconsistent node arrays", i)
		}
	}
	return &ForestModel{featureNames: artifact.FeatureNames, trees: artifact.Trees}, nil
}

// FeatureNames returns the model's declared input column order.
func (m *ForestModel) FeatureNames() []string {
	return m.featureNames
}

// PredictProba reindexes the named features to the model's column order
// (missing columns fill with 0) and averages positive-class probabilities
// across the ensemble.
func (m *ForestModel) PredictProba(features map[string]float64) (float64, error) {
	row := make([]float64, len(m.featureNames))
	for i, name := range m.featureNames {
		row[i] = features[name] // absent names default to 0
	}

	var sum float64
	for i := range m.trees {
		p, err := m.trees[i].proba(row)
		if err != nil {
			return 0, eris.Wrapf(err, "scoring: tree %d", i)
		}
		sum += p
	}
	return sum / float64(len(m.trees)), nil
}

func (t *artifactTree) proba(row []float64) (float64, error) {
	node := 0
	for steps := 0; steps <= len(t.ChildrenLeft); steps++ {
		if node < 0 || node >= len(t.ChildrenLeft) {
			return 0, eris.Errorf("node index %d out of range", node)
		}
		if t.ChildrenLeft[node] == -1 {
			neg, pos := t.Values[node][0], t.Values[node][1]
			if neg+pos <= 0 {
				return 0, nil
			}
			return pos / (neg + pos), nil
		}
		fi := t.Feature[node]
		if fi < 0 || fi >= len(row) {
			return 0, eris.Errorf("feature index %d out of range at node %d", fi, node)
		}
		if row[fi] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return 0, eris.New("tree walk did not terminate")
}
