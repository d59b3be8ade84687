package scoring

import (
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/daru-lab/jeonseguard/internal/feature"
	"github.com/daru-lab/jeonseguard/internal/model"
)

type stubClassifier struct {
	prob float64
	err  error
}

func (s stubClassifier) FeatureNames() []string { return feature.Names() }
func (s stubClassifier) PredictProba(map[string]float64) (float64, error) {
	return s.prob, s.err
}

func TestRuleScore(t *testing.T) {
	tests := []struct {
		name string
		vec  feature.Vector
		want float64
	}{
		{"all calm", feature.Vector{JeonseRatio: 0.5, TotalRiskRatio: 0.5}, 0},
		{"jeonse at 0.7", feature.Vector{JeonseRatio: 0.7, TotalRiskRatio: 0.7}, 0.5},
		{"jeonse at 0.8", feature.Vector{JeonseRatio: 0.8, TotalRiskRatio: 0.8}, 0.8},
		{"total at 0.8", feature.Vector{JeonseRatio: 0.6, TotalRiskRatio: 0.8}, 0.7},
		{"total at 0.9 dominates", feature.Vector{JeonseRatio: 0.8, TotalRiskRatio: 0.9}, 0.9},
		{"trust and short term", feature.Vector{IsTrustOwner: 1, ShortTermWeight: 0.3}, 0.6},
		{"trust without short term", feature.Vector{IsTrustOwner: 1}, 0},
		{"max over rules", feature.Vector{JeonseRatio: 0.72, TotalRiskRatio: 0.85, IsTrustOwner: 1, ShortTermWeight: 0.1}, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RuleScore(tt.vec), 1e-9)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		prob float64
		want model.RiskLevel
	}{
		{0, model.RiskLevelSafe},
		{0.39, model.RiskLevelSafe},
		{0.4, model.RiskLevelCaution},
		{0.69, model.RiskLevelCaution},
		{0.7, model.RiskLevelRisky},
		{1, model.RiskLevelRisky},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.prob), "prob=%v", tt.prob)
	}
}

func TestClassifyMonotonic(t *testing.T) {
	probs := []float64{0, 0.1, 0.39, 0.4, 0.5, 0.69, 0.7, 0.9, 1}
	for i := 1; i < len(probs); i++ {
		prev := Classify(probs[i-1])
		curr := Classify(probs[i])
		assert.LessOrEqual(t, prev.Rank(), curr.Rank(),
			"classify(%v) ranked above classify(%v)", probs[i-1], probs[i])
	}
}

func TestEngineUsesClassifierWhenHealthy(t *testing.T) {
	e := NewEngineWith(stubClassifier{prob: 0.42})
	prob, path := e.Score(feature.Vector{JeonseRatio: 0.9, TotalRiskRatio: 0.9})
	assert.Equal(t, 0.42, prob)
	assert.Equal(t, model.ScoredByModel, path)
}

func TestEngineFallsBackOnClassifierError(t *testing.T) {
	e := NewEngineWith(stubClassifier{err: eris.New("shape mismatch")})
	vec := feature.Vector{JeonseRatio: 0.8, TotalRiskRatio: 0.8}
	prob, path := e.Score(vec)
	assert.InDelta(t, 0.8, prob, 1e-9)
	assert.Equal(t, model.ScoredByRules, path)
}

func TestEngineFallsBackOnOutOfRangeProbability(t *testing.T) {
	for _, bad := range []float64{-0.1, 1.5} {
		e := NewEngineWith(stubClassifier{prob: bad})
		prob, path := e.Score(feature.Vector{JeonseRatio: 0.72})
		assert.InDelta(t, 0.5, prob, 1e-9, "prob=%v", bad)
		assert.Equal(t, model.ScoredByRules, path)
	}
}

func TestEngineWithoutArtifactUsesRules(t *testing.T) {
	e := NewEngine("")
	prob, path := e.Score(feature.Vector{JeonseRatio: 0.8, TotalRiskRatio: 0.8})
	assert.InDelta(t, 0.8, prob, 1e-9)
	assert.Equal(t, model.ScoredByRules, path)
}

func TestEngineConcurrentFirstScore(t *testing.T) {
	e := NewEngine(writeArtifact(t))
	vec := feature.Vector{JeonseRatio: 0.9}

	var wg sync.WaitGroup
	probs := make([]float64, 8)
	paths := make([]model.ScoringPath, 8)
	for i := range probs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			probs[i], paths[i] = e.Score(vec)
		}(i)
	}
	wg.Wait()

	for i := range probs {
		assert.InDelta(t, (0.8+0.9)/2, probs[i], 1e-9)
		assert.Equal(t, model.ScoredByModel, paths[i])
	}
}

func TestEngineWithMissingArtifactFileUsesRules(t *testing.T) {
	e := NewEngine("definitely/not/here.json")
	prob, path := e.Score(feature.Vector{TotalRiskRatio: 0.95})
	assert.InDelta(t, 0.9, prob, 1e-9)
	assert.Equal(t, model.ScoredByRules, path)
}
