package scoring

import (
	"sync"

	"go.uber.org/zap"

	"github.com/daru-lab/jeonseguard/internal/feature"
	"github.com/daru-lab/jeonseguard/internal/model"
)

// Engine scores feature vectors. The classifier artifact is loaded lazily at
// most once, under a sync.Once; after that the engine is immutable and safe
// for fully parallel use.
type Engine struct {
	artifactPath string

	once       sync.Once
	classifier Classifier
}

// NewEngine creates an Engine that will lazily load the artifact at path.
// An empty path means rules-only scoring.
func NewEngine(artifactPath string) *Engine {
	return &Engine{artifactPath: artifactPath}
}

// NewEngineWith creates an Engine around an already-constructed classifier,
// used by tests and by deployments that load the model up front.
func NewEngineWith(c Classifier) *Engine {
	e := &Engine{classifier: c}
	e.once.Do(func() {}) // artifact load is preempted
	return e
}

// Score returns the fraud probability for a vector and which path produced
// it. Classifier failures are recovered locally via the rule cascade and are
// never surfaced to the caller.
func (e *Engine) Score(vec feature.Vector) (float64, model.ScoringPath) {
	c := e.load()
	if c == nil {
		return RuleScore(vec), model.ScoredByRules
	}
	prob, err := c.PredictProba(vec.ByName())
	if err != nil {
		zap.L().Warn("scoring: classifier predict failed, using rule fallback", zap.Error(err))
		return RuleScore(vec), model.ScoredByRules
	}
	if prob < 0 || prob > 1 {
		zap.L().Warn("scoring: classifier returned out-of-range probability, using rule fallback",
			zap.Float64("prob", prob),
		)
		return RuleScore(vec), model.ScoredByRules
	}
	return prob, model.ScoredByModel
}

func (e *Engine) load() Classifier {
	e.once.Do(func() {
		if e.artifactPath == "" {
			return
		}
		m, err := LoadForest(e.artifactPath)
		if err != nil {
			zap.L().Warn("scoring: classifier unavailable, rule-based scoring only",
				zap.String("path", e.artifactPath),
				zap.Error(err),
			)
			return
		}
		zap.L().Info("scoring: classifier loaded",
			zap.String("path", e.artifactPath),
			zap.Int("features", len(m.FeatureNames())),
		)
		e.classifier = m
	})
	return e.classifier
}

// RuleScore is the deterministic fallback: independent thresholds each
// propose a probability floor and the final probability is the max over all
// triggered rules.
func RuleScore(v feature.Vector) float64 {
	prob := 0.0

	switch {
	case v.JeonseRatio >= 0.8:
		prob = max(prob, 0.8)
	case v.JeonseRatio >= 0.7:
		prob = max(prob, 0.5)
	}

	switch {
	case v.TotalRiskRatio >= 0.9:
		prob = max(prob, 0.9)
	case v.TotalRiskRatio >= 0.8:
		prob = max(prob, 0.7)
	}

	if v.IsTrustOwner > 0 && v.ShortTermWeight > 0 {
		prob = max(prob, 0.6)
	}

	return prob
}

// Classify maps a probability onto the fixed business thresholds.
func Classify(prob float64) model.RiskLevel {
	switch {
	case prob < 0.4:
		return model.RiskLevelSafe
	case prob < 0.7:
		return model.RiskLevelCaution
	default:
		return model.RiskLevelRisky
	}
}
