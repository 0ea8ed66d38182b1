// Package risk scores diabetes risk with a logistic-regression classifier
// over standardised vitals, and provisions that classifier from a labeled CSV.
package risk

import (
	"errors"
	"math"
	"sync"
	"time"
)

var (
	ErrModelUnavailable = errors.New("risk model unavailable")
	ErrMissingFeature   = errors.New("missing feature")
)

type Level string

const (
	LevelLow      Level = "Low Risk"
	LevelModerate Level = "Moderate Risk"
	LevelHigh     Level = "High Risk"
)

const (
	moderateThreshold = 0.33
	highThreshold     = 0.66
)

// LevelFor maps a rounded score onto half-open bands: [0, .33) low,
// [.33, .66) moderate, [.66, 1] high.
func LevelFor(score float64) Level {
	switch {
	case score < moderateThreshold:
		return LevelLow
	case score < highThreshold:
		return LevelModerate
	default:
		return LevelHigh
	}
}

type Prediction struct {
	RiskScore float64 `json:"risk_score"`
	RiskLevel Level   `json:"risk_level"`
}

type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = (x[i] - s.Mean[i]) / s.Scale[i]
	}
	return out
}

type Classifier struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (c Classifier) Probability(x []float64) float64 {
	z := c.Intercept
	for i := range x {
		z += c.Coef[i] * x[i]
	}
	return sigmoid(z)
}

type Model struct {
	Features   []string   `json:"features"`
	Scaler     Scaler     `json:"scaler"`
	Classifier Classifier `json:"classifier"`
	TrainedAt  time.Time  `json:"trained_at"`
	TrainRows  int        `json:"train_rows"`
	TestRows   int        `json:"test_rows"`
	Accuracy   float64    `json:"test_accuracy"`
}

// Probability returns P(outcome=1) without rounding.
func (m *Model) Probability(f Features) float64 {
	return m.Classifier.Probability(m.Scaler.Transform(f.Vector()))
}

func (m *Model) Predict(f Features) Prediction {
	score := roundTo(m.Probability(f), 2)
	return Prediction{RiskScore: score, RiskLevel: LevelFor(score)}
}

// Scorer shares one read-only model across requests. A Scorer without a model
// fails every prediction with ErrModelUnavailable.
type Scorer struct {
	mu    sync.RWMutex
	model *Model
}

func NewScorer(model *Model) *Scorer {
	return &Scorer{model: model}
}

func (s *Scorer) Predict(f Features) (Prediction, error) {
	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()

	if model == nil {
		return Prediction{}, ErrModelUnavailable
	}
	return model.Predict(f), nil
}

func (s *Scorer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

// Replace swaps in a freshly provisioned model.
func (s *Scorer) Replace(model *Model) {
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
