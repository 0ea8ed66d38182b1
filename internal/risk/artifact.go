package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/medprompt/backend/pkg/logger"
)

// Load reads a model artifact. Every failure wraps ErrModelUnavailable.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read artifact: %v", ErrModelUnavailable, err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: failed to decode artifact: %v", ErrModelUnavailable, err)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	logger.Info("Risk model loaded",
		zap.String("path", path),
		zap.Time("trained_at", m.TrainedAt),
		zap.Float64("test_accuracy", m.Accuracy),
	)

	return &m, nil
}

// Save writes the artifact through a temp file so readers never see a partial model.
func Save(path string, m *Model) error {
	if err := m.validate(); err != nil {
		return fmt.Errorf("refusing to save invalid model: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".risk_model-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move model into place: %w", err)
	}

	logger.Info("Risk model saved", zap.String("path", path))
	return nil
}

func (m *Model) validate() error {
	n := len(FeatureOrder)
	if len(m.Features) != n {
		return fmt.Errorf("artifact has %d features, want %d", len(m.Features), n)
	}
	for i, name := range FeatureOrder {
		if m.Features[i] != name {
			return fmt.Errorf("feature %d is %q, want %q", i, m.Features[i], name)
		}
	}
	if len(m.Scaler.Mean) != n || len(m.Scaler.Scale) != n || len(m.Classifier.Coef) != n {
		return fmt.Errorf("artifact parameter lengths do not match %d features", n)
	}
	for i := 0; i < n; i++ {
		if m.Scaler.Scale[i] == 0 || !finite(m.Scaler.Scale[i]) || !finite(m.Scaler.Mean[i]) || !finite(m.Classifier.Coef[i]) {
			return fmt.Errorf("artifact parameter %d is not usable", i)
		}
	}
	if !finite(m.Classifier.Intercept) {
		return fmt.Errorf("artifact intercept is not finite")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
