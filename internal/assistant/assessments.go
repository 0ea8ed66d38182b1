package assistant

import (
	"context"

	"github.com/medprompt/backend/internal/risk"
	"github.com/medprompt/backend/internal/storage/models"
)

const (
	SourceManual  = "manual"
	SourceExplain = "explain-risk"
)

// Predict scores a complete feature set and records it in the history.
func (s *Service) Predict(ctx context.Context, f risk.Features) (risk.Prediction, error) {
	return s.predict(ctx, SourceManual, f)
}

func (s *Service) Trend(ctx context.Context, metric string, limit int) ([]models.TrendPoint, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = 30
	}
	return s.history.Trend(ctx, metric, limit)
}
