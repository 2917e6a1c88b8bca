package ports

import (
	"context"
	"io"

	"github.com/pulmonics/lung-sound-api/internal/core/domain"
)

// PredictionSubmitter is the inbound contract for recording submission orchestration.
type PredictionSubmitter interface {
	Submit(ctx context.Context, filename, contentType string, body io.Reader) (*domain.Prediction, error)
}

// PredictionReader is the inbound read model for prediction metadata/state.
type PredictionReader interface {
	GetByID(ctx context.Context, id string) (*domain.Prediction, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Prediction, error)
}

// PredictionProcessor is the inbound contract for asynchronous inference.
type PredictionProcessor interface {
	ProcessByID(ctx context.Context, predictionID string) error
}

// StaleSweeper fails records stuck in processing past their deadline.
type StaleSweeper interface {
	SweepStale(ctx context.Context) (int, error)
}
