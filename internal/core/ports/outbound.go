package ports

import (
	"context"
	"io"
	"time"

	"github.com/pulmonics/lung-sound-api/internal/core/domain"
)

// PredictionRepository persists and reads prediction record state. The Mark
// methods enforce the lifecycle guards: a transition from a status that no
// longer permits it returns domain.ErrInvalidTransition.
type PredictionRepository interface {
	Create(ctx context.Context, rec *domain.Prediction) error
	GetByID(ctx context.Context, id string) (*domain.Prediction, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Prediction, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, res domain.Result) error
	MarkFailed(ctx context.Context, id string, notes string) error
	FailStale(ctx context.Context, olderThan time.Duration, notes string) (int, error)
}

// ObjectStorage stores submitted recordings.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes dispatch events.
type MessageQueue interface {
	PublishPredictionQueued(ctx context.Context, predictionID string) error
	SubscribePredictionQueued(ctx context.Context, handler func(context.Context, string) error) error
}

// SoundClassifier scores a recording against the respiratory classes.
type SoundClassifier interface {
	Classify(ctx context.Context, sample domain.Sample) (domain.Result, error)
}

// RecordCache keeps settled records close to the API. Get returns (nil, nil)
// on a miss.
type RecordCache interface {
	Get(ctx context.Context, id string) (*domain.Prediction, error)
	Set(ctx context.Context, rec *domain.Prediction) error
}
