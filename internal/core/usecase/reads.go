package usecase

import (
	"context"
	"fmt"

	"github.com/pulmonics/lung-sound-api/internal/core/domain"
	"github.com/pulmonics/lung-sound-api/internal/core/ports"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ReadPredictionsUseCase serves the polling surface. The cache is advisory:
// it may be nil, and cache failures degrade to repository reads.
type ReadPredictionsUseCase struct {
	repo  ports.PredictionRepository
	cache ports.RecordCache
}

func NewReadPredictionsUseCase(repo ports.PredictionRepository, cache ports.RecordCache) *ReadPredictionsUseCase {
	return &ReadPredictionsUseCase{
		repo:  repo,
		cache: cache,
	}
}

func (uc *ReadPredictionsUseCase) GetByID(ctx context.Context, id string) (*domain.Prediction, error) {
	if uc.cache != nil {
		if rec, err := uc.cache.Get(ctx, id); err == nil && rec != nil {
			return rec, nil
		}
	}

	rec, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch prediction by id: %w", err)
	}

	// Only settled records are cached; in-flight statuses still change under
	// the reader.
	if uc.cache != nil && rec.Terminal() {
		_ = uc.cache.Set(ctx, rec)
	}

	return rec, nil
}

func (uc *ReadPredictionsUseCase) ListRecent(ctx context.Context, limit int) ([]domain.Prediction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	recs, err := uc.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent predictions: %w", err)
	}
	return recs, nil
}
