package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pulmonics/lung-sound-api/internal/core/domain"
	"github.com/pulmonics/lung-sound-api/internal/core/ports"
)

// staleNotes is recorded on records reclaimed by the sweep.
const staleNotes = "processing exceeded deadline"

type ProcessPredictionUseCase struct {
	repo       ports.PredictionRepository
	storage    ports.ObjectStorage
	classifier ports.SoundClassifier
	staleAfter time.Duration
}

func NewProcessPredictionUseCase(
	repo ports.PredictionRepository,
	storage ports.ObjectStorage,
	classifier ports.SoundClassifier,
	staleAfter time.Duration,
) *ProcessPredictionUseCase {
	return &ProcessPredictionUseCase{
		repo:       repo,
		storage:    storage,
		classifier: classifier,
		staleAfter: staleAfter,
	}
}

func (uc *ProcessPredictionUseCase) ProcessByID(ctx context.Context, predictionID string) error {
	rec, err := uc.loadRecord(ctx, predictionID)
	if err != nil {
		return err
	}
	if rec.Terminal() {
		// Redelivered event for a settled record.
		return nil
	}

	sample, err := uc.fetchSample(ctx, rec)
	if err != nil {
		if failErr := uc.markFailed(ctx, predictionID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.claim(ctx, predictionID); err != nil {
		if domain.IsKind(err, domain.ErrInvalidTransition) {
			// Another worker holds the record.
			return nil
		}
		return fmt.Errorf("set status=processing: %w", err)
	}

	res, err := uc.classify(ctx, sample)
	if err != nil {
		if failErr := uc.markFailed(ctx, predictionID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.MarkCompleted(ctx, predictionID, res); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}

	return nil
}

// SweepStale fails records stuck in processing longer than the configured
// deadline. Reclaimed records are not requeued: a stuck worker may still hold
// the event, and a second dispatch would break the single-delivery contract.
func (uc *ProcessPredictionUseCase) SweepStale(ctx context.Context) (int, error) {
	n, err := uc.repo.FailStale(ctx, uc.staleAfter, staleNotes)
	if err != nil {
		return 0, fmt.Errorf("fail stale records: %w", err)
	}
	return n, nil
}

func (uc *ProcessPredictionUseCase) loadRecord(ctx context.Context, predictionID string) (*domain.Prediction, error) {
	rec, err := uc.repo.GetByID(ctx, predictionID)
	if err != nil {
		return nil, fmt.Errorf("fetch prediction by id: %w", err)
	}
	return rec, nil
}

func (uc *ProcessPredictionUseCase) fetchSample(ctx context.Context, rec *domain.Prediction) (domain.Sample, error) {
	rc, err := uc.storage.Open(ctx, rec.StoragePath)
	if err != nil {
		return domain.Sample{}, domain.WrapError(domain.ErrStorageUnavailable, "open stored recording", err)
	}
	defer rc.Close()

	audio, err := io.ReadAll(rc)
	if err != nil {
		return domain.Sample{}, domain.WrapError(domain.ErrStorageUnavailable, "read stored recording", err)
	}
	if len(audio) == 0 {
		return domain.Sample{}, domain.WrapError(domain.ErrInvalidInput, "validate recording", errors.New("empty audio payload"))
	}

	return domain.Sample{
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
		Audio:       audio,
	}, nil
}

func (uc *ProcessPredictionUseCase) claim(ctx context.Context, predictionID string) error {
	return uc.repo.MarkProcessing(ctx, predictionID)
}

func (uc *ProcessPredictionUseCase) classify(ctx context.Context, sample domain.Sample) (domain.Result, error) {
	res, err := uc.classifier.Classify(ctx, sample)
	if err != nil {
		return domain.Result{}, fmt.Errorf("classify recording: %w", err)
	}
	if err := res.Validate(); err != nil {
		return domain.Result{}, domain.WrapError(domain.ErrInvalidInput, "classify recording", err)
	}
	return res, nil
}

func (uc *ProcessPredictionUseCase) markFailed(ctx context.Context, predictionID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.repo.MarkFailed(ctx, predictionID, processErr.Error())
}
