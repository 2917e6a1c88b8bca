package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulmonics/lung-sound-api/internal/core/domain"
	"github.com/pulmonics/lung-sound-api/internal/core/ports"
)

type SubmitPredictionUseCase struct {
	repo    ports.PredictionRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewSubmitPredictionUseCase(
	repo ports.PredictionRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *SubmitPredictionUseCase {
	return &SubmitPredictionUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *SubmitPredictionUseCase) Submit(
	ctx context.Context,
	filename, contentType string,
	body io.Reader,
) (*domain.Prediction, error) {
	if !isAudioContentType(contentType) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate content type",
			fmt.Errorf("unsupported content type %q", contentType))
	}

	buffered := bufio.NewReader(body)
	if _, err := buffered.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "validate payload",
				errors.New("empty audio payload"))
		}
		return nil, domain.WrapError(domain.ErrInvalidInput, "read payload", err)
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	counted := &countingReader{r: buffered}
	if err := uc.storage.Save(ctx, storageKey, counted); err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "save recording", err)
	}

	rec := &domain.Prediction{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   counted.n,
		StoragePath: storageKey,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create prediction record: %w", err)
	}

	if err := uc.queue.PublishPredictionQueued(ctx, rec.ID); err != nil {
		if failErr := uc.repo.MarkFailed(ctx, rec.ID, "dispatch enqueue failed"); failErr != nil {
			return nil, fmt.Errorf("publish dispatch event: %w; mark failed status: %v", err, failErr)
		}
		return nil, fmt.Errorf("publish dispatch event: %w", err)
	}

	return rec, nil
}

// isAudioContentType mirrors the submission gate: any audio/* media type is
// accepted, payload readability is checked again at dispatch time.
func isAudioContentType(ct string) bool {
	mediaType := ct
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "audio")
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "recording.bin"
	}
	return base
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
