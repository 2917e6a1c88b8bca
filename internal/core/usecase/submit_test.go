package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pulmonics/lung-sound-api/internal/core/domain"
)

type submitRepoFake struct {
	created     *domain.Prediction
	createErr   error
	failedID    string
	failedNotes string
}

func (f *submitRepoFake) Create(_ context.Context, rec *domain.Prediction) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyRec := *rec
	f.created = &copyRec
	return nil
}

func (f *submitRepoFake) GetByID(context.Context, string) (*domain.Prediction, error) {
	return nil, errors.New("not implemented")
}
func (f *submitRepoFake) ListRecent(context.Context, int) ([]domain.Prediction, error) {
	return nil, errors.New("not implemented")
}
func (f *submitRepoFake) MarkProcessing(context.Context, string) error {
	return errors.New("not implemented")
}
func (f *submitRepoFake) MarkCompleted(context.Context, string, domain.Result) error {
	return errors.New("not implemented")
}

func (f *submitRepoFake) MarkFailed(_ context.Context, id string, notes string) error {
	f.failedID = id
	f.failedNotes = notes
	return nil
}

func (f *submitRepoFake) FailStale(context.Context, time.Duration, string) (int, error) {
	return 0, errors.New("not implemented")
}

type submitStorageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *submitStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *submitStorageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type submitQueueFake struct {
	predictionID string
	err          error
}

func (f *submitQueueFake) PublishPredictionQueued(_ context.Context, predictionID string) error {
	if f.err != nil {
		return f.err
	}
	f.predictionID = predictionID
	return nil
}

func (f *submitQueueFake) SubscribePredictionQueued(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func TestSubmitSuccess(t *testing.T) {
	repo := &submitRepoFake{}
	storage := &submitStorageFake{}
	queue := &submitQueueFake{}
	uc := NewSubmitPredictionUseCase(repo, storage, queue)

	rec, err := uc.Submit(context.Background(), "breath 1.wav", "audio/wav", bytes.NewBufferString("RIFFdata"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("expected prediction id")
	}
	if rec.Status != domain.StatusPending {
		t.Fatalf("expected status pending, got %s", rec.Status)
	}
	if rec.SizeBytes != int64(len("RIFFdata")) {
		t.Fatalf("expected size %d, got %d", len("RIFFdata"), rec.SizeBytes)
	}
	if repo.created == nil {
		t.Fatalf("expected repo.Create call")
	}
	if queue.predictionID != rec.ID {
		t.Fatalf("expected queued prediction id %s, got %s", rec.ID, queue.predictionID)
	}
	if !strings.Contains(storage.savedKey, "_breath_1.wav") {
		t.Fatalf("expected sanitized key suffix, got %s", storage.savedKey)
	}
	if storage.savedBody != "RIFFdata" {
		t.Fatalf("expected saved body RIFFdata, got %s", storage.savedBody)
	}
}

func TestSubmitRejectsNonAudio(t *testing.T) {
	repo := &submitRepoFake{}
	storage := &submitStorageFake{}
	queue := &submitQueueFake{}
	uc := NewSubmitPredictionUseCase(repo, storage, queue)

	_, err := uc.Submit(context.Background(), "report.pdf", "application/pdf", bytes.NewBufferString("%PDF"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input kind, got %v", err)
	}
	if storage.savedKey != "" {
		t.Fatalf("expected no storage write, got key %s", storage.savedKey)
	}
}

func TestSubmitRejectsEmptyPayload(t *testing.T) {
	repo := &submitRepoFake{}
	storage := &submitStorageFake{}
	queue := &submitQueueFake{}
	uc := NewSubmitPredictionUseCase(repo, storage, queue)

	_, err := uc.Submit(context.Background(), "breath.wav", "audio/wav", bytes.NewReader(nil))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input kind, got %v", err)
	}
	if storage.savedKey != "" {
		t.Fatalf("expected no storage write, got key %s", storage.savedKey)
	}
	if repo.created != nil {
		t.Fatalf("expected no record for empty payload")
	}
}

func TestSubmitAcceptsContentTypeParams(t *testing.T) {
	repo := &submitRepoFake{}
	storage := &submitStorageFake{}
	queue := &submitQueueFake{}
	uc := NewSubmitPredictionUseCase(repo, storage, queue)

	_, err := uc.Submit(context.Background(), "breath.wav", "Audio/WAV; rate=16000", bytes.NewBufferString("RIFF"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}

func TestSubmitStorageError(t *testing.T) {
	repo := &submitRepoFake{}
	storage := &submitStorageFake{err: errors.New("disk full")}
	queue := &submitQueueFake{}
	uc := NewSubmitPredictionUseCase(repo, storage, queue)

	_, err := uc.Submit(context.Background(), "breath.wav", "audio/wav", bytes.NewBufferString("RIFF"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable kind, got %v", err)
	}
	if repo.created != nil {
		t.Fatalf("expected no record for failed storage write")
	}
}

func TestSubmitQueueErrorMarksFailed(t *testing.T) {
	repo := &submitRepoFake{}
	storage := &submitStorageFake{}
	queue := &submitQueueFake{err: errors.New("queue down")}
	uc := NewSubmitPredictionUseCase(repo, storage, queue)

	_, err := uc.Submit(context.Background(), "breath.wav", "audio/wav", bytes.NewBufferString("RIFF"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "publish dispatch event") {
		t.Fatalf("expected publish error, got %v", err)
	}
	if repo.created == nil {
		t.Fatalf("expected record created before publish")
	}
	if repo.failedID != repo.created.ID {
		t.Fatalf("expected record %s marked failed, got %s", repo.created.ID, repo.failedID)
	}
	if repo.failedNotes == "" {
		t.Fatalf("expected failure notes")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"breath 1.wav", "breath_1.wav"},
		{"../../etc/passwd", "passwd"},
		{"тест.wav", "____.wav"},
		{"", "recording.bin"},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
