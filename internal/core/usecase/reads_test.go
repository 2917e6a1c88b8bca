package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulmonics/lung-sound-api/internal/core/domain"
)

type readsRepoFake struct {
	rec       *domain.Prediction
	getErr    error
	getCalls  int
	listLimit int
	listErr   error
}

func (f *readsRepoFake) Create(context.Context, *domain.Prediction) error {
	return errors.New("not implemented")
}

func (f *readsRepoFake) GetByID(context.Context, string) (*domain.Prediction, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	copyRec := *f.rec
	return &copyRec, nil
}

func (f *readsRepoFake) ListRecent(_ context.Context, limit int) ([]domain.Prediction, error) {
	f.listLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []domain.Prediction{}, nil
}

func (f *readsRepoFake) MarkProcessing(context.Context, string) error {
	return errors.New("not implemented")
}
func (f *readsRepoFake) MarkCompleted(context.Context, string, domain.Result) error {
	return errors.New("not implemented")
}
func (f *readsRepoFake) MarkFailed(context.Context, string, string) error {
	return errors.New("not implemented")
}
func (f *readsRepoFake) FailStale(context.Context, time.Duration, string) (int, error) {
	return 0, errors.New("not implemented")
}

type recordCacheFake struct {
	store    map[string]*domain.Prediction
	getErr   error
	setErr   error
	setCalls int
}

func newRecordCacheFake() *recordCacheFake {
	return &recordCacheFake{store: map[string]*domain.Prediction{}}
}

func (f *recordCacheFake) Get(_ context.Context, id string) (*domain.Prediction, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.store[id], nil
}

func (f *recordCacheFake) Set(_ context.Context, rec *domain.Prediction) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	copyRec := *rec
	f.store[rec.ID] = &copyRec
	return nil
}

func completedRecord() *domain.Prediction {
	conf := 0.87
	return &domain.Prediction{
		ID:         "rec-1",
		Filename:   "breath.wav",
		Status:     domain.StatusCompleted,
		Label:      domain.LabelWheeze,
		Confidence: &conf,
		Probabilities: map[domain.Label]float64{
			domain.LabelCrackle: 0.05,
			domain.LabelWheeze:  0.87,
			domain.LabelBoth:    0.03,
			domain.LabelNone:    0.05,
		},
	}
}

func TestGetByIDCachesSettledRecord(t *testing.T) {
	repo := &readsRepoFake{rec: completedRecord()}
	cache := newRecordCacheFake()
	uc := NewReadPredictionsUseCase(repo, cache)

	first, err := uc.GetByID(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if first.Status != domain.StatusCompleted {
		t.Fatalf("expected completed record, got %s", first.Status)
	}
	if cache.setCalls != 1 {
		t.Fatalf("expected one cache fill, got %d", cache.setCalls)
	}

	second, err := uc.GetByID(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if second.Label != domain.LabelWheeze {
		t.Fatalf("expected cached wheeze record, got %s", second.Label)
	}
	if repo.getCalls != 1 {
		t.Fatalf("expected second read served from cache, repo calls = %d", repo.getCalls)
	}
}

func TestGetByIDDoesNotCacheInFlight(t *testing.T) {
	repo := &readsRepoFake{rec: &domain.Prediction{ID: "rec-1", Status: domain.StatusProcessing}}
	cache := newRecordCacheFake()
	uc := NewReadPredictionsUseCase(repo, cache)

	if _, err := uc.GetByID(context.Background(), "rec-1"); err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if cache.setCalls != 0 {
		t.Fatalf("expected no cache fill for in-flight record, got %d", cache.setCalls)
	}
}

func TestGetByIDFallsBackOnCacheError(t *testing.T) {
	repo := &readsRepoFake{rec: completedRecord()}
	cache := newRecordCacheFake()
	cache.getErr = errors.New("redis down")
	uc := NewReadPredictionsUseCase(repo, cache)

	rec, err := uc.GetByID(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if rec.ID != "rec-1" {
		t.Fatalf("expected repository record, got %s", rec.ID)
	}
	if repo.getCalls != 1 {
		t.Fatalf("expected repository read, got %d calls", repo.getCalls)
	}
}

func TestGetByIDToleratesCacheFillError(t *testing.T) {
	repo := &readsRepoFake{rec: completedRecord()}
	cache := newRecordCacheFake()
	cache.setErr = errors.New("redis down")
	uc := NewReadPredictionsUseCase(repo, cache)

	if _, err := uc.GetByID(context.Background(), "rec-1"); err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
}

func TestGetByIDWithoutCache(t *testing.T) {
	repo := &readsRepoFake{rec: completedRecord()}
	uc := NewReadPredictionsUseCase(repo, nil)

	if _, err := uc.GetByID(context.Background(), "rec-1"); err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo := &readsRepoFake{getErr: domain.WrapError(domain.ErrRecordNotFound, "select prediction", errors.New("no rows"))}
	uc := NewReadPredictionsUseCase(repo, nil)

	_, err := uc.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected not found kind, got %v", err)
	}
}

func TestListRecentRepositoryError(t *testing.T) {
	repo := &readsRepoFake{listErr: errors.New("db down")}
	uc := NewReadPredictionsUseCase(repo, nil)

	if _, err := uc.ListRecent(context.Background(), 10); err == nil {
		t.Fatalf("expected error")
	}
}

func TestListRecentClampsLimit(t *testing.T) {
	cases := []struct {
		limit int
		want  int
	}{
		{0, 20},
		{-3, 20},
		{5, 5},
		{100, 100},
		{500, 100},
	}
	for _, tc := range cases {
		repo := &readsRepoFake{}
		uc := NewReadPredictionsUseCase(repo, nil)
		if _, err := uc.ListRecent(context.Background(), tc.limit); err != nil {
			t.Fatalf("ListRecent(%d) error = %v", tc.limit, err)
		}
		if repo.listLimit != tc.want {
			t.Errorf("ListRecent(%d) passed limit %d, want %d", tc.limit, repo.listLimit, tc.want)
		}
	}
}
