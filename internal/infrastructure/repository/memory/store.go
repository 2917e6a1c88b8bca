package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pulmonics/lung-sound-api/internal/core/domain"
)

// Store is an in-memory PredictionRepository with the same transition guards
// as the Postgres implementation. It backs tests and single-process setups.
type Store struct {
	mu   sync.RWMutex
	recs map[string]*domain.Prediction
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		recs: make(map[string]*domain.Prediction),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Create(_ context.Context, rec *domain.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recs[rec.ID]; ok {
		return fmt.Errorf("insert prediction: duplicate id %s", rec.ID)
	}
	s.recs[rec.ID] = clone(rec)
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "select prediction", fmt.Errorf("id=%s", id))
	}
	return clone(rec), nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]domain.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Prediction, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, *clone(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.guarded(id, domain.StatusProcessing)
	if err != nil {
		return err
	}
	rec.Status = domain.StatusProcessing
	rec.UpdatedAt = s.now()
	return nil
}

func (s *Store) MarkCompleted(_ context.Context, id string, res domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.guarded(id, domain.StatusCompleted)
	if err != nil {
		return err
	}
	conf := res.Confidence
	rec.Status = domain.StatusCompleted
	rec.Label = res.Label
	rec.Confidence = &conf
	rec.Probabilities = cloneProbabilities(res.Probabilities)
	rec.UpdatedAt = s.now()
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id string, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.guarded(id, domain.StatusFailed)
	if err != nil {
		return err
	}
	rec.Status = domain.StatusFailed
	rec.Notes = notes
	rec.UpdatedAt = s.now()
	return nil
}

func (s *Store) FailStale(_ context.Context, olderThan time.Duration, notes string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	n := 0
	for _, rec := range s.recs {
		if rec.Status == domain.StatusProcessing && rec.UpdatedAt.Before(cutoff) {
			rec.Status = domain.StatusFailed
			rec.Notes = notes
			rec.UpdatedAt = s.now()
			n++
		}
	}
	return n, nil
}

func (s *Store) guarded(id string, to domain.Status) (*domain.Prediction, error) {
	rec, ok := s.recs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "select prediction status", fmt.Errorf("id=%s", id))
	}
	if !domain.CanTransition(rec.Status, to) {
		return nil, domain.WrapError(domain.ErrInvalidTransition, "guard status transition",
			fmt.Errorf("%s to %s", rec.Status, to))
	}
	return rec, nil
}

func clone(rec *domain.Prediction) *domain.Prediction {
	out := *rec
	out.Probabilities = cloneProbabilities(rec.Probabilities)
	if rec.Confidence != nil {
		conf := *rec.Confidence
		out.Confidence = &conf
	}
	return &out
}

func cloneProbabilities(in map[domain.Label]float64) map[domain.Label]float64 {
	if in == nil {
		return nil
	}
	out := make(map[domain.Label]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
