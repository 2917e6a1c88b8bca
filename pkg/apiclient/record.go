package apiclient

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the record will not change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is the client-side view of a prediction record.
type Record struct {
	ID            string
	Filename      string
	ContentType   string
	SizeBytes     int64
	Status        Status
	Label         string
	Confidence    *float64
	Probabilities map[string]float64
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UnmarshalJSON normalizes the identifier at the wire boundary: some
// deployments front the API with stores that rename "id" to "_id", and the
// client accepts either spelling.
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID            string             `json:"id"`
		AltID         string             `json:"_id"`
		Filename      string             `json:"filename"`
		ContentType   string             `json:"content_type"`
		SizeBytes     int64              `json:"file_size"`
		Status        Status             `json:"status"`
		Label         string             `json:"label"`
		Confidence    *float64           `json:"confidence"`
		Probabilities map[string]float64 `json:"probabilities"`
		Notes         string             `json:"notes"`
		CreatedAt     time.Time          `json:"created_at"`
		UpdatedAt     time.Time          `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	r.ID = wire.ID
	if r.ID == "" {
		r.ID = wire.AltID
	}
	r.Filename = wire.Filename
	r.ContentType = wire.ContentType
	r.SizeBytes = wire.SizeBytes
	r.Status = wire.Status
	r.Label = wire.Label
	r.Confidence = wire.Confidence
	r.Probabilities = wire.Probabilities
	r.Notes = wire.Notes
	r.CreatedAt = wire.CreatedAt
	r.UpdatedAt = wire.UpdatedAt
	return nil
}
