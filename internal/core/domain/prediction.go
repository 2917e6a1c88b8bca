package domain

import (
	"fmt"
	"time"
)

type Label string

const (
	LabelCrackle Label = "crackle"
	LabelWheeze  Label = "wheeze"
	LabelBoth    Label = "both"
	LabelNone    Label = "none"
)

// Labels returns the four classes in model output order.
func Labels() []Label {
	return []Label{LabelCrackle, LabelWheeze, LabelBoth, LabelNone}
}

func (l Label) Valid() bool {
	switch l {
	case LabelCrackle, LabelWheeze, LabelBoth, LabelNone:
		return true
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is defined out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a record may move from one status to the
// other. The lifecycle only moves forward: pending may be claimed for
// processing or failed outright at dispatch-time validation, processing ends
// in completed or failed, and the two terminal statuses are absorbing.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// TransitionSources lists the statuses a record may hold immediately before
// reaching to. Repositories compile this into update guards.
func TransitionSources(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Prediction tracks one submitted lung sound recording through to its
// classification outcome. Label, Confidence and Probabilities are set iff the
// record completed; Notes is set iff it failed.
type Prediction struct {
	ID            string            `json:"id"`
	Filename      string            `json:"filename"`
	ContentType   string            `json:"content_type"`
	SizeBytes     int64             `json:"file_size"`
	StoragePath   string            `json:"storage_path"`
	Status        Status            `json:"status"`
	Label         Label             `json:"label,omitempty"`
	Confidence    *float64          `json:"confidence,omitempty"`
	Probabilities map[Label]float64 `json:"probabilities,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (p *Prediction) Terminal() bool {
	return p.Status.Terminal()
}

// Validate checks the field-presence invariants tied to the record status.
func (p *Prediction) Validate() error {
	completed := p.Status == StatusCompleted
	if completed != (p.Label != "") {
		return fmt.Errorf("label set=%v for status %s", p.Label != "", p.Status)
	}
	if completed != (p.Confidence != nil) {
		return fmt.Errorf("confidence set=%v for status %s", p.Confidence != nil, p.Status)
	}
	if completed != (p.Probabilities != nil) {
		return fmt.Errorf("probabilities set=%v for status %s", p.Probabilities != nil, p.Status)
	}
	failed := p.Status == StatusFailed
	if !failed && p.Notes != "" {
		return fmt.Errorf("notes set for status %s", p.Status)
	}
	if failed && p.Notes == "" {
		return fmt.Errorf("failed record without notes")
	}
	return nil
}

// Sample is the payload handed to the classifier collaborator.
type Sample struct {
	Filename    string
	ContentType string
	Audio       []byte
}

// Result is the classifier verdict for one sample.
type Result struct {
	Label         Label             `json:"label"`
	Confidence    float64           `json:"confidence"`
	Probabilities map[Label]float64 `json:"probabilities"`
}

// Validate rejects results that would break the completed-record contract:
// unknown label, out-of-range scores, or a probability map missing a class.
func (r Result) Validate() error {
	if !r.Label.Valid() {
		return fmt.Errorf("unknown label %q", r.Label)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of [0,1]", r.Confidence)
	}
	for _, label := range Labels() {
		p, ok := r.Probabilities[label]
		if !ok {
			return fmt.Errorf("probabilities missing label %q", label)
		}
		if p < 0 || p > 1 {
			return fmt.Errorf("probability %v for %q out of [0,1]", p, label)
		}
	}
	return nil
}
