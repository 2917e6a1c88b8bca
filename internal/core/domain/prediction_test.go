package domain

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusPending, StatusFailed}:       true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusFailed}:    true,
	}

	statuses := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	for _, from := range statuses {
		for _, to := range statuses {
			got := CanTransition(from, to)
			want := allowed[[2]Status{from, to}]
			if got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatusesAbsorbing(t *testing.T) {
	statuses := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	rng := rand.New(rand.NewSource(42))

	for walk := 0; walk < 200; walk++ {
		current := StatusPending
		terminalSeen := Status("")
		for step := 0; step < 20; step++ {
			target := statuses[rng.Intn(len(statuses))]
			if terminalSeen != "" {
				if CanTransition(current, target) {
					t.Fatalf("walk %d: transition %s -> %s allowed after terminal %s", walk, current, target, terminalSeen)
				}
				continue
			}
			if !CanTransition(current, target) {
				continue
			}
			current = target
			if current.Terminal() {
				terminalSeen = current
			}
		}
	}
}

func TestTransitionSources(t *testing.T) {
	cases := []struct {
		to   Status
		want []Status
	}{
		{StatusProcessing, []Status{StatusPending}},
		{StatusCompleted, []Status{StatusProcessing}},
		{StatusFailed, []Status{StatusPending, StatusProcessing}},
		{StatusPending, nil},
	}
	for _, tc := range cases {
		got := TransitionSources(tc.to)
		if len(got) != len(tc.want) {
			t.Fatalf("TransitionSources(%s) = %v, want %v", tc.to, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("TransitionSources(%s) = %v, want %v", tc.to, got, tc.want)
			}
		}
	}
}

func TestPredictionValidate(t *testing.T) {
	conf := 0.87
	probs := map[Label]float64{LabelCrackle: 0.05, LabelWheeze: 0.87, LabelBoth: 0.03, LabelNone: 0.05}

	cases := []struct {
		name    string
		rec     Prediction
		wantErr bool
	}{
		{"pending bare", Prediction{Status: StatusPending}, false},
		{"processing bare", Prediction{Status: StatusProcessing}, false},
		{"completed full", Prediction{Status: StatusCompleted, Label: LabelWheeze, Confidence: &conf, Probabilities: probs}, false},
		{"failed with notes", Prediction{Status: StatusFailed, Notes: "inference failed"}, false},
		{"completed missing label", Prediction{Status: StatusCompleted, Confidence: &conf, Probabilities: probs}, true},
		{"completed missing confidence", Prediction{Status: StatusCompleted, Label: LabelWheeze, Probabilities: probs}, true},
		{"completed missing probabilities", Prediction{Status: StatusCompleted, Label: LabelWheeze, Confidence: &conf}, true},
		{"pending with label", Prediction{Status: StatusPending, Label: LabelNone}, true},
		{"failed without notes", Prediction{Status: StatusFailed}, true},
		{"pending with notes", Prediction{Status: StatusPending, Notes: "oops"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rec.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestCompletedRecordJSONRoundTrip(t *testing.T) {
	conf := 0.87
	created := time.Date(2026, 5, 26, 9, 30, 0, 0, time.UTC)
	rec := Prediction{
		ID:          "0b9f4d1c-9a4e-4c8f-8a64-1f2d3e4a5b6c",
		Filename:    "breath.wav",
		ContentType: "audio/wav",
		SizeBytes:   48000,
		StoragePath: "0b9f4d1c_breath.wav",
		Status:      StatusCompleted,
		Label:       LabelWheeze,
		Confidence:  &conf,
		Probabilities: map[Label]float64{
			LabelCrackle: 0.05, LabelWheeze: 0.87, LabelBoth: 0.03, LabelNone: 0.05,
		},
		CreatedAt: created,
		UpdatedAt: created.Add(3 * time.Second),
	}

	raw, err := json.Marshal(&rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got Prediction
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got.ID != rec.ID || got.Filename != rec.Filename || got.Status != rec.Status {
		t.Fatalf("identity fields changed: %+v", got)
	}
	if got.Label != LabelWheeze {
		t.Fatalf("expected label wheeze, got %s", got.Label)
	}
	if got.Confidence == nil || *got.Confidence != 0.87 {
		t.Fatalf("expected confidence 0.87 exactly, got %v", got.Confidence)
	}
	for _, label := range Labels() {
		if got.Probabilities[label] != rec.Probabilities[label] {
			t.Fatalf("probability for %s changed: %v != %v", label, got.Probabilities[label], rec.Probabilities[label])
		}
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) || !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Fatalf("timestamps changed: %v %v", got.CreatedAt, got.UpdatedAt)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("round-tripped record invariants: %v", err)
	}
}

func TestResultValidate(t *testing.T) {
	full := func(mut func(*Result)) Result {
		r := Result{
			Label:      LabelWheeze,
			Confidence: 0.87,
			Probabilities: map[Label]float64{
				LabelCrackle: 0.05, LabelWheeze: 0.87, LabelBoth: 0.03, LabelNone: 0.05,
			},
		}
		if mut != nil {
			mut(&r)
		}
		return r
	}

	cases := []struct {
		name    string
		res     Result
		wantErr bool
	}{
		{"valid", full(nil), false},
		{"unknown label", full(func(r *Result) { r.Label = "cough" }), true},
		{"confidence above one", full(func(r *Result) { r.Confidence = 1.2 }), true},
		{"negative confidence", full(func(r *Result) { r.Confidence = -0.1 }), true},
		{"missing class", full(func(r *Result) { delete(r.Probabilities, LabelBoth) }), true},
		{"probability out of range", full(func(r *Result) { r.Probabilities[LabelNone] = 1.5 }), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.res.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
