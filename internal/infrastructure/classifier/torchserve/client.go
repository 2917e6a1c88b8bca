package torchserve

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/pulmonics/lung-sound-api/internal/core/domain"
	"github.com/pulmonics/lung-sound-api/internal/infrastructure/resilience"
)

// Client scores recordings against a TorchServe model. The model endpoint
// returns either a label-to-probability object or a raw logit array in class
// order; both map onto domain.Result.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model string) *Client {
	return NewWithOptions(baseURL, model, Options{})
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func NewWithOptions(baseURL, model string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

func (c *Client) Classify(ctx context.Context, sample domain.Sample) (domain.Result, error) {
	var out domain.Result
	call := func(ctx context.Context) error {
		res, err := c.predict(ctx, sample)
		if err != nil {
			return err
		}
		out = res
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "torchserve.predict", call, classifyTorchServeError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.Result{}, wrapTemporaryIfNeeded("classify recording", err)
	}
	return out, nil
}

func (c *Client) predict(ctx context.Context, sample domain.Sample) (domain.Result, error) {
	contentType := sample.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var raw json.RawMessage
	path := "/predictions/" + url.PathEscape(c.model)
	if err := c.postAudio(ctx, path, contentType, sample.Audio, &raw, "predict"); err != nil {
		return domain.Result{}, err
	}
	return parseResult(raw)
}

func parseResult(raw json.RawMessage) (domain.Result, error) {
	var byLabel map[string]float64
	if err := json.Unmarshal(raw, &byLabel); err == nil {
		return resultFromScores(byLabel)
	}

	var logits []float64
	if err := json.Unmarshal(raw, &logits); err == nil {
		return resultFromLogits(logits)
	}

	return domain.Result{}, fmt.Errorf("unrecognized model response: %s", truncate(raw))
}

func resultFromScores(byLabel map[string]float64) (domain.Result, error) {
	probs := make(map[domain.Label]float64, len(byLabel))
	for name, score := range byLabel {
		label := domain.Label(name)
		if !label.Valid() {
			return domain.Result{}, fmt.Errorf("model returned unknown label %q", name)
		}
		probs[label] = score
	}

	var top domain.Label
	best := math.Inf(-1)
	for _, label := range domain.Labels() {
		score, ok := probs[label]
		if !ok {
			return domain.Result{}, fmt.Errorf("model response missing label %q", label)
		}
		if score > best {
			best = score
			top = label
		}
	}

	return domain.Result{Label: top, Confidence: best, Probabilities: probs}, nil
}

// resultFromLogits softmaxes a raw score vector ordered like domain.Labels.
func resultFromLogits(logits []float64) (domain.Result, error) {
	labels := domain.Labels()
	if len(logits) != len(labels) {
		return domain.Result{}, fmt.Errorf("model returned %d scores for %d classes", len(logits), len(labels))
	}

	shift := floats.Max(logits)
	probs := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		probs[i] = math.Exp(v - shift)
		sum += probs[i]
	}
	floats.Scale(1/sum, probs)

	byLabel := make(map[domain.Label]float64, len(labels))
	for i, label := range labels {
		byLabel[label] = probs[i]
	}
	top := labels[floats.MaxIdx(probs)]

	return domain.Result{Label: top, Confidence: byLabel[top], Probabilities: byLabel}, nil
}

func truncate(raw []byte) string {
	const max = 200
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
