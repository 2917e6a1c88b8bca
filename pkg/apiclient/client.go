// Package apiclient is the Go client for the lung sound prediction API.
// It submits recordings and resolves their asynchronous classification
// outcome with a bounded polling protocol.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound marks a lookup for a record the API does not know. Directly
// after submission this usually means store propagation lag rather than a
// lost record, which is why Resolve retries it briefly.
var ErrNotFound = errors.New("prediction not found")

type Client struct {
	baseURL    string
	httpClient *http.Client

	transientWait time.Duration
	pollWait      time.Duration

	history *history
}

func New(baseURL string) *Client {
	return NewWithOptions(baseURL, Options{})
}

type Options struct {
	// HTTPClient overrides the default client (30s request timeout).
	HTTPClient *http.Client
	// TransientWait is the pause before retrying a not-found or network
	// failure. Defaults to 1s.
	TransientWait time.Duration
	// PollWait is the pause between polls of a non-terminal record.
	// Defaults to 2s.
	PollWait time.Duration
}

func NewWithOptions(baseURL string, options Options) *Client {
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	transientWait := options.TransientWait
	if transientWait <= 0 {
		transientWait = time.Second
	}
	pollWait := options.PollWait
	if pollWait <= 0 {
		pollWait = 2 * time.Second
	}

	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    httpClient,
		transientWait: transientWait,
		pollWait:      pollWait,
		history:       &history{},
	}
}

// Submit uploads one audio recording and returns the created record. The
// record starts out pending; Resolve waits for its outcome.
func (c *Client) Submit(ctx context.Context, filename, contentType string, audio io.Reader) (*Record, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		return nil, newStatusError(res)
	}

	var rec Record
	if err := json.NewDecoder(res.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode created record: %w", err)
	}
	return &rec, nil
}

// Prediction fetches one record by id.
func (c *Client) Prediction(ctx context.Context, id string) (*Record, error) {
	var rec Record
	if err := c.getJSON(ctx, "/v1/predictions/"+url.PathEscape(id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Recent lists the most recently submitted records, newest first. A
// limit <= 0 leaves the server default in place.
func (c *Client) Recent(ctx context.Context, limit int) ([]Record, error) {
	path := "/v1/predictions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var recs []Record
	if err := c.getJSON(ctx, path, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// History returns the locally kept terminal records, newest first.
func (c *Client) History() []Record {
	return c.history.snapshot()
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if res.StatusCode >= 300 {
		return newStatusError(res)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// StatusError carries a non-2xx API response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api responded %d", e.StatusCode)
	}
	return fmt.Sprintf("api responded %d: %s", e.StatusCode, e.Message)
}

func newStatusError(res *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 2048))

	var envelope struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		message = envelope.Error
	}
	return &StatusError{StatusCode: res.StatusCode, Message: message}
}
