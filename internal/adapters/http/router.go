package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/pulmonics/lung-sound-api/internal/config"
	"github.com/pulmonics/lung-sound-api/internal/core/ports"
	"github.com/pulmonics/lung-sound-api/internal/observability/metrics"
)

// metricsService labels every api-side metric observation.
const metricsService = "api"

type Router struct {
	cfg       config.Config
	submitter ports.PredictionSubmitter
	reader    ports.PredictionReader
	metrics   *metrics.HTTPServerMetrics
	validate  func(http.Handler) http.Handler
}

func NewRouter(
	cfg config.Config,
	submitter ports.PredictionSubmitter,
	reader ports.PredictionReader,
	m *metrics.HTTPServerMetrics,
) *Router {
	rt := &Router{
		cfg:       cfg,
		submitter: submitter,
		reader:    reader,
		metrics:   m,
	}

	validate, err := newOpenAPIValidationMiddleware()
	if err != nil {
		slog.Error("openapi request validation disabled", "error", err)
	} else {
		rt.validate = validate
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/predictions", rt.predictionsCollection)
	mux.HandleFunc("/v1/predictions/export", rt.exportPredictions)
	mux.HandleFunc("/v1/predictions/", rt.getPredictionByID)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.validate != nil {
		handler = rt.validate(handler)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(metricsService, handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxConns, defaultBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) predictionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.submitPrediction(w, r)
	case http.MethodGet:
		rt.listPredictions(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) submitPrediction(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		rt.recordSubmission(false, 0)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("recording exceeds the %d byte upload limit", tooLarge.Limit),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	rec, err := rt.submitter.Submit(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		rt.recordSubmission(false, 0)
		writeDomainError(w, err)
		return
	}

	rt.recordSubmission(true, rec.SizeBytes)
	writeJSON(w, http.StatusCreated, rec)
}

func (rt *Router) listPredictions(w http.ResponseWriter, r *http.Request) {
	var limit int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
		return
	}

	recs, err := rt.reader.ListRecent(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (rt *Router) getPredictionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/predictions/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prediction id is required"})
		return
	}

	rec, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) recordSubmission(accepted bool, sizeBytes int64) {
	if rt.metrics != nil {
		rt.metrics.RecordSubmission(metricsService, accepted, sizeBytes)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
