package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/grounded-rag/internal/config"
	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
	"github.com/kirillkom/grounded-rag/internal/core/usecase"
	"github.com/kirillkom/grounded-rag/internal/observability/metrics"
)

const (
	defaultServiceName = "grag-api"
	queryEndpoint      = "/v1/rag/query"
	readinessTimeout   = 2 * time.Second
)

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Router struct {
	cfg      config.Config
	ingestUC ports.DocumentIngestor
	queryUC  ports.QueryService
	docs     ports.DocumentReader

	service    string
	metrics    *metrics.HTTPServerMetrics
	readiness  map[string]ReadinessCheck
	checkOrder []string
}

type Option func(*Router)

func WithMetrics(service string, m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) {
		if strings.TrimSpace(service) != "" {
			rt.service = service
		}
		rt.metrics = m
	}
}

func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(rt *Router) {
		if check == nil {
			return
		}
		if _, exists := rt.readiness[name]; !exists {
			rt.checkOrder = append(rt.checkOrder, name)
		}
		rt.readiness[name] = check
	}
}

func NewRouter(
	cfg config.Config,
	ingestUC ports.DocumentIngestor,
	queryUC ports.QueryService,
	docs ports.DocumentReader,
	opts ...Option,
) *Router {
	rt := &Router{
		cfg:       cfg,
		ingestUC:  ingestUC,
		queryUC:   queryUC,
		docs:      docs,
		service:   defaultServiceName,
		readiness: make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)

	r.Get("/healthz", rt.healthz)
	r.Get("/readyz", rt.readyz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
		})
		v1.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
		})
		v1.Use(func(next http.Handler) http.Handler {
			return bearerAuthMiddleware(next, rt.cfg.APIKey)
		})

		v1.Post("/documents", rt.uploadDocument)
		v1.Get("/documents/{id}", rt.getDocumentByID)
		v1.With(validateQueryRequest).Post("/rag/query", rt.queryRAG)
	})

	if rt.metrics == nil {
		return r
	}
	return rt.metrics.Middleware(rt.service, r)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(rt.checkOrder))
	for _, name := range rt.checkOrder {
		if err := rt.readiness[name](ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.APIMaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.APIMaxUploadBytes)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMessage(w, r, http.StatusRequestEntityTooLarge, "uploaded file is too large")
			return
		}
		writeErrorMessage(w, r, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.ingestUC.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeErrorMessage(w, r, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type queryRequest struct {
	Query          string                `json:"query"`
	ApplicantFacts domain.ApplicantFacts `json:"applicant_facts"`
	InferFacts     bool                  `json:"infer_facts"`
	TopKPerQuery   int                   `json:"top_k_per_query"`
	TopKFinal      int                   `json:"top_k_final"`
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := rt.queryUC.Answer(r.Context(), domain.QueryRequest{
		Query:        req.Query,
		Facts:        usecase.ResolveApplicantFacts(req.Query, req.ApplicantFacts, req.InferFacts),
		TopKPerQuery: req.TopKPerQuery,
		TopKFinal:    req.TopKFinal,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAnswer(rt.service, queryEndpoint, answerOutcome(result), len(result.Evidence), time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func answerOutcome(result *domain.QueryResult) string {
	switch {
	case result.Diagnostics.RankingDegraded || result.Diagnostics.SynthesisDegraded:
		return "degraded"
	case len(result.Evidence) == 0:
		return "not_found"
	default:
		return "answered"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
