package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"batch-disburser/internal/domain"
	"batch-disburser/internal/metrics"
	"batch-disburser/internal/usecase"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler exposes the ask, batch and auth services over HTTP.
type Handler struct {
	asks     *usecase.AskService
	batches  *usecase.BatchService
	auth     *usecase.AuthService
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

// NewHandler creates a Handler and initializes the validator.
func NewHandler(asks *usecase.AskService, batches *usecase.BatchService, auth *usecase.AuthService, logger *slog.Logger) *Handler {
	validate := validator.New()

	_ = validate.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		_, ok := new(big.Rat).SetString(fl.Field().String())
		return ok
	})

	return &Handler{
		asks:     asks,
		batches:  batches,
		auth:     auth,
		logger:   logger.With("component", "api-handler"),
		validate: validate,
		tracer:   otel.Tracer("batch-disburser-api"),
	}
}

// A helper struct to capture the status code
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// RegisterRoutes registers all API routes to the http.ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/ask", h.instrument("/ask", http.HandlerFunc(h.handleAsk)))
	mux.Handle("/results/", h.instrument("/results/{run_id}", http.HandlerFunc(h.handleResult)))
	mux.Handle("/artifacts/", h.instrument("/artifacts/{id}", http.HandlerFunc(h.handleArtifact)))
	mux.Handle("/batches", h.instrument("/batches", http.HandlerFunc(h.handleBatches)))
	mux.Handle("/batches/", h.instrument("/batches/{name}/history", http.HandlerFunc(h.handleBatchHistory)))
	mux.Handle("/auth/begin", h.instrument("/auth/begin", http.HandlerFunc(h.handleAuthBegin)))
	mux.Handle("/auth/callback", h.instrument("/auth/callback", http.HandlerFunc(h.handleAuthCallback)))
}

// instrument wraps a handler with a server span and request metrics.
func (h *Handler) instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method+" "+path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		r = r.WithContext(ctx)

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(iw, r)

		metrics.HttpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(iw.statusCode)).Inc()

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})
}

// handleAsk dispatches a question job (POST /ask).
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "handler.Ask")
	defer span.End()

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "Failed to decode request body")
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if ok := h.validateRequest(w, span, req); !ok {
		return
	}

	runID, err := h.asks.Ask(ctx, req.Question, req.Emails)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		case errors.Is(err, domain.ErrPrecondition):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			span.SetStatus(codes.Error, "Failed to dispatch ask job")
			h.logger.Error("error dispatching ask job", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	span.SetAttributes(attribute.String("job.run_id", runID))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"run_id": runID})
}

// handleResult polls a dispatched run once (GET /results/{run_id}).
func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	runID := strings.TrimPrefix(r.URL.Path, "/results/")
	if runID == "" || strings.Contains(runID, "/") {
		http.NotFound(w, r)
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "handler.Result",
		trace.WithAttributes(attribute.String("job.run_id", runID)))
	defer span.End()

	result, err := h.asks.Result(ctx, runID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrArtifactMissing) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		span.SetStatus(codes.Error, "Failed to poll run result")
		h.logger.Error("error polling run result", "run_id", runID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleArtifact deletes a consumed artifact (DELETE /artifacts/{id}).
func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	artifactID := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if artifactID == "" || strings.Contains(artifactID, "/") {
		http.NotFound(w, r)
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "handler.DeleteArtifact",
		trace.WithAttributes(attribute.String("artifact.id", artifactID)))
	defer span.End()

	if err := h.asks.Cleanup(ctx, artifactID); err != nil {
		span.SetStatus(codes.Error, "Failed to delete artifact")
		span.RecordError(err)
		h.logger.Error("error deleting artifact", "artifact_id", artifactID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBatches enqueues a batch for execution (POST /batches).
func (h *Handler) handleBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "handler.SubmitBatch")
	defer span.End()

	var req SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "Failed to decode request body")
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if ok := h.validateRequest(w, span, req); !ok {
		return
	}

	batchReq := req.ToDomainRequest()
	span.SetAttributes(
		attribute.String("batch.name", batchReq.Name),
		attribute.String("batch.operation", string(batchReq.OperationKind)),
		attribute.Int("batch.recipients", len(batchReq.Recipients)),
	)

	batchID, err := h.batches.Submit(ctx, batchReq)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrPrecondition) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		span.SetStatus(codes.Error, "Failed to enqueue batch")
		h.logger.Error("error enqueueing batch", "batch_name", batchReq.Name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"batch_id": batchID})
}

// handleBatchHistory lists past executions for a batch name
// (GET /batches/{name}/history).
func (h *Handler) handleBatchHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// e.g. /batches/payroll/history -> ["batches", "payroll", "history"]
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) != 3 || pathParts[0] != "batches" || pathParts[2] != "history" {
		http.NotFound(w, r)
		return
	}
	name := pathParts[1]

	ctx, span := h.tracer.Start(r.Context(), "handler.BatchHistory",
		trace.WithAttributes(attribute.String("batch.name", name)))
	defer span.End()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20 // default and max page size
	}
	span.SetAttributes(attribute.Int("page", page), attribute.Int("page_size", pageSize))

	history, err := h.batches.History(ctx, name, page, pageSize)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to list batch history")
		span.RecordError(err)
		h.logger.Error("error listing batch history", "batch_name", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

// handleAuthBegin starts an auth handshake (GET /auth/begin).
func (h *Handler) handleAuthBegin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "handler.AuthBegin")
	defer span.End()

	state, _, err := h.auth.Begin(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to begin auth handshake")
		span.RecordError(err)
		h.logger.Error("error beginning auth handshake", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// The verifier stays server side until the callback presents the
	// matching state.
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"state": state})
}

// handleAuthCallback completes a handshake and consumes its session
// (GET /auth/callback?state=...).
func (h *Handler) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		http.Error(w, "state query parameter is required", http.StatusBadRequest)
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "handler.AuthCallback")
	defer span.End()

	verifier, err := h.auth.Complete(ctx, state)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, "unknown or expired state", http.StatusNotFound)
			return
		}
		span.SetStatus(codes.Error, "Failed to complete auth handshake")
		h.logger.Error("error completing auth handshake", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"verifier": verifier})
}

// validateRequest runs struct validation and writes the error response
// on failure.
func (h *Handler) validateRequest(w http.ResponseWriter, span trace.Span, req any) bool {
	if err := h.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		span.RecordError(err)
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors,
				"Field '"+err.Field()+"' failed on the '"+err.Tag()+"' tag.",
			)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":   "Validation failed",
			"details": validationErrors,
		})
		return false
	}
	return true
}
