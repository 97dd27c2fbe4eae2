package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
	logpkg "github.com/kailas-cloud/rowsearch/internal/logger"
	healthuc "github.com/kailas-cloud/rowsearch/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/rowsearch/internal/usecase/indexing"
	searchuc "github.com/kailas-cloud/rowsearch/internal/usecase/search"
	"github.com/kailas-cloud/rowsearch/internal/version"
)

const maxBodyBytes = 8 << 20

// RowWriter applies mutations to the row store before they are indexed.
type RowWriter interface {
	Apply(ctx context.Context, m *row.Mutation) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the search and sync API.
type Server struct {
	rows          RowWriter
	indexing      *indexinguc.Service
	search        *searchuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	now           func() time.Time
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	rows RowWriter,
	indexing *indexinguc.Service,
	search *searchuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		rows:     rows,
		indexing: indexing,
		search:   search,
		health:   health,
		logger:   logger,
		now:      time.Now,
	}
	s.errorHandlers = []errorHandler{
		validationHandler(domain.ErrInvalidMutation),
		validationHandler(domain.ErrInvalidCondition),
		validationHandler(domain.ErrUnmappedColumn),
		validationHandler(domain.ErrUnsupportedConditionOnType),
		validationHandler(domain.ErrUnsupportedColumnType),
		validationHandler(domain.ErrInvalidSchema),
		sentinelHandler(domain.ErrStorageRead, http.StatusServiceUnavailable, ErrorCodeStorageUnavailable),
		sentinelHandler(domain.ErrIndexEngine, http.StatusBadGateway, ErrorCodeIndexEngineError),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.Search)
		r.Post("/mutations", s.ApplyMutation)
		r.Delete("/partitions/{key}", s.DeletePartition)
		r.Post("/rebuild", s.Rebuild)
	})
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !s.decode(w, r, &req) {
		return
	}

	searchReq, err := searchRequestFromDTO(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	rows, err := s.search.Search(r.Context(), &searchReq, s.now())
	partial := false
	if err != nil {
		if len(rows) == 0 || !errors.Is(err, domain.ErrStorageRead) {
			s.handleDomainError(w, r, err)
			return
		}
		s.log(r).Warn("partial search result", zap.Int("rows", len(rows)), zap.Error(err))
		partial = true
	}

	items := make([]SearchResultItem, len(rows))
	for i := range rows {
		items[i] = searchResultToDTO(&rows[i])
	}
	writeJSON(w, http.StatusOK, SearchResponse{Items: items, Total: len(items), Partial: partial})
}

// ApplyMutation handles POST /v1/mutations: the write goes to the row store,
// then the index follows it.
func (s *Server) ApplyMutation(w http.ResponseWriter, r *http.Request) {
	var req MutationRequest
	if !s.decode(w, r, &req) {
		return
	}

	m, err := mutationFromDTO(req, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	if err := s.rows.Apply(r.Context(), m); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	out, err := s.indexing.Index(r.Context(), m)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeToDTO(&out))
}

// DeletePartition handles DELETE /v1/partitions/{key}.
func (s *Server) DeletePartition(w http.ResponseWriter, r *http.Request) {
	pk, err := row.ParsePartitionKey(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "partition key must be hex encoded")
		return
	}
	if err := s.indexing.Delete(r.Context(), pk); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rebuild handles POST /v1/rebuild.
func (s *Server) Rebuild(w http.ResponseWriter, r *http.Request) {
	stats, err := s.indexing.Rebuild(r.Context())
	if err != nil && stats.Partitions == 0 && stats.Failed == 0 {
		s.handleDomainError(w, r, err)
		return
	}
	if err != nil {
		s.log(r).Warn("rebuild finished with failures", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, RebuildResponse{
		Partitions: stats.Partitions,
		Rows:       stats.Rows,
		Failed:     stats.Failed,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Version: version.String(),
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// log returns the request-scoped logger, or the server's.
func (s *Server) log(r *http.Request) *zap.Logger {
	return logpkg.FromContextOr(r.Context(), s.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// validationHandler reports a caller mistake with its full message.
func validationHandler(sentinel error) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return true
	}
}

// sentinelHandler reports a collaborator failure without exposing internals.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := s.log(r)
	logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
