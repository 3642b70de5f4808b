package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"curator/internal/api"
	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/queue"
	"curator/internal/services"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 64 << 10

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	queueSvc *api.QueueService
	handler  http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:     bind,
		logger:   logging.NewComponentLogger(logger, "api-server"),
		daemon:   d,
		queueSvc: api.NewQueueService(d.store),
	}

	srv.handler = srv.routes(cfg.Paths.APIToken)
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/queue", s.handleQueueList)
	mux.HandleFunc("POST /api/queue", s.handleEnqueue)
	mux.HandleFunc("GET /api/queue/{item_id}", s.handleQueueItem)
	mux.HandleFunc("POST /api/queue/{item_id}/retry", s.handleRetry)
	return s.withRequestID(authMiddleware(token, mux.ServeHTTP))
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	// A shut down http.Server cannot serve again, so each start gets its own.
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.server = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.server = nil
	s.listener = nil
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:     status.Running,
		PID:         status.PID,
		Backend:     status.Backend,
		QueueDBPath: status.QueueDBPath,
		LockFiles:   status.LockFiles,
		QueueStats:  api.FromStats(status.QueueStats),
		Workers:     make([]api.WorkerStatus, 0, len(status.Workers)),
		LastError:   status.LastError,
	}
	for _, summary := range status.Workers {
		payload.Workers = append(payload.Workers, api.FromWorkerSummary(summary))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleQueueList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	entries, err := s.queueSvc.List(r.Context(), strings.TrimSpace(query.Get("status")), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Entries: entries})
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req api.EnqueueRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ItemID <= 0 {
		s.writeError(w, http.StatusBadRequest, "itemId must be positive")
		return
	}
	resp, err := s.queueSvc.Enqueue(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	code := http.StatusOK
	if resp.Queued {
		code = http.StatusCreated
	}
	s.writeJSON(w, code, resp)
}

func (s *apiServer) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := s.itemID(w, r)
	if !ok {
		return
	}
	entry, err := s.queueSvc.Describe(r.Context(), itemID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if entry == nil {
		s.writeError(w, http.StatusNotFound, "queue entry not found")
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	itemID, ok := s.itemID(w, r)
	if !ok {
		return
	}
	var req api.RetryRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	resp, err := s.queueSvc.Retry(r.Context(), itemID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !resp.Pending {
		s.writeError(w, http.StatusConflict, "no completed or failed entry for item "+strconv.FormatInt(itemID, 10))
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("item_id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, queue.ErrInvalidStatus) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
		logging.Error(err),
		logging.String("path", r.URL.Path),
	)
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// withRequestID tags each request with an id for log correlation.
func (s *apiServer) withRequestID(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}
