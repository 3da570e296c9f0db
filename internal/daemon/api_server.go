package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidslide/internal/api"
	"vidslide/internal/config"
	"vidslide/internal/events"
	"vidslide/internal/logging"
	"vidslide/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	service *api.BatchService

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
		bind:    bind,
		logger:  logger,
		daemon:  d,
		service: d.Service(),
	}
	token := strings.TrimSpace(cfg.Paths.APIToken)

	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, authMiddleware(token, srv.withRequestID(h)))
	}
	handle("GET /api/status", srv.handleStatus)
	handle("GET /api/logs", srv.handleLogs)
	handle("POST /api/notifications/test", srv.handleTestNotification)

	handle("GET /api/batches", srv.handleListBatches)
	handle("POST /api/batches", srv.handleCreateBatch)
	handle("GET /api/batches/{batch}", srv.handleBatchStatus)
	handle("DELETE /api/batches/{batch}", srv.handleDeleteBatch)
	handle("GET /api/batches/{batch}/events", srv.handleEvents)
	handle("POST /api/batches/{batch}/videos", srv.handleStage)
	handle("POST /api/batches/{batch}/move", srv.handleMove)
	handle("POST /api/batches/{batch}/reorder", srv.handleReorder)
	handle("POST /api/batches/{batch}/start", srv.handleStart)
	handle("POST /api/batches/{batch}/pause", srv.handlePause)
	handle("POST /api/batches/{batch}/workers", srv.handleWorkers)
	handle("POST /api/batches/{batch}/export", srv.handleExport)

	handle("DELETE /api/batches/{batch}/tasks/{task}", srv.handlePermanentDelete)
	handle("POST /api/batches/{batch}/tasks/{task}/prioritize", srv.handlePrioritize)
	handle("POST /api/batches/{batch}/tasks/{task}/rename", srv.handleRename)
	handle("POST /api/batches/{batch}/tasks/{task}/trash", srv.handleTrash)
	handle("POST /api/batches/{batch}/tasks/{task}/restore", srv.handleRestore)
	handle("POST /api/batches/{batch}/tasks/{task}/cancel", srv.handleCancel)
	handle("POST /api/batches/{batch}/tasks/{task}/retry", srv.handleRetry)
	handle("GET /api/batches/{batch}/tasks/{task}/images", srv.handleListImages)
	handle("POST /api/batches/{batch}/tasks/{task}/images/trash", srv.handleTrashImages)
	handle("POST /api/batches/{batch}/tasks/{task}/images/restore", srv.handleRestoreImages)

	if cfg.Metrics.Enabled && d.metrics != nil {
		mux.Handle("GET /metrics", authMiddleware(token, d.metrics.Handler().ServeHTTP))
	}

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
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

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
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
		s.listener = nil
	}
}

// withRequestID tags the request context so handler logs can be correlated.
func (s *apiServer) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := services.WithRequestID(r.Context(), id)
		if batchID := r.PathValue("batch"); batchID != "" {
			ctx = services.WithBatchID(ctx, batchID)
		}
		next(w, r.WithContext(ctx))
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.StatusPayload(r.Context()))
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("%s: %v", message, err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotificationResponse{Sent: sent, Message: message})
}

func (s *apiServer) handleListBatches(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.ListBatches())
}

func (s *apiServer) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req api.CreateBatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.service.CreateBatch(r.Context(), req)
	s.respond(w, r, http.StatusCreated, resp, err)
}

func (s *apiServer) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.BatchStatus(api.BatchRequest{BatchID: r.PathValue("batch")})
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *apiServer) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteBatch(r.Context(), api.DeleteBatchRequest{
		BatchID:     r.PathValue("batch"),
		RemoveFiles: queryBool(r, "remove_files"),
	})
	s.respond(w, r, http.StatusNoContent, nil, err)
}

func (s *apiServer) handleStage(w http.ResponseWriter, r *http.Request) {
	var req api.StageRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BatchID = r.PathValue("batch")
	resp, err := s.service.Stage(r.Context(), req)
	s.respond(w, r, http.StatusCreated, resp, err)
}

func (s *apiServer) handleMove(w http.ResponseWriter, r *http.Request) {
	var req api.MoveRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BatchID = r.PathValue("batch")
	s.respond(w, r, http.StatusNoContent, nil, s.service.Move(r.Context(), req))
}

func (s *apiServer) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req api.ReorderRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BatchID = r.PathValue("batch")
	s.respond(w, r, http.StatusNoContent, nil, s.service.Reorder(r.Context(), req))
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	var req api.StartRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BatchID = r.PathValue("batch")
	s.respond(w, r, http.StatusAccepted, nil, s.service.Start(r.Context(), req))
}

func (s *apiServer) handlePause(w http.ResponseWriter, r *http.Request) {
	err := s.service.Pause(r.Context(), api.BatchRequest{BatchID: r.PathValue("batch")})
	s.respond(w, r, http.StatusAccepted, nil, err)
}

func (s *apiServer) handleWorkers(w http.ResponseWriter, r *http.Request) {
	var req api.WorkersRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BatchID = r.PathValue("batch")
	resp, err := s.service.SetWorkers(r.Context(), req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var req api.ExportRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BatchID = r.PathValue("batch")
	resp, err := s.service.Export(r.Context(), req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func taskRequest(r *http.Request) api.TaskRequest {
	return api.TaskRequest{BatchID: r.PathValue("batch"), TaskID: r.PathValue("task")}
}

func (s *apiServer) handlePermanentDelete(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusNoContent, nil, s.service.PermanentlyDelete(r.Context(), taskRequest(r)))
}

func (s *apiServer) handlePrioritize(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusNoContent, nil, s.service.Prioritize(r.Context(), taskRequest(r)))
}

func (s *apiServer) handleRename(w http.ResponseWriter, r *http.Request) {
	var req api.RenameRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BatchID, req.TaskID = r.PathValue("batch"), r.PathValue("task")
	s.respond(w, r, http.StatusNoContent, nil, s.service.Rename(r.Context(), req))
}

func (s *apiServer) handleTrash(w http.ResponseWriter, r *http.Request) {
	var req api.TrashRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BatchID, req.TaskID = r.PathValue("batch"), r.PathValue("task")
	resp, err := s.service.Trash(r.Context(), req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *apiServer) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req api.RestoreRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BatchID, req.TaskID = r.PathValue("batch"), r.PathValue("task")
	s.respond(w, r, http.StatusNoContent, nil, s.service.Restore(r.Context(), req))
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req api.CancelRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BatchID, req.TaskID = r.PathValue("batch"), r.PathValue("task")
	resp, err := s.service.Cancel(r.Context(), req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.Retry(r.Context(), taskRequest(r))
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *apiServer) handleListImages(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.ListImages(api.ImagesRequest{
		BatchID: r.PathValue("batch"),
		TaskID:  r.PathValue("task"),
		Trashed: queryBool(r, "trashed"),
	})
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *apiServer) handleTrashImages(w http.ResponseWriter, r *http.Request) {
	var req api.ImagesRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BatchID, req.TaskID = r.PathValue("batch"), r.PathValue("task")
	resp, err := s.service.TrashImages(r.Context(), req)
	s.respond(w, r, http.StatusOK, resp, err)
}

func (s *apiServer) handleRestoreImages(w http.ResponseWriter, r *http.Request) {
	var req api.ImagesRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BatchID, req.TaskID = r.PathValue("batch"), r.PathValue("task")
	resp, err := s.service.RestoreImages(r.Context(), req)
	s.respond(w, r, http.StatusOK, resp, err)
}

// handleEvents streams batch events as server-sent events, or returns the
// retained history after ?since= when the client does not accept a stream.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("batch")
	if !wantsStream(r) {
		query := r.URL.Query()
		since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
		limit, _ := strconv.Atoi(query.Get("limit"))
		resp, err := s.service.Events(r.Context(), api.EventsRequest{
			BatchID: batchID,
			Since:   since,
			Limit:   limit,
			Wait:    queryBool(r, "wait"),
		})
		s.respond(w, r, http.StatusOK, resp, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sub, err := s.daemon.Workflow().Subscribe(batchID)
	if err != nil {
		s.respond(w, r, http.StatusOK, nil, err)
		return
	}
	bus := s.daemon.Workflow().Bus()
	defer bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := logging.WithContext(r.Context(), s.log())
	logger.Debug("event stream opened")
	for {
		select {
		case <-r.Context().Done():
			logger.Debug("event stream closed by client")
			return
		case evt, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					_ = writeSSE(w, events.Event{BatchID: batchID, Type: events.TypeClose, Payload: api.NewErrorResponse(err)})
					flusher.Flush()
					logging.WarnWithContext(logger, "event stream dropped", "event_stream_dropped",
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "the client fell behind; it should reconnect"),
					)
				}
				return
			}
			if err := writeSSE(w, evt); err != nil {
				logger.Debug("event stream write failed", logging.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Type, data)
	return err
}

func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream") || queryBool(r, "stream")
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	resp, err := api.FetchLogs(r.Context(), s.daemon.LogStream(), api.LogStreamRequest{
		Since:   since,
		Limit:   limit,
		Follow:  queryBool(r, "follow"),
		Tail:    queryBool(r, "tail"),
		BatchID: strings.TrimSpace(query.Get("batch")),
		TaskID:  strings.TrimSpace(query.Get("task")),
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// decode reads an optional JSON body into dst. It writes the error response
// and returns false on malformed input.
func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// respond writes payload with status on success or maps err onto an error
// response.
func (s *apiServer) respond(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err != nil {
		code := api.StatusCode(err)
		if code >= http.StatusInternalServerError {
			logging.ErrorWithContext(logging.WithContext(r.Context(), s.log()), "api request failed", "api_request_failed",
				logging.String("path", r.URL.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check daemon logs for the failing operation"),
			)
		}
		s.writeJSON(w, code, api.NewErrorResponse(err))
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	s.writeJSON(w, status, payload)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}

func queryBool(r *http.Request, key string) bool {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	return value == "1" || strings.EqualFold(value, "true")
}
