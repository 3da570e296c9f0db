package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"vidslide/internal/api"
	"vidslide/internal/daemon"
	"vidslide/internal/logging"
)

// ServiceName is the JSON-RPC service every method is registered under.
const ServiceName = "VidSlide"

const maxWait = 25 * time.Second

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
// Each accepted connection is served on its own goroutine.
type Server struct {
	path     string
	logger   *slog.Logger
	listener net.Listener
	rpc      *rpc.Server

	closing   chan struct{}
	closeOnce sync.Once
	conns     sync.WaitGroup
}

// ServerOption customizes the IPC server.
type ServerOption func(*service)

// WithStopHandler registers the callback run when a client requests
// daemon shutdown.
func WithStopHandler(fn func()) ServerOption {
	return func(s *service) { s.onStop = fn }
}

// NewServer replaces any stale socket at path and listens on it. ctx bounds
// the RPC calls served, not the listener; call Close to stop accepting.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	svc := &service{daemon: d, logger: logger, ctx: ctx}
	for _, opt := range opts {
		opt(svc)
	}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	return &Server{
		path:     path,
		logger:   logger,
		listener: listener,
		rpc:      rpcServer,
		closing:  make(chan struct{}),
	}, nil
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.conns.Add(1)
	go s.acceptLoop()
}

func (s *Server) acceptLoop() {
	defer s.conns.Done()
	for {
		conn, err := s.listener.Accept()
		switch {
		case err == nil:
			s.conns.Add(1)
			go func() {
				defer s.conns.Done()
				s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
			}()
		case s.isClosing() || errors.Is(err, net.ErrClosed):
			return
		default:
			logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
				logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
			)
		}
	}
}

func (s *Server) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// Close stops accepting, waits for open connections to finish and removes
// the socket file. It is safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.listener.Close()
		s.conns.Wait()
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
				logging.String("socket", s.path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
				logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun `vidslide daemon stop`"),
			)
		}
	})
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
	onStop func()
	once   sync.Once
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) batches() (*api.BatchService, error) {
	svc := s.daemon.Service()
	if svc == nil {
		return nil, errors.New("batch service unavailable")
	}
	return svc, nil
}

// waitContext bounds long polls so a stalled client cannot pin a goroutine.
func (s *service) waitContext(wait bool) (context.Context, context.CancelFunc) {
	if !wait {
		return s.ctx, func() {}
	}
	return context.WithTimeout(s.ctx, maxWait)
}

func (s *service) Status(_ Empty, resp *StatusResponse) error {
	*resp = s.daemon.StatusPayload(s.ctx)
	return nil
}

func (s *service) Stop(_ Empty, resp *StopResponse) error {
	if s.onStop == nil {
		resp.Message = "daemon shutdown is not available over IPC"
		return nil
	}
	s.log().Info("daemon stop requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	s.once.Do(s.onStop)
	resp.Stopping = true
	resp.Message = "daemon stopping"
	return nil
}

func (s *service) CreateBatch(req CreateBatchRequest, resp *BatchResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	out, err := svc.CreateBatch(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = out
	s.log().Info("batch created via IPC",
		logging.String(logging.FieldEventType, "batch_create"),
		logging.BatchID(out.Batch.ID))
	return nil
}

func (s *service) ListBatches(_ Empty, resp *BatchListResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	*resp = svc.ListBatches()
	return nil
}

func (s *service) BatchStatus(req BatchRequest, resp *BatchResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	out, err := svc.BatchStatus(req)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) DeleteBatch(req DeleteBatchRequest, resp *Ack) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	if err := svc.DeleteBatch(s.ctx, req); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) Stage(req StageRequest, resp *StageResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	out, err := svc.Stage(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = out
	s.log().Debug("videos staged via IPC",
		logging.BatchID(req.BatchID),
		logging.Int("count", len(out.IDs)))
	return nil
}

func (s *service) Move(req MoveRequest, resp *Ack) error {
	return s.ack(resp, func(svc *api.BatchService) error { return svc.Move(s.ctx, req) })
}

func (s *service) Reorder(req ReorderRequest, resp *Ack) error {
	return s.ack(resp, func(svc *api.BatchService) error { return svc.Reorder(s.ctx, req) })
}

func (s *service) Prioritize(req TaskRequest, resp *Ack) error {
	return s.ack(resp, func(svc *api.BatchService) error { return svc.Prioritize(s.ctx, req) })
}

func (s *service) Rename(req RenameRequest, resp *Ack) error {
	return s.ack(resp, func(svc *api.BatchService) error { return svc.Rename(s.ctx, req) })
}

func (s *service) Restore(req RestoreRequest, resp *Ack) error {
	return s.ack(resp, func(svc *api.BatchService) error { return svc.Restore(s.ctx, req) })
}

func (s *service) PermanentlyDelete(req TaskRequest, resp *Ack) error {
	return s.ack(resp, func(svc *api.BatchService) error { return svc.PermanentlyDelete(s.ctx, req) })
}

func (s *service) Start(req StartRequest, resp *Ack) error {
	return s.ack(resp, func(svc *api.BatchService) error { return svc.Start(s.ctx, req) })
}

func (s *service) Pause(req BatchRequest, resp *Ack) error {
	return s.ack(resp, func(svc *api.BatchService) error { return svc.Pause(s.ctx, req) })
}

func (s *service) ack(resp *Ack, call func(*api.BatchService) error) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	if err := call(svc); err != nil {
		return err
	}
	resp.OK = true
	return nil
}

func (s *service) Trash(req TrashRequest, resp *TrashResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	out, err := svc.Trash(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) SetWorkers(req WorkersRequest, resp *WorkersResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	out, err := svc.SetWorkers(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) Cancel(req CancelRequest, resp *CancelResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	out, err := svc.Cancel(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) Retry(req TaskRequest, resp *RetryResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	out, err := svc.Retry(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) ListImages(req ImagesRequest, resp *ImagesResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	out, err := svc.ListImages(req)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) TrashImages(req ImagesRequest, resp *ImagesResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	out, err := svc.TrashImages(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) RestoreImages(req ImagesRequest, resp *ImagesResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	out, err := svc.RestoreImages(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) Export(req ExportRequest, resp *ExportResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	out, err := svc.Export(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = out
	s.log().Info("export finished via IPC",
		logging.String(logging.FieldEventType, "batch_export"),
		logging.BatchID(req.BatchID),
		logging.Int("results", len(out.Results)))
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	svc, err := s.batches()
	if err != nil {
		return err
	}
	ctx, cancel := s.waitContext(req.Wait)
	defer cancel()
	out, err := svc.Events(ctx, req)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	ctx, cancel := s.waitContext(req.Follow)
	defer cancel()
	out, err := api.FetchLogs(ctx, s.daemon.LogStream(), req)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) TestNotification(_ Empty, resp *NotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
