package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"orbridge/internal/api"
	"orbridge/internal/config"
	"orbridge/internal/dispatch"
	"orbridge/internal/entity"
	"orbridge/internal/logging"
	"orbridge/internal/services"
)

// maxRequestBytes bounds request bodies; inline attachments arrive base64
// encoded, so this sits well above max_attachment_bytes.
const maxRequestBytes = 64 << 20

type apiServer struct {
	bind         string
	logger       *slog.Logger
	daemon       *Daemon
	handler      http.Handler
	writeTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:         strings.TrimSpace(cfg.Paths.APIBind),
		logger:       logging.NewComponentLogger(logger, "api-server"),
		daemon:       d,
		writeTimeout: writeTimeout(cfg),
	}
	srv.handler = srv.routes(cfg.Paths.APIToken)
	return srv
}

// writeTimeout covers the worst case dispatch: every attempt hitting the
// upstream timeout plus every retry wait.
func writeTimeout(cfg *config.Config) time.Duration {
	capacity, rateLimit := cfg.RetryDelays()
	policy := dispatch.Policy{CapacityDelays: capacity, RateLimitDelays: rateLimit}
	var waits time.Duration
	for _, delays := range [][]time.Duration{capacity, rateLimit} {
		var total time.Duration
		for _, delay := range delays {
			total += delay
		}
		waits = max(waits, total)
	}
	return time.Duration(policy.MaxAttempts())*cfg.OpenRouterTimeout() + waits + 15*time.Second
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/entities", s.handleEntities)
	mux.HandleFunc("POST /api/reload", s.handleReload)
	mux.HandleFunc("POST /api/ai_task/{entity}/generate_data", s.handleGenerateData)
	mux.HandleFunc("POST /api/conversation/{entity}/process", s.handleProcess)
	mux.HandleFunc("DELETE /api/conversation/{entity}/{conversation_id}", s.handleForget)
	return requestIDMiddleware(authMiddleware(token, mux))
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

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
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	if listener != nil {
		_ = listener.Close()
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		StartedAt:    api.FormatTime(status.StartedAt),
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Entries:      status.Entries,
		Entities:     status.Entities,
	})
}

func (s *apiServer) handleEntities(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.EntityListResponse{
		Entities: api.FromEntityInfos(s.daemon.Registry().Entities()),
	})
}

func (s *apiServer) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Reload(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EntityListResponse{
		Entities: api.FromEntityInfos(s.daemon.Registry().Entities()),
	})
}

func (s *apiServer) handleGenerateData(w http.ResponseWriter, r *http.Request) {
	task, err := s.daemon.Registry().AITask(r.PathValue("entity"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req api.GenerateDataRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	converted, err := api.ToTask(req, api.ConvertOptions{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := task.GenerateData(r.Context(), converted)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromGenData(result))
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	conv, err := s.daemon.Registry().Conversation(r.PathValue("entity"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req api.ProcessRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := conv.Process(r.Context(), entity.Input{Text: req.Text, ConversationID: req.ConversationID})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromConversation(resp))
}

func (s *apiServer) handleForget(w http.ResponseWriter, r *http.Request) {
	conv, err := s.daemon.Registry().Conversation(r.PathValue("entity"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	conv.Forget(r.PathValue("conversation_id"))
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return services.Wrap(services.ErrValidation, "api", "decode request", "invalid request body", err)
	}
	return nil
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

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, payload := api.ErrorFrom(err)
	// Dispatch failures are logged by the dispatcher itself.
	if status >= http.StatusInternalServerError && payload.Kind == "" {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.Error(err),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
		)
	}
	s.writeJSON(w, status, payload)
}
