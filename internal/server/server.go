package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/infra/transport"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// MemberSearch 查询已入库的成员,未启用结果存储时为 nil
type MemberSearch interface {
	Search(ctx context.Context, group string, from, size int) ([]*model.MemberDoc, int64, error)
}

type Options struct {
	Addr             string
	RequestTimeout   time.Duration
	ProgressInterval time.Duration
}

// WSMessage 推送给 websocket 客户端的消息
type WSMessage struct {
	Type    string    `json:"type"`
	JobID   string    `json:"jobId,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Server 面向 UI 的 HTTP 命令接口与 websocket 广播。
// 命令通过消息总线转发给 coordinator,与 UI 面板一样不直接持有编排器。
type Server struct {
	opts       Options
	bus        *transport.Bus
	members    MemberSearch
	validate   *validator.Validate
	logger     arbor.ILogger
	instanceID string
	upgrader   websocket.Upgrader

	progressLimiter *rate.Limiter

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
}

func NewServer(opts Options, bus *transport.Bus, members MemberSearch, logger arbor.ILogger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	s := &Server{
		opts:       opts,
		bus:        bus,
		members:    members,
		validate:   validator.New(),
		logger:     logger,
		instanceID: uuid.NewString(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 仅监听本机
			},
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
	if opts.ProgressInterval > 0 {
		s.progressLimiter = rate.NewLimiter(rate.Every(opts.ProgressInterval), 1)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "instance_id": s.instanceID})
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", s.handleStart)
		r.Delete("/jobs/{jobID}", s.handleCancel)
		r.Get("/status", s.handleStatus)
		r.Get("/members", s.handleMembers)
	})
	r.Get("/ws", s.handleWebSocket)
	return r
}

// ListenAndServe 阻塞直到 ctx 结束,随后优雅关闭
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// request 向 coordinator 发送命令,没有应答返回 nil
func (s *Server) request(ctx context.Context, msgType, jobID string, payload any) *transport.Message {
	msg, err := transport.NewMessage(msgType, jobID, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("type", msgType).Msg("build coordinator request failed")
		return nil
	}
	return s.bus.Request(ctx, model.CoordinatorEndpoint, msg, s.opts.RequestTimeout)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req model.StartJobPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply := s.request(r.Context(), model.MsgStartJob, req.JobID, req)
	if reply == nil {
		writeError(w, http.StatusServiceUnavailable, "coordinator did not answer")
		return
	}
	var out model.StartJobReply
	if err := reply.Decode(&out); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	switch {
	case out.Accepted:
		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "jobId": req.JobID})
	case out.Error != nil && out.Error.Code == model.ErrLocked:
		writeJSON(w, http.StatusConflict, out)
	default:
		writeJSON(w, http.StatusBadRequest, out)
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	reply := s.request(r.Context(), model.MsgCancelJob, jobID, model.CancelJobPayload{JobID: jobID})
	if reply == nil {
		writeError(w, http.StatusServiceUnavailable, "coordinator did not answer")
		return
	}
	var out model.CancelJobReply
	if err := reply.Decode(&out); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if !out.Accepted {
		writeJSON(w, http.StatusNotFound, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) status(ctx context.Context) (*model.StatusReply, bool) {
	reply := s.request(ctx, model.MsgGetStatus, "", nil)
	if reply == nil {
		return nil, false
	}
	var out model.StatusReply
	if err := reply.Decode(&out); err != nil {
		return nil, false
	}
	return &out, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.status(r.Context())
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "coordinator did not answer")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	if s.members == nil {
		writeError(w, http.StatusNotFound, "result store disabled")
		return
	}
	group := r.URL.Query().Get("group")
	if group == "" {
		writeError(w, http.StatusBadRequest, "group is required")
		return
	}
	from := queryInt(r, "from", 0)
	size := queryInt(r, "size", 100)
	if size <= 0 || size > 1000 {
		size = 100
	}
	docs, total, err := s.members.Search(r.Context(), group, from, size)
	if err != nil {
		s.logger.Warn().Err(err).Str("group", group).Msg("member search failed")
		writeError(w, http.StatusBadGateway, "member search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "members": docs})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
