package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"GuildForge-Chain/internal/auth"
	xerrors "GuildForge-Chain/internal/errors"
	"GuildForge-Chain/internal/observability/metrics"
	"GuildForge-Chain/internal/record"
	"GuildForge-Chain/internal/satellite"
	"GuildForge-Chain/internal/summoner"
)

// Server 负责暴露 REST 接口，供外部提交与查询卫星部署。
type Server struct {
	addr string
	svc  *summoner.Service
	auth *auth.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, svc *summoner.Service, authSvc *auth.Service) *Server {
	return &Server{addr: addr, svc: svc, auth: authSvc}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回完整的路由表，便于测试直接挂载。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	deployments := http.Handler(http.HandlerFunc(s.handleDeployments))
	if s.auth != nil {
		deployments = s.auth.Middleware(auth.MiddlewareConfig{
			RequiredPermissions: map[string][]string{
				http.MethodPost: {"deployments:write"},
				http.MethodGet:  {"deployments:read"},
			},
			AuditEvent: "deployments",
		})(deployments)
	}
	mux.Handle("/api/v1/deployments", deployments)
	mux.Handle("/api/v1/deployments/", deployments)
	mux.Handle("/metrics", metrics.Handler())
	return instrument(mux)
}

func (s *Server) handleDeployments(w http.ResponseWriter, r *http.Request) {
	if s.svc == nil {
		http.Error(w, "部署服务未初始化", http.StatusServiceUnavailable)
		return
	}
	if id := strings.TrimPrefix(r.URL.Path, "/api/v1/deployments/"); id != "" && id != r.URL.Path {
		if r.Method != http.MethodGet {
			http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
			return
		}
		s.handleGetDeployment(w, r, id)
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.handleCreateDeployment(w, r)
	case http.MethodGet:
		s.handleListDeployments(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleCreateDeployment 受理一次卫星部署请求。
func (s *Server) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req summoner.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	rec, err := s.svc.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rec)
}

func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var (
		results []*record.Record
		err     error
	)
	if moloch := r.URL.Query().Get("moloch"); moloch != "" {
		results, err = s.svc.ListByMoloch(r.Context(), moloch, limit)
	} else {
		results, err = s.svc.List(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(results)
}

// errorBody 是统一的错误响应格式。
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError 将统一错误码映射为 HTTP 状态并输出 JSON 错误体。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument,
		satellite.CodeBadVestingDistribution,
		satellite.CodeInsufficientAllowance:
		status = http.StatusUnprocessableEntity
	case xerrors.CodeNotFound, record.CodeRecordNotFound:
		status = http.StatusNotFound
	case xerrors.CodeConflict, record.CodeRecordConflict:
		status = http.StatusConflict
	case xerrors.CodeTimeout:
		status = http.StatusGatewayTimeout
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Code:    string(xerrors.CodeOf(err)),
		Message: err.Error(),
	})
}

// instrument 记录每个请求的方法、状态与耗时。
func instrument(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(sw, r)
		metrics.ObserveHTTPRequest(r.URL.Path, r.Method, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
