package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"LaunchMCP-Chain/internal/auth"
	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/internal/launch"
	"LaunchMCP-Chain/internal/observability/metrics"
	"LaunchMCP-Chain/internal/run"
	"LaunchMCP-Chain/internal/swap"
	"LaunchMCP-Chain/internal/transcript"
)

// Server 负责暴露 REST 接口，供外部驱动发币与兑换流程。
// 写操作都遵循两段式：先登记待确认操作，确认后才提交运行。
type Server struct {
	addr         string
	defaultOwner string
	transcripts  transcript.Store
	canceller    *transcript.Controller
	runs         *run.Service
	launchParams launch.Params
	swaps        *swap.Builder
	authn        *auth.Service
}

// Config 汇总 API 服务的依赖。
type Config struct {
	Addr string
	// DefaultOwner 是认证关闭时使用的服务钱包地址。
	DefaultOwner string
	Transcripts  transcript.Store
	Runs         *run.Service
	LaunchParams launch.Params
	Swaps        *swap.Builder
	Auth         *auth.Service
}

// NewServer 构造 API 服务实例。
func NewServer(cfg Config) *Server {
	return &Server{
		addr:         cfg.Addr,
		defaultOwner: strings.ToLower(strings.TrimSpace(cfg.DefaultOwner)),
		transcripts:  cfg.Transcripts,
		canceller:    transcript.NewController(cfg.Transcripts),
		runs:         cfg.Runs,
		launchParams: cfg.LaunchParams,
		swaps:        cfg.Swaps,
		authn:        cfg.Auth,
	}
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

// Handler 构建路由，测试也通过它驱动请求。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	protected := func(name string, h http.HandlerFunc) http.Handler {
		var handler http.Handler = observed(name, h)
		if s.authn != nil && s.authn.Enabled() {
			handler = s.authn.Middleware()(handler)
		}
		return handler
	}
	mux.Handle("/api/v1/launch", protected("launch", s.handleLaunch))
	mux.Handle("/api/v1/swap", protected("swap", s.handleSwap))
	mux.Handle("/api/v1/actions/confirm", protected("confirm", s.handleConfirm))
	mux.Handle("/api/v1/actions/cancel", protected("cancel", s.handleCancel))
	mux.Handle("/api/v1/runs", protected("runs", s.handleRuns))
	mux.Handle("/api/v1/transcript", protected("transcript", s.handleTranscript))
	mux.Handle("/api/v1/stats", observed("stats", s.handleStats))
	mux.Handle("/healthz", observed("health", s.handleHealth))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// actionPayload 是待确认操作的持久化形态。
type actionPayload struct {
	Kind   run.Kind       `json:"kind"`
	SagaID string         `json:"saga_id"`
	Owner  string         `json:"owner"`
	Launch *launch.Intent `json:"launch,omitempty"`
	Swap   *swap.Intent   `json:"swap,omitempty"`
}

type launchRequest struct {
	SagaID string `json:"saga_id"`
	launch.Intent
}

type swapRequest struct {
	SagaID string `json:"saga_id"`
	swap.Intent
}

type actionRequest struct {
	ActionRef string `json:"action_ref"`
}

type proposalResponse struct {
	ActionRef string `json:"action_ref"`
	SagaID    string `json:"saga_id"`
	Message   string `json:"message"`
}

type confirmResponse struct {
	RunID  string `json:"run_id"`
	SagaID string `json:"saga_id"`
	Status string `json:"status"`
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req launchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	// 先做一次空跑校验，非法意图不会进入对话记录。
	if _, err := launch.BuildSaga(req.SagaID, req.Intent, s.launchParams); err != nil {
		writeError(w, err)
		return
	}

	proposal := "确认发行代币 " + strings.TrimSpace(req.Symbol) + " (" + strings.TrimSpace(req.Name) + ")?"
	userMessage := "发行代币 " + strings.TrimSpace(req.Symbol)
	s.propose(w, r, req.SagaID, userMessage, proposal, actionPayload{
		Kind:   run.KindLaunch,
		Owner:  s.owner(r.Context()),
		Launch: &req.Intent,
	})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	owner := s.owner(r.Context())
	if _, err := s.swaps.BuildSaga(req.SagaID, owner, req.Intent); err != nil {
		writeError(w, err)
		return
	}

	proposal := "确认用 " + req.Amount + " " + req.SourceSymbol + " 兑换 " + req.TargetSymbol + "?"
	userMessage := "兑换 " + req.Amount + " " + req.SourceSymbol + " → " + req.TargetSymbol
	s.propose(w, r, req.SagaID, userMessage, proposal, actionPayload{
		Kind:  run.KindSwap,
		Owner: owner,
		Swap:  &req.Intent,
	})
}

// propose 记录用户意图并登记待确认操作。
func (s *Server) propose(w http.ResponseWriter, r *http.Request, sagaID, userMessage, proposal string, payload actionPayload) {
	if sagaID == "" {
		sagaID = uuid.NewString()
	}
	payload.SagaID = sagaID

	ctx := r.Context()
	if err := s.transcripts.Append(ctx, &transcript.Entry{
		SagaID:  sagaID,
		Role:    transcript.RoleUser,
		Content: userMessage,
	}); err != nil {
		writeError(w, err)
		return
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		writeError(w, err)
		return
	}
	ref := uuid.NewString()
	if err := s.transcripts.Append(ctx, &transcript.Entry{
		SagaID:           sagaID,
		Role:             transcript.RoleSystem,
		Content:          proposal,
		PendingActionRef: ref,
		ActionPayload:    string(encoded),
	}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, proposalResponse{
		ActionRef: ref,
		SagaID:    sagaID,
		Message:   proposal,
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ActionRef == "" {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	entry, err := s.transcripts.ClearPendingAction(ctx, req.ActionRef)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload actionPayload
	if err := json.Unmarshal([]byte(entry.ActionPayload), &payload); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeStorageFailure, err, "待确认操作载荷损坏"))
		return
	}

	var sagaRun *run.Record
	switch payload.Kind {
	case run.KindLaunch:
		if payload.Launch == nil {
			writeError(w, xerrors.New(xerrors.CodeStorageFailure, "待确认操作缺少发币意图"))
			return
		}
		built, err := launch.BuildSaga(payload.SagaID, *payload.Launch, s.launchParams)
		if err != nil {
			writeError(w, err)
			return
		}
		sagaRun, err = s.runs.Submit(ctx, run.KindLaunch, payload.Owner, built)
		if err != nil {
			writeError(w, err)
			return
		}
	case run.KindSwap:
		if payload.Swap == nil {
			writeError(w, xerrors.New(xerrors.CodeStorageFailure, "待确认操作缺少兑换意图"))
			return
		}
		built, err := s.swaps.BuildSaga(payload.SagaID, payload.Owner, *payload.Swap)
		if err != nil {
			writeError(w, err)
			return
		}
		sagaRun, err = s.runs.Submit(ctx, run.KindSwap, payload.Owner, built)
		if err != nil {
			writeError(w, err)
			return
		}
	default:
		writeError(w, xerrors.New(xerrors.CodeStorageFailure, "待确认操作类型未知"))
		return
	}

	writeJSON(w, http.StatusOK, confirmResponse{
		RunID:  sagaRun.ID,
		SagaID: sagaRun.SagaID,
		Status: string(sagaRun.Status),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ActionRef == "" {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	entry, err := s.canceller.Cancel(r.Context(), req.ActionRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "缺少 id 参数", http.StatusBadRequest)
		return
	}
	view, err := s.runs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	sagaID := r.URL.Query().Get("saga_id")
	if sagaID == "" {
		http.Error(w, "缺少 saga_id 参数", http.StatusBadRequest)
		return
	}
	entries, err := s.transcripts.List(r.Context(), sagaID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.runs.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.SetRunGauge("pending", stats.Pending)
	metrics.SetRunGauge("running", stats.Running)
	metrics.SetRunGauge("completed", stats.Completed)
	metrics.SetRunGauge("aborted", stats.Aborted)
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// owner 优先使用认证上下文中的钱包地址。
func (s *Server) owner(ctx context.Context) string {
	if wallet := auth.WalletFromContext(ctx); wallet != "" {
		return wallet
	}
	return s.defaultOwner
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 按错误码映射 HTTP 状态。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument, xerrors.CodeInvalidAmount,
		xerrors.CodeUnknownToken, xerrors.CodeInvalidSagaDefinition:
		status = http.StatusBadRequest
	case xerrors.CodeNotFound, xerrors.CodeActionNotFound:
		status = http.StatusNotFound
	case xerrors.CodeConflict:
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":  string(xerrors.CodeOf(err)),
		"error": err.Error(),
	})
}

// observed 包装处理器以记录请求指标。
func observed(name string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
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
