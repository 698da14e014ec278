package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/pkg/logger"
)

// 认证相关的哨兵错误。
var (
	ErrDisabled     = xerrors.New(xerrors.CodeInvalidArgument, "认证功能未启用")
	ErrMissingToken = xerrors.New(xerrors.CodeInvalidArgument, "缺少访问令牌")
	ErrInvalidToken = xerrors.New(xerrors.CodeInvalidArgument, "访问令牌无效")
)

// Config 定义会话认证的配置。
type Config struct {
	Enabled bool
	// Sessions 将访问令牌映射到钱包地址。
	Sessions map[string]string
}

// Service 负责会话令牌到钱包地址的解析。
type Service struct {
	enabled  bool
	sessions map[string]string
}

// NewService 构造认证服务。
func NewService(cfg Config) *Service {
	sessions := make(map[string]string, len(cfg.Sessions))
	for token, address := range cfg.Sessions {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		sessions[token] = strings.ToLower(strings.TrimSpace(address))
	}
	return &Service{enabled: cfg.Enabled, sessions: sessions}
}

// Enabled 返回认证是否启用。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// AuthenticateRequest 解析 Authorization 头并返回关联的钱包地址。
func (s *Service) AuthenticateRequest(_ context.Context, authorization string) (string, error) {
	if s == nil || !s.enabled {
		return "", ErrDisabled
	}
	parts := strings.SplitN(strings.TrimSpace(authorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingToken
	}
	for candidate, address := range s.sessions {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return address, nil
		}
	}
	return "", ErrInvalidToken
}

// Middleware 返回一个 HTTP 中间件，认证通过后将钱包地址写入上下文。
func (s *Service) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s == nil || !s.enabled {
				next.ServeHTTP(w, r)
				return
			}
			address, err := s.AuthenticateRequest(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				status := http.StatusUnauthorized
				http.Error(w, http.StatusText(status), status)
				logger.Audit().Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
					"error", err.Error(),
				)
				return
			}
			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			ctx := WithWallet(r.Context(), address)
			next.ServeHTTP(aw, r.WithContext(ctx))
			logger.Audit().Info("api_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"wallet", address,
			)
		})
	}
}

// auditWriter 包装 http.ResponseWriter 以捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
