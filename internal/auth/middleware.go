package auth

import (
	"encoding/json"
	"net/http"
	"time"

	xerrors "OpenMCP-EVM/internal/errors"
)

// Middleware 返回一个 HTTP 中间件，用于认证调用方并检查 perms。
// 认证关闭时直接放行。
func (s *Service) Middleware(event string, perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			subject, err := s.AuthenticateRequest(r.Context(), r.Header.Get("Authorization"), r.Header.Get(HeaderAPIKey))
			if err == nil {
				err = subject.Authorize(perms...)
			}
			if err != nil {
				status := http.StatusUnauthorized
				if xerrors.CodeOf(err) == CodePermissionDenied {
					status = http.StatusForbidden
				}
				writeDenied(w, status, err)
				attrs := []any{"event", event, "path", r.URL.Path, "method", r.Method, "status", status, "error", err.Error()}
				if subject != nil {
					attrs = append(attrs, "caller", subject.Name)
				}
				s.audit.Warn("access_denied", attrs...)
				return
			}

			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(WithSubject(r.Context(), subject)))
			s.audit.Info("api_request",
				"event", event,
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"caller", subject.Name,
			)
		})
	}
}

func writeDenied(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {"code": string(xerrors.CodeOf(err)), "message": err.Error()},
	})
}

// auditWriter 捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
