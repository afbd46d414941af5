package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"OpenMCP-EVM/pkg/logger"
)

// HeaderAPIKey 是 Authorization 之外可用的 API Key 请求头。
const HeaderAPIKey = "X-API-Key"

type credential struct {
	digest  [sha256.Size]byte
	subject *Subject
}

// Service 负责 HTTP 端点的身份验证和授权。
type Service struct {
	mode        Mode
	credentials []credential
	audit       *slog.Logger
}

// NewService 构造身份认证服务实例。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{mode: mode, audit: logger.Audit()}

	switch mode {
	case ModeDisabled:
		return svc, nil
	case ModeAPIKey:
		seen := make(map[[sha256.Size]byte]string, len(cfg.Keys))
		for i, key := range cfg.Keys {
			secret := strings.TrimSpace(key.Secret)
			if secret == "" {
				return nil, fmt.Errorf("第 %d 个 API Key 为空", i)
			}
			name := strings.TrimSpace(key.Name)
			if name == "" {
				name = fmt.Sprintf("key-%d", i)
			}
			digest := sha256.Sum256([]byte(secret))
			if other, dup := seen[digest]; dup {
				return nil, fmt.Errorf("API Key %s 与 %s 重复", name, other)
			}
			seen[digest] = name
			svc.credentials = append(svc.credentials, credential{digest: digest, subject: newSubject(name, key.Permissions)})
		}
		if len(svc.credentials) == 0 {
			return nil, errors.New("api_key 模式至少需要配置一个 API Key")
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("未知的认证模式: %s", cfg.Mode)
	}
}

// Enabled 报告是否需要认证。
func (s *Service) Enabled() bool {
	return s != nil && s.mode != ModeDisabled
}

// AuthenticateRequest 校验 Authorization: Bearer 或 X-API-Key 中携带的密钥。
func (s *Service) AuthenticateRequest(_ context.Context, authorization, apiKey string) (*Subject, error) {
	token := strings.TrimSpace(apiKey)
	if token == "" {
		parts := strings.SplitN(strings.TrimSpace(authorization), " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = strings.TrimSpace(parts[1])
		}
	}
	if token == "" {
		return nil, ErrMissingToken
	}
	digest := sha256.Sum256([]byte(token))
	var match *Subject
	for _, cred := range s.credentials {
		if subtle.ConstantTimeCompare(digest[:], cred.digest[:]) == 1 {
			match = cred.subject
		}
	}
	if match == nil {
		return nil, ErrInvalidToken
	}
	return match, nil
}
