package auth

import (
	"strings"

	xerrors "OpenMCP-EVM/internal/errors"
)

// 认证相关的错误码。
const (
	CodeUnauthenticated  xerrors.Code = "UNAUTHENTICATED"
	CodePermissionDenied xerrors.Code = "PERMISSION_DENIED"
)

// 工具箱接口使用的权限。
const (
	PermissionRead = "toolbox.read"
	PermissionSend = "toolbox.send"
)

// 认证子系统返回的公共错误。
var (
	ErrMissingToken     = xerrors.New(CodeUnauthenticated, "missing api key")
	ErrInvalidToken     = xerrors.New(CodeUnauthenticated, "invalid api key")
	ErrPermissionDenied = xerrors.New(CodePermissionDenied, "permission denied")
)

func init() {
	xerrors.Register(CodeUnauthenticated, xerrors.Attributes{
		Message:  "unauthenticated",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodePermissionDenied, xerrors.Attributes{
		Message:  "permission denied",
		Severity: xerrors.SeverityWarning,
	})
}

// Mode 枚举支持的认证方式。
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeAPIKey   Mode = "api_key"
)

// Key 描述一个调用方的 API Key 及其权限。
type Key struct {
	Name        string
	Secret      string
	Permissions []string
}

// Config 配置认证服务。
type Config struct {
	Mode Mode
	Keys []Key
}

// Subject 是通过认证的调用方，会放入请求上下文。
type Subject struct {
	Name        string
	Permissions []string

	permissionsSet map[string]struct{}
}

func newSubject(name string, perms []string) *Subject {
	s := &Subject{Name: name, Permissions: append([]string(nil), perms...)}
	s.normalise()
	return s
}

func (s *Subject) normalise() {
	if s == nil || s.permissionsSet != nil {
		return
	}
	s.permissionsSet = make(map[string]struct{}, len(s.Permissions))
	for _, perm := range s.Permissions {
		s.permissionsSet[strings.ToLower(strings.TrimSpace(perm))] = struct{}{}
	}
}

// HasPermission 判断主体是否拥有指定权限。"*" 表示全部权限。
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	s.normalise()
	if _, ok := s.permissionsSet["*"]; ok {
		return true
	}
	_, ok := s.permissionsSet[strings.ToLower(strings.TrimSpace(permission))]
	return ok
}

// Authorize 确认主体拥有全部所需权限。
func (s *Subject) Authorize(perms ...string) error {
	if s == nil {
		return ErrInvalidToken
	}
	for _, perm := range perms {
		if perm == "" {
			continue
		}
		if !s.HasPermission(perm) {
			return ErrPermissionDenied.With(xerrors.WithMetadata("permission", perm))
		}
	}
	return nil
}
