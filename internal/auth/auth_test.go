package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "OpenMCP-EVM/internal/errors"
)

func newKeyService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Mode: ModeAPIKey,
		Keys: []Key{
			{Name: "reader", Secret: "read-secret", Permissions: []string{PermissionRead}},
			{Name: "ops", Secret: "ops-secret", Permissions: []string{"*"}},
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceValidatesKeys(t *testing.T) {
	if _, err := NewService(Config{Mode: ModeAPIKey}); err == nil {
		t.Fatalf("api_key mode without keys should fail")
	}
	if _, err := NewService(Config{Mode: ModeAPIKey, Keys: []Key{{Secret: " "}}}); err == nil {
		t.Fatalf("blank secret should fail")
	}
	dup := []Key{{Name: "a", Secret: "same"}, {Name: "b", Secret: "same"}}
	if _, err := NewService(Config{Mode: ModeAPIKey, Keys: dup}); err == nil {
		t.Fatalf("duplicate secrets should fail")
	}
	if _, err := NewService(Config{Mode: "oauth"}); err == nil {
		t.Fatalf("unknown mode should fail")
	}
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("empty config: %v", err)
	}
	if svc.Enabled() {
		t.Fatalf("empty mode should disable authentication")
	}
}

func TestAuthenticateRequest(t *testing.T) {
	svc := newKeyService(t)
	ctx := context.Background()

	subject, err := svc.AuthenticateRequest(ctx, "Bearer read-secret", "")
	if err != nil || subject.Name != "reader" {
		t.Fatalf("bearer key: subject=%+v err=%v", subject, err)
	}
	subject, err = svc.AuthenticateRequest(ctx, "", "ops-secret")
	if err != nil || subject.Name != "ops" {
		t.Fatalf("header key: subject=%+v err=%v", subject, err)
	}
	if _, err := svc.AuthenticateRequest(ctx, "", ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
	if _, err := svc.AuthenticateRequest(ctx, "Bearer nope", ""); xerrors.CodeOf(err) != CodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestSubjectAuthorize(t *testing.T) {
	reader := newSubject("reader", []string{" Toolbox.Read "})
	if err := reader.Authorize(PermissionRead); err != nil {
		t.Fatalf("read should be granted: %v", err)
	}
	if err := reader.Authorize(PermissionSend); xerrors.CodeOf(err) != CodePermissionDenied {
		t.Fatalf("send should be denied, got %v", err)
	}
	if got := xerrors.MetadataOf(reader.Authorize(PermissionSend))["permission"]; got != PermissionSend {
		t.Fatalf("denial should name the permission, got %q", got)
	}
	if err := newSubject("ops", []string{"*"}).Authorize(PermissionSend); err != nil {
		t.Fatalf("wildcard should grant everything: %v", err)
	}
	var nobody *Subject
	if err := nobody.Authorize(); err == nil {
		t.Fatalf("nil subject should be rejected")
	}
}

func TestMiddleware(t *testing.T) {
	svc := newKeyService(t)
	var seen *Subject
	handler := svc.Middleware("send", PermissionSend)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"invalid", "Bearer wrong", http.StatusUnauthorized},
		{"read only", "Bearer read-secret", http.StatusForbidden},
		{"granted", "Bearer ops-secret", http.StatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, "/send", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if tc.status == http.StatusAccepted && (seen == nil || seen.Name != "ops") {
				t.Fatalf("subject should be attached to the request, got %+v", seen)
			}
		})
	}
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	var svc *Service
	called := false
	handler := svc.Middleware("balance", PermissionRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/balance", nil))
	if !called {
		t.Fatalf("disabled auth should not block requests")
	}
}
