package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/threadline/api/internal/services"
)

func newUserRouter(t *testing.T, svc *userServiceStub) (*userServiceStub, http.Handler, func() string) {
	t.Helper()
	authn, tokens := newTestAuthenticator(t)
	router := NewRouter(WithUserRoutes(NewUserHandlers(authn, svc).Routes))
	return svc, router, func() string { return adminBearer(t, tokens) }
}

func TestRegisterEndpoint(t *testing.T) {
	svc := &userServiceStub{
		registerFn: func(_ context.Context, cmd services.RegisterCommand) (string, error) {
			if cmd.Email != "dana@example.com" {
				t.Fatalf("unexpected email: %q", cmd.Email)
			}
			return "tok-123", nil
		},
	}
	_, router, _ := newUserRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/user/register", strings.NewReader(
		`{"name":"Dana","email":"dana@example.com","password":"Str0ng!pass"}`,
	))
	rec := serveRequest(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Token != "tok-123" {
		t.Fatalf("expected token in response, got %+v", payload)
	}
}

func TestLoginEndpointMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "unknown email", err: services.ErrUserNotFound, wantCode: http.StatusBadRequest, wantErr: "user_not_found"},
		{name: "bad password", err: services.ErrInvalidCredentials, wantCode: http.StatusBadRequest, wantErr: "invalid_credentials"},
		{name: "backend down", err: services.ErrUserUnavailable, wantCode: http.StatusServiceUnavailable, wantErr: "user_service_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &userServiceStub{
				loginFn: func(context.Context, string, string) (string, error) { return "", tc.err },
			}
			_, router, _ := newUserRouter(t, svc)

			req := httptest.NewRequest(http.MethodPost, "/user/login", strings.NewReader(
				`{"email":"dana@example.com","password":"whatever"}`,
			))
			rec := serveRequest(router, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
			var payload map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error payload: %v", err)
			}
			if payload["error"] != tc.wantErr {
				t.Fatalf("expected error code %q, got %v", tc.wantErr, payload["error"])
			}
		})
	}
}

func TestRegisterRejectsMalformedBody(t *testing.T) {
	_, router, _ := newUserRouter(t, &userServiceStub{})

	req := httptest.NewRequest(http.MethodPost, "/user/register", strings.NewReader("{not json"))
	rec := serveRequest(router, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListUsersRequiresAdminToken(t *testing.T) {
	svc := &userServiceStub{
		listFn: func(context.Context) ([]services.UserView, error) {
			return []services.UserView{{ID: "u1", Email: "dana@example.com"}}, nil
		},
	}
	_, router, adminToken := newUserRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/user/all-users", nil)
	if rec := serveRequest(router, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/user/all-users", nil)
	req.Header.Set("Authorization", adminToken())
	rec := serveRequest(router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin token, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "dana@example.com") {
		t.Fatalf("expected listing in body, got %s", rec.Body.String())
	}
}

func TestUserTokenRejectedOnAdminRoute(t *testing.T) {
	authn, tokens := newTestAuthenticator(t)
	svc := &userServiceStub{
		listFn: func(context.Context) ([]services.UserView, error) { return nil, nil },
	}
	router := NewRouter(WithUserRoutes(NewUserHandlers(authn, svc).Routes))

	req := httptest.NewRequest(http.MethodGet, "/user/all-users", nil)
	req.Header.Set("Authorization", userBearer(t, tokens, "u1"))
	if rec := serveRequest(router, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for user token on admin route, got %d", rec.Code)
	}
}
