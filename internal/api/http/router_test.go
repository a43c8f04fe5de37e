package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apihttp "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
	Error   *struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	AllowedTransitions []string `json:"allowedTransitions"`
}

type ticketPayload struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	CreatorID string `json:"creatorId"`
	Creator   *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"creator"`
}

type testServer struct {
	app   *fiber.App
	auth  *service.AuthService
	store *repository.MemoryStore
}

type serverOptions struct {
	trustTokenRole bool
	authLimiter    fiber.Handler
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	metrics := observability.NewMetrics()

	authSvc := service.NewAuthService(config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 5,
		BcryptCost:            bcrypt.MinCost,
	}, store.Users(), logger)
	ticketSvc := service.NewTicketService(service.TicketDependencies{
		TicketRepo: store.Tickets(),
		UserRepo:   store.Users(),
		Dispatcher: events.NewInMemoryDispatcher(),
		Metrics:    metrics,
		Logger:     logger,
	})

	var roles auth.RoleResolver
	if !opts.trustTokenRole {
		roles = auth.NewStoreRoleResolver(store.Users())
	}

	validate := handlers.NewValidator()
	app := fiber.New(fiber.Config{ErrorHandler: apihttp.ErrorHandler})
	apihttp.RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	apihttp.RegisterRoutes(app, apihttp.RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk-service", "test", nil),
		Users:          handlers.NewUsersHandler(authSvc, validate),
		Tickets:        handlers.NewTicketsHandler(ticketSvc, validate),
		AuthMiddleware: auth.NewAuthMiddleware(authSvc.TokenManager(), roles),
		Metrics:        metrics,
		AuthLimiter:    opts.authLimiter,
	})
	return &testServer{app: app, auth: authSvc, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal() error: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test(%s %s) error: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("Unmarshal(%s) error: %v", raw, err)
		}
	}
	return resp.StatusCode, env
}

func (s *testServer) register(t *testing.T, name, email string) string {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "password123",
	})
	if status != http.StatusCreated {
		t.Fatalf("register status = %d (%s)", status, env.Message)
	}
	return s.signIn(t, email)
}

func (s *testServer) signIn(t *testing.T, email string) string {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/auth/signin", "", map[string]string{
		"email": email, "password": "password123",
	})
	if status != http.StatusOK {
		t.Fatalf("signin status = %d (%s)", status, env.Message)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.Token == "" {
		t.Fatalf("signin payload = %s, err %v", env.Payload, err)
	}
	return payload.Token
}

func (s *testServer) admin(t *testing.T) string {
	t.Helper()
	if _, err := s.auth.EnsureAdmin(context.Background(), config.InitialAdminConfig{
		Name: "Admin", Email: "admin@x.io", Password: "password123",
	}); err != nil {
		t.Fatalf("EnsureAdmin() error: %v", err)
	}
	return s.signIn(t, "admin@x.io")
}

func (s *testServer) createTicket(t *testing.T, token string) ticketPayload {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/tickets", token, map[string]string{
		"name": "Printer", "email": "owner@x.io", "description": "on fire",
	})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", status, env.Message)
	}
	return decodeTicket(t, env)
}

func decodeTicket(t *testing.T, env envelope) ticketPayload {
	t.Helper()
	var ticket ticketPayload
	if err := json.Unmarshal(env.Payload, &ticket); err != nil {
		t.Fatalf("decode ticket %s: %v", env.Payload, err)
	}
	return ticket
}

func TestStatusWorkflowScenario(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{})
	owner := s.register(t, "Owner", "owner@x.io")
	admin := s.admin(t)
	ticket := s.createTicket(t, owner)
	if ticket.Status != "new" {
		t.Fatalf("initial status = %q, want new", ticket.Status)
	}
	path := "/tickets/" + ticket.ID + "/status"

	status, env := s.do(t, http.MethodPatch, path, owner, map[string]string{"status": "in_progress"})
	if status != http.StatusOK || decodeTicket(t, env).Status != "in_progress" {
		t.Fatalf("owner in_progress = %d %s", status, env.Payload)
	}
	if env.Message != "Ticket updated successfully" {
		t.Fatalf("message = %q", env.Message)
	}

	status, env = s.do(t, http.MethodPatch, path, owner, map[string]string{"status": "resolved"})
	if status != http.StatusForbidden || env.Status != "error" || env.Error == nil || env.Error.Code != "FORBIDDEN" {
		t.Fatalf("owner resolved = %d %+v", status, env)
	}

	status, env = s.do(t, http.MethodPatch, path, admin, map[string]string{"status": "resolved"})
	if status != http.StatusOK || decodeTicket(t, env).Status != "resolved" {
		t.Fatalf("admin resolved = %d %s", status, env.Payload)
	}

	status, env = s.do(t, http.MethodPatch, path, admin, map[string]string{"status": "new"})
	if status != http.StatusBadRequest || env.Message != "Invalid status transition" {
		t.Fatalf("admin new = %d %+v", status, env)
	}
	if env.AllowedTransitions == nil || len(env.AllowedTransitions) != 0 {
		t.Fatalf("allowedTransitions = %#v, want []", env.AllowedTransitions)
	}
}

func TestInvalidTransitionListsAllowedTargets(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{})
	owner := s.register(t, "Owner", "owner@x.io")
	ticket := s.createTicket(t, owner)

	status, env := s.do(t, http.MethodPatch, "/tickets/"+ticket.ID+"/status", owner, map[string]string{"status": "resolved"})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if len(env.AllowedTransitions) != 1 || env.AllowedTransitions[0] != "in_progress" {
		t.Fatalf("allowedTransitions = %v, want [in_progress]", env.AllowedTransitions)
	}
}

func TestListVisibility(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{})
	alice := s.register(t, "Alice", "alice@x.io")
	bob := s.register(t, "Bob", "bob@x.io")
	admin := s.admin(t)
	s.createTicket(t, alice)
	s.createTicket(t, bob)

	decodeList := func(env envelope) []ticketPayload {
		var items []ticketPayload
		if err := json.Unmarshal(env.Payload, &items); err != nil {
			t.Fatalf("decode list %s: %v", env.Payload, err)
		}
		return items
	}

	status, env := s.do(t, http.MethodGet, "/tickets", admin, nil)
	if status != http.StatusOK || env.Message != "Tickets retrieved successfully" {
		t.Fatalf("admin list = %d %q", status, env.Message)
	}
	all := decodeList(env)
	if len(all) != 2 || all[0].Creator == nil || all[0].Creator.Name != "Alice" {
		t.Fatalf("admin list = %+v", all)
	}

	_, env = s.do(t, http.MethodGet, "/tickets", bob, nil)
	mine := decodeList(env)
	if len(mine) != 1 || mine[0].Creator == nil || mine[0].Creator.Email != "bob@x.io" {
		t.Fatalf("bob list = %+v", mine)
	}

	_, env = s.do(t, http.MethodGet, "/tickets?limit=1&offset=1", admin, nil)
	if page := decodeList(env); len(page) != 1 {
		t.Fatalf("paged list = %+v", page)
	}

	status, _ = s.do(t, http.MethodGet, "/tickets?limit=-3", admin, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", status)
	}
}

func TestGuestRoleCannotList(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{trustTokenRole: true})
	token, _, err := s.auth.TokenManager().GenerateToken(&domain.User{ID: uuid.NewString(), Role: domain.Role("guest")})
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	status, env := s.do(t, http.MethodGet, "/tickets", token, nil)
	if status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", status)
	}
	if env.Message != "Access denied: Invalid user role" || len(env.Payload) != 0 {
		t.Fatalf("envelope = %+v, want invalid role without payload", env)
	}
}

func TestTicketAccessRules(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{})
	owner := s.register(t, "Owner", "owner@x.io")
	other := s.register(t, "Other", "other@x.io")
	ticket := s.createTicket(t, owner)
	path := "/tickets/" + ticket.ID

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{name: "no token", method: http.MethodGet, path: path, want: http.StatusUnauthorized},
		{name: "other reads", method: http.MethodGet, path: path, token: other, want: http.StatusForbidden},
		{name: "owner reads", method: http.MethodGet, path: path, token: owner, want: http.StatusOK},
		{name: "other updates", method: http.MethodPatch, path: path, token: other, body: map[string]string{"name": "x"}, want: http.StatusForbidden},
		{name: "update with status", method: http.MethodPatch, path: path, token: owner, body: map[string]string{"status": "resolved"}, want: http.StatusBadRequest},
		{name: "update with creatorId", method: http.MethodPatch, path: path, token: owner, body: map[string]string{"creatorId": ticket.ID}, want: http.StatusBadRequest},
		{name: "empty update", method: http.MethodPatch, path: path, token: owner, body: map[string]string{}, want: http.StatusBadRequest},
		{name: "owner updates", method: http.MethodPatch, path: path, token: owner, body: map[string]string{"description": "still on fire"}, want: http.StatusOK},
		{name: "missing ticket", method: http.MethodGet, path: "/tickets/" + uuid.NewString(), token: other, want: http.StatusNotFound},
		{name: "other deletes", method: http.MethodDelete, path: path, token: other, want: http.StatusForbidden},
		{name: "delete missing", method: http.MethodDelete, path: "/tickets/" + uuid.NewString(), token: other, want: http.StatusNotFound},
		{name: "owner deletes", method: http.MethodDelete, path: path, token: owner, want: http.StatusOK},
		{name: "delete again", method: http.MethodDelete, path: path, token: owner, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		status, env := s.do(t, tt.method, tt.path, tt.token, tt.body)
		if status != tt.want {
			t.Fatalf("%s: status = %d (%s), want %d", tt.name, status, env.Message, tt.want)
		}
	}

	status, env := s.do(t, http.MethodGet, path, owner, nil)
	if status != http.StatusNotFound || env.Message != "Ticket not found" {
		t.Fatalf("get deleted = %d %q", status, env.Message)
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{})
	owner := s.register(t, "Owner", "owner@x.io")

	status, env := s.do(t, http.MethodPost, "/tickets", owner, map[string]string{"name": "n", "email": "not-an-email"})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("create = %d %+v", status, env)
	}
	if _, ok := env.Error.Details["email"]; !ok {
		t.Fatalf("details = %v, want email", env.Error.Details)
	}
	if _, ok := env.Error.Details["description"]; !ok {
		t.Fatalf("details = %v, want description", env.Error.Details)
	}
}

func TestSignInFailures(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{})
	s.register(t, "Owner", "owner@x.io")

	status, env := s.do(t, http.MethodPost, "/auth/signin", "", map[string]string{"email": "owner@x.io", "password": "nope"})
	if status != http.StatusUnauthorized || env.Message != "Invalid credentials" {
		t.Fatalf("wrong password = %d %q", status, env.Message)
	}
	status, env = s.do(t, http.MethodPost, "/auth/signin", "", map[string]string{"email": "ghost@x.io", "password": "nope"})
	if status != http.StatusNotFound || env.Message != "User not found" {
		t.Fatalf("unknown user = %d %q", status, env.Message)
	}
	status, _ = s.do(t, http.MethodPost, "/auth/register", "", map[string]string{"name": "Dup", "email": "owner@x.io", "password": "password123"})
	if status != http.StatusConflict {
		t.Fatalf("duplicate register = %d, want 409", status)
	}
}

func TestAuthRateLimit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{authLimiter: apihttp.RateLimitPerIP(0.001, 1)})
	body := map[string]string{"email": "ghost@x.io", "password": "x"}

	if status, _ := s.do(t, http.MethodPost, "/auth/signin", "", body); status != http.StatusNotFound {
		t.Fatalf("first signin = %d, want 404", status)
	}
	status, env := s.do(t, http.MethodPost, "/auth/signin", "", body)
	if status != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != "RATE_LIMITED" {
		t.Fatalf("second signin = %d %+v", status, env)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, serverOptions{})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}

	s.do(t, http.MethodGet, "/tickets", "", nil)
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err = s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "http_requests_total") {
		t.Fatalf("metrics = %d, body missing http_requests_total", resp.StatusCode)
	}

	status, env := s.do(t, http.MethodGet, "/nowhere", "", nil)
	if status != http.StatusNotFound || env.Status != "error" {
		t.Fatalf("unknown route = %d %+v", status, env)
	}
}
