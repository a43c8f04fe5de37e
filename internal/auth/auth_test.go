package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func TestPasswordRoundTrip(t *testing.T) {
	t.Parallel()
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if err := ComparePassword(hash, "s3cret"); err != nil {
		t.Fatalf("ComparePassword() error: %v", err)
	}
	if err := ComparePassword(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("ComparePassword(wrong) error = %v, want ErrPasswordMismatch", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()
	tm := NewTokenManager("secret", time.Minute)
	user := &domain.User{ID: "u1", Name: "Alice", Email: "alice@x.io", Role: domain.RoleAdmin}

	token, expiresAt, err := tm.GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expiresAt = %v, want future", expiresAt)
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	want := domain.Actor{ID: "u1", Name: "Alice", Email: "alice@x.io", Role: domain.RoleAdmin}
	if got := claims.Actor(); got != want {
		t.Fatalf("Actor() = %+v, want %+v", got, want)
	}
}

func TestParseTokenRejects(t *testing.T) {
	t.Parallel()
	user := &domain.User{ID: "u1", Role: domain.RoleUser}
	tm := NewTokenManager("secret", time.Minute)

	other, _, err := NewTokenManager("other", time.Minute).GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	expiredTM := NewTokenManager("secret", time.Minute)
	expiredTM.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiredTM.GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "wrong secret", token: other},
		{name: "expired", token: expired},
		{name: "alg none", token: none},
		{name: "garbage", token: "not-a-token"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := tm.ParseToken(tt.token); err == nil {
				t.Fatalf("ParseToken(%s) succeeded, want error", tt.name)
			}
		})
	}
}

type fakeResolver struct {
	calls atomic.Int32
	roles map[string]domain.Role
	delay time.Duration
}

func (f *fakeResolver) ResolveRole(_ context.Context, userID string) (domain.Role, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	role, ok := f.roles[userID]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return role, nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func (m *mapCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	val, ok := m.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return val, nil
}

func (m *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func TestCachedRoleResolverCaches(t *testing.T) {
	t.Parallel()
	store := &fakeResolver{roles: map[string]domain.Role{"u1": domain.RoleUser}}
	cache := &mapCache{data: map[string]string{}}
	resolver := NewCachedRoleResolver(store, cache, time.Minute, nil)

	for i := 0; i < 3; i++ {
		role, err := resolver.ResolveRole(context.Background(), "u1")
		if err != nil {
			t.Fatalf("ResolveRole() error: %v", err)
		}
		if role != domain.RoleUser {
			t.Fatalf("ResolveRole() = %q, want user", role)
		}
	}
	if got := store.calls.Load(); got != 1 {
		t.Fatalf("store calls = %d, want 1", got)
	}
	if cache.data["helpdesk:role:u1"] != "user" {
		t.Fatalf("cache = %v, want role stored", cache.data)
	}
}

func TestCachedRoleResolverFallsThrough(t *testing.T) {
	t.Parallel()
	store := &fakeResolver{roles: map[string]domain.Role{"u1": domain.RoleAdmin}}
	cache := &mapCache{data: map[string]string{}, err: errors.New("redis down")}
	resolver := NewCachedRoleResolver(store, cache, time.Minute, nil)

	role, err := resolver.ResolveRole(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ResolveRole() error: %v", err)
	}
	if role != domain.RoleAdmin {
		t.Fatalf("ResolveRole() = %q, want admin", role)
	}

	if _, err := resolver.ResolveRole(context.Background(), "ghost"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("ResolveRole(ghost) error = %v, want pgx.ErrNoRows", err)
	}
}

func TestCachedRoleResolverCollapsesConcurrentLoads(t *testing.T) {
	t.Parallel()
	store := &fakeResolver{roles: map[string]domain.Role{"u1": domain.RoleUser}, delay: 50 * time.Millisecond}
	resolver := NewCachedRoleResolver(store, nil, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := resolver.ResolveRole(context.Background(), "u1"); err != nil {
				t.Errorf("ResolveRole() error: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := store.calls.Load(); got >= 8 {
		t.Fatalf("store calls = %d, want collapsed loads", got)
	}
}

func newTestApp(mw *AuthMiddleware) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Message)
		},
	})
	app.Get("/me", mw.Handle, func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.SendString(string(actor.Role))
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()
	tm := NewTokenManager("secret", time.Minute)
	resolver := &fakeResolver{roles: map[string]domain.Role{"u1": domain.RoleUser}}

	demoted, _, err := tm.GenerateToken(&domain.User{ID: "u1", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	deleted, _, err := tm.GenerateToken(&domain.User{ID: "gone", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		roles      RoleResolver
		wantStatus int
		wantBody   string
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "stored role wins", header: "Bearer " + demoted, roles: resolver, wantStatus: http.StatusOK, wantBody: "user"},
		{name: "token role trusted", header: "Bearer " + demoted, wantStatus: http.StatusOK, wantBody: "admin"},
		{name: "deleted user", header: "Bearer " + deleted, roles: resolver, wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			app := newTestApp(NewAuthMiddleware(tm, tt.roles))
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantBody != "" {
				body, err := io.ReadAll(resp.Body)
				if err != nil {
					t.Fatalf("ReadAll() error: %v", err)
				}
				if got := string(body); got != tt.wantBody {
					t.Fatalf("body = %q, want %q", got, tt.wantBody)
				}
			}
		})
	}
}
