package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/users"
	_ "github.com/odyssey-erp/backoffice/testing"
)

type stubUsers struct {
	byEmail map[string]users.User
	roles   map[int64][]rbac.Role
}

func (s *stubUsers) FindByEmail(_ context.Context, email string) (users.User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return u, nil
}

func (s *stubUsers) FindByID(_ context.Context, id int64) (users.User, error) {
	for _, u := range s.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return users.User{}, users.ErrUserNotFound
}

func (s *stubUsers) Roles(_ context.Context, id int64) ([]rbac.Role, error) {
	return s.roles[id], nil
}

type authFixture struct {
	mr      *miniredis.Miniredis
	users   *stubUsers
	service *auth.Service
	router  chi.Router
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stub := &stubUsers{
		byEmail: map[string]users.User{
			"clerk@example.com":  {ID: 7, Email: "clerk@example.com", PasswordHash: string(hash), IsActive: true},
			"former@example.com": {ID: 8, Email: "former@example.com", PasswordHash: string(hash), IsActive: false},
		},
		roles: map[int64][]rbac.Role{7: {{ID: 2, Name: "client"}}},
	}
	svc := auth.NewService(stub, auth.NewTokenIssuer("test-secret", time.Hour), auth.NewSessionStore(client, ""))
	handler := auth.NewHandler(nil, svc)

	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	r.With(handler.Authenticate).Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		p, _ := rbac.PrincipalFromContext(r.Context())
		assert.Equal(t, p.UserID, shared.ActorFromContext(r.Context()))
		_ = json.NewEncoder(w).Encode(p)
	})
	return &authFixture{mr: mr, users: stub, service: svc, router: r}
}

func (fx *authFixture) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"email":"` + email + `","password":"` + password + `"}`
	rr := httptest.NewRecorder()
	fx.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
	return rr
}

func (fx *authFixture) call(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	fx.router.ServeHTTP(rr, req)
	return rr
}

func TestLoginResolveLogout(t *testing.T) {
	fx := newAuthFixture(t)

	rr := fx.login(t, "clerk@example.com", "correct-horse")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var tok auth.Token
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tok))
	require.Equal(t, "Bearer", tok.TokenType)
	require.Len(t, fx.mr.Keys(), 1)

	rr = fx.call(t, http.MethodGet, "/whoami", tok.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code)
	var p rbac.Principal
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, []int64{2}, p.RoleIDs)
	assert.False(t, p.Admin)

	rr = fx.call(t, http.MethodPost, "/auth/logout", tok.AccessToken)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Empty(t, fx.mr.Keys())

	rr = fx.call(t, http.MethodGet, "/whoami", tok.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	fx := newAuthFixture(t)

	require.Equal(t, http.StatusUnauthorized, fx.login(t, "clerk@example.com", "wrong-password").Code)
	require.Equal(t, http.StatusUnauthorized, fx.login(t, "nobody@example.com", "correct-horse").Code)
	require.Equal(t, http.StatusUnauthorized, fx.login(t, "former@example.com", "correct-horse").Code)
	require.Equal(t, http.StatusBadRequest, fx.login(t, "not-an-email", "correct-horse").Code)
}

func TestAuthenticateRejectsMissingAndForeignTokens(t *testing.T) {
	fx := newAuthFixture(t)

	require.Equal(t, http.StatusUnauthorized, fx.call(t, http.MethodGet, "/whoami", "").Code)
	require.Equal(t, http.StatusUnauthorized, fx.call(t, http.MethodGet, "/whoami", "garbage").Code)

	foreign, _, err := auth.NewTokenIssuer("other-secret", time.Hour).Issue(7)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, fx.call(t, http.MethodGet, "/whoami", foreign).Code)
}

func TestResolveRejectsExpiredSession(t *testing.T) {
	fx := newAuthFixture(t)
	rr := fx.login(t, "clerk@example.com", "correct-horse")
	require.Equal(t, http.StatusOK, rr.Code)
	var tok auth.Token
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tok))

	fx.mr.FastForward(2 * time.Hour)

	_, _, err := fx.service.Resolve(context.Background(), tok.AccessToken)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}
