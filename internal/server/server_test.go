package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskforge/authsync/internal/authstate"
	"github.com/taskforge/authsync/internal/config"
	"github.com/taskforge/authsync/internal/provider"
)

func newTestServer(t *testing.T) (*Server, *provider.StaticProvider) {
	t.Helper()
	prov := provider.NewStaticProvider([]provider.StaticUser{
		{ID: "user-1", Email: "ada@example.com", Name: "Ada", Password: "pw", Confirmed: true},
	}, time.Hour)
	t.Cleanup(func() { _ = prov.Close() })

	cfg := &config.Config{Server: config.ServerConfig{Name: "authsync-test"}}
	return NewServer(cfg, prov), prov
}

func call(t *testing.T, srv *Server, procedure, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc/"+procedure, bytes.NewReader(nil))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (code, message string) {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["code"], body["message"]
}

func TestServer_PublicProcedureRunsWithoutIdentity(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := call(t, srv, "system.health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status string `json:"status"`
		Name   string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "authsync-test", health.Name)
}

func TestServer_ProtectedProcedureWithoutToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := call(t, srv, "auth.me", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	code, _ := decodeError(t, rec)
	assert.Equal(t, "UNAUTHORIZED", code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "UNAUTHORIZED")
}

func TestServer_ProtectedProcedureWithValidToken(t *testing.T) {
	srv, prov := newTestServer(t)

	token, err := prov.IssueToken("ada@example.com", time.Hour)
	require.NoError(t, err)

	rec := call(t, srv, "auth.me", token)
	require.Equal(t, http.StatusOK, rec.Code)

	var me struct {
		User      *authstate.User `json:"user"`
		RequestID string          `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.NotNil(t, me.User)
	assert.Equal(t, "user-1", me.User.ID)
	assert.NotEmpty(t, me.RequestID, "every request gets a fresh id")
}

// Scenario: expired bearer token on a protected operation resolves to an
// anonymous context and fails UNAUTHORIZED.
func TestServer_ExpiredTokenIsUnauthorized(t *testing.T) {
	srv, prov := newTestServer(t)

	token, err := prov.IssueToken("ada@example.com", -time.Minute)
	require.NoError(t, err)

	rec := call(t, srv, "auth.me", token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	code, _ := decodeError(t, rec)
	assert.Equal(t, "UNAUTHORIZED", code)
}

func TestServer_RevokedTokenIsUnauthorized(t *testing.T) {
	srv, prov := newTestServer(t)

	sess, err := prov.SignIn(context.Background(), provider.Credentials{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)

	rec := call(t, srv, "tasks.list", sess.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	// Global sign-out revokes the token; verification is a provider
	// round trip, so the very next call must fail.
	require.NoError(t, prov.SignOut(context.Background(), provider.ScopeGlobal))

	rec = call(t, srv, "tasks.list", sess.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_ContextBuiltFreshPerRequest(t *testing.T) {
	srv, prov := newTestServer(t)

	token, err := prov.IssueToken("ada@example.com", time.Hour)
	require.NoError(t, err)

	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		rec := call(t, srv, "auth.me", token)
		require.Equal(t, http.StatusOK, rec.Code)
		var me struct {
			RequestID string `json:"request_id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
		ids[me.RequestID] = true
	}
	assert.Len(t, ids, 3, "request contexts are never reused across calls")
}

func TestServer_ProceduresRequirePOST(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/rpc/system.health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_TasksListIsPerUser(t *testing.T) {
	srv, prov := newTestServer(t)

	token, err := prov.IssueToken("ada@example.com", time.Hour)
	require.NoError(t, err)

	rec := call(t, srv, "tasks.list", token)
	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.NotEmpty(t, tasks)
	assert.Contains(t, tasks[0].ID, "user-1")
}
