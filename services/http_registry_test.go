package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oasislabs/ready-layer-two/crypto"
	"github.com/oasislabs/ready-layer-two/identity"
	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/oasislabs/ready-layer-two/storage"
	"github.com/stretchr/testify/require"
)

func setupTestRegistry(t *testing.T) (*identity.Registry, http.Handler) {
	t.Helper()
	registry, err := identity.NewRegistry(storage.NewMemoryMap[identity.Account](), nil)
	require.NoError(t, err)
	return registry, newRouter(NewHTTPRegistry(registry, nil))
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload string
	switch b := body.(type) {
	case string:
		payload = b
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		payload = string(raw)
	}

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func requireErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, code, resp.Error)
}

func TestHTTPRegistry_Register(t *testing.T) {
	_, router := setupTestRegistry(t)

	w := postJSON(t, router, "/register", RegisterRequest{Name: "alice", Credential: "pw"})
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, router, "/register", RegisterRequest{Name: "alice", Credential: "pw2"})
	requireErrorCode(t, w, http.StatusConflict, protocol.CodeUsernameTaken)

	w = postJSON(t, router, "/register", RegisterRequest{Credential: "pw"})
	requireErrorCode(t, w, http.StatusBadRequest, CodeInvalidRequest)

	w = postJSON(t, router, "/register", "{not json")
	requireErrorCode(t, w, http.StatusBadRequest, CodeInvalidRequest)
}

func TestHTTPRegistry_SignIn(t *testing.T) {
	registry, router := setupTestRegistry(t)
	require.NoError(t, registry.Register(context.Background(), "alice", "pw"))

	w := postJSON(t, router, "/sign-in", SignInRequest{Name: "alice", Credential: "pw", Audience: "C"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp SignInResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)

	w = postJSON(t, router, "/sign-in", SignInRequest{Name: "alice", Credential: "nope", Audience: "C"})
	requireErrorCode(t, w, http.StatusForbidden, protocol.CodePermissionDenied)

	w = postJSON(t, router, "/sign-in", SignInRequest{Name: "alice", Credential: "pw"})
	requireErrorCode(t, w, http.StatusBadRequest, CodeInvalidRequest)
}

func TestHTTPRegistry_VerifyTokenBindsSigner(t *testing.T) {
	registry, router := setupTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, registry.Register(ctx, "alice", "pw"))

	coordinatorPub, coordinatorKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, otherKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	issued, err := registry.SignIn(ctx, "alice", "pw", coordinatorPub.String())
	require.NoError(t, err)

	signed, err := protocol.NewSigned(coordinatorKey, &VerifyTokenRequest{Token: issued})
	require.NoError(t, err)
	w := postJSON(t, router, "/verify-token", signed)
	require.Equal(t, http.StatusOK, w.Code)
	var info protocol.UserInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	require.Equal(t, "alice", info.Name)

	// Another service cannot redeem the token.
	signed, err = protocol.NewSigned(otherKey, &VerifyTokenRequest{Token: issued})
	require.NoError(t, err)
	w = postJSON(t, router, "/verify-token", signed)
	requireErrorCode(t, w, http.StatusForbidden, protocol.CodePermissionDenied)

	// Nor can it claim the coordinator's key without its signature.
	signed.PublicKey = coordinatorPub
	w = postJSON(t, router, "/verify-token", signed)
	requireErrorCode(t, w, http.StatusForbidden, protocol.CodePermissionDenied)

	signed, err = protocol.NewSigned(coordinatorKey, &VerifyTokenRequest{Token: "garbage"})
	require.NoError(t, err)
	w = postJSON(t, router, "/verify-token", signed)
	requireErrorCode(t, w, http.StatusBadRequest, protocol.CodeInvalidToken)
}

func getPath(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}
