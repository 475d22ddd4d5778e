package middleware

import (
	"context"
	"encoding/json"
	"lifeos_api/internal/app/service"
	"lifeos_api/internal/common"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	gotToken string
	resp     *service.VerifyResponse
	err      error
}

func (s *stubVerifier) Verify(_ context.Context, token string) (*service.VerifyResponse, error) {
	s.gotToken = token
	return s.resp, s.err
}

func serveAuth(v TokenVerifier, authorization string) (*httptest.ResponseRecorder, *service.VerifyResponse) {
	var seen *service.VerifyResponse
	h := Authenticator(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/verify", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthenticator_PassesIdentity(t *testing.T) {
	v := &stubVerifier{resp: &service.VerifyResponse{UserID: 1, Username: "u1", Email: "u1@x.io", Valid: true}}

	rec, seen := serveAuth(v, "Bearer abc.def.ghi")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "abc.def.ghi", v.gotToken)
	require.NotNil(t, seen)
	assert.Equal(t, int64(1), seen.UserID)
}

func TestAuthenticator_MissingOrWrongScheme(t *testing.T) {
	for _, header := range []string{"", "Basic Zm9vOmJhcg==", "Bearer", "abc.def.ghi"} {
		v := &stubVerifier{}
		rec, seen := serveAuth(v, header)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Nil(t, seen)
		assert.Empty(t, v.gotToken, "verifier must not run for %q", header)

		var body common.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, common.KindAuthentication, body.Error)
		assert.Equal(t, MsgNotAuthenticated, body.Message)
	}
}

func TestAuthenticator_VerifierRejects(t *testing.T) {
	v := &stubVerifier{err: common.NewAuthenticationError("Invalid or expired token")}

	rec, seen := serveAuth(v, "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, seen)

	var body common.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Invalid or expired token", body.Message)
}

func TestIdentityFromContext_Empty(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)
}
