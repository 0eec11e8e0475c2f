package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestVerifier_IssueAndVerify(t *testing.T) {
	v := NewVerifier(testSecret)

	token, err := v.Issue("alice", time.Hour)
	require.NoError(t, err)

	username, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier(testSecret)

	otherKey, err := NewVerifier("other-secret").Issue("alice", time.Hour)
	require.NoError(t, err)

	expired, err := v.Issue("alice", -time.Minute)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject: "alice",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.jwt"},
		{name: "wrong key", token: otherKey},
		{name: "expired", token: expired},
		{name: "no subject", token: noSubject},
		{name: "unexpected algorithm", token: wrongAlg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		url    string
		want   string
	}{
		{name: "bearer header", header: "Bearer abc", url: "/ws", want: "abc"},
		{name: "query parameter", url: "/ws?token=xyz", want: "xyz"},
		{name: "header wins", header: "Bearer abc", url: "/ws?token=xyz", want: "abc"},
		{name: "non-bearer scheme ignored", header: "Basic abc", url: "/ws", want: ""},
		{name: "none", url: "/ws", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, TokenFromRequest(r))
		})
	}
}

func TestIdentify(t *testing.T) {
	v := NewVerifier(testSecret)
	token, err := v.Issue("bob", time.Hour)
	require.NoError(t, err)

	var gotUser string
	var gotOK bool
	h := v.Identify(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUser, gotOK = UsernameFrom(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.True(t, gotOK)
	assert.Equal(t, "bob", gotUser)

	r = httptest.NewRequest(http.MethodGet, "/?token=bogus", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.False(t, gotOK)
}
