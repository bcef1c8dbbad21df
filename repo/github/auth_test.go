package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRSAPrivateKeyPKCS1AndPKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	parsed1, err := parseRSAPrivateKey(x509.MarshalPKCS1PrivateKey(key))
	require.NoError(t, err)
	assert.Zero(t, parsed1.N.Cmp(key.N))

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	parsed8, err := parseRSAPrivateKey(pkcs8)
	require.NoError(t, err)
	assert.Zero(t, parsed8.N.Cmp(key.N))
}

func TestAppTokenSource_DiscoversAndCaches(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	var tokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return &key.PublicKey, nil })
		if err != nil || claims.Issuer != "123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.URL.Path {
		case "/app/installations":
			fmt.Fprint(w, `[{"id":99}]`)
		case "/app/installations/99/access_tokens":
			tokenCalls.Add(1)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"token":"inst-token","expires_at":%q}`, time.Now().Add(time.Hour).Format(time.RFC3339))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src, err := NewAppTokenSourceFromPEM(123, 0, pemBytes, func(o *Options) {
		o.BaseURL = srv.URL
		o.HTTPClient = srv.Client()
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		tok, err := src.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "inst-token", tok)
	}
	assert.EqualValues(t, 1, tokenCalls.Load(), "installation token must be cached")
}

func TestAppTokenSource_BadPEM(t *testing.T) {
	_, err := NewAppTokenSourceFromPEM(1, 1, []byte("not pem"))
	assert.Error(t, err)
}
