package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJWKSServer(t *testing.T, kid string, key *rsa.PublicKey) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kid: kid,
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestCognitoVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := newJWKSServer(t, "kid-1", &key.PublicKey)

	issuer := "https://cognito-idp.ap-southeast-1.amazonaws.com/pool"
	verifier := newJWKSVerifier(issuer, srv.URL)
	require.NoError(t, verifier.LoadKeys(context.Background()))

	valid := jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	sub, err := verifier.Verify(signRS256(t, key, "kid-1", valid))
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)

	_, err = verifier.Verify(signRS256(t, key, "kid-2", valid))
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := valid
	wrongIssuer.Issuer = "https://example.com"
	_, err = verifier.Verify(signRS256(t, key, "kid-1", wrongIssuer))
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	_, err = verifier.Verify(signRS256(t, key, "kid-1", expired))
	assert.ErrorIs(t, err, ErrExpiredToken)

	hmacIssuer, err := NewIssuer(testSecret, issuer)
	require.NoError(t, err)
	hmacToken, _, err := hmacIssuer.Issue("alice", AudienceAPI, time.Hour)
	require.NoError(t, err)
	_, err = verifier.Verify(hmacToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCognitoVerifierLoadKeysFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	verifier := newJWKSVerifier("issuer", srv.URL)
	assert.Error(t, verifier.LoadKeys(context.Background()))
}
