package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-chars-long!!"

func TestIssuer_IssueAndValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer, err := NewIssuer(testSecret, "slduel", WithClock(clock))
	require.NoError(t, err)
	other, err := NewIssuer("another-secret-at-least-32-chars-long", "slduel", WithClock(clock))
	require.NoError(t, err)

	tests := []struct {
		name        string
		token       func(t *testing.T) string
		audience    string
		expectedErr error
		verify      func(t *testing.T, claims Claims)
	}{
		{
			name: "success",
			token: func(t *testing.T) string {
				token, expiresAt, err := issuer.Issue("alice", AudienceSocket, time.Hour)
				require.NoError(t, err)
				assert.Equal(t, now.Add(time.Hour), expiresAt)
				return token
			},
			audience: AudienceSocket,
			verify: func(t *testing.T, claims Claims) {
				assert.Equal(t, "alice", claims.UserId)
				assert.Equal(t, AudienceSocket, claims.Audience)
				assert.Equal(t, now.Add(time.Hour), claims.ExpiresAt)
			},
		},
		{
			name: "expired token",
			token: func(t *testing.T) string {
				token, _, err := issuer.Issue("alice", AudienceSocket, -time.Minute)
				require.NoError(t, err)
				return token
			},
			audience:    AudienceSocket,
			expectedErr: ErrExpiredToken,
		},
		{
			name: "invalid signature",
			token: func(t *testing.T) string {
				token, _, err := other.Issue("alice", AudienceSocket, time.Hour)
				require.NoError(t, err)
				return token
			},
			audience:    AudienceSocket,
			expectedErr: ErrInvalidSignature,
		},
		{
			name: "api token at the socket",
			token: func(t *testing.T) string {
				token, _, err := issuer.Issue("alice", AudienceAPI, time.Hour)
				require.NoError(t, err)
				return token
			},
			audience:    AudienceSocket,
			expectedErr: ErrWrongAudience,
		},
		{
			name: "foreign issuer",
			token: func(t *testing.T) string {
				foreign, err := NewIssuer(testSecret, "someone-else", WithClock(clock))
				require.NoError(t, err)
				token, _, err := foreign.Issue("alice", AudienceSocket, time.Hour)
				require.NoError(t, err)
				return token
			},
			audience:    AudienceSocket,
			expectedErr: ErrInvalidToken,
		},
		{
			name: "unsigned token",
			token: func(t *testing.T) string {
				token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
					Subject:   "alice",
					Issuer:    "slduel",
					Audience:  jwt.ClaimStrings{AudienceSocket},
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				})
				signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return signed
			},
			audience:    AudienceSocket,
			expectedErr: ErrInvalidSignature,
		},
		{
			name:        "malformed token",
			token:       func(*testing.T) string { return "not-a-jwt" },
			audience:    AudienceSocket,
			expectedErr: ErrInvalidToken,
		},
		{
			name:        "missing token",
			token:       func(*testing.T) string { return "" },
			audience:    AudienceSocket,
			expectedErr: ErrMissingToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := issuer.Validate(tt.token(t), tt.audience)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			if tt.verify != nil {
				tt.verify(t, claims)
			}
		})
	}
}

func TestNewIssuerRejectsWeakSecret(t *testing.T) {
	_, err := NewIssuer("short", "slduel")
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestIssueRequiresSubject(t *testing.T) {
	issuer, err := NewIssuer(testSecret, "slduel")
	require.NoError(t, err)
	_, _, err = issuer.Issue("", AudienceAPI, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
