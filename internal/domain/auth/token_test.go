package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	v := NewVerifier(secret)
	v.now = func() time.Time { return now }

	admin := Principal{UserID: uuid.New(), Role: RoleAdmin}
	valid, err := Sign(secret, admin, now, time.Hour)
	require.NoError(t, err)

	expired, err := Sign(secret, admin, now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)

	foreign, err := Sign([]byte("other"), admin, now, time.Hour)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString(secret)
	require.NoError(t, err)

	badRole, err := Sign(secret, Principal{UserID: uuid.New(), Role: "root"}, now, time.Hour)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: admin.UserID.String()},
	}).SignedString(secret)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: admin.UserID.String()},
		Role:             RoleAdmin,
	}).SignedString(secret)
	require.NoError(t, err)

	got, err := v.Verify(valid)
	require.NoError(t, err)
	assert.Equal(t, admin, got)

	for name, token := range map[string]string{
		"empty":       "",
		"garbage":     "not.a.token",
		"expired":     expired,
		"foreign key": foreign,
		"bad subject": badSubject,
		"bad role":    badRole,
		"wrong alg":   hs512,
		"no expiry":   noExpiry,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestVerifierDefaultsToCustomer(t *testing.T) {
	secret := []byte("test-secret")
	id := uuid.New()
	token, err := Sign(secret, Principal{UserID: id}, time.Now(), time.Hour)
	require.NoError(t, err)

	p, err := NewVerifier(secret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, p.Role)
	assert.Equal(t, id, p.UserID)
}

func TestRequire(t *testing.T) {
	ctx := context.Background()

	_, err := Require(ctx, false)
	require.ErrorIs(t, err, ErrUnauthenticated)

	customer := With(ctx, Principal{UserID: uuid.New(), Role: RoleCustomer})
	_, err = Require(customer, false)
	require.NoError(t, err)
	_, err = Require(customer, true)
	require.ErrorIs(t, err, ErrForbidden)

	admin := With(ctx, Principal{UserID: uuid.New(), Role: RoleAdmin})
	p, err := Require(admin, true)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())
}
