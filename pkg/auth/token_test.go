package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	v := NewValidator(secret)
	require.NotNil(t, v)

	token, err := IssueToken(secret, "alice", []string{"operator"}, time.Hour)
	require.NoError(t, err)

	p, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.ID)
	assert.Equal(t, []string{"operator"}, p.Roles)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("secret-a"), "alice", nil, time.Hour)
	require.NoError(t, err)

	_, err = NewValidator([]byte("secret-b")).Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, "alice", nil, -time.Minute)
	require.NoError(t, err)

	_, err = NewValidator(secret).Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsMissingSubject(t *testing.T) {
	secret := []byte("test-secret")
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	require.NoError(t, err)

	_, err = NewValidator(secret).Validate(raw)
	assert.Error(t, err)
}

func TestValidateRejectsUnexpectedAlgorithm(t *testing.T) {
	secret := []byte("test-secret")
	// alg=none tokens must never validate.
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "alice",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewValidator(secret).Validate(raw)
	assert.Error(t, err)
}

func TestNilValidatorFailsClosed(t *testing.T) {
	assert.Nil(t, NewValidator(nil))

	var v *Validator
	_, err := v.Validate("anything")
	assert.Error(t, err)
}
