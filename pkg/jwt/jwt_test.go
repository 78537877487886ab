package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewManager("secret", time.Hour)

	token, err := m.GenerateToken("u1", "alice")
	require.NoError(t, err)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.GetUserID())
	assert.Equal(t, "alice", claims.GetUserName())
}

func TestVerify_Expired(t *testing.T) {
	m := NewManager("secret", -time.Minute)
	token, err := m.GenerateToken("u1", "")
	require.NoError(t, err)

	_, err = m.VerifyToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := NewManager("one", time.Hour).GenerateToken("u1", "")
	require.NoError(t, err)

	_, err = NewManager("two", time.Hour).VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_DamoangClaims(t *testing.T) {
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"mb_id":   "damoang-user",
		"mb_name": "다모앙",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	token, err := raw.SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := NewManager("secret", time.Hour).VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "damoang-user", claims.GetUserID())
	assert.Equal(t, "다모앙", claims.GetUserName())
}

func TestVerify_NoSubject(t *testing.T) {
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	token, err := raw.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewManager("secret", time.Hour).VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
