package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

func TestGenerateAndParse(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, err := m.GenerateToken(7, "客服小王", RoleAdmin)
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "客服小王", claims.Name)
	assert.True(t, claims.IsAdmin())
}

func TestParseToken_Expired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute)

	token, err := m.GenerateToken(1, "buyer", RoleUser)
	require.NoError(t, err)

	_, err = m.ParseToken(token)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", time.Hour).GenerateToken(1, "buyer", RoleUser)
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour).ParseToken(token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}
