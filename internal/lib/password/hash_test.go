package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
)

func TestGetHash(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{name: "обычный пароль", password: "password123"},
		{name: "спецсимволы", password: "p@ssw0rd!@#$%^&*()"},
		{name: "кириллица", password: "пароль-владельца"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := GetHash(tt.password)
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.True(t, strings.HasPrefix(hash, "$2"))
			assert.NoError(t, CompareHash(hash, tt.password))
		})
	}
}

func TestGetHash_Salted(t *testing.T) {
	first, err := GetHash("same")
	require.NoError(t, err)
	second, err := GetHash("same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestGetHash_TooLong(t *testing.T) {
	_, err := GetHash(strings.Repeat("a", 73))
	require.Error(t, err)
}

func TestCompareHash(t *testing.T) {
	hash, err := GetHash("correct_password")
	require.NoError(t, err)

	t.Run("неверный пароль", func(t *testing.T) {
		err := CompareHash(hash, "wrong_password")
		require.ErrorIs(t, err, apperr.ErrAuthentication)
	})
	t.Run("пустой пароль", func(t *testing.T) {
		require.ErrorIs(t, CompareHash(hash, ""), apperr.ErrAuthentication)
	})
	t.Run("битый хэш", func(t *testing.T) {
		err := CompareHash("not-a-hash", "correct_password")
		require.Error(t, err)
		assert.NotErrorIs(t, err, apperr.ErrAuthentication)
	})
}
