package pkg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	passwordHash, err := HashPasswordWithCost("squat-day", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "squat-day", passwordHash)
	assert.True(t, CheckPasswordHash("squat-day", passwordHash))
	assert.False(t, CheckPasswordHash("leg-day", passwordHash))
	assert.False(t, CheckPasswordHash("", passwordHash))
	assert.False(t, CheckPasswordHash("squat-day", ""))

	cost, err := bcrypt.Cost([]byte(passwordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	// hash made with the default cost
	assert.True(t, CheckPasswordHash("sr", "$2a$14$z8cd4yJpzP40Qh2F2BhiMO.sOm4YAIaf30pmUKLOaISojD9HnXgaG"))
}

func TestHashPassword_Invalid(t *testing.T) {
	_, err := HashPassword("")
	require.ErrorIs(t, err, ErrEmptyPassword)

	// bcrypt only takes up to 72 bytes
	_, err = HashPasswordWithCost(strings.Repeat("a", 73), bcrypt.MinCost)
	require.Error(t, err)
}
