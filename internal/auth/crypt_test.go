package auth

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	ok, rehash := CheckPassword(hash, "s3cret")
	assert.True(t, ok)
	assert.False(t, rehash)

	ok, _ = CheckPassword(hash, "wrong")
	assert.False(t, ok)
}

func TestCheckPassword_LegacyMD5(t *testing.T) {
	sum := md5.Sum([]byte("s3cret"))
	legacy := hex.EncodeToString(sum[:])

	ok, rehash := CheckPassword(legacy, "s3cret")
	assert.True(t, ok)
	assert.True(t, rehash)

	ok, rehash = CheckPassword(strings.ToUpper(legacy), "s3cret")
	assert.True(t, ok, "hex digits compare case-insensitively")
	assert.True(t, rehash)

	ok, rehash = CheckPassword(legacy, "other")
	assert.False(t, ok)
	assert.False(t, rehash)
}

func TestCheckPassword_LowCostRehash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, rehash := CheckPassword(string(hash), "s3cret")
	assert.True(t, ok)
	assert.True(t, rehash)
}
