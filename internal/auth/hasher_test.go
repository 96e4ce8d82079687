// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusauth/campusauth/internal/auth"
	"github.com/campusauth/campusauth/pkg/errutil"
)

// fastParams keeps hashing cheap in tests.
var fastParams = auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32}

func fastHasher(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasherWithParams(fastParams)
	require.NoError(t, err)
	return h
}

func TestHashPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("produces PHC encoded argon2id", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
	})

	t.Run("same password produces different hashes that both verify", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)

		for _, h := range []string{hash1, hash2} {
			ok, err := hasher.Verify("samepassword", h)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})

	t.Run("encodes custom params", func(t *testing.T) {
		hash, err := fastHasher(t).Hash("pw")
		require.NoError(t, err)
		assert.Contains(t, hash, "$m=64,t=1,p=1$")
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := fastHasher(t)
	hash, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("hash from default params verifies with custom hasher", func(t *testing.T) {
		other, err := auth.NewArgon2idHasher().Hash("pw")
		require.NoError(t, err)
		ok, err := hasher.Verify("pw", other)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	invalid := []struct {
		name string
		hash string
		msg  string
	}{
		{"not a hash", "not-a-valid-hash", "invalid hash format"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported hash algorithm"},
		{"bad version", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA", ""},
		{"unknown version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported argon2 version"},
		{"bad params", "$argon2id$v=19$invalid$c2FsdA$aGFzaA", ""},
		{"bad salt", "$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA", ""},
		{"bad key", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!", ""},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", "threads value"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hasher.Verify("password", tt.hash)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	hasher := fastHasher(t)
	legacy, err := bcrypt.GenerateFromPassword([]byte("pw123"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := hasher.Verify("pw123", string(legacy))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("wrong", string(legacy))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = hasher.Verify("pw123", "$2a$10$tooshort")
	require.Error(t, err)
}

func TestNeedsUpgrade(t *testing.T) {
	hasher := fastHasher(t)

	current, err := hasher.Hash("pw")
	require.NoError(t, err)
	stronger, err := auth.NewArgon2idHasher().Hash("pw")
	require.NoError(t, err)

	assert.False(t, hasher.NeedsUpgrade(current))
	assert.True(t, hasher.NeedsUpgrade(stronger), "different work factor")
	assert.True(t, hasher.NeedsUpgrade("$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq.Uf3hE9tQALNP1Qn9sNp5x5x5x5"))
	assert.True(t, hasher.NeedsUpgrade("$argon2id$garbage"))
}

func TestArgon2Params_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *auth.Argon2Params)
	}{
		{"zero time", func(p *auth.Argon2Params) { p.Time = 0 }},
		{"zero threads", func(p *auth.Argon2Params) { p.Threads = 0 }},
		{"memory below threads floor", func(p *auth.Argon2Params) { p.Memory = 4 }},
		{"short salt", func(p *auth.Argon2Params) { p.SaltLen = 4 }},
		{"short key", func(p *auth.Argon2Params) { p.KeyLen = 8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := auth.DefaultArgon2Params
			tt.mutate(&p)
			_, err := auth.NewArgon2idHasherWithParams(p)
			require.Error(t, err)
			errutil.AssertErrorKind(t, err, auth.KindConfiguration)
		})
	}

	require.NoError(t, auth.DefaultArgon2Params.Validate())
}
