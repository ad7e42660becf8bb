package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsStrong(t *testing.T) {
	cases := []struct {
		password string
		want     bool
	}{
		{"Abc123!", false},
		{"Abcd123!", true},
		{"abcd123!", false},
		{"ABCD123!", false},
		{"Abcdefg!", false},
		{"Abcd1234", false},
		{"Abcd123$", false},
		{"Zz9?Zz9?", true},
		{"", false},
		{"Abc12!é", false},
		{"Ébc123!", false},
		{"Ébcd123!", true},
	}

	for _, tc := range cases {
		t.Run(tc.password, func(t *testing.T) {
			assert.Equal(t, tc.want, IsStrong(tc.password))
		})
	}
}

func TestHasher_VerifyRoundTrip(t *testing.T) {
	h := Hasher{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32}

	salt, err := Salt()
	require.NoError(t, err)
	require.Len(t, salt, SaltSize)

	digest := h.Hash("Abcd123!", salt)
	assert.Len(t, digest, 32)
	assert.True(t, h.Verify("Abcd123!", salt, digest))
	assert.False(t, h.Verify("Abcd123?", salt, digest))

	other, err := Salt()
	require.NoError(t, err)
	assert.NotEqual(t, salt, other)
	assert.False(t, h.Verify("Abcd123!", other, digest))
}

func TestHasher_Deterministic(t *testing.T) {
	h := Hasher{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16}
	salt := []byte("fixed-salt-value")

	assert.Equal(t, h.Hash("secret", salt), h.Hash("secret", salt))
	assert.NotEqual(t, h.Hash("secret", salt), h.Hash("secret2", salt))
}
