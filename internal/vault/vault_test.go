package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
)

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"sk-test-1234567890",
		"",
		"ключ-with-unicode-✓",
		strings.Repeat("x", 4096),
	}

	for _, plaintext := range inputs {
		token, err := Encrypt(plaintext, "server-secret")
		require.NoError(t, err)

		got, err := Decrypt(token, "server-secret")
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestTokenFormat(t *testing.T) {
	token, err := Encrypt("sk-abc", "secret")
	require.NoError(t, err)

	nonce, sealed, ok := strings.Cut(token, ":")
	require.True(t, ok)
	assert.Len(t, nonce, 24)
	assert.NotEmpty(t, sealed)
	assert.NotContains(t, token, "sk-abc")
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	a, err := Encrypt("same", "secret")
	require.NoError(t, err)
	b, err := Encrypt("same", "secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecryptWrongSecret(t *testing.T) {
	token, err := Encrypt("sk-live-key", "secret-one")
	require.NoError(t, err)

	got, err := Decrypt(token, "secret-two")
	require.Error(t, err)
	assert.Empty(t, got)
	assert.True(t, chaterr.Is(err, chaterr.KindDecryption))
	assert.NotContains(t, err.Error(), "sk-live-key")
	assert.NotContains(t, err.Error(), token)
}

func TestDecryptMalformed(t *testing.T) {
	valid, err := Encrypt("sk-key", "secret")
	require.NoError(t, err)
	nonce, sealed, _ := strings.Cut(valid, ":")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no separator", nonce + sealed},
		{"bad nonce hex", "zz" + nonce[2:] + ":" + sealed},
		{"short nonce", nonce[:10] + ":" + sealed},
		{"bad ciphertext hex", nonce + ":xyz"},
		{"truncated ciphertext", nonce + ":" + sealed[:8]},
		{"tampered ciphertext", nonce + ":" + flipFirstHex(sealed)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.token, "secret")
			require.Error(t, err)
			assert.True(t, chaterr.Is(err, chaterr.KindDecryption))
		})
	}
}

func TestMissingSecret(t *testing.T) {
	_, err := Encrypt("sk", "")
	assert.True(t, chaterr.Is(err, chaterr.KindConfiguration))

	_, err = Decrypt("aa:bb", "")
	assert.True(t, chaterr.Is(err, chaterr.KindConfiguration))
}

func TestCookieName(t *testing.T) {
	assert.Equal(t, "openai-api-key", CookieName("openai"))
	assert.Equal(t, "anthropic-api-key", CookieName(" Anthropic "))
	assert.Equal(t, "openrouter-api-key", CookieName("openrouter"))
}

func flipFirstHex(s string) string {
	b := []byte(s)
	if b[0] == '0' {
		b[0] = '1'
	} else {
		b[0] = '0'
	}
	return string(b)
}
