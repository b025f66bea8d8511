// Package vault encrypts provider API keys for storage in browser cookies.
//
// Tokens have the form hex(nonce):hex(ciphertext), where the ciphertext is
// AES-256-GCM output keyed by SHA-256 of the server secret. A token decrypts
// only under the secret that produced it.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
)

const separator = ":"

// CookieSuffix is appended to the provider id to form the credential cookie name.
const CookieSuffix = "-api-key"

var (
	errMalformedToken = errors.New("malformed token")
	errAuthentication = errors.New("message authentication failed")
)

// CookieName returns the name of the cookie holding the key for provider.
func CookieName(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider)) + CookieSuffix
}

// Encrypt seals plaintext under secret. Every call uses a fresh random nonce.
func Encrypt(plaintext, secret string) (string, error) {
	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + separator + hex.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt under the same secret.
func Decrypt(token, secret string) (string, error) {
	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	nonceHex, sealedHex, ok := strings.Cut(token, separator)
	if !ok {
		return "", decryptionError(errMalformedToken)
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != gcm.NonceSize() {
		return "", decryptionError(errMalformedToken)
	}

	sealed, err := hex.DecodeString(sealedHex)
	if err != nil || len(sealed) < gcm.Overhead() {
		return "", decryptionError(errMalformedToken)
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", decryptionError(errAuthentication)
	}

	return string(plaintext), nil
}

func newGCM(secret string) (cipher.AEAD, error) {
	if secret == "" {
		return nil, chaterr.New(chaterr.KindConfiguration, chaterr.MsgSecretNotConfigured)
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}

func decryptionError(cause error) error {
	return chaterr.Wrap(chaterr.KindDecryption, cause, chaterr.MsgDecryption)
}
