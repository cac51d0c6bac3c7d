package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEncryptor_RequiresSecret(t *testing.T) {
	_, err := NewEncryptor("")
	assert.Error(t, err)

	enc, err := NewEncryptor("some-secret")
	assert.NoError(t, err)
	assert.NotNil(t, enc)
}

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor("test-secret")
	assert.NoError(t, err)

	ciphertext, err := enc.Encrypt("the-refresh-token")
	assert.NoError(t, err)
	assert.NotEqual(t, "the-refresh-token", ciphertext)

	plaintext, err := enc.Decrypt(ciphertext)
	assert.NoError(t, err)
	assert.Equal(t, "the-refresh-token", plaintext)
}

func TestEncryptor_NonceMakesCiphertextsDiffer(t *testing.T) {
	enc, err := NewEncryptor("test-secret")
	assert.NoError(t, err)

	a, err := enc.Encrypt("same-plaintext")
	assert.NoError(t, err)
	b, err := enc.Encrypt("same-plaintext")
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncryptor_TamperedCiphertextFails(t *testing.T) {
	enc, err := NewEncryptor("test-secret")
	assert.NoError(t, err)

	ciphertext, err := enc.Encrypt("payload")
	assert.NoError(t, err)

	tampered := []byte(ciphertext)
	tampered[len(tampered)-1] ^= 'x'
	_, err = enc.Decrypt(string(tampered))
	assert.Error(t, err)
}

func TestEncryptor_WrongKeyFails(t *testing.T) {
	a, err := NewEncryptor("secret-a")
	assert.NoError(t, err)
	b, err := NewEncryptor("secret-b")
	assert.NoError(t, err)

	ciphertext, err := a.Encrypt("payload")
	assert.NoError(t, err)

	_, err = b.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestEncryptor_RejectsGarbage(t *testing.T) {
	enc, err := NewEncryptor("test-secret")
	assert.NoError(t, err)

	_, err = enc.Decrypt("not base64!!!")
	assert.Error(t, err)

	_, err = enc.Decrypt("QQ") // too short for a nonce
	assert.Error(t, err)
}
