package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, err := NewService("passphrase-1")
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("my-secret-key")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ciphertext, "enc:v1:"))
	assert.NotContains(t, ciphertext, "my-secret-key")

	plaintext, err := svc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "my-secret-key", plaintext)
}

// 随机 nonce: 同一明文两次加密产生不同密文
func TestEncryptNonDeterministic(t *testing.T) {
	svc, err := NewService("passphrase-1")
	require.NoError(t, err)

	a, err := svc.Encrypt("same-value")
	require.NoError(t, err)
	b, err := svc.Encrypt("same-value")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

// 无前缀的历史明文原样透传，升级加密不需要数据迁移
func TestDecryptLegacyPlaintext(t *testing.T) {
	svc, err := NewService("passphrase-1")
	require.NoError(t, err)

	plaintext, err := svc.Decrypt("legacy-plain-key")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plain-key", plaintext)
}

func TestEmptyValuesPassThrough(t *testing.T) {
	svc, err := NewService("passphrase-1")
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, ciphertext)

	plaintext, err := svc.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}

func TestWrongPassphraseRejected(t *testing.T) {
	a, err := NewService("passphrase-1")
	require.NoError(t, err)
	b, err := NewService("passphrase-2")
	require.NoError(t, err)

	ciphertext, err := a.Encrypt("secret")
	require.NoError(t, err)
	_, err = b.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestEmptyPassphraseRejected(t *testing.T) {
	_, err := NewService("")
	assert.Error(t, err)
}
