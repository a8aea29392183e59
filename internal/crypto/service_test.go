package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_EncryptDecrypt_RoundTrip(t *testing.T) {
	svc := NewService(DefaultConfig())
	require.NoError(t, svc.Initialize("correct horse battery staple"))
	require.True(t, svc.IsReady())

	plaintext := []byte("editor.tabSize = 4")

	env, err := svc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.Equal(t, "aes-256-gcm", env.Algorithm)
	assert.NotEmpty(t, env.Salt)
	assert.NotEmpty(t, env.Data)

	decrypted, err := svc.Decrypt(env)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestService_Decrypt_ForeignSalt(t *testing.T) {
	// Два узла с одним паролем, но разными солями:
	// envelope узла A расшифровывается узлом B
	a := NewService(DefaultConfig())
	b := NewService(DefaultConfig())
	require.NoError(t, a.Initialize("shared password"))
	require.NoError(t, b.Initialize("shared password"))

	env, err := a.Encrypt([]byte("secret config"))
	require.NoError(t, err)

	decrypted, err := b.Decrypt(env)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret config"), decrypted)
}

func TestService_Decrypt_WrongPassword(t *testing.T) {
	a := NewService(DefaultConfig())
	b := NewService(DefaultConfig())
	require.NoError(t, a.Initialize("password one"))
	require.NoError(t, b.Initialize("password two"))

	env, err := a.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = b.Decrypt(env)
	assert.Error(t, err, "wrong password must fail authentication")
}

func TestService_NotInitialized(t *testing.T) {
	svc := NewService(DefaultConfig())

	assert.False(t, svc.IsReady())

	_, err := svc.Encrypt([]byte("x"))
	assert.Error(t, err)

	_, err = svc.Decrypt(&Envelope{Algorithm: "aes-256-gcm"})
	assert.Error(t, err)
}

func TestService_Initialize_EmptyPassword(t *testing.T) {
	svc := NewService(DefaultConfig())
	assert.Error(t, svc.Initialize(""))
}

func TestService_Destroy(t *testing.T) {
	svc := NewService(DefaultConfig())
	require.NoError(t, svc.Initialize("password"))
	require.True(t, svc.IsReady())

	svc.Destroy()

	assert.False(t, svc.IsReady())
	_, err := svc.Encrypt([]byte("x"))
	assert.Error(t, err)
}

func TestEnvelope_MarshalRoundTrip(t *testing.T) {
	svc := NewService(DefaultConfig())
	require.NoError(t, svc.Initialize("password"))

	env, err := svc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	data, err := env.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEnvelope(data)
	require.NoError(t, err)

	decrypted, err := svc.Decrypt(restored)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), decrypted)
}

func TestEncrypt_Validation(t *testing.T) {
	key := make([]byte, KeySize)

	_, err := Encrypt(nil, key)
	assert.Error(t, err, "empty plaintext rejected")

	_, err = Encrypt([]byte("data"), []byte("short"))
	assert.Error(t, err, "short key rejected")
}

func TestDecrypt_Corrupted(t *testing.T) {
	key := make([]byte, KeySize)
	encrypted, err := Encrypt([]byte("data"), key)
	require.NoError(t, err)

	encrypted[len(encrypted)-1] ^= 0xff

	_, err = Decrypt(encrypted, key)
	assert.Error(t, err, "corrupted ciphertext must fail authentication")
}

func TestHashPayload(t *testing.T) {
	hash := HashPayload([]byte("hello"))

	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashPayload([]byte("hello")), "hash is deterministic")
	assert.NotEqual(t, hash, HashPayload([]byte("hello!")))

	require.NoError(t, VerifyPayload([]byte("hello"), hash))
	assert.Error(t, VerifyPayload([]byte("other"), hash))
	assert.Error(t, VerifyPayload([]byte("hello"), ""))
}

func TestDeriveKey_Deterministic(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	key1, err := DeriveKey([]byte("password"), salt)
	require.NoError(t, err)
	key2, err := DeriveKey([]byte("password"), salt)
	require.NoError(t, err)

	assert.Equal(t, key1, key2)
	assert.Len(t, key1, KeySize)
}
