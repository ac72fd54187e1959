package cryptox

import (
	"bytes"
	"testing"

	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1, err := DeriveMasterKey(password, salt)
	require.NoError(t, err)
	key2, err := DeriveMasterKey(password, salt)
	require.NoError(t, err)

	assert.Equal(t, key1, key2)
	assert.Len(t, key1, KeySize)
}

func TestDeriveMasterKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	key1, err := DeriveMasterKey(password, []byte("salt-1"))
	require.NoError(t, err)
	key2, err := DeriveMasterKey(password, []byte("salt-2"))
	require.NoError(t, err)

	assert.NotEqual(t, key1, key2)
}

func TestDeriveMasterKey_WeakInput(t *testing.T) {
	_, err := DeriveMasterKey(nil, []byte("salt"))
	assert.ErrorIs(t, err, common.ErrWeakDerivationInput)

	_, err = DeriveMasterKey([]byte(""), []byte("salt"))
	assert.ErrorIs(t, err, common.ErrWeakDerivationInput)

	_, err = DeriveMasterKey([]byte("password"), nil)
	assert.ErrorIs(t, err, common.ErrWeakDerivationInput)
}

func TestMakeVerifier_DoesNotRevealKey(t *testing.T) {
	key, err := DeriveMasterKey([]byte("pw"), []byte("salt"))
	require.NoError(t, err)

	v := MakeVerifier(key)
	assert.Len(t, v, 32)
	assert.False(t, bytes.Equal(v, key))
}

func TestWrapUnwrapRecordKey_RoundTrip(t *testing.T) {
	masterKey, err := DeriveMasterKey([]byte("pw"), []byte("salt"))
	require.NoError(t, err)

	recordKey := GenerateRecordKey()

	env, err := WrapRecordKey(masterKey, recordKey)
	require.NoError(t, err)
	assert.NotEqual(t, recordKey, env.Ciphertext)

	got, err := UnwrapRecordKey(masterKey, env)
	require.NoError(t, err)
	assert.Equal(t, recordKey, got)
}

func TestUnwrapRecordKey_WrongKey(t *testing.T) {
	masterKey, err := DeriveMasterKey([]byte("pw"), []byte("salt"))
	require.NoError(t, err)
	otherKey, err := DeriveMasterKey([]byte("other"), []byte("salt"))
	require.NoError(t, err)

	env, err := WrapRecordKey(masterKey, GenerateRecordKey())
	require.NoError(t, err)

	_, err = UnwrapRecordKey(otherKey, env)
	assert.Error(t, err)
}

func TestEncryptDecryptRecord_RoundTrip(t *testing.T) {
	recordKey := GenerateRecordKey()
	plaintext := []byte(`{"title":"will","body":"..."} `)

	ciphertext, nonce, err := EncryptRecord(plaintext, recordKey)
	require.NoError(t, err)
	assert.Len(t, nonce, NonceSize)

	got, err := DecryptRecord(ciphertext, nonce, recordKey)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}
