package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVault(t *testing.T, passphrase string) *Vault {
	t.Helper()
	v, err := New(passphrase)
	require.NoError(t, err)
	return v
}

func TestSealOpen(t *testing.T) {
	v := newVault(t, "test-passphrase")

	sealed, err := v.Seal("my model is WDT780SAEM1")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "WDT780SAEM1")

	got, err := v.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "my model is WDT780SAEM1", got)
}

func TestSealUsesFreshNonce(t *testing.T) {
	v := newVault(t, "test")
	a, err := v.Seal("same")
	require.NoError(t, err)
	b, err := v.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestWrongPassphrase(t *testing.T) {
	sealed, err := newVault(t, "correct-passphrase").Seal("secret")
	require.NoError(t, err)

	_, err = newVault(t, "wrong-passphrase").Open(sealed)
	assert.Error(t, err)
}

func TestSamePassphraseAcrossRestarts(t *testing.T) {
	sealed, err := newVault(t, "stable").Seal("hello")
	require.NoError(t, err)

	got, err := newVault(t, "stable").Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestOpenPlaintext(t *testing.T) {
	_, err := newVault(t, "x").Open("plain text")
	assert.ErrorIs(t, err, ErrNotSealed)
}

func TestEmptyValues(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	v := newVault(t, "test")
	sealed, err := v.Seal("")
	require.NoError(t, err)
	got, err := v.Open(sealed)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = v.Decrypt([]byte{1, 2})
	assert.Error(t, err)
}
