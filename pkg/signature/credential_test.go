package signature

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inference-facilitator/pkg/errors"
	"inference-facilitator/pkg/secrets"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestNewCredential(t *testing.T) {
	c1, err := NewCredential("og", testKey)
	require.NoError(t, err)
	c2, err := NewCredential("og", "0x"+testKey)
	require.NoError(t, err)
	assert.Equal(t, c1.Address, c2.Address)

	key, _ := crypto.HexToECDSA(testKey)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), c1.Address)

	_, err = NewCredential("og", "0x1234")
	assert.Error(t, err)
}

func TestCredential_SignRecover(t *testing.T) {
	c, err := NewCredential("og", testKey)
	require.NoError(t, err)

	body := []byte(`{"network":"og","root":"0x01"}`)
	sig, err := c.Sign(body)
	require.NoError(t, err)
	assert.Len(t, sig, 2+65*2)

	addr, err := Recover(body, sig)
	require.NoError(t, err)
	assert.Equal(t, c.Address, addr)

	other, err := Recover([]byte("tampered"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, c.Address, other)
}

func TestSecretProvider_LoadsKeyPerCall(t *testing.T) {
	store := secrets.NewMemoryStore(map[string]string{KeyPath("og"): testKey})
	p := NewSecretProvider(store)

	first, err := p.Signer(context.Background(), "og")
	require.NoError(t, err)

	rotated, err := crypto.GenerateKey()
	require.NoError(t, err)
	store.Set(KeyPath("og"), hexutil.Encode(crypto.FromECDSA(rotated)))

	second, err := p.Signer(context.Background(), "og")
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, second.Address)
	assert.Equal(t, crypto.PubkeyToAddress(rotated.PublicKey), second.Address)
}

func TestSecretProvider_MissingKey(t *testing.T) {
	p := NewSecretProvider(secrets.NewMemoryStore(nil))
	_, err := p.Signer(context.Background(), "base")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
