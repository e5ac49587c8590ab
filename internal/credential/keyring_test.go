package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useArrayKeyring(t *testing.T) {
	t.Helper()

	ring := keyring.NewArrayKeyring(nil)
	prev := opener
	opener = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { opener = prev })
}

func TestSetGetDelete(t *testing.T) {
	useArrayKeyring(t)
	key := AccountKey("acc-1")

	_, err := Get(key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Set(key, "s3cret"))
	got, err := Get(key)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	require.NoError(t, Delete(key))
	_, err = Get(key)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, Delete(key), "deleting twice is fine")
}

func TestSetRejectsEmptyPassword(t *testing.T) {
	useArrayKeyring(t)
	assert.Error(t, Set(AccountKey("acc-1"), ""))
}
