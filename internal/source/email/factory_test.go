package email

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/credential"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
)

func TestFactoryResolvesPasswordFromKeyring(t *testing.T) {
	var asked string
	f := &Factory{
		Password: func(key string) (string, error) {
			asked = key
			return "s3cret", nil
		},
	}

	conn, err := f.New(&model.EmailAccount{
		ID:     "acc-1",
		Email:  "alice@example.com",
		Host:   "imap.example.com",
		UseTLS: false,
	})
	require.NoError(t, err)

	client := conn.(*IMAPClient)
	assert.Equal(t, credential.AccountKey("acc-1"), asked)
	assert.Equal(t, "s3cret", client.password)
	assert.Equal(t, "alice@example.com", client.username)
	assert.Equal(t, "imap.example.com:143", client.addr())
	assert.Equal(t, 30*time.Second, client.timeout)
}

func TestFactoryProviderPresets(t *testing.T) {
	f := &Factory{ConnectTimeout: 5 * time.Second}

	conn, err := f.New(&model.EmailAccount{
		ID:       "acc-1",
		Email:    "alice@gmail.com",
		Provider: model.ProviderGmail,
		Password: "inline",
	})
	require.NoError(t, err)

	client := conn.(*IMAPClient)
	assert.Equal(t, "imap.gmail.com:993", client.addr())
	assert.True(t, client.tls)
	assert.Equal(t, 5*time.Second, client.timeout)
}

func TestFactoryRejectsIncompleteAccounts(t *testing.T) {
	f := &Factory{}

	_, err := f.New(&model.EmailAccount{ID: "acc-1", Provider: model.ProviderIMAP, Password: "x"})
	assert.ErrorContains(t, err, "imap host is required")

	_, err = f.New(&model.EmailAccount{ID: "acc-1", Provider: "pop3"})
	assert.ErrorContains(t, err, "unsupported provider")
}

func TestFactoryMissingPasswordIsAuthError(t *testing.T) {
	f := &Factory{
		Password: func(string) (string, error) { return "", errors.New("item not found") },
	}

	_, err := f.New(&model.EmailAccount{ID: "acc-1", Email: "alice@example.com", Host: "imap.example.com", Port: 993})
	require.Error(t, err)
	assert.True(t, source.IsAuthError(err))
}
