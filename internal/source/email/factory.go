package email

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nhle/mailsync/internal/credential"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
)

// PasswordFunc resolves a stored secret by key.
type PasswordFunc func(key string) (string, error)

// Factory builds IMAP connectors for every IMAP-speaking provider type.
type Factory struct {
	// Password resolves passwords for accounts that do not store one
	// inline. Defaults to the system keyring.
	Password PasswordFunc

	// ConnectTimeout bounds the TCP/TLS dial.
	ConnectTimeout time.Duration
}

var _ source.Factory = (*Factory)(nil)

// NewFactory creates a factory backed by the system keyring.
func NewFactory(connectTimeout time.Duration) *Factory {
	return &Factory{
		Password:       credential.Get,
		ConnectTimeout: connectTimeout,
	}
}

// New returns an unconnected IMAPClient for the account.
func (f *Factory) New(account *model.EmailAccount) (source.Connector, error) {
	provider := account.Provider
	if provider == "" {
		provider = model.ProviderIMAP
	}

	host, port, useTLS := account.Host, "", account.UseTLS
	if account.Port > 0 {
		port = strconv.Itoa(account.Port)
	}

	switch provider {
	case model.ProviderIMAP:
		if host == "" {
			return nil, fmt.Errorf("account %s: imap host is required", account.ID)
		}
		if port == "" {
			port = defaultPort(useTLS)
		}
	case model.ProviderGmail, model.ProviderOutlook:
		preset := presets[provider]
		if host == "" {
			host, port, useTLS = preset.Host, preset.Port, preset.TLS
		} else if port == "" {
			port = defaultPort(useTLS)
		}
	default:
		return nil, fmt.Errorf("account %s: unsupported provider %q", account.ID, provider)
	}

	username := account.Username
	if username == "" {
		username = account.Email
	}

	password := account.Password
	if password == "" && f.Password != nil {
		secret, err := f.Password(credential.AccountKey(account.ID))
		if err != nil {
			return nil, &source.AuthError{
				Provider: provider,
				Message:  fmt.Sprintf("no password for %s: %v", username, err),
			}
		}
		password = secret
	}

	timeout := f.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return NewIMAPClient(provider, host, port, username, password, useTLS, timeout), nil
}
