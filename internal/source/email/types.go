package email

import "github.com/nhle/mailsync/internal/model"

// serverPreset holds the well-known IMAP endpoint of a hosted provider.
type serverPreset struct {
	Host string
	Port string
	TLS  bool
}

// presets maps provider types to their IMAP endpoints. Generic IMAP
// accounts have no preset and must carry host and port.
var presets = map[model.ProviderType]serverPreset{
	model.ProviderGmail:   {Host: "imap.gmail.com", Port: "993", TLS: true},
	model.ProviderOutlook: {Host: "outlook.office365.com", Port: "993", TLS: true},
}

// defaultPort is used for generic accounts that leave the port unset.
func defaultPort(useTLS bool) string {
	if useTLS {
		return "993"
	}
	return "143"
}
