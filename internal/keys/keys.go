package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the sync progress view.
type KeyMap struct {
	// Cancel stops the running sync after its current batch is saved.
	Cancel key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Cancel: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "cancel"),
		),
	}
}

// ShortHelp renders the bindings as a one-line hint.
func (k *KeyMap) ShortHelp() string {
	h := k.Cancel.Help()
	return h.Key + " to " + h.Desc
}
