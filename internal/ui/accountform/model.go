package accountform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/mailsync/internal/model"
)

// Values holds the form fields. Pointers into Values are bound to the huh
// fields, so it must not be copied while the form runs.
type Values struct {
	Email      string
	Provider   string
	Host       string
	Port       string
	Username   string
	Password   string
	UseTLS     bool
	Folders    string
	WindowDays string
}

// DefaultValues returns the values a new account form starts with.
func DefaultValues() Values {
	return Values{
		Provider:   string(model.ProviderIMAP),
		Port:       "993",
		UseTLS:     true,
		Folders:    "",
		WindowDays: "30",
	}
}

// Form is the interactive form for adding an email account.
type Form struct {
	values *Values
	form   *huh.Form
}

// New builds the form around a copy of initial.
func New(initial Values) *Form {
	v := initial
	f := &Form{values: &v}
	f.form = f.build()
	return f
}

func (f *Form) build() *huh.Form {
	v := f.values
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Description("Address of the mailbox to sync").
				Placeholder("user@example.com").
				Value(&v.Email).
				Validate(validateEmail),
			huh.NewSelect[string]().
				Title("Provider").
				Options(
					huh.NewOption("IMAP - Any IMAP server", string(model.ProviderIMAP)),
					huh.NewOption("Gmail", string(model.ProviderGmail)),
					huh.NewOption("Outlook", string(model.ProviderOutlook)),
				).
				Value(&v.Provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP Host").
				Description("Leave empty to use the provider's server").
				Placeholder("imap.example.com").
				Value(&v.Host).
				Validate(func(s string) error {
					if v.Provider == string(model.ProviderIMAP) {
						return validateRequired("IMAP Host")(s)
					}
					return nil
				}),
			huh.NewInput().
				Title("IMAP Port").
				Placeholder("993").
				Value(&v.Port).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Description("Defaults to the email address").
				Value(&v.Username),
			huh.NewInput().
				Title("Password").
				Description("Account password or app password").
				EchoMode(huh.EchoModePassword).
				Value(&v.Password).
				Validate(validateRequired("Password")),
			huh.NewConfirm().
				Title("Use TLS").
				Affirmative("Yes").
				Negative("No").
				Value(&v.UseTLS),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Folders").
				Description("Comma-separated; empty discovers INBOX, Sent and Archive").
				Value(&v.Folders),
			huh.NewInput().
				Title("Sync window (days)").
				Value(&v.WindowDays).
				Validate(validateDays),
		),
	).WithWidth(80)
}

// Run shows the form on the terminal until it is submitted or aborted.
func (f *Form) Run() error {
	if err := f.form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return fmt.Errorf("account form: %w", err)
		}
		return err
	}
	return nil
}

// Values returns the current field values.
func (f *Form) Values() Values {
	return *f.values
}

// Account converts the values into an account and the password to store
// separately.
func (v Values) Account(userID string) (*model.EmailAccount, string, error) {
	if err := validateEmail(v.Email); err != nil {
		return nil, "", err
	}
	if err := validatePort(v.Port); err != nil {
		return nil, "", err
	}
	if err := validateDays(v.WindowDays); err != nil {
		return nil, "", err
	}

	provider := model.ProviderType(v.Provider)
	switch provider {
	case "":
		provider = model.ProviderIMAP
	case model.ProviderIMAP, model.ProviderGmail, model.ProviderOutlook:
	default:
		return nil, "", fmt.Errorf("unsupported provider %q", v.Provider)
	}
	if provider == model.ProviderIMAP && strings.TrimSpace(v.Host) == "" {
		return nil, "", errors.New("IMAP Host is required")
	}

	port, _ := strconv.Atoi(strings.TrimSpace(v.Port))
	days, _ := strconv.Atoi(strings.TrimSpace(v.WindowDays))

	var folders []string
	for _, name := range strings.Split(v.Folders, ",") {
		if name = strings.TrimSpace(name); name != "" {
			folders = append(folders, name)
		}
	}

	account := &model.EmailAccount{
		UserID:         userID,
		Email:          strings.TrimSpace(v.Email),
		Provider:       provider,
		Host:           strings.TrimSpace(v.Host),
		Port:           port,
		Username:       strings.TrimSpace(v.Username),
		UseTLS:         v.UseTLS,
		SyncWindowDays: days,
		SyncFolders:    folders,
		Active:         true,
	}
	return account, v.Password, nil
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("email is required")
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return fmt.Errorf("invalid email %q", s)
	}
	return nil
}

func validatePort(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("port is required")
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("port must be a number")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	return nil
}

func validateDays(s string) error {
	days, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return errors.New("sync window must be a number of days")
	}
	if days < 0 {
		return errors.New("sync window cannot be negative")
	}
	return nil
}
