package model

import (
	"strings"
	"time"
)

// SyncStatus is the lifecycle state of an account's most recent sync attempt.
type SyncStatus string

const (
	SyncStatusIdle      SyncStatus = "idle"
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusError     SyncStatus = "error"
)

// ProviderType selects the connector implementation for an account.
type ProviderType string

const (
	ProviderIMAP    ProviderType = "imap"
	ProviderGmail   ProviderType = "gmail"
	ProviderOutlook ProviderType = "outlook"
)

// EmailAccount is a remote mailbox account kept in sync with the local store.
type EmailAccount struct {
	ID       string       `db:"id" json:"id"`
	UserID   string       `db:"user_id" json:"user_id"`
	Email    string       `db:"email" json:"email"`
	Provider ProviderType `db:"provider" json:"provider"`

	// IMAP connection settings. Password may be empty, in which case it is
	// resolved from the system keyring at connect time.
	Host     string `db:"imap_host" json:"imap_host"`
	Port     int    `db:"imap_port" json:"imap_port"`
	Username string `db:"imap_username" json:"imap_username"`
	Password string `db:"imap_password" json:"-"`
	UseTLS   bool   `db:"imap_tls" json:"imap_tls"`

	// SyncWindowDays bounds how far back a full sync looks.
	SyncWindowDays int `db:"sync_window_days" json:"sync_window_days"`

	// SyncFolders is the ordered list of folders processed on every sync.
	SyncFolders []string `db:"-" json:"sync_folders"`

	SupportsCondstore bool `db:"supports_condstore" json:"supports_condstore"`
	SupportsQResync   bool `db:"supports_qresync" json:"supports_qresync"`
	FoldersDiscovered bool `db:"folders_discovered" json:"folders_discovered"`

	SyncStatus        SyncStatus `db:"sync_status" json:"sync_status"`
	// SyncGeneration increases with every sync claim. Claims compare it so
	// that only one of several processes taking over a lock can win.
	SyncGeneration int64 `db:"sync_generation" json:"-"`
	LastSyncAt        *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	LastError         string     `db:"last_error" json:"last_error"`
	TotalEmailsSynced int64      `db:"total_emails_synced" json:"total_emails_synced"`
	Active            bool       `db:"active" json:"active"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FolderInfo describes a folder discovered on the remote server.
type FolderInfo struct {
	Name       string   `db:"name" json:"name"`
	Delimiter  string   `db:"delimiter" json:"delimiter"`
	Attributes []string `db:"-" json:"attributes"`
	Selectable bool     `db:"selectable" json:"selectable"`
}

// HasAttribute reports whether the folder carries the given LIST attribute,
// compared case-insensitively as IMAP requires.
func (f FolderInfo) HasAttribute(attr string) bool {
	for _, a := range f.Attributes {
		if strings.EqualFold(a, attr) {
			return true
		}
	}
	return false
}
