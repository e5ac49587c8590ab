package model

import "time"

// FolderSyncState is the per-folder sync cursor, keyed by account and folder.
//
// LastSyncedUID is only meaningful within the UIDValidity epoch it was
// recorded under. When the server reports a different UIDVALIDITY both
// fields are cleared and the folder is resynced from scratch.
type FolderSyncState struct {
	AccountID  string `db:"account_id" json:"account_id"`
	FolderPath string `db:"folder_path" json:"folder_path"`

	// UIDValidity is nil until the folder has been synced once.
	UIDValidity *uint32 `db:"uid_validity" json:"uid_validity,omitempty"`

	// LastSyncedUID is the highest UID attempted in a committed batch.
	LastSyncedUID *uint32 `db:"last_synced_uid" json:"last_synced_uid,omitempty"`

	// HighestModSeq is the CONDSTORE HIGHESTMODSEQ seen at the end of the
	// last successful folder sync.
	HighestModSeq *uint64 `db:"highest_mod_seq" json:"highest_mod_seq,omitempty"`

	LastSyncAt *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	EmailCount int64      `db:"email_count" json:"email_count"`
}

// Reset drops every UID-derived value, adopting a new UIDVALIDITY epoch.
func (s *FolderSyncState) Reset(uidValidity uint32) {
	s.UIDValidity = &uidValidity
	s.LastSyncedUID = nil
	s.HighestModSeq = nil
}

// AdvanceCursor moves LastSyncedUID forward to uid. It never moves backwards.
func (s *FolderSyncState) AdvanceCursor(uid uint32) {
	if s.LastSyncedUID != nil && *s.LastSyncedUID >= uid {
		return
	}
	s.LastSyncedUID = &uid
}

// FolderRetry is a UID whose fetch failed and that will be retried on the
// next sync of its folder, as long as the UIDVALIDITY epoch is unchanged.
type FolderRetry struct {
	AccountID   string    `db:"account_id"`
	FolderPath  string    `db:"folder_path"`
	UID         uint32    `db:"uid"`
	UIDValidity uint32    `db:"uid_validity"`
	Attempts    int       `db:"attempts"`
	LastError   string    `db:"last_error"`
	UpdatedAt   time.Time `db:"updated_at"`
}
