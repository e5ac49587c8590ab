package model

import "time"

// HistoryStatus is the outcome of a single sync attempt.
type HistoryStatus string

const (
	HistoryRunning   HistoryStatus = "running"
	HistoryCompleted HistoryStatus = "completed"
	HistoryFailed    HistoryStatus = "failed"
)

// SyncHistoryRecord is one row per sync attempt. The most recent records
// drive the circuit breaker, and LastUpdated of a running record drives
// stale-lock detection.
type SyncHistoryRecord struct {
	ID              string        `db:"id" json:"id"`
	AccountID       string        `db:"account_id" json:"account_id"`
	Status          HistoryStatus `db:"status" json:"status"`
	ForceFullSync   bool          `db:"force_full_sync" json:"force_full_sync"`
	EmailsProcessed int           `db:"emails_processed" json:"emails_processed"`
	EmailsAdded     int           `db:"emails_added" json:"emails_added"`
	EmailsUpdated   int           `db:"emails_updated" json:"emails_updated"`
	FlagsUpdated    int           `db:"flags_updated" json:"flags_updated"`
	FoldersSynced   int           `db:"folders_synced" json:"folders_synced"`
	ErrorMessage    string        `db:"error_message" json:"error_message"`
	StartedAt       time.Time     `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	LastUpdated     time.Time     `db:"last_updated" json:"last_updated"`
}
