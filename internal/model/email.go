package model

import "time"

// Email is a locally stored message. MessageID is the account-unique
// dedup key; IMAPUID is only trustworthy together with the UIDValidity it
// was observed under and is cleared when its folder's epoch changes.
type Email struct {
	ID        string `db:"id" json:"id"`
	AccountID string `db:"account_id" json:"account_id"`
	MessageID string `db:"message_id" json:"message_id"`

	FolderPath  string  `db:"folder_path" json:"folder_path"`
	IMAPUID     *uint32 `db:"imap_uid" json:"imap_uid,omitempty"`
	UIDValidity *uint32 `db:"uid_validity" json:"uid_validity,omitempty"`

	Flags

	Subject   string    `db:"subject" json:"subject"`
	FromAddr  string    `db:"from_addr" json:"from_addr"`
	FromName  string    `db:"from_name" json:"from_name"`
	ToAddrs   string    `db:"to_addrs" json:"to_addrs"`
	CcAddrs   string    `db:"cc_addrs" json:"cc_addrs"`
	InReplyTo string    `db:"in_reply_to" json:"in_reply_to"`
	SentAt    time.Time `db:"sent_at" json:"sent_at"`

	// InternalDate is the server's arrival time, used for window queries.
	InternalDate time.Time `db:"internal_date" json:"internal_date"`

	BodyText       string `db:"body_text" json:"body_text"`
	BodyHTML       string `db:"body_html" json:"body_html"`
	Snippet        string `db:"snippet" json:"snippet"`
	Size           int64  `db:"size" json:"size"`
	HasAttachments bool   `db:"has_attachments" json:"has_attachments"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Flags holds the IMAP system flags tracked locally. Deletion is modelled
// through IsDeleted and never through row removal.
type Flags struct {
	IsRead     bool `db:"is_read" json:"is_read"`
	IsFlagged  bool `db:"is_flagged" json:"is_flagged"`
	IsAnswered bool `db:"is_answered" json:"is_answered"`
	IsDeleted  bool `db:"is_deleted" json:"is_deleted"`
	IsDraft    bool `db:"is_draft" json:"is_draft"`
}

// SameLocation reports whether e already sits at folder/uid/validity with the
// given flags, i.e. whether an upsert would change nothing.
func (e *Email) SameLocation(folder string, uid, uidValidity uint32, flags Flags) bool {
	return e.FolderPath == folder &&
		e.IMAPUID != nil && *e.IMAPUID == uid &&
		e.UIDValidity != nil && *e.UIDValidity == uidValidity &&
		e.Flags == flags
}
