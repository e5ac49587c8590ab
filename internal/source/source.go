package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// AuthError indicates that the server rejected the account's credentials.
type AuthError struct {
	Provider model.ProviderType
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ConnectionError means the server could not be reached or the session
// could not be established. It is fatal for a sync attempt.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is a ConnectionError or AuthError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr) || IsAuthError(err)
}

// MessageError is a failure to fetch or parse a single message. It is
// recoverable: the UID is skipped and queued for retry.
type MessageError struct {
	Folder string
	UID    uint32
	Err    error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("message %s/%d: %v", e.Folder, e.UID, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }

// IsMessageError reports whether err is a per-message failure.
func IsMessageError(err error) bool {
	var msgErr *MessageError
	return errors.As(err, &msgErr)
}

// Capabilities reports the IMAP extensions relevant to incremental sync.
type Capabilities struct {
	CondStore bool
	QResync   bool
}

// FolderStatus is the server-side state of a folder at the time of the call.
type FolderStatus struct {
	UIDValidity uint32

	// HighestModSeq is nil when the server does not support CONDSTORE.
	HighestModSeq *uint64

	// Exists is the number of messages in the folder.
	Exists uint32

	// UIDNext is the predicted next UID, 0 if the server did not send one.
	UIDNext uint32
}

// Message is a fully fetched and parsed message.
type Message struct {
	UID          uint32
	MessageID    string
	Flags        model.Flags
	Subject      string
	FromAddr     string
	FromName     string
	To           []string
	Cc           []string
	InReplyTo    string
	SentAt       time.Time
	InternalDate time.Time
	Size         int64

	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment holds metadata about a message attachment.
type Attachment struct {
	Filename string
	Size     int64
	MIMEType string
}

// Unbounded is passed as the high end of FetchUIDsInRange to mean "*".
const Unbounded uint32 = 0

// Connector is the per-provider capability contract consumed by the sync
// engine. A Connector represents exactly one server session and is not safe
// for concurrent use.
type Connector interface {
	// Connect opens and authenticates the session. Failures are returned
	// as *ConnectionError or *AuthError.
	Connect(ctx context.Context) error

	// Disconnect closes the session. It is safe to call on a session that
	// never connected.
	Disconnect() error

	ListFolders(ctx context.Context) ([]model.FolderInfo, error)

	CheckCapabilities(ctx context.Context) (Capabilities, error)

	GetFolderStatus(ctx context.Context, folder string) (FolderStatus, error)

	// FetchUIDsSinceDate returns the UIDs whose internal date is on or
	// after since, in ascending order.
	FetchUIDsSinceDate(ctx context.Context, folder string, since time.Time) ([]uint32, error)

	// FetchUIDsInRange returns UIDs in [low, high]; high == Unbounded
	// means up to the largest UID in the folder.
	FetchUIDsInRange(ctx context.Context, folder string, low, high uint32) ([]uint32, error)

	// FetchEmailByUID returns nil, nil when the UID no longer exists.
	FetchEmailByUID(ctx context.Context, folder string, uid uint32) (*Message, error)

	FetchFlagsByUIDs(ctx context.Context, folder string, uids []uint32) (map[uint32]model.Flags, error)
}

// Factory builds a Connector for an account, selected by provider type.
type Factory interface {
	New(account *model.EmailAccount) (Connector, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(account *model.EmailAccount) (Connector, error)

// New calls f(account).
func (f FactoryFunc) New(account *model.EmailAccount) (Connector, error) {
	return f(account)
}
