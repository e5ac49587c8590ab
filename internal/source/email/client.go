package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
)

var errNotConnected = errors.New("imap session not connected")

// IMAPClient implements source.Connector over a single go-imap v2 session.
type IMAPClient struct {
	provider model.ProviderType
	host     string
	port     string
	username string
	password string
	tls      bool
	timeout  time.Duration

	client   *imapclient.Client
	caps     *source.Capabilities
	selected string
}

var _ source.Connector = (*IMAPClient)(nil)

// NewIMAPClient creates a new IMAP client configuration. No network
// activity happens until Connect.
func NewIMAPClient(
	provider model.ProviderType,
	host, port, username, password string,
	useTLS bool,
	timeout time.Duration,
) *IMAPClient {
	return &IMAPClient{
		provider: provider,
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      useTLS,
		timeout:  timeout,
	}
}

func (c *IMAPClient) addr() string {
	return net.JoinHostPort(c.host, c.port)
}

// Connect dials the server (implicit TLS or STARTTLS) and authenticates.
func (c *IMAPClient) Connect(ctx context.Context) error {
	if c.client != nil {
		return nil
	}

	addr := c.addr()
	dialer := &net.Dialer{Timeout: c.timeout}
	tlsConfig := &tls.Config{ServerName: c.host}
	opts := &imapclient.Options{
		TLSConfig:   tlsConfig,
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	var client *imapclient.Client
	if c.tls {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return &source.ConnectionError{Addr: addr, Err: err}
		}
		client = imapclient.New(conn, opts)
	} else {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return &source.ConnectionError{Addr: addr, Err: err}
		}
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			conn.Close()
			return &source.ConnectionError{Addr: addr, Err: err}
		}
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Close()
		return &source.AuthError{
			Provider: c.provider,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				c.username, err,
			),
		}
	}

	c.client = client
	c.selected = ""
	c.caps = nil
	return nil
}

// Disconnect logs out and closes the connection.
func (c *IMAPClient) Disconnect() error {
	if c.client == nil {
		return nil
	}
	client := c.client
	c.client = nil
	c.selected = ""

	logoutErr := client.Logout().Wait()
	closeErr := client.Close()
	if logoutErr != nil {
		return fmt.Errorf("logging out of %s: %w", c.addr(), logoutErr)
	}
	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return fmt.Errorf("closing %s: %w", c.addr(), closeErr)
	}
	return nil
}

// ready guards every command: the session must be open and ctx alive.
func (c *IMAPClient) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.client == nil {
		return errNotConnected
	}
	return nil
}

// ListFolders runs LIST "" "*".
func (c *IMAPClient) ListFolders(ctx context.Context) ([]model.FolderInfo, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	mailboxes, err := c.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	folders := make([]model.FolderInfo, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		folders = append(folders, folderFromListData(mbox))
	}
	return folders, nil
}

// CheckCapabilities reports CONDSTORE/QRESYNC support. The result is
// cached for the lifetime of the session.
func (c *IMAPClient) CheckCapabilities(ctx context.Context) (source.Capabilities, error) {
	if err := c.ready(ctx); err != nil {
		return source.Capabilities{}, err
	}
	if c.caps != nil {
		return *c.caps, nil
	}

	caps := c.client.Caps()
	result := source.Capabilities{
		CondStore: caps.Has(imap.CapCondStore),
		QResync:   caps.Has(imap.CapQResync),
	}
	// QRESYNC implies CONDSTORE (RFC 7162 section 3.2.3).
	if result.QResync {
		result.CondStore = true
	}
	c.caps = &result
	return result, nil
}

// GetFolderStatus EXAMINEs the folder and reports its current state. A
// fresh EXAMINE is issued each call so counters are never stale.
func (c *IMAPClient) GetFolderStatus(ctx context.Context, folder string) (source.FolderStatus, error) {
	if err := c.ready(ctx); err != nil {
		return source.FolderStatus{}, err
	}

	data, err := c.examine(ctx, folder)
	if err != nil {
		return source.FolderStatus{}, err
	}

	status := source.FolderStatus{
		UIDValidity: data.UIDValidity,
		Exists:      data.NumMessages,
		UIDNext:     uint32(data.UIDNext),
	}
	if data.HighestModSeq > 0 {
		modSeq := data.HighestModSeq
		status.HighestModSeq = &modSeq
	}
	return status, nil
}

// FetchUIDsSinceDate runs UID SEARCH SINCE <date>.
func (c *IMAPClient) FetchUIDsSinceDate(
	ctx context.Context, folder string, since time.Time,
) ([]uint32, error) {
	if err := c.selectFolder(ctx, folder); err != nil {
		return nil, err
	}

	data, err := c.client.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s since %s: %w", folder, since.Format(time.DateOnly), err)
	}
	return uidsToUint32(data.AllUIDs()), nil
}

// FetchUIDsInRange runs UID SEARCH UID low:high. A high of
// source.Unbounded is sent as "*".
func (c *IMAPClient) FetchUIDsInRange(
	ctx context.Context, folder string, low, high uint32,
) ([]uint32, error) {
	if err := c.selectFolder(ctx, folder); err != nil {
		return nil, err
	}
	if low == 0 {
		low = 1
	}

	var uidSet imap.UIDSet
	uidSet.AddRange(imap.UID(low), imap.UID(high))

	criteria := &imap.SearchCriteria{UID: []imap.UIDSet{uidSet}}
	data, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s UIDs %s: %w", folder, uidSet.String(), err)
	}
	return uidsToUint32(data.AllUIDs()), nil
}

// FetchEmailByUID fetches envelope, flags and the full body of one
// message without setting \Seen.
func (c *IMAPClient) FetchEmailByUID(
	ctx context.Context, folder string, uid uint32,
) (*source.Message, error) {
	if err := c.selectFolder(ctx, folder); err != nil {
		return nil, err
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:          true,
		Flags:        true,
		Envelope:     true,
		InternalDate: true,
		RFC822Size:   true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}

	buffers, err := c.client.Fetch(imap.UIDSetNum(imap.UID(uid)), fetchOpts).Collect()
	if err != nil {
		// A tagged NO/BAD concerns this message only; anything else is
		// the session failing.
		var imapErr *imap.Error
		if errors.As(err, &imapErr) {
			return nil, &source.MessageError{Folder: folder, UID: uid, Err: err}
		}
		return nil, &source.ConnectionError{Addr: c.addr(), Err: err}
	}
	if len(buffers) == 0 {
		return nil, nil
	}

	buf := buffers[0]
	msg := messageFromBuffer(buf)
	if raw := buf.FindBodySection(bodySection); raw != nil {
		parsed, err := parseMIMEBody(raw)
		if err != nil {
			return nil, &source.MessageError{Folder: folder, UID: uid, Err: err}
		}
		msg.TextBody = parsed.TextBody
		msg.HTMLBody = parsed.HTMLBody
		msg.Attachments = parsed.Attachments
		if msg.MessageID == "" {
			msg.MessageID = parsed.MessageID
		}
	}
	if msg.MessageID == "" {
		msg.MessageID = syntheticMessageID(msg)
	}

	return msg, nil
}

// FetchFlagsByUIDs fetches only FLAGS for the given UIDs. UIDs that no
// longer exist are absent from the result.
func (c *IMAPClient) FetchFlagsByUIDs(
	ctx context.Context, folder string, uids []uint32,
) (map[uint32]model.Flags, error) {
	if len(uids) == 0 {
		return map[uint32]model.Flags{}, nil
	}
	if err := c.selectFolder(ctx, folder); err != nil {
		return nil, err
	}

	set := make([]imap.UID, len(uids))
	for i, uid := range uids {
		set[i] = imap.UID(uid)
	}

	fetchOpts := &imap.FetchOptions{UID: true, Flags: true}
	buffers, err := c.client.Fetch(imap.UIDSetNum(set...), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching flags in %s: %w", folder, err)
	}

	result := make(map[uint32]model.Flags, len(buffers))
	for _, buf := range buffers {
		result[uint32(buf.UID)] = flagsFromIMAP(buf.Flags)
	}
	return result, nil
}

func (c *IMAPClient) examine(ctx context.Context, folder string) (*imap.SelectData, error) {
	caps, err := c.CheckCapabilities(ctx)
	if err != nil {
		return nil, err
	}

	data, err := c.client.Select(folder, &imap.SelectOptions{
		ReadOnly:  true,
		CondStore: caps.CondStore,
	}).Wait()
	if err != nil {
		c.selected = ""
		return nil, fmt.Errorf("examining %s: %w", folder, err)
	}
	c.selected = folder
	return data, nil
}

// selectFolder EXAMINEs folder unless it is already the selected one.
func (c *IMAPClient) selectFolder(ctx context.Context, folder string) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	if c.selected == folder {
		return nil
	}
	_, err := c.examine(ctx, folder)
	return err
}

func uidsToUint32(uids []imap.UID) []uint32 {
	out := make([]uint32, len(uids))
	for i, uid := range uids {
		out[i] = uint32(uid)
	}
	return out
}
