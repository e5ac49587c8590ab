package email

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
)

// parsedBody is the MIME-level content of a message.
type parsedBody struct {
	MessageID   string
	TextBody    string
	HTMLBody    string
	Attachments []source.Attachment
}

// messageFromBuffer extracts envelope, flags and metadata from a
// FetchMessageBuffer. The body is filled in separately.
func messageFromBuffer(buf *imapclient.FetchMessageBuffer) *source.Message {
	msg := &source.Message{
		UID:          uint32(buf.UID),
		Flags:        flagsFromIMAP(buf.Flags),
		InternalDate: buf.InternalDate,
		Size:         buf.RFC822Size,
	}

	if env := buf.Envelope; env != nil {
		msg.MessageID = normalizeMessageID(env.MessageID)
		msg.Subject = env.Subject
		msg.SentAt = env.Date

		if len(env.From) > 0 {
			msg.FromAddr = env.From[0].Addr()
			msg.FromName = env.From[0].Name
		}
		for _, to := range env.To {
			msg.To = append(msg.To, to.Addr())
		}
		for _, cc := range env.Cc {
			msg.Cc = append(msg.Cc, cc.Addr())
		}
		if len(env.InReplyTo) > 0 {
			msg.InReplyTo = normalizeMessageID(env.InReplyTo[0])
		}
	}

	return msg
}

// flagsFromIMAP maps IMAP system flags onto the locally tracked set.
func flagsFromIMAP(flags []imap.Flag) model.Flags {
	var f model.Flags
	for _, flag := range flags {
		switch {
		case strings.EqualFold(string(flag), string(imap.FlagSeen)):
			f.IsRead = true
		case strings.EqualFold(string(flag), string(imap.FlagFlagged)):
			f.IsFlagged = true
		case strings.EqualFold(string(flag), string(imap.FlagAnswered)):
			f.IsAnswered = true
		case strings.EqualFold(string(flag), string(imap.FlagDeleted)):
			f.IsDeleted = true
		case strings.EqualFold(string(flag), string(imap.FlagDraft)):
			f.IsDraft = true
		}
	}
	return f
}

// folderFromListData converts a LIST response entry.
func folderFromListData(data *imap.ListData) model.FolderInfo {
	info := model.FolderInfo{
		Name:       data.Mailbox,
		Selectable: true,
	}
	if data.Delim != 0 {
		info.Delimiter = string(data.Delim)
	}
	for _, attr := range data.Attrs {
		info.Attributes = append(info.Attributes, string(attr))
		if attr == imap.MailboxAttrNoSelect || attr == imap.MailboxAttrNonExistent {
			info.Selectable = false
		}
	}
	return info
}

// parseMIMEBody parses a raw RFC 5322 message using go-message and
// extracts the text/plain body, text/html body, and attachment metadata.
// Unparseable MIME structure falls back to treating the message as text;
// only a broken top-level header is reported as an error.
func parseMIMEBody(raw []byte) (*parsedBody, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && mr == nil {
		return nil, fmt.Errorf("reading message header: %w", err)
	}
	defer mr.Close()

	parsed := &parsedBody{}
	if id, idErr := mr.Header.MessageID(); idErr == nil {
		parsed.MessageID = normalizeMessageID(id)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if parsed.TextBody == "" && parsed.HTMLBody == "" {
				parsed.TextBody = string(bodyAfterHeader(raw))
			}
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain") && parsed.TextBody == "":
				parsed.TextBody = string(body)
			case strings.HasPrefix(contentType, "text/html") && parsed.HTMLBody == "":
				parsed.HTMLBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			// Read to get size without storing content
			n, readErr := io.Copy(io.Discard, part.Body)
			if readErr != nil {
				continue
			}

			parsed.Attachments = append(parsed.Attachments, source.Attachment{
				Filename: filename,
				Size:     n,
				MIMEType: contentType,
			})
		}
	}

	return parsed, nil
}

func bodyAfterHeader(raw []byte) []byte {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[i+4:]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[i+2:]
	}
	return raw
}

func normalizeMessageID(id string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(id), "<>"))
}

// syntheticMessageID derives a stable dedup key for messages that carry
// no Message-ID header.
func syntheticMessageID(msg *source.Message) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%d",
		msg.SentAt.UTC().Unix(), strings.ToLower(msg.FromAddr), msg.Subject, msg.Size)
	return "synthetic-" + hex.EncodeToString(h.Sum(nil))[:32] + "@mailsync.local"
}
