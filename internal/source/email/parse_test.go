package email

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseMIMEBodyMultipart(t *testing.T) {
	raw := crlf(`From: Bob <bob@example.com>
To: alice@example.com
Subject: Report
Message-ID: <report-1@example.com>
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

plain body
--inner
Content-Type: text/html; charset=utf-8

<p>html body</p>
--inner--
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="report.pdf"

0123456789
--outer--
`)

	parsed, err := parseMIMEBody(raw)
	require.NoError(t, err)
	assert.Equal(t, "report-1@example.com", parsed.MessageID)
	assert.Equal(t, "plain body", strings.TrimSpace(parsed.TextBody))
	assert.Equal(t, "<p>html body</p>", strings.TrimSpace(parsed.HTMLBody))
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "report.pdf", parsed.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", parsed.Attachments[0].MIMEType)
	assert.Positive(t, parsed.Attachments[0].Size)
}

func TestParseMIMEBodySinglePart(t *testing.T) {
	raw := crlf(`From: bob@example.com
Subject: hi
Content-Type: text/plain

just text
`)

	parsed, err := parseMIMEBody(raw)
	require.NoError(t, err)
	assert.Empty(t, parsed.MessageID)
	assert.Equal(t, "just text", strings.TrimSpace(parsed.TextBody))
	assert.Empty(t, parsed.Attachments)
}

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "a@b", normalizeMessageID(" <a@b> "))
	assert.Equal(t, "a@b", normalizeMessageID("a@b"))
	assert.Empty(t, normalizeMessageID("  "))
}

func TestSyntheticMessageIDIsStable(t *testing.T) {
	sent := time.Date(2026, 5, 20, 8, 30, 0, 0, time.UTC)
	msg := &source.Message{SentAt: sent, FromAddr: "Bob@Example.com", Subject: "hello", Size: 512}

	first := syntheticMessageID(msg)
	assert.True(t, strings.HasPrefix(first, "synthetic-"))
	assert.True(t, strings.HasSuffix(first, "@mailsync.local"))

	same := *msg
	same.FromAddr = "bob@example.com"
	same.SentAt = sent.In(time.FixedZone("CEST", 2*3600))
	assert.Equal(t, first, syntheticMessageID(&same), "case and zone do not change the key")

	other := *msg
	other.Subject = "hello again"
	assert.NotEqual(t, first, syntheticMessageID(&other))
}

func TestFlagsFromIMAP(t *testing.T) {
	flags := flagsFromIMAP([]imap.Flag{imap.FlagSeen, "\\flagged", imap.FlagDraft, "$Custom"})
	assert.Equal(t, model.Flags{IsRead: true, IsFlagged: true, IsDraft: true}, flags)
}

func TestFolderFromListData(t *testing.T) {
	info := folderFromListData(&imap.ListData{
		Mailbox: "[Gmail]/Sent Mail",
		Delim:   '/',
		Attrs:   []imap.MailboxAttr{imap.MailboxAttrSent},
	})
	assert.Equal(t, "[Gmail]/Sent Mail", info.Name)
	assert.Equal(t, "/", info.Delimiter)
	assert.True(t, info.Selectable)
	assert.True(t, info.HasAttribute(`\sent`))

	noSelect := folderFromListData(&imap.ListData{
		Mailbox: "[Gmail]",
		Attrs:   []imap.MailboxAttr{imap.MailboxAttrNoSelect},
	})
	assert.False(t, noSelect.Selectable)
	assert.Empty(t, noSelect.Delimiter)
}
