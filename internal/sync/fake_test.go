package sync

import (
	"context"
	"errors"
	"slices"
	gosync "sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
	"github.com/nhle/mailsync/internal/store"
	"github.com/nhle/mailsync/tests/testutil"
)

var (
	testNow     = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	testCreated = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
)

type fakeFolder struct {
	validity       uint32
	modSeq         *uint64
	messages       map[uint32]*source.Message
	unknownUIDNext bool
}

// fakeConnector is an in-memory mail server.
type fakeConnector struct {
	mu gosync.Mutex

	caps       source.Capabilities
	folders    map[string]*fakeFolder
	list       []model.FolderInfo
	connectErr error
	fetchErr   map[uint32]error
	panicUID   uint32
	onFetch    func(uid uint32)

	connects    int
	disconnects int
	flagFetches int
	sinceArgs   []time.Time
	fetched     []uint32
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		folders:  make(map[string]*fakeFolder),
		fetchErr: make(map[uint32]error),
		list: []model.FolderInfo{
			{Name: "INBOX", Delimiter: "/", Selectable: true},
			{Name: "Sent", Delimiter: "/", Attributes: []string{`\Sent`}, Selectable: true},
		},
	}
}

func (f *fakeConnector) folder(name string, validity uint32) *fakeFolder {
	f.mu.Lock()
	defer f.mu.Unlock()

	folder, ok := f.folders[name]
	if !ok {
		folder = &fakeFolder{messages: make(map[uint32]*source.Message)}
		f.folders[name] = folder
	}
	folder.validity = validity
	return folder
}

func (f *fakeFolder) put(uid uint32, messageID string, internal time.Time) *source.Message {
	msg := &source.Message{
		UID:          uid,
		MessageID:    messageID,
		Subject:      "subject " + messageID,
		FromAddr:     "bob@example.com",
		FromName:     "Bob",
		To:           []string{"alice@example.com"},
		SentAt:       internal,
		InternalDate: internal,
		Size:         1024,
		TextBody:     "body of " + messageID,
	}
	f.messages[uid] = msg
	return msg
}

func (f *fakeFolder) setModSeq(v uint64) {
	f.modSeq = &v
}

func (f *fakeFolder) sortedUIDs() []uint32 {
	uids := make([]uint32, 0, len(f.messages))
	for uid := range f.messages {
		uids = append(uids, uid)
	}
	slices.Sort(uids)
	return uids
}

func (f *fakeConnector) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeConnector) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeConnector) ListFolders(ctx context.Context) ([]model.FolderInfo, error) {
	return f.list, nil
}

func (f *fakeConnector) CheckCapabilities(ctx context.Context) (source.Capabilities, error) {
	return f.caps, nil
}

func (f *fakeConnector) lookup(name string) (*fakeFolder, error) {
	folder, ok := f.folders[name]
	if !ok {
		return nil, errors.New("no such folder " + name)
	}
	return folder, nil
}

func (f *fakeConnector) GetFolderStatus(ctx context.Context, name string) (source.FolderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	folder, err := f.lookup(name)
	if err != nil {
		return source.FolderStatus{}, err
	}
	status := source.FolderStatus{
		UIDValidity: folder.validity,
		Exists:      uint32(len(folder.messages)),
	}
	if folder.modSeq != nil {
		v := *folder.modSeq
		status.HighestModSeq = &v
	}
	if uids := folder.sortedUIDs(); len(uids) > 0 && !folder.unknownUIDNext {
		status.UIDNext = uids[len(uids)-1] + 1
	}
	return status, nil
}

func (f *fakeConnector) FetchUIDsSinceDate(ctx context.Context, name string, since time.Time) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sinceArgs = append(f.sinceArgs, since)
	folder, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	var uids []uint32
	for _, uid := range folder.sortedUIDs() {
		if !folder.messages[uid].InternalDate.Before(since) {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}

// FetchUIDsInRange mimics servers that answer "n:*" with the highest UID
// even when it is below n.
func (f *fakeConnector) FetchUIDsInRange(ctx context.Context, name string, low, high uint32) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	folder, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	all := folder.sortedUIDs()
	var uids []uint32
	for _, uid := range all {
		if uid >= low && (high == source.Unbounded || uid <= high) {
			uids = append(uids, uid)
		}
	}
	if len(uids) == 0 && high == source.Unbounded && len(all) > 0 {
		uids = append(uids, all[len(all)-1])
	}
	return uids, nil
}

func (f *fakeConnector) FetchEmailByUID(ctx context.Context, name string, uid uint32) (*source.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.onFetch != nil {
		f.onFetch(uid)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.panicUID != 0 && uid == f.panicUID {
		panic("boom")
	}
	f.fetched = append(f.fetched, uid)
	if err := f.fetchErr[uid]; err != nil {
		return nil, &source.MessageError{Folder: name, UID: uid, Err: err}
	}
	folder, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	msg, ok := folder.messages[uid]
	if !ok {
		return nil, nil
	}
	copied := *msg
	copied.UID = uid
	return &copied, nil
}

func (f *fakeConnector) FetchFlagsByUIDs(ctx context.Context, name string, uids []uint32) (map[uint32]model.Flags, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.flagFetches++
	folder, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	result := make(map[uint32]model.Flags, len(uids))
	for _, uid := range uids {
		if msg, ok := folder.messages[uid]; ok {
			result[uid] = msg.Flags
		}
	}
	return result, nil
}

// recordingTrigger captures embedding triggers.
type recordingTrigger struct {
	mu    gosync.Mutex
	users []string
	err   error
}

func (r *recordingTrigger) Trigger(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return r.err
}

func (r *recordingTrigger) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.users)
}

type harness struct {
	svc     *Service
	store   *store.SQLStore
	conn    *fakeConnector
	account *model.EmailAccount
	trigger *recordingTrigger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st := testutil.NewTestStore(t)
	return newHarnessWithStore(t, st, st)
}

// newHarnessWithStore lets a test wrap the store the service sees while
// assertions still read through the plain SQLStore.
func newHarnessWithStore(t *testing.T, st *store.SQLStore, svcStore store.Store) *harness {
	t.Helper()

	account := testutil.NewTestAccount(t, st, testCreated)
	conn := newFakeConnector()
	trigger := &recordingTrigger{}
	factory := source.FactoryFunc(func(*model.EmailAccount) (source.Connector, error) {
		return conn, nil
	})

	svc := NewService(svcStore, factory, trigger, model.DefaultAppConfig().Sync, zerolog.Nop())
	svc.now = func() time.Time { return testNow }

	return &harness{svc: svc, store: st, conn: conn, account: account, trigger: trigger}
}

func (h *harness) sync(t *testing.T, forceFull bool) *SyncResult {
	t.Helper()

	result, err := h.svc.SyncAccount(context.Background(), h.account.ID, forceFull)
	require.NoError(t, err)
	require.True(t, result.Success)
	return result
}

func (h *harness) folderState(t *testing.T, folder string) *model.FolderSyncState {
	t.Helper()

	sess := h.store.NewSession()
	defer sess.Close()
	state, err := sess.GetFolderState(context.Background(), h.account.ID, folder)
	require.NoError(t, err)
	return state
}

func (h *harness) retries(t *testing.T, folder string) []model.FolderRetry {
	t.Helper()

	sess := h.store.NewSession()
	defer sess.Close()
	retries, err := sess.ListFolderRetries(context.Background(), h.account.ID, folder)
	require.NoError(t, err)
	return retries
}

func (h *harness) email(t *testing.T, messageID string) *model.Email {
	t.Helper()

	email, err := h.store.GetEmailByMessageID(context.Background(), h.account.ID, messageID)
	require.NoError(t, err)
	return email
}
