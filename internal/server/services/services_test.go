package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/keywarden/internal/common"
	"github.com/dmitrijs2005/keywarden/internal/dbx"
	"github.com/dmitrijs2005/keywarden/internal/keyring"
	"github.com/dmitrijs2005/keywarden/internal/logging"
	"github.com/dmitrijs2005/keywarden/internal/server/models"
	"github.com/dmitrijs2005/keywarden/internal/server/notify"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/contacts"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/escrows"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/owners"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/records"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/requests"
	"github.com/stretchr/testify/require"
)

// In-memory repository fakes. The repository manager hands out the same
// instance regardless of the DBTX, so service logic is exercised with real
// transaction plumbing (sqlmock) but deterministic storage.

type fakeOwners struct {
	mu sync.Mutex
	m  map[string]*models.Owner
}

func newFakeOwners() *fakeOwners { return &fakeOwners{m: make(map[string]*models.Owner)} }

func (f *fakeOwners) Create(ctx context.Context, o *models.Owner) (*models.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.m {
		if e.UserName == o.UserName {
			return nil, common.ErrorInternal
		}
	}
	cp := *o
	cp.ID = newID()
	cp.CreatedAt = time.Now()
	f.m[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeOwners) GetByID(ctx context.Context, id string) (*models.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.m[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOwners) GetByUserName(ctx context.Context, userName string) (*models.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.m {
		if o.UserName == userName {
			cp := *o
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeOwners) AdvanceActivity(ctx context.Context, id string, ts time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.m[id]
	if !ok {
		return false, common.ErrorNotFound
	}
	if !o.LastActivityAt.Before(ts) {
		return false, nil
	}
	o.LastActivityAt = ts
	return true, nil
}

func (f *fakeOwners) UpdateSettings(ctx context.Context, id string, threshold, waitingPeriod time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.m[id]
	if !ok {
		return common.ErrorNotFound
	}
	o.InactivityThreshold = threshold
	o.WaitingPeriod = waitingPeriod
	return nil
}

type fakeContacts struct {
	mu     sync.Mutex
	m      map[string]*models.TrustedContact
	scopes map[string][]string
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{m: make(map[string]*models.TrustedContact), scopes: make(map[string][]string)}
}

func (f *fakeContacts) Create(ctx context.Context, c *models.TrustedContact) (*models.TrustedContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	cp.ID = newID()
	cp.CreatedAt = time.Now()
	f.m[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeContacts) GetByID(ctx context.Context, id string) (*models.TrustedContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.m[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeContacts) GetByInviteToken(ctx context.Context, token string) (*models.TrustedContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.m {
		if c.InviteToken == token {
			cp := *c
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeContacts) ListByOwner(ctx context.Context, ownerID string) ([]*models.TrustedContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.TrustedContact
	for _, c := range f.m {
		if c.OwnerID == ownerID {
			cp := *c
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeContacts) Activate(ctx context.Context, id string, publicKey []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.m[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.PublicKey = publicKey
	c.Status = models.ContactStatusActive
	return nil
}

func (f *fakeContacts) UpdateStatus(ctx context.Context, id string, status models.ContactStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.m[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.Status = status
	return nil
}

func (f *fakeContacts) RecordIDs(ctx context.Context, contactID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scopes[contactID]...), nil
}

func (f *fakeContacts) SetRecordIDs(ctx context.Context, contactID string, recordIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes[contactID] = append([]string(nil), recordIDs...)
	return nil
}

type fakeRecords struct {
	mu sync.Mutex
	m  map[string]*models.Record
}

func newFakeRecords() *fakeRecords { return &fakeRecords{m: make(map[string]*models.Record)} }

func (f *fakeRecords) Create(ctx context.Context, r *models.Record) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	cp.ID = newID()
	cp.CreatedAt = time.Now()
	f.m[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeRecords) Update(ctx context.Context, r *models.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.m[r.ID]
	if !ok || e.Version != r.Version {
		return common.ErrVersionConflict
	}
	cp := *r
	cp.Version = e.Version + 1
	f.m[r.ID] = &cp
	r.Version = cp.Version
	return nil
}

func (f *fakeRecords) Get(ctx context.Context, id string) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.m[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRecords) ListLiveByOwner(ctx context.Context, ownerID string) ([]*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.Record
	for _, r := range f.m {
		if r.OwnerID == ownerID && !r.Deleted {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeRecords) SoftDelete(ctx context.Context, id, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.m[id]
	if !ok || r.OwnerID != ownerID {
		return common.ErrorNotFound
	}
	r.Deleted = true
	return nil
}

type fakeEscrows struct {
	mu sync.Mutex
	m  map[string]*models.ContactEscrow
}

func newFakeEscrows() *fakeEscrows { return &fakeEscrows{m: make(map[string]*models.ContactEscrow)} }

func escrowKey(contactID, recordID string) string { return contactID + "/" + recordID }

func (f *fakeEscrows) Upsert(ctx context.Context, e *models.ContactEscrow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.m[escrowKey(e.ContactID, e.RecordID)] = &cp
	return nil
}

func (f *fakeEscrows) Get(ctx context.Context, contactID, recordID string) (*models.ContactEscrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.m[escrowKey(contactID, recordID)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEscrows) DeleteByContact(ctx context.Context, contactID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, e := range f.m {
		if e.ContactID == contactID {
			delete(f.m, k)
		}
	}
	return nil
}

func (f *fakeEscrows) DeleteByRecord(ctx context.Context, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, e := range f.m {
		if e.RecordID == recordID {
			delete(f.m, k)
		}
	}
	return nil
}

type fakeRequests struct {
	mu          sync.Mutex
	m           map[string]*models.AccessRequest
	transitions []*models.RequestTransition
}

func newFakeRequests() *fakeRequests { return &fakeRequests{m: make(map[string]*models.AccessRequest)} }

func (f *fakeRequests) Create(ctx context.Context, r *models.AccessRequest) (*models.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.m {
		if e.OwnerID == r.OwnerID && e.ContactID == r.ContactID && !e.State.Resolved() {
			return nil, common.ErrDuplicateRequest
		}
	}
	cp := *r
	cp.ID = newID()
	f.m[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeRequests) GetByID(ctx context.Context, id string) (*models.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.m[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRequests) GetForUpdate(ctx context.Context, id string) (*models.AccessRequest, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeRequests) ListDue(ctx context.Context, now time.Time) ([]*models.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.AccessRequest
	for _, r := range f.m {
		if r.State != models.StateWaiting {
			continue
		}
		if deadline, ok := r.WaitDeadline(); ok && !now.Before(deadline) {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeRequests) ListByOwner(ctx context.Context, ownerID string) ([]*models.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.AccessRequest
	for _, r := range f.m {
		if r.OwnerID == ownerID {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeRequests) ListByContact(ctx context.Context, contactID string) ([]*models.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.AccessRequest
	for _, r := range f.m {
		if r.ContactID == contactID {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeRequests) ListGrantedByContact(ctx context.Context, contactID string) ([]*models.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.AccessRequest
	for _, r := range f.m {
		if r.ContactID == contactID && r.State == models.StateGranted {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeRequests) LastDenial(ctx context.Context, ownerID, contactID string) (*models.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *models.AccessRequest
	for _, r := range f.m {
		if r.OwnerID != ownerID || r.ContactID != contactID || r.State != models.StateOwnerDenied {
			continue
		}
		if last == nil || (r.ResolvedAt != nil && last.ResolvedAt != nil && r.ResolvedAt.After(*last.ResolvedAt)) {
			last = r
		}
	}
	if last == nil {
		return nil, common.ErrorNotFound
	}
	cp := *last
	return &cp, nil
}

func (f *fakeRequests) SaveState(ctx context.Context, r *models.AccessRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.m[r.ID]; !ok {
		return common.ErrorNotFound
	}
	cp := *r
	f.m[r.ID] = &cp
	return nil
}

func (f *fakeRequests) AppendTransition(ctx context.Context, t *models.RequestTransition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.transitions = append(f.transitions, &cp)
	return nil
}

type fakeRM struct {
	owners   *fakeOwners
	contacts *fakeContacts
	records  *fakeRecords
	escrows  *fakeEscrows
	requests *fakeRequests
}

func newFakeRM() *fakeRM {
	return &fakeRM{
		owners:   newFakeOwners(),
		contacts: newFakeContacts(),
		records:  newFakeRecords(),
		escrows:  newFakeEscrows(),
		requests: newFakeRequests(),
	}
}

func (f *fakeRM) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (f *fakeRM) Owners(dbx.DBTX) owners.Repository                   { return f.owners }
func (f *fakeRM) Contacts(dbx.DBTX) contacts.Repository               { return f.contacts }
func (f *fakeRM) Records(dbx.DBTX) records.Repository                 { return f.records }
func (f *fakeRM) Escrows(dbx.DBTX) escrows.Repository                 { return f.escrows }
func (f *fakeRM) Requests(dbx.DBTX) requests.Repository               { return f.requests }

// recordingNotifier captures deliveries so tests can assert on them.
type recordingNotifier struct {
	mu          sync.Mutex
	ownerNotes  []string
	resolutions []string
	invites     []string
	failOwner   bool
}

func (n *recordingNotifier) NotifyOwnerOfRequest(ctx context.Context, ownerEmail, requestID string) (*notify.DeliveryResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failOwner {
		return nil, context.DeadlineExceeded
	}
	n.ownerNotes = append(n.ownerNotes, requestID)
	return &notify.DeliveryResult{Delivered: true}, nil
}

func (n *recordingNotifier) NotifyContactOfResolution(ctx context.Context, contactEmail, requestID, outcome string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolutions = append(n.resolutions, requestID+":"+outcome)
	return nil
}

func (n *recordingNotifier) NotifyContactOfInvite(ctx context.Context, contactEmail, inviteToken string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invites = append(n.invites, inviteToken)
	return nil
}

type fixture struct {
	t        *testing.T
	db       *sql.DB
	mock     sqlmock.Sqlmock
	rm       *fakeRM
	notifier *recordingNotifier
	keys     *keyring.Keyring
	grants   *GrantService
	svc      *EmergencyService
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rm := newFakeRM()
	notifier := &recordingNotifier{}
	logger := testLogger()
	keys := keyring.New(time.Hour)
	t.Cleanup(keys.Close)

	grants := NewGrantService(db, rm, nil, logger, time.Hour)
	ledger := NewLedger(rm)
	svc := NewEmergencyService(db, rm, ledger, grants, notifier, logger, time.Second)

	return &fixture{t: t, db: db, mock: mock, rm: rm, notifier: notifier, keys: keys, grants: grants, svc: svc}
}

// expectTx queues expectations for n committed transactions.
func (f *fixture) expectTx(n int) {
	for i := 0; i < n; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()
	}
}

// expectFailedTx queues expectations for one rolled-back transaction.
func (f *fixture) expectFailedTx() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

func (f *fixture) addOwner(lastActivity time.Time, threshold, waitingPeriod time.Duration) *models.Owner {
	f.t.Helper()
	owner, err := f.rm.owners.Create(context.Background(), &models.Owner{
		UserName:            "owner-" + newID(),
		Salt:                []byte("salt"),
		Verifier:            []byte("verifier"),
		InactivityThreshold: threshold,
		WaitingPeriod:       waitingPeriod,
		LastActivityAt:      lastActivity,
	})
	require.NoError(f.t, err)
	return owner
}

func (f *fixture) addContact(ownerID string, status models.ContactStatus, level models.AccessLevel) *models.TrustedContact {
	f.t.Helper()
	contact, err := f.rm.contacts.Create(context.Background(), &models.TrustedContact{
		OwnerID:     ownerID,
		Email:       "contact@example.com",
		AccessLevel: level,
		Status:      status,
	})
	require.NoError(f.t, err)
	return contact
}
