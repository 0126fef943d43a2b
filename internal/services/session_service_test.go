package services

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/repo"
)

// ----- Fake repo -----

type fakeSessionRepo struct {
	getID     string
	getUserID string
	getSess   *domain.ChatSession
	getErr    error

	updateID   string
	updateName string
	updateErr  error

	countTotal int64
	countErr   error

	pageOffset int
	pageLimit  int
	pageItems  []domain.ChatSession
	pageErr    error

	deleteErr error
}

func (r *fakeSessionRepo) GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ChatSession, error) {
	r.getID, r.getUserID = id, userID
	return r.getSess, r.getErr
}

func (r *fakeSessionRepo) UpdateSessionName(ctx context.Context, db *gorm.DB, id, userID, name string) error {
	r.updateID, r.updateName = id, name
	return r.updateErr
}

func (r *fakeSessionRepo) CountSessions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return r.countTotal, r.countErr
}

func (r *fakeSessionRepo) ListSessionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.ChatSession, error) {
	r.pageOffset, r.pageLimit = offset, limit
	return r.pageItems, r.pageErr
}

func (r *fakeSessionRepo) DeleteSession(ctx context.Context, db *gorm.DB, id, userID string) error {
	return r.deleteErr
}

// realSessionRepo forwards to package repo.
type realSessionRepo struct{}

func (realSessionRepo) GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ChatSession, error) {
	return repo.GetSession(ctx, db, id, userID)
}
func (realSessionRepo) UpdateSessionName(ctx context.Context, db *gorm.DB, id, userID, name string) error {
	return repo.UpdateSessionName(ctx, db, id, userID, name)
}
func (realSessionRepo) CountSessions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountSessions(ctx, db, userID)
}
func (realSessionRepo) ListSessionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.ChatSession, error) {
	return repo.ListSessionsPage(ctx, db, userID, offset, limit)
}
func (realSessionRepo) DeleteSession(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteSession(ctx, db, id, userID)
}

// ----- Tests -----

func TestSessionListPage_DefaultsAndEmpty(t *testing.T) {
	fr := &fakeSessionRepo{countTotal: 0}
	svc := NewSessionService(nil, fr)

	items, total, err := svc.ListPage(context.Background(), "u1", 0, 0)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 0 || len(items) != 0 || items == nil {
		t.Fatalf("want empty non-nil page, got %v (%d)", items, total)
	}

	fr.countTotal = 45
	fr.pageItems = []domain.ChatSession{}
	if _, _, err := svc.ListPage(context.Background(), "u1", 3, 10); err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if fr.pageOffset != 20 || fr.pageLimit != 10 {
		t.Fatalf("offset/limit = %d/%d, want 20/10", fr.pageOffset, fr.pageLimit)
	}
}

func TestSessionListPage_CountError(t *testing.T) {
	boom := errors.New("count failed")
	svc := NewSessionService(nil, &fakeSessionRepo{countErr: boom})
	if _, _, err := svc.ListPage(context.Background(), "u1", 1, 20); !errors.Is(err, boom) {
		t.Fatalf("want %v, got %v", boom, err)
	}
}

func TestSessionRename(t *testing.T) {
	fr := &fakeSessionRepo{getSess: &domain.ChatSession{ID: "s1"}}
	svc := NewSessionService(nil, fr)
	svc.TitleMaxLen = 5

	if err := svc.Rename(context.Background(), "u1", "s1", "   "); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if fr.updateName != "Untit" {
		t.Fatalf("blank name should become clipped Untitled, got %q", fr.updateName)
	}

	svc.TitleMaxLen = 60
	if err := svc.Rename(context.Background(), "u1", "s1", "  Q3   plans  "); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if fr.updateName != "Q3 plans" {
		t.Fatalf("name not normalized: %q", fr.updateName)
	}

	fr.getErr = repo.ErrNotFound
	if err := svc.Rename(context.Background(), "u2", "s1", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestSessionRename_ClipsRunes(t *testing.T) {
	fr := &fakeSessionRepo{getSess: &domain.ChatSession{ID: "s1"}}
	svc := NewSessionService(nil, fr)
	svc.TitleMaxLen = 3
	if err := svc.Rename(context.Background(), "u1", "s1", "ééééé"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if utf8.RuneCountInString(fr.updateName) != 3 {
		t.Fatalf("want 3 runes, got %q", fr.updateName)
	}
}

func TestSessionDelete_MapsNotFound(t *testing.T) {
	svc := NewSessionService(nil, &fakeSessionRepo{deleteErr: repo.ErrNotFound})
	if err := svc.Delete(context.Background(), "u1", "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestSessionHistory_DeletedDocumentIsReportedUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := seedUser(t, f.db, "a@example.com")
	doc := f.upload(t, uid, "plan.txt", "the migration plan covers three phases")

	ans := newAnswerSvc(f, &recordingGen{reply: "Three phases."})
	res, err := ans.Answer(ctx, AskInput{UserID: uid, SessionID: "s1", Question: "migration plan phases"})
	require.NoError(t, err)
	require.Contains(t, res.Documents, doc.DocumentID)

	svc := NewSessionService(f.db, realSessionRepo{})
	msgs, total, err := svc.MessagesPage(ctx, uid, "s1", 1, 20)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Contains(t, msgs[0].Documents, doc.DocumentID)
	assert.Empty(t, msgs[0].UnavailableDocuments)

	require.NoError(t, f.ingest.Delete(ctx, uid, doc.DocumentID))

	msgs, _, err = svc.MessagesPage(ctx, uid, "s1", 1, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Three phases.", msgs[0].Answer)
	assert.Empty(t, msgs[0].Documents)
	require.Len(t, msgs[0].UnavailableDocuments, 1)
	assert.Equal(t, domain.CitedDocument{DocumentID: doc.DocumentID, Filename: "plan.txt"}, msgs[0].UnavailableDocuments[0])

	views, total, err := svc.ListPage(ctx, uid, 1, 20)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, views[0].Messages, 1)
	assert.Len(t, views[0].Messages[0].UnavailableDocuments, 1)
}

func TestSessionMessagesPage_ForeignSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := seedUser(t, f.db, "alice@example.com")
	bob := seedUser(t, f.db, "bob@example.com")
	ans := newAnswerSvc(f, &recordingGen{reply: "ok"})
	_, err := ans.Answer(ctx, AskInput{UserID: alice, SessionID: "s1", Question: "hello"})
	require.NoError(t, err)

	svc := NewSessionService(f.db, realSessionRepo{})
	_, _, err = svc.MessagesPage(ctx, bob, "s1", 1, 20)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	require.NoError(t, svc.Delete(ctx, alice, "s1"))
	assert.Zero(t, countRows(t, f.db, &domain.ChatMessage{}, ""))
}
