package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&User{}, &AuthToken{}, &Document{}, &Chunk{}, &ChatSession{}, &ChatMessage{}, &Highlight{}, &Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(User{}).TableName():        "users",
		(AuthToken{}).TableName():   "auth_tokens",
		(Document{}).TableName():    "documents",
		(Chunk{}).TableName():       "chunks",
		(ChatSession{}).TableName(): "chat_sessions",
		(ChatMessage{}).TableName(): "chat_messages",
		(Highlight{}).TableName():   "highlights",
		(Idempotency{}).TableName(): "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)
	m := db.Migrator()

	checks := []struct {
		model any
		index string
	}{
		{&User{}, "ux_users_email"},
		{&Document{}, "idx_user_docs"},
		{&Chunk{}, "idx_doc_chunks"},
		{&ChatSession{}, "idx_user_sessions"},
		{&ChatMessage{}, "idx_session_msgs"},
		{&Idempotency{}, "ux_user_session_key"},
	}
	for _, c := range checks {
		if !m.HasIndex(c.model, c.index) {
			t.Fatalf("expected index %s on %T", c.index, c.model)
		}
	}
}

func seedGraph(t *testing.T, db *gorm.DB) {
	t.Helper()
	now := time.Now().UTC()
	mustCreate := func(v any) {
		t.Helper()
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("insert %T: %v", v, err)
		}
	}
	mustCreate(&User{ID: "u1", Email: "a@example.com", PasswordHash: "x"})
	mustCreate(&Document{ID: "d1", UserID: "u1", Filename: "a.pdf", ContentType: "pdf", UploadedAt: now})
	mustCreate(&Chunk{ID: "k1", DocumentID: "d1", Seq: 0, PageNumber: 1, Text: "hello"})
	mustCreate(&ChatSession{ID: "s1", UserID: "u1", ModelName: "gpt-4o", CreatedAt: now})
	mustCreate(&ChatMessage{
		ID: "m1", SessionID: "s1", Question: "q", Answer: "a", ModelName: "gpt-4o",
		CitedDocuments: datatypes.NewJSONSlice([]CitedDocument{{DocumentID: "d1", Filename: "a.pdf"}}),
		CreatedAt:      now,
	})
	mustCreate(&Highlight{
		ID: "h1", SessionID: "s1", MessageID: "m1", DocumentID: "d1", ChunkID: "k1",
		Content:  "hello",
		Position: datatypes.NewJSONType(Position{BoundingRect: Rect{X1: 1, Y1: 2, X2: 3, Y2: 4}, PageNumber: 1}),
		Filename: "a.pdf", Comment: DefaultHighlightComment,
	})
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

func TestCascade_DocumentDeleteRemovesChunksAndHighlights(t *testing.T) {
	db := newDomainDB(t)
	seedGraph(t, db)

	if err := db.Delete(&Document{}, "id = ?", "d1").Error; err != nil {
		t.Fatalf("delete document: %v", err)
	}
	if n := count(t, db, &Chunk{}); n != 0 {
		t.Fatalf("chunks after document delete = %d; want 0", n)
	}
	if n := count(t, db, &Highlight{}); n != 0 {
		t.Fatalf("highlights after document delete = %d; want 0", n)
	}
	// The message keeps its answer and its citation snapshot.
	var msg ChatMessage
	if err := db.First(&msg, "id = ?", "m1").Error; err != nil {
		t.Fatalf("load message: %v", err)
	}
	if msg.Answer != "a" || len(msg.CitedDocuments) != 1 || msg.CitedDocuments[0].DocumentID != "d1" {
		t.Fatalf("unexpected message after document delete: %+v", msg)
	}
}

func TestCascade_SessionDeleteRemovesMessagesAndHighlights(t *testing.T) {
	db := newDomainDB(t)
	seedGraph(t, db)

	if err := db.Delete(&ChatSession{}, "id = ?", "s1").Error; err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if n := count(t, db, &ChatMessage{}); n != 0 {
		t.Fatalf("messages after session delete = %d; want 0", n)
	}
	if n := count(t, db, &Highlight{}); n != 0 {
		t.Fatalf("highlights after session delete = %d; want 0", n)
	}
	if n := count(t, db, &Document{}); n != 1 {
		t.Fatalf("documents after session delete = %d; want 1", n)
	}
}

func TestHighlightPosition_RoundTrip(t *testing.T) {
	db := newDomainDB(t)
	seedGraph(t, db)

	var h Highlight
	if err := db.First(&h, "id = ?", "h1").Error; err != nil {
		t.Fatalf("load highlight: %v", err)
	}
	pos := h.Position.Data()
	if pos.PageNumber != 1 || pos.BoundingRect.X2 != 3 {
		t.Fatalf("unexpected position: %+v", pos)
	}
}

func TestUniqueEmailAndSessionID(t *testing.T) {
	db := newDomainDB(t)
	seedGraph(t, db)

	if err := db.Create(&User{ID: "u2", Email: "a@example.com", PasswordHash: "y"}).Error; err == nil {
		t.Fatalf("expected unique violation on users.email")
	}
	if err := db.Create(&ChatSession{ID: "s1", UserID: "u1", ModelName: "llama3.1"}).Error; err == nil {
		t.Fatalf("expected primary key violation on chat_sessions.id")
	}
}

func TestRect_IsZero(t *testing.T) {
	if !(Rect{}).IsZero() {
		t.Fatalf("zero rect should report IsZero")
	}
	if (Rect{Width: 1}).IsZero() {
		t.Fatalf("non-zero rect should not report IsZero")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("boom"), KindInternal},
		{fmt.Errorf("%w: bad input", ErrValidation), KindValidation},
		{fmt.Errorf("%w: owned by someone else", ErrAuthorization), KindNotFound},
		{fmt.Errorf("%w: %w", ErrTimeout, ErrGeneration), KindTimeout},
		{fmt.Errorf("%w: %w", ErrConsistency, ErrIndexing), KindConsistency},
		{fmt.Errorf("wrap: %w", ErrEmptyDocument), KindEmptyDocument},
		{ErrUnsupportedFormat, KindUnsupportedFormat},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Fatalf("KindOf(%v) = %q; want %q", c.err, got, c.want)
		}
	}
}
