package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

func TestCreateDocument_PersistsChunksInOrder(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "d@example.com")

	doc, chunks := seedDocument(t, db, u.ID, "a.txt", "one", "two", "three")
	if doc.ChunkCount != 3 || doc.SizeBytes != int64(len("content")) {
		t.Fatalf("unexpected document: %+v", doc)
	}
	got, err := ListChunks(ctx, db, doc.ID)
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 chunks, got %d", len(got))
	}
	for i, c := range got {
		if c.Seq != i || c.ID != chunks[i].ID {
			t.Fatalf("chunk %d out of order: %+v", i, c)
		}
		if c.Width != 10 || c.Height != 20 {
			t.Fatalf("bbox not persisted: %+v", c)
		}
	}
}

func TestCreateDocument_UnknownUser_RollsBack(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	_, _, err := CreateDocument(ctx, db, NewDocument{UserID: "ghost", Filename: "x.txt", ContentType: "txt"},
		[]NewChunk{{PageNumber: 1, Text: "x"}})
	if err == nil {
		t.Fatalf("expected foreign key failure")
	}
	var n int64
	db.Model(&domain.Chunk{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected no chunk rows after rollback, got %d", n)
	}
}

func TestGetDocument_OwnershipIsNotFound(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")
	doc, _ := seedDocument(t, db, alice.ID, "a.txt", "x")

	if _, err := GetDocument(ctx, db, doc.ID, bob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign document, got %v", err)
	}
	got, err := GetDocument(ctx, db, doc.ID, alice.ID)
	if err != nil || string(got.Content) != "content" {
		t.Fatalf("GetDocument = (%+v, %v)", got, err)
	}
}

func TestListDocumentsPage_And_Count(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "e@example.com")
	other := seedUser(t, db, "f@example.com")
	for _, n := range []string{"a.txt", "b.txt", "c.txt"} {
		seedDocument(t, db, u.ID, n, "x")
	}
	seedDocument(t, db, other.ID, "z.txt", "x")

	total, err := CountDocuments(ctx, db, u.ID)
	if err != nil || total != 3 {
		t.Fatalf("CountDocuments = (%d, %v)", total, err)
	}
	page, err := ListDocumentsPage(ctx, db, u.ID, 0, 2)
	if err != nil || len(page) != 2 {
		t.Fatalf("ListDocumentsPage = (%d, %v)", len(page), err)
	}
	for _, d := range page {
		if d.UserID != u.ID {
			t.Fatalf("leaked document of another user: %+v", d)
		}
		if len(d.Content) != 0 {
			t.Fatalf("listing must not load content")
		}
	}
}

func TestExistingDocuments_FiltersMissingAndForeign(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "g@example.com")
	other := seedUser(t, db, "h@example.com")
	mine, _ := seedDocument(t, db, u.ID, "mine.txt", "x")
	theirs, _ := seedDocument(t, db, other.ID, "theirs.txt", "x")

	got, err := ExistingDocuments(ctx, db, u.ID, []string{mine.ID, theirs.ID, "missing"})
	if err != nil {
		t.Fatalf("ExistingDocuments: %v", err)
	}
	if len(got) != 1 || got[mine.ID].Filename != "mine.txt" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestDeleteDocument_RemovesChunksAndHighlights(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "i@example.com")
	doc, chunks := seedDocument(t, db, u.ID, "a.txt", "x", "y")
	s := seedSession(t, db, "s1", u.ID)
	msg, err := CreateMessage(ctx, db, s.ID, "q", "a", "gpt-4o", []domain.CitedDocument{{DocumentID: doc.ID, Filename: doc.Filename}})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if err := CreateHighlights(ctx, db, []domain.Highlight{{
		ID: "h1", SessionID: s.ID, MessageID: msg.ID, DocumentID: doc.ID, ChunkID: chunks[0].ID,
		Content: "x", PageNumber: 1, Filename: doc.Filename,
	}}); err != nil {
		t.Fatalf("CreateHighlights: %v", err)
	}

	if err := DeleteDocument(ctx, db, doc.ID, u.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if n, _ := CountChunks(ctx, db, doc.ID); n != 0 {
		t.Fatalf("expected chunks gone, got %d", n)
	}
	hs, _ := ListHighlightsByMessages(ctx, db, []string{msg.ID})
	if len(hs[msg.ID]) != 0 {
		t.Fatalf("expected highlights gone, got %d", len(hs[msg.ID]))
	}
	got, err := GetMessage(ctx, db, msg.ID)
	if err != nil || len(got.CitedDocuments) != 1 {
		t.Fatalf("message snapshot must survive: (%+v, %v)", got, err)
	}
}

func TestDeleteDocument_NotOwned_LeavesEverything(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "j@example.com")
	bob := seedUser(t, db, "k@example.com")
	doc, _ := seedDocument(t, db, alice.ID, "a.txt", "x")

	if err := DeleteDocument(ctx, db, doc.ID, bob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := CountChunks(ctx, db, doc.ID); n != 1 {
		t.Fatalf("chunks must survive a rejected delete, got %d", n)
	}
	if err := DeleteDocument(ctx, db, "missing", alice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing document, got %v", err)
	}
}

func TestDeleteDocumentByID_CascadesChunks(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "l@example.com")
	doc, _ := seedDocument(t, db, u.ID, "a.txt", "x", "y")

	if err := DeleteDocumentByID(ctx, db, doc.ID); err != nil {
		t.Fatalf("DeleteDocumentByID: %v", err)
	}
	if n, _ := CountChunks(ctx, db, doc.ID); n != 0 {
		t.Fatalf("expected cascade to remove chunks, got %d", n)
	}
}

func TestListDocumentRefs_AllUsersWithoutContent(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a := seedUser(t, db, "m@example.com")
	b := seedUser(t, db, "n@example.com")
	seedDocument(t, db, a.ID, "a.txt", "x")
	seedDocument(t, db, b.ID, "b.txt", "y")

	refs, err := ListDocumentRefs(ctx, db)
	if err != nil || len(refs) != 2 {
		t.Fatalf("ListDocumentRefs = (%d, %v)", len(refs), err)
	}
	owners := map[string]bool{}
	for _, d := range refs {
		owners[d.UserID] = true
		if d.Content != nil {
			t.Fatalf("content loaded for %s", d.ID)
		}
	}
	if !owners[a.ID] || !owners[b.ID] {
		t.Fatalf("owners = %v", owners)
	}
}
