package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

func TestCreateMessage_PersistsCitedSnapshot(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "m1@example.com")
	seedSession(t, db, "s", u.ID)

	cited := []domain.CitedDocument{{DocumentID: "d1", Filename: "a.pdf"}}
	m, err := CreateMessage(ctx, db, "s", "q?", "a.", "gpt-4o", cited)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	got, err := GetMessage(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Question != "q?" || len(got.CitedDocuments) != 1 || got.CitedDocuments[0].Filename != "a.pdf" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestCreateMessage_UnknownSession_Fails(t *testing.T) {
	db := newRepoDB(t)
	if _, err := CreateMessage(context.Background(), db, "nope", "q", "a", "gpt-4o", nil); err == nil {
		t.Fatalf("expected foreign key error")
	}
}

func TestListMessages_OrderAndRecent(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "m2@example.com")
	seedSession(t, db, "s", u.ID)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m := &domain.ChatMessage{
			ID:        fmt.Sprintf("m%d", i),
			SessionID: "s",
			Question:  fmt.Sprintf("q%d", i),
			Answer:    "a",
			ModelName: "gpt-4o",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	all, err := ListMessages(ctx, db, "s", 0)
	if err != nil || len(all) != 5 || all[0].ID != "m0" || all[4].ID != "m4" {
		t.Fatalf("ListMessages = (%v, %v)", all, err)
	}
	recent, err := ListRecentMessages(ctx, db, "s", 2)
	if err != nil || len(recent) != 2 || recent[0].ID != "m3" || recent[1].ID != "m4" {
		t.Fatalf("ListRecentMessages = (%v, %v)", recent, err)
	}
	if none, _ := ListRecentMessages(ctx, db, "s", 0); none != nil {
		t.Fatalf("expected nil for n=0")
	}
	page, _ := ListMessagesPage(ctx, db, "s", 1, 2)
	if len(page) != 2 || page[0].ID != "m1" {
		t.Fatalf("ListMessagesPage = %v", page)
	}
	if n, err := CountMessages(ctx, db, "s"); err != nil || n != 5 {
		t.Fatalf("CountMessages = (%d, %v)", n, err)
	}
}
