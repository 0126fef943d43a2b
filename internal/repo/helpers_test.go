package repo

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// newRepoDB opens a migrated file-backed database so every pooled connection
// carries the foreign key PRAGMA.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "repo_test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, email, "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func seedDocument(t *testing.T, db *gorm.DB, userID, name string, texts ...string) (*domain.Document, []domain.Chunk) {
	t.Helper()
	chunks := make([]NewChunk, len(texts))
	for i, s := range texts {
		chunks[i] = NewChunk{PageNumber: 1, Text: s, BBox: domain.Rect{X1: 1, Y1: 2, X2: 3, Y2: 4, Width: 10, Height: 20}}
	}
	doc, rows, err := CreateDocument(context.Background(), db, NewDocument{
		UserID:      userID,
		Filename:    name,
		ContentType: "txt",
		Content:     []byte("content"),
	}, chunks)
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	return doc, rows
}

func seedSession(t *testing.T, db *gorm.DB, id, userID string) *domain.ChatSession {
	t.Helper()
	s, _, err := GetOrCreateSession(context.Background(), db, id, userID, "gpt-4o-mini", "New chat")
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	return s
}
