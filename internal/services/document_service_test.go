package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

func TestDocumentService_ListGetHighlights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := seedUser(t, f.db, "alice@example.com")
	bob := seedUser(t, f.db, "bob@example.com")
	first := f.upload(t, alice, "one.txt", "first document about solar panels")
	f.upload(t, alice, "two.txt", "second document about wind turbines")
	f.upload(t, bob, "bob.txt", "bob's private notes")

	svc := &DocumentService{DB: f.db}

	docs, total, err := svc.ListPage(ctx, alice, 1, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, docs, 1)
	assert.Nil(t, docs[0].Content, "listings omit the bytes")

	doc, err := svc.Get(ctx, alice, first.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "first document about solar panels", string(doc.Content))
	assert.Equal(t, "txt", doc.ContentType)

	_, err = svc.Get(ctx, bob, first.DocumentID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	hs, err := svc.Highlights(ctx, alice, first.DocumentID)
	require.NoError(t, err)
	assert.NotNil(t, hs)
	assert.Empty(t, hs)

	res, err := newAnswerSvc(f, &recordingGen{reply: "ok"}).Answer(ctx, AskInput{UserID: alice, Question: "solar panels"})
	require.NoError(t, err)
	ids := res.Documents[first.DocumentID]
	require.NotEmpty(t, ids)

	hs, err = svc.Highlights(ctx, alice, first.DocumentID)
	require.NoError(t, err)
	assert.Len(t, hs, len(ids))

	var all []string
	for _, v := range res.Documents {
		all = append(all, v...)
	}
	_, picked, err := svc.HighlightsByIDs(ctx, alice, first.DocumentID, append(all, "unknown"))
	require.NoError(t, err)
	require.Len(t, picked, len(ids))
	for _, h := range picked {
		assert.Equal(t, first.DocumentID, h.DocumentID)
	}

	_, _, err = svc.HighlightsByIDs(ctx, bob, first.DocumentID, ids)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	n, last, err := svc.Stats(ctx, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NotNil(t, last)
}

func TestHighlightService_Annotate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := seedUser(t, f.db, "alice@example.com")
	bob := seedUser(t, f.db, "bob@example.com")
	doc := f.upload(t, alice, "a.txt", "the warranty lasts two years")
	res, err := newAnswerSvc(f, &recordingGen{reply: "Two years."}).Answer(ctx, AskInput{UserID: alice, Question: "warranty"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Documents[doc.DocumentID])
	hid := res.Documents[doc.DocumentID][0]

	svc := &HighlightService{DB: f.db}

	h, err := svc.Annotate(ctx, alice, hid, "  check the fine print ", "⚠️")
	require.NoError(t, err)
	assert.Equal(t, "check the fine print", h.Comment)
	assert.Equal(t, "⚠️", h.Emoji)

	var stored domain.Highlight
	require.NoError(t, f.db.First(&stored, "id = ?", hid).Error)
	assert.Equal(t, "check the fine print", stored.Comment)

	_, err = svc.Annotate(ctx, bob, hid, "mine now", "")
	assert.ErrorIs(t, err, ErrHighlightNotFound)

	_, err = svc.Annotate(ctx, alice, hid, strings.Repeat("x", 2001), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.Annotate(ctx, alice, hid, "", strings.Repeat("😀", 5))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Annotate(ctx, alice, "missing", "x", "")
	assert.ErrorIs(t, err, ErrHighlightNotFound)
}
