package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-rag-backend/internal/chunker"
	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/embedding"
	"github.com/tbourn/go-rag-backend/internal/llm"
	"github.com/tbourn/go-rag-backend/internal/vectorindex"
)

func TestUpload_PlainText_FourChunksAllTagged(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")

	res := f.upload(t, uid, "notes.txt", words(2500))
	assert.Equal(t, 4, res.ChunkCount)
	assert.Equal(t, "notes.txt", res.Filename)

	ctx := context.Background()
	n, err := f.index.Count(ctx, vectorindex.Filter{DocumentID: res.DocumentID, UserID: uid})
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.EqualValues(t, 4, countRows(t, f.db, &domain.Chunk{}, "document_id = ?", res.DocumentID))

	var doc domain.Document
	require.NoError(t, f.db.First(&doc, "id = ?", res.DocumentID).Error)
	assert.Equal(t, 4, doc.ChunkCount)
	assert.EqualValues(t, 2500, doc.SizeBytes)
}

func TestUpload_Rejections_LeaveNoState(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")
	f.ingest.MaxUploadBytes = 64

	cases := []struct {
		name string
		file string
		data []byte
		kind error
	}{
		{"extension not allowed", "run.exe", []byte("MZ"), domain.ErrUnsupportedFormat},
		{"no extension", "README", []byte("hello"), domain.ErrUnsupportedFormat},
		{"legacy office", "old.doc", []byte("\xd0\xcf\x11\xe0 legacy"), domain.ErrUnsupportedFormat},
		{"too large", "big.txt", []byte(strings.Repeat("x", 65)), domain.ErrValidation},
		{"corrupt pdf", "broken.pdf", []byte("%PDF-1.4 garbage"), domain.ErrExtraction},
		{"empty text", "blank.txt", []byte("   \n\t "), domain.ErrEmptyDocument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ingest.Upload(context.Background(), uid, tc.file, tc.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
		})
	}
	assert.Zero(t, countRows(t, f.db, &domain.Document{}, ""))

	_, err := f.ingest.Upload(context.Background(), "", "a.txt", []byte("text"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpload_IndexFailure_RollsBackDocument(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")

	broken := vectorindex.New(failingBackend{vectorindex.NewMemory()}, embedding.NewHashing(0))
	require.NoError(t, broken.Open(context.Background()))
	f.ingest.Index = broken

	_, err := f.ingest.Upload(context.Background(), uid, "notes.txt", []byte(words(1500)))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexing)
	assert.NotErrorIs(t, err, domain.ErrConsistency)

	assert.Zero(t, countRows(t, f.db, &domain.Document{}, ""))
	assert.Zero(t, countRows(t, f.db, &domain.Chunk{}, ""))
}

func TestUpload_FailedCompensation_IsConsistencyError(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")
	f.ingest.Index = &indexStub{
		Store:     f.index,
		addErr:    errors.New("boom"),
		deleteErr: errors.New("index offline"),
	}

	_, err := f.ingest.Upload(context.Background(), uid, "notes.txt", []byte("some words to index"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConsistency)
	assert.Equal(t, domain.KindConsistency, domain.KindOf(err))
}

func TestUpload_ThenDelete_LeavesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := seedUser(t, f.db, "a@example.com")
	res := f.upload(t, uid, "notes.txt", words(1800))

	// a highlight on the document
	gen := &recordingGen{reply: "ok"}
	ans := &AnswerService{DB: f.db, Index: f.index, Models: registryWith(gen), TopK: 4, FetchMultiplier: 2}
	out, err := ans.Answer(ctx, AskInput{UserID: uid, SessionID: "s1", Question: "alpha bravo"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Documents[res.DocumentID])

	require.NoError(t, f.ingest.Delete(ctx, uid, res.DocumentID))

	assert.Zero(t, countRows(t, f.db, &domain.Chunk{}, "document_id = ?", res.DocumentID))
	assert.Zero(t, countRows(t, f.db, &domain.Highlight{}, "document_id = ?", res.DocumentID))
	assert.Zero(t, countRows(t, f.db, &domain.Document{}, "id = ?", res.DocumentID))
	n, err := f.index.Count(ctx, vectorindex.Filter{DocumentID: res.DocumentID})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDelete_ForeignDocument_IsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := seedUser(t, f.db, "alice@example.com")
	bob := seedUser(t, f.db, "bob@example.com")
	res := f.upload(t, alice, "a.txt", "alice quarterly numbers")

	err := f.ingest.Delete(ctx, bob, res.DocumentID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	n, err := f.index.Count(ctx, vectorindex.Filter{DocumentID: res.DocumentID, UserID: alice})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDelete_VectorFailure_KeepsMetadata(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")
	res := f.upload(t, uid, "a.txt", "keep me around")

	f.ingest.Index = &indexStub{Store: f.index, deleteErr: errors.New("index offline")}
	err := f.ingest.Delete(context.Background(), uid, res.DocumentID)
	require.Error(t, err)

	assert.EqualValues(t, 1, countRows(t, f.db, &domain.Document{}, "id = ?", res.DocumentID))
	assert.EqualValues(t, 1, countRows(t, f.db, &domain.Chunk{}, "document_id = ?", res.DocumentID))
}

func TestUpload_SummarizeMode(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")
	sum := &recordingGen{reply: "a short summary of the page"}
	f.ingest.Mode = IngestModeSummarize
	f.ingest.Summarizer = sum

	res := f.upload(t, uid, "notes.txt", words(2500))
	assert.Equal(t, 1, res.ChunkCount)
	require.Equal(t, 1, sum.calls())
	assert.Equal(t, llm.SummarizePrompt, sum.last().System)

	var c domain.Chunk
	require.NoError(t, f.db.First(&c, "document_id = ?", res.DocumentID).Error)
	assert.Equal(t, "a short summary of the page", c.Text)

	sum.err = errors.New("model down")
	_, err := f.ingest.Upload(context.Background(), uid, "other.txt", []byte("text"))
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestUpload_UsesInjectedChunker(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")
	f.ingest.Chunker = chunker.New(chunker.WithChunkSize(100), chunker.WithOverlap(20))

	res := f.upload(t, uid, "notes.txt", words(500))
	assert.Greater(t, res.ChunkCount, 4)
}
