package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/llm"
	"github.com/tbourn/go-rag-backend/internal/vectorindex"
)

func newAnswerSvc(f *fixture, gen llm.Generator) *AnswerService {
	return &AnswerService{
		DB:              f.db,
		Index:           f.index,
		Models:          registryWith(gen),
		SystemPrompt:    "be helpful",
		HistoryTurns:    5,
		TopK:            4,
		FetchMultiplier: 2,
		IdempotencyTTL:  time.Hour,
	}
}

func TestAnswer_NoDocuments_StillAnswers(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")
	gen := &recordingGen{reply: "I could not find anything relevant."}
	svc := newAnswerSvc(f, gen)

	res, err := svc.Answer(context.Background(), AskInput{UserID: uid, Question: "what is the capital of France?"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.NotEmpty(t, res.MessageID)
	assert.Empty(t, res.Documents)
	assert.Equal(t, "gpt-4o-mini", res.Model)
	assert.Contains(t, gen.last().Prompt, "(no documents available)")
	assert.Equal(t, "be helpful", gen.last().System)

	assert.EqualValues(t, 1, countRows(t, f.db, &domain.ChatMessage{}, "session_id = ?", res.SessionID))
	assert.Zero(t, countRows(t, f.db, &domain.Highlight{}, ""))
}

func TestAnswer_RetrievesOnlyCallersChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := seedUser(t, f.db, "alice@example.com")
	bob := seedUser(t, f.db, "bob@example.com")
	aDoc := f.upload(t, alice, "alice.txt", "alice budget forecast for the northern region")
	f.upload(t, bob, "bob.txt", "bob budget forecast for the northern region")

	gen := &recordingGen{reply: "The forecast is up."}
	svc := newAnswerSvc(f, gen)
	res, err := svc.Answer(ctx, AskInput{UserID: alice, SessionID: "s-alice", Question: "budget forecast northern region"})
	require.NoError(t, err)

	require.Len(t, res.Documents, 1)
	assert.Contains(t, res.Documents, aDoc.DocumentID)
	assert.NotContains(t, gen.last().Prompt, "bob")
	for _, h := range res.Highlights {
		assert.Equal(t, aDoc.DocumentID, h.DocumentID)
		assert.Equal(t, "alice.txt", h.Filename)
		assert.Equal(t, DefaultHighlightEmoji, h.Emoji)
		assert.Equal(t, domain.DefaultHighlightComment, h.Comment)
		assert.Equal(t, 1, h.Position.Data().PageNumber)
	}

	var msg domain.ChatMessage
	require.NoError(t, f.db.First(&msg, "id = ?", res.MessageID).Error)
	require.Len(t, msg.CitedDocuments, 1)
	assert.Equal(t, "alice.txt", msg.CitedDocuments[0].Filename)
}

func TestAnswer_GenerationFailure_PersistsNothing(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")
	f.upload(t, uid, "a.txt", "release notes for version two")
	gen := &recordingGen{err: errors.New("model unavailable")}
	svc := newAnswerSvc(f, gen)

	_, err := svc.Answer(context.Background(), AskInput{UserID: uid, SessionID: "s1", Question: "release notes?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.NotErrorIs(t, err, domain.ErrTimeout)

	assert.Zero(t, countRows(t, f.db, &domain.ChatSession{}, ""))
	assert.Zero(t, countRows(t, f.db, &domain.ChatMessage{}, ""))
	assert.Zero(t, countRows(t, f.db, &domain.Highlight{}, ""))

	gen.err, gen.reply = nil, "   "
	_, err = svc.Answer(context.Background(), AskInput{UserID: uid, SessionID: "s1", Question: "release notes?"})
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
}

func TestAnswer_GenerationTimeout(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")
	svc := newAnswerSvc(f, &recordingGen{block: true})
	svc.GenerateTimeout = 20 * time.Millisecond

	_, err := svc.Answer(context.Background(), AskInput{UserID: uid, Question: "anyone there?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
	assert.Zero(t, countRows(t, f.db, &domain.ChatMessage{}, ""))
}

func TestAnswer_VanishedDocument_DropsCitationOnly(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")
	kept := f.upload(t, uid, "kept.txt", "quarterly revenue grew in spring")

	gen := &recordingGen{reply: "Revenue grew."}
	svc := newAnswerSvc(f, gen)
	svc.Index = &indexStub{Store: f.index, extraHits: []vectorindex.Hit{{
		ID:       "ghost-chunk",
		Text:     "text of a document deleted mid-request",
		Metadata: vectorindex.Metadata{DocumentID: "ghost-doc", UserID: uid, PageNumber: 1},
	}}}

	res, err := svc.Answer(context.Background(), AskInput{UserID: uid, Question: "quarterly revenue"})
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew.", res.Answer)
	assert.Contains(t, res.Documents, kept.DocumentID)
	assert.NotContains(t, res.Documents, "ghost-doc")
	assert.Zero(t, countRows(t, f.db, &domain.Highlight{}, "document_id = ?", "ghost-doc"))
}

func TestAnswer_HistoryAndContextualize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := seedUser(t, f.db, "a@example.com")
	gen := &recordingGen{reply: "first answer"}
	svc := newAnswerSvc(f, gen)

	_, err := svc.Answer(ctx, AskInput{UserID: uid, SessionID: "s1", Question: "tell me about pgvector"})
	require.NoError(t, err)
	assert.Empty(t, gen.last().History)

	svc.Contextualize = true
	gen.reply = "second answer"
	_, err = svc.Answer(ctx, AskInput{UserID: uid, SessionID: "s1", Question: "and its indexes?"})
	require.NoError(t, err)

	// rewrite call, then the answer call
	require.Equal(t, 3, gen.calls())
	rewrite := gen.reqs[1]
	assert.Equal(t, llm.ContextualizePrompt, rewrite.System)
	assert.Equal(t, "and its indexes?", rewrite.Prompt)

	final := gen.last()
	require.Len(t, final.History, 1)
	assert.Equal(t, llm.Turn{Question: "tell me about pgvector", Answer: "first answer"}, final.History[0])
	assert.Contains(t, final.Prompt, "Question: and its indexes?")
}

func TestAnswer_ForeignSession_IsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := seedUser(t, f.db, "alice@example.com")
	bob := seedUser(t, f.db, "bob@example.com")
	gen := &recordingGen{reply: "secret"}
	svc := newAnswerSvc(f, gen)

	_, err := svc.Answer(ctx, AskInput{UserID: alice, SessionID: "shared", Question: "alice's question"})
	require.NoError(t, err)

	_, err = svc.Answer(ctx, AskInput{UserID: bob, SessionID: "shared", Question: "peek"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 1, gen.calls(), "the model must not see another user's history")
}

func TestAnswer_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := seedUser(t, f.db, "a@example.com")
	f.upload(t, uid, "a.txt", "the launch is planned for march")
	gen := &recordingGen{reply: "March."}
	svc := newAnswerSvc(f, gen)

	in := AskInput{UserID: uid, SessionID: "s1", Question: "when is the launch?", IdempotencyKey: "k-1"}
	first, err := svc.Answer(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	gen.reply = "something else"
	second, err := svc.Answer(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.MessageID, second.MessageID)
	assert.Equal(t, "March.", second.Answer)
	assert.Equal(t, first.Documents, second.Documents)
	assert.Equal(t, 1, gen.calls())
	assert.EqualValues(t, 1, countRows(t, f.db, &domain.ChatMessage{}, ""))
}

func TestAnswer_AutoTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := seedUser(t, f.db, "a@example.com")
	svc := newAnswerSvc(f, &recordingGen{reply: "ok"})

	res, err := svc.Answer(ctx, AskInput{UserID: uid, SessionID: "s1", Question: "What is the refund policy for annual plans?"})
	require.NoError(t, err)
	assert.Equal(t, "Refund Policy Annual Plans", res.SessionName)

	res, err = svc.Answer(ctx, AskInput{UserID: uid, SessionID: "s2", SessionName: "Billing", Question: "What is the refund policy?"})
	require.NoError(t, err)
	assert.Equal(t, "Billing", res.SessionName)

	svc.TitleMaxLen = 10
	res, err = svc.Answer(ctx, AskInput{UserID: uid, SessionID: "s3", Question: "international shipping surcharges explained"})
	require.NoError(t, err)
	assert.Equal(t, "Internatio", res.SessionName)
}

func TestAnswer_Validation(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")
	gen := &recordingGen{reply: "ok"}
	svc := newAnswerSvc(f, gen)
	svc.MaxQuestionRunes = 10

	cases := []struct {
		name string
		in   AskInput
		want error
	}{
		{"missing user", AskInput{Question: "hi"}, ErrMissingUser},
		{"blank question", AskInput{UserID: uid, Question: "   "}, ErrEmptyQuestion},
		{"too long", AskInput{UserID: uid, Question: strings.Repeat("é", 11)}, ErrTooLong},
		{"unknown model", AskInput{UserID: uid, Question: "hi", Model: "gpt-2"}, domain.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Answer(context.Background(), tc.in)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Zero(t, gen.calls())
}

func TestAnswer_ModelIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	uid := seedUser(t, f.db, "a@example.com")
	svc := newAnswerSvc(f, &recordingGen{reply: "ok"})

	res, err := svc.Answer(context.Background(), AskInput{UserID: uid, Question: "hi", Model: "LLaMA3.1"})
	require.NoError(t, err)
	assert.Equal(t, "llama3.1", res.Model)
}
