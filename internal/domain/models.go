// Package domain defines the persistence models for users, documents, chunks,
// chat sessions, chat messages and highlights. These types are mapped with
// GORM and form the relational half of the retrieval-augmented assistant; the
// vector half lives in package vectorindex and is keyed by Chunk.ID.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// User is an account that owns documents and chat sessions. Users survive the
// administrative clear-all operation.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Email: unique, lower-cased login name.
//   - PasswordHash: bcrypt hash, never serialized.
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// AuthToken is an opaque bearer credential issued at login.
type AuthToken struct {
	Token     string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:char(36);not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time

	User User `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for AuthToken.
func (AuthToken) TableName() string { return "auth_tokens" }

// Document is an uploaded file owned by exactly one user. The raw bytes are
// kept so the front-end can render the source next to a citation.
//
// Fields:
//   - ID: UUID primary key assigned on insert (never client supplied).
//   - UserID: owner; cascades when the user is removed.
//   - Filename / ContentType / SizeBytes: upload metadata.
//   - Content: raw bytes (omitted from JSON; served by the download endpoint).
//   - ChunkCount: number of chunks recorded for the document.
type Document struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:char(36);not null;index:idx_user_docs,priority:1"`
	Filename    string    `json:"filename"     gorm:"type:varchar(255);not null"`
	ContentType string    `json:"content_type" gorm:"type:varchar(32);not null"`
	SizeBytes   int64     `json:"size_bytes"   gorm:"not null;default:0"`
	Content     []byte    `json:"-"`
	ChunkCount  int       `json:"chunk_count"  gorm:"not null;default:0"`
	UploadedAt  time.Time `json:"uploaded_at"  gorm:"index:idx_user_docs,priority:2"`
	UpdatedAt   time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string { return "documents" }

// Chunk is one fragment produced by the chunker. Its ID doubles as the id of
// the corresponding vector in the index, which keeps both stores reconcilable.
type Chunk struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	DocumentID string    `json:"document_id" gorm:"type:char(36);not null;index:idx_doc_chunks,priority:1"`
	Seq        int       `json:"seq"         gorm:"not null;index:idx_doc_chunks,priority:2"`
	PageNumber int       `json:"page_number" gorm:"not null;default:1"`
	Text       string    `json:"text"        gorm:"type:text;not null"`
	X1         float64   `json:"x1"`
	Y1         float64   `json:"y1"`
	X2         float64   `json:"x2"`
	Y2         float64   `json:"y2"`
	Width      float64   `json:"width"`
	Height     float64   `json:"height"`
	CreatedAt  time.Time `json:"created_at"`

	Document Document `json:"-" gorm:"foreignKey:DocumentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Chunk.
func (Chunk) TableName() string { return "chunks" }

// ChatSession groups the question/answer turns of one conversation. The ID
// is an opaque token chosen by the client; the primary key makes it unique.
type ChatSession struct {
	ID          string    `json:"session_id"   gorm:"type:varchar(64);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:char(36);not null;index:idx_user_sessions,priority:1"`
	ModelName   string    `json:"model"        gorm:"type:varchar(32);not null"`
	DisplayName string    `json:"name"         gorm:"type:varchar(255);not null;default:''"`
	CreatedAt   time.Time `json:"created_at"   gorm:"index:idx_user_sessions,priority:2"`
	UpdatedAt   time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// CitedDocument is the snapshot of a cited document stored with a message, so
// a citation can still be reported (as unavailable) after the document is gone.
type CitedDocument struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
}

// ChatMessage is one append-only question/answer turn.
type ChatMessage struct {
	ID             string                             `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID      string                             `json:"session_id" gorm:"type:varchar(64);not null;index:idx_session_msgs,priority:1"`
	Question       string                             `json:"question"   gorm:"type:text;not null"`
	Answer         string                             `json:"answer"     gorm:"type:text;not null"`
	ModelName      string                             `json:"model"      gorm:"type:varchar(32);not null"`
	CitedDocuments datatypes.JSONSlice[CitedDocument] `json:"cited_documents"`
	CreatedAt      time.Time                          `json:"created_at" gorm:"index:idx_session_msgs,priority:2"`

	Session ChatSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// Rect is a rectangle in page coordinates (top-left origin).
type Rect struct {
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether r is the zero-rectangle sentinel used when the
// extraction backend exposes no layout.
func (r Rect) IsZero() bool { return r == Rect{} }

// Position is the highlight geometry understood by the PDF viewer.
type Position struct {
	BoundingRect Rect   `json:"boundingRect"`
	Rects        []Rect `json:"rects"`
	PageNumber   int    `json:"pageNumber"`
}

// DefaultHighlightComment is attached to highlights created by the answering engine.
const DefaultHighlightComment = "Source text for the answer"

// Highlight links an answer to the chunk that supported it.
//
// Fields:
//   - SessionID / MessageID: the turn that produced the citation.
//   - DocumentID / ChunkID: the cited source; cascades when the document goes.
//   - Content: the cited chunk text.
//   - Position: viewer geometry (bounding rect + page).
//   - Comment / Emoji: user-editable annotation.
type Highlight struct {
	ID         string                       `json:"id"          gorm:"type:char(36);primaryKey"`
	SessionID  string                       `json:"session_id"  gorm:"type:varchar(64);not null;index"`
	MessageID  string                       `json:"message_id"  gorm:"type:char(36);not null;index"`
	DocumentID string                       `json:"document_id" gorm:"type:char(36);not null;index"`
	ChunkID    string                       `json:"chunk_id"    gorm:"type:char(36);not null;index"`
	Content    string                       `json:"content"     gorm:"type:text;not null"`
	Position   datatypes.JSONType[Position] `json:"position"`
	PageNumber int                          `json:"page_number" gorm:"not null;default:1"`
	Comment    string                       `json:"comment"     gorm:"type:text;not null;default:''"`
	Emoji      string                       `json:"emoji"       gorm:"type:varchar(16);not null;default:''"`
	Filename   string                       `json:"filename"    gorm:"type:varchar(255);not null"`
	CreatedAt  time.Time                    `json:"created_at"`
	UpdatedAt  time.Time                    `json:"updated_at"`

	Session  ChatSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Message  ChatMessage `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Document Document    `json:"-" gorm:"foreignKey:DocumentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Chunk    Chunk       `json:"-" gorm:"foreignKey:ChunkID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Highlight.
func (Highlight) TableName() string { return "highlights" }
