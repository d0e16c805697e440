// Package kb manages knowledge base documents: chunked indexing with audit
// history, and semantic search over the chunks.
package kb

import (
	"context"
	"time"

	"github.com/sweetpotato0/fiberkb/rag/keyword"
)

// Document is an admin-authored knowledge base article.
type Document struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Category    string    `json:"category,omitempty"`
	Subcategory string    `json:"subcategory,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	FiberIDs    []int64   `json:"fiber_ids,omitempty"`
	IsPublished bool      `json:"is_published"`
	CreatedBy   string    `json:"created_by,omitempty"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Chunk is one embedded segment of a document. Index is zero-based and dense.
type Chunk struct {
	DocumentID int64
	Index      int
	Text       string
	Vector     []float32
	Model      string
}

// AuditAction is the kind of change recorded in the audit log.
type AuditAction string

const (
	ActionCreated AuditAction = "created"
	ActionUpdated AuditAction = "updated"
	ActionDeleted AuditAction = "deleted"
)

// AuditEntry is an append-only record of a document change. DocumentID becomes nil
// once the document is deleted.
type AuditEntry struct {
	ID          int64          `json:"id"`
	DocumentID  *int64         `json:"document_id"`
	Action      AuditAction    `json:"action"`
	PerformedBy string         `json:"performed_by,omitempty"`
	Changes     map[string]any `json:"changes"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Change is the {old, new} pair recorded for an updated field.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Filter scopes a document search. Filters are applied before per-document ranking.
type Filter struct {
	PublishedOnly bool
	Category      string
	// FiberIDs keeps documents related to at least one of these fibers.
	FiberIDs  []int64
	Threshold float64
	Limit     int
}

// Allows reports whether doc passes the non-vector filters.
func (f Filter) Allows(doc *Document) bool {
	if f.PublishedOnly && !doc.IsPublished {
		return false
	}
	if f.Category != "" && doc.Category != f.Category {
		return false
	}
	if len(f.FiberIDs) == 0 {
		return true
	}
	for _, want := range f.FiberIDs {
		for _, have := range doc.FiberIDs {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Match is the best chunk of one document for a query.
type Match struct {
	Document   *Document `json:"document"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkText  string    `json:"matched_chunk"`
	Similarity float64   `json:"similarity"`
}

// Store persists documents, chunks and the audit log.
type Store interface {
	GetDocument(ctx context.Context, id int64) (*Document, error)
	Chunks(ctx context.Context, documentID int64) ([]Chunk, error)
	AuditLog(ctx context.Context, documentID int64) ([]AuditEntry, error)

	// WithinTx runs fn in one transaction, committing when fn returns nil.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// NearestChunks returns the best chunk per document with similarity >= f.Threshold,
	// ordered by similarity descending and cut to f.Limit.
	NearestChunks(ctx context.Context, query []float32, f Filter) ([]Match, error)
	// KeywordDocuments matches title, content and tags against the query variants.
	KeywordDocuments(ctx context.Context, q keyword.Query, f Filter) ([]*Document, error)
}

// Tx is the write surface available inside WithinTx.
type Tx interface {
	// GetDocumentForUpdate locks and returns the document or an error wrapping ErrDocumentNotFound.
	GetDocumentForUpdate(ctx context.Context, id int64) (*Document, error)
	InsertDocument(ctx context.Context, doc *Document) (int64, error)
	UpdateDocument(ctx context.Context, doc *Document) error
	DeleteDocument(ctx context.Context, id int64) error
	DeleteChunks(ctx context.Context, documentID int64) error
	InsertChunks(ctx context.Context, documentID int64, chunks []Chunk) error
	AppendAudit(ctx context.Context, entry AuditEntry) error
}
