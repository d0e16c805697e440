package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/kb"
	"github.com/sweetpotato0/fiberkb/rag/keyword"
	"github.com/sweetpotato0/fiberkb/vector"
)

const documentColumns = `d.id, d.title, d.content, d.category, d.subcategory, d.tags, d.fiber_ids,
	d.is_published, d.created_by, d.updated_by, d.created_at, d.updated_at`

// documentFilter renders the non-vector predicates of f starting at parameter n.
func documentFilter(f kb.Filter, n int) (string, []any) {
	where := fmt.Sprintf(`($%d = FALSE OR d.is_published)
	AND ($%d = '' OR d.category = $%d)
	AND (cardinality($%d::bigint[]) = 0 OR d.fiber_ids && $%d::bigint[])`, n, n+1, n+1, n+2, n+2)
	ids := f.FiberIDs
	if ids == nil {
		ids = []int64{}
	}
	return where, []any{f.PublishedOnly, f.Category, pq.Array(ids)}
}

func scanDocument(row rowScanner) (*kb.Document, error) {
	var d kb.Document
	err := row.Scan(&d.ID, &d.Title, &d.Content, &d.Category, &d.Subcategory,
		pq.Array(&d.Tags), pq.Array(&d.FiberIDs), &d.IsPublished, &d.CreatedBy, &d.UpdatedBy,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocument implements kb.Store.
func (s *Store) GetDocument(ctx context.Context, id int64) (*kb.Document, error) {
	return getDocument(ctx, s.db, id, "")
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryRower, id int64, suffix string) (*kb.Document, error) {
	doc, err := scanDocument(q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM knowledge_documents d WHERE d.id = $1`+suffix, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, errorskg.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %d: %w", id, err)
	}
	return doc, nil
}

// Chunks implements kb.Store.
func (s *Store) Chunks(ctx context.Context, documentID int64) ([]kb.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chunk_index, chunk_text, embedding::text, model
FROM knowledge_chunks WHERE document_id = $1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var out []kb.Chunk
	for rows.Next() {
		c := kb.Chunk{DocumentID: documentID}
		var literal string
		if err := rows.Scan(&c.Index, &c.Text, &literal, &c.Model); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if c.Vector, err = vector.ParseLiteral(literal); err != nil {
			return nil, fmt.Errorf("failed to parse vector of chunk %d: %w", c.Index, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AuditLog implements kb.Store, including entries of deleted documents.
func (s *Store) AuditLog(ctx context.Context, documentID int64) ([]kb.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, action, performed_by, changes, created_at
FROM knowledge_audit_log WHERE original_document_id = $1 ORDER BY id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer rows.Close()

	var out []kb.AuditEntry
	for rows.Next() {
		var e kb.AuditEntry
		var action string
		var changes []byte
		if err := rows.Scan(&e.ID, &e.DocumentID, &action, &e.PerformedBy, &changes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = kb.AuditAction(action)
		if err := json.Unmarshal(changes, &e.Changes); err != nil {
			return nil, fmt.Errorf("failed to decode audit changes: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// WithinTx implements kb.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx kb.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&docTx{tx: tx, dimension: s.dimension}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// NearestChunks implements kb.Store: the best chunk per document.
func (s *Store) NearestChunks(ctx context.Context, query []float32, f kb.Filter) ([]kb.Match, error) {
	if err := vector.CheckDimension(query, s.dimension); err != nil {
		return nil, err
	}
	where, args := documentFilter(f, 2)

	var out []kb.Match
	err := s.readVectors(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
WITH ranked AS (
	SELECT c.document_id, c.chunk_index, c.chunk_text,
		1 - (c.embedding <=> $1::vector) AS similarity,
		ROW_NUMBER() OVER (PARTITION BY c.document_id ORDER BY c.embedding <=> $1::vector) AS rn
	FROM knowledge_chunks c
	JOIN knowledge_documents d ON d.id = c.document_id
	WHERE `+where+`
)
SELECT r.chunk_index, r.chunk_text, r.similarity, `+documentColumns+`
FROM ranked r
JOIN knowledge_documents d ON d.id = r.document_id
WHERE r.rn = 1 AND r.similarity >= $5
ORDER BY r.similarity DESC, d.id
LIMIT $6`, append(append([]any{vector.Literal(query)}, args...), f.Threshold, limitOrAll(f.Limit))...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m kb.Match
			var d kb.Document
			if err := rows.Scan(&m.ChunkIndex, &m.ChunkText, &m.Similarity,
				&d.ID, &d.Title, &d.Content, &d.Category, &d.Subcategory,
				pq.Array(&d.Tags), pq.Array(&d.FiberIDs), &d.IsPublished, &d.CreatedBy, &d.UpdatedBy,
				&d.CreatedAt, &d.UpdatedAt); err != nil {
				return err
			}
			m.Document = &d
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// KeywordDocuments implements kb.Store.
func (s *Store) KeywordDocuments(ctx context.Context, q keyword.Query, f kb.Filter) ([]*kb.Document, error) {
	if q.Empty() {
		return nil, nil
	}
	where, args := documentFilter(f, 1)
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+`
FROM knowledge_documents d
WHERE `+where+`
AND (concat_ws(' ', d.title, d.content, array_to_string(d.tags, ' ')) ILIKE ANY($4) OR `+skeletonMatch("d.title", "$5")+`)
ORDER BY d.id LIMIT $6`, append(args, pq.Array(q.Patterns()), q.Skeleton, limitOrAll(f.Limit))...)
	if err != nil {
		return nil, fmt.Errorf("%w: keyword documents: %v", errorskg.ErrStoreQueryFailed, err)
	}
	defer rows.Close()

	var out []*kb.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type docTx struct {
	tx        *sql.Tx
	dimension int
}

func (t *docTx) GetDocumentForUpdate(ctx context.Context, id int64) (*kb.Document, error) {
	return getDocument(ctx, t.tx, id, " FOR UPDATE")
}

func (t *docTx) InsertDocument(ctx context.Context, doc *kb.Document) (int64, error) {
	err := t.tx.QueryRowContext(ctx, `
INSERT INTO knowledge_documents (title, content, category, subcategory, tags, fiber_ids, is_published, created_by, updated_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at, updated_at`,
		doc.Title, doc.Content, doc.Category, doc.Subcategory, pq.Array(nonNil(doc.Tags)), pq.Array(ids(doc.FiberIDs)),
		doc.IsPublished, doc.CreatedBy, doc.UpdatedBy,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}
	return doc.ID, nil
}

func (t *docTx) UpdateDocument(ctx context.Context, doc *kb.Document) error {
	err := t.tx.QueryRowContext(ctx, `
UPDATE knowledge_documents SET title = $2, content = $3, category = $4, subcategory = $5,
	tags = $6, fiber_ids = $7, is_published = $8, updated_by = $9, updated_at = now()
WHERE id = $1
RETURNING updated_at`,
		doc.ID, doc.Title, doc.Content, doc.Category, doc.Subcategory, pq.Array(nonNil(doc.Tags)), pq.Array(ids(doc.FiberIDs)),
		doc.IsPublished, doc.UpdatedBy,
	).Scan(&doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %d: %w", doc.ID, errorskg.ErrDocumentNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (t *docTx) DeleteDocument(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM knowledge_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %d: %w", id, errorskg.ErrDocumentNotFound)
	}
	return nil
}

func (t *docTx) DeleteChunks(ctx context.Context, documentID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (t *docTx) InsertChunks(ctx context.Context, documentID int64, chunks []kb.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, `
INSERT INTO knowledge_chunks (document_id, chunk_index, chunk_text, embedding, model)
VALUES ($1, $2, $3, $4::vector, $5)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if err := vector.CheckDimension(c.Vector, t.dimension); err != nil {
			return fmt.Errorf("chunk %d: %w", c.Index, err)
		}
		if _, err := stmt.ExecContext(ctx, documentID, c.Index, c.Text, vector.Literal(c.Vector), c.Model); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Index, err)
		}
	}
	return nil
}

func (t *docTx) AppendAudit(ctx context.Context, entry kb.AuditEntry) error {
	if entry.DocumentID == nil {
		return fmt.Errorf("audit entry without document: %w", errorskg.ErrInvalidInput)
	}
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("failed to encode audit changes: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO knowledge_audit_log (document_id, original_document_id, action, performed_by, changes)
VALUES ($1, $1, $2, $3, $4)`, *entry.DocumentID, string(entry.Action), entry.PerformedBy, string(changes))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func ids(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}
