package inmemory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/kb"
	"github.com/sweetpotato0/fiberkb/rag/keyword"
	"github.com/sweetpotato0/fiberkb/vector"
)

// auditRow remembers the document an entry was written for after the entry's
// own reference is nulled by a delete.
type auditRow struct {
	documentID int64
	entry      kb.AuditEntry
}

type docState struct {
	docs      map[int64]*kb.Document
	chunks    map[int64][]kb.Chunk
	audit     []auditRow
	nextDoc   int64
	nextAudit int64
}

func newDocState() docState {
	return docState{docs: make(map[int64]*kb.Document), chunks: make(map[int64][]kb.Chunk)}
}

func (d docState) clone() docState {
	cp := d
	cp.docs = make(map[int64]*kb.Document, len(d.docs))
	for id, doc := range d.docs {
		cp.docs[id] = cloneDoc(doc)
	}
	cp.chunks = maps.Clone(d.chunks)
	cp.audit = slices.Clone(d.audit)
	return cp
}

// GetDocument implements kb.Store.
func (s *Store) GetDocument(_ context.Context, id int64) (*kb.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, errorskg.ErrDocumentNotFound)
	}
	return cloneDoc(doc), nil
}

// Chunks implements kb.Store.
func (s *Store) Chunks(_ context.Context, documentID int64) ([]kb.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.docs.chunks[documentID]), nil
}

// AuditLog implements kb.Store. Entries of deleted documents are still returned
// for their original id.
func (s *Store) AuditLog(_ context.Context, documentID int64) ([]kb.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []kb.AuditEntry
	for _, row := range s.docs.audit {
		if row.documentID == documentID {
			out = append(out, row.entry)
		}
	}
	return out, nil
}

// WithinTx implements kb.Store. fn runs against a private copy of the document
// state which replaces the live state only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx kb.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &docTx{state: s.docs.clone(), dimension: s.dimension}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.docs = tx.state
	s.dimension = tx.dimension
	return nil
}

// NearestChunks implements kb.Store.
func (s *Store) NearestChunks(_ context.Context, query []float32, f kb.Filter) ([]kb.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []vector.Candidate
	for _, doc := range s.sortedDocs(f) {
		for _, c := range s.docs.chunks[doc.ID] {
			if len(c.Vector) != len(query) {
				return nil, fmt.Errorf("%w: document %d chunk %d: %w", errorskg.ErrStoreQueryFailed, doc.ID, c.Index, errorskg.ErrDimensionMismatch)
			}
			candidates = append(candidates, vector.Candidate{ItemID: doc.ID, Facet: strconv.Itoa(c.Index), Text: c.Text, Vector: c.Vector})
		}
	}

	hits := vector.Nearest(query, candidates, f.Threshold, f.Limit)
	out := make([]kb.Match, 0, len(hits))
	for _, h := range hits {
		idx, _ := strconv.Atoi(h.Facet)
		out = append(out, kb.Match{
			Document:   cloneDoc(s.docs.docs[h.ItemID]),
			ChunkIndex: idx,
			ChunkText:  h.Text,
			Similarity: h.Similarity,
		})
	}
	return out, nil
}

// KeywordDocuments implements kb.Store.
func (s *Store) KeywordDocuments(_ context.Context, q keyword.Query, f kb.Filter) ([]*kb.Document, error) {
	if q.Empty() {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*kb.Document
	for _, doc := range s.sortedDocs(f) {
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
		if q.Match([]string{doc.Title, doc.Content, strings.Join(doc.Tags, " ")}, []string{doc.Title}) {
			out = append(out, cloneDoc(doc))
		}
	}
	return out, nil
}

func (s *Store) sortedDocs(f kb.Filter) []*kb.Document {
	out := make([]*kb.Document, 0, len(s.docs.docs))
	for _, doc := range s.docs.docs {
		if f.Allows(doc) {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type docTx struct {
	state     docState
	dimension int
}

func (t *docTx) GetDocumentForUpdate(_ context.Context, id int64) (*kb.Document, error) {
	doc, ok := t.state.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, errorskg.ErrDocumentNotFound)
	}
	return cloneDoc(doc), nil
}

func (t *docTx) InsertDocument(_ context.Context, doc *kb.Document) (int64, error) {
	t.state.nextDoc++
	cp := cloneDoc(doc)
	now := time.Now()
	cp.ID, cp.CreatedAt, cp.UpdatedAt = t.state.nextDoc, now, now
	t.state.docs[cp.ID] = cp
	doc.CreatedAt, doc.UpdatedAt = now, now
	return cp.ID, nil
}

func (t *docTx) UpdateDocument(_ context.Context, doc *kb.Document) error {
	cur, ok := t.state.docs[doc.ID]
	if !ok {
		return fmt.Errorf("document %d: %w", doc.ID, errorskg.ErrDocumentNotFound)
	}
	cp := cloneDoc(doc)
	cp.CreatedAt, cp.UpdatedAt = cur.CreatedAt, time.Now()
	doc.UpdatedAt = cp.UpdatedAt
	t.state.docs[doc.ID] = cp
	return nil
}

func (t *docTx) DeleteDocument(_ context.Context, id int64) error {
	if _, ok := t.state.docs[id]; !ok {
		return fmt.Errorf("document %d: %w", id, errorskg.ErrDocumentNotFound)
	}
	delete(t.state.docs, id)
	delete(t.state.chunks, id)
	// audit rows survive with a nulled reference
	for i, row := range t.state.audit {
		if row.documentID == id {
			t.state.audit[i].entry.DocumentID = nil
		}
	}
	return nil
}

func (t *docTx) DeleteChunks(_ context.Context, documentID int64) error {
	delete(t.state.chunks, documentID)
	return nil
}

func (t *docTx) InsertChunks(_ context.Context, documentID int64, chunks []kb.Chunk) error {
	if _, ok := t.state.docs[documentID]; !ok {
		return fmt.Errorf("document %d: %w", documentID, errorskg.ErrDocumentNotFound)
	}
	out := slices.Clone(t.state.chunks[documentID])
	for _, c := range chunks {
		if err := checkDimension(&t.dimension, c.Vector); err != nil {
			return fmt.Errorf("chunk %d: %w", c.Index, err)
		}
		c.DocumentID = documentID
		c.Vector = slices.Clone(c.Vector)
		out = append(out, c)
	}
	t.state.chunks[documentID] = out
	return nil
}

func (t *docTx) AppendAudit(_ context.Context, entry kb.AuditEntry) error {
	t.state.nextAudit++
	entry.ID = t.state.nextAudit
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	row := auditRow{entry: entry}
	if entry.DocumentID != nil {
		row.documentID = *entry.DocumentID
		row.entry.DocumentID = &row.documentID
	}
	t.state.audit = append(t.state.audit, row)
	return nil
}

func cloneDoc(doc *kb.Document) *kb.Document {
	if doc == nil {
		return nil
	}
	cp := *doc
	cp.Tags = slices.Clone(doc.Tags)
	cp.FiberIDs = slices.Clone(doc.FiberIDs)
	return &cp
}
