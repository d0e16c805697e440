// Package pg stores fibers, fiber embeddings and knowledge base documents in
// PostgreSQL with the pgvector extension.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/sweetpotato0/fiberkb/config"
	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
)

// DefaultEfSearch is the HNSW candidate list size used for nearest-neighbour reads.
const DefaultEfSearch = 100

// Store implements the fiber, category, retrieval and knowledge base stores.
type Store struct {
	db        *sql.DB
	dimension int
	efSearch  int
	logger    *slog.Logger
}

// Option customizes the store.
type Option func(*Store)

// WithEfSearch overrides hnsw.ef_search for vector reads.
func WithEfSearch(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.efSearch = n
		}
	}
}

// New connects to PostgreSQL, configures the pool and ensures the schema exists.
func New(ctx context.Context, cfg config.PostgresConfig, dimension int, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	s := NewWithDB(db, dimension, opts...)
	if err := s.Migrate(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing handle. The schema is not touched.
func NewWithDB(db *sql.DB, dimension int, opts ...Option) *Store {
	s := &Store{
		db:        db,
		dimension: dimension,
		efSearch:  DefaultEfSearch,
		logger:    logging.WithComponent("pg_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the extension, tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema(s.dimension)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// readVectors runs fn in a read-only transaction tuned for HNSW reads. Any failure
// rolls back and is reported as ErrStoreQueryFailed.
func (s *Store) readVectors(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", errorskg.ErrStoreQueryFailed, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", s.efSearch)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: set ef_search: %v", errorskg.ErrStoreQueryFailed, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %v", errorskg.ErrStoreQueryFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", errorskg.ErrStoreQueryFailed, err)
	}
	return nil
}

func schema(dimension int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS fiber_classes (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_fiber_classes_name ON fiber_classes (lower(name));

CREATE TABLE IF NOT EXISTS fiber_subtypes (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	class_id BIGINT REFERENCES fiber_classes(id) ON DELETE SET NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_fiber_subtypes_name ON fiber_subtypes (lower(name));

CREATE TABLE IF NOT EXISTS synthetic_types (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_synthetic_types_name ON synthetic_types (lower(name));

CREATE TABLE IF NOT EXISTS polymerization_types (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_polymerization_types_name ON polymerization_types (lower(name));

CREATE TABLE IF NOT EXISTS fibers (
	id BIGSERIAL PRIMARY KEY,
	fiber_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	class_id BIGINT REFERENCES fiber_classes(id) ON DELETE SET NULL,
	subtype_id BIGINT REFERENCES fiber_subtypes(id) ON DELETE SET NULL,
	synthetic_type_id BIGINT REFERENCES synthetic_types(id) ON DELETE SET NULL,
	polymerization_type_id BIGINT REFERENCES polymerization_types(id) ON DELETE SET NULL,
	trade_names TEXT[] NOT NULL DEFAULT '{}',
	sources TEXT[] NOT NULL DEFAULT '{}',
	applications TEXT[] NOT NULL DEFAULT '{}',
	manufacturing_process TEXT[] NOT NULL DEFAULT '{}',
	spinning_method TEXT[] NOT NULL DEFAULT '{}',
	post_treatments TEXT[] NOT NULL DEFAULT '{}',
	functional_groups TEXT[] NOT NULL DEFAULT '{}',
	dye_affinity TEXT[] NOT NULL DEFAULT '{}',
	density DOUBLE PRECISION,
	fineness_min DOUBLE PRECISION,
	fineness_max DOUBLE PRECISION,
	staple_length_min DOUBLE PRECISION,
	staple_length_max DOUBLE PRECISION,
	tenacity_min DOUBLE PRECISION,
	tenacity_max DOUBLE PRECISION,
	elongation_min DOUBLE PRECISION,
	elongation_max DOUBLE PRECISION,
	moisture_regain DOUBLE PRECISION,
	absorption_capacity DOUBLE PRECISION,
	polymer_composition TEXT NOT NULL DEFAULT '',
	degree_of_polymerization TEXT NOT NULL DEFAULT '',
	acid_resistance TEXT NOT NULL DEFAULT '',
	alkali_resistance TEXT NOT NULL DEFAULT '',
	microbial_resistance TEXT NOT NULL DEFAULT '',
	thermal_properties TEXT NOT NULL DEFAULT '',
	glass_transition_temp DOUBLE PRECISION,
	melting_point DOUBLE PRECISION,
	decomposition_temp DOUBLE PRECISION,
	elastic_modulus_min DOUBLE PRECISION,
	elastic_modulus_max DOUBLE PRECISION,
	repeating_unit TEXT NOT NULL DEFAULT '',
	molecular_structure_smiles TEXT NOT NULL DEFAULT '',
	structure_image_cms_id TEXT NOT NULL DEFAULT '',
	structure_image_url TEXT NOT NULL DEFAULT '',
	biodegradable BOOLEAN,
	sustainability_notes TEXT NOT NULL DEFAULT '',
	environmental_impact_score INTEGER,
	identification_methods TEXT NOT NULL DEFAULT '',
	property_analysis_methods TEXT NOT NULL DEFAULT '',
	data_source TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_fibers_name ON fibers (lower(name));

CREATE TABLE IF NOT EXISTS fiber_embeddings (
	id BIGSERIAL PRIMARY KEY,
	fiber_id BIGINT NOT NULL REFERENCES fibers(id) ON DELETE CASCADE,
	content_type TEXT NOT NULL,
	content_text TEXT NOT NULL,
	embedding vector(%[1]d) NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (fiber_id, content_type)
);
CREATE INDEX IF NOT EXISTS idx_fiber_embeddings_hnsw ON fiber_embeddings USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS knowledge_documents (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	subcategory TEXT NOT NULL DEFAULT '',
	tags TEXT[] NOT NULL DEFAULT '{}',
	fiber_ids BIGINT[] NOT NULL DEFAULT '{}',
	is_published BOOLEAN NOT NULL DEFAULT FALSE,
	created_by TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id BIGSERIAL PRIMARY KEY,
	document_id BIGINT NOT NULL REFERENCES knowledge_documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	chunk_text TEXT NOT NULL,
	embedding vector(%[1]d) NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (document_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_hnsw ON knowledge_chunks USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS knowledge_audit_log (
	id BIGSERIAL PRIMARY KEY,
	document_id BIGINT REFERENCES knowledge_documents(id) ON DELETE SET NULL,
	original_document_id BIGINT NOT NULL,
	action TEXT NOT NULL,
	performed_by TEXT NOT NULL DEFAULT '',
	changes JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_knowledge_audit_document ON knowledge_audit_log (original_document_id);
`, dimension)
}
