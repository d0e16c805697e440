package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/rag/keyword"
	"github.com/sweetpotato0/fiberkb/vector"
)

// lookupTables maps each category kind to its table and the alias used in fiberSelect.
var lookupTables = map[fiber.CategoryKind]struct{ table, alias, fk string }{
	fiber.KindClass:              {"fiber_classes", "fc", "class_id"},
	fiber.KindSubtype:            {"fiber_subtypes", "fs", "subtype_id"},
	fiber.KindSyntheticType:      {"synthetic_types", "st", "synthetic_type_id"},
	fiber.KindPolymerizationType: {"polymerization_types", "pt", "polymerization_type_id"},
}

// fiberColumns are the writable columns of fibers, in fiberArgs order.
var fiberColumns = []string{
	"fiber_id", "name", "class_id", "subtype_id", "synthetic_type_id", "polymerization_type_id",
	"trade_names", "sources", "applications", "manufacturing_process", "spinning_method",
	"post_treatments", "functional_groups", "dye_affinity",
	"density", "fineness_min", "fineness_max", "staple_length_min", "staple_length_max",
	"tenacity_min", "tenacity_max", "elongation_min", "elongation_max", "moisture_regain", "absorption_capacity",
	"polymer_composition", "degree_of_polymerization", "acid_resistance", "alkali_resistance", "microbial_resistance",
	"thermal_properties", "glass_transition_temp", "melting_point", "decomposition_temp",
	"elastic_modulus_min", "elastic_modulus_max",
	"repeating_unit", "molecular_structure_smiles", "structure_image_cms_id", "structure_image_url",
	"biodegradable", "sustainability_notes", "environmental_impact_score",
	"identification_methods", "property_analysis_methods", "data_source", "is_active",
}

// fiberSelect reads fibers with their lookup rows. Callers append WHERE/ORDER clauses.
var fiberSelect = `SELECT f.id, f.` + strings.Join(fiberColumns[:2], ", f.") + `,
	fc.id, fc.name, fs.id, fs.name, fs.class_id, st.id, st.name, pt.id, pt.name,
	f.` + strings.Join(fiberColumns[6:], ", f.") + `, f.created_at, f.updated_at
FROM fibers f
LEFT JOIN fiber_classes fc ON fc.id = f.class_id
LEFT JOIN fiber_subtypes fs ON fs.id = f.subtype_id
LEFT JOIN synthetic_types st ON st.id = f.synthetic_type_id
LEFT JOIN polymerization_types pt ON pt.id = f.polymerization_type_id
`

// keywordText concatenates every keyword-searchable column of f.
const keywordText = `concat_ws(' ', f.name, f.polymer_composition, f.identification_methods,
	f.sustainability_notes, f.thermal_properties, f.repeating_unit, f.degree_of_polymerization,
	f.acid_resistance, f.alkali_resistance, f.microbial_resistance,
	array_to_string(f.trade_names, ' '), array_to_string(f.applications, ' '),
	array_to_string(f.sources, ' '), array_to_string(f.manufacturing_process, ' '),
	array_to_string(f.spinning_method, ' '), array_to_string(f.post_treatments, ' '),
	array_to_string(f.functional_groups, ' '), array_to_string(f.dye_affinity, ' '))`

// skeletonMatch is true when any word of text has the consonant outline in the
// given parameter: runs collapsed, vowels dropped after the first letter.
func skeletonMatch(text, param string) string {
	return fmt.Sprintf(`(%[2]s <> '' AND EXISTS (
	SELECT 1 FROM regexp_split_to_table(lower(%[1]s), '[^a-z0-9]+') AS w(word),
	LATERAL (SELECT regexp_replace(w.word, '(.)\1+', '\1', 'g') AS c) d
	WHERE d.c <> '' AND substr(d.c, 1, 1) || regexp_replace(substr(d.c, 2), '[aeiou]', '', 'g') = %[2]s))`, text, param)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFiber(row rowScanner) (*fiber.Record, error) {
	var (
		rec                    fiber.Record
		classID, subID, subPar *int64
		stID, ptID             *int64
		className, subName     *string
		stName, ptName         *string
	)
	err := row.Scan(
		&rec.ID, &rec.FiberID, &rec.Name,
		&classID, &className, &subID, &subName, &subPar, &stID, &stName, &ptID, &ptName,
		pq.Array(&rec.TradeNames), pq.Array(&rec.Sources), pq.Array(&rec.Applications),
		pq.Array(&rec.ManufacturingProcess), pq.Array(&rec.SpinningMethod), pq.Array(&rec.PostTreatments),
		pq.Array(&rec.FunctionalGroups), pq.Array(&rec.DyeAffinity),
		&rec.Density, &rec.FinenessMin, &rec.FinenessMax, &rec.StapleLengthMin, &rec.StapleLengthMax,
		&rec.TenacityMin, &rec.TenacityMax, &rec.ElongationMin, &rec.ElongationMax, &rec.MoistureRegain, &rec.AbsorptionCapacity,
		&rec.PolymerComposition, &rec.DegreeOfPolymerization, &rec.AcidResistance, &rec.AlkaliResistance, &rec.MicrobialResistance,
		&rec.ThermalProperties, &rec.GlassTransitionTemp, &rec.MeltingPoint, &rec.DecompositionTemp,
		&rec.ElasticModulusMin, &rec.ElasticModulusMax,
		&rec.RepeatingUnit, &rec.MolecularStructureSMILES, &rec.StructureImageCMSID, &rec.StructureImageURL,
		&rec.Biodegradable, &rec.SustainabilityNotes, &rec.EnvironmentalImpactScore,
		&rec.IdentificationMethods, &rec.PropertyAnalysisMethods, &rec.DataSource, &rec.IsActive,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Class = lookup(fiber.KindClass, classID, className, nil)
	rec.Subtype = lookup(fiber.KindSubtype, subID, subName, subPar)
	rec.SyntheticType = lookup(fiber.KindSyntheticType, stID, stName, nil)
	rec.PolymerizationType = lookup(fiber.KindPolymerizationType, ptID, ptName, nil)
	return &rec, nil
}

func lookup(kind fiber.CategoryKind, id *int64, name *string, parent *int64) *fiber.Lookup {
	if id == nil || name == nil {
		return nil
	}
	return &fiber.Lookup{ID: *id, Kind: kind, Name: *name, ParentID: parent}
}

func lookupID(l *fiber.Lookup) *int64 {
	if l == nil || l.ID == 0 {
		return nil
	}
	return &l.ID
}

func fiberArgs(rec *fiber.Record) []any {
	return []any{
		rec.FiberID, rec.Name, lookupID(rec.Class), lookupID(rec.Subtype), lookupID(rec.SyntheticType), lookupID(rec.PolymerizationType),
		pq.Array(nonNil(rec.TradeNames)), pq.Array(nonNil(rec.Sources)), pq.Array(nonNil(rec.Applications)),
		pq.Array(nonNil(rec.ManufacturingProcess)), pq.Array(nonNil(rec.SpinningMethod)), pq.Array(nonNil(rec.PostTreatments)),
		pq.Array(nonNil(rec.FunctionalGroups)), pq.Array(nonNil(rec.DyeAffinity)),
		rec.Density, rec.FinenessMin, rec.FinenessMax, rec.StapleLengthMin, rec.StapleLengthMax,
		rec.TenacityMin, rec.TenacityMax, rec.ElongationMin, rec.ElongationMax, rec.MoistureRegain, rec.AbsorptionCapacity,
		rec.PolymerComposition, rec.DegreeOfPolymerization, rec.AcidResistance, rec.AlkaliResistance, rec.MicrobialResistance,
		rec.ThermalProperties, rec.GlassTransitionTemp, rec.MeltingPoint, rec.DecompositionTemp,
		rec.ElasticModulusMin, rec.ElasticModulusMax,
		rec.RepeatingUnit, rec.MolecularStructureSMILES, rec.StructureImageCMSID, rec.StructureImageURL,
		rec.Biodegradable, rec.SustainabilityNotes, rec.EnvironmentalImpactScore,
		rec.IdentificationMethods, rec.PropertyAnalysisMethods, rec.DataSource, rec.IsActive,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func (s *Store) queryFibers(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, query string, args ...any) ([]*fiber.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*fiber.Record
	for rows.Next() {
		rec, err := scanFiber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fiber: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EnsureLookup returns the lookup row of kind named name, inserting it when missing.
func (s *Store) EnsureLookup(ctx context.Context, kind fiber.CategoryKind, name string, parentID *int64) (fiber.Lookup, error) {
	name = strings.TrimSpace(name)
	t, ok := lookupTables[kind]
	if !ok || name == "" {
		return fiber.Lookup{}, fmt.Errorf("lookup %s %q: %w", kind, name, errorskg.ErrInvalidInput)
	}

	parentCol := "NULL::bigint"
	if kind == fiber.KindSubtype {
		parentCol = "class_id"
	}
	l := fiber.Lookup{Kind: kind}
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, name, %s FROM %s WHERE lower(name) = lower($1)`, parentCol, t.table), name,
	).Scan(&l.ID, &l.Name, &l.ParentID)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fiber.Lookup{}, fmt.Errorf("failed to read %s: %w", t.table, err)
	}

	if kind == fiber.KindSubtype {
		err = s.db.QueryRowContext(ctx,
			`INSERT INTO fiber_subtypes (name, class_id) VALUES ($1, $2) RETURNING id, name, class_id`, name, parentID,
		).Scan(&l.ID, &l.Name, &l.ParentID)
	} else {
		err = s.db.QueryRowContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (name) VALUES ($1) RETURNING id, name`, t.table), name,
		).Scan(&l.ID, &l.Name)
	}
	if err != nil {
		return fiber.Lookup{}, fmt.Errorf("failed to insert %s: %w", t.table, err)
	}
	return l, nil
}

// UpsertFiber inserts rec or replaces the row with the same fiber_id.
func (s *Store) UpsertFiber(ctx context.Context, rec *fiber.Record) (int64, bool, error) {
	if rec == nil || strings.TrimSpace(rec.Name) == "" || strings.TrimSpace(rec.FiberID) == "" {
		return 0, false, fmt.Errorf("fiber id and name are required: %w", errorskg.ErrInvalidInput)
	}

	placeholders := make([]string, len(fiberColumns))
	updates := make([]string, 0, len(fiberColumns)-1)
	for i, col := range fiberColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "fiber_id" {
			updates = append(updates, col+" = EXCLUDED."+col)
		}
	}
	query := fmt.Sprintf(`INSERT INTO fibers (%s) VALUES (%s)
ON CONFLICT (fiber_id) DO UPDATE SET %s, updated_at = now()
RETURNING id, (xmax = 0)`, strings.Join(fiberColumns, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))

	var id int64
	var created bool
	if err := s.db.QueryRowContext(ctx, query, fiberArgs(rec)...).Scan(&id, &created); err != nil {
		return 0, false, fmt.Errorf("failed to upsert fiber %s: %w", rec.FiberID, err)
	}
	return id, created, nil
}

// GetFiber implements fiber.Store.
func (s *Store) GetFiber(ctx context.Context, id int64) (*fiber.Record, error) {
	rec, err := scanFiber(s.db.QueryRowContext(ctx, fiberSelect+`WHERE f.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fiber %d: %w", id, errorskg.ErrItemNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fiber: %w", err)
	}
	return rec, nil
}

// FiberByName implements fiber.Store.
func (s *Store) FiberByName(ctx context.Context, name string) (*fiber.Record, error) {
	rec, err := scanFiber(s.db.QueryRowContext(ctx, fiberSelect+`WHERE lower(f.name) = lower($1) ORDER BY f.id LIMIT 1`, strings.TrimSpace(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fiber %q: %w", name, errorskg.ErrItemNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fiber: %w", err)
	}
	return rec, nil
}

// ListFibers implements fiber.Store.
func (s *Store) ListFibers(ctx context.Context, scope fiber.Scope) ([]*fiber.Record, error) {
	recs, err := s.queryFibers(ctx, s.db, fiberSelect+`WHERE ($1 OR f.is_active) AND (cardinality($2::bigint[]) = 0 OR f.id = ANY($2))
ORDER BY f.id`, scope.IncludeInactive, pq.Array(scopeIDs(scope)))
	if err != nil {
		return nil, fmt.Errorf("failed to list fibers: %w", err)
	}
	return recs, nil
}

// FibersByApplication implements fiber.Store.
func (s *Store) FibersByApplication(ctx context.Context, application string, limit int) ([]*fiber.Record, error) {
	pattern := "%" + keyword.EscapeLike(strings.ToLower(strings.TrimSpace(application))) + "%"
	recs, err := s.queryFibers(ctx, s.db, fiberSelect+`WHERE f.is_active AND array_to_string(f.applications, ' ') ILIKE $1
ORDER BY f.id LIMIT $2`, pattern, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query fibers by application: %w", err)
	}
	return recs, nil
}

// FiberNames implements fiber.Store and intent.NameSource.
func (s *Store) FiberNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM fibers WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fiber names: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan fiber name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ContentTypes implements fiber.EmbeddingStore.
func (s *Store) ContentTypes(ctx context.Context, fiberID int64) ([]fiber.ContentType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT content_type FROM fiber_embeddings WHERE fiber_id = $1 ORDER BY content_type`, fiberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list content types: %w", err)
	}
	defer rows.Close()
	var out []fiber.ContentType
	for rows.Next() {
		var ct string
		if err := rows.Scan(&ct); err != nil {
			return nil, fmt.Errorf("failed to scan content type: %w", err)
		}
		out = append(out, fiber.ContentType(ct))
	}
	return out, rows.Err()
}

// UpsertEmbedding implements fiber.EmbeddingStore.
func (s *Store) UpsertEmbedding(ctx context.Context, e fiber.Embedding) error {
	if err := vector.CheckDimension(e.Vector, s.dimension); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO fiber_embeddings (fiber_id, content_type, content_text, embedding, model)
VALUES ($1, $2, $3, $4::vector, $5)
ON CONFLICT (fiber_id, content_type) DO UPDATE SET
	content_text = EXCLUDED.content_text,
	embedding = EXCLUDED.embedding,
	model = EXCLUDED.model,
	created_at = now()`,
		e.FiberID, string(e.ContentType), e.Text, vector.Literal(e.Vector), e.Model)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for fiber %d: %w", e.FiberID, err)
	}
	return nil
}

// DeleteEmbeddings implements fiber.EmbeddingStore.
func (s *Store) DeleteEmbeddings(ctx context.Context, fiberID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fiber_embeddings WHERE fiber_id = $1`, fiberID); err != nil {
		return fmt.Errorf("failed to delete embeddings for fiber %d: %w", fiberID, err)
	}
	return nil
}

// NearestFibers implements retrieval.Index. Scope filters apply before the
// per-fiber ranking, so restricted searches are never starved by other fibers.
func (s *Store) NearestFibers(ctx context.Context, query []float32, scope fiber.Scope, threshold float64, limit int) ([]fiber.Match, error) {
	if err := vector.CheckDimension(query, s.dimension); err != nil {
		return nil, err
	}

	var out []fiber.Match
	err := s.readVectors(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
WITH ranked AS (
	SELECT e.fiber_id, e.content_type, e.content_text,
		1 - (e.embedding <=> $1::vector) AS similarity,
		ROW_NUMBER() OVER (PARTITION BY e.fiber_id ORDER BY e.embedding <=> $1::vector) AS rn
	FROM fiber_embeddings e
	JOIN fibers f ON f.id = e.fiber_id
	WHERE ($2 OR f.is_active) AND (cardinality($3::bigint[]) = 0 OR f.id = ANY($3))
)
SELECT fiber_id, content_type, content_text, similarity
FROM ranked
WHERE rn = 1 AND similarity >= $4
ORDER BY similarity DESC, fiber_id
LIMIT $5`, vector.Literal(query), scope.IncludeInactive, pq.Array(scopeIDs(scope)), threshold, limitOrAll(limit))
		if err != nil {
			return err
		}

		var ids []int64
		for rows.Next() {
			var m fiber.Match
			var id int64
			var ct string
			if err := rows.Scan(&id, &ct, &m.MatchedText, &m.Similarity); err != nil {
				rows.Close()
				return err
			}
			m.ContentType = fiber.ContentType(ct)
			m.Fiber = &fiber.Record{ID: id}
			ids = append(ids, id)
			out = append(out, m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		recs, err := s.queryFibers(ctx, tx, fiberSelect+`WHERE f.id = ANY($1)`, pq.Array(ids))
		if err != nil {
			return err
		}
		byID := make(map[int64]*fiber.Record, len(recs))
		for _, rec := range recs {
			byID[rec.ID] = rec
		}
		for i := range out {
			if rec, ok := byID[out[i].Fiber.ID]; ok {
				out[i].Fiber = rec
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// KeywordFibers implements retrieval.Index.
func (s *Store) KeywordFibers(ctx context.Context, q keyword.Query, scope fiber.Scope, limit int) ([]*fiber.Record, error) {
	if q.Empty() {
		return nil, nil
	}
	nameText := `f.name || ' ' || array_to_string(f.trade_names, ' ')`
	recs, err := s.queryFibers(ctx, s.db, fiberSelect+`WHERE ($1 OR f.is_active) AND (cardinality($2::bigint[]) = 0 OR f.id = ANY($2))
AND (`+keywordText+` ILIKE ANY($3) OR `+skeletonMatch(nameText, "$4")+`)
ORDER BY f.id LIMIT $5`,
		scope.IncludeInactive, pq.Array(scopeIDs(scope)), pq.Array(q.Patterns()), q.Skeleton, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: keyword fibers: %v", errorskg.ErrStoreQueryFailed, err)
	}
	return recs, nil
}

// FindLookups implements category.Store.
func (s *Store) FindLookups(ctx context.Context, kind fiber.CategoryKind, patterns []string) ([]fiber.Lookup, error) {
	t, ok := lookupTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown category kind %q: %w", kind, errorskg.ErrInvalidInput)
	}
	likes := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			likes = append(likes, "%"+keyword.EscapeLike(p)+"%")
		}
	}
	if len(likes) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, name FROM %s WHERE lower(name) LIKE ANY($1) ORDER BY id`, t.table), pq.Array(likes))
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", t.table, err)
	}
	defer rows.Close()
	var out []fiber.Lookup
	for rows.Next() {
		l := fiber.Lookup{Kind: kind}
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", t.table, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// FibersByLookup implements category.Store.
func (s *Store) FibersByLookup(ctx context.Context, kind fiber.CategoryKind, name string, limit int) ([]*fiber.Record, error) {
	t, ok := lookupTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown category kind %q: %w", kind, errorskg.ErrInvalidInput)
	}
	recs, err := s.queryFibers(ctx, s.db, fiberSelect+fmt.Sprintf(`WHERE f.is_active AND lower(%s.name) = lower($1) ORDER BY f.id LIMIT $2`, t.alias),
		name, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query fibers by %s: %w", kind, err)
	}
	return recs, nil
}

func scopeIDs(scope fiber.Scope) []int64 {
	if scope.FiberIDs == nil {
		return []int64{}
	}
	return scope.FiberIDs
}

// limitOrAll maps a non-positive limit to NULL, which LIMIT treats as no limit.
func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
