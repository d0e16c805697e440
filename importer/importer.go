// Package importer loads fiber records from the "Fibres" sheet of an .xlsx workbook.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
)

// DefaultSheet is the worksheet read when none is configured.
const DefaultSheet = "Fibres"

// DataSource is stamped on every imported record.
const DataSource = "Excel Import"

// Store persists lookups and fibers.
type Store interface {
	// EnsureLookup returns the lookup with this kind and name, creating it when absent.
	EnsureLookup(ctx context.Context, kind fiber.CategoryKind, name string, parentID *int64) (fiber.Lookup, error)
	// UpsertFiber inserts or replaces the fiber with the same FiberID and reports whether it was created.
	UpsertFiber(ctx context.Context, rec *fiber.Record) (int64, bool, error)
}

// Invalidator drops the cached fiber-name vocabulary.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// RowError describes a row that could not be imported. Row is the 1-based sheet row.
type RowError struct {
	Row  int
	Name string
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %v", e.Row, e.Name, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Report summarizes an import.
type Report struct {
	Created int
	Updated int
	Skipped int
	Errors  []RowError
}

// Total is the number of rows that produced a fiber or an error.
func (r *Report) Total() int {
	return r.Created + r.Updated + len(r.Errors)
}

// Importer reads workbooks into a Store.
type Importer struct {
	store  Store
	vocab  Invalidator
	sheet  string
	logger *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithSheet reads a different worksheet.
func WithSheet(name string) Option {
	return func(im *Importer) {
		if name != "" {
			im.sheet = name
		}
	}
}

// WithVocabulary invalidates v after a successful import.
func WithVocabulary(v Invalidator) Option {
	return func(im *Importer) { im.vocab = v }
}

// New creates an importer writing to store.
func New(store Store, opts ...Option) *Importer {
	im := &Importer{
		store:  store,
		sheet:  DefaultSheet,
		logger: logging.WithComponent("fiber_importer"),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportFile imports the workbook at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Report, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// ImportReader imports a workbook read from r.
func (im *Importer) ImportReader(ctx context.Context, r io.Reader) (*Report, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// Import reads every data row of the configured sheet. Rows without a name are
// skipped; a failing row is recorded in the report and the import continues.
func (im *Importer) Import(ctx context.Context, f *excelize.File) (*Report, error) {
	rows, err := f.GetRows(im.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", im.sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty: %w", im.sheet, errorskg.ErrInvalidInput)
	}

	cols := newColumns(rows[0])
	if cols.index(colName) < 0 {
		return nil, fmt.Errorf("sheet %q has no name column: %w", im.sheet, errorskg.ErrInvalidInput)
	}

	report := &Report{}
	for i, cells := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		row := cols.row(cells)
		sheetRow := i + 2

		name := row.text(colName)
		if name == "" {
			report.Skipped++
			continue
		}
		fiberID := row.text(colID)
		if fiberID == "" {
			fiberID = fmt.Sprintf("F%04d", i)
		}

		created, err := im.importRow(ctx, fiberID, name, row)
		if err != nil {
			im.logger.Warn("fiber row failed", "row", sheetRow, "fiber", name, "error", err)
			report.Errors = append(report.Errors, RowError{Row: sheetRow, Name: name, Err: err})
			continue
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}

	if im.vocab != nil && report.Created+report.Updated > 0 {
		if err := im.vocab.Invalidate(ctx); err != nil {
			im.logger.Warn("failed to invalidate fiber vocabulary", "error", err)
		}
	}
	im.logger.Info("fiber import complete",
		"sheet", im.sheet,
		"created", report.Created,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"errors", len(report.Errors))
	return report, nil
}

func (im *Importer) importRow(ctx context.Context, fiberID, name string, row row) (bool, error) {
	rec := &fiber.Record{
		FiberID:                 fiberID,
		Name:                    name,
		TradeNames:              row.list(colTradeNames),
		Sources:                 row.list(colSources),
		Applications:            row.list(colApplications),
		ManufacturingProcess:    row.list(colManufacturing),
		SpinningMethod:          row.list(colSpinning),
		PostTreatments:          row.list(colPostTreatments),
		FunctionalGroups:        row.list(colFunctionalGroups),
		DyeAffinity:             row.list(colDyeAffinity),
		PolymerComposition:      row.text(colPolymer),
		DegreeOfPolymerization:  row.text(colDegreeOfPolymerization),
		AcidResistance:          row.text(colAcidResistance),
		AlkaliResistance:        row.text(colAlkaliResistance),
		MicrobialResistance:     row.text(colMicrobialResistance),
		ThermalProperties:       row.text(colThermal),
		RepeatingUnit:           row.text(colRepeatingUnit),
		IdentificationMethods:   row.text(colIdentification),
		PropertyAnalysisMethods: row.text(colPropertyAnalysis),
		SustainabilityNotes:     row.text(colSustainability),
		DataSource:              DataSource,
		IsActive:                true,
	}
	rec.Density, _ = row.rng(colDensity)
	rec.FinenessMin, rec.FinenessMax = row.rng(colFineness)
	rec.StapleLengthMin, rec.StapleLengthMax = row.rng(colStapleLength)
	rec.TenacityMin, rec.TenacityMax = row.rng(colTenacity)
	rec.ElongationMin, rec.ElongationMax = row.rng(colElongation)
	rec.MoistureRegain, _ = row.rng(colMoistureRegain)
	rec.AbsorptionCapacity, _ = row.rng(colAbsorption)
	rec.ElasticModulusMin, rec.ElasticModulusMax = row.rng(colElasticModulus)

	var err error
	if rec.Class, err = im.lookup(ctx, fiber.KindClass, row.text(colClass), nil); err != nil {
		return false, err
	}
	if rec.Class != nil {
		if rec.Subtype, err = im.lookup(ctx, fiber.KindSubtype, row.text(colSubtype), &rec.Class.ID); err != nil {
			return false, err
		}
	}
	if rec.SyntheticType, err = im.lookup(ctx, fiber.KindSyntheticType, row.text(colSyntheticType), nil); err != nil {
		return false, err
	}
	if rec.PolymerizationType, err = im.lookup(ctx, fiber.KindPolymerizationType, row.text(colPolymerizationType), nil); err != nil {
		return false, err
	}

	_, created, err := im.store.UpsertFiber(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("failed to upsert fiber: %w", err)
	}
	return created, nil
}

func (im *Importer) lookup(ctx context.Context, kind fiber.CategoryKind, name string, parentID *int64) (*fiber.Lookup, error) {
	if name == "" {
		return nil, nil
	}
	l, err := im.store.EnsureLookup(ctx, kind, name, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure %s %q: %w", kind, name, err)
	}
	return &l, nil
}

// ParseRange reads "1.2", "1.2-1.5" or "1.2 - 1.5". A single value is both bounds;
// an unparsable bound is nil.
func ParseRange(s string) (lo, hi *float64) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if i := strings.Index(s[1:], "-"); i >= 0 {
		return parseFloat(s[:i+1]), parseFloat(s[i+2:])
	}
	v := parseFloat(s)
	return v, v
}

// ParseList splits a cell on commas and semicolons, dropping blanks.
func ParseList(s string) []string {
	var out []string
	for _, item := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseFloat(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &v
}
