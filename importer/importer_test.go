package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/sweetpotato0/fiberkb/contrib/store/inmemory"
	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/fiber"
)

func workbook(t *testing.T, sheet string, rows ...[]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if _, err := f.NewSheet(sheet); err != nil {
		t.Fatalf("NewSheet failed: %v", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName failed: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow failed: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer failed: %v", err)
	}
	return buf
}

var header = []any{
	"_id", "name", "class", "subtype", "Synthetic type", "Polymerization type",
	"Trade names", "applications", "physical.density_g_cm3", "physical.tenacity_(cN/tex)",
	"physical.moisture_regain(%)\nstd.conditons", "chemical.polymer",
}

type countingVocab struct{ calls int }

func (c *countingVocab) Invalidate(context.Context) error {
	c.calls++
	return nil
}

type failingStore struct {
	*inmemory.Store
	failName string
}

func (s failingStore) UpsertFiber(ctx context.Context, rec *fiber.Record) (int64, bool, error) {
	if rec.Name == s.failName {
		return 0, false, fmt.Errorf("disk full")
	}
	return s.Store.UpsertFiber(ctx, rec)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	store := inmemory.New()
	vocab := &countingVocab{}
	im := New(store, WithVocabulary(vocab))

	buf := workbook(t, DefaultSheet,
		header,
		[]any{"FB001", "Cotton", "Natural", "Cellulosic", "", "", "Pima; Supima", "apparel, towels", "1.54", "25-40", "8.5", "cellulose"},
		[]any{"", "Polyester", "Synthetic", "", "Melt spun", "Condensation", "Dacron,Terylene", "", "1.38", "40 - 60", "", "PET"},
		[]any{"FB003", "", "Natural"},
		[]any{"FB004", "Wool", "natural", "Protein"},
	)
	report, err := im.ImportReader(ctx, buf)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if report.Created != 3 || report.Updated != 0 || report.Skipped != 1 || len(report.Errors) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Total() != 3 || vocab.calls != 1 {
		t.Fatalf("total=%d invalidations=%d", report.Total(), vocab.calls)
	}

	cotton, err := store.FiberByName(ctx, "cotton")
	if err != nil {
		t.Fatalf("FiberByName failed: %v", err)
	}
	if cotton.FiberID != "FB001" || cotton.Class.Name != "Natural" || cotton.Subtype.Name != "Cellulosic" {
		t.Fatalf("unexpected classification: %+v", cotton)
	}
	if cotton.Subtype.ParentID == nil || *cotton.Subtype.ParentID != cotton.Class.ID {
		t.Fatalf("subtype not attached to its class: %+v", cotton.Subtype)
	}
	if !slices.Equal(cotton.TradeNames, []string{"Pima", "Supima"}) || !slices.Equal(cotton.Applications, []string{"apparel", "towels"}) {
		t.Fatalf("unexpected lists: %v %v", cotton.TradeNames, cotton.Applications)
	}
	if *cotton.Density != 1.54 || *cotton.TenacityMin != 25 || *cotton.TenacityMax != 40 || *cotton.MoistureRegain != 8.5 {
		t.Fatalf("unexpected numbers: %+v", cotton)
	}
	if cotton.PolymerComposition != "cellulose" || cotton.DataSource != DataSource || !cotton.IsActive {
		t.Fatalf("unexpected text fields: %+v", cotton)
	}

	polyester, err := store.FiberByName(ctx, "polyester")
	if err != nil {
		t.Fatalf("FiberByName failed: %v", err)
	}
	if polyester.FiberID != "F0001" {
		t.Fatalf("expected generated id F0001, got %q", polyester.FiberID)
	}
	if polyester.SyntheticType.Name != "Melt spun" || polyester.PolymerizationType.Name != "Condensation" || polyester.Subtype != nil {
		t.Fatalf("unexpected classification: %+v", polyester)
	}
	if *polyester.TenacityMin != 40 || *polyester.TenacityMax != 60 || polyester.MoistureRegain != nil {
		t.Fatalf("unexpected numbers: %+v", polyester)
	}

	wool, err := store.FiberByName(ctx, "wool")
	if err != nil {
		t.Fatalf("FiberByName failed: %v", err)
	}
	if wool.Class.ID != cotton.Class.ID {
		t.Fatal("class lookup should be reused case-insensitively")
	}

	again := workbook(t, DefaultSheet, header, []any{"FB001", "Cotton", "Natural", "", "", "", "", "", "1.55"})
	report, err = im.ImportReader(ctx, again)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if report.Created != 0 || report.Updated != 1 {
		t.Fatalf("expected an update, got %+v", report)
	}
	cotton, _ = store.FiberByName(ctx, "cotton")
	if *cotton.Density != 1.55 || cotton.Subtype != nil {
		t.Fatalf("re-import did not replace the row: %+v", cotton)
	}
}

func TestImportRecordsRowErrors(t *testing.T) {
	ctx := context.Background()
	store := failingStore{Store: inmemory.New(), failName: "Nylon"}
	buf := workbook(t, DefaultSheet, header,
		[]any{"FB010", "Nylon"},
		[]any{"FB011", "Silk"},
	)

	report, err := New(store).ImportReader(ctx, buf)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if report.Created != 1 || len(report.Errors) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if rowErr := report.Errors[0]; rowErr.Row != 2 || rowErr.Name != "Nylon" {
		t.Fatalf("unexpected row error: %+v", rowErr)
	}
}

func TestImportRejectsBadSheets(t *testing.T) {
	ctx := context.Background()
	im := New(inmemory.New())

	if _, err := im.ImportReader(ctx, workbook(t, "Other", header)); err == nil {
		t.Fatal("expected an error for a missing sheet")
	}
	buf := workbook(t, DefaultSheet, []any{"_id", "class"}, []any{"FB001", "Natural"})
	if _, err := im.ImportReader(ctx, buf); !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without a name column, got %v", err)
	}
	custom := New(inmemory.New(), WithSheet("Other"))
	report, err := custom.ImportReader(ctx, workbook(t, "Other", header, []any{"FB001", "Hemp"}))
	if err != nil || report.Created != 1 {
		t.Fatalf("custom sheet import: %+v, %v", report, err)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in     string
		lo, hi float64
		nilLo  bool
		nilHi  bool
	}{
		{in: "1.2", lo: 1.2, hi: 1.2},
		{in: "1.2-1.5", lo: 1.2, hi: 1.5},
		{in: " 1.2 - 1.5 ", lo: 1.2, hi: 1.5},
		{in: "-5", lo: -5, hi: -5},
		{in: "10-", lo: 10, nilHi: true},
		{in: "n/a", nilLo: true, nilHi: true},
		{in: "", nilLo: true, nilHi: true},
	}
	for _, tt := range tests {
		lo, hi := ParseRange(tt.in)
		if (lo == nil) != tt.nilLo || (hi == nil) != tt.nilHi {
			t.Fatalf("%q: nil mismatch lo=%v hi=%v", tt.in, lo, hi)
		}
		if lo != nil && *lo != tt.lo {
			t.Fatalf("%q: lo = %v, want %v", tt.in, *lo, tt.lo)
		}
		if hi != nil && *hi != tt.hi {
			t.Fatalf("%q: hi = %v, want %v", tt.in, *hi, tt.hi)
		}
	}
}

func TestParseList(t *testing.T) {
	got := ParseList(" a; b ,, c;")
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("ParseList = %v", got)
	}
	if ParseList("  ") != nil {
		t.Fatal("expected nil for a blank cell")
	}
}

func TestNormHeader(t *testing.T) {
	if normHeader("Trade names") != normHeader("trade_names") || normHeader("\uFEFF_id") != "id" {
		t.Fatal("headers should normalize together")
	}
}
