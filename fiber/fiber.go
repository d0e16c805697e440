// Package fiber holds the fiber material model, its embedding texts and the
// store contracts the retrieval engine reads fibers through.
package fiber

import (
	"context"
	"strings"
	"time"
)

// CategoryKind names one of the classification lookups a fiber references.
type CategoryKind string

const (
	KindClass              CategoryKind = "class"
	KindSubtype            CategoryKind = "subtype"
	KindSyntheticType      CategoryKind = "synthetic_type"
	KindPolymerizationType CategoryKind = "polymerization_type"
)

// CategoryKinds lists the kinds in resolution priority order.
var CategoryKinds = []CategoryKind{KindClass, KindSubtype, KindSyntheticType, KindPolymerizationType}

// ContentType labels which facet of a fiber an embedding represents.
type ContentType string

const (
	ContentName         ContentType = "name"
	ContentDescription  ContentType = "description"
	ContentProperties   ContentType = "properties"
	ContentApplications ContentType = "applications"
	ContentBasicInfo    ContentType = "basic_info"
	ContentComposition  ContentType = "composition"
	ContentComplete     ContentType = "complete"

	// Non-semantic origins of a match.
	ContentKeyword  ContentType = "keyword_fallback"
	ContentCategory ContentType = "category"
)

// Lookup is a classification row (class, subtype, synthetic type, polymerization type).
// Subtypes carry the id of their class in ParentID.
type Lookup struct {
	ID       int64
	Kind     CategoryKind
	Name     string
	ParentID *int64
}

// Record is a fiber material. Nil numbers and empty strings mean "not recorded".
type Record struct {
	ID      int64
	FiberID string
	Name    string

	Class              *Lookup
	Subtype            *Lookup
	SyntheticType      *Lookup
	PolymerizationType *Lookup

	TradeNames           []string
	Sources              []string
	Applications         []string
	ManufacturingProcess []string
	SpinningMethod       []string
	PostTreatments       []string
	FunctionalGroups     []string
	DyeAffinity          []string

	Density            *float64
	FinenessMin        *float64
	FinenessMax        *float64
	StapleLengthMin    *float64
	StapleLengthMax    *float64
	TenacityMin        *float64
	TenacityMax        *float64
	ElongationMin      *float64
	ElongationMax      *float64
	MoistureRegain     *float64
	AbsorptionCapacity *float64

	PolymerComposition     string
	DegreeOfPolymerization string
	AcidResistance         string
	AlkaliResistance       string
	MicrobialResistance    string

	ThermalProperties   string
	GlassTransitionTemp *float64
	MeltingPoint        *float64
	DecompositionTemp   *float64

	ElasticModulusMin *float64
	ElasticModulusMax *float64

	RepeatingUnit            string
	MolecularStructureSMILES string
	StructureImageCMSID      string
	StructureImageURL        string

	Biodegradable            *bool
	SustainabilityNotes      string
	EnvironmentalImpactScore *int

	IdentificationMethods   string
	PropertyAnalysisMethods string

	DataSource string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LookupName returns the name of the lookup of the given kind, or "".
func (r *Record) LookupName(kind CategoryKind) string {
	var l *Lookup
	switch kind {
	case KindClass:
		l = r.Class
	case KindSubtype:
		l = r.Subtype
	case KindSyntheticType:
		l = r.SyntheticType
	case KindPolymerizationType:
		l = r.PolymerizationType
	}
	if l == nil {
		return ""
	}
	return l.Name
}

// TextFields returns every free-text value and every array joined by spaces,
// the columns keyword search matches against.
func (r *Record) TextFields() []string {
	return []string{
		r.Name,
		r.PolymerComposition,
		r.IdentificationMethods,
		r.SustainabilityNotes,
		r.ThermalProperties,
		r.RepeatingUnit,
		r.DegreeOfPolymerization,
		r.AcidResistance,
		r.AlkaliResistance,
		r.MicrobialResistance,
		strings.Join(r.TradeNames, " "),
		strings.Join(r.Applications, " "),
		strings.Join(r.Sources, " "),
		strings.Join(r.ManufacturingProcess, " "),
		strings.Join(r.SpinningMethod, " "),
		strings.Join(r.PostTreatments, " "),
		strings.Join(r.FunctionalGroups, " "),
		strings.Join(r.DyeAffinity, " "),
	}
}

// NameFields returns the name and trade names, the only fields matched by word skeleton.
func (r *Record) NameFields() []string {
	return append([]string{r.Name}, r.TradeNames...)
}

// Match is one retrieved fiber with the facet that matched and its similarity.
type Match struct {
	Fiber       *Record
	ContentType ContentType
	Similarity  float64
	MatchedText string
}

// Scope filters fibers before ranking.
type Scope struct {
	IncludeInactive bool
	// FiberIDs restricts results to these internal ids when non-empty.
	FiberIDs []int64
}

// Allows reports whether rec passes the scope filters.
func (s Scope) Allows(rec *Record) bool {
	if !s.IncludeInactive && !rec.IsActive {
		return false
	}
	if len(s.FiberIDs) == 0 {
		return true
	}
	for _, id := range s.FiberIDs {
		if id == rec.ID {
			return true
		}
	}
	return false
}

// Embedding is the stored vector of one (fiber, content type) pair.
type Embedding struct {
	FiberID     int64
	ContentType ContentType
	Text        string
	Vector      []float32
	Model       string
}

// Store reads fiber records.
type Store interface {
	GetFiber(ctx context.Context, id int64) (*Record, error)
	// FiberByName matches the name case-insensitively and returns ErrItemNotFound when absent.
	FiberByName(ctx context.Context, name string) (*Record, error)
	ListFibers(ctx context.Context, scope Scope) ([]*Record, error)
	FibersByApplication(ctx context.Context, application string, limit int) ([]*Record, error)
	// FiberNames returns the names of all active fibers.
	FiberNames(ctx context.Context) ([]string, error)
}

// EmbeddingStore persists fiber embeddings, at most one per (fiber, content type).
type EmbeddingStore interface {
	ContentTypes(ctx context.Context, fiberID int64) ([]ContentType, error)
	// UpsertEmbedding replaces any embedding already stored for the same (fiber, content type).
	UpsertEmbedding(ctx context.Context, e Embedding) error
	DeleteEmbeddings(ctx context.Context, fiberID int64) error
}
