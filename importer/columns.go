package importer

import "strings"

type column int

const (
	colID column = iota
	colName
	colClass
	colSubtype
	colSyntheticType
	colPolymerizationType
	colTradeNames
	colSources
	colApplications
	colManufacturing
	colSpinning
	colPostTreatments
	colFunctionalGroups
	colDyeAffinity
	colDensity
	colFineness
	colStapleLength
	colTenacity
	colElongation
	colMoistureRegain
	colAbsorption
	colElasticModulus
	colPolymer
	colDegreeOfPolymerization
	colAcidResistance
	colAlkaliResistance
	colMicrobialResistance
	colThermal
	colRepeatingUnit
	colIdentification
	colPropertyAnalysis
	colSustainability
	numColumns
)

// headers lists the accepted header spellings of every column, sheet spelling first.
var headers = [numColumns][]string{
	colID:                     {"_id", "fiber_id", "id"},
	colName:                   {"name", "fiber name"},
	colClass:                  {"class", "fiber class"},
	colSubtype:                {"subtype"},
	colSyntheticType:          {"Synthetic type"},
	colPolymerizationType:     {"Polymerization type"},
	colTradeNames:             {"Trade names"},
	colSources:                {"sources"},
	colApplications:           {"applications"},
	colManufacturing:          {"manufacturing process"},
	colSpinning:               {"spinning method"},
	colPostTreatments:         {"manufacturing.post_treatments", "post treatments"},
	colFunctionalGroups:       {"chemical.functional_groups", "functional groups"},
	colDyeAffinity:            {"chemical.dye_affinity", "dye affinity"},
	colDensity:                {"physical.density_g_cm3", "density"},
	colFineness:               {"physical.fineness/diameter_um", "fineness"},
	colStapleLength:           {"physical.staple_length(mm)", "staple length"},
	colTenacity:               {"physical.tenacity_(cN/tex)", "tenacity"},
	colElongation:             {"physical.elongation_percent(%)", "elongation"},
	colMoistureRegain:         {"physical.moisture_regain(%)\nstd.conditons", "physical.moisture_regain(%)", "moisture regain"},
	colAbsorption:             {"Absorption capcity (% of weight)", "Absorption capacity (% of weight)", "absorption capacity"},
	colElasticModulus:         {"Elastic modulus_(GPa)", "elastic modulus"},
	colPolymer:                {"chemical.polymer", "polymer composition"},
	colDegreeOfPolymerization: {"Degree of Polymerization"},
	colAcidResistance:         {"chemical.acid_resistance", "acid resistance"},
	colAlkaliResistance:       {"chemical.alkali_resistance", "alkali resistance"},
	colMicrobialResistance:    {"microbial resistance"},
	colThermal:                {"Thermal properties_°C", "thermal properties"},
	colRepeatingUnit:          {"Structure (repeating unit)", "repeating unit"},
	colIdentification:         {"Fibre identification", "fiber identification"},
	colPropertyAnalysis:       {"Property analysis"},
	colSustainability:         {"sustainability.notes", "sustainability notes"},
}

// normHeader folds case and drops whitespace, BOMs, '-' and '_' so that
// "Trade names", "trade_names" and "TradeNames" coincide.
func normHeader(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "\uFEFF")
	s = strings.ToLower(strings.Join(strings.Fields(s), ""))
	return strings.NewReplacer("-", "", "_", "").Replace(s)
}

// columns maps each known column to its cell index in the sheet, -1 when absent.
type columns [numColumns]int

func newColumns(header []string) *columns {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if k := normHeader(h); k != "" {
			if _, dup := pos[k]; !dup {
				pos[k] = i
			}
		}
	}
	var c columns
	for col, names := range headers {
		c[col] = -1
		for _, name := range names {
			if i, ok := pos[normHeader(name)]; ok {
				c[col] = i
				break
			}
		}
	}
	return &c
}

func (c *columns) index(col column) int { return c[col] }

func (c *columns) row(cells []string) row {
	return row{cols: c, cells: cells}
}

// row reads cells by column; short rows read as blank.
type row struct {
	cols  *columns
	cells []string
}

func (r row) text(col column) string {
	i := r.cols[col]
	if i < 0 || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

func (r row) list(col column) []string {
	return ParseList(r.text(col))
}

func (r row) rng(col column) (*float64, *float64) {
	return ParseRange(r.text(col))
}
