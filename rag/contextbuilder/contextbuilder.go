// Package contextbuilder renders retrieved fibers into the grounding block handed to the LLM.
package contextbuilder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/rag/tokenizer"
)

const (
	header  = "Here is relevant information from the fiber database:\n"
	trailer = "\nUse this information to provide accurate, detailed answers about these fibers."
	indent  = "   - "
)

// Builder formats fiber matches. A positive token budget drops trailing entries that do not fit.
type Builder struct {
	tok       tokenizer.Tokenizer
	maxTokens int
}

// Option customizes the builder.
type Option func(*Builder)

// WithTokenBudget bounds the rendered block to max tokens counted by tok.
func WithTokenBudget(tok tokenizer.Tokenizer, max int) Option {
	return func(b *Builder) {
		if tok != nil {
			b.tok = tok
		}
		b.maxTokens = max
	}
}

// New constructs a builder; without options the output is unbounded.
func New(opts ...Option) *Builder {
	b := &Builder{tok: tokenizer.NewSimpleTokenizer()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders one numbered entry per match. No matches yield "".
func (b *Builder) Build(matches []fiber.Match) string {
	if len(matches) == 0 {
		return ""
	}

	parts := []string{header}
	used := b.count(header) + b.count(trailer)
	idx := 0
	for _, m := range matches {
		if m.Fiber == nil {
			continue
		}
		entry := Entry(idx+1, m)
		if b.maxTokens > 0 {
			n := b.count(entry)
			if used+n > b.maxTokens {
				if idx > 0 {
					break
				}
				entry = b.tok.Truncate(entry, max(b.maxTokens-used, 1))
				n = b.count(entry)
			}
			used += n
		}
		parts = append(parts, entry)
		idx++
	}
	if idx == 0 {
		return ""
	}
	parts = append(parts, trailer)
	return strings.Join(parts, "\n")
}

func (b *Builder) count(s string) int {
	return b.tok.CountTokens(s)
}

// Entry renders one fiber. Every line is guarded on the field being recorded.
func Entry(idx int, m fiber.Match) string {
	f := m.Fiber
	lines := []string{fmt.Sprintf("\n%d. **%s** (ID: %s)", idx, f.Name, f.FiberID)}
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, indent+label+": "+value)
		}
	}

	add("Class", f.LookupName(fiber.KindClass))
	add("Subtype", f.LookupName(fiber.KindSubtype))
	add("Trade Names", strings.Join(fiber.First(f.TradeNames, 10), ", "))
	add("Composition", f.PolymerComposition)
	add("Repeating Unit", f.RepeatingUnit)
	add("Molecular Structure (SMILES)", f.MolecularStructureSMILES)
	add("Applications", strings.Join(fiber.First(f.Applications, 5), ", "))
	add("Sources", strings.Join(fiber.First(f.Sources, 3), ", "))
	add("Manufacturing Process", strings.Join(fiber.First(f.ManufacturingProcess, 5), ", "))
	add("Spinning Method", strings.Join(fiber.First(f.SpinningMethod, 5), ", "))
	add("Post Treatments", strings.Join(fiber.First(f.PostTreatments, 5), ", "))
	add("Dye Affinity", strings.Join(fiber.First(f.DyeAffinity, 5), ", "))

	var props []string
	if v, ok := fiber.Num(f.Density); ok {
		props = append(props, "Density: "+v+" g/cm³")
	}
	if v, ok := fiber.Num(f.MoistureRegain); ok {
		props = append(props, "Moisture Regain: "+v+"%")
	}
	if v, ok := fiber.Num(f.AbsorptionCapacity); ok {
		props = append(props, "Absorption Capacity: "+v+"%")
	}
	if v, ok := fiber.Range(f.TenacityMin, f.TenacityMax); ok {
		props = append(props, "Tenacity: "+v+" cN/tex")
	}
	if v, ok := fiber.Range(f.ElongationMin, f.ElongationMax); ok {
		props = append(props, "Elongation: "+v+"%")
	}
	if v, ok := fiber.Range(f.FinenessMin, f.FinenessMax); ok {
		props = append(props, "Fineness: "+v+" μm")
	}
	if v, ok := fiber.Range(f.StapleLengthMin, f.StapleLengthMax); ok {
		props = append(props, "Staple Length: "+v+" mm")
	}
	add("Properties", strings.Join(props, ", "))

	var chem []string
	if f.AcidResistance != "" {
		chem = append(chem, "Acid: "+f.AcidResistance)
	}
	if f.AlkaliResistance != "" {
		chem = append(chem, "Alkali: "+f.AlkaliResistance)
	}
	if f.MicrobialResistance != "" {
		chem = append(chem, "Microbial: "+f.MicrobialResistance)
	}
	add("Chemical Resistance", strings.Join(chem, ", "))

	add("Degree of Polymerization", f.DegreeOfPolymerization)
	add("Functional Groups", strings.Join(fiber.First(f.FunctionalGroups, 5), ", "))

	var thermal []string
	if v, ok := fiber.Num(f.MeltingPoint); ok {
		thermal = append(thermal, "Melting Point: "+v+"°C")
	}
	if v, ok := fiber.Num(f.GlassTransitionTemp); ok {
		thermal = append(thermal, "Glass Transition: "+v+"°C")
	}
	if v, ok := fiber.Num(f.DecompositionTemp); ok {
		thermal = append(thermal, "Decomposition: "+v+"°C")
	}
	add("Thermal", strings.Join(thermal, ", "))

	add("Thermal Properties", fiber.Ellipsize(f.ThermalProperties, 200))
	add("Identification Methods", fiber.Ellipsize(f.IdentificationMethods, 150))
	add("Property Analysis Methods", fiber.Ellipsize(f.PropertyAnalysisMethods, 150))

	if f.StructureImageURL != "" {
		cms := f.StructureImageCMSID
		if cms == "" {
			cms = "N/A"
		}
		add("Structure Image Available", "Yes (ID: "+cms+")")
	}

	if f.Biodegradable != nil {
		if *f.Biodegradable {
			add("Biodegradable", "Yes")
		} else {
			add("Biodegradable", "No")
		}
	}
	if f.EnvironmentalImpactScore != nil {
		add("Environmental Impact Score", strconv.Itoa(*f.EnvironmentalImpactScore)+"/10")
	}
	add("Sustainability Notes", fiber.Ellipsize(f.SustainabilityNotes, 200))

	if m.Similarity < 1.0 {
		add("Relevance Score", strconv.FormatFloat(m.Similarity, 'f', 2, 64))
	}
	return strings.Join(lines, "\n")
}
