package fiber

import (
	"fmt"
	"strconv"
	"strings"
)

// Minimum text lengths below which a facet is not worth embedding.
var minTextLength = map[ContentType]int{
	ContentBasicInfo:    20,
	ContentProperties:   30,
	ContentApplications: 30,
	ContentComposition:  30,
	ContentComplete:     50,
}

// Text is the source text of one embedding facet.
type Text struct {
	ContentType ContentType
	Text        string
}

// EmbeddingTexts returns the facets of rec long enough to embed, in generation order.
func EmbeddingTexts(rec *Record) []Text {
	candidates := []Text{
		{ContentBasicInfo, BasicText(rec)},
		{ContentProperties, PropertiesText(rec)},
		{ContentApplications, ApplicationsText(rec)},
		{ContentComposition, CompositionText(rec)},
		{ContentComplete, CompleteText(rec)},
	}
	out := candidates[:0]
	for _, c := range candidates {
		if len(c.Text) > minTextLength[c.ContentType] {
			out = append(out, c)
		}
	}
	return out
}

func BasicText(rec *Record) string {
	parts := []string{"Fiber: " + rec.Name}
	if rec.Class != nil {
		parts = append(parts, "Class: "+rec.Class.Name)
	}
	if rec.Subtype != nil {
		parts = append(parts, "Subtype: "+rec.Subtype.Name)
	}
	if rec.SyntheticType != nil {
		parts = append(parts, "Synthetic Type: "+rec.SyntheticType.Name)
	}
	if rec.PolymerizationType != nil {
		parts = append(parts, "Polymerization: "+rec.PolymerizationType.Name)
	}
	if len(rec.Sources) > 0 {
		parts = append(parts, "Sources: "+strings.Join(rec.Sources, ", "))
	}
	if len(rec.TradeNames) > 0 {
		parts = append(parts, "Trade Names: "+strings.Join(First(rec.TradeNames, 5), ", "))
	}
	return strings.Join(parts, ". ")
}

func PropertiesText(rec *Record) string {
	parts := []string{rec.Name + " Properties:"}

	var physical []string
	if v, ok := Num(rec.Density); ok {
		physical = append(physical, "density "+v+" g/cm³")
	}
	if v, ok := Num(rec.MoistureRegain); ok {
		physical = append(physical, "moisture regain "+v+"%")
	}
	if v, ok := Num(rec.AbsorptionCapacity); ok {
		physical = append(physical, "absorption capacity "+v+"%")
	}
	if v, ok := Range(rec.TenacityMin, rec.TenacityMax); ok {
		physical = append(physical, "tenacity "+v+" cN/tex")
	}
	if v, ok := Range(rec.ElongationMin, rec.ElongationMax); ok {
		physical = append(physical, "elongation "+v+"%")
	}
	if v, ok := Range(rec.FinenessMin, rec.FinenessMax); ok {
		physical = append(physical, "fineness "+v+" μm")
	}
	if len(physical) > 0 {
		parts = append(parts, "Physical: "+strings.Join(physical, ", "))
	}

	var chemical []string
	if rec.AcidResistance != "" {
		chemical = append(chemical, "acid resistance: "+rec.AcidResistance)
	}
	if rec.AlkaliResistance != "" {
		chemical = append(chemical, "alkali resistance: "+rec.AlkaliResistance)
	}
	if rec.MicrobialResistance != "" {
		chemical = append(chemical, "microbial resistance: "+rec.MicrobialResistance)
	}
	if len(chemical) > 0 {
		parts = append(parts, "Chemical: "+strings.Join(chemical, ", "))
	}

	var thermal []string
	if v, ok := Num(rec.MeltingPoint); ok {
		thermal = append(thermal, "melting point "+v+"°C")
	}
	if v, ok := Num(rec.GlassTransitionTemp); ok {
		thermal = append(thermal, "glass transition "+v+"°C")
	}
	if v, ok := Num(rec.DecompositionTemp); ok {
		thermal = append(thermal, "decomposition "+v+"°C")
	}
	if rec.ThermalProperties != "" {
		thermal = append(thermal, rec.ThermalProperties)
	}
	if len(thermal) > 0 {
		parts = append(parts, "Thermal: "+strings.Join(thermal, ", "))
	}

	if rec.Biodegradable != nil {
		if *rec.Biodegradable {
			parts = append(parts, "Sustainability: biodegradable")
		} else {
			parts = append(parts, "Sustainability: non-biodegradable")
		}
	}
	if rec.SustainabilityNotes != "" {
		parts = append(parts, "Environmental: "+Clip(rec.SustainabilityNotes, 200))
	}
	return strings.Join(parts, ". ")
}

func ApplicationsText(rec *Record) string {
	parts := []string{rec.Name + " Applications and Uses:"}
	parts = appendList(parts, "Used for: ", rec.Applications)
	parts = appendList(parts, "Manufacturing: ", rec.ManufacturingProcess)
	parts = appendList(parts, "Spinning: ", rec.SpinningMethod)
	parts = appendList(parts, "Treatments: ", rec.PostTreatments)
	parts = appendList(parts, "Dye Affinity: ", rec.DyeAffinity)
	return strings.Join(parts, ". ")
}

func CompositionText(rec *Record) string {
	parts := []string{rec.Name + " Composition:"}
	if rec.PolymerComposition != "" {
		parts = append(parts, "Polymer: "+rec.PolymerComposition)
	}
	if rec.RepeatingUnit != "" {
		parts = append(parts, "Repeating Unit: "+rec.RepeatingUnit)
	}
	if rec.DegreeOfPolymerization != "" {
		parts = append(parts, "Degree of Polymerization: "+rec.DegreeOfPolymerization)
	}
	parts = appendList(parts, "Functional Groups: ", rec.FunctionalGroups)
	if rec.MolecularStructureSMILES != "" {
		parts = append(parts, "Structure: "+rec.MolecularStructureSMILES)
	}
	return strings.Join(parts, ". ")
}

// CompleteText joins every facet that carries content beyond its header.
func CompleteText(rec *Record) string {
	sections := []string{BasicText(rec)}
	for _, s := range []string{PropertiesText(rec), ApplicationsText(rec), CompositionText(rec)} {
		if strings.Contains(s, ". ") {
			sections = append(sections, s)
		}
	}
	if rec.IdentificationMethods != "" {
		sections = append(sections, "Identification: "+Clip(rec.IdentificationMethods, 200))
	}
	return strings.Join(sections, " | ")
}

func appendList(parts []string, label string, values []string) []string {
	if len(values) == 0 {
		return parts
	}
	return append(parts, label+strings.Join(values, ", "))
}

// Num formats a recorded, non-zero number.
func Num(v *float64) (string, bool) {
	if v == nil || *v == 0 {
		return "", false
	}
	return strconv.FormatFloat(*v, 'f', -1, 64), true
}

// Range formats "min-max" when both ends are recorded.
func Range(lo, hi *float64) (string, bool) {
	l, ok := Num(lo)
	if !ok {
		return "", false
	}
	h, ok := Num(hi)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s-%s", l, h), true
}

// First returns at most n leading values.
func First(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

// Clip cuts s to n runes without a marker.
func Clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Ellipsize cuts s to n runes and marks the cut with "...".
func Ellipsize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
