// Package intent classifies fiber questions with fixed keyword rules.
package intent

import (
	"context"
	"strings"
)

// Kind is the classification of a query.
type Kind string

const (
	General               Kind = "general"
	PropertyInquiry       Kind = "property_inquiry"
	ManufacturingInquiry  Kind = "manufacturing_inquiry"
	ApplicationInquiry    Kind = "application_inquiry"
	Comparison            Kind = "comparison"
	Identification        Kind = "identification"
	CategoryInquiry       Kind = "category_inquiry"
	StructureImageRequest Kind = "structure_image_request"
)

// Entities are values extracted from the query.
type Entities struct {
	// FiberName is the first recognized fiber name, lowercase, or "".
	FiberName string `json:"fiber_name,omitempty"`
}

// Intent is the outcome of Detect.
type Intent struct {
	Kind           Kind     `json:"type"`
	Entities       Entities `json:"entities"`
	RequiresSearch bool     `json:"requires_search"`
	NeedsImages    bool     `json:"needs_images"`
	SearchTerms    []string `json:"search_terms"`
}

type rule struct {
	kind  Kind
	words []string
}

// rules are evaluated in this order and a later hit overrides an earlier one.
var rules = []rule{
	{PropertyInquiry, []string{"property", "properties", "characteristic", "specifications"}},
	{ManufacturingInquiry, []string{"spinning", "manufacturing", "production", "process", "made", "produce", "treatment", "dyeing", "dye"}},
	{ApplicationInquiry, []string{"use", "used for", "application", "suitable for", "best for", "find", "where"}},
	{Comparison, []string{"compare", "difference between", "vs", "versus", "better than"}},
	{Identification, []string{"identify", "what is", "what are", "define", "explain", "tell me about"}},
	{CategoryInquiry, []string{"natural", "synthetic", "cellulosic", "protein", "mineral", "fiber", "fibers"}},
	{StructureImageRequest, []string{"structure", "image", "diagram", "picture", "visual", "molecular structure", "chemical structure", "show me"}},
}

var listingWords = []string{"all", "list", "example", "examples", "what are", "show", "which"}

// Detector classifies queries against a fiber-name vocabulary.
type Detector struct {
	vocab *Vocabulary
}

// NewDetector constructs a detector. A nil vocabulary uses the built-in fiber names only.
func NewDetector(vocab *Vocabulary) *Detector {
	if vocab == nil {
		vocab = NewVocabulary(nil, nil)
	}
	return &Detector{vocab: vocab}
}

// Detect classifies query. It only fails when the vocabulary cannot be loaded.
func (d *Detector) Detect(ctx context.Context, query string) (Intent, error) {
	names, err := d.vocab.Names(ctx)
	if err != nil {
		return Intent{}, err
	}
	return Classify(query, names), nil
}

// Classify applies the rules to query with an explicit vocabulary.
// Substring matching is deliberate: "fibers" also matches "fiber".
func Classify(query string, vocabulary []string) Intent {
	lower := strings.ToLower(query)
	in := Intent{Kind: General}

	for _, name := range vocabulary {
		if name != "" && strings.Contains(lower, name) {
			in.Entities.FiberName = name
			in.SearchTerms = append(in.SearchTerms, name)
			in.RequiresSearch = true
			break
		}
	}

	for _, r := range rules {
		if !containsAny(lower, r.words) {
			continue
		}
		in.Kind = r.kind
		in.RequiresSearch = true
		if r.kind == StructureImageRequest {
			in.NeedsImages = true
		}
	}

	if len(in.SearchTerms) == 0 {
		in.SearchTerms = []string{query}
	}
	return in
}

// IsListingQuery reports whether text asks for an enumeration rather than a single fact.
func IsListingQuery(text string) bool {
	return containsAny(strings.ToLower(text), listingWords)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
