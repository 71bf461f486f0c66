package garment

import (
	"regexp"
	"sort"
	"strings"
)

// label matches a structured "Label: value" line and captures the rest of
// the line. Leading blanks stay on the label's line so an empty value never
// swallows the next line.
func label(name string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(name) + `:[ \t]*(.*)`)
}

// Order matches Fields.
var structuredLabels = []*regexp.Regexp{
	label("Garment Type"),
	label("Brand"),
	label("Size"),
	label("Color"),
	label("Fabric"),
	label("Additional Characteristics"),
}

// candidates is an ordered list of patterns. The match starting earliest in
// the text wins; on equal start offsets the earlier list entry wins.
type candidates []*regexp.Regexp

// words builds case-insensitive whole-word candidates from literal terms.
func words(terms ...string) candidates {
	c := make(candidates, 0, len(terms))
	for _, t := range terms {
		c = append(c, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(t)+`\b`))
	}
	return c
}

type match struct {
	start, end int
	rank       int
}

func (c candidates) matches(text string) []match {
	var all []match
	for rank, re := range c {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			all = append(all, match{start: loc[0], end: loc[1], rank: rank})
		}
	}
	return all
}

func (m match) before(o match) bool {
	if m.start != o.start {
		return m.start < o.start
	}
	return m.rank < o.rank
}

// first returns the highest-precedence match.
func (c candidates) first(text string) (string, bool) {
	var best *match
	for _, m := range c.matches(text) {
		if best == nil || m.before(*best) {
			m := m
			best = &m
		}
	}
	if best == nil {
		return "", false
	}
	return text[best.start:best.end], true
}

// all returns every non-overlapping match scanning left to right.
// Repeated values are kept.
func (c candidates) all(text string) []string {
	ms := c.matches(text)
	sort.Slice(ms, func(i, j int) bool { return ms[i].before(ms[j]) })

	var out []string
	pos := 0
	for _, m := range ms {
		if m.start < pos {
			continue
		}
		pos = m.end
		out = append(out, text[m.start:m.end])
	}
	return out
}

var (
	garmentTypes = words(
		"zip-up hoodie", "hoodie", "shirt", "t-shirt", "jacket", "pants",
		"shorts", "sweater", "dress", "skirt", "sweatshirt",
	)

	sizePhrase = regexp.MustCompile(`(?i)\bsize \w+\b`)
	sizes      = append(candidates{sizePhrase}, words("L", "M", "S", "XL", "XXL")...)

	// Uppercase-only tokens, so "s" in "it's" is not read as a size.
	strictSizes = candidates{
		sizePhrase,
		regexp.MustCompile(`\bL\b`),
		regexp.MustCompile(`\bM\b`),
		regexp.MustCompile(`\bS\b`),
		regexp.MustCompile(`\bXL\b`),
		regexp.MustCompile(`\bXXL\b`),
	}

	colors = words(
		"gray", "red", "blue", "green", "black", "white",
		"yellow", "brown", "purple", "pink", "orange", "beige",
	)

	characteristics = words(
		"hood", "string", "tag", "embroidered", "kangaroo pocket",
		"label", "text", "lining", "logo", "pocket",
	)

	brandPhrase = regexp.MustCompile(`(?i)brand is ([A-Za-z\s]+)`)
	// Last resort: any quoted span is taken as the brand. Low confidence.
	quotedSpan = regexp.MustCompile(`"([^"]+)"`)
	fabricMix  = regexp.MustCompile(`\d+% \w+`)
)

// Extractor turns free-text garment descriptions into Fields.
type Extractor struct {
	quotedBrand bool
	sizes       candidates
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithoutQuotedBrand disables the quoted-span brand fallback.
func WithoutQuotedBrand() Option {
	return func(e *Extractor) {
		e.quotedBrand = false
	}
}

// WithUppercaseSizeTokens matches the standalone size tokens L, M, S, XL
// and XXL only in uppercase. The "size <token>" phrase stays case-insensitive.
func WithUppercaseSizeTokens() Option {
	return func(e *Extractor) {
		e.sizes = strictSizes
	}
}

// NewExtractor creates an Extractor. The quoted-span brand fallback is on by
// default and size tokens match in any case.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{quotedBrand: true, sizes: sizes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = NewExtractor()

// Extract parses text with the default extractor.
func Extract(text string) Fields {
	f, _ := defaultExtractor.ExtractTier(text)
	return f
}

// Extract parses text into Fields.
func (e *Extractor) Extract(text string) Fields {
	f, _ := e.ExtractTier(text)
	return f
}

// ExtractTier parses text and reports which tier produced the result.
// The structured tier is used only when all six labels are present;
// otherwise every field is recovered heuristically on its own.
func (e *Extractor) ExtractTier(text string) (Fields, Tier) {
	if f, ok := extractStructured(text); ok {
		return f, TierStructured
	}
	return e.extractHeuristic(text), TierHeuristic
}

func extractStructured(text string) (Fields, bool) {
	values := make([]string, len(structuredLabels))
	for i, re := range structuredLabels {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return Fields{}, false
		}
		values[i] = orNotFound(strings.TrimSpace(m[1]))
	}
	return Fields{
		GarmentType:               values[0],
		Brand:                     values[1],
		Size:                      values[2],
		Color:                     values[3],
		Fabric:                    values[4],
		AdditionalCharacteristics: values[5],
	}, true
}

func (e *Extractor) extractHeuristic(text string) Fields {
	f := Fields{
		GarmentType: firstOrNotFound(garmentTypes, text),
		Brand:       e.brand(text),
		Size:        firstOrNotFound(e.sizes, text),
		Color:       firstOrNotFound(colors, text),
		Fabric:      orNotFound(fabricMix.FindString(text)),
	}

	if found := characteristics.all(text); len(found) > 0 {
		f.AdditionalCharacteristics = strings.Join(found, ", ")
	} else {
		f.AdditionalCharacteristics = NotFound
	}

	return f
}

func (e *Extractor) brand(text string) string {
	if m := brandPhrase.FindStringSubmatch(text); m != nil {
		if b := strings.TrimSpace(m[1]); b != "" {
			return b
		}
	}
	if e.quotedBrand {
		if m := quotedSpan.FindStringSubmatch(text); m != nil {
			if b := strings.TrimSpace(m[1]); b != "" {
				return b
			}
		}
	}
	return NotFound
}

func firstOrNotFound(c candidates, text string) string {
	if v, ok := c.first(text); ok {
		return v
	}
	return NotFound
}

func orNotFound(s string) string {
	if s == "" {
		return NotFound
	}
	return s
}
