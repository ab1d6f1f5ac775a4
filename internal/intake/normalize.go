package intake

import (
	"strings"
	"unicode"
)

// Category is the trade a piece of work belongs to.
type Category string

const (
	CategoryPlumbing   Category = "Plumbing"
	CategoryElectrical Category = "Electrical"
	CategoryHVAC       Category = "HVAC"
	CategoryCarpentry  Category = "Carpentry"
	CategoryRoofing    Category = "Roofing"
	CategoryPainting   Category = "Painting"
	CategoryTiling     Category = "Tiling"
	CategoryGeneral    Category = "General"
)

type categoryKeywords struct {
	Category Category
	Keywords []string
}

// workCategories is checked in order; the first category with a substring hit wins.
var workCategories = []categoryKeywords{
	{CategoryPlumbing, []string{"sink", "tap", "toilet", "shower", "pipe", "drain", "water", "leak", "plumb", "faucet", "valve", "sewer", "gutter", "downpipe", "blocked", "unblock", "clogged", "burst", "dripping", "seeping", "trickling", "overflow", "gurgling"}},
	{CategoryElectrical, []string{"fan", "light", "switch", "outlet", "power", "wire", "fuse", "breaker", "socket", "plug", "cable", "panel", "meter", "tripped", "sparking", "flickering", "buzzing", "outage", "blackout", "electric"}},
	{CategoryHVAC, []string{"aircon", "air con", "heating", "cooling", "ventilation", "duct", "refrigerant", "split system", "thermostat", "humid", "stuffy", "drafty", "freezing", "hvac"}},
	{CategoryCarpentry, []string{"door", "window", "frame", "cabinet", "shelf", "timber", "wood", "warped", "jammed", "stuck", "cracked", "split"}},
	{CategoryRoofing, []string{"roof", "gutter", "flashing", "leak", "sagging", "colorbond"}},
	{CategoryPainting, []string{"paint", "stain", "peeling", "chipped", "coat", "primer"}},
	{CategoryTiling, []string{"tile", "grout", "mosaic", "splashback"}},
}

var verbNouns = map[string]string{
	"fixed": "repair", "fix": "repair", "fixing": "repair", "repaired": "repair", "repair": "repair", "repairing": "repair",
	"blocked": "unblock", "unblock": "unblock", "unblocked": "unblock",
	"install": "install", "installed": "install", "installing": "install",
	"replace": "replacement", "replaced": "replacement", "replacing": "replacement",
	"clean": "clean", "cleaned": "clean", "cleaning": "clean",
}

var titleFillers = map[string]bool{
	"her": true, "his": true, "their": true, "the": true, "my": true, "our": true,
	"a": true, "an": true, "its": true, "your": true, "to": true,
}

var needWords = map[string]bool{
	"need": true, "needs": true, "want": true, "wants": true, "require": true, "requires": true,
	"get": true, "got": true, "has": true, "have": true,
}

// TitleCase upper-cases the first letter of every word and leaves the rest alone.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevWord := false
	for _, r := range s {
		if !prevWord && unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(r)
		}
		prevWord = unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
	}
	return b.String()
}

// NormalizeJobTitle turns a raw work description into a short job title,
// e.g. "her sink fixed" -> "Sink Repair". Empty input yields "Job".
func NormalizeJobTitle(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if len(s) < 2 {
		return "Job"
	}

	words := strings.Fields(s)
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?")
		if w == "" || titleFillers[w] || needWords[w] {
			continue
		}
		if noun, ok := verbNouns[w]; ok {
			w = noun
		}
		out = append(out, w)
	}
	if len(out) == 0 {
		return "Job"
	}
	return TitleCase(strings.Join(out, " "))
}

// CategoriseWork maps a description to a trade by keyword.
func CategoriseWork(desc string) Category {
	lower := strings.ToLower(desc)
	for _, c := range workCategories {
		for _, kw := range c.Keywords {
			if strings.Contains(lower, kw) {
				return c.Category
			}
		}
	}
	return CategoryGeneral
}

// CategoryKeywords returns every keyword of every category, in table order.
// The duplicate-job heuristic uses it to look for topical overlap.
func CategoryKeywords() []string {
	var all []string
	for _, c := range workCategories {
		all = append(all, c.Keywords...)
	}
	return all
}
