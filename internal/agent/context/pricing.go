package agentcontext

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/wasilibs/go-re2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/aatumaykin/tradiecrm/internal/crm"
)

var (
	rangePattern  = re2.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:-|to|–)\s*(\d+(?:\.\d+)?)`)
	singlePattern = re2.MustCompile(`(\d+(?:\.\d+)?)`)

	moneyPrinter = message.NewPrinter(language.English)
)

// singlePriceTolerance widens a single glossary price into a range.
const singlePriceTolerance = 0.2

// PriceRange is an inclusive dollar range.
type PriceRange struct {
	Min float64
	Max float64
}

// Overlaps reports whether r and o share at least one value.
func (r PriceRange) Overlaps(o PriceRange) bool {
	return r.Min <= o.Max && r.Max >= o.Min
}

// ParsePriceRange extracts a range from free text such as "$100-200",
// "100 to 200" or "$150". A single value is widened by ±20%.
func ParsePriceRange(desc string) (PriceRange, bool) {
	cleaned := strings.ReplaceAll(desc, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	if m := rangePattern.FindStringSubmatch(cleaned); m != nil {
		lo, err1 := strconv.ParseFloat(m[1], 64)
		hi, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			if lo > hi {
				lo, hi = hi, lo
			}
			return PriceRange{Min: lo, Max: hi}, true
		}
	}
	if m := singlePattern.FindStringSubmatch(cleaned); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return PriceRange{Min: roundCents(v * (1 - singlePriceTolerance)), Max: roundCents(v * (1 + singlePriceTolerance))}, true
		}
	}
	return PriceRange{}, false
}

// HistoricalPrice summarises the invoice totals of one job title.
type HistoricalPrice struct {
	Title string
	Min   float64
	Max   float64
	Avg   float64
	Count int
}

// Range returns the observed min/max as a PriceRange.
func (h HistoricalPrice) Range() PriceRange {
	return PriceRange{Min: h.Min, Max: h.Max}
}

// PricingReport is the outcome of reconciling glossary prices with invoices.
type PricingReport struct {
	Historical []HistoricalPrice
	Conflicts  []string
}

// ReconcilePricing groups positive invoice totals by lowercased title and,
// for titles with at least two invoices, compares the observed range with
// the glossary range of the same title. Output is sorted by title.
func ReconcilePricing(glossary []crm.RepairItem, completed []crm.CompletedDeal) PricingReport {
	totals := make(map[string][]float64)
	for _, d := range completed {
		if d.InvoiceTotal <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(d.Title))
		totals[key] = append(totals[key], d.InvoiceTotal)
	}

	ranges := make(map[string]PriceRange, len(glossary))
	for _, item := range glossary {
		if item.Description == "" {
			continue
		}
		if r, ok := ParsePriceRange(item.Description); ok {
			ranges[strings.ToLower(strings.TrimSpace(item.Title))] = r
		}
	}

	titles := make([]string, 0, len(totals))
	for title, prices := range totals {
		if len(prices) >= 2 {
			titles = append(titles, title)
		}
	}
	sort.Strings(titles)

	var report PricingReport
	for _, title := range titles {
		prices := totals[title]
		h := HistoricalPrice{Title: title, Min: prices[0], Max: prices[0], Count: len(prices)}
		sum := 0.0
		for _, p := range prices {
			h.Min = math.Min(h.Min, p)
			h.Max = math.Max(h.Max, p)
			sum += p
		}
		h.Avg = math.Round(sum / float64(len(prices)))
		report.Historical = append(report.Historical, h)

		g, ok := ranges[title]
		if ok && !g.Overlaps(h.Range()) {
			report.Conflicts = append(report.Conflicts, fmt.Sprintf(
				"%q: glossary says %s–%s but historical invoices show %s–%s. "+
					"POSSIBLE MISINFORMATION — ask the tradie to confirm the correct price before quoting.",
				title, formatMoney(g.Min), formatMoney(g.Max), formatMoney(h.Min), formatMoney(h.Max)))
		}
	}
	return report
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// formatMoney renders whole dollars without cents and anything else with
// two decimals, both with thousands separators.
func formatMoney(v float64) string {
	if v == math.Trunc(v) {
		return moneyPrinter.Sprintf("$%d", int64(v))
	}
	return moneyPrinter.Sprintf("$%.2f", v)
}
