package intake

import "strings"

var streetSuffixes = map[string]string{
	"st": "Street", "ave": "Avenue", "rd": "Road", "blvd": "Boulevard",
	"dr": "Drive", "ln": "Lane", "ct": "Court", "pl": "Place",
	"cres": "Crescent", "tce": "Terrace", "hwy": "Highway", "pde": "Parade",
	"cl": "Close", "cir": "Circle", "way": "Way",
}

// EnrichAddress expands street suffix abbreviations, title-cases the rest and
// separates the street from the suburb with a comma:
// "45 wyndham st alexandria" -> "45 Wyndham Street, Alexandria".
func EnrichAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	words := strings.Fields(raw)
	enriched := make([]string, 0, len(words))
	for _, w := range words {
		key := strings.ToLower(strings.Trim(w, ".,"))
		if suffix, ok := streetSuffixes[key]; ok {
			enriched = append(enriched, suffix+",")
			continue
		}
		enriched = append(enriched, TitleCase(w))
	}
	return strings.TrimRight(strings.Join(enriched, " "), ", ")
}
