package memory

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	blockStart = "\n\n[[RELEVANT MEMORY CONTEXT]]\n"
	blockEnd   = "\n[[END MEMORY CONTEXT]]"
)

// RenderBlock formats search results as the memory section of the system
// prompt. Empty facts are skipped; no facts yields the "no context" block.
func RenderBlock(items []Item) string {
	facts := make([]string, 0, len(items))
	for _, it := range items {
		if f := strings.TrimSpace(it.Memory); f != "" {
			facts = append(facts, "- "+f)
		}
	}
	if len(facts) == 0 {
		return blockStart + "No previous context found for this query." + blockEnd
	}
	return blockStart +
		"The following facts are retrieved from previous conversations with this user:\n" +
		strings.Join(facts, "\n") +
		blockEnd +
		"\n\nUse these facts to personalize your response."
}

// NormalizeQuery canonicalises a query for use as a cache key: NFC,
// lowercase, whitespace collapsed to single spaces.
func NormalizeQuery(q string) string {
	q = norm.NFC.String(q)
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
