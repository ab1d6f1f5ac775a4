// Package intake turns a single free-text message into a structured job intent
// without a model call. Anything ambiguous is a miss, and the caller falls back
// to the agent.
package intake

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wasilibs/go-re2"
	"golang.org/x/text/unicode/norm"
)

// MinLength is the shortest message the parser will look at.
const MinLength = 15

// Intent is the parsed form of a one-liner. Empty strings mean absent.
type Intent struct {
	ClientName      string
	WorkDescription string
	Price           float64
	Address         string
	Schedule        string
	Phone           string
	Email           string
}

const (
	numberPattern = `(\d[\d,]*(?:\.\d{1,2})?)`
	longDay       = `(?:today|tomorrow|tmrw|ymrw|monday|tuesday|wednesday|thursday|friday|saturday|sunday)`
	shortDay      = `(?:tues|tue|thurs|thur|thu|mon|wed|fri|sat|sun)`
	dayPattern    = `(?:` + longDay + `|` + shortDay + `)`
	timePattern   = `(?:\d{1,2}(?::\d{2})?\s?(?:am|pm)|\d{1,2}:\d{2})`
	verbPattern   = `(?:needs|need|wants|want|requires|require)`
	namePattern   = `([A-Za-z][A-Za-z'\-]*(?:\s+[A-Za-z][A-Za-z'\-]*){0,3}?)`
	addrPattern   = `(\d+[A-Za-z]?(?:/\d+[A-Za-z]?)?\s+[^\n]+?)`
)

var (
	dollarPrice  = re2.MustCompile(`\$\s?` + numberPattern)
	wordPrice    = re2.MustCompile(`(?i)\b` + numberPattern + `\s?(?:dollars?|bucks)\b`)
	keywordPrice = re2.MustCompile(`(?i)\b(?:for|price|priced|agreed|quoted|quote)\s+(?:at\s+|of\s+)?` + numberPattern + `(\s?(?:am|pm)\b|:\d)?`)

	phonePattern = re2.MustCompile(`(?:\+61\s?4\d{2}|\b04\d{2})\s?\d{3}\s?\d{3}\b`)
	emailPattern = re2.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	workIndicator = re2.MustCompile(`(?i)\b(?:fix(?:ed|es|ing)?|repair(?:ed|s|ing)?|install(?:ed|s|ing|ation)?|replac(?:e|ed|es|ing|ement)|unblock(?:ed|ing)?|clean(?:ed|s|ing)?|servic(?:e|ed|es|ing)|sinks?|taps?|toilets?|pipes?|fans?|lights?|doors?|roofs?|aircons?|paint(?:ed|ing|s)?|leak(?:s|ed|ing|y)?)\b`)

	// Group 1 is the schedule phrase; the whole match is removed from the work.
	// Abbreviated days like "sun" or "sat" stand alone only after "on"/"next"
	// or at the end of the message, so "sun room" stays part of the work.
	schedulePatterns = []*re2.Regexp{
		re2.MustCompile(`(?i)\b(` + dayPattern + `\s+(?:at\s+)?` + timePattern + `)\b`),
		re2.MustCompile(`(?i)\b(` + timePattern + `\s+(?:on\s+)?` + dayPattern + `)\b`),
		re2.MustCompile(`(?i)\b(` + longDay + `)\b`),
		re2.MustCompile(`(?i)\b(?:on|next)\s+(` + shortDay + `)\b`),
		re2.MustCompile(`(?i)\b(` + shortDay + `)\.?\s*$`),
		re2.MustCompile(`(?i)\b(` + timePattern + `)\b`),
	}

	// Name/address patterns, highest priority first.
	clientPatterns = []*re2.Regexp{
		re2.MustCompile(`(?i)^\s*` + namePattern + `\s*,\s*` + addrPattern + `\s*,?\s+` + verbPattern + `\b`),
		re2.MustCompile(`(?i)^\s*` + namePattern + `\s+at\s+` + addrPattern + `\s*,?\s+` + verbPattern + `\b`),
		re2.MustCompile(`(?i)^\s*` + namePattern + `\s+from\s+` + addrPattern + `\s*,?\s+` + verbPattern + `\b`),
		re2.MustCompile(`(?i)^\s*` + namePattern + `\s*,?\s+` + verbPattern + `\b`),
	}

	needVerb       = re2.MustCompile(`(?i)\b` + verbPattern + `\b`)
	clauseBreak    = re2.MustCompile(`[,.;!?\n]`)
	locationMarker = re2.MustCompile(`(?i)\s(?:at|from)\s+\d`)
)

var trailingFillers = map[string]bool{
	"for": true, "quoted": true, "quote": true, "agreed": true, "price": true, "priced": true,
	"at": true, "on": true, "by": true, "and": true, "of": true, "please": true,
}

// Parser decomposes one-liners. The zero value is ready to use.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse extracts an Intent from text. ok is false when the text does not look
// like a job one-liner.
func (p *Parser) Parse(text string) (Intent, bool) {
	text = norm.NFC.String(strings.TrimSpace(strings.ToValidUTF8(text, "")))
	if utf8.RuneCountInString(text) < MinLength {
		return Intent{}, false
	}

	hasWork := workIndicator.MatchString(text)
	if !hasWork && !hasPriceToken(text) {
		return Intent{}, false
	}

	var intent Intent
	masked := []byte(text)

	// Price: last "$N" wins.
	if matches := dollarPrice.FindAllStringSubmatchIndex(text, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		intent.Price = parseAmount(text[last[2]:last[3]])
		for _, m := range matches {
			blank(masked, m[0], m[1])
		}
	}

	if m := phonePattern.FindStringIndex(string(masked)); m != nil {
		intent.Phone = strings.Join(strings.Fields(text[m[0]:m[1]]), "")
		blank(masked, m[0], m[1])
	}

	if m := emailPattern.FindStringIndex(string(masked)); m != nil {
		intent.Email = text[m[0]:m[1]]
		blank(masked, m[0], m[1])
	}

	if intent.Price == 0 {
		if start, end, amount, ok := fallbackPrice(string(masked)); ok {
			intent.Price = amount
			blank(masked, start, end)
		}
	}

	schedStart, schedEnd := -1, -1
	for _, re := range schedulePatterns {
		if m := re.FindStringSubmatchIndex(string(masked)); m != nil {
			schedStart, schedEnd = m[0], m[1]
			intent.Schedule = canonicalSchedule(text[m[2]:m[3]])
			break
		}
	}

	rest := ""
	matched := false
	for _, re := range clientPatterns {
		m := re.FindStringSubmatchIndex(string(masked))
		if m == nil {
			continue
		}
		matched = true
		intent.ClientName = strings.TrimSpace(text[m[2]:m[3]])
		if len(m) > 4 && m[4] >= 0 {
			intent.Address = strings.TrimSpace(strings.TrimRight(text[m[4]:m[5]], ", "))
		}
		rest = remainder(masked, m[1], schedStart, schedEnd)
		break
	}

	if !matched {
		if !hasWork {
			return Intent{}, false
		}
		start := 0
		if m := needVerb.FindStringIndex(string(masked)); m != nil {
			start = m[1]
		}
		rest = remainder(masked, start, schedStart, schedEnd)
		if m := locationMarker.FindStringIndex(rest); m != nil {
			rest = rest[:m[0]]
		}
	}

	if len(intent.ClientName) < 2 {
		intent.ClientName = "Unknown"
	}
	intent.WorkDescription = NormalizeJobTitle(workClause(rest))
	return intent, true
}

func hasPriceToken(text string) bool {
	if dollarPrice.MatchString(text) || wordPrice.MatchString(text) {
		return true
	}
	_, _, _, ok := fallbackPrice(text)
	return ok
}

// fallbackPrice finds the last "N dollars" or "for/price/agreed N" amount that
// is not a clock time.
func fallbackPrice(text string) (start, end int, amount float64, ok bool) {
	start = -1
	for _, m := range wordPrice.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > start {
			start, end, amount = m[0], m[1], parseAmount(text[m[2]:m[3]])
		}
	}
	for _, m := range keywordPrice.FindAllStringSubmatchIndex(text, -1) {
		if m[4] >= 0 {
			continue
		}
		if m[0] > start {
			start, end, amount = m[0], m[1], parseAmount(text[m[2]:m[3]])
		}
	}
	if start < 0 || amount <= 0 {
		return 0, 0, 0, false
	}
	return start, end, amount, true
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

func canonicalSchedule(s string) string {
	s = meridiemGap.ReplaceAllString(strings.ToLower(s), "$1$2")
	return strings.Join(strings.Fields(s), " ")
}

// remainder returns masked[from:] with the schedule span blanked out.
func remainder(masked []byte, from, schedStart, schedEnd int) string {
	rest := append([]byte(nil), masked[from:]...)
	if schedStart >= from {
		blank(rest, schedStart-from, schedEnd-from)
	}
	return string(rest)
}

// workClause keeps the first clause of s and drops trailing filler words.
func workClause(s string) string {
	for _, part := range clauseBreak.Split(s, -1) {
		words := strings.Fields(part)
		for len(words) > 0 && trailingFillers[strings.ToLower(words[len(words)-1])] {
			words = words[:len(words)-1]
		}
		if len(words) > 0 {
			return strings.Join(words, " ")
		}
	}
	return ""
}

func blank(b []byte, start, end int) {
	for i := start; i < end && i < len(b); i++ {
		b[i] = ' '
	}
}
