package session

import (
	"strings"
	"unicode"
)

// Reply classifies a user turn sent while a draft is pending.
type Reply int

const (
	ReplyOther Reply = iota
	ReplyConfirm
	ReplyCancel
)

func (r Reply) String() string {
	switch r {
	case ReplyConfirm:
		return "confirm"
	case ReplyCancel:
		return "cancel"
	default:
		return "other"
	}
}

// maxReplyWords bounds what still counts as a short answer to a draft.
const maxReplyWords = 6

var confirmWords = map[string]bool{
	"yes": true, "y": true, "yep": true, "yeah": true, "yup": true, "ok": true, "okay": true,
	"confirm": true, "confirmed": true, "sure": true, "correct": true, "go": true,
	"perfect": true, "great": true,
}

var confirmPhrases = map[string]bool{
	"go ahead": true, "do it": true, "book it": true, "create it": true,
	"looks good": true, "sounds good": true, "all good": true,
	"that's right": true, "thats right": true, "yes please": true,
}

// replyFillers may sit next to a confirmation without changing its meaning.
var replyFillers = map[string]bool{
	"please": true, "thanks": true, "thank": true, "you": true, "thx": true, "ta": true,
	"cheers": true, "mate": true, "it": true, "that": true, "in": true,
}

var cancelWords = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true, "cancel": true, "cancelled": true,
	"stop": true, "don't": true, "dont": true, "abort": true, "not": true, "nevermind": true,
	"wait": true,
}

var cancelPhrases = map[string]bool{
	"scrap it": true, "forget it": true, "never mind": true, "hold off": true, "hold on": true,
}

// ClassifyReply recognises short confirmations and refusals. A refusal wins
// over a confirmation anywhere in a short reply; a longer message counts
// as a refusal only when it opens with one. Everything else is ReplyOther
// and leaves the gate unconfirmed.
func ClassifyReply(text string) Reply {
	words := replyWords(text)
	if len(words) == 0 {
		return ReplyOther
	}

	if len(words) > maxReplyWords {
		if cancelWords[words[0]] || (len(words) > 1 && cancelPhrases[words[0]+" "+words[1]]) {
			return ReplyCancel
		}
		return ReplyOther
	}

	for i, w := range words {
		if cancelWords[w] || (i+1 < len(words) && cancelPhrases[w+" "+words[i+1]]) {
			return ReplyCancel
		}
	}

	confirmed := false
	for i := 0; i < len(words); i++ {
		w := words[i]
		switch {
		case i+1 < len(words) && confirmPhrases[w+" "+words[i+1]]:
			confirmed = true
			i++
		case confirmWords[w]:
			confirmed = true
		case replyFillers[w]:
		default:
			return ReplyOther
		}
	}
	if confirmed {
		return ReplyConfirm
	}
	return ReplyOther
}

// replyWords lowercases text and splits it into words with surrounding
// punctuation removed. Apostrophes inside words are kept.
func replyWords(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), "\u2019", "'")
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'')
	})
	words := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			words = append(words, f)
		}
	}
	return words
}
