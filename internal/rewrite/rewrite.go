// Package rewrite polishes visitor review drafts with a fixed set of text rules.
package rewrite

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tone selects the closing adjustments applied to a rewrite.
type Tone string

// Mode selects how much of the rewritten text is kept.
type Mode string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"

	ModeNormal   Mode = "normal"
	ModeShort    Mode = "short"
	ModeDetailed Mode = "detailed"

	friendlyCloser       = " Highly recommend!"
	terminalPeriod       = "."
	shortModeSentenceCap = 2
)

type contraction struct {
	pattern     *regexp.Regexp
	replacement string
}

var (
	sentenceStartPattern = regexp.MustCompile(`(^|[.!?]\s+)([a-z])`)
	standalonePronounI   = regexp.MustCompile(`\bi\b`)
	wereWordPattern      = regexp.MustCompile(`(?i)\bwere\b`)
	itsWordPattern       = regexp.MustCompile(`(?i)\bits\b`)
	whitespaceThenWord   = regexp.MustCompile(`^\s+\w`)
	terminalPunctuation  = regexp.MustCompile(`[.!?]$`)
	enthusiasmKeywords   = regexp.MustCompile(`(?i)recommend|highly|love|amazing|fantastic|wonderful`)
	repeatedExclamations = regexp.MustCompile(`!{2,}`)
	repeatedPeriods      = regexp.MustCompile(`\.{2,}`)
	sentencePattern      = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

var (
	contractionsBeforeWere = buildContractions(
		"dont", "don't",
		"cant", "can't",
		"wont", "won't",
		"wouldnt", "wouldn't",
		"couldnt", "couldn't",
		"shouldnt", "shouldn't",
		"didnt", "didn't",
		"isnt", "isn't",
		"arent", "aren't",
		"wasnt", "wasn't",
		"werent", "weren't",
		"hasnt", "hasn't",
		"havent", "haven't",
		"thats", "that's",
		"theyre", "they're",
	)
	contractionsAfterWere = buildContractions(
		"youre", "you're",
	)
)

func buildContractions(pairs ...string) []contraction {
	table := make([]contraction, 0, len(pairs)/2)
	for index := 0; index+1 < len(pairs); index += 2 {
		table = append(table, contraction{
			pattern:     regexp.MustCompile(`(?i)\b` + pairs[index] + `\b`),
			replacement: pairs[index+1],
		})
	}
	return table
}

// ParseTone maps request input to a Tone. Anything other than the exact string friendly is professional.
func ParseTone(raw string) Tone {
	if Tone(raw) == ToneFriendly {
		return ToneFriendly
	}
	return ToneProfessional
}

// ParseMode maps request input to a Mode by exact match, defaulting to normal.
func ParseMode(raw string) Mode {
	switch candidate := Mode(raw); candidate {
	case ModeShort, ModeDetailed:
		return candidate
	default:
		return ModeNormal
	}
}

// Rewrite expects non-empty, trimmed text; callers reject blank input before calling it.
func Rewrite(text string, tone Tone, mode Mode) string {
	result := capitalizeSentenceStarts(text)
	result = standalonePronounI.ReplaceAllLiteralString(result, "I")
	for _, entry := range contractionsBeforeWere {
		result = entry.pattern.ReplaceAllLiteralString(result, entry.replacement)
	}
	result = replaceWordWhen(result, wereWordPattern, "we're", func(remainder string) bool {
		nextRune, _ := utf8.DecodeRuneInString(remainder)
		return remainder == "" || !unicode.IsSpace(nextRune)
	})
	for _, entry := range contractionsAfterWere {
		result = entry.pattern.ReplaceAllLiteralString(result, entry.replacement)
	}
	result = replaceWordWhen(result, itsWordPattern, "it's", whitespaceThenWord.MatchString)
	result = strings.TrimRightFunc(result, unicode.IsSpace)

	if !terminalPunctuation.MatchString(result) {
		result += terminalPeriod
	}

	result = capitalizeFirst(result)

	if tone == ToneFriendly {
		if !enthusiasmKeywords.MatchString(result) {
			result += friendlyCloser
		}
	} else {
		result = repeatedExclamations.ReplaceAllLiteralString(result, "!")
		result = repeatedPeriods.ReplaceAllLiteralString(result, ".")
	}

	if mode == ModeShort {
		result = firstSentences(result, shortModeSentenceCap)
	}

	return result
}

func capitalizeSentenceStarts(text string) string {
	return sentenceStartPattern.ReplaceAllStringFunc(text, func(match string) string {
		lastIndex := len(match) - 1
		return match[:lastIndex] + strings.ToUpper(match[lastIndex:])
	})
}

// replaceWordWhen substitutes matches of pattern whose following text satisfies accept.
func replaceWordWhen(text string, pattern *regexp.Regexp, replacement string, accept func(remainder string) bool) string {
	locations := pattern.FindAllStringIndex(text, -1)
	if len(locations) == 0 {
		return text
	}
	var builder strings.Builder
	previousEnd := 0
	for _, location := range locations {
		if !accept(text[location[1]:]) {
			continue
		}
		builder.WriteString(text[previousEnd:location[0]])
		builder.WriteString(replacement)
		previousEnd = location[1]
	}
	builder.WriteString(text[previousEnd:])
	return builder.String()
}

func capitalizeFirst(text string) string {
	firstRune, size := utf8.DecodeRuneInString(text)
	if size == 0 {
		return text
	}
	return string(unicode.ToUpper(firstRune)) + text[size:]
}

func firstSentences(text string, limit int) string {
	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	if len(sentences) > limit {
		sentences = sentences[:limit]
	}
	// Matches keep their leading whitespace, so joined sentences carry the input spacing plus one.
	return strings.TrimSpace(strings.Join(sentences, " "))
}
