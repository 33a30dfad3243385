// Package segment splits narration text into bounded-length chunks.
//
// Narration engines tend to fail silently or time out on long inputs,
// so text is cut proactively: at sentence boundaries where possible,
// falling back to clause and space boundaries for oversize sentences.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxRunes is the segment length cap used when none is
// configured. Comfortably below the point where common engines start
// misbehaving.
const DefaultMaxRunes = 280

// A Segment is one bounded chunk of the original text. Text is always
// a verbatim slice of the original; Start and End are byte offsets of
// that slice, so engine-reported offsets within a segment map back to
// the original as Start+offset. Segments partition the original text
// exactly: the gaps between consecutive segments contain only
// whitespace.
type Segment struct {
	Index int
	Text  string
	Start int
	End   int
}

type span struct {
	start, end int // byte offsets, half-open
}

// Split divides text into non-empty segments of at most maxRunes runes
// each, preserving reading order. Sentences are kept together while
// they fit; a sentence longer than maxRunes is cut at clause
// punctuation, then at spaces, then mid-word as a last resort. A
// maxRunes below 1 selects DefaultMaxRunes. Whitespace-only input
// yields no segments.
func Split(text string, maxRunes int) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxRunes < 1 {
		maxRunes = DefaultMaxRunes
	}

	sentences := sentenceSpans(text)

	// Pack consecutive sentences while the combined trimmed length
	// stays within the cap.
	var packed []span
	cur := sentences[0]
	for _, s := range sentences[1:] {
		merged := span{cur.start, s.end}
		if trimmedRuneLen(text, merged) <= maxRunes {
			cur = merged
			continue
		}
		packed = append(packed, cur)
		cur = s
	}
	packed = append(packed, cur)

	var out []Segment
	for _, sp := range packed {
		for _, piece := range bound(text, sp, maxRunes) {
			out = append(out, Segment{
				Index: len(out),
				Text:  text[piece.start:piece.end],
				Start: piece.start,
				End:   piece.end,
			})
		}
	}
	return out
}

// bound trims sp and, when it still exceeds maxRunes, cuts it into
// pieces at clause or space boundaries. Every returned piece is
// trimmed, non-empty, and within the cap.
func bound(text string, sp span, maxRunes int) []span {
	var out []span
	for {
		sp = trim(text, sp)
		if sp.start >= sp.end {
			return out
		}
		if utf8.RuneCountInString(text[sp.start:sp.end]) <= maxRunes {
			return append(out, sp)
		}
		cut := cutPoint(text, sp, maxRunes)
		out = append(out, trim(text, span{sp.start, cut}))
		sp = span{cut, sp.end}
	}
}

// cutPoint finds the byte offset to cut sp so that the left piece holds
// at most maxRunes runes: after the last clause punctuation if one
// falls inside the window, else at the last space, else exactly at the
// rune limit.
func cutPoint(text string, sp span, maxRunes int) int {
	count := 0
	lastClause, lastSpace := -1, -1
	i := sp.start
	var prev rune
	for i < sp.end && count < maxRunes {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			lastSpace = i
			if isClause(prev) {
				lastClause = i
			}
		}
		prev = r
		i += size
		count++
	}
	if lastClause > sp.start {
		return lastClause
	}
	if lastSpace > sp.start {
		return lastSpace
	}
	return i
}

func isClause(r rune) bool {
	switch r {
	case ',', ';', ':', '—', '–':
		return true
	}
	return false
}

// sentenceSpans partitions text into sentence spans. Trailing
// whitespace after a boundary is attached to the preceding span, so
// the spans cover the text with no gaps.
func sentenceSpans(text string) []span {
	runes := []rune(text)
	byteAt := make([]int, len(runes)+1)
	b := 0
	for i, r := range runes {
		byteAt[i] = b
		b += utf8.RuneLen(r)
	}
	byteAt[len(runes)] = len(text)

	var spans []span
	lastStart := 0
	i := 0
	for i < len(runes) {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && isSentenceEnd(runes, i) {
			end := i + 1
			for end < len(runes) && isClosing(runes[end]) {
				end++
			}
			for end < len(runes) && unicode.IsSpace(runes[end]) {
				end++
			}
			spans = append(spans, span{byteAt[lastStart], byteAt[end]})
			lastStart = end
			i = end
			continue
		}
		i++
	}
	if lastStart < len(runes) {
		spans = append(spans, span{byteAt[lastStart], len(text)})
	}
	if len(spans) == 0 {
		spans = append(spans, span{0, len(text)})
	}
	return spans
}

// isSentenceEnd decides whether the punctuation at pos terminates a
// sentence, guarding against abbreviations, decimal numbers, and
// ellipses.
func isSentenceEnd(runes []rune, pos int) bool {
	punct := runes[pos]

	if punct == '.' {
		// Word immediately before the period, period included.
		start := pos - 1
		for start >= 0 && !unicode.IsSpace(runes[start]) {
			start--
		}
		word := strings.ToLower(string(runes[start+1 : pos+1]))
		bare := strings.TrimSuffix(word, ".")
		if abbreviations[bare] || abbreviations[word] {
			return false
		}
		// Multi-part abbreviations like "U.S." or "Ph.D."
		if strings.Count(word, ".") > 1 {
			return false
		}
		// Decimal numbers: 3.14
		if pos > 0 && pos+1 < len(runes) &&
			unicode.IsDigit(runes[pos-1]) && unicode.IsDigit(runes[pos+1]) {
			return false
		}
		// Ellipsis
		if pos+2 < len(runes) && runes[pos+1] == '.' && runes[pos+2] == '.' {
			return false
		}
	}

	next := pos + 1
	for next < len(runes) && isClosing(runes[next]) {
		next++
	}
	if next >= len(runes) {
		return true
	}
	if !unicode.IsSpace(runes[next]) {
		return false
	}
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	if next >= len(runes) {
		return true
	}
	if unicode.IsUpper(runes[next]) || unicode.IsDigit(runes[next]) {
		return true
	}
	// Lenient for emphatic punctuation; a period followed by a
	// lowercase letter is most likely an abbreviation we missed.
	return punct == '!' || punct == '?'
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}

func trimmedRuneLen(text string, sp span) int {
	return utf8.RuneCountInString(strings.TrimSpace(text[sp.start:sp.end]))
}

func trim(text string, sp span) span {
	for sp.start < sp.end {
		r, size := utf8.DecodeRuneInString(text[sp.start:sp.end])
		if !unicode.IsSpace(r) {
			break
		}
		sp.start += size
	}
	for sp.end > sp.start {
		r, size := utf8.DecodeLastRuneInString(text[sp.start:sp.end])
		if !unicode.IsSpace(r) {
			break
		}
		sp.end -= size
	}
	return sp
}

var abbreviations = map[string]bool{}

func init() {
	for _, a := range []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st",
		"vs", "etc", "inc", "ltd", "co", "corp", "approx",
		"i.e", "e.g", "cf", "al",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug",
		"sep", "sept", "oct", "nov", "dec",
		"mon", "tue", "wed", "thu", "fri", "sat", "sun",
		"ave", "blvd", "rd", "ln", "ct",
		"ft", "lbs", "oz", "kg", "km", "cm", "mm", "mi",
		"hr", "hrs", "min", "mins", "sec", "secs", "no", "vol", "pg", "pp",
	} {
		abbreviations[a] = true
		if !strings.Contains(a, ".") {
			abbreviations[a+"."] = true
		}
	}
}
