package narrate

import "unicode"

// Callbacks bundles the lifecycle notifications a Coordinator emits for
// its sessions. Nil callbacks are skipped. Boundary offsets are byte
// offsets into the original, unsegmented text; the word index is
// derived from the same offset for highlight rendering.
//
// Events for one session are delivered sequentially and never
// interleave with events of a later session after OnEnd.
type Callbacks struct {
	OnStart    func(token uint64)
	OnBoundary func(charIndex, wordIndex int)
	OnPause    func()
	OnResume   func()
	OnEnd      func(token uint64)
	OnError    func(err error)
}

// WordSpan marks one word within a text as a half-open byte range.
type WordSpan struct {
	Start int
	End   int
}

// WordSpans returns the spans of all whitespace-delimited words in
// text, in order.
func WordSpans(text string) []WordSpan {
	var spans []WordSpan
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, WordSpan{Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, WordSpan{Start: start, End: len(text)})
	}
	return spans
}

// WordIndexAt returns the zero-based index of the word containing the
// byte offset in text. An offset inside inter-word whitespace belongs
// to the following word, matching how engines report boundaries at
// word starts. Offsets past the last word map to the last word.
func WordIndexAt(text string, offset int) int {
	spans := WordSpans(text)
	if len(spans) == 0 {
		return 0
	}
	for i, s := range spans {
		if offset < s.End {
			return i
		}
	}
	return len(spans) - 1
}
