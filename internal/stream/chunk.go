// Package stream turns answers into ordered client events and tracks
// per-connection session state.
package stream

import "unicode"

// SplitWords splits text into word chunks. Each chunk keeps the whitespace
// that follows its word, and leading whitespace goes into the first chunk,
// so joining the chunks always reproduces text exactly.
func SplitWords(text string) []string {
	var chunks []string
	start := 0
	seenWord := false
	inSpace := false

	for i, r := range text {
		if unicode.IsSpace(r) {
			if seenWord {
				inSpace = true
			}
			continue
		}
		if inSpace {
			chunks = append(chunks, text[start:i])
			start = i
			inSpace = false
		}
		seenWord = true
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}
