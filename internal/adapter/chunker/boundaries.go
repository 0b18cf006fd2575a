package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	normalizer = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\t", " ")

	// A blank line, possibly holding only spaces, separates paragraphs.
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)

	// Headings, list items and blockquotes start a new block.
	blockMarker = regexp.MustCompile(`^\s*(#{1,6}\s|[-*+]\s|\d+[.)]\s|>)`)

	sentenceEnd = regexp.MustCompile(`[.!?]\s+`)
)

func normalize(text string) string {
	return normalizer.Replace(text)
}

// paragraphs returns the trimmed, non-empty paragraphs of normalized text.
func paragraphs(text string) []string {
	return nonEmpty(paragraphBreak.Split(text, -1))
}

// blocks splits a paragraph before every line that opens a structural block.
func blocks(para string) []string {
	var (
		out     []string
		current []string
	)
	flush := func() {
		if b := strings.TrimSpace(strings.Join(current, "\n")); b != "" {
			out = append(out, b)
		}
		current = current[:0]
	}
	for _, line := range strings.Split(para, "\n") {
		if len(current) > 0 && blockMarker.MatchString(line) {
			flush()
		}
		current = append(current, line)
	}
	flush()
	return out
}

// sentences splits text after terminal punctuation that is followed by whitespace.
func sentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		// loc[0] is the punctuation byte; keep it with its sentence.
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// hardSlice cuts text into consecutive pieces of size characters; the last may
// be shorter. Whitespace at a cut point is dropped instead of starting a piece.
func hardSlice(text string, size int) []string {
	runes := []rune(text)
	pieces := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); {
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
		if start == len(runes) {
			break
		}
		end := min(start+size, len(runes))
		pieces = append(pieces, strings.TrimRightFunc(string(runes[start:end]), unicode.IsSpace))
		start = end
	}
	return pieces
}

// lastChars returns the trailing n characters of s without leading whitespace.
func lastChars(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := len(s)
	for k := 0; k < n && i > 0; k++ {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
