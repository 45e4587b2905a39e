package pdflayout

import "strings"

// Wrap greedily packs the words of text into lines no wider than maxWidth at
// the given font and size. A word wider than maxWidth is hard-broken at rune
// boundaries; its last piece may share a line with the words after it. A line
// only exceeds maxWidth when a single rune does.
func Wrap(text string, font Font, size, maxWidth float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	lines := make([]string, 0, 4)
	line := ""
	for _, word := range words {
		if line != "" {
			if candidate := line + " " + word; Measure(candidate, font, size) <= maxWidth {
				line = candidate
				continue
			}
			lines = append(lines, line)
		}
		pieces := breakWord(word, font, size, maxWidth)
		lines = append(lines, pieces[:len(pieces)-1]...)
		line = pieces[len(pieces)-1]
	}
	return append(lines, line)
}

// breakWord splits word into the fewest leading pieces that each fit
// maxWidth. Every piece holds at least one rune.
func breakWord(word string, font Font, size, maxWidth float64) []string {
	if Measure(word, font, size) <= maxWidth {
		return []string{word}
	}
	var pieces []string
	runes := []rune(word)
	for len(runes) > 0 {
		n := 1
		for n < len(runes) && Measure(string(runes[:n+1]), font, size) <= maxWidth {
			n++
		}
		pieces = append(pieces, string(runes[:n]))
		runes = runes[n:]
	}
	return pieces
}

// WrapParagraphs wraps each newline-separated paragraph, keeping blank
// paragraphs as empty lines.
func WrapParagraphs(text string, font Font, size, maxWidth float64) []string {
	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		lines := Wrap(para, font, size, maxWidth)
		if len(lines) == 0 {
			out = append(out, "")
			continue
		}
		out = append(out, lines...)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// Truncate shortens text with a trailing ellipsis so it fits maxWidth.
func Truncate(text string, font Font, size, maxWidth float64) string {
	if Measure(text, font, size) <= maxWidth {
		return text
	}
	const ellipsis = "…"
	runes := []rune(text)
	for n := len(runes) - 1; n > 0; n-- {
		candidate := strings.TrimRight(string(runes[:n]), " ") + ellipsis
		if Measure(candidate, font, size) <= maxWidth {
			return candidate
		}
	}
	return ""
}
