package render

import "strings"

// DefaultMessageLimit stays under Telegram's 4096-character sendMessage cap
// with headroom for entity expansion.
const DefaultMessageLimit = 3900

// Chunks splits text into pieces of at most limit characters. Blank-line
// separated paragraphs are kept together whenever they fit; only a
// paragraph that alone exceeds the limit is hard-cut. Limits are counted in
// runes and hard cuts land on rune boundaries, since Telegram counts
// characters rather than bytes. Concatenating the result (re-inserting the
// paragraph separators) reproduces the input.
func Chunks(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	var out []string
	var current []string
	currentLen := 0
	flush := func() {
		if len(current) == 0 {
			return
		}
		out = append(out, strings.Join(current, "\n\n"))
		current = nil
		currentLen = 0
	}

	for _, para := range strings.Split(text, "\n\n") {
		runes := []rune(para)
		if len(runes) > limit {
			flush()
			for start := 0; start < len(runes); start += limit {
				end := start + limit
				if end > len(runes) {
					end = len(runes)
				}
				out = append(out, string(runes[start:end]))
			}
			continue
		}

		sep := 0
		if len(current) > 0 {
			sep = 2 // the "\n\n" joining this paragraph to the chunk
		}
		if currentLen+sep+len(runes) <= limit {
			current = append(current, para)
			currentLen += sep + len(runes)
			continue
		}
		flush()
		current = append(current, para)
		currentLen = len(runes)
	}
	flush()
	return out
}
