package llm

import "strings"

// DefaultChunkSize is the largest slice of paper text sent in a single
// summarization request.
const DefaultChunkSize = 6000

// SplitText breaks text into chunks of at most maxLen characters,
// preferring paragraph boundaries ("\n\n"). A single paragraph longer
// than maxLen is split mid-paragraph rather than overflowing the limit.
func SplitText(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultChunkSize
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		if paragraph == "" {
			continue
		}

		// Oversized paragraphs get hard-split.
		for len(paragraph) > maxLen {
			flush()
			chunks = append(chunks, strings.TrimSpace(paragraph[:maxLen]))
			paragraph = paragraph[maxLen:]
		}
		if strings.TrimSpace(paragraph) == "" {
			continue
		}

		need := len(paragraph)
		if current.Len() > 0 {
			need += 2
		}
		if current.Len()+need > maxLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	flush()

	return chunks
}
