package chat

import (
	"strings"

	"github.com/docuquery/docuquery/internal/domain"
)

// systemPrompt instructs the model to answer only from the retrieved sources
// and to cite them by name in square brackets.
const systemPrompt = `You are an assistant answering questions using only the sources below.
Answer ONLY with the facts listed in the sources. If there is not enough information in the sources, say you don't know. If asking a clarifying question to the user would help, ask it.
Each source has a name followed by a colon and the actual information. Always include the source name for each fact you use, referenced in square brackets, e.g. [info1.txt]. Do not combine sources; list each one separately, e.g. [info1.txt][info2.pdf].

Sources:
`

// renderSystem builds the grounded system prompt from retrieved chunks.
func renderSystem(hits []domain.SearchHit) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	if len(hits) == 0 {
		b.WriteString("(no sources found)\n")
		return b.String()
	}
	for _, h := range hits {
		b.WriteString(h.Chunk.Source)
		b.WriteString(": ")
		b.WriteString(strings.ReplaceAll(h.Chunk.Text, "\n", " "))
		b.WriteString("\n")
	}
	return b.String()
}
