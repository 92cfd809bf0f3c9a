package domain

import "fmt"

// Chunk is a bounded slice of source text, the unit of embedding and retrieval.
// Identity derives from (Source, Index); chunks are immutable once created.
type Chunk struct {
	ID     string
	Text   string
	Source string // original source identifier (filename or URL), not the temp artifact
	Page   int    // page number for paginated formats, 0 otherwise
	Index  int    // position within the source's chunk sequence
}

// NewChunk creates a chunk with its identity derived from (source, index).
func NewChunk(source string, index int, text string, page int) Chunk {
	return Chunk{
		ID:     ChunkID(source, index),
		Text:   text,
		Source: source,
		Page:   page,
		Index:  index,
	}
}

// ChunkID composes the deterministic chunk identifier.
func ChunkID(source string, index int) string {
	return fmt.Sprintf("%s:%d", source, index)
}

// SearchHit is a single similarity search result.
// Score is a similarity in [0,1], higher is closer; adapters convert
// backend-native distance metrics before returning.
type SearchHit struct {
	Chunk Chunk
	Score float64
}
