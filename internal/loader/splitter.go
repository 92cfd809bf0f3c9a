package loader

import "fmt"

// Default chunking parameters.
const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 150
)

// Splitter performs a deterministic windowed split: fixed-size chunks with a
// fixed overlap retained between adjacent chunks. Same input always yields the
// same boundaries, so re-indexing is reproducible.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewSplitter validates the chunking parameters. Overlap must be strictly
// less than chunk size. Zero values fall back to the defaults.
func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be less than chunk size %d", chunkOverlap, chunkSize)
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// ChunkSize returns the target chunk length in runes.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap returns the retained context between adjacent chunks in runes.
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }

// Split slices text into overlapping windows. Every chunk except possibly the
// last has exactly chunkSize runes; each chunk after the first starts
// chunkSize-chunkOverlap runes past the previous one.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.chunkSize {
		return []string{text}
	}

	step := s.chunkSize - s.chunkOverlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)

	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}
