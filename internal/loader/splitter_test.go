package loader

import (
	"strings"
	"testing"
)

func TestNewSplitter_RejectsOverlapNotBelowSize(t *testing.T) {
	if _, err := NewSplitter(100, 100); err == nil {
		t.Error("expected error for overlap == size")
	}
	if _, err := NewSplitter(100, 150); err == nil {
		t.Error("expected error for overlap > size")
	}
}

func TestNewSplitter_Defaults(t *testing.T) {
	s, err := NewSplitter(0, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ChunkSize() != DefaultChunkSize {
		t.Errorf("expected default chunk size %d, got %d", DefaultChunkSize, s.ChunkSize())
	}
	if s.ChunkOverlap() != DefaultChunkOverlap {
		t.Errorf("expected default overlap %d, got %d", DefaultChunkOverlap, s.ChunkOverlap())
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s, _ := NewSplitter(100, 20)
	chunks := s.Split("short text")
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Fatalf("expected single identical chunk, got %v", chunks)
	}
}

func TestSplit_EmptyText(t *testing.T) {
	s, _ := NewSplitter(100, 20)
	if chunks := s.Split(""); chunks != nil {
		t.Fatalf("expected nil for empty text, got %v", chunks)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	s, _ := NewSplitter(50, 10)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 20)

	first := s.Split(text)
	second := s.Split(text)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplit_OverlapInvariant(t *testing.T) {
	const size, overlap = 50, 10
	s, _ := NewSplitter(size, overlap)
	text := strings.Repeat("abcdefghij", 37) // 370 runes, multiple chunks

	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		tail := string(prev[len(prev)-overlap:])
		n := overlap
		if len(cur) < n {
			n = len(cur)
		}
		head := string(cur[:n])
		if !strings.HasPrefix(tail, head) {
			t.Errorf("chunk %d leading overlap %q does not match previous trailing %q", i, head, tail)
		}
	}
}

func TestSplit_ReassemblesOriginal(t *testing.T) {
	const size, overlap = 40, 15
	s, _ := NewSplitter(size, overlap)
	text := strings.Repeat("0123456789", 33)

	chunks := s.Split(text)

	var b strings.Builder
	for i, c := range chunks {
		runes := []rune(c)
		if i == 0 {
			b.WriteString(c)
			continue
		}
		b.WriteString(string(runes[overlap:]))
	}
	if b.String() != text {
		t.Error("dropping each chunk's overlap prefix does not reassemble the original text")
	}
}

func TestSplit_UnicodeBoundaries(t *testing.T) {
	s, _ := NewSplitter(10, 3)
	text := strings.Repeat("héllo wörld ", 5)

	for _, c := range s.Split(text) {
		if !strings.Contains(text, c) {
			t.Errorf("chunk %q is not a substring of the input (rune boundary split broken)", c)
		}
	}
}
