package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	s, err := NewSplitter(100, 20)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}
	return New(s, nil, zap.NewNop())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_TxtFile(t *testing.T) {
	l := newTestLoader(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "the policy covers annual eye exams for all members")

	chunks, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Source != "notes.txt" {
		t.Errorf("expected source notes.txt, got %q", chunks[0].Source)
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected index 0, got %d", chunks[0].Index)
	}
	if chunks[0].ID != "notes.txt:0" {
		t.Errorf("unexpected chunk id %q", chunks[0].ID)
	}
}

func TestLoad_UnsupportedExtensionIsEmptyNotError(t *testing.T) {
	l := newTestLoader(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "binary.exe", "not a document")

	chunks, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected empty result, got %d chunks", len(chunks))
	}
}

func TestLoad_CSVFlattensRows(t *testing.T) {
	l := newTestLoader(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "plans.csv", "plan,coverage\nbasic,dental\npremium,vision\n")

	chunks, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	text := chunks[0].Text
	if !strings.Contains(text, "basic dental") || !strings.Contains(text, "premium vision") {
		t.Errorf("csv rows not flattened row-wise: %q", text)
	}
}

func TestLoad_CSVWritesArtifactNextToSource(t *testing.T) {
	l := newTestLoader(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "plans.csv", "a,b\nc,d\n")

	chunks, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(path + ".txt"); err != nil {
		t.Errorf("expected plain-text artifact next to source: %v", err)
	}
	// Traceability points at the original file, not the artifact.
	if chunks[0].Source != "plans.csv" {
		t.Errorf("expected source plans.csv, got %q", chunks[0].Source)
	}
}

func TestLoad_HTMLStripsMarkup(t *testing.T) {
	l := newTestLoader(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "page.html",
		`<html><head><style>.x{}</style></head><body><h1>Title</h1><p>Body text.</p><script>var x=1;</script></body></html>`)

	chunks, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := chunks[0].Text
	if !strings.Contains(text, "Title") || !strings.Contains(text, "Body text.") {
		t.Errorf("expected visible text, got %q", text)
	}
	if strings.Contains(text, "var x=1") || strings.Contains(text, ".x{}") {
		t.Errorf("script/style content leaked into %q", text)
	}
}

func TestLoadDirectory_SkipsFailuresAndContinues(t *testing.T) {
	l := newTestLoader(t)
	dir := t.TempDir()
	writeFile(t, dir, "good.txt", "readable content")
	writeFile(t, dir, "broken.pdf", "definitely not a pdf")

	chunks, failed := l.LoadDirectory(context.Background(), dir)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk from the readable file, got %d", len(chunks))
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed source, got %d", len(failed))
	}
	if failed[0].Source != "broken.pdf" {
		t.Errorf("expected broken.pdf recorded as failed, got %q", failed[0].Source)
	}
	if failed[0].Reason() == "" {
		t.Error("expected a failure reason")
	}
}

func TestLoadDirectory_DeterministicOrder(t *testing.T) {
	l := newTestLoader(t)
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "second")
	writeFile(t, dir, "a.txt", "first")

	chunks, failed := l.LoadDirectory(context.Background(), dir)
	if len(failed) != 0 {
		t.Fatalf("unexpected failures: %v", failed)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Source != "a.txt" || chunks[1].Source != "b.txt" {
		t.Errorf("expected lexicographic source order, got %q, %q", chunks[0].Source, chunks[1].Source)
	}
}

func TestLoad_ChunkIndicesContinuous(t *testing.T) {
	s, _ := NewSplitter(10, 2)
	l := New(s, nil, zap.NewNop())
	dir := t.TempDir()
	path := writeFile(t, dir, "long.txt", strings.Repeat("abcdefgh ", 20))

	chunks, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
	}
}
