package pipeline

import (
	"strings"
	"testing"

	"carepulse-go/internal/model"
)

func TestSplitStructuredParagraphsAndLines(t *testing.T) {
	text := "General Consent\nAll patients must sign the intake form.\n\nPrivacy Notice\nRecords are confidential."
	chunks := SplitStructured(text, 800)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	if chunks[0].ParagraphIndex != 0 || chunks[0].LineIndex != 0 {
		t.Errorf("first chunk position = (%d,%d), want (0,0)", chunks[0].ParagraphIndex, chunks[0].LineIndex)
	}
	if chunks[2].ParagraphIndex != 1 || chunks[2].LineIndex != 0 {
		t.Errorf("third chunk position = (%d,%d), want (1,0)", chunks[2].ParagraphIndex, chunks[2].LineIndex)
	}
	if chunks[1].Line != "All patients must sign the intake form." {
		t.Errorf("unexpected line: %q", chunks[1].Line)
	}
	if chunks[1].Paragraph != "General Consent\nAll patients must sign the intake form." {
		t.Errorf("line should carry its full paragraph, got %q", chunks[1].Paragraph)
	}
}

func TestSplitStructuredEveryLineCovered(t *testing.T) {
	text := "a\nb\nc\n\nd\ne\n\n\nf"
	chunks := SplitStructured(text, 800)
	want := []string{"a", "b", "c", "d", "e", "f"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, w := range want {
		if chunks[i].Line != w {
			t.Errorf("chunk %d line = %q, want %q", i, chunks[i].Line, w)
		}
	}
}

func TestSplitStructuredFallsBackToFixedSize(t *testing.T) {
	// 单段长文本触发固定大小回退
	words := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		words = append(words, "consultation")
	}
	text := strings.Join(words, " ")

	chunks := SplitStructured(text, 800)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple fixed-size chunks, got %d", len(chunks))
	}
	var rebuilt []string
	for i, c := range chunks {
		if len(c.Line) > 800 {
			t.Errorf("chunk %d exceeds limit: %d chars", i, len(c.Line))
		}
		if c.Paragraph != c.Line {
			t.Errorf("fixed-size chunk %d should use the chunk itself as paragraph", i)
		}
		if c.LineIndex != i {
			t.Errorf("chunk %d LineIndex = %d", i, c.LineIndex)
		}
		rebuilt = append(rebuilt, strings.Fields(c.Line)...)
	}
	if len(rebuilt) != 500 {
		t.Errorf("fallback lost words: got %d, want 500", len(rebuilt))
	}
}

func TestSplitStructuredOverlongWordKeptWhole(t *testing.T) {
	long := strings.Repeat("x", 1000)
	chunks := SplitStructured("short words here "+long+" tail", 20)
	found := false
	for _, c := range chunks {
		if c.Line == long {
			found = true
		}
	}
	if !found {
		t.Error("overlong word should be emitted as its own chunk, not split or dropped")
	}
}

func TestSplitStructuredEmptyInput(t *testing.T) {
	for _, text := range []string{"", "   \n\n  \t ", "\n\n\n"} {
		if chunks := SplitStructured(text, 800); len(chunks) != 0 {
			t.Errorf("SplitStructured(%q) = %d chunks, want 0", text, len(chunks))
		}
	}
}

func TestDedupChunksKeepsFirstOccurrence(t *testing.T) {
	chunks := []model.StructuredChunk{
		{Paragraph: "p1", Line: "The clinic opens at 9am.", ParagraphIndex: 0, LineIndex: 0},
		{Paragraph: "p2", Line: "The   clinic opens\tat 9am.", ParagraphIndex: 1, LineIndex: 0},
		{Paragraph: "p3", Line: "A different line.", ParagraphIndex: 2, LineIndex: 0},
	}
	got := DedupChunks(chunks)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks after dedup, got %d", len(got))
	}
	if got[0].Paragraph != "p1" {
		t.Errorf("dedup should keep the first occurrence, got %q", got[0].Paragraph)
	}
	if got[1].Line != "A different line." {
		t.Errorf("unexpected surviving chunk: %q", got[1].Line)
	}
}

func TestDedupChunksDropsEmptyNormalizedLines(t *testing.T) {
	chunks := []model.StructuredChunk{
		{Paragraph: "p", Line: "   \t  "},
		{Paragraph: "p", Line: "real content"},
	}
	got := DedupChunks(chunks)
	if len(got) != 1 || got[0].Line != "real content" {
		t.Fatalf("whitespace-only lines should be dropped, got %+v", got)
	}
}

func TestMakeVectorIDDeterministic(t *testing.T) {
	a := MakeVectorID("handbook.pdf", "The clinic opens at 9am.")
	b := MakeVectorID("handbook.pdf", "  The clinic   opens\tat 9am. ")
	if a != b {
		t.Errorf("ids should be stable under whitespace normalization: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "doc-") {
		t.Errorf("id should be prefixed: %s", a)
	}
	c := MakeVectorID("other.pdf", "The clinic opens at 9am.")
	if a == c {
		t.Error("ids for different source files must differ")
	}
}

func TestBuildVectorRecords(t *testing.T) {
	chunks := []model.StructuredChunk{
		{Paragraph: "p", Line: "line one", ParagraphIndex: 0, LineIndex: 0},
		{Paragraph: "p", Line: "line two", ParagraphIndex: 0, LineIndex: 1},
	}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}
	records := BuildVectorRecords(chunks, vectors, "notes.txt")
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != MakeVectorID("notes.txt", "line one") {
		t.Errorf("record id mismatch: %s", records[0].ID)
	}
	if records[1].Metadata.Source != "notes.txt" || records[1].Metadata.LineIndex != 1 {
		t.Errorf("metadata mismatch: %+v", records[1].Metadata)
	}
}
