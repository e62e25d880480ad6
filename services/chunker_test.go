package services

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestConfigForPages(t *testing.T) {
	cases := []struct {
		pages     int
		chunkSize int
		overlap   int
	}{
		{0, 800, 150},
		{-3, 800, 150},
		{10, 800, 150},
		{11, 1200, 150},
		{50, 1200, 150},
		{51, 1800, 100},
		{150, 1800, 100},
		{151, 2500, 80},
		{900, 2500, 80},
	}

	for _, tc := range cases {
		cfg := configForPages(tc.pages)
		if cfg.chunkSize != tc.chunkSize || cfg.overlap != tc.overlap {
			t.Errorf("pages=%d: got %d/%d, want %d/%d",
				tc.pages, cfg.chunkSize, cfg.overlap, tc.chunkSize, tc.overlap)
		}
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	chunker := NewAdaptiveChunker()

	if got := chunker.ChunkText("", 5); got != nil {
		t.Errorf("empty text: got %v, want nil", got)
	}
	if got := chunker.ChunkText("   \n\t  ", 5); got != nil {
		t.Errorf("whitespace text: got %v, want nil", got)
	}
}

func TestChunkTextDropsShortChunks(t *testing.T) {
	chunker := NewAdaptiveChunker()

	if got := chunker.ChunkText("too short to keep", 5); got != nil {
		t.Errorf("short text: got %v, want nil", got)
	}

	long := strings.Repeat("palabra ", 10) // 80 runes
	chunks := chunker.ChunkText(long, 5)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != strings.TrimSpace(long) {
		t.Errorf("chunk not trimmed: %q", chunks[0])
	}
}

func TestChunkTextRespectsSizeBound(t *testing.T) {
	chunker := NewAdaptiveChunker()

	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Paragraph %02d with some filler words to give it weight. More filler text here.\n\n", i)
	}

	chunks := chunker.ChunkText(b.String(), 5)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk); n > 800 {
			t.Errorf("chunk %d has %d runes, max 800", i, n)
		}
	}
}

func TestChunkTextKeepsAllContent(t *testing.T) {
	chunker := NewAdaptiveChunker()

	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "tok%02d is the marker for sentence number %d in this running text. ", i, i)
	}

	chunks := chunker.ChunkText(b.String(), 5)
	joined := strings.Join(chunks, " ")
	for i := 0; i < 30; i++ {
		marker := fmt.Sprintf("tok%02d", i)
		if !strings.Contains(joined, marker) {
			t.Errorf("marker %s lost during chunking", marker)
		}
	}
}

func TestChunkTextOverlapsConsecutiveChunks(t *testing.T) {
	chunker := NewAdaptiveChunker()

	// Sentences around 60 runes so the overlap window carries whole sentences.
	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "Sentence number %02d carries enough words to fill sixty runes. ", i)
	}

	chunks := chunker.ChunkText(b.String(), 5)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		head := chunks[i]
		if idx := strings.Index(head, ". "); idx > 0 {
			head = head[:idx]
		}
		if !strings.Contains(chunks[i-1], head) {
			t.Errorf("chunk %d does not overlap with its predecessor; head %q", i, head)
		}
	}
}

func TestChunkTextSplitsAtDetectedTitles(t *testing.T) {
	chunker := NewAdaptiveChunker()

	section := func(marker string) string {
		var b strings.Builder
		for i := 0; i < 9; i++ {
			fmt.Fprintf(&b, "%s sentence %d with a reasonable amount of filler text in it. ", marker, i)
		}
		return b.String()
	}

	text := section("alpha") + "\nINTRODUCTION\n" + section("beta") + "\nCONCLUSION\n" + section("gamma")

	chunks := chunker.ChunkText(text, 5)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		markers := 0
		for _, m := range []string{"alpha", "beta", "gamma"} {
			if strings.Contains(chunk, m) {
				markers++
			}
		}
		if markers > 1 {
			t.Errorf("chunk %d straddles a section boundary: %q", i, chunk[:60])
		}
	}
}

func TestChunkTextHardCutWithoutSeparators(t *testing.T) {
	chunker := NewAdaptiveChunker()

	chunks := chunker.ChunkText(strings.Repeat("a", 3000), 5)
	want := []int{800, 800, 800, 600}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk); n != want[i] {
			t.Errorf("chunk %d has %d runes, want %d", i, n, want[i])
		}
	}
}

func TestChunkTextHandlesMultibyteRunes(t *testing.T) {
	chunker := NewAdaptiveChunker()

	chunks := chunker.ChunkText(strings.Repeat("á", 1700), 5)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
	}
	if n := utf8.RuneCountInString(chunks[0]); n != 800 {
		t.Errorf("first chunk has %d runes, want 800", n)
	}
}

func TestChunkTextToleratesInvalidUTF8(t *testing.T) {
	chunker := NewAdaptiveChunker()

	text := string([]byte{0xff, 0xfe}) + strings.Repeat("valid text ", 20)
	chunks := chunker.ChunkText(text, 5)
	if len(chunks) == 0 {
		t.Fatal("expected chunks from mostly-valid input")
	}
}

func TestIsTitleLine(t *testing.T) {
	chunker := NewAdaptiveChunker()

	titles := []string{
		"# Heading",
		"### Deep heading",
		"1. Introducción",
		"2.4 Alcance del proyecto",
		"1.2.3. Métodos",
		"IV. Resultados",
		"Capítulo 5",
		"Sección 2",
		"Chapter 12: Results",
		"Annex 1",
		"INTRODUCTION",
		"CAPÍTULO PRIMERO",
		"RESUMEN EJECUTIVO 2024",
	}
	for _, line := range titles {
		if !chunker.isTitleLine(line) {
			t.Errorf("%q should be a title", line)
		}
	}

	body := []string{
		"The quick brown fox jumps over the lazy dog",
		"1000 metros de distancia",
		"2024",
		"Sections overview for the reader",
		"un artículo cualquiera",
		"e.g. some abbreviation",
	}
	for _, line := range body {
		if chunker.isTitleLine(line) {
			t.Errorf("%q should not be a title", line)
		}
	}
}

func TestDetectTitles(t *testing.T) {
	chunker := NewAdaptiveChunker()

	text := "intro text\nINTRODUCTION\nbody\nCapítulo 1\nmore body\nINTRODUCTION\n# A\nfinal"
	seps := chunker.detectTitles(text)

	if len(seps) != 2 {
		t.Fatalf("got %d separators, want 2: %q", len(seps), seps)
	}
	// Longer titles sort first.
	if seps[0] != "\nINTRODUCTION\n" {
		t.Errorf("got %q first, want INTRODUCTION separator", seps[0])
	}
	if seps[1] != "\nCapítulo 1\n" {
		t.Errorf("got %q second, want Capítulo separator", seps[1])
	}
}
