package chunker

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"docrag/internal/domain"
)

func TestChunkEmpty(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t\r\n"} {
		chunks, err := Chunk(text, 100, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 0 {
			t.Errorf("expected no chunks for %q, got %q", text, chunks)
		}
	}
}

func TestChunkShortInput(t *testing.T) {
	chunks, err := Chunk("Hello world.", 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0] != "Hello world." {
		t.Errorf("expected single chunk, got %q", chunks)
	}

	chunks, _ = Chunk("   Hello world.  \n", 100, 10)
	if len(chunks) != 1 || chunks[0] != "Hello world." {
		t.Errorf("expected trimmed chunk, got %q", chunks)
	}
}

func TestChunkTwoParagraphsWithOverlap(t *testing.T) {
	a := strings.Repeat("A", 50)
	b := strings.Repeat("B", 50)

	chunks, err := Chunk(a+"\n\n"+b, 80, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != a {
		t.Errorf("first chunk: got %q", chunks[0])
	}
	want := strings.Repeat("A", 10) + "\n\n" + b
	if chunks[1] != want {
		t.Errorf("second chunk: expected %q, got %q", want, chunks[1])
	}
}

func TestChunkParagraphsMergeWhenTheyFit(t *testing.T) {
	chunks, err := Chunk("First paragraph.\n\nSecond paragraph.", 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0] != "First paragraph.\n\nSecond paragraph." {
		t.Errorf("expected merged paragraphs, got %q", chunks)
	}
}

func TestChunkHardSlicesGiantToken(t *testing.T) {
	chunks, err := Chunk(strings.Repeat("x", 500), 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c != strings.Repeat("x", 100) {
			t.Errorf("chunk %d: expected 100 x, got %d chars", i, len(c))
		}
	}

	chunks, _ = Chunk(strings.Repeat("y", 250), 100, 0)
	if len(chunks) != 3 || len(chunks[2]) != 50 {
		t.Errorf("expected slices of 100, 100, 50, got %d chunks", len(chunks))
	}
}

func TestChunkSentencesWithOverlap(t *testing.T) {
	s1 := strings.Repeat("a", 39) + "."
	s2 := strings.Repeat("b", 39) + "."
	s3 := strings.Repeat("c", 39) + "."

	chunks, err := Chunk(s1+" "+s2+" "+s3, 90, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != s1+" "+s2 {
		t.Errorf("first chunk: got %q", chunks[0])
	}
	seed := chunks[0][len(chunks[0])-5:]
	if chunks[1] != seed+" "+s3 {
		t.Errorf("second chunk: expected %q, got %q", seed+" "+s3, chunks[1])
	}
}

func TestChunkOverlapZeroHasNoDuplication(t *testing.T) {
	text := generateText(rand.New(rand.NewSource(7)), 30)
	chunks, err := Chunk(text, 120, 0)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, c := range chunks {
		total += len(stripSpace(c))
	}
	if want := len(stripSpace(normalize(text))); total != want {
		t.Errorf("expected %d non-space characters across chunks, got %d", want, total)
	}
}

func TestChunkNormalizesWhitespace(t *testing.T) {
	chunks, err := Chunk("a\tb\r\nc\r\n\r\nd\re", 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0] != "a b\nc\n\nd\ne" {
		t.Errorf("unexpected normalization: %q", chunks)
	}
}

func TestChunkKeepsBlocksTogether(t *testing.T) {
	para := "# Heading\nSome intro line here.\n- first item\n- second item"

	chunks, err := Chunk(para, 40, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"# Heading\nSome intro line here.", "- first item\n\n- second item"}
	if !equalStrings(chunks, want) {
		t.Errorf("expected %q, got %q", want, chunks)
	}
}

func TestChunkCommaClausesReachHardSlice(t *testing.T) {
	var clauses []string
	for i := 0; i < 60; i++ {
		clauses = append(clauses, fmt.Sprintf("clause number %d keeps going", i))
	}
	text := strings.Join(clauses, ", ")

	chunks, err := Chunk(text, 50, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < len(text)/50 {
		t.Fatalf("expected hard slices, got %d chunks", len(chunks))
	}
	assertChunkInvariants(t, text, chunks, Options{MaxSize: 50, Overlap: 10})
}

func TestChunkNestedOversizedFragments(t *testing.T) {
	long := strings.Repeat("run-on words without any stop ", 20)
	text := "# Title\n" + long + "\n- " + long + "\n> " + strings.Repeat("z", 300) + "\n\nTail paragraph."

	opts := Options{MaxSize: 64, Overlap: 16}
	chunks, err := Chunk(text, opts.MaxSize, opts.Overlap)
	if err != nil {
		t.Fatal(err)
	}
	assertChunkInvariants(t, text, chunks, opts)
	if last := chunks[len(chunks)-1]; last != "Tail paragraph." {
		t.Errorf("expected paragraph after oversized one to start fresh, got %q", last)
	}
}

func TestChunkOverlapLargerThanRoom(t *testing.T) {
	text := "Tiny. Words. Here. And. More. Text. " + strings.Repeat("q", 25) + ". End."
	opts := Options{MaxSize: 10, Overlap: 9}

	chunks, err := Chunk(text, opts.MaxSize, opts.Overlap)
	if err != nil {
		t.Fatal(err)
	}
	assertChunkInvariants(t, text, chunks, opts)
}

func TestChunkUnicodeCountsCharacters(t *testing.T) {
	chunks, err := Chunk(strings.Repeat("é", 250), 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
	}
	if n := utf8.RuneCountInString(chunks[0]); n != 100 {
		t.Errorf("expected 100 characters, got %d", n)
	}
}

func TestChunkOverlapPrefix(t *testing.T) {
	var paras []string
	for i := 0; i < 12; i++ {
		paras = append(paras, fmt.Sprintf("Paragraph %02d has some words in it.", i))
	}
	opts := Options{MaxSize: 100, Overlap: 20}

	chunks, err := Chunk(strings.Join(paras, "\n\n"), opts.MaxSize, opts.Overlap)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		seed := lastChars(chunks[i-1], opts.Overlap)
		if !strings.HasPrefix(chunks[i], seed+"\n\n") {
			t.Errorf("chunk %d does not start with overlap %q: %q", i, seed, chunks[i])
		}
	}
}

func TestChunkOversizedParagraphJoinsRollingBuffer(t *testing.T) {
	text := "Intro.\n\nShort block.\n- " + strings.Repeat("w", 95)

	chunks, err := Chunk(text, 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Intro.\n\nShort block.", "- " + strings.Repeat("w", 95)}
	if !equalStrings(chunks, want) {
		t.Errorf("expected %q, got %q", want, chunks)
	}
	assertChunkInvariants(t, text, chunks, Options{MaxSize: 100, Overlap: 10})
}

func TestChunkOverlapPrefixThroughBlocks(t *testing.T) {
	var items []string
	for i := 0; i < 8; i++ {
		items = append(items, fmt.Sprintf("- item %d is a list entry.", i))
	}
	text := "Lead paragraph.\n\n" + strings.Join(items, "\n")
	opts := Options{MaxSize: 60, Overlap: 12}

	chunks, err := Chunk(text, opts.MaxSize, opts.Overlap)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(chunks[0], "Lead paragraph.\n\n- item 0") {
		t.Errorf("first block should join the lead paragraph, got %q", chunks[0])
	}
	for i := 1; i < len(chunks); i++ {
		seed := lastChars(chunks[i-1], opts.Overlap)
		if !strings.HasPrefix(chunks[i], seed+"\n\n") {
			t.Errorf("chunk %d does not start with overlap %q: %q", i, seed, chunks[i])
		}
	}
	assertChunkInvariants(t, text, chunks, opts)
}

func TestChunkSentenceSeedDroppedWhenNoRoom(t *testing.T) {
	s1 := strings.Repeat("a", 29) + "."
	s2 := strings.Repeat("b", 27) + "."
	s3 := strings.Repeat("c", 20) + "."
	para := s1 + " " + s2 + " " + s3 + " " + strings.Repeat("d", 40)
	opts := Options{MaxSize: 32, Overlap: 5}

	chunks, err := Chunk(para, opts.MaxSize, opts.Overlap)
	if err != nil {
		t.Fatal(err)
	}
	// s2 leaves no room for a seed from s1; s3 does.
	want := []string{s1, s2, lastChars(s2, 5) + " " + s3}
	if len(chunks) < len(want) || !equalStrings(chunks[:len(want)], want) {
		t.Errorf("expected chunks to start with %q, got %q", want, chunks)
	}
	assertChunkInvariants(t, para, chunks, opts)
}

func TestChunkInvalidConfig(t *testing.T) {
	cases := []struct {
		maxSize, overlap int
	}{
		{0, 0},
		{-5, 0},
		{10, -1},
		{10, 10},
		{10, 11},
	}
	for _, tc := range cases {
		chunks, err := Chunk("some text", tc.maxSize, tc.overlap)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Chunk(max=%d, overlap=%d): expected ErrInvalidConfig, got %v", tc.maxSize, tc.overlap, err)
		}
		if chunks != nil {
			t.Errorf("Chunk(max=%d, overlap=%d): expected no output on error", tc.maxSize, tc.overlap)
		}
		if _, err := NewTextChunker(tc.maxSize, tc.overlap); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewTextChunker(max=%d, overlap=%d): expected ErrInvalidConfig, got %v", tc.maxSize, tc.overlap, err)
		}
	}
}

func TestChunkProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	configs := []Options{
		{MaxSize: 1, Overlap: 0},
		{MaxSize: 7, Overlap: 3},
		{MaxSize: 40, Overlap: 0},
		{MaxSize: 80, Overlap: 10},
		{MaxSize: 200, Overlap: 150},
		{MaxSize: DefaultMaxSize, Overlap: DefaultOverlap},
		{MaxSize: 1200, Overlap: 150},
	}
	for round := 0; round < 40; round++ {
		text := generateText(rng, 1+rng.Intn(40))
		for _, opts := range configs {
			chunks, err := Chunk(text, opts.MaxSize, opts.Overlap)
			if err != nil {
				t.Fatal(err)
			}
			assertChunkInvariants(t, text, chunks, opts)

			again, _ := Chunk(text, opts.MaxSize, opts.Overlap)
			if !equalStrings(chunks, again) {
				t.Fatalf("non-deterministic output for %+v", opts)
			}
		}
	}
}

func TestTextChunkerLabelsChunks(t *testing.T) {
	c, err := NewTextChunker(30, 5)
	if err != nil {
		t.Fatal(err)
	}
	doc := domain.Document{ID: "doc-1", Name: "report.pdf"}

	chunks, err := c.Chunk(doc, "First sentence is here. Second sentence is here. Third one too.")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	ids := make(map[string]bool)
	for i, chunk := range chunks {
		if chunk.Index != i+1 {
			t.Errorf("expected index %d, got %d", i+1, chunk.Index)
		}
		if want := fmt.Sprintf("report.pdf#%d", i+1); chunk.Source != want {
			t.Errorf("expected source %s, got %s", want, chunk.Source)
		}
		if chunk.DocID != "doc-1" {
			t.Errorf("expected DocID doc-1, got %s", chunk.DocID)
		}
		if ids[chunk.ID] {
			t.Errorf("duplicate chunk ID: %s", chunk.ID)
		}
		ids[chunk.ID] = true
	}

	again, _ := c.Chunk(doc, "First sentence is here. Second sentence is here. Third one too.")
	if again[0].ID != chunks[0].ID {
		t.Error("chunk IDs should be stable across runs")
	}
}

func TestBlocks(t *testing.T) {
	got := blocks("intro\n## Sub\nbody\n1. one\n2) two\n> quoted\n* star\n-not a bullet")
	want := []string{"intro", "## Sub\nbody", "1. one", "2) two", "> quoted", "* star\n-not a bullet"}
	if !equalStrings(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestHardSliceSkipsWhitespaceAtCuts(t *testing.T) {
	got := hardSlice("aaaa bbbb cc", 4)
	want := []string{"aaaa", "bbbb", "cc"}
	if !equalStrings(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}

	got = hardSlice("aaa bbbb", 4)
	want = []string{"aaa", "bbbb"}
	if !equalStrings(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSentences(t *testing.T) {
	got := sentences("One. Two!  Three?\nFour?! five 3.14 six")
	want := []string{"One.", "Two!", "Three?", "Four?!", "five 3.14 six"}
	if !equalStrings(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func FuzzChunk(f *testing.F) {
	f.Add("Hello world.", 100, 10)
	f.Add(strings.Repeat("x", 500), 100, 0)
	f.Add("# T\n- a\n- b\n\nPara. Two! Three?", 5, 2)
	f.Add("a\r\n\r\n\tb", 1, 0)

	f.Fuzz(func(t *testing.T, text string, maxSize, overlap int) {
		m := (maxSize%300+300)%300 + 1
		opts := Options{MaxSize: m, Overlap: (overlap%m + m) % m}

		chunks, err := Chunk(text, opts.MaxSize, opts.Overlap)
		if err != nil {
			t.Fatal(err)
		}
		for i, c := range chunks {
			if strings.TrimSpace(c) == "" {
				t.Fatalf("chunk %d is empty", i)
			}
			if n := utf8.RuneCountInString(c); n > opts.MaxSize {
				t.Fatalf("chunk %d has %d characters, max %d", i, n, opts.MaxSize)
			}
		}
	})
}

func BenchmarkChunk(b *testing.B) {
	text := generateText(rand.New(rand.NewSource(1)), 2000)
	b.SetBytes(int64(len(text)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Chunk(text, 1200, 150); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkChunkSingleToken(b *testing.B) {
	text := strings.Repeat("x", 1<<20)
	b.SetBytes(int64(len(text)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Chunk(text, 800, 120); err != nil {
			b.Fatal(err)
		}
	}
}

// assertChunkInvariants checks size bounds, non-emptiness and that the chunks,
// with their overlap prefixes removed, reproduce the input modulo whitespace.
func assertChunkInvariants(t *testing.T, text string, chunks []string, opts Options) {
	t.Helper()

	for i, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Fatalf("%+v: chunk %d is empty", opts, i)
		}
		if n := utf8.RuneCountInString(c); n > opts.MaxSize {
			t.Fatalf("%+v: chunk %d has %d characters", opts, i, n)
		}
	}

	want := stripSpace(normalize(text))
	stripped := make([]string, len(chunks))
	for i, c := range chunks {
		stripped[i] = stripSpace(c)
	}

	failed := make(map[[2]int]bool)
	var cover func(i, pos int) bool
	cover = func(i, pos int) bool {
		if i == len(stripped) {
			return pos == len(want)
		}
		if failed[[2]int{i, pos}] {
			return false
		}
		defer func() { failed[[2]int{i, pos}] = true }()
		c := stripped[i]
		for k := min(len(c), opts.Overlap); k >= 0; k-- {
			if strings.HasSuffix(want[:pos], c[:k]) && strings.HasPrefix(want[pos:], c[k:]) {
				if cover(i+1, pos+len(c)-k) {
					return true
				}
			}
		}
		return false
	}
	if !cover(0, 0) {
		t.Fatalf("%+v: chunks do not reproduce the input text\ninput: %q\nchunks: %q", opts, text, chunks)
	}
}

func generateText(rng *rand.Rand, paragraphs int) string {
	var sb strings.Builder
	word := 0
	for p := 0; p < paragraphs; p++ {
		if p > 0 {
			sb.WriteString([]string{"\n\n", "\r\n\r\n", "\n \n\n"}[rng.Intn(3)])
		}
		switch rng.Intn(6) {
		case 0:
			sb.WriteString("# Heading\n")
		case 1:
			sb.WriteString(strings.Repeat("k", 50+rng.Intn(400)))
			continue
		}
		lines := 1 + rng.Intn(4)
		for l := 0; l < lines; l++ {
			if l > 0 {
				sb.WriteString("\n")
				if rng.Intn(3) == 0 {
					sb.WriteString("- ")
				}
			}
			words := 1 + rng.Intn(40)
			for w := 0; w < words; w++ {
				if w > 0 {
					sb.WriteString([]string{" ", " ", "\t", ", "}[rng.Intn(4)])
				}
				word++
				fmt.Fprintf(&sb, "w%d", word)
				if rng.Intn(8) == 0 {
					sb.WriteString([]string{".", "!", "?"}[rng.Intn(3)])
				}
			}
		}
	}
	return sb.String()
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
