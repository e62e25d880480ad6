package services

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// minChunkLength is the smallest chunk worth storing; shorter fragments are
// dropped because they carry too little context to retrieve against.
const minChunkLength = 50

// structuralSeparators are tried after any detected titles, coarsest first.
var structuralSeparators = []string{"\n\n\n", "\n\n", "\n", ". ", "? ", "! ", "; ", ", ", " "}

// chunkConfig holds the splitter parameters for one document size tier.
type chunkConfig struct {
	chunkSize int
	overlap   int
}

// configForPages selects chunk size and overlap from the page count. Small
// documents get fine-grained chunks; large documents get wider chunks to keep
// the total chunk count bounded. Unknown page counts fall into the smallest
// tier.
func configForPages(pageCount int) chunkConfig {
	switch {
	case pageCount <= 10:
		return chunkConfig{chunkSize: 800, overlap: 150}
	case pageCount <= 50:
		return chunkConfig{chunkSize: 1200, overlap: 150}
	case pageCount <= 150:
		return chunkConfig{chunkSize: 1800, overlap: 100}
	default:
		return chunkConfig{chunkSize: 2500, overlap: 80}
	}
}

// AdaptiveChunker splits extracted document text into overlapping chunks,
// preferring section boundaries over arbitrary cuts
type AdaptiveChunker struct {
	markdownRegex *regexp.Regexp
	numberedRegex *regexp.Regexp
	romanRegex    *regexp.Regexp
	keywordRegex  *regexp.Regexp
	allCapsRegex  *regexp.Regexp
	upperRegex    *regexp.Regexp
}

// NewAdaptiveChunker creates a new adaptive chunker
func NewAdaptiveChunker() *AdaptiveChunker {
	return &AdaptiveChunker{
		markdownRegex: regexp.MustCompile(`^#{1,6}\s`),
		numberedRegex: regexp.MustCompile(`^\d+(\.\d+)*\.?\s+[A-ZÁÉÍÓÚÑ]`),
		romanRegex:    regexp.MustCompile(`^[IVXLCDM]+\.\s`),
		keywordRegex:  regexp.MustCompile(`^(Capítulo|Sección|Artículo|Anexo|Chapter|Section|Article|Annex)\b(\s+\d+)?`),
		allCapsRegex:  regexp.MustCompile(`^[\p{Lu}\p{N}\s[:punct:]]+$`),
		upperRegex:    regexp.MustCompile(`\p{Lu}`),
	}
}

// ChunkText splits text into chunks sized for the document's page count.
// Returns nil for empty or whitespace-only input.
func (ac *AdaptiveChunker) ChunkText(text string, pageCount int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	cfg := configForPages(pageCount)
	separators := append(ac.detectTitles(text), structuralSeparators...)

	return filterShortChunks(ac.splitRecursive(text, separators, cfg))
}

// detectTitles scans the text line by line and turns every distinct heading
// into a literal separator. Longer titles sort first so that more specific
// headings bind before generic ones.
func (ac *AdaptiveChunker) detectTitles(text string) []string {
	seen := make(map[string]bool)
	var separators []string

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if utf8.RuneCountInString(line) <= 3 || !ac.isTitleLine(line) {
			continue
		}
		sep := "\n" + line + "\n"
		if seen[sep] {
			continue
		}
		seen[sep] = true
		separators = append(separators, sep)
	}

	sort.SliceStable(separators, func(i, j int) bool {
		return utf8.RuneCountInString(separators[i]) > utf8.RuneCountInString(separators[j])
	})

	return separators
}

// isTitleLine reports whether a trimmed line looks like a section heading:
// a Markdown heading, a numbered section, a Roman numeral heading, a keyword
// heading, or an all-caps line.
func (ac *AdaptiveChunker) isTitleLine(line string) bool {
	if ac.markdownRegex.MatchString(line) ||
		ac.numberedRegex.MatchString(line) ||
		ac.romanRegex.MatchString(line) ||
		ac.keywordRegex.MatchString(line) {
		return true
	}
	return ac.isAllCapsHeading(line)
}

// isAllCapsHeading matches lines of at least 4 characters made up entirely of
// uppercase letters, digits, spaces and punctuation, with at least one letter.
func (ac *AdaptiveChunker) isAllCapsHeading(line string) bool {
	if utf8.RuneCountInString(line) < 4 {
		return false
	}
	return ac.allCapsRegex.MatchString(line) && ac.upperRegex.MatchString(line)
}

// splitRecursive splits text on the first separator that occurs in it,
// recursing into oversized fragments with the remaining separators. When no
// separator applies, the text is hard-cut at the chunk size.
func (ac *AdaptiveChunker) splitRecursive(text string, separators []string, cfg chunkConfig) []string {
	if utf8.RuneCountInString(text) <= cfg.chunkSize {
		return []string{text}
	}

	separator := ""
	var remaining []string
	for i, sep := range separators {
		if strings.Contains(text, sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}
	if separator == "" {
		return hardSplit(text, cfg.chunkSize)
	}

	fragments := strings.Split(text, separator)

	var chunks []string
	var window []string
	for _, fragment := range fragments {
		if utf8.RuneCountInString(fragment) <= cfg.chunkSize {
			window = append(window, fragment)
			continue
		}

		// Flush merged fragments before descending into the oversized one.
		if len(window) > 0 {
			chunks = append(chunks, mergeFragments(window, separator, cfg)...)
			window = nil
		}

		if len(remaining) == 0 {
			chunks = append(chunks, hardSplit(fragment, cfg.chunkSize)...)
		} else {
			chunks = append(chunks, ac.splitRecursive(fragment, remaining, cfg)...)
		}
	}
	if len(window) > 0 {
		chunks = append(chunks, mergeFragments(window, separator, cfg)...)
	}

	return chunks
}

// mergeFragments greedily joins adjacent fragments up to the chunk size. When
// a chunk is emitted, whole fragments are carried over from its tail until the
// overlap budget is reached, so overlaps always end on a separator boundary.
func mergeFragments(fragments []string, separator string, cfg chunkConfig) []string {
	sepLen := utf8.RuneCountInString(separator)

	var merged []string
	var window []string
	total := 0

	for _, fragment := range fragments {
		fragLen := utf8.RuneCountInString(fragment)

		candidate := total + fragLen
		if len(window) > 0 {
			candidate += sepLen
		}

		if candidate > cfg.chunkSize && len(window) > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, separator)); chunk != "" {
				merged = append(merged, chunk)
			}
			for len(window) > 0 && (total > cfg.overlap || total+fragLen+sepLen > cfg.chunkSize) {
				total -= utf8.RuneCountInString(window[0])
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
			}
		}

		window = append(window, fragment)
		total += fragLen
		if len(window) > 1 {
			total += sepLen
		}
	}

	if chunk := strings.TrimSpace(strings.Join(window, separator)); chunk != "" {
		merged = append(merged, chunk)
	}

	return merged
}

// hardSplit cuts text every chunkSize runes. Last resort when no separator
// occurs in an oversized fragment.
func hardSplit(text string, chunkSize int) []string {
	runes := []rune(text)

	var parts []string
	for start := 0; start < len(runes); start += chunkSize {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}

	return parts
}

// filterShortChunks trims each chunk and drops the ones below the minimum
// length.
func filterShortChunks(chunks []string) []string {
	result := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if utf8.RuneCountInString(chunk) < minChunkLength {
			continue
		}
		result = append(result, chunk)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
