package postprocessors

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TextPipeline = (*Pipeline)(nil)

// Pipeline implements TextPipeline.
// It runs extracted text through each processor in Order().
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.TextProcessor
	sorted     bool
}

// NewPipeline creates a new post-processor pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]driven.TextProcessor, 0),
	}
}

// Add adds a processor to the pipeline.
// Processors are sorted by Order() before processing.
func (p *Pipeline) Add(processor driven.TextProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	p.sorted = false
}

// Process applies all processors in order.
func (p *Pipeline) Process(text string) string {
	p.mu.Lock()
	if !p.sorted {
		sort.SliceStable(p.processors, func(i, j int) bool {
			return p.processors[i].Order() < p.processors[j].Order()
		})
		p.sorted = true
	}
	processors := make([]driven.TextProcessor, len(p.processors))
	copy(processors, p.processors)
	p.mu.Unlock()

	for _, proc := range processors {
		text = proc.Process(text)
	}
	return text
}

// List returns processor names in order.
func (p *Pipeline) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// DefaultPipeline cleans OCR output and caps it at maxChars (no cap when
// maxChars <= 0).
func DefaultPipeline(maxChars int) *Pipeline {
	p := NewPipeline()
	p.Add(NewWhitespaceNormalizer())
	p.Add(NewLineDeduplicator())
	if maxChars > 0 {
		p.Add(NewTruncator(maxChars))
	}
	return p
}

// WhitespaceNormalizer normalizes line endings, spacing and blank lines.
type WhitespaceNormalizer struct{}

// Verify interface compliance
var _ driven.TextProcessor = (*WhitespaceNormalizer)(nil)

// NewWhitespaceNormalizer creates a new whitespace normalizer.
func NewWhitespaceNormalizer() *WhitespaceNormalizer {
	return &WhitespaceNormalizer{}
}

// Process normalizes whitespace and drops control characters.
func (w *WhitespaceNormalizer) Process(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == '\uFEFF' {
			return -1
		}
		return r
	}, text)

	// Collapse runs of spaces and tabs (but preserve newlines)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t'
		}), " ")
	}
	text = strings.Join(lines, "\n")

	// Remove excessive blank lines
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(text)
}

// Name returns the processor name.
func (w *WhitespaceNormalizer) Name() string {
	return "whitespace-normalizer"
}

// Order returns 0 - normalization runs first.
func (w *WhitespaceNormalizer) Order() int {
	return 0
}

// LineDeduplicator drops a line that repeats the line before it. Multi-page
// OCR often repeats headers and footers back to back.
type LineDeduplicator struct{}

// Verify interface compliance
var _ driven.TextProcessor = (*LineDeduplicator)(nil)

// NewLineDeduplicator creates a new line deduplicator.
func NewLineDeduplicator() *LineDeduplicator {
	return &LineDeduplicator{}
}

// Process removes consecutive duplicate non-blank lines, compared
// case-insensitively.
func (d *LineDeduplicator) Process(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	prev := ""
	for _, line := range lines {
		norm := strings.ToLower(strings.TrimSpace(line))
		if norm != "" && norm == prev {
			continue
		}
		out = append(out, line)
		prev = norm
	}
	return strings.Join(out, "\n")
}

// Name returns the processor name.
func (d *LineDeduplicator) Name() string {
	return "line-deduplicator"
}

// Order returns 10 - runs after whitespace normalization.
func (d *LineDeduplicator) Order() int {
	return 10
}

// Truncator caps text length so one huge scan cannot blow the model's
// context window.
type Truncator struct {
	maxChars int
}

// Verify interface compliance
var _ driven.TextProcessor = (*Truncator)(nil)

// NewTruncator creates a truncator keeping at most maxChars runes.
func NewTruncator(maxChars int) *Truncator {
	return &Truncator{maxChars: maxChars}
}

// Process cuts text at the last line or word break before the limit.
func (t *Truncator) Process(text string) string {
	runes := []rune(text)
	if t.maxChars <= 0 || len(runes) <= t.maxChars {
		return text
	}
	cut := string(runes[:t.maxChars])
	return strings.TrimSpace(cut[:findBreakPoint(cut)])
}

// Name returns the processor name.
func (t *Truncator) Name() string {
	return "truncator"
}

// Order returns 100 - truncation runs last.
func (t *Truncator) Order() int {
	return 100
}

// findBreakPoint returns the byte offset of a good place to end s,
// searching only the last 100 bytes.
func findBreakPoint(s string) int {
	searchStart := len(s) - 100
	if searchStart < 0 {
		searchStart = 0
	}
	tail := s[searchStart:]

	if idx := strings.LastIndex(tail, "\n"); idx != -1 {
		return searchStart + idx
	}
	if idx := strings.LastIndex(tail, " "); idx != -1 {
		return searchStart + idx
	}
	return len(s)
}
