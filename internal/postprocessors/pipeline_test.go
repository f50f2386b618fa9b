package postprocessors

import (
	"strings"
	"testing"
)

type tagProcessor struct {
	name  string
	order int
}

func (p *tagProcessor) Process(text string) string { return text + "[" + p.name + "]" }
func (p *tagProcessor) Name() string                { return p.name }
func (p *tagProcessor) Order() int                  { return p.order }

func TestPipeline_RunsInOrder(t *testing.T) {
	p := NewPipeline()
	p.Add(&tagProcessor{name: "late", order: 50})
	p.Add(&tagProcessor{name: "early", order: 1})
	p.Add(&tagProcessor{name: "middle", order: 10})

	got := p.Process("x")
	if got != "x[early][middle][late]" {
		t.Errorf("unexpected order: %q", got)
	}

	names := p.List()
	want := []string{"early", "middle", "late"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, names)
	}
}

func TestPipeline_Empty(t *testing.T) {
	p := NewPipeline()
	if got := p.Process(" raw "); got != " raw " {
		t.Errorf("empty pipeline changed text: %q", got)
	}
	if len(p.List()) != 0 {
		t.Errorf("expected no processors, got %v", p.List())
	}
}

func TestWhitespaceNormalizer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"crlf", "a\r\nb\rc", "a\nb\nc"},
		{"spaces and tabs", "Coffee \t  15.00", "Coffee 15.00"},
		{"blank lines", "a\n\n\n\n\nb", "a\n\nb"},
		{"control chars", "\ufeffTOTAL\x00 9.90\x07", "TOTAL 9.90"},
		{"trim", "  \n hello \n ", "hello"},
	}

	n := NewWhitespaceNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Process(tt.input); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLineDeduplicator(t *testing.T) {
	d := NewLineDeduplicator()

	in := "KEDAI RUNCIT\nKedai Runcit\nMilo 4.50\n\n\nMilo 4.50\nTOTAL 4.50"
	want := "KEDAI RUNCIT\nMilo 4.50\n\n\nMilo 4.50\nTOTAL 4.50"
	if got := d.Process(in); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTruncator(t *testing.T) {
	t.Run("short text untouched", func(t *testing.T) {
		tr := NewTruncator(100)
		if got := tr.Process("short"); got != "short" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("breaks at word", func(t *testing.T) {
		tr := NewTruncator(13)
		if got := tr.Process("Coffee latte extra"); got != "Coffee latte" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("prefers newline", func(t *testing.T) {
		tr := NewTruncator(14)
		if got := tr.Process("Coffee\nlatte extra shot"); got != "Coffee" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("counts runes", func(t *testing.T) {
		tr := NewTruncator(3)
		if got := tr.Process("ŞÇÖÜ"); got != "ŞÇÖ" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("zero disables", func(t *testing.T) {
		tr := NewTruncator(0)
		if got := tr.Process("anything at all"); got != "anything at all" {
			t.Errorf("got %q", got)
		}
	})
}

func TestDefaultPipeline(t *testing.T) {
	if names := processorNames(DefaultPipeline(0)); names != "whitespace-normalizer,line-deduplicator" {
		t.Errorf("unexpected processors: %s", names)
	}
	if names := processorNames(DefaultPipeline(500)); names != "whitespace-normalizer,line-deduplicator,truncator" {
		t.Errorf("unexpected processors: %s", names)
	}

	got := DefaultPipeline(0).Process("  CAFE   X\r\nCAFE X\r\nCoffee\t15.00  \r\n")
	if got != "CAFE X\nCoffee 15.00" {
		t.Errorf("unexpected cleaned text %q", got)
	}
}

func processorNames(p *Pipeline) string {
	return strings.Join(p.List(), ",")
}
