package extractors

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

// PlaintextExtractor passes text files through with line endings cleaned up.
type PlaintextExtractor struct{}

func (e *PlaintextExtractor) Extract(ctx context.Context, content []byte, mimeType string) (*domain.ExtractedText, error) {
	text := strings.ToValidUTF8(string(content), string(utf8.RuneError))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return &domain.ExtractedText{
		Text:       strings.TrimSpace(text),
		Engine:     e.Name(),
		Confidence: 1,
		PageCount:  1,
	}, nil
}

func (e *PlaintextExtractor) SupportedTypes() []string {
	return []string{"text/*"}
}

func (e *PlaintextExtractor) Priority() int {
	return 1
}

func (e *PlaintextExtractor) Name() string {
	return "plain_text"
}

// HTMLExtractor strips markup from HTML receipts, such as e-mailed invoices.
type HTMLExtractor struct{}

func (e *HTMLExtractor) Extract(ctx context.Context, content []byte, mimeType string) (*domain.ExtractedText, error) {
	text := string(content)

	text = removeHTMLBlocks(text, "script")
	text = removeHTMLBlocks(text, "style")
	text = stripHTMLTags(text)
	text = decodeHTMLEntities(text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return &domain.ExtractedText{
		Text:       strings.TrimSpace(text),
		Engine:     e.Name(),
		Confidence: 1,
		PageCount:  1,
	}, nil
}

func (e *HTMLExtractor) SupportedTypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

func (e *HTMLExtractor) Priority() int {
	return 50
}

func (e *HTMLExtractor) Name() string {
	return "html_text"
}

func removeHTMLBlocks(content, tagName string) string {
	result := content
	startTag := "<" + strings.ToLower(tagName)
	endTag := "</" + strings.ToLower(tagName) + ">"

	for {
		lower := strings.ToLower(result)
		startIdx := strings.Index(lower, startTag)
		if startIdx == -1 {
			break
		}
		endIdx := strings.Index(lower[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		result = result[:startIdx] + result[startIdx+endIdx+len(endTag):]
	}
	return result
}

func stripHTMLTags(content string) string {
	var result strings.Builder
	inTag := false

	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			result.WriteRune(' ')
		case !inTag:
			result.WriteRune(r)
		}
	}
	return result.String()
}

var htmlEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", "\"",
	"&apos;", "'",
	"&#39;", "'",
	"&times;", "x",
)

func decodeHTMLEntities(content string) string {
	return htmlEntities.Replace(content)
}
