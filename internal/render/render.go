// Package render turns chapter markdown into HTML and counts its words.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var markdownPunct = regexp.MustCompile("[#*_`\\[\\]()>]")

type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown builds a renderer with GFM, footnotes, definition lists and heading
// anchors. Raw HTML in the source is escaped.
func NewMarkdown() *Markdown {
	return &Markdown{md: goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Footnote, extension.DefinitionList),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)}
}

func (m *Markdown) Render(text string) (string, int, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		return "", 0, fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), WordCount(text), nil
}

// WordCount counts whitespace separated tokens once markdown punctuation is removed.
func WordCount(text string) int {
	return len(strings.Fields(markdownPunct.ReplaceAllString(text, "")))
}
