package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"analytics-rag/internal/models"
)

func parseText(f File) ([]models.Record, error) {
	if !utf8.Valid(f.Data) {
		return nil, fmt.Errorf("%s is not valid UTF-8", f.Name)
	}
	return []models.Record{{Content: string(f.Data), Metadata: sourceMetadata(f.Name)}}, nil
}

// parseMarkdown keeps the raw markdown as content and records the first
// heading as the title.
func parseMarkdown(f File) ([]models.Record, error) {
	records, err := parseText(f)
	if err != nil {
		return nil, err
	}
	if title := markdownTitle(f.Data); title != "" {
		records[0].Metadata[models.MetaTitle] = title
	}
	return records, nil
}

func markdownTitle(source []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(source))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			title = strings.TrimSpace(nodeText(h, source))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		default:
			b.WriteString(nodeText(c, source))
		}
	}
	return b.String()
}
