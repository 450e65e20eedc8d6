// Package parser turns ingestible files into plain text.
package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Func extracts text from raw file content.
type Func func(content []byte) (string, error)

// Parser dispatches on file extension.
type Parser struct {
	formats map[string]Func
}

// New returns a parser for .txt, .md, .html and .htm files.
func New() *Parser {
	p := &Parser{formats: make(map[string]Func)}
	p.formats[".txt"] = parsePlain
	p.formats[".md"] = parsePlain
	p.formats[".html"] = parseHTML
	p.formats[".htm"] = parseHTML
	return p
}

// Supports reports whether filename has a known extension.
func (p *Parser) Supports(filename string) bool {
	_, ok := p.formats[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Parse extracts text from content according to the extension of filename.
func (p *Parser) Parse(filename string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fn, ok := p.formats[ext]
	if !ok {
		return "", fmt.Errorf("unsupported format %q", ext)
	}
	text, err := fn(content)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", filename, err)
	}
	return text, nil
}

func parsePlain(content []byte) (string, error) { return string(content), nil }

// blockSelector lists the elements whose text becomes one line each.
const blockSelector = "title, h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote"

func parseHTML(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()
	var parts []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// An enclosing block already contributed this text.
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return strings.Join(strings.Fields(doc.Text()), " "), nil
	}
	return strings.Join(parts, "\n"), nil
}
