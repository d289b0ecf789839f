// Package importer turns markdown documents into a subtree of records.
//
// A document becomes a folder named after its title. Headings nest folders
// by level. Paragraphs, list items and code blocks become extracts, and
// images become image records. Text wrapped in {{double braces}} is turned
// into a cloze over that text, and a paragraph of the form
//
//	Q: question
//	A: answer
//
// becomes an extract with a cloze over the answer. Extract names are derived
// from their content, so importing the same document twice yields the same
// IDs.
package importer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/knol"
	"github.com/conorfennell/neurapath/internal/tree"
)

// ErrInvalidRoot is returned for a root that is not a valid record ID.
var ErrInvalidRoot = errors.New("invalid import root")

// Importer parses markdown with goldmark.
type Importer struct {
	md goldmark.Markdown
}

// New creates an importer.
func New() *Importer {
	return &Importer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// ImportFile reads the file at path and imports it below root.
func (im *Importer) ImportFile(path, root string) ([]domain.Record, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return im.Import(content, filepath.Base(path), root)
}

// Import converts content into records below root. Parents are always
// returned before their children. An empty root imports at the top level.
func (im *Importer) Import(content []byte, filename, root string) ([]domain.Record, error) {
	if root != "" {
		for _, seg := range strings.Split(root, tree.Separator) {
			if seg == "" {
				return nil, fmt.Errorf("%w: %q", ErrInvalidRoot, root)
			}
		}
	}

	doc := im.md.Parser().Parse(text.NewReader(content))
	title, titleHeading := extractTitle(doc, content, filename)

	b := &builder{source: content, seen: map[string]bool{}}
	docID := tree.Join(root, segmentName(title))
	b.folder(docID)

	var stack []heading
	current := docID

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			if node == titleHeading {
				return ast.WalkSkipChildren, nil
			}
			for len(stack) > 0 && stack[len(stack)-1].level >= node.Level {
				stack = stack[:len(stack)-1]
			}
			parent := docID
			if len(stack) > 0 {
				parent = stack[len(stack)-1].id
			}
			id := tree.Join(parent, segmentName(textOf(node, content)))
			stack = append(stack, heading{level: node.Level, id: id})
			b.folder(id)
			current = id
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph, *ast.ListItem, *ast.TextBlock:
			b.images(current, node)
			b.block(current, textOf(node, content))
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock, *ast.CodeBlock:
			b.block(current, linesOf(node, content))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", filename, err)
	}

	return b.records, nil
}

type heading struct {
	level int
	id    string
}

type builder struct {
	source  []byte
	records []domain.Record
	seen    map[string]bool
}

func (b *builder) add(rec domain.Record) {
	if b.seen[rec.ID] {
		return
	}
	b.seen[rec.ID] = true
	b.records = append(b.records, rec)
}

func (b *builder) folder(id string) {
	b.add(domain.Record{ID: id, ContentType: domain.Folder})
}

// images adds an image record for every image below n.
func (b *builder) images(parent string, n ast.Node) {
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		img, ok := c.(*ast.Image)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		url := string(img.Destination)
		alt := textOf(img, b.source)
		b.add(domain.Record{
			ID:          tree.Join(parent, knol.Name("image", url)),
			ContentType: domain.Image,
			URL:         url,
			Content:     domain.TextContent(alt),
		})
		return ast.WalkSkipChildren, nil
	})
}

// block adds an extract for raw, plus cloze children for any marked spans.
func (b *builder) block(parent, raw string) {
	if strings.TrimSpace(raw) == "" {
		return
	}

	var plain string
	var clozes []domain.ClozeSpan
	var name string
	if c, ok := parseCard(raw); ok {
		plain, clozes = c.text()
		name = knol.Name(c.Question, c.Answer, c.Context)
	} else {
		plain, clozes = extractClozes(raw)
		name = knol.Name(plain)
	}

	id := tree.Join(parent, name)
	b.add(domain.Record{
		ID:          id,
		ContentType: domain.Extract,
		Content:     domain.TextContent(plain),
		Clozes:      clozes,
	})
	for _, c := range clozes {
		span := c.Span()
		b.add(domain.Record{
			ID:          tree.Join(id, knol.Name(c.Text, fmt.Sprint(c.StartOffset))),
			ContentType: domain.Cloze,
			Content:     domain.TextContent(c.Text),
			Span:        &span,
		})
	}
}

// extractClozes strips {{ }} markers from s. Offsets are in runes of the
// stripped text.
func extractClozes(s string) (string, []domain.ClozeSpan) {
	var out strings.Builder
	var spans []domain.ClozeSpan
	pos := 0
	for {
		open := strings.Index(s, "{{")
		if open < 0 {
			break
		}
		end := strings.Index(s[open+2:], "}}")
		if end < 0 {
			break
		}
		inner := s[open+2 : open+2+end]
		before := s[:open]
		out.WriteString(before)
		pos += len([]rune(before))

		if inner != "" {
			n := len([]rune(inner))
			spans = append(spans, domain.ClozeSpan{Text: inner, StartOffset: pos, StopOffset: pos + n})
			out.WriteString(inner)
			pos += n
		}
		s = s[open+2+end+2:]
	}
	out.WriteString(s)
	return out.String(), spans
}

// textOf flattens the inline text below n. Soft and hard line breaks become
// newlines; image alt text is left out.
func textOf(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Image:
			if c != n {
				return ast.WalkSkipChildren, nil
			}
		case *ast.Text:
			sb.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func linesOf(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// extractTitle returns the first level-1 heading, or a title built from the
// filename when there is none. The heading used is returned so the walk can
// skip it.
func extractTitle(doc ast.Node, source []byte, filename string) (string, *ast.Heading) {
	var found *ast.Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering && h.Level == 1 {
			found = h
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if found != nil {
		if title := textOf(found, source); title != "" {
			return title, found
		}
	}
	return titleFromFilename(filename), nil
}

func titleFromFilename(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)

	words := strings.Fields(name)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	if len(words) == 0 {
		return "Untitled"
	}
	return strings.Join(words, " ")
}

// segmentName makes heading text usable as a single path segment.
func segmentName(s string) string {
	name := strings.Join(strings.Fields(strings.ReplaceAll(s, tree.Separator, "-")), " ")
	if !tree.ValidName(name) {
		return knol.Name(s)
	}
	return name
}
