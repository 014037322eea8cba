package pdf

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ReportWriter renders a markdown summary into a printable PDF.
type ReportWriter struct {
	logger arbor.ILogger
}

// NewReportWriter creates a new report writer
func NewReportWriter(logger arbor.ILogger) *ReportWriter {
	return &ReportWriter{logger: logger}
}

// Render converts markdown to PDF bytes. The title becomes the document
// heading when the markdown does not start with one of its own.
func (w *ReportWriter) Render(markdown, title string) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(15, 15, 15)
	doc.SetAutoPageBreak(true, 15)
	doc.SetTitle(title, true)
	doc.AddPage()
	doc.SetFont("Arial", "", 10)

	source := []byte(markdown)
	root := goldmark.New().Parser().Parse(text.NewReader(source))

	if title != "" && !startsWithHeading(root) {
		doc.SetFont("Arial", "B", 15)
		doc.MultiCell(0, 7, title, "", "L", false)
		doc.Ln(4)
		doc.SetFont("Arial", "", 10)
	}

	r := &reportRenderer{doc: doc, source: source, font: "Arial", size: 10}
	if err := ast.Walk(root, r.walk); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	w.logger.Debug().
		Str("title", title).
		Int("bytes", buf.Len()).
		Msg("Rendered summary report")
	return buf.Bytes(), nil
}

func startsWithHeading(root ast.Node) bool {
	first := root.FirstChild()
	if first == nil {
		return false
	}
	_, ok := first.(*ast.Heading)
	return ok
}

type reportRenderer struct {
	doc    *fpdf.Fpdf
	source []byte
	font   string
	size   float64
	bold   bool
	italic bool
	inList int
}

func (r *reportRenderer) resetFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.doc.SetFont(r.font, style, r.size)
}

func (r *reportRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.doc.Ln(5)
			size := 14.0 - float64(node.Level)
			if size < 10 {
				size = 10
			}
			r.doc.SetFont(r.font, "B", size)
		} else {
			r.doc.Ln(6)
			r.resetFont()
		}

	case *ast.Paragraph:
		if !entering {
			r.doc.Ln(6)
			if r.inList == 0 {
				r.doc.Ln(2)
			}
		}

	case *ast.Text:
		if entering {
			r.doc.Write(5, string(node.Text(r.source)))
			if node.SoftLineBreak() || node.HardLineBreak() {
				r.doc.Write(5, " ")
			}
		}

	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.resetFont()

	case *ast.CodeSpan:
		if entering {
			r.doc.SetFont("Courier", "", r.size)
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					r.doc.Write(5, string(t.Segment.Value(r.source)))
				}
			}
		} else {
			r.resetFont()
		}
		return ast.WalkSkipChildren, nil

	case *ast.FencedCodeBlock:
		if entering {
			r.writeCodeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if entering {
			r.writeCodeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.List:
		if entering {
			r.inList++
		} else {
			r.inList--
			if r.inList == 0 {
				r.doc.Ln(2)
			}
		}

	case *ast.ListItem:
		if entering {
			r.doc.Ln(5)
			r.doc.SetX(15 + float64(r.inList)*5)
			r.doc.Write(5, "- ")
		}

	case *ast.ThematicBreak:
		if entering {
			r.doc.Ln(3)
			r.doc.Line(15, r.doc.GetY(), 195, r.doc.GetY())
			r.doc.Ln(3)
		}
	}
	return ast.WalkContinue, nil
}

func (r *reportRenderer) writeCodeBlock(lines *text.Segments) {
	r.doc.Ln(2)
	r.doc.SetFont("Courier", "", 9)
	r.doc.SetFillColor(245, 245, 245)
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		r.doc.MultiCell(0, 4.5, string(segment.Value(r.source)), "", "L", true)
	}
	r.doc.SetFillColor(255, 255, 255)
	r.resetFont()
	r.doc.Ln(2)
}
