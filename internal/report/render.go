package report

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"sitescore/internal/types"
)

// Page layout in millimetres.
const (
	pageMargin  = 20.0
	lineHeight  = 6.0
	cellPadding = 2.0
	listIndent  = 6.0
	bodySize    = 11.0
	codeSize    = 9.0
	bodyFamily  = "Arial"
	codeFamily  = "Courier"
)

type rgb struct{ r, g, b int }

var (
	colorText       = rgb{34, 34, 34}
	colorHeading    = rgb{51, 51, 51}
	colorBorder     = rgb{221, 221, 221}
	colorHeaderFill = rgb{244, 244, 244}
	colorStripeFill = rgb{249, 249, 249}
)

var headingSizes = map[int]float64{1: 18, 2: 15, 3: 13}

// Renderer converts GitHub-flavored Markdown to a PDF document.
type Renderer struct {
	md goldmark.Markdown

	// Compress enables stream compression in the output.
	Compress bool
	// Now stamps the document creation date.
	Now func() time.Time
}

// NewRenderer creates a Renderer with compression enabled.
func NewRenderer() *Renderer {
	return &Renderer{
		md:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
		Compress: true,
		Now:      time.Now,
	}
}

// Render lays out markdown on A4 pages: headings, paragraphs, lists, code
// blocks and bordered tables with a shaded header row and striped body rows.
func (r *Renderer) Render(markdown string) ([]byte, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, types.NewAppError(types.ErrCodeInternalRender, "summary is empty", nil)
	}
	src := []byte(markdown)
	doc := r.md.Parser().Parse(text.NewReader(src))

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.Compress)
	pdf.SetTitle("Sustainability Report", true)
	pdf.SetCreator("sitescore", true)
	pdf.SetCreationDate(r.Now())
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AddPage()

	w := &pdfWriter{
		pdf:       pdf,
		src:       src,
		translate: pdf.UnicodeTranslatorFromDescriptor(""),
	}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		w.block(n, 0)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalRender, "rendering report failed: "+err.Error(), err)
	}
	return buf.Bytes(), nil
}

type span struct {
	text  string
	style string
	code  bool
}

type pdfWriter struct {
	pdf       *fpdf.Fpdf
	src       []byte
	translate func(string) string
}

func (w *pdfWriter) setColor(c rgb) {
	w.pdf.SetTextColor(c.r, c.g, c.b)
}

func (w *pdfWriter) block(n ast.Node, indent float64) {
	switch n := n.(type) {
	case *ast.Heading:
		w.heading(n)
	case *ast.Paragraph, *ast.TextBlock:
		w.paragraph(n, indent)
		w.pdf.Ln(2)
	case *ast.List:
		w.list(n, indent)
		w.pdf.Ln(2)
	case *ast.FencedCodeBlock:
		w.code(n.Lines())
	case *ast.CodeBlock:
		w.code(n.Lines())
	case *ast.Blockquote:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			w.block(c, indent+listIndent)
		}
	case *ast.ThematicBreak:
		left, _, right, _ := w.pdf.GetMargins()
		width, _ := w.pdf.GetPageSize()
		y := w.pdf.GetY() + 2
		w.pdf.SetDrawColor(colorBorder.r, colorBorder.g, colorBorder.b)
		w.pdf.Line(left, y, width-right, y)
		w.pdf.Ln(5)
	case *east.Table:
		w.table(n)
	}
}

func (w *pdfWriter) heading(h *ast.Heading) {
	size, ok := headingSizes[h.Level]
	if !ok {
		size = 12
	}
	if h.Level == 2 {
		w.pdf.Ln(4)
	}
	w.pdf.SetFont(bodyFamily, "B", size)
	w.setColor(colorHeading)
	w.pdf.MultiCell(0, size*0.5, w.translate(plain(w.spans(h))), "", "L", false)
	w.pdf.Ln(2)
}

func (w *pdfWriter) paragraph(n ast.Node, indent float64) {
	left, _, _, _ := w.pdf.GetMargins()
	w.pdf.SetLeftMargin(pageMargin + indent)
	if w.pdf.GetX() < pageMargin+indent {
		w.pdf.SetX(pageMargin + indent)
	}
	w.writeSpans(w.spans(n))
	w.pdf.Ln(lineHeight)
	w.pdf.SetLeftMargin(left)
}

func (w *pdfWriter) writeSpans(spans []span) {
	w.setColor(colorText)
	for _, s := range spans {
		if s.code {
			w.pdf.SetFont(codeFamily, "", codeSize+1)
		} else {
			w.pdf.SetFont(bodyFamily, s.style, bodySize)
		}
		w.pdf.Write(lineHeight, w.translate(s.text))
	}
}

func (w *pdfWriter) list(l *ast.List, indent float64) {
	index := l.Start
	if index == 0 {
		index = 1
	}
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "-"
		if l.IsOrdered() {
			marker = strconv.Itoa(index) + "."
			index++
		}
		w.pdf.SetX(pageMargin + indent)
		w.pdf.SetFont(bodyFamily, "", bodySize)
		w.setColor(colorText)
		w.pdf.CellFormat(listIndent, lineHeight, marker, "", 0, "L", false, 0, "")

		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if nested, ok := c.(*ast.List); ok {
				w.list(nested, indent+listIndent)
				continue
			}
			if !first {
				w.pdf.SetX(pageMargin + indent + listIndent)
			}
			w.block(c, indent+listIndent)
			first = false
		}
	}
}

func (w *pdfWriter) code(lines *text.Segments) {
	var sb strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(w.src))
	}
	w.pdf.SetFont(codeFamily, "", codeSize)
	w.setColor(colorText)
	w.pdf.SetFillColor(colorHeaderFill.r, colorHeaderFill.g, colorHeaderFill.b)
	w.pdf.MultiCell(0, 4.5, w.translate(clean(strings.TrimRight(sb.String(), "\n"))), "", "L", true)
	w.pdf.Ln(3)
}

type tableCell struct {
	text  string
	align string
}

func (w *pdfWriter) table(t *east.Table) {
	var header []tableCell
	var rows [][]tableCell
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		var cells []tableCell
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			cell, ok := c.(*east.TableCell)
			if !ok {
				continue
			}
			cells = append(cells, tableCell{text: w.translate(plain(w.spans(cell))), align: cellAlign(cell.Alignment)})
		}
		if _, ok := r.(*east.TableHeader); ok {
			header = cells
		} else {
			rows = append(rows, cells)
		}
	}

	cols := len(header)
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return
	}
	width, _ := w.pdf.GetPageSize()
	colWidth := (width - 2*pageMargin) / float64(cols)

	w.pdf.Ln(2)
	w.pdf.SetDrawColor(colorBorder.r, colorBorder.g, colorBorder.b)
	w.pdf.SetLineWidth(0.2)
	w.setColor(colorText)
	if header != nil {
		w.tableRow(header, cols, colWidth, "B", &colorHeaderFill)
	}
	for i, row := range rows {
		var fill *rgb
		if i%2 == 1 {
			fill = &colorStripeFill
		}
		w.tableRow(row, cols, colWidth, "", fill)
	}
	w.pdf.Ln(4)
}

func (w *pdfWriter) tableRow(cells []tableCell, cols int, colWidth float64, style string, fill *rgb) {
	w.pdf.SetFont(bodyFamily, style, bodySize-1)
	textWidth := colWidth - 2*cellPadding
	lineH := lineHeight - 1

	// Cell text is already in the font's code page, so measure bytes, not runes.
	lines := 1
	for _, c := range cells {
		lines = max(lines, len(w.pdf.SplitLines([]byte(c.text), textWidth)))
	}
	rowHeight := float64(lines)*lineH + 2*cellPadding

	_, pageHeight := w.pdf.GetPageSize()
	if w.pdf.GetY()+rowHeight > pageHeight-pageMargin {
		w.pdf.AddPage()
	}

	y := w.pdf.GetY()
	rectStyle := "D"
	if fill != nil {
		w.pdf.SetFillColor(fill.r, fill.g, fill.b)
		rectStyle = "FD"
	}
	for i := 0; i < cols; i++ {
		x := pageMargin + float64(i)*colWidth
		w.pdf.Rect(x, y, colWidth, rowHeight, rectStyle)
		if i >= len(cells) {
			continue
		}
		w.pdf.SetXY(x+cellPadding, y+cellPadding)
		w.pdf.MultiCell(textWidth, lineH, cells[i].text, "", cells[i].align, false)
	}
	w.pdf.SetXY(pageMargin, y+rowHeight)
}

func cellAlign(a east.Alignment) string {
	switch a {
	case east.AlignRight:
		return "R"
	case east.AlignCenter:
		return "C"
	default:
		return "L"
	}
}

// spans flattens the inline children of n into styled text runs.
func (w *pdfWriter) spans(n ast.Node) []span {
	var out []span
	w.collect(n, "", false, &out)
	return out
}

func (w *pdfWriter) collect(n ast.Node, style string, code bool, out *[]span) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			s := string(c.Segment.Value(w.src))
			if c.SoftLineBreak() {
				s += " "
			}
			if c.HardLineBreak() {
				s += "\n"
			}
			*out = append(*out, span{text: clean(s), style: style, code: code})
		case *ast.String:
			*out = append(*out, span{text: clean(string(c.Value)), style: style, code: code})
		case *ast.AutoLink:
			*out = append(*out, span{text: string(c.Label(w.src)), style: style, code: code})
		case *ast.Emphasis:
			next := style
			if c.Level >= 2 {
				next = addStyle(next, "B")
			} else {
				next = addStyle(next, "I")
			}
			w.collect(c, next, code, out)
		case *ast.CodeSpan:
			w.collect(c, style, true, out)
		case *ast.RawHTML:
		default:
			w.collect(c, style, code, out)
		}
	}
}

func addStyle(style, s string) string {
	if strings.Contains(style, s) {
		return style
	}
	return style + s
}

func plain(spans []span) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(s.text)
	}
	return strings.TrimSpace(sb.String())
}

var glyphReplacer = strings.NewReplacer(
	"→", "->",
	"←", "<-",
	"≥", ">=",
	"≤", "<=",
	"✓", "",
)

// clean maps glyphs the core fonts cannot draw to ASCII and drops pictographs.
func clean(s string) string {
	s = glyphReplacer.Replace(s)
	return strings.Map(func(r rune) rune {
		if r >= 0x2190 && r != 0x2122 {
			return -1
		}
		return r
	}, s)
}
