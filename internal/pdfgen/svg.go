package pdfgen

import (
	"fmt"
	"strconv"
	"strings"
)

// svgWriter emits canonical SVG: one element per line, attributes in a
// fixed order, numbers formatted by num. The transcoder parses this exact
// shape back out, so renderer and transcoder must move together.
type svgWriter struct {
	b strings.Builder
}

func (w *svgWriter) String() string { return w.b.String() }

func (w *svgWriter) openSVG(width, height float64) {
	fmt.Fprintf(&w.b, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		num(width), num(height), num(width), num(height))
	w.b.WriteByte('\n')
}

func (w *svgWriter) closeSVG() {
	w.b.WriteString("</svg>\n")
}

func (w *svgWriter) fillRect(x, y, wd, ht float64, fill string) {
	fmt.Fprintf(&w.b, `<rect x="%s" y="%s" width="%s" height="%s" fill="%s"/>`+"\n",
		num(x), num(y), num(wd), num(ht), fill)
}

func (w *svgWriter) fillRectO(x, y, wd, ht float64, fill string, opacity float64) {
	fmt.Fprintf(&w.b, `<rect x="%s" y="%s" width="%s" height="%s" fill="%s" fill-opacity="%s"/>`+"\n",
		num(x), num(y), num(wd), num(ht), fill, num(opacity))
}

func (w *svgWriter) roundedRect(x, y, wd, ht, rx float64, fill string) {
	fmt.Fprintf(&w.b, `<rect x="%s" y="%s" width="%s" height="%s" rx="%s" fill="%s"/>`+"\n",
		num(x), num(y), num(wd), num(ht), num(rx), fill)
}

func (w *svgWriter) strokeRect(x, y, wd, ht float64, stroke string, sw float64) {
	fmt.Fprintf(&w.b, `<rect x="%s" y="%s" width="%s" height="%s" fill="none" stroke="%s" stroke-width="%s"/>`+"\n",
		num(x), num(y), num(wd), num(ht), stroke, num(sw))
}

func (w *svgWriter) circle(cx, cy, r float64, fill, stroke string, sw float64) {
	fmt.Fprintf(&w.b, `<circle cx="%s" cy="%s" r="%s" fill="%s"`, num(cx), num(cy), num(r), fill)
	if stroke != "" {
		fmt.Fprintf(&w.b, ` stroke="%s" stroke-width="%s"`, stroke, num(sw))
	}
	w.b.WriteString("/>\n")
}

func (w *svgWriter) path(d, fill string) {
	fmt.Fprintf(&w.b, `<path d="%s" fill="%s"/>`+"\n", d, fill)
}

// textStyle carries the optional text attributes. Zero values mean the
// attribute is omitted; rotation is degrees clockwise about the anchor.
type textStyle struct {
	size    float64
	fill    string
	font    string
	bold    bool
	anchor  string
	opacity float64
	rotate  float64
}

func (w *svgWriter) text(x, y float64, st textStyle, content string) {
	fmt.Fprintf(&w.b, `<text x="%s" y="%s" font-family="%s" font-size="%s"`,
		num(x), num(y), st.font, num(st.size))
	if st.bold {
		w.b.WriteString(` font-weight="bold"`)
	}
	fmt.Fprintf(&w.b, ` fill="%s"`, st.fill)
	if st.anchor != "" {
		fmt.Fprintf(&w.b, ` text-anchor="%s"`, st.anchor)
	}
	if st.opacity > 0 && st.opacity < 1 {
		fmt.Fprintf(&w.b, ` opacity="%s"`, num(st.opacity))
	}
	if st.rotate != 0 {
		fmt.Fprintf(&w.b, ` transform="rotate(%s %s %s)"`, num(st.rotate), num(x), num(y))
	}
	fmt.Fprintf(&w.b, `>%s</text>`+"\n", esc(content))
}

// num formats coordinates with at most two decimals and no trailing
// zeros, so the same geometry always serializes to the same bytes.
func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func esc(s string) string { return xmlEscaper.Replace(s) }
