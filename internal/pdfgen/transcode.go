package pdfgen

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/mintcal/mintcal/internal/domain"
)

// DefaultMaxStripBytes bounds the RGBA buffer a single raster strip may
// occupy. A 36" page at 300 DPI is ~298 MB as one RGBA plane; strips keep
// the working set near this bound instead. The scanner keeps a float32
// coverage plane of the same pixel count, so peak memory is about twice
// this figure.
const DefaultMaxStripBytes = 64 << 20

// ErrRasterBudget reports a page whose raster rows are too wide to fit
// even a one-row strip inside the memory budget.
var ErrRasterBudget = errors.New("raster exceeds memory budget")

// pdfEpoch pins the PDF metadata dates. With the dates pinned the output
// is a pure function of the SVG text and the page geometry.
var pdfEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Transcoder converts canonical renderer SVG into a print-size PDF.
//
// Shapes are rasterized in horizontal strips and embedded as images; text
// elements are parsed back out of the SVG and drawn as real PDF text, so
// digits and labels stay vector-sharp at print size. The split preserves
// z-order because the renderer never paints a shape over text.
type Transcoder struct {
	// MaxStripBytes bounds one strip's RGBA allocation. Zero selects
	// DefaultMaxStripBytes.
	MaxStripBytes int
}

// Transcode renders svg onto a single PDF page of the template's physical
// size. The context is checked between strips; rasterizing a large page
// is the slow part of a render job and cancellation should not wait for
// it. Output bytes are deterministic for identical inputs.
func (t Transcoder) Transcode(ctx context.Context, svg string, page PageSpec) ([]byte, error) {
	plan, err := planStrips(page, t.maxStripBytes())
	if err != nil {
		return nil, err
	}

	// Text is skipped here on purpose: the raster library does not
	// support text elements, and the vector pass below draws them.
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("op=pdfgen.transcode: parse svg: %w", err)
	}
	texts, err := extractText(svg)
	if err != nil {
		return nil, fmt.Errorf("op=pdfgen.transcode: extract text: %w", err)
	}

	widthPt := page.WidthIn * svgUnitsPerInch
	heightPt := page.HeightIn * svgUnitsPerInch
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: widthPt, Ht: heightPt},
	})
	pdf.SetCreationDate(pdfEpoch)
	pdf.SetModificationDate(pdfEpoch)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	buf := image.NewRGBA(image.Rect(0, 0, plan.pxWidth, plan.stripHeight))
	ptPerPx := svgUnitsPerInch / float64(page.DPI)
	for i := 0; i < plan.strips; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("op=pdfgen.transcode: %w", err)
		}
		y0 := i * plan.stripHeight
		h := plan.stripHeight
		if y0+h > plan.pxHeight {
			h = plan.pxHeight - y0
		}
		clear(buf.Pix)
		strip := buf
		if h != plan.stripHeight {
			strip = buf.SubImage(image.Rect(0, 0, plan.pxWidth, h)).(*image.RGBA)
		}
		scanner := rasterx.NewScannerGV(plan.pxWidth, h, strip, strip.Bounds())
		raster := rasterx.NewDasher(plan.pxWidth, h, scanner)
		// Target the full page shifted up by the strip offset; the
		// scanner clips everything outside this strip's rows.
		icon.SetTarget(0, float64(-y0), float64(plan.pxWidth), float64(plan.pxHeight))
		icon.Draw(raster, 1.0)

		var enc bytes.Buffer
		if err := png.Encode(&enc, strip); err != nil {
			return nil, fmt.Errorf("op=pdfgen.transcode: encode strip %d: %w", i, err)
		}
		name := fmt.Sprintf("strip-%d", i)
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, &enc)
		pdf.ImageOptions(name, 0, float64(y0)*ptPerPx, widthPt, float64(h)*ptPerPx, false, opts, 0, "")
	}

	// Core fonts take cp1252, so user-entered labels go through the
	// translator rather than straight into the content stream.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, tx := range texts {
		drawText(pdf, tx, tr)
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("op=pdfgen.transcode: write pdf: %w", err)
	}
	return out.Bytes(), nil
}

func (t Transcoder) maxStripBytes() int {
	if t.MaxStripBytes > 0 {
		return t.MaxStripBytes
	}
	return DefaultMaxStripBytes
}

// stripPlan is the raster geometry for one page: full pixel dimensions
// plus the strip height that keeps one strip inside the byte budget.
type stripPlan struct {
	pxWidth     int
	pxHeight    int
	stripHeight int
	strips      int
}

func planStrips(page PageSpec, maxStripBytes int) (stripPlan, error) {
	if page.WidthIn <= 0 || page.HeightIn <= 0 || page.DPI <= 0 {
		return stripPlan{}, fmt.Errorf("op=pdfgen.transcode: degenerate page %.2fx%.2f at %d dpi: %w",
			page.WidthIn, page.HeightIn, page.DPI, domain.ErrInvalidArgument)
	}
	pxW := int(math.Round(page.WidthIn * float64(page.DPI)))
	pxH := int(math.Round(page.HeightIn * float64(page.DPI)))
	rowBytes := pxW * 4
	if rowBytes > maxStripBytes {
		return stripPlan{}, fmt.Errorf("op=pdfgen.transcode: %dpx rows need %d bytes per strip row, budget %d: %w",
			pxW, rowBytes, maxStripBytes, ErrRasterBudget)
	}
	stripH := maxStripBytes / rowBytes
	if stripH > pxH {
		stripH = pxH
	}
	return stripPlan{
		pxWidth:     pxW,
		pxHeight:    pxH,
		stripHeight: stripH,
		strips:      (pxH + stripH - 1) / stripH,
	}, nil
}

// svgText mirrors the renderer's text element. Attribute names here and
// in svgWriter.text must stay in lockstep.
type svgText struct {
	X          float64 `xml:"x,attr"`
	Y          float64 `xml:"y,attr"`
	FontFamily string  `xml:"font-family,attr"`
	FontSize   float64 `xml:"font-size,attr"`
	FontWeight string  `xml:"font-weight,attr"`
	Fill       string  `xml:"fill,attr"`
	Anchor     string  `xml:"text-anchor,attr"`
	Opacity    float64 `xml:"opacity,attr"`
	Transform  string  `xml:"transform,attr"`
	Content    string  `xml:",chardata"`
}

// extractText pulls every text element out of the SVG in document order,
// which is also paint order.
func extractText(svg string) ([]svgText, error) {
	dec := xml.NewDecoder(strings.NewReader(svg))
	var out []svgText
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "text" {
			continue
		}
		t := svgText{Opacity: 1}
		if err := dec.DecodeElement(&t, &se); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
}

func drawText(pdf *fpdf.Fpdf, t svgText, tr func(string) string) {
	style := ""
	if t.FontWeight == "bold" {
		style = "B"
	}
	pdf.SetFont(coreFont(t.FontFamily), style, t.FontSize)
	r, g, b := hexRGB(t.Fill)
	pdf.SetTextColor(r, g, b)
	if t.Opacity != 1 {
		pdf.SetAlpha(t.Opacity, "Normal")
		defer pdf.SetAlpha(1, "Normal")
	}

	content := tr(t.Content)
	x := t.X
	switch t.Anchor {
	case "middle":
		x -= pdf.GetStringWidth(content) / 2
	case "end":
		x -= pdf.GetStringWidth(content)
	}

	if angle, cx, cy, ok := parseRotate(t.Transform); ok {
		pdf.TransformBegin()
		// SVG rotates clockwise for positive angles, fpdf the other way.
		pdf.TransformRotate(-angle, cx, cy)
		pdf.Text(x, t.Y, content)
		pdf.TransformEnd()
		return
	}
	pdf.Text(x, t.Y, content)
}

// parseRotate reads the renderer's transform attribute, always of the
// form rotate(angle cx cy).
func parseRotate(s string) (angle, cx, cy float64, ok bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "rotate(") || !strings.HasSuffix(s, ")") {
		return 0, 0, 0, false
	}
	fields := strings.Fields(s[len("rotate(") : len(s)-1])
	if len(fields) != 3 {
		return 0, 0, 0, false
	}
	vals := make([]float64, 3)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, 0, 0, false
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], true
}

func coreFont(family string) string {
	switch strings.ToLower(family) {
	case "times", "times new roman", "serif":
		return "Times"
	case "courier", "monospace":
		return "Courier"
	default:
		return "Helvetica"
	}
}

func hexRGB(c string) (int, int, int) {
	if len(c) != 7 || c[0] != '#' {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(c[1:], 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16), int(v >> 8 & 0xff), int(v & 0xff)
}
