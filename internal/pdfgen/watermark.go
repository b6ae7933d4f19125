package pdfgen

// WatermarkText is tiled across free-tier renders. Paid renders carry
// only the footer credit.
const WatermarkText = "mintcal preview"

const footerText = "Printed with mintcal"

const (
	watermarkSize    = 46.0
	watermarkOpacity = 0.08
	watermarkAngle   = -30.0
	watermarkStepX   = 340.0
	watermarkStepY   = 240.0
)

// tiledWatermark lays the mark on a staggered diagonal grid sized from the
// page, so every strip of a large page crosses several tiles.
func tiledWatermark(w *svgWriter, width, height float64, ink, font string) {
	for row := 0; ; row++ {
		y := 60 + float64(row)*watermarkStepY
		if y > height+watermarkSize {
			break
		}
		offset := 0.0
		if row%2 == 1 {
			offset = watermarkStepX / 2
		}
		for col := 0; ; col++ {
			x := -80 + offset + float64(col)*watermarkStepX
			if x > width {
				break
			}
			w.text(x, y, textStyle{
				size:    watermarkSize,
				fill:    ink,
				font:    font,
				bold:    true,
				opacity: watermarkOpacity,
				rotate:  watermarkAngle,
			}, WatermarkText)
		}
	}
}

func footerLine(w *svgWriter, width, height float64, muted, font string) {
	w.text(width-pageMargin, height-14, textStyle{size: 8, fill: muted, font: font, anchor: "end"}, footerText)
}
