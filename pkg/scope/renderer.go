package scope

import (
	"image/color"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
)

var (
	gridColor   = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor  = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	markerColor = color.RGBA{R: 220, G: 60, B: 60, A: 255}
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	grid    *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// plotArea maps data coordinates into the widget.
type plotArea struct {
	x, y, w, h             float32
	xMin, xMax, yMin, yMax float64
}

func (p plotArea) pos(x, y float64) fyne.Position {
	return fyne.NewPos(
		p.x+float32((x-p.xMin)/(p.xMax-p.xMin))*p.w,
		p.y+p.h-float32((y-p.yMin)/(p.yMax-p.yMin))*p.h,
	)
}

// Refresh rebuilds every canvas object from the current data.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	traces := r.scope.traces
	markers := r.scope.markers
	xLabel, yLabel := r.scope.xLabel, r.scope.yLabel
	area := plotArea{
		xMin: r.scope.xMin, xMax: r.scope.xMax,
		yMin: r.scope.yMin, yMax: r.scope.yMax,
	}
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.grid}

	const marginLeft, marginRight, marginTop, marginBottom = 60, 20, 20, 40
	area.x, area.y = marginLeft, marginTop
	area.w = size.Width - marginLeft - marginRight
	area.h = size.Height - marginTop - marginBottom

	r.drawGrid(area, xLabel, yLabel)
	for _, tr := range traces {
		r.drawTrace(area, tr)
	}
	r.drawMarkers(area, markers)
	r.drawLegend(area, traces)
}

// drawGrid draws the oscilloscope-style grid.
func (r *scopeRenderer) drawGrid(a plotArea, xLabel, yLabel func(float64) string) {
	const numHLines, numVLines = 8, 10

	for i := range numHLines + 1 {
		y := a.y + float32(i)*a.h/numHLines
		r.line(gridColor, 1, fyne.NewPos(a.x, y), fyne.NewPos(a.x+a.w, y))

		value := a.yMax - float64(i)*(a.yMax-a.yMin)/numHLines
		r.text(yLabel(value), labelColor, 10, fyne.TextAlignTrailing, fyne.NewPos(a.x-5, y-6))
	}

	for i := range numVLines + 1 {
		x := a.x + float32(i)*a.w/numVLines
		r.line(gridColor, 1, fyne.NewPos(x, a.y), fyne.NewPos(x, a.y+a.h))

		value := a.xMin + float64(i)*(a.xMax-a.xMin)/numVLines
		r.text(xLabel(value), labelColor, 10, fyne.TextAlignCenter, fyne.NewPos(x-20, a.y+a.h+5))
	}
}

// drawTrace draws connected line segments.
func (r *scopeRenderer) drawTrace(a plotArea, tr Trace) {
	for i := 1; i < len(tr.X); i++ {
		r.line(tr.Color, 1.5, a.pos(tr.X[i-1], tr.Y[i-1]), a.pos(tr.X[i], tr.Y[i]))
	}
}

// drawMarkers draws labelled vertical lines for error events.
func (r *scopeRenderer) drawMarkers(a plotArea, markers []Marker) {
	for _, m := range markers {
		if m.X < a.xMin || m.X > a.xMax {
			continue
		}
		top := a.pos(m.X, a.yMax)
		r.line(markerColor, 1, top, fyne.NewPos(top.X, a.y+a.h))
		r.text(m.Label, markerColor, 10, fyne.TextAlignLeading, fyne.NewPos(top.X+3, a.y+2))
	}
}

func (r *scopeRenderer) drawLegend(a plotArea, traces []Trace) {
	for i, tr := range traces {
		r.text(tr.Name, tr.Color, 11, fyne.TextAlignLeading, fyne.NewPos(a.x+a.w-40, a.y+10+float32(i)*14))
	}
}

func (r *scopeRenderer) line(c color.Color, width float32, p1, p2 fyne.Position) {
	l := canvas.NewLine(c)
	l.Position1, l.Position2 = p1, p2
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *scopeRenderer) text(s string, c color.Color, size float32, align fyne.TextAlign, pos fyne.Position) {
	t := canvas.NewText(s, c)
	t.TextSize = size
	t.Alignment = align
	t.Move(pos)
	r.objects = append(r.objects, t)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "s"
}

func formatCounts(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func formatBin(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func formatDecibels(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "dB"
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
