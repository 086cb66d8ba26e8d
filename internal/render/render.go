// Package render draws PNG plots of a tour over its map and of the best
// distance history of a search. It only reads what it is given.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math/big"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/copyleftdev/tourga/internal/optimization/geography"
)

var (
	// ErrEmptyTour is returned when there is no route to draw.
	ErrEmptyTour = errors.New("render: tour is empty")
	// ErrEmptyHistory is returned when there is no history to draw.
	ErrEmptyHistory = errors.New("render: history is empty")
)

var (
	routeColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	locationColor = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	homeColor     = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Options controls the size of the rendered image.
type Options struct {
	Width  vg.Length
	Height vg.Length
	// Map bounds; zero values fit the axes to the points
	MapWidth  float64
	MapHeight float64
}

// DefaultOptions returns a 6x6 inch image over a 100x100 map.
func DefaultOptions() Options {
	return Options{
		Width:     6 * vg.Inch,
		Height:    6 * vg.Inch,
		MapWidth:  100,
		MapHeight: 100,
	}
}

// TourPlot builds a plot of every location of geo, labelled by name, and of
// the closed route through tour.
func TourPlot(geo *geography.Geography, tour []geography.Point, distance float64, opts Options) (*plot.Plot, error) {
	if len(tour) == 0 {
		return nil, ErrEmptyTour
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Best tour: %.2f (%s possible routes)", distance, formatCount(geo.NumPossibleSolutions()))
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	if opts.MapWidth > 0 {
		p.X.Min, p.X.Max = 0, opts.MapWidth
	}
	if opts.MapHeight > 0 {
		p.Y.Min, p.Y.Max = 0, opts.MapHeight
	}

	route, err := plotter.NewLine(pointsXY(tour))
	if err != nil {
		return nil, err
	}
	route.LineStyle.Color = routeColor
	route.LineStyle.Width = vg.Points(1.5)

	locations, err := plotter.NewScatter(pointsXY(geo.Points()))
	if err != nil {
		return nil, err
	}
	locations.GlyphStyle.Color = locationColor
	locations.GlyphStyle.Shape = draw.CircleGlyph{}
	locations.GlyphStyle.Radius = vg.Points(3)

	home, err := plotter.NewScatter(pointsXY([]geography.Point{geo.Home()}))
	if err != nil {
		return nil, err
	}
	home.GlyphStyle.Color = homeColor
	home.GlyphStyle.Shape = draw.BoxGlyph{}
	home.GlyphStyle.Radius = vg.Points(4)

	all := append([]geography.Point{geo.Home()}, geo.Points()...)
	names := make([]string, len(all))
	for i, pt := range all {
		names[i] = pt.Name
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: pointsXY(all), Labels: names})
	if err != nil {
		return nil, err
	}
	labels.Offset = vg.Point{X: vg.Points(4), Y: vg.Points(4)}

	p.Add(route, locations, home, labels)
	p.Legend.Add("route", route)
	p.Legend.Add(geo.Home().Name, home)
	p.Legend.Top = true
	return p, nil
}

// HistoryPlot builds a plot of the best distance per generation.
func HistoryPlot(history []float64, title string) (*plot.Plot, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Best distance"

	pts := make(plotter.XYs, len(history))
	for i, d := range history {
		pts[i].X = float64(i)
		pts[i].Y = d
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.LineStyle.Color = routeColor

	p.Add(line, plotter.NewGrid())
	p.Legend.Add("best", line)
	p.Legend.Top = true
	return p, nil
}

// WritePNG encodes p as a PNG image.
func WritePNG(w io.Writer, p *plot.Plot, opts Options) error {
	wt, err := p.WriterTo(opts.Width, opts.Height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// Save writes p to path; the format follows the file extension.
func Save(p *plot.Plot, path string, opts Options) error {
	return p.Save(opts.Width, opts.Height, path)
}

// Tour writes the PNG of a tour plot to w.
func Tour(w io.Writer, geo *geography.Geography, tour []geography.Point, distance float64, opts Options) error {
	p, err := TourPlot(geo, tour, distance, opts)
	if err != nil {
		return err
	}
	return WritePNG(w, p, opts)
}

func pointsXY(points []geography.Point) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = pt.X
		xys[i].Y = pt.Y
	}
	return xys
}

// formatCount prints large counts in scientific notation.
func formatCount(n *big.Int) string {
	if n.BitLen() <= 32 {
		return n.String()
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return fmt.Sprintf("%.3g", f)
}
