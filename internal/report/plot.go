package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/fraudkit/metrics"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

var (
	sweepColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	selectedColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// PlotThresholdSweep renders macro F1 against threshold for the evaluated
// grid and marks the selected threshold. The image format follows the file
// extension (png, svg, pdf).
func PlotThresholdSweep(path, strategy string, grid []metrics.GridPoint, selected metrics.ThresholdResult) error {
	if len(grid) == 0 {
		return errors.NewValueError("PlotThresholdSweep", "empty grid")
	}

	points := append([]metrics.GridPoint(nil), grid...)
	sort.SliceStable(points, func(a, b int) bool { return points[a].Threshold < points[b].Threshold })
	xys := make(plotter.XYs, len(points))
	for i, p := range points {
		xys[i].X = p.Threshold
		xys[i].Y = p.MacroF1
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Threshold search (%s)", strategy)
	p.X.Label.Text = "threshold"
	p.Y.Label.Text = "macro F1"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(xys)
	if err != nil {
		return errors.Wrap(err, "sweep line")
	}
	line.Color = sweepColor
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("macro F1", line)

	if len(points) <= 50 {
		dots, err := plotter.NewScatter(xys)
		if err != nil {
			return errors.Wrap(err, "sweep points")
		}
		dots.Color = sweepColor
		p.Add(dots)
	}

	marker, err := plotter.NewScatter(plotter.XYs{{X: selected.Threshold, Y: selected.MacroF1}})
	if err != nil {
		return errors.Wrap(err, "selected point")
	}
	marker.Color = selectedColor
	marker.Radius = vg.Points(4)
	p.Add(marker)
	p.Legend.Add(fmt.Sprintf("selected thr=%.4f F1=%.4f", selected.Threshold, selected.MacroF1), marker)
	p.Legend.Top = true
	p.Legend.Left = true

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create plot dir for %s", path)
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
