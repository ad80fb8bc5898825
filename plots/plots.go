// Package plots renders training curves and cluster scatter plots to PNG
// files using gonum/plot.
package plots

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/SepKfr/cluster-forecasting/train"
)

// LossCurve saves the per-epoch training and validation losses of history
// as a line plot at path.
func LossCurve(history *train.History, path string) error {
	if history == nil || len(history.Epochs) == 0 {
		return errors.New("plots: empty history")
	}
	p := plot.New()
	p.Title.Text = "Training loss"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Negative log-likelihood"

	training := make(plotter.XYs, 0, len(history.Epochs))
	valid := make(plotter.XYs, 0, len(history.Epochs))
	for _, stats := range history.Epochs {
		training = append(training, plotter.XY{X: float64(stats.Epoch), Y: stats.Loss})
		if !math.IsNaN(stats.ValidLoss) {
			valid = append(valid, plotter.XY{X: float64(stats.Epoch), Y: stats.ValidLoss})
		}
	}
	lines := []interface{}{"train", training}
	if len(valid) > 0 {
		lines = append(lines, "valid", valid)
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return errors.Wrap(err, "plots: cannot add loss lines")
	}
	return errors.Wrapf(p.Save(6*vg.Inch, 4*vg.Inch, path), "plots: cannot save %q", path)
}

// Scatter saves a 2-D scatter of points colored by their cluster assignment,
// with the cluster centers drawn as larger pyramid glyphs. Each point and
// center uses its first two coordinates; labels[i] is the cluster of
// points[i].
func Scatter(points [][]float64, labels []int, centers [][]float64, path string) error {
	if len(points) != len(labels) {
		return errors.Errorf("plots: %d points but %d labels", len(points), len(labels))
	}
	numClusters := len(centers)
	byCluster := make([]plotter.XYs, numClusters)
	for i, point := range points {
		label := labels[i]
		if label < 0 || label >= numClusters {
			return errors.Errorf("plots: label %d out of range for %d centers", label, numClusters)
		}
		if len(point) < 2 {
			return errors.Errorf("plots: point %d has %d coordinates, need 2", i, len(point))
		}
		byCluster[label] = append(byCluster[label], plotter.XY{X: point[0], Y: point[1]})
	}

	p := plot.New()
	p.Title.Text = "Cluster assignments"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	for k, xys := range byCluster {
		if len(xys) == 0 {
			continue
		}
		scatter, err := plotter.NewScatter(xys)
		if err != nil {
			return errors.Wrap(err, "plots: cannot build scatter")
		}
		scatter.GlyphStyle.Color = plotutil.Color(k)
		scatter.GlyphStyle.Radius = vg.Length(2)
		p.Add(scatter)
	}
	for k, center := range centers {
		if len(center) < 2 {
			return errors.Errorf("plots: center %d has %d coordinates, need 2", k, len(center))
		}
		glyph, err := plotter.NewScatter(plotter.XYs{{X: center[0], Y: center[1]}})
		if err != nil {
			return errors.Wrap(err, "plots: cannot build center glyph")
		}
		glyph.GlyphStyle.Color = plotutil.Color(k)
		glyph.GlyphStyle.Shape = plotutil.Shape(1)
		glyph.GlyphStyle.Radius = vg.Length(6)
		p.Add(glyph)
	}
	return errors.Wrapf(p.Save(6*vg.Inch, 6*vg.Inch, path), "plots: cannot save %q", path)
}
