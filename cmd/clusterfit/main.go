// clusterfit fits a Gaussian mixture to windowed time-series data from a CSV
// file and reports the learned mixture, component covariances and losses.
//
// Example:
//
//	clusterfit -data traffic.csv -target value -group sensor \
//	    -family full -components 4 -window 16 -dims 2 -epochs 50
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/janpfeifer/must"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/SepKfr/cluster-forecasting/datasets"
	"github.com/SepKfr/cluster-forecasting/kmeans"
	"github.com/SepKfr/cluster-forecasting/mixtures"
	"github.com/SepKfr/cluster-forecasting/optimizers"
	"github.com/SepKfr/cluster-forecasting/plots"
	"github.com/SepKfr/cluster-forecasting/tensors"
	"github.com/SepKfr/cluster-forecasting/train"
)

var (
	flagData   = flag.String("data", "", "CSV file with the time series to fit. Required.")
	flagTarget = flag.String("target", "value", "Name of the CSV column holding the observed values.")
	flagGroup  = flag.String("group", "", "Optional CSV column identifying independent series; "+
		"windows never cross a group boundary.")
	flagWindow = flag.Int("window", 16, "Window length in time steps; each window is one "+
		"observation for the mixture, its steps the input features.")

	flagFamily = flag.String("family", "full", fmt.Sprintf(
		"Covariance family of the mixture, one of: %s.",
		strings.Join(mixtures.FamilyNames(), ", ")))
	flagComponents = flag.Int("components", 3, "Number of mixture components.")
	flagDims       = flag.Int("dims", 2, "Dimensionality the windows are embedded into.")
	flagKMeans     = flag.Bool("kmeans", false, "Seed the component means with k-means++ centroids "+
		"of the training windows. Requires -dims equal to -window.")

	flagOptimizer = flag.String("optimizer", "adam", fmt.Sprintf(
		"Optimizer to fit with, one of: %s.", strings.Join(optimizers.Names(), ", ")))
	flagLearningRate = flag.Float64("learning_rate", 0.01, "Optimizer learning rate.")
	flagEpochs       = flag.Int("epochs", 50, "Number of passes over the training windows.")
	flagBatchSize    = flag.Int("batch_size", 32, "Windows per gradient step.")
	flagSeed         = flag.Uint64("seed", 0, "Random seed; 0 seeds from the clock.")

	flagWarp = flag.Float64("warp", 0, "If > 0, also report the mixture probabilities warped "+
		"so a uniform mixture maps to this value, e.g. 0.75.")
	flagPlots = flag.String("plots", "", "Directory to write loss-curve and cluster PNGs to. "+
		"Empty disables plotting.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagData == "" {
		klog.Exitf("Missing -data CSV file. See 'clusterfit -help'.")
	}
	if flag.NArg() > 0 {
		klog.Exitf("Unexpected arguments %v. See 'clusterfit -help'.", flag.Args())
	}

	split := must.M1(datasets.Load(*flagData, datasets.Config{
		TargetColumn: *flagTarget,
		GroupColumn:  *flagGroup,
		WindowLength: *flagWindow,
	}))
	training := flattenWindows(split.Train)
	if training == nil {
		klog.Exitf("No training windows: series in %q shorter than -window=%d.",
			*flagData, *flagWindow)
	}

	config := mixtures.Config{
		NumComponents: *flagComponents,
		NumDims:       *flagDims,
		NumFeatures:   *flagWindow,
		Seed:          *flagSeed,
	}
	if *flagKMeans {
		if *flagDims != *flagWindow {
			klog.Exitf("-kmeans needs -dims (%d) equal to -window (%d): centroids live in "+
				"window space.", *flagDims, *flagWindow)
		}
		config.InitialMeans = kmeansCentroids(training)
	}

	model := must.M1(mixtures.NewByName(*flagFamily, config))
	optimizer := must.M1(optimizers.ByName(*flagOptimizer, *flagLearningRate))

	history := must.M1(train.Fit(model, optimizer, training, flattenWindows(split.Valid),
		train.Config{
			Epochs:      *flagEpochs,
			BatchSize:   *flagBatchSize,
			Seed:        *flagSeed,
			ProgressBar: os.Stdout,
		}))
	fmt.Println()
	train.Summary(os.Stdout, model, history)
	if test := flattenWindows(split.Test); test != nil {
		fmt.Printf("Test loss:   %.6f\n", must.M1(train.Evaluate(model, test)))
	}
	fmt.Println()

	reportMixture(model)
	reportCovariances(model)
	if *flagPlots != "" {
		writePlots(model, history, training)
	}
}

// flattenWindows turns a [N, T, 1] window tensor into the [N, T] batch the
// mixtures consume, one window per observation.
func flattenWindows(windows *tensors.Tensor) *tensors.Tensor {
	if windows == nil {
		return nil
	}
	return windows.Reshape(windows.Dim(0), windows.Dim(1))
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Padding(1, 2, 0, 2)
	headerStyle = lipgloss.NewStyle().Reverse(true).Padding(0, 2, 0, 2).Align(lipgloss.Center)
	rowStyle    = lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1).Align(lipgloss.Right)
)

func newTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == 0 {
				return headerStyle
			}
			return rowStyle
		}).
		Headers(headers...)
}

func reportMixture(model mixtures.Model) {
	fmt.Println(titleStyle.Render("Mixture"))
	probs := model.Probs()
	headers := []string{"Component", "Probability"}
	var warped []float64
	if *flagWarp > 0 {
		warped = mixtures.WarpProbs(probs, *flagWarp)
		headers = append(headers, fmt.Sprintf("Warped (%.2f)", *flagWarp))
	}
	table := newTable(headers...)
	for k, p := range probs {
		row := []string{fmt.Sprintf("%d", k), fmt.Sprintf("%.4f", p)}
		if warped != nil {
			row = append(row, fmt.Sprintf("%.4f", warped[k]))
		}
		table.Row(row...)
	}
	fmt.Println(table.Render())
}

func reportCovariances(model mixtures.Model) {
	fmt.Println(titleStyle.Render("Component covariances"))
	covs := model.CovarianceMatrices()
	numDims := model.NumDims()
	for k := 0; k < model.NumComponents(); k++ {
		block := covs.Flat()[k*numDims*numDims : (k+1)*numDims*numDims]
		cov := mat.NewDense(numDims, numDims, block)
		fmt.Printf("Component %d:\n%v\n\n", k,
			mat.Formatted(cov, mat.Prefix(""), mat.Squeeze()))
	}
}

func kmeansCentroids(training *tensors.Tensor) [][]float64 {
	km := kmeans.New(*flagComponents)
	x := mat.NewDense(training.Dim(0), training.Dim(1), training.Flat())
	must.M(km.Fit(x, nil))
	klog.V(1).Infof("k-means seeding converged=%v after %d iterations, inertia=%.4f",
		km.Converged, km.Iterations, km.Inertia)
	return km.CentroidRows()
}

func writePlots(model mixtures.Model, history *train.History, training *tensors.Tensor) {
	must.M(os.MkdirAll(*flagPlots, 0o755))
	lossPath := filepath.Join(*flagPlots, "loss.png")
	must.M(plots.LossCurve(history, lossPath))
	fmt.Printf("Wrote %s\n", lossPath)

	if model.NumDims() != 2 {
		klog.V(1).Infof("Skipping cluster plot: needs -dims=2, got %d.", model.NumDims())
		return
	}
	// Sample from the fitted mixture and color each draw by its nearest
	// component mean.
	_, sample, err := model.Forward(training)
	must.M(err)
	means := meanRows(model)
	numPoints := sample.Dim(0)
	points := make([][]float64, numPoints)
	labels := make([]int, numPoints)
	for i := 0; i < numPoints; i++ {
		points[i] = []float64{sample.At(i, 0), sample.At(i, 1)}
		labels[i] = nearest(points[i], means)
	}
	clustersPath := filepath.Join(*flagPlots, "clusters.png")
	must.M(plots.Scatter(points, labels, means, clustersPath))
	fmt.Printf("Wrote %s\n", clustersPath)
}

func meanRows(model mixtures.Model) [][]float64 {
	means := model.ComponentParameters()[0].Value()
	rows := make([][]float64, model.NumComponents())
	for k := range rows {
		row := make([]float64, model.NumDims())
		for d := range row {
			row[d] = means.At(k, d)
		}
		rows[k] = row
	}
	return rows
}

func nearest(point []float64, centers [][]float64) int {
	best, minDist := 0, -1.0
	for k, center := range centers {
		var dist float64
		for d := range point {
			diff := point[d] - center[d]
			dist += diff * diff
		}
		if minDist < 0 || dist < minDist {
			best, minDist = k, dist
		}
	}
	return best
}
