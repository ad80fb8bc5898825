// Package train runs the forward / step / constrain optimization cycle over
// windowed datasets, reporting per-epoch losses.
package train

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/SepKfr/cluster-forecasting/datasets"
	"github.com/SepKfr/cluster-forecasting/mixtures"
	"github.com/SepKfr/cluster-forecasting/optimizers"
	"github.com/SepKfr/cluster-forecasting/tensors"
	"github.com/SepKfr/cluster-forecasting/variables"
)

// Config controls one call to Fit.
type Config struct {
	// Epochs is the number of full passes over the training windows.
	// Required > 0.
	Epochs int

	// BatchSize is the number of windows per gradient step. Required > 0.
	BatchSize int

	// Epsilon is the lower bound ConstrainParameters clamps covariance
	// diagonals to after every step. Defaults to mixtures.DefaultEpsilon.
	Epsilon float64

	// Seed drives the batch shuffling. Zero means seed from the clock.
	Seed uint64

	// ProgressBar, when non-nil, receives an ASCII progress bar, one tick
	// per epoch. Set to os.Stdout for interactive runs, nil for quiet ones.
	ProgressBar io.Writer
}

func (c Config) validate() error {
	if c.Epochs <= 0 {
		return errors.Errorf("Epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("BatchSize must be positive, got %d", c.BatchSize)
	}
	if c.Epsilon < 0 {
		return errors.Errorf("Epsilon must not be negative, got %g", c.Epsilon)
	}
	return nil
}

// EpochStats records the losses observed during one epoch.
type EpochStats struct {
	Epoch int

	// Loss is the mean training loss over the epoch's batches.
	Loss float64

	// ValidLoss is the loss over the validation windows at the end of the
	// epoch, or NaN when no validation data was given.
	ValidLoss float64
}

// History is the per-epoch record of a Fit run.
type History struct {
	Epochs  []EpochStats
	Elapsed time.Duration
}

// Final returns the stats of the last epoch.
func (h *History) Final() EpochStats {
	if len(h.Epochs) == 0 {
		return EpochStats{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// Fit optimizes model on the training windows for config.Epochs passes.
// valid may be nil. Each batch runs one forward / step / constrain cycle;
// each epoch reshuffles the windows.
func Fit(model mixtures.Model, optimizer optimizers.Interface,
	training, valid *tensors.Tensor, config Config) (*History, error) {
	if config.Epsilon == 0 {
		config.Epsilon = mixtures.DefaultEpsilon
	}
	if err := config.validate(); err != nil {
		return nil, errors.WithMessage(err, "train: invalid configuration")
	}
	if training == nil {
		return nil, errors.New("train: no training data")
	}
	if training.Dim(0) < config.BatchSize {
		return nil, errors.Errorf("train: BatchSize %d exceeds the %d training windows",
			config.BatchSize, training.Dim(0))
	}

	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rnd := rand.New(rand.NewPCG(seed, seed+1))

	var bar *progressbar.ProgressBar
	if config.ProgressBar != nil {
		bar = progressbar.NewOptions(config.Epochs,
			progressbar.OptionSetDescription("Training"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("epochs"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionSetWriter(config.ProgressBar))
	}

	start := time.Now()
	history := &History{Epochs: make([]EpochStats, 0, config.Epochs)}
	for epoch := 0; epoch < config.Epochs; epoch++ {
		batches := datasets.Batches(training, config.BatchSize, rnd)
		var epochLoss float64
		for _, batch := range batches {
			variables.ZeroGradAll(model.Variables())
			loss, _, err := model.Forward(batch)
			if err != nil {
				return nil, errors.WithMessagef(err, "train: epoch %d", epoch)
			}
			optimizer.Step(model.Variables())
			model.ConstrainParameters(config.Epsilon)
			epochLoss += loss
		}
		epochLoss /= float64(len(batches))

		stats := EpochStats{Epoch: epoch, Loss: epochLoss}
		stats.ValidLoss, _ = Evaluate(model, valid)
		history.Epochs = append(history.Epochs, stats)

		klog.V(1).Infof("epoch %d: loss=%.6f valid=%.6f", epoch, stats.Loss, stats.ValidLoss)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	history.Elapsed = time.Since(start)
	if bar != nil {
		_ = bar.Finish()
	}
	return history, nil
}

// Evaluate runs one forward pass over data without updating the model and
// returns its loss. A nil data returns NaN without error. The gradients the
// pass accumulates are zeroed before returning.
func Evaluate(model mixtures.Model, data *tensors.Tensor) (float64, error) {
	if data == nil {
		return math.NaN(), nil
	}
	loss, _, err := model.Forward(data)
	variables.ZeroGradAll(model.Variables())
	if err != nil {
		return math.NaN(), errors.WithMessage(err, "train: evaluation")
	}
	return loss, nil
}

// Summary writes a short human-readable description of a fitted model and
// its training run to w.
func Summary(w io.Writer, model mixtures.Model, history *History) {
	if w == nil {
		w = os.Stdout
	}
	final := history.Final()
	fmt.Fprintf(w, "Components:  %d (%d dims)\n", model.NumComponents(), model.NumDims())
	fmt.Fprintf(w, "Parameters:  %s\n", humanize.Comma(int64(variables.NumParameters(model.Variables()))))
	fmt.Fprintf(w, "Epochs:      %d in %s\n", len(history.Epochs), history.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Final loss:  %.6f (valid %.6f)\n", final.Loss, final.ValidLoss)
	fmt.Fprintf(w, "Mixture:     %v\n", model.Probs())
}
