// Package datasets turns raw time-series tables into the (batch, time,
// features) tensors the mixture models consume: CSV loading, per-group
// sliding windows and a chronological train/validation/test split.
package datasets

import (
	"math/rand/v2"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/pkg/errors"

	"github.com/SepKfr/cluster-forecasting/tensors"
)

// Config describes how a table becomes windowed tensors.
type Config struct {
	// TargetColumn is the CSV column holding the observed value. Required.
	TargetColumn string

	// GroupColumn optionally names a column identifying independent series;
	// windows never cross a group boundary. Empty means one single series.
	GroupColumn string

	// WindowLength is the number of consecutive time steps per window.
	// Required > 0.
	WindowLength int

	// Stride is the step between window starts; it defaults to 1.
	Stride int

	// TrainFraction and ValidFraction control the chronological split.
	// They default to 0.6 and 0.2; the remainder is the test segment.
	TrainFraction, ValidFraction float64
}

func (c Config) withDefaults() Config {
	if c.Stride == 0 {
		c.Stride = 1
	}
	if c.TrainFraction == 0 && c.ValidFraction == 0 {
		c.TrainFraction, c.ValidFraction = 0.6, 0.2
	}
	return c
}

func (c Config) validate() error {
	if c.TargetColumn == "" {
		return errors.New("TargetColumn is required")
	}
	if c.WindowLength <= 0 {
		return errors.Errorf("WindowLength must be positive, got %d", c.WindowLength)
	}
	if c.Stride < 0 {
		return errors.Errorf("Stride must not be negative, got %d", c.Stride)
	}
	if c.TrainFraction < 0 || c.ValidFraction < 0 || c.TrainFraction+c.ValidFraction > 1 {
		return errors.Errorf("invalid split fractions train=%g valid=%g",
			c.TrainFraction, c.ValidFraction)
	}
	return nil
}

// Split holds the three chronological segments, each a [N, WindowLength, 1]
// tensor (nil when a segment has too few observations for one window).
type Split struct {
	Train, Valid, Test *tensors.Tensor
}

// Load reads a CSV file and windows it according to config.
func Load(path string, config Config) (*Split, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "datasets: cannot open %q", path)
	}
	defer func() { _ = file.Close() }()

	df := dataframe.ReadCSV(file)
	if df.Error() != nil {
		return nil, errors.Wrapf(df.Error(), "datasets: cannot parse %q", path)
	}
	return FromDataFrame(df, config)
}

// FromDataFrame windows an already-loaded table according to config.
func FromDataFrame(df dataframe.DataFrame, config Config) (*Split, error) {
	config = config.withDefaults()
	if err := config.validate(); err != nil {
		return nil, errors.WithMessage(err, "datasets: invalid configuration")
	}
	if !hasColumn(df, config.TargetColumn) {
		return nil, errors.Errorf("datasets: no column %q in %v", config.TargetColumn, df.Names())
	}
	values := df.Col(config.TargetColumn).Float()

	groups := [][]float64{values}
	if config.GroupColumn != "" {
		if !hasColumn(df, config.GroupColumn) {
			return nil, errors.Errorf("datasets: no column %q in %v", config.GroupColumn, df.Names())
		}
		groups = groupSeries(values, df.Col(config.GroupColumn).Records())
	}

	var train, valid, test [][]float64
	for _, series := range groups {
		trainLen := int(config.TrainFraction * float64(len(series)))
		validLen := int(config.ValidFraction * float64(len(series)))
		train = appendWindows(train, series[:trainLen], config)
		valid = appendWindows(valid, series[trainLen:trainLen+validLen], config)
		test = appendWindows(test, series[trainLen+validLen:], config)
	}
	return &Split{
		Train: windowsTensor(train, config.WindowLength),
		Valid: windowsTensor(valid, config.WindowLength),
		Test:  windowsTensor(test, config.WindowLength),
	}, nil
}

// Windows slices one series into [N, windowLength, 1] with the given stride.
// It returns nil when the series is shorter than one window.
func Windows(series []float64, windowLength, stride int) *tensors.Tensor {
	if windowLength <= 0 || stride <= 0 {
		panic(errors.Errorf("datasets: windowLength and stride must be positive, got %d and %d",
			windowLength, stride))
	}
	config := Config{WindowLength: windowLength, Stride: stride}
	return windowsTensor(appendWindows(nil, series, config), windowLength)
}

// Batches splits the windows of data (leading axis) into shuffled batches of
// batchSize, dropping the remainder. With a nil rnd the order is preserved.
func Batches(data *tensors.Tensor, batchSize int, rnd *rand.Rand) []*tensors.Tensor {
	if data == nil || batchSize <= 0 {
		return nil
	}
	dims := data.Dimensions()
	numWindows := dims[0]
	rowSize := data.Size() / numWindows

	order := make([]int, numWindows)
	for i := range order {
		order[i] = i
	}
	if rnd != nil {
		rnd.Shuffle(numWindows, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	flat := data.Flat()
	batches := make([]*tensors.Tensor, 0, numWindows/batchSize)
	for start := 0; start+batchSize <= numWindows; start += batchSize {
		batchDims := append([]int{batchSize}, dims[1:]...)
		batch := tensors.FromShape(batchDims...)
		for b := 0; b < batchSize; b++ {
			src := order[start+b] * rowSize
			copy(batch.Flat()[b*rowSize:(b+1)*rowSize], flat[src:src+rowSize])
		}
		batches = append(batches, batch)
	}
	return batches
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, col := range df.Names() {
		if col == name {
			return true
		}
	}
	return false
}

// groupSeries partitions values by their group record, preserving first-seen
// group order and within-group time order.
func groupSeries(values []float64, records []string) [][]float64 {
	byGroup := make(map[string][]float64)
	var order []string
	for i, group := range records {
		if _, seen := byGroup[group]; !seen {
			order = append(order, group)
		}
		byGroup[group] = append(byGroup[group], values[i])
	}
	groups := make([][]float64, len(order))
	for i, group := range order {
		groups[i] = byGroup[group]
	}
	return groups
}

func appendWindows(dst [][]float64, series []float64, config Config) [][]float64 {
	for start := 0; start+config.WindowLength <= len(series); start += config.Stride {
		window := make([]float64, config.WindowLength)
		copy(window, series[start:start+config.WindowLength])
		dst = append(dst, window)
	}
	return dst
}

func windowsTensor(windows [][]float64, windowLength int) *tensors.Tensor {
	if len(windows) == 0 {
		return nil
	}
	out := tensors.FromShape(len(windows), windowLength, 1)
	flat := out.Flat()
	for i, window := range windows {
		copy(flat[i*windowLength:(i+1)*windowLength], window)
	}
	return out
}
