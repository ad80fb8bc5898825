package datasets

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))
	return path
}

func TestWindows(t *testing.T) {
	series := []float64{0, 1, 2, 3, 4}

	got := Windows(series, 3, 1)
	require.NotNil(t, got)
	assert.Equal(t, []int{3, 3, 1}, got.Dimensions())
	assert.Equal(t, []float64{0, 1, 2, 1, 2, 3, 2, 3, 4}, got.Flat())

	got = Windows(series, 2, 2)
	require.NotNil(t, got)
	assert.Equal(t, []int{2, 2, 1}, got.Dimensions())
	assert.Equal(t, []float64{0, 1, 2, 3}, got.Flat())

	assert.Nil(t, Windows([]float64{1, 2}, 3, 1))
	assert.Panics(t, func() { Windows(series, 0, 1) })
	assert.Panics(t, func() { Windows(series, 3, 0) })
}

func TestLoadSingleSeries(t *testing.T) {
	// 10 observations: train gets 6, valid 2, test 2.
	csv := "t,value\n"
	for i := 0; i < 10; i++ {
		csv += fmt.Sprintf("%d,%d\n", i, i*10)
	}
	path := writeCSV(t, csv)

	split, err := Load(path, Config{TargetColumn: "value", WindowLength: 2})
	require.NoError(t, err)

	require.NotNil(t, split.Train)
	assert.Equal(t, []int{5, 2, 1}, split.Train.Dimensions())
	assert.Equal(t, []float64{0, 10, 10, 20, 20, 30, 30, 40, 40, 50}, split.Train.Flat())

	require.NotNil(t, split.Valid)
	assert.Equal(t, []int{1, 2, 1}, split.Valid.Dimensions())
	assert.Equal(t, []float64{60, 70}, split.Valid.Flat())

	require.NotNil(t, split.Test)
	assert.Equal(t, []float64{80, 90}, split.Test.Flat())
}

func TestLoadGroupedSeries(t *testing.T) {
	// Two interleaved groups of 5 observations each; windows must not mix
	// groups, and each group splits 3/1/1.
	csv := "id,value\n"
	for i := 0; i < 5; i++ {
		csv += fmt.Sprintf("a,%d\n", i)
		csv += fmt.Sprintf("b,%d\n", 100+i)
	}
	path := writeCSV(t, csv)

	split, err := Load(path, Config{
		TargetColumn: "value",
		GroupColumn:  "id",
		WindowLength: 2,
	})
	require.NoError(t, err)

	require.NotNil(t, split.Train)
	assert.Equal(t, []int{4, 2, 1}, split.Train.Dimensions())
	assert.Equal(t, []float64{0, 1, 1, 2, 100, 101, 101, 102}, split.Train.Flat())

	// One observation per group per segment: too short for a window.
	assert.Nil(t, split.Valid)
	assert.Nil(t, split.Test)
}

func TestLoadValidation(t *testing.T) {
	path := writeCSV(t, "t,value\n0,1\n1,2\n")

	_, err := Load(path, Config{WindowLength: 2})
	require.ErrorContains(t, err, "TargetColumn")

	_, err = Load(path, Config{TargetColumn: "value"})
	require.ErrorContains(t, err, "WindowLength")

	_, err = Load(path, Config{TargetColumn: "missing", WindowLength: 2})
	require.ErrorContains(t, err, "missing")

	_, err = Load(path, Config{TargetColumn: "value", GroupColumn: "nope", WindowLength: 2})
	require.ErrorContains(t, err, "nope")

	_, err = Load(path, Config{
		TargetColumn: "value", WindowLength: 2,
		TrainFraction: 0.9, ValidFraction: 0.2,
	})
	require.ErrorContains(t, err, "split fractions")

	_, err = Load(filepath.Join(t.TempDir(), "absent.csv"),
		Config{TargetColumn: "value", WindowLength: 2})
	require.ErrorContains(t, err, "cannot open")
}

func TestBatches(t *testing.T) {
	data := Windows([]float64{0, 1, 2, 3, 4, 5, 6}, 2, 1) // 6 windows
	require.NotNil(t, data)

	// Deterministic order with nil rnd; remainder window dropped.
	batches := Batches(data, 4, nil)
	require.Len(t, batches, 1)
	assert.Equal(t, []int{4, 2, 1}, batches[0].Dimensions())
	assert.Equal(t, []float64{0, 1, 1, 2, 2, 3, 3, 4}, batches[0].Flat())

	// Shuffled batches still cover distinct windows.
	rnd := rand.New(rand.NewPCG(42, 0))
	batches = Batches(data, 2, rnd)
	require.Len(t, batches, 3)
	var starts []float64
	for _, batch := range batches {
		flat := batch.Flat()
		starts = append(starts, flat[0], flat[2])
	}
	sort.Float64s(starts)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5}, starts)

	assert.Nil(t, Batches(nil, 2, nil))
	assert.Nil(t, Batches(data, 0, nil))
}
