// Package evaluation implements external cluster-validity metrics: given a
// predicted assignment and reference labels, it scores how well the
// clustering recovered the reference structure independent of label
// permutation.
package evaluation

import (
	"math"

	"github.com/pkg/errors"
)

// contingency builds the cross-tabulation of two labelings, plus the
// marginal counts.
func contingency(predicted, truth []int) (table map[[2]int]float64, rowSums, colSums map[int]float64, err error) {
	if len(predicted) != len(truth) {
		return nil, nil, nil, errors.Errorf(
			"labelings have different lengths: %d vs %d", len(predicted), len(truth))
	}
	if len(predicted) == 0 {
		return nil, nil, nil, errors.New("labelings must not be empty")
	}
	table = make(map[[2]int]float64)
	rowSums = make(map[int]float64)
	colSums = make(map[int]float64)
	for i := range predicted {
		table[[2]int{predicted[i], truth[i]}]++
		rowSums[predicted[i]]++
		colSums[truth[i]]++
	}
	return table, rowSums, colSums, nil
}

func pairs(n float64) float64 { return n * (n - 1) / 2 }

// AdjustedRandIndex scores the agreement of two labelings, corrected for
// chance: 1 for identical partitions (up to label permutation), around 0 for
// independent ones.
func AdjustedRandIndex(predicted, truth []int) (float64, error) {
	table, rowSums, colSums, err := contingency(predicted, truth)
	if err != nil {
		return 0, errors.WithMessage(err, "AdjustedRandIndex")
	}
	n := float64(len(predicted))

	var index, rowPairs, colPairs float64
	for _, count := range table {
		index += pairs(count)
	}
	for _, count := range rowSums {
		rowPairs += pairs(count)
	}
	for _, count := range colSums {
		colPairs += pairs(count)
	}

	expected := rowPairs * colPairs / pairs(n)
	maxIndex := (rowPairs + colPairs) / 2
	if maxIndex == expected {
		// Both partitions are trivial; they agree perfectly by convention.
		return 1, nil
	}
	return (index - expected) / (maxIndex - expected), nil
}

// NormalizedMutualInfo scores the mutual information of two labelings,
// normalized by the arithmetic mean of their entropies: 1 for identical
// partitions, 0 for independent ones or when either partition is trivial.
func NormalizedMutualInfo(predicted, truth []int) (float64, error) {
	table, rowSums, colSums, err := contingency(predicted, truth)
	if err != nil {
		return 0, errors.WithMessage(err, "NormalizedMutualInfo")
	}
	n := float64(len(predicted))

	entropy := func(sums map[int]float64) float64 {
		h := 0.0
		for _, count := range sums {
			p := count / n
			h -= p * math.Log(p)
		}
		return h
	}
	rowEntropy, colEntropy := entropy(rowSums), entropy(colSums)
	mean := (rowEntropy + colEntropy) / 2
	if mean < 1e-15 {
		return 0, nil
	}

	mutual := 0.0
	for key, count := range table {
		joint := count / n
		mutual += joint * math.Log(joint*n*n/(rowSums[key[0]]*colSums[key[1]]))
	}
	return mutual / mean, nil
}

// Purity is the fraction of observations whose cluster's majority reference
// label matches their own: 1 when every cluster is label-pure.
func Purity(predicted, truth []int) (float64, error) {
	table, rowSums, _, err := contingency(predicted, truth)
	if err != nil {
		return 0, errors.WithMessage(err, "Purity")
	}

	majority := make(map[int]float64, len(rowSums))
	for key, count := range table {
		if count > majority[key[0]] {
			majority[key[0]] = count
		}
	}
	total := 0.0
	for _, count := range majority {
		total += count
	}
	return total / float64(len(predicted)), nil
}
