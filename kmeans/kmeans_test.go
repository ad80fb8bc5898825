package kmeans_test

import (
	"math/rand/v2"
	"testing"

	"github.com/SepKfr/cluster-forecasting/kmeans"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// blobs builds two well-separated clusters around (0,0) and (10,10).
func blobs(rnd *rand.Rand, perCluster int) (*mat.Dense, []int) {
	data := mat.NewDense(2*perCluster, 2, nil)
	labels := make([]int, 2*perCluster)
	for i := 0; i < perCluster; i++ {
		data.Set(i, 0, rnd.NormFloat64()*0.5)
		data.Set(i, 1, rnd.NormFloat64()*0.5)
		labels[i] = 0
		j := perCluster + i
		data.Set(j, 0, 10+rnd.NormFloat64()*0.5)
		data.Set(j, 1, 10+rnd.NormFloat64()*0.5)
		labels[j] = 1
	}
	return data, labels
}

func TestFitRecoversSeparatedClusters(t *testing.T) {
	rnd := rand.New(rand.NewPCG(3, 3))
	data, truth := blobs(rnd, 50)

	model := kmeans.New(2)
	require.NoError(t, model.Fit(data, rnd))
	assert.True(t, model.Converged)

	labels, err := model.Predict(data)
	require.NoError(t, err)

	// Same-cluster points agree with each other; clusters may be permuted.
	for i := 1; i < len(labels); i++ {
		if truth[i] == truth[0] {
			assert.Equal(t, labels[0], labels[i])
		} else {
			assert.NotEqual(t, labels[0], labels[i])
		}
	}

	// Centroids land near the blob centers, one near each.
	rows := model.CentroidRows()
	require.Len(t, rows, 2)
	near := func(row []float64, x, y float64) bool {
		return row[0] > x-1 && row[0] < x+1 && row[1] > y-1 && row[1] < y+1
	}
	assert.True(t,
		(near(rows[0], 0, 0) && near(rows[1], 10, 10)) ||
			(near(rows[1], 0, 0) && near(rows[0], 10, 10)),
		"unexpected centroids: %v", rows)
}

func TestFitValidation(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 1))
	data := mat.NewDense(3, 2, nil)

	model := kmeans.New(0)
	require.Error(t, model.Fit(data, rnd))

	model = kmeans.New(5)
	require.Error(t, model.Fit(data, rnd), "more clusters than observations")
}

func TestPredictValidation(t *testing.T) {
	model := kmeans.New(2)
	_, err := model.Predict(mat.NewDense(1, 2, nil))
	require.Error(t, err, "Predict before Fit")

	rnd := rand.New(rand.NewPCG(2, 2))
	data, _ := blobs(rnd, 10)
	require.NoError(t, model.Fit(data, rnd))

	_, err = model.Predict(mat.NewDense(1, 3, nil))
	require.Error(t, err, "dimension mismatch")
}

func TestDegenerateData(t *testing.T) {
	// All observations identical: must terminate with zero inertia.
	rnd := rand.New(rand.NewPCG(4, 4))
	data := mat.NewDense(6, 2, nil)
	for i := 0; i < 6; i++ {
		data.Set(i, 0, 1)
		data.Set(i, 1, 2)
	}
	model := kmeans.New(2)
	require.NoError(t, model.Fit(data, rnd))
	assert.InDelta(t, 0.0, model.Inertia, 1e-12)
}
