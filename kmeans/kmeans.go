// Package kmeans implements classic k-means clustering with k-means++
// seeding and Lloyd iterations.
//
// Its main role in this module is to derive initial component means for a
// mixture model: clustering the (embedded) observations first gives the
// mixture a much better starting point than uniform-random means.
package kmeans

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Model holds the k-means configuration and, after Fit, the learned
// centroids and fit diagnostics.
type Model struct {
	// NumClusters is k. Required > 0.
	NumClusters int

	// MaxIterations bounds the Lloyd loop.
	MaxIterations int

	// Tolerance stops iteration once no centroid moves farther than this
	// (squared Euclidean).
	Tolerance float64

	// Centroids is the [k, numDims] matrix of cluster centers, set by Fit.
	Centroids *mat.Dense

	// Inertia is the total within-cluster sum of squared distances after
	// the last iteration.
	Inertia float64

	// Iterations is the number of Lloyd iterations performed.
	Iterations int

	// Converged reports whether the loop stopped by tolerance rather than
	// by MaxIterations.
	Converged bool
}

// New returns a k-means model with the usual defaults (100 iterations,
// tolerance 1e-6).
func New(numClusters int) *Model {
	return &Model{
		NumClusters:   numClusters,
		MaxIterations: 100,
		Tolerance:     1e-6,
	}
}

// Fit clusters the rows of x. The number of rows must be at least
// NumClusters. A nil rnd seeds one from the clock.
func (m *Model) Fit(x mat.Matrix, rnd *rand.Rand) error {
	if rnd == nil {
		now := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(now, now>>32))
	}
	numRows, numDims := x.Dims()
	if m.NumClusters <= 0 {
		return errors.Errorf("kmeans: NumClusters must be positive, got %d", m.NumClusters)
	}
	if numRows < m.NumClusters {
		return errors.Errorf("kmeans: %d observations cannot support %d clusters", numRows, m.NumClusters)
	}

	rows := mat.DenseCopyOf(x)
	m.Centroids = m.seedPlusPlus(rows, rnd)

	assignments := make([]int, numRows)
	counts := make([]int, m.NumClusters)
	next := mat.NewDense(m.NumClusters, numDims, nil)

	m.Converged = false
	for iteration := 0; iteration < m.MaxIterations; iteration++ {
		m.Iterations = iteration + 1

		// Assignment step.
		m.Inertia = 0
		for i := 0; i < numRows; i++ {
			best, bestDist := nearestCentroid(rows.RawRowView(i), m.Centroids)
			assignments[i] = best
			m.Inertia += bestDist
		}

		// Update step.
		next.Zero()
		for k := range counts {
			counts[k] = 0
		}
		for i := 0; i < numRows; i++ {
			k := assignments[i]
			counts[k]++
			floats.Add(next.RawRowView(k), rows.RawRowView(i))
		}
		shift := 0.0
		for k := 0; k < m.NumClusters; k++ {
			if counts[k] == 0 {
				// Re-seed an emptied cluster from a random observation.
				i := rnd.IntN(numRows)
				copy(next.RawRowView(k), rows.RawRowView(i))
				counts[k] = 1
			}
			floats.Scale(1/float64(counts[k]), next.RawRowView(k))
			shift += squaredDistance(next.RawRowView(k), m.Centroids.RawRowView(k))
		}
		m.Centroids.Copy(next)

		if shift <= m.Tolerance {
			m.Converged = true
			break
		}
	}
	return nil
}

// Predict returns the index of the nearest centroid for every row of x.
func (m *Model) Predict(x mat.Matrix) ([]int, error) {
	if m.Centroids == nil {
		return nil, errors.New("kmeans: Predict called before Fit")
	}
	numRows, numDims := x.Dims()
	_, centroidDims := m.Centroids.Dims()
	if numDims != centroidDims {
		return nil, errors.Errorf("kmeans: observations have %d dims, centroids have %d", numDims, centroidDims)
	}
	labels := make([]int, numRows)
	row := make([]float64, numDims)
	for i := 0; i < numRows; i++ {
		mat.Row(row, i, x)
		labels[i], _ = nearestCentroid(row, m.Centroids)
	}
	return labels, nil
}

// CentroidRows returns the centroids as a slice of rows, in the layout
// mixtures.Config.InitialMeans expects.
func (m *Model) CentroidRows() [][]float64 {
	if m.Centroids == nil {
		return nil
	}
	k, numDims := m.Centroids.Dims()
	out := make([][]float64, k)
	for i := range out {
		out[i] = make([]float64, numDims)
		copy(out[i], m.Centroids.RawRowView(i))
	}
	return out
}

// seedPlusPlus picks initial centroids with k-means++: the first uniformly,
// each next with probability proportional to the squared distance to the
// nearest centroid chosen so far.
func (m *Model) seedPlusPlus(rows *mat.Dense, rnd *rand.Rand) *mat.Dense {
	numRows, numDims := rows.Dims()
	centroids := mat.NewDense(m.NumClusters, numDims, nil)
	copy(centroids.RawRowView(0), rows.RawRowView(rnd.IntN(numRows)))

	distances := make([]float64, numRows)
	for k := 1; k < m.NumClusters; k++ {
		total := 0.0
		for i := 0; i < numRows; i++ {
			best := math.Inf(1)
			for c := 0; c < k; c++ {
				if d := squaredDistance(rows.RawRowView(i), centroids.RawRowView(c)); d < best {
					best = d
				}
			}
			distances[i] = best
			total += best
		}
		if total == 0 {
			// All points coincide with chosen centroids; any pick works.
			copy(centroids.RawRowView(k), rows.RawRowView(rnd.IntN(numRows)))
			continue
		}
		target := rnd.Float64() * total
		cumulative := 0.0
		chosen := numRows - 1
		for i, d := range distances {
			cumulative += d
			if cumulative >= target {
				chosen = i
				break
			}
		}
		copy(centroids.RawRowView(k), rows.RawRowView(chosen))
	}
	return centroids
}

func nearestCentroid(row []float64, centroids *mat.Dense) (best int, bestDist float64) {
	k, _ := centroids.Dims()
	best, bestDist = -1, math.Inf(1)
	for c := 0; c < k; c++ {
		if d := squaredDistance(row, centroids.RawRowView(c)); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func squaredDistance(a, b []float64) float64 {
	total := 0.0
	for i := range a {
		diff := a[i] - b[i]
		total += diff * diff
	}
	return total
}
