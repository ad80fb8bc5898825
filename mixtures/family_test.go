package mixtures_test

import (
	"testing"

	"github.com/SepKfr/cluster-forecasting/mixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() mixtures.Config {
	return mixtures.Config{
		NumComponents: 3,
		NumDims:       2,
		NumFeatures:   4,
		InitRadius:    1,
		Seed:          1234,
	}
}

func TestLookupFamily(t *testing.T) {
	// Exactly the five declared tags resolve.
	for name, want := range map[string]mixtures.Family{
		"full":             mixtures.FamilyFull,
		"diagonal":         mixtures.FamilyDiagonal,
		"isotropic":        mixtures.FamilyIsotropic,
		"shared_isotropic": mixtures.FamilySharedIsotropic,
		"constant":         mixtures.FamilyConstant,
	} {
		family, err := mixtures.LookupFamily(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, family)
		assert.Equal(t, name, family.String())
	}

	// Lookup is exact and case-sensitive: case variants, the empty string and
	// unknown names all fail, and the error lists the valid tags.
	for _, name := range []string{"FULL", "Full", "", "gaussian", " full", "diag"} {
		_, err := mixtures.LookupFamily(name)
		require.Error(t, err, "name %q", name)
		for _, tag := range mixtures.FamilyNames() {
			assert.Contains(t, err.Error(), tag)
		}
	}
}

func TestFamilyNames(t *testing.T) {
	assert.Equal(t, []string{"full", "diagonal", "isotropic", "shared_isotropic", "constant"},
		mixtures.FamilyNames())
}

func TestNewDispatch(t *testing.T) {
	full, err := mixtures.New(mixtures.FamilyFull, testConfig())
	require.NoError(t, err)
	assert.IsType(t, &mixtures.GmmFull{}, full)

	diagonal, err := mixtures.New(mixtures.FamilyDiagonal, testConfig())
	require.NoError(t, err)
	assert.IsType(t, &mixtures.GmmDiagonal{}, diagonal)
}

func TestNewUnimplementedFamilies(t *testing.T) {
	for _, family := range []mixtures.Family{
		mixtures.FamilyIsotropic,
		mixtures.FamilySharedIsotropic,
		mixtures.FamilyConstant,
	} {
		model, err := mixtures.New(family, testConfig())
		require.Error(t, err)
		assert.Nil(t, model)
		assert.Contains(t, err.Error(), "not implemented")
		assert.Contains(t, err.Error(), family.String())
	}

	_, err := mixtures.New(mixtures.Family(99), testConfig())
	require.Error(t, err)
}

func TestNewByName(t *testing.T) {
	model, err := mixtures.NewByName("diagonal", testConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, model.NumComponents())
	assert.Equal(t, 2, model.NumDims())

	_, err = mixtures.NewByName("bogus", testConfig())
	require.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*mixtures.Config)
	}{
		{"zero components", func(c *mixtures.Config) { c.NumComponents = 0 }},
		{"negative dims", func(c *mixtures.Config) { c.NumDims = -1 }},
		{"zero features", func(c *mixtures.Config) { c.NumFeatures = 0 }},
		{"negative radius", func(c *mixtures.Config) { c.InitRadius = -0.5 }},
		{"wrong means rows", func(c *mixtures.Config) { c.InitialMeans = [][]float64{{0, 0}} }},
		{"wrong means cols", func(c *mixtures.Config) {
			c.InitialMeans = [][]float64{{0}, {0}, {0}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := testConfig()
			tc.mutate(&config)
			_, err := mixtures.New(mixtures.FamilyFull, config)
			require.Error(t, err)
			_, err = mixtures.New(mixtures.FamilyDiagonal, config)
			require.Error(t, err)
		})
	}
}
