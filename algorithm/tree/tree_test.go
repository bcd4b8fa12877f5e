package tree

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/forest/algorithm/matrix"
	"github.com/wyfcoding/forest/algorithm/randx"
	"github.com/wyfcoding/forest/modelio/wire"
	"github.com/wyfcoding/forest/xerrors"
	"gopkg.in/yaml.v3"
)

// separable 第 0 列决定标签，第 1 列是噪声.
func separable(t *testing.T) (*matrix.Dense, *matrix.Dense) {
	t.Helper()
	X, err := matrix.FromRows([][]float64{
		{1, 5}, {2, 3}, {3, 9}, {4, 1},
		{6, 2}, {7, 8}, {8, 4}, {9, 6},
	})
	require.NoError(t, err)
	return X, matrix.FromColumn([]float64{0, 0, 0, 0, 1, 1, 1, 1})
}

func TestFitSeparable(t *testing.T) {
	X, y := separable(t)
	dt := NewHyperparameters(2).Build()
	require.False(t, dt.IsFitted())
	require.NoError(t, dt.Fit(X, y))

	assert.True(t, dt.IsFitted())
	assert.Equal(t, 3, dt.NumNodes())
	assert.Equal(t, 1, dt.Depth())

	root := dt.Nodes()[0]
	assert.Equal(t, 0, root.Feature)
	assert.Equal(t, 5.0, root.Threshold)

	pred, err := dt.DecisionFunction(X)
	require.NoError(t, err)
	assert.Equal(t, y.RawData(), pred.RawData())

	imp, err := dt.FeatureImportances()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, imp)
}

func TestCriteria(t *testing.T) {
	X, y := separable(t)
	for _, c := range []Criterion{CriterionGini, CriterionEntropy, CriterionMSE} {
		t.Run(c.String(), func(t *testing.T) {
			dt := NewHyperparameters(2).SetCriterion(c).Build()
			require.NoError(t, dt.Fit(X, y))
			pred, err := dt.DecisionFunction(X)
			require.NoError(t, err)
			assert.Equal(t, y.RawData(), pred.RawData())
		})
	}
}

func TestRegressionLeafIsMean(t *testing.T) {
	X := matrix.FromColumn([]float64{1, 2, 3, 10, 11, 12})
	y := matrix.FromColumn([]float64{1, 2, 3, 20, 21, 22})
	dt := NewHyperparameters(1).SetCriterion(CriterionMSE).SetMaxDepth(1).Build()
	require.NoError(t, dt.Fit(X, y))

	pred, err := dt.DecisionFunction(matrix.FromColumn([]float64{0, 100}))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, pred.At(0, 0), 1e-12)
	assert.InDelta(t, 21.0, pred.At(1, 0), 1e-12)
}

func TestStoppingRules(t *testing.T) {
	X, y := separable(t)

	dt := NewHyperparameters(2).SetMinSamplesSplit(100).Build()
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, 1, dt.NumNodes(), "too few samples to split")
	pred, err := dt.DecisionFunction(X)
	require.NoError(t, err)
	assert.Equal(t, 0.5, pred.At(0, 0))

	pure := NewHyperparameters(2).Build()
	require.NoError(t, pure.Fit(X, matrix.FromColumn(make([]float64, 8))))
	assert.Equal(t, 1, pure.NumNodes(), "pure node must not split")

	imp, err := pure.FeatureImportances()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, imp)
}

func TestFitErrors(t *testing.T) {
	X, y := separable(t)

	err := NewHyperparameters(3).Build().Fit(X, y)
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))

	err = NewHyperparameters(2).Build().Fit(X, matrix.FromColumn([]float64{0, 1}))
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))

	err = NewHyperparameters(2).Build().Fit(matrix.Zeros(0, 2), matrix.Zeros(0, 1))
	assert.True(t, errors.Is(err, xerrors.ErrEmptyData))

	err = NewHyperparameters(2).SetMaxFeatures(3).Build().Fit(X, y)
	assert.True(t, errors.Is(err, xerrors.ErrInvalidConfig))

	err = NewHyperparameters(2).SetMinSamplesSplit(1).Build().Fit(X, y)
	assert.True(t, errors.Is(err, xerrors.ErrInvalidConfig))

	bad := matrix.FromColumn([]float64{0, 1, 2, 0, 1, 2, 0, 1})
	err = NewHyperparameters(2).Build().Fit(X, bad)
	assert.True(t, errors.Is(err, xerrors.ErrInvalidInput))
}

func TestFitRejectsNonFinite(t *testing.T) {
	y := matrix.FromColumn([]float64{1, 0, 1, 0})
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		X := matrix.FromColumn([]float64{v, 1, 2, 3})
		dt := NewHyperparameters(1).Build()
		err := dt.Fit(X, y)
		assert.True(t, errors.Is(err, xerrors.ErrInvalidInput), "value %v", v)
		assert.False(t, dt.IsFitted())

		err = NewHyperparameters(1).Build().Fit(matrix.SparseColumnFromDense(X), y)
		assert.True(t, errors.Is(err, xerrors.ErrInvalidInput), "sparse value %v", v)
	}

	X := matrix.FromColumn([]float64{0, 1, 2, 3})
	err := NewHyperparameters(1).SetCriterion(CriterionMSE).Build().
		Fit(X, matrix.FromColumn([]float64{0.5, math.NaN(), 1, 2}))
	assert.True(t, errors.Is(err, xerrors.ErrInvalidInput))
}

func TestGrowStopsOnOneSidedSplit(t *testing.T) {
	// NaN 使阈值比较全部失败，所有样本落到同一侧
	X := matrix.FromColumn([]float64{math.NaN(), 1, 2, 3})
	h := NewHyperparameters(1)
	b := &builder{
		params: h.params,
		x:      X,
		y:      []float64{1, 0, 1, 0},
		rng:    randx.FromUint64(1),
		perm:   []int{0},
		values: make([]float64, 4),
		order:  make([]int, 4),
		stats:  make([]float64, 4),
	}
	b.grow([]int{0, 1, 2, 3}, 0)
	require.NotEmpty(t, b.nodes)
	assert.Less(t, len(b.nodes), 8)
	for _, n := range b.nodes {
		if !n.IsLeaf() {
			assert.NotZero(t, b.nodes[n.Left].Samples)
			assert.NotZero(t, b.nodes[n.Right].Samples)
		}
	}
}

func TestFailedFitKeepsPreviousModel(t *testing.T) {
	X, y := separable(t)
	dt := NewHyperparameters(2).Build()
	require.NoError(t, dt.Fit(X, y))
	before := dt.Nodes()

	require.Error(t, dt.Fit(X, matrix.FromColumn([]float64{1})))
	assert.Equal(t, before, dt.Nodes())
}

func TestDecisionFunctionErrors(t *testing.T) {
	X, y := separable(t)
	dt := NewHyperparameters(2).Build()

	_, err := dt.DecisionFunction(X)
	assert.True(t, errors.Is(err, xerrors.ErrNotFitted))
	_, err = dt.FeatureImportances()
	assert.True(t, errors.Is(err, xerrors.ErrNotFitted))

	require.NoError(t, dt.Fit(X, y))
	_, err = dt.DecisionFunction(matrix.Zeros(2, 3))
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))
}

func noisy(t *testing.T) (*matrix.Dense, *matrix.Dense) {
	t.Helper()
	rng := randx.FromUint64(7)
	X := matrix.Zeros(60, 5)
	y := matrix.Zeros(60, 1)
	for i := range 60 {
		for j := range 5 {
			X.Set(i, j, rng.Float64())
		}
		if X.At(i, 0)+X.At(i, 3) > 1 {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func TestSeededTreesAreReproducible(t *testing.T) {
	X, y := noisy(t)
	seed := randx.FromUint64(1).Seed32()

	a := NewHyperparameters(5).SetMaxFeatures(2).Reseed(seed).Build()
	b := NewHyperparameters(5).SetMaxFeatures(2).Reseed(seed).Build()
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))
	assert.Equal(t, a.Nodes(), b.Nodes())

	// 克隆保留训练后推进的随机流
	require.NoError(t, a.Fit(X, y))
	c := b.Clone()
	require.NoError(t, c.Fit(X, y))
	assert.Equal(t, a.Nodes(), c.Nodes())
}

func TestSparseColumnMatchesDense(t *testing.T) {
	X, y := noisy(t)
	sparse := matrix.SparseColumnFromDense(X)

	a := NewHyperparameters(5).Build()
	b := NewHyperparameters(5).Build()
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(sparse, y))
	assert.Equal(t, a.Nodes(), b.Nodes())
}

func TestCodecsRoundTrip(t *testing.T) {
	X, y := noisy(t)
	dt := NewHyperparameters(5).SetMaxFeatures(3).SetMaxDepth(4).SetCriterion(CriterionEntropy).Build()
	require.NoError(t, dt.Fit(X, y))
	want, err := dt.DecisionFunction(X)
	require.NoError(t, err)

	bin, err := dt.MarshalBinary()
	require.NoError(t, err)
	fromBin := &DecisionTree{}
	require.NoError(t, fromBin.UnmarshalBinary(bin))

	js, err := json.Marshal(dt)
	require.NoError(t, err)
	fromJSON := &DecisionTree{}
	require.NoError(t, json.Unmarshal(js, fromJSON))

	ym, err := yaml.Marshal(dt)
	require.NoError(t, err)
	fromYAML := &DecisionTree{}
	require.NoError(t, yaml.Unmarshal(ym, fromYAML))

	for name, got := range map[string]*DecisionTree{"binary": fromBin, "json": fromJSON, "yaml": fromYAML} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, dt.Nodes(), got.Nodes())
			pred, err := got.DecisionFunction(X)
			require.NoError(t, err)
			assert.Equal(t, want.RawData(), pred.RawData())
			assert.Equal(t, CriterionEntropy, got.Criterion())
		})
	}
}

func TestUnmarshalRejectsBrokenLinks(t *testing.T) {
	X, y := separable(t)
	dt := NewHyperparameters(2).Build()
	require.NoError(t, dt.Fit(X, y))

	s, err := dt.State()
	require.NoError(t, err)
	s.Nodes[0].Left = 0
	_, err = FromState(s)
	assert.True(t, errors.Is(err, xerrors.ErrCorruptModel))

	err = (&DecisionTree{}).UnmarshalBinary([]byte{0xff})
	assert.True(t, errors.Is(err, xerrors.ErrCorruptModel))

	// 缺少随机流字段
	var enc wire.Encoder
	enc.Uint(fieldNumFeatures, 2)
	enc.Uint(fieldMinSamplesSplit, 2)
	enc.Uint(fieldMaxFeatures, 2)
	err = (&DecisionTree{}).UnmarshalBinary(enc.Bytes())
	assert.True(t, errors.Is(err, xerrors.ErrCorruptModel))
}
