package ensemble

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/forest/algorithm/datasets"
	"github.com/wyfcoding/forest/algorithm/evaluation"
	"github.com/wyfcoding/forest/algorithm/matrix"
	"github.com/wyfcoding/forest/algorithm/randx"
	"github.com/wyfcoding/forest/algorithm/tree"
	"github.com/wyfcoding/forest/metrics"
	"github.com/wyfcoding/forest/modelio/wire"
	"github.com/wyfcoding/forest/xerrors"
	"gopkg.in/yaml.v3"
)

// irisBinary 把 virginica 作为正类，其余为负类.
func irisBinary() (*matrix.Dense, *matrix.Dense) {
	X, y := datasets.LoadIris()
	yb := matrix.Zeros(y.Rows(), 1)
	for i, v := range y.RawData() {
		if v == 2 {
			yb.Set(i, 0, 1)
		}
	}
	return X, yb
}

func newForest(trees int, seed uint64) *RandomForest {
	tp := tree.NewHyperparameters(4).SetMinSamplesSplit(5).SetMaxFeatures(2)
	return NewHyperparameters(tp, trees).SetRNG(randx.FromUint64(seed)).Build()
}

func TestFitPredictShape(t *testing.T) {
	ctx := context.Background()
	X, y := irisBinary()
	f := newForest(5, 1)
	require.False(t, f.IsFitted())
	require.NoError(t, f.Fit(ctx, X, y))
	assert.True(t, f.IsFitted())
	assert.Equal(t, 5, f.NumTrees())

	scores, err := f.DecisionFunction(ctx, X)
	require.NoError(t, err)
	r, c := scores.Dims()
	assert.Equal(t, 150, r)
	assert.Equal(t, 1, c)
	for _, v := range scores.RawData() {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	ctx := context.Background()
	X, y := irisBinary()
	h := NewHyperparameters(tree.NewHyperparameters(4).SetMaxFeatures(2), 8).SetRNG(randx.FromUint64(42))

	a, b := h.Build(), h.Build()
	require.NoError(t, a.Fit(ctx, X, y))
	require.NoError(t, b.Fit(ctx, X, y))

	sa, err := a.State()
	require.NoError(t, err)
	sb, err := b.State()
	require.NoError(t, err)
	assert.Equal(t, sa, sb)

	pa, err := a.DecisionFunction(ctx, X)
	require.NoError(t, err)
	pb, err := b.DecisionFunction(ctx, X)
	require.NoError(t, err)
	assert.Equal(t, pa.RawData(), pb.RawData())

	other := NewHyperparameters(tree.NewHyperparameters(4).SetMaxFeatures(2), 8).SetRNG(randx.FromUint64(43)).Build()
	require.NoError(t, other.Fit(ctx, X, y))
	so, err := other.State()
	require.NoError(t, err)
	assert.NotEqual(t, sa.Trees, so.Trees)
}

func TestBootstrapIndices(t *testing.T) {
	rng := randx.FromUint64(7)
	for _, n := range []int{1, 2, 17, 150} {
		idx, err := BootstrapIndices(n, rng)
		require.NoError(t, err)
		require.Len(t, idx, n)
		for _, i := range idx {
			assert.GreaterOrEqual(t, i, 0)
			assert.Less(t, i, n)
		}
	}

	// 上界可达
	seen := map[int]bool{}
	for range 50 {
		idx, err := BootstrapIndices(3, rng)
		require.NoError(t, err)
		for _, i := range idx {
			seen[i] = true
		}
	}
	assert.True(t, seen[2])

	_, err := BootstrapIndices(0, rng)
	assert.True(t, errors.Is(err, xerrors.ErrEmptyPopulation))
}

func TestScoreIsMeanOfTrees(t *testing.T) {
	ctx := context.Background()
	X, y := irisBinary()
	f := newForest(7, 3)
	require.NoError(t, f.Fit(ctx, X, y))

	want := make([]float64, X.Rows())
	for _, dt := range f.Trees() {
		s, err := dt.DecisionFunction(X)
		require.NoError(t, err)
		for i, v := range s.RawData() {
			want[i] += v
		}
	}
	for i := range want {
		want[i] /= 7
	}

	got, err := f.DecisionFunction(ctx, X)
	require.NoError(t, err)
	assert.Equal(t, want, got.RawData())
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	X, y := irisBinary()
	f := newForest(6, 11)
	require.NoError(t, f.Fit(ctx, X, y))
	want, err := f.DecisionFunction(ctx, X)
	require.NoError(t, err)

	codecs := map[string]struct {
		marshal   func() ([]byte, error)
		unmarshal func([]byte, *RandomForest) error
	}{
		"binary": {f.MarshalBinary, func(b []byte, g *RandomForest) error { return g.UnmarshalBinary(b) }},
		"json":   {func() ([]byte, error) { return json.Marshal(f) }, func(b []byte, g *RandomForest) error { return json.Unmarshal(b, g) }},
		"yaml":   {func() ([]byte, error) { return yaml.Marshal(f) }, func(b []byte, g *RandomForest) error { return yaml.Unmarshal(b, g) }},
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			b, err := c.marshal()
			require.NoError(t, err)
			decoded := new(RandomForest)
			require.NoError(t, c.unmarshal(b, decoded))

			got, err := decoded.DecisionFunction(ctx, X)
			require.NoError(t, err)
			assert.Equal(t, want.RawData(), got.RawData())

			// 采样流随模型保存，再次训练与原模型一致
			orig := f.Clone()
			require.NoError(t, orig.Fit(ctx, X, y))
			require.NoError(t, decoded.Fit(ctx, X, y))
			so, err := orig.State()
			require.NoError(t, err)
			sd, err := decoded.State()
			require.NoError(t, err)
			assert.Equal(t, so, sd)
		})
	}
}

func TestCorruptBinaryRejected(t *testing.T) {
	f := newForest(2, 1)
	b, err := f.MarshalBinary()
	require.NoError(t, err)
	err = new(RandomForest).UnmarshalBinary(b[:len(b)-3])
	assert.True(t, errors.Is(err, xerrors.ErrCorruptModel))

	err = new(RandomForest).UnmarshalJSON([]byte(`{"rng": 5}`))
	assert.True(t, errors.Is(err, xerrors.ErrCorruptModel))

	// 缺少采样流字段
	empty := new(RandomForest)
	err = empty.UnmarshalBinary(nil)
	assert.True(t, errors.Is(err, xerrors.ErrCorruptModel))
	assert.Zero(t, empty.NumTrees())

	var enc wire.Encoder
	tb, err := f.Trees()[0].MarshalBinary()
	require.NoError(t, err)
	enc.Raw(fieldTree, tb)
	err = new(RandomForest).UnmarshalBinary(enc.Bytes())
	assert.True(t, errors.Is(err, xerrors.ErrCorruptModel))
}

func TestSparseMatchesDense(t *testing.T) {
	ctx := context.Background()
	X, y := irisBinary()
	inputs := map[string]matrix.Input{
		"dense":         X,
		"sparse_row":    matrix.SparseRowFromDense(X),
		"sparse_column": matrix.SparseColumnFromDense(X),
	}

	ref := newForest(5, 9)
	require.NoError(t, ref.Fit(ctx, X, y))
	want, err := ref.DecisionFunction(ctx, X)
	require.NoError(t, err)

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			f := newForest(5, 9)
			require.NoError(t, f.Fit(ctx, in, y))
			got, err := f.DecisionFunction(ctx, in)
			require.NoError(t, err)
			assert.True(t, matrix.AllClose(want, got, 1e-12))

			mixed, err := f.DecisionFunction(ctx, X)
			require.NoError(t, err)
			assert.True(t, matrix.AllClose(want, mixed, 1e-12))
		})
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	ctx := context.Background()
	X, y := irisBinary()

	seq := newForest(9, 5)
	require.NoError(t, seq.Fit(ctx, X, y))
	want, err := seq.DecisionFunction(ctx, X)
	require.NoError(t, err)
	wantState, err := seq.State()
	require.NoError(t, err)

	for _, workers := range []int{1, 2, 4, 16} {
		f := newForest(9, 5)
		require.NoError(t, f.FitParallel(ctx, X, y, workers))
		st, err := f.State()
		require.NoError(t, err)
		assert.Equal(t, wantState, st, "workers=%d", workers)

		got, err := f.DecisionFunctionParallel(ctx, X, workers)
		require.NoError(t, err)
		assert.Equal(t, want.RawData(), got.RawData(), "workers=%d", workers)
	}

	sparse := matrix.SparseRowFromDense(X)
	got, err := seq.DecisionFunctionParallel(ctx, sparse, 3)
	require.NoError(t, err)
	assert.True(t, matrix.AllClose(want, got, 1e-12))
}

func TestInvalidWorkers(t *testing.T) {
	ctx := context.Background()
	X, y := irisBinary()
	f := newForest(2, 1)
	assert.True(t, errors.Is(f.FitParallel(ctx, X, y, 0), xerrors.ErrInvalidWorkers))
	require.NoError(t, f.Fit(ctx, X, y))
	_, err := f.DecisionFunctionParallel(ctx, X, -1)
	assert.True(t, errors.Is(err, xerrors.ErrInvalidWorkers))
}

func TestFailedFitLeavesForestUnchanged(t *testing.T) {
	ctx := context.Background()
	X, y := irisBinary()

	fresh := newForest(4, 2)
	bad := matrix.Zeros(X.Rows(), 1)
	for i := range X.Rows() {
		bad.Set(i, 0, 2) // Gini 只接受 {0,1} 目标
	}
	err := fresh.Fit(ctx, X, bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, xerrors.ErrInvalidInput))
	assert.False(t, fresh.IsFitted())

	f := newForest(4, 2)
	require.NoError(t, f.Fit(ctx, X, y))
	before, err := f.State()
	require.NoError(t, err)

	require.Error(t, f.FitParallel(ctx, X, bad, 3))
	after, err := f.State()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	var xe *xerrors.Error
	err = f.Fit(ctx, X, bad)
	require.True(t, errors.As(err, &xe))
	assert.Equal(t, 0, xe.Context["tree"])
}

func TestFitErrors(t *testing.T) {
	ctx := context.Background()
	f := newForest(3, 1)

	err := f.Fit(ctx, matrix.Zeros(0, 4), matrix.Zeros(0, 1))
	assert.True(t, errors.Is(err, xerrors.ErrEmptyPopulation))

	err = f.Fit(ctx, matrix.Zeros(5, 4), matrix.Zeros(4, 1))
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))

	_, err = f.DecisionFunction(ctx, matrix.Zeros(2, 4))
	assert.True(t, errors.Is(err, xerrors.ErrNotFitted))

	X, y := irisBinary()
	require.NoError(t, f.Fit(ctx, X, y))
	_, err = f.DecisionFunction(ctx, matrix.Zeros(2, 3))
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))
}

func TestEmptyForest(t *testing.T) {
	ctx := context.Background()
	X, y := irisBinary()
	f := newForest(0, 1)
	assert.Equal(t, 0, f.NumTrees())
	require.NoError(t, f.Fit(ctx, X, y))
	assert.False(t, f.IsFitted())

	_, err := f.DecisionFunction(ctx, X)
	assert.True(t, errors.Is(err, xerrors.ErrEmptyForest))
	_, err = f.FeatureImportances()
	assert.True(t, errors.Is(err, xerrors.ErrEmptyForest))

	assert.Equal(t, 0, NewHyperparameters(tree.NewHyperparameters(4), -3).NumTrees())
}

func TestConsecutiveFitsDiffer(t *testing.T) {
	ctx := context.Background()
	X, y := irisBinary()
	f := newForest(3, 8)
	require.NoError(t, f.Fit(ctx, X, y))
	first, err := f.State()
	require.NoError(t, err)
	require.NoError(t, f.Fit(ctx, X, y))
	second, err := f.State()
	require.NoError(t, err)

	assert.NotEqual(t, first.RNG, second.RNG)
	assert.NotEqual(t, first.Trees, second.Trees)
}

func TestFeatureImportances(t *testing.T) {
	ctx := context.Background()
	X, y := irisBinary()
	f := newForest(10, 4)
	require.NoError(t, f.Fit(ctx, X, y))
	imp, err := f.FeatureImportances()
	require.NoError(t, err)
	require.Len(t, imp, 4)

	total := 0.0
	for _, v := range imp {
		assert.GreaterOrEqual(t, v, 0.0)
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	// 花瓣尺寸比花萼更能区分 virginica
	assert.Greater(t, imp[2]+imp[3], imp[0]+imp[1])
}

func TestObserverMetrics(t *testing.T) {
	ctx := context.Background()
	X, y := irisBinary()
	m := metrics.NewMetrics("forest-test")
	o := NewObserver(m)

	f := newForest(4, 6).SetObserver(o)
	require.NoError(t, f.FitParallel(ctx, X, y, 2))
	_, err := f.DecisionFunction(ctx, X)
	require.NoError(t, err)
	require.Error(t, f.Fit(ctx, matrix.Zeros(0, 4), matrix.Zeros(0, 1)))

	assert.Equal(t, 4.0, testutil.ToFloat64(o.treesFitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.fitFailures))
	assert.Equal(t, 150.0, testutil.ToFloat64(o.predictedRows))

	n, err := testutil.GatherAndCount(m.Gatherer(), "worker_pool_tasks_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// TestIrisOneVsRest 10 棵树、最小分裂样本 10、全部 4 个特征、10 折交叉验证.
func TestIrisOneVsRest(t *testing.T) {
	ctx := context.Background()
	X, y := datasets.LoadIris()

	cv := evaluation.NewCrossValidation(X.Rows(), 10).SetRNG(randx.FromUint64(6))
	tp := tree.NewHyperparameters(4).SetMinSamplesSplit(10).SetMaxFeatures(4)

	run := func(t *testing.T, in func(*matrix.Dense) matrix.Input, fit func(*OneVsRestForest, matrix.Input, *matrix.Dense) error) float64 {
		folds, err := cv.All()
		require.NoError(t, err)
		acc := 0.0
		for train, test := range folds {
			model := NewHyperparameters(tp, 10).SetRNG(randx.FromUint64(6)).OneVsRest()
			require.NoError(t, fit(model, in(X.GetRows(train)), y.GetRows(train)))

			pred, err := model.Predict(ctx, in(X.GetRows(test)))
			require.NoError(t, err)
			a, err := evaluation.AccuracyScore(y.GetRows(test), pred)
			require.NoError(t, err)
			acc += a
		}
		return acc / 10
	}
	dense := func(d *matrix.Dense) matrix.Input { return d }
	sequential := func(m *OneVsRestForest, X matrix.Input, y *matrix.Dense) error { return m.Fit(ctx, X, y) }

	acc := run(t, dense, sequential)
	assert.Greater(t, acc, 0.96)

	sparse := run(t, func(d *matrix.Dense) matrix.Input { return matrix.SparseRowFromDense(d) }, sequential)
	assert.Equal(t, acc, sparse)

	parallel := run(t, dense, func(m *OneVsRestForest, X matrix.Input, y *matrix.Dense) error { return m.FitParallel(ctx, X, y, 3) })
	assert.Equal(t, acc, parallel)
}
