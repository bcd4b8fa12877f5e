// Package ensemble 实现基于自助采样与均值聚合的随机森林.
//
// 森林持有 N 棵决策树以及一条只用于自助采样的随机流。训练时每棵树在各自的自助样本上
// 训练，预测时取各树输出的算术平均。并行版本与顺序版本给出逐比特相同的结果.
package ensemble

import (
	"context"
	"sync"
	"time"

	"github.com/wyfcoding/forest/algorithm/matrix"
	"github.com/wyfcoding/forest/algorithm/randx"
	"github.com/wyfcoding/forest/algorithm/tree"
	"github.com/wyfcoding/forest/logging"
	"github.com/wyfcoding/forest/tracing"
	"github.com/wyfcoding/forest/xerrors"
	"gonum.org/v1/gonum/floats"
)

// RandomForest 随机森林模型.
// 训练期间独占；训练完成后可被多个 goroutine 并发预测.
type RandomForest struct {
	rng      *randx.Stream // 自助采样流，随每次成功训练推进。
	observer *Observer
	trees    []*tree.DecisionTree
	mu       sync.RWMutex
}

// SetObserver 设置指标收集器，nil 表示不采集.
func (f *RandomForest) SetObserver(o *Observer) *RandomForest {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observer = o
	return f
}

// NumTrees 返回树的数量.
func (f *RandomForest) NumTrees() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.trees)
}

// Trees 返回树的只读视图.
func (f *RandomForest) Trees() []*tree.DecisionTree {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*tree.DecisionTree(nil), f.trees...)
}

// IsFitted 判断森林非空且每棵树都已训练.
func (f *RandomForest) IsFitted() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.trees) == 0 {
		return false
	}
	for _, t := range f.trees {
		if !t.IsFitted() {
			return false
		}
	}
	return true
}

// Clone 深拷贝森林，包括每棵树和采样流；指标收集器共享.
func (f *RandomForest) Clone() *RandomForest {
	f.mu.RLock()
	defer f.mu.RUnlock()
	trees := make([]*tree.DecisionTree, len(f.trees))
	for i, t := range f.trees {
		trees[i] = t.Clone()
	}
	return &RandomForest{trees: trees, rng: f.rng.Clone(), observer: f.observer}
}

// Fit 顺序训练森林.
// 任一棵树训练失败时返回带树序号的错误，森林保持调用前的状态.
func (f *RandomForest) Fit(ctx context.Context, X matrix.Input, y *matrix.Dense) error {
	return f.fit(ctx, X, y, 0)
}

// DecisionFunction 返回各树输出的均值 (rows x 1).
func (f *RandomForest) DecisionFunction(ctx context.Context, X matrix.Input) (*matrix.Dense, error) {
	return f.predict(ctx, X, 0)
}

func (f *RandomForest) fit(ctx context.Context, X matrix.Input, y *matrix.Dense, workers int) (err error) {
	mode := modeSequential
	if workers > 0 {
		mode = modeParallel
	}
	ctx, span := tracing.StartSpan(ctx, "forest.Fit")
	defer span.End()
	start := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()
	defer func() {
		f.observer.observeFit(mode, start, len(f.trees), err)
		tracing.SetError(ctx, err)
	}()

	tracing.Annotate(ctx, "forest.trees", len(f.trees), "forest.mode", mode)

	if err := checkTrainingSet(X, y); err != nil {
		return err
	}

	// 在工作副本上推进采样流，全部成功后才提交
	rng := f.rng.Clone()
	samples := make([][]int, len(f.trees))
	for i := range samples {
		if samples[i], err = BootstrapIndices(X.Rows(), rng); err != nil {
			return err
		}
	}

	var trained []*tree.DecisionTree
	if workers > 0 {
		trained, err = f.fitParallel(ctx, X, y, samples, workers)
	} else {
		trained, err = f.fitSequential(X, y, samples)
	}
	if err != nil {
		logging.Debug(ctx, "forest fit failed", "mode", mode, "error", err)
		return err
	}

	f.trees = trained
	f.rng = rng
	logging.Debug(ctx, "forest fitted", "mode", mode, "trees", len(trained), "rows", X.Rows(),
		"features", X.Cols(), "workers", workers, "duration", time.Since(start))
	return nil
}

func (f *RandomForest) fitSequential(X matrix.Input, y *matrix.Dense, samples [][]int) ([]*tree.DecisionTree, error) {
	trained := make([]*tree.DecisionTree, len(f.trees))
	for i, t := range f.trees {
		c, err := fitTree(i, t, X, y, samples[i])
		if err != nil {
			return nil, err
		}
		trained[i] = c
	}
	return trained, nil
}

// fitTree 在自助样本上训练 t 的副本；按行压缩的稀疏输入在这里转换为按列压缩.
func fitTree(i int, t *tree.DecisionTree, X matrix.Input, y *matrix.Dense, idx []int) (*tree.DecisionTree, error) {
	c := t.Clone()
	if err := c.Fit(X.SubsetRows(idx).Columnar(), y.GetRows(idx)); err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrInternal, "fit tree").WithContext("tree", i)
	}
	return c, nil
}

func checkTrainingSet(X matrix.Input, y *matrix.Dense) error {
	if X.Rows() == 0 {
		return xerrors.Wrap(xerrors.ErrEmptyPopulation, xerrors.ErrInvalidArg, "cannot fit a forest on zero rows")
	}
	if y == nil || y.Cols() != 1 || y.Rows() != X.Rows() {
		r, c := 0, 0
		if y != nil {
			r, c = y.Dims()
		}
		return xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "target must be a rows x 1 column").
			WithDetail("X has %d rows, y is %dx%d", X.Rows(), r, c)
	}
	return nil
}

func (f *RandomForest) predict(ctx context.Context, X matrix.Input, workers int) (out *matrix.Dense, err error) {
	mode := modeSequential
	if workers > 0 {
		mode = modeParallel
	}
	ctx, span := tracing.StartSpan(ctx, "forest.DecisionFunction")
	defer span.End()
	start := time.Now()

	f.mu.RLock()
	defer f.mu.RUnlock()
	defer func() {
		f.observer.observePredict(mode, start, X.Rows(), err)
		tracing.SetError(ctx, err)
	}()

	if len(f.trees) == 0 {
		return nil, xerrors.Wrap(xerrors.ErrEmptyForest, xerrors.ErrFailedPrecondition, "cannot score with an empty forest")
	}

	cx := X.Columnar()
	var scores []*matrix.Dense
	if workers > 0 {
		scores, err = f.scoreParallel(ctx, cx, workers)
	} else {
		scores, err = f.scoreSequential(cx)
	}
	if err != nil {
		return nil, err
	}

	// 按树的顺序累加，保证并行与顺序结果逐比特相同
	out = matrix.Zeros(X.Rows(), 1)
	for _, s := range scores {
		if err := out.AddInPlace(s); err != nil {
			return nil, err
		}
	}
	out.DivInPlace(float64(len(scores)))

	logging.Debug(ctx, "forest scored", "mode", mode, "trees", len(f.trees), "rows", X.Rows(),
		"workers", workers, "duration", time.Since(start))
	return out, nil
}

func (f *RandomForest) scoreSequential(X matrix.Columnar) ([]*matrix.Dense, error) {
	scores := make([]*matrix.Dense, len(f.trees))
	for i, t := range f.trees {
		s, err := scoreTree(i, t, X)
		if err != nil {
			return nil, err
		}
		scores[i] = s
	}
	return scores, nil
}

func scoreTree(i int, t *tree.DecisionTree, X matrix.Columnar) (*matrix.Dense, error) {
	s, err := t.DecisionFunction(X)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrInternal, "score tree").WithContext("tree", i)
	}
	return s, nil
}

// FeatureImportances 返回各树特征重要性的均值.
func (f *RandomForest) FeatureImportances() ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.trees) == 0 {
		return nil, xerrors.Wrap(xerrors.ErrEmptyForest, xerrors.ErrFailedPrecondition, "empty forest has no importances")
	}
	var sum []float64
	for i, t := range f.trees {
		imp, err := t.FeatureImportances()
		if err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrFailedPrecondition, "tree importances").WithContext("tree", i)
		}
		if sum == nil {
			sum = imp
			continue
		}
		floats.Add(sum, imp)
	}
	floats.Scale(1/float64(len(f.trees)), sum)
	return sum, nil
}
