// Package multiclass 把二分类打分模型扩展为多分类器 (一对多).
package multiclass

import (
	"context"
	"encoding"
	"slices"
	"sync"

	"github.com/wyfcoding/forest/algorithm/matrix"
	"github.com/wyfcoding/forest/logging"
	"github.com/wyfcoding/forest/tracing"
	"github.com/wyfcoding/forest/xerrors"
	"golang.org/x/sync/errgroup"
)

// Estimator 是一对多包装器要求的基模型能力.
type Estimator[T any] interface {
	*T
	Fit(ctx context.Context, X matrix.Input, y *matrix.Dense) error
	DecisionFunction(ctx context.Context, X matrix.Input) (*matrix.Dense, error)
	Clone() *T
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// OneVsRest 为每个类别训练一个基模型副本，目标值二值化为 {0,1}.
// 类别为目标中出现的不同取值，升序排列.
type OneVsRest[T any, PT Estimator[T]] struct {
	base    PT
	classes []float64
	models  []PT
	mu      sync.RWMutex
}

// New 以 base 为模板创建包装器，base 本身不会被训练.
func New[T any, PT Estimator[T]](base PT) *OneVsRest[T, PT] {
	return &OneVsRest[T, PT]{base: base}
}

// Classes 返回类别标签副本.
func (o *OneVsRest[T, PT]) Classes() []float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.classes)
}

// Models 返回每个类别的模型，顺序与 Classes 一致.
func (o *OneVsRest[T, PT]) Models() []PT {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.models)
}

// IsFitted 判断是否已训练.
func (o *OneVsRest[T, PT]) IsFitted() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.models) > 0
}

// Fit 依次训练每个类别的模型.
func (o *OneVsRest[T, PT]) Fit(ctx context.Context, X matrix.Input, y *matrix.Dense) error {
	return o.fit(ctx, X, y, 0)
}

// FitParallel 最多同时训练 workers 个类别.
func (o *OneVsRest[T, PT]) FitParallel(ctx context.Context, X matrix.Input, y *matrix.Dense, workers int) error {
	if err := checkWorkers(workers); err != nil {
		return err
	}
	return o.fit(ctx, X, y, workers)
}

func (o *OneVsRest[T, PT]) fit(ctx context.Context, X matrix.Input, y *matrix.Dense, workers int) (err error) {
	ctx, span := tracing.StartSpan(ctx, "multiclass.Fit")
	defer span.End()
	defer func() { tracing.SetError(ctx, err) }()

	if y == nil || y.Cols() != 1 || y.Rows() != X.Rows() {
		return xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "target must be a rows x 1 column")
	}
	if y.Rows() == 0 {
		return xerrors.Wrap(xerrors.ErrEmptyData, xerrors.ErrInvalidArg, "cannot fit one-vs-rest on zero rows")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	classes := slices.Clone(y.RawData())
	slices.Sort(classes)
	classes = slices.Compact(classes)
	tracing.Annotate(ctx, "multiclass.classes", len(classes), "multiclass.labels", classes)

	models := make([]PT, len(classes))
	fitClass := func(ctx context.Context, k int) error {
		m := PT(o.base.Clone())
		if err := m.Fit(ctx, X, binarize(y, classes[k])); err != nil {
			return xerrors.Wrap(err, xerrors.ErrInternal, "fit class model").WithContext("class", classes[k])
		}
		models[k] = m
		return nil
	}

	if workers > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for k := range classes {
			g.Go(func() error { return fitClass(gctx, k) })
		}
		err = g.Wait()
	} else {
		for k := range classes {
			if err = fitClass(ctx, k); err != nil {
				break
			}
		}
	}
	if err != nil {
		return err
	}

	o.classes, o.models = classes, models
	logging.Debug(ctx, "one-vs-rest fitted", "classes", len(classes), "rows", X.Rows(), "workers", workers)
	return nil
}

func binarize(y *matrix.Dense, class float64) *matrix.Dense {
	out := matrix.Zeros(y.Rows(), 1)
	for i, v := range y.RawData() {
		if v == class {
			out.Set(i, 0, 1)
		}
	}
	return out
}

// DecisionFunction 返回 rows x classes 的得分矩阵，第 k 列来自第 k 个类别的模型.
func (o *OneVsRest[T, PT]) DecisionFunction(ctx context.Context, X matrix.Input) (*matrix.Dense, error) {
	return o.score(ctx, X, 0)
}

// DecisionFunctionParallel 最多同时为 workers 个类别打分.
func (o *OneVsRest[T, PT]) DecisionFunctionParallel(ctx context.Context, X matrix.Input, workers int) (*matrix.Dense, error) {
	if err := checkWorkers(workers); err != nil {
		return nil, err
	}
	return o.score(ctx, X, workers)
}

func (o *OneVsRest[T, PT]) score(ctx context.Context, X matrix.Input, workers int) (*matrix.Dense, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.models) == 0 {
		return nil, xerrors.Wrap(xerrors.ErrNotFitted, xerrors.ErrFailedPrecondition, "one-vs-rest is not fitted")
	}

	out := matrix.Zeros(X.Rows(), len(o.models))
	scoreClass := func(ctx context.Context, k int) error {
		s, err := o.models[k].DecisionFunction(ctx, X)
		if err != nil {
			return xerrors.Wrap(err, xerrors.ErrInternal, "score class model").WithContext("class", o.classes[k])
		}
		// 每个类别只写自己的列
		for i := range X.Rows() {
			out.Set(i, k, s.At(i, 0))
		}
		return nil
	}

	if workers > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for k := range o.models {
			g.Go(func() error { return scoreClass(gctx, k) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	}
	for k := range o.models {
		if err := scoreClass(ctx, k); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Predict 返回每行得分最高的类别标签 (rows x 1)，得分相同时取较小的标签.
func (o *OneVsRest[T, PT]) Predict(ctx context.Context, X matrix.Input) (*matrix.Dense, error) {
	scores, err := o.DecisionFunction(ctx, X)
	if err != nil {
		return nil, err
	}
	return o.argmax(scores), nil
}

// PredictParallel 是 Predict 的并行版本.
func (o *OneVsRest[T, PT]) PredictParallel(ctx context.Context, X matrix.Input, workers int) (*matrix.Dense, error) {
	scores, err := o.DecisionFunctionParallel(ctx, X, workers)
	if err != nil {
		return nil, err
	}
	return o.argmax(scores), nil
}

func (o *OneVsRest[T, PT]) argmax(scores *matrix.Dense) *matrix.Dense {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := matrix.Zeros(scores.Rows(), 1)
	for i := range scores.Rows() {
		row := scores.RawRow(i)
		best := 0
		for k := 1; k < len(row); k++ {
			if row[k] > row[best] {
				best = k
			}
		}
		out.Set(i, 0, o.classes[best])
	}
	return out
}

func checkWorkers(workers int) error {
	if workers < 1 {
		return xerrors.Wrap(xerrors.ErrInvalidWorkers, xerrors.ErrInvalidArg, "workers must be at least 1").
			WithDetail("workers=%d", workers)
	}
	return nil
}
