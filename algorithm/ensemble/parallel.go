package ensemble

import (
	"context"

	"github.com/wyfcoding/forest/algorithm/matrix"
	"github.com/wyfcoding/forest/algorithm/tree"
	"github.com/wyfcoding/forest/logging"
	"github.com/wyfcoding/forest/worker"
	"github.com/wyfcoding/forest/xerrors"
)

// FitParallel 用 workers 个 worker 训练森林.
// 所有自助样本在分发前按树的顺序从采样流中抽取，结果与 Fit 逐比特相同.
func (f *RandomForest) FitParallel(ctx context.Context, X matrix.Input, y *matrix.Dense, workers int) error {
	if err := checkWorkers(workers); err != nil {
		return err
	}
	return f.fit(ctx, X, y, workers)
}

// DecisionFunctionParallel 用 workers 个 worker 计算各树输出，再在调用方按树的顺序求均值.
func (f *RandomForest) DecisionFunctionParallel(ctx context.Context, X matrix.Input, workers int) (*matrix.Dense, error) {
	if err := checkWorkers(workers); err != nil {
		return nil, err
	}
	return f.predict(ctx, X, workers)
}

func checkWorkers(workers int) error {
	if workers < 1 {
		return xerrors.Wrap(xerrors.ErrInvalidWorkers, xerrors.ErrInvalidArg, "workers must be at least 1").
			WithDetail("workers=%d", workers)
	}
	return nil
}

func (f *RandomForest) newPool(ctx context.Context, name string, workers int) *worker.Pool {
	return worker.NewPool(ctx,
		worker.WithName(name),
		worker.WithSize(min(workers, max(len(f.trees), 1))),
		worker.WithMetrics(f.observer.poolMetrics()),
		worker.WithLogger(logging.Default().Logger),
	)
}

func (f *RandomForest) fitParallel(ctx context.Context, X matrix.Input, y *matrix.Dense, samples [][]int, workers int) ([]*tree.DecisionTree, error) {
	trained := make([]*tree.DecisionTree, len(f.trees))
	pool := f.newPool(ctx, "forest-fit", workers)
	for i, t := range f.trees {
		if err := pool.Submit(func(context.Context) error {
			c, err := fitTree(i, t, X, y, samples[i])
			trained[i] = c
			return err
		}); err != nil {
			_ = pool.Wait()
			return nil, err
		}
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	return trained, nil
}

func (f *RandomForest) scoreParallel(ctx context.Context, X matrix.Columnar, workers int) ([]*matrix.Dense, error) {
	scores := make([]*matrix.Dense, len(f.trees))
	pool := f.newPool(ctx, "forest-predict", workers)
	for i, t := range f.trees {
		if err := pool.Submit(func(context.Context) error {
			s, err := scoreTree(i, t, X)
			scores[i] = s
			return err
		}); err != nil {
			_ = pool.Wait()
			return nil, err
		}
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
