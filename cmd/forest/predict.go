package main

import (
	"bufio"
	"context"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/wyfcoding/forest/algorithm/ensemble"
	"github.com/wyfcoding/forest/algorithm/matrix"
	"github.com/wyfcoding/forest/algorithm/tree"
	"github.com/wyfcoding/forest/logging"
	"github.com/wyfcoding/forest/modelio"
	"github.com/wyfcoding/forest/xerrors"
)

func newPredictCmd(a *app) *cobra.Command {
	var (
		data     dataFlags
		model    string
		workers  int
		labelled bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Apply a saved model and print one prediction per row",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if model == "" {
				return xerrors.Wrap(xerrors.ErrInvalidInput, xerrors.ErrInvalidArg, "no model given").
					WithDetail("pass --model")
			}
			if !cmd.Flags().Changed("workers") {
				workers = a.conf.Parallel.Workers
			}

			m, env, err := a.store.Load(ctx, model)
			if err != nil {
				return err
			}
			X, _, err := data.load(!labelled)
			if err != nil {
				return err
			}
			pred, err := a.predict(ctx, m, X, workers)
			if err != nil {
				return err
			}
			logging.Info(ctx, "predictions computed", "model", env.Object, "kind", env.Kind, "rows", pred.Rows())

			w := bufio.NewWriter(cmd.OutOrStdout())
			for _, v := range pred.RawData() {
				w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
				w.WriteByte('\n')
			}
			return w.Flush()
		},
	}
	data.register(cmd, true)
	cmd.Flags().StringVarP(&model, "model", "m", "", "object name of a model saved by train")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel workers, 0 predicts sequentially")
	cmd.Flags().BoolVar(&labelled, "labelled", false, "the CSV carries a target column that is ignored")
	return cmd
}

// predict 分类器输出类别标签，回归森林与单棵树输出决策分数.
func (a *app) predict(ctx context.Context, m modelio.Model, X matrix.Input, workers int) (*matrix.Dense, error) {
	switch model := m.(type) {
	case *ensemble.OneVsRestForest:
		for _, f := range model.Models() {
			f.SetObserver(a.observer)
		}
		if workers > 0 {
			return model.PredictParallel(ctx, X, workers)
		}
		return model.Predict(ctx, X)
	case *ensemble.RandomForest:
		model.SetObserver(a.observer)
		if workers > 0 {
			return model.DecisionFunctionParallel(ctx, X, workers)
		}
		return model.DecisionFunction(ctx, X)
	case *tree.DecisionTree:
		return model.DecisionFunction(X.Columnar())
	default:
		return nil, xerrors.Wrap(xerrors.ErrUnsupportedFormat, xerrors.ErrInvalidArg, "model kind cannot predict").
			WithDetail("%T", m)
	}
}
