package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wyfcoding/forest/algorithm/evaluation"
	"github.com/wyfcoding/forest/algorithm/randx"
	"github.com/wyfcoding/forest/algorithm/tree"
	"github.com/wyfcoding/forest/logging"
	"github.com/wyfcoding/forest/xerrors"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		data    dataFlags
		folds   int
		workers int
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Report k-fold cross-validated accuracy of a one-vs-rest forest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			defer logging.LogDuration(ctx, "evaluate")()

			if !cmd.Flags().Changed("folds") {
				folds = a.conf.Forest.Folds
			}
			if !cmd.Flags().Changed("workers") {
				workers = a.conf.Parallel.Workers
			}
			X, y, err := data.load(false)
			if err != nil {
				return err
			}
			h, err := a.conf.Hyperparameters(X.Cols())
			if err != nil {
				return err
			}
			if h.TreeHyperparameters().Criterion() == tree.CriterionMSE {
				return xerrors.Wrap(xerrors.ErrInvalidConfig, xerrors.ErrInvalidArg, "accuracy needs a classification criterion").
					WithContext("criterion", a.conf.Tree.Criterion)
			}

			cv := evaluation.NewCrossValidation(X.Rows(), folds)
			if a.conf.Forest.Seed != 0 {
				cv.SetRNG(randx.FromUint64(a.conf.Forest.Seed))
			}
			splits, err := cv.Folds()
			if err != nil {
				return err
			}

			total := 0.0
			for i, fold := range splits {
				model, err := a.fit(ctx, X.SubsetRows(fold.Train), y.GetRows(fold.Train), workers)
				if err != nil {
					return xerrors.Wrap(err, xerrors.ErrInternal, "fit fold").WithContext("fold", i)
				}
				pred, err := a.predict(ctx, model, X.SubsetRows(fold.Test), workers)
				if err != nil {
					return err
				}
				acc, err := evaluation.AccuracyScore(y.GetRows(fold.Test), pred)
				if err != nil {
					return err
				}
				logging.Debug(ctx, "fold evaluated", "fold", i, "accuracy", acc)
				total += acc
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%.4f\n", total/float64(len(splits)))
			return nil
		},
	}
	data.register(cmd, true)
	cmd.Flags().IntVarP(&folds, "folds", "k", 10, "number of cross-validation folds")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel workers, 0 runs sequentially")
	return cmd
}
