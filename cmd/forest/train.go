package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wyfcoding/forest/algorithm/matrix"
	"github.com/wyfcoding/forest/algorithm/multiclass"
	"github.com/wyfcoding/forest/algorithm/tree"
	"github.com/wyfcoding/forest/logging"
	"github.com/wyfcoding/forest/modelio"
)

func newTrainCmd(a *app) *cobra.Command {
	var (
		data    dataFlags
		out     string
		format  string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit a forest on labelled data and save it to storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			defer logging.LogDuration(ctx, "train")()

			if !cmd.Flags().Changed("format") {
				format = a.conf.Forest.Format
			}
			f, err := modelio.ParseFormat(format)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("workers") {
				workers = a.conf.Parallel.Workers
			}
			if out == "" {
				out = "model" + f.Extension()
			}

			X, y, err := data.load(false)
			if err != nil {
				return err
			}
			model, err := a.fit(ctx, X, y, workers)
			if err != nil {
				return err
			}
			env, err := a.store.Save(ctx, out, model, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s model %s to %s (%d bytes)\n", env.Kind, env.ID, env.Object, env.Size)
			return nil
		},
	}
	data.register(cmd, true)
	cmd.Flags().StringVarP(&out, "out", "o", "", "object name of the saved model (default model.<ext>)")
	cmd.Flags().StringVar(&format, "format", "binary", "model format: binary, binary+zstd, json, yaml")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel workers, 0 fits sequentially")
	return cmd
}

// fit 训练模型：回归准则得到单个森林，分类准则得到一对多森林.
func (a *app) fit(ctx context.Context, X matrix.Input, y *matrix.Dense, workers int) (modelio.Model, error) {
	h, err := a.conf.Hyperparameters(X.Cols())
	if err != nil {
		return nil, err
	}
	forest := h.Build().SetObserver(a.observer)

	if h.TreeHyperparameters().Criterion() == tree.CriterionMSE {
		if workers > 0 {
			err = forest.FitParallel(ctx, X, y, workers)
		} else {
			err = forest.Fit(ctx, X, y)
		}
		return forest, err
	}

	model := multiclass.New(forest)
	if workers > 0 {
		err = model.FitParallel(ctx, X, y, workers)
	} else {
		err = model.Fit(ctx, X, y)
	}
	if err != nil {
		return nil, err
	}
	logging.Info(ctx, "model trained", "classes", len(model.Classes()), "trees", forest.NumTrees(),
		"rows", X.Rows(), "features", X.Cols())
	return model, nil
}
