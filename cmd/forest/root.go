package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/wyfcoding/forest/algorithm/datasets"
	"github.com/wyfcoding/forest/algorithm/ensemble"
	"github.com/wyfcoding/forest/algorithm/matrix"
	"github.com/wyfcoding/forest/config"
	"github.com/wyfcoding/forest/logging"
	"github.com/wyfcoding/forest/metrics"
	"github.com/wyfcoding/forest/modelio"
	"github.com/wyfcoding/forest/storage"
	"github.com/wyfcoding/forest/tracing"
	"github.com/wyfcoding/forest/xerrors"
)

// version 在构建时通过 -ldflags "-X main.version=..." 注入.
var version = "dev"

// app 保存一次命令执行期间共享的依赖.
type app struct {
	configPath  string
	logLevel    string
	metricsPort string

	conf     *config.Config
	metrics  *metrics.Metrics
	observer *ensemble.Observer
	store    *modelio.Store
	closers  []func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "forest",
		Short:         "Train, evaluate and apply random forest models",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a TOML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.metricsPort, "metrics-port", "", "expose prometheus metrics on this port while running")

	root.AddCommand(newTrainCmd(a), newPredictCmd(a), newEvaluateCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
		cmd.SetContext(ctx)
	}

	conf, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		conf.Log.Level = a.logLevel
	}
	if conf.Log.File == "" {
		conf.Log.Output = cmd.ErrOrStderr()
	}
	logging.Init(conf.Log)
	config.PrintWithMask(conf)
	a.conf = conf

	shutdown, err := tracing.InitTracer(ctx, conf.Tracing)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, shutdown)

	a.metrics = metrics.NewMetrics(conf.Log.Service)
	a.metrics.RegisterBuildInfo(conf.Log.Service, version)
	a.observer = ensemble.NewObserver(a.metrics)
	port := a.metricsPort
	if port == "" && conf.Metrics.Enabled {
		port = conf.Metrics.Port
	}
	if port != "" {
		stop := a.metrics.ExposeHttp(port)
		a.closers = append(a.closers, func(context.Context) error { stop(); return nil })
		logging.Info(ctx, "metrics exposed", "port", port)
	}

	s, err := storage.New(ctx, conf.Storage)
	if err != nil {
		return err
	}
	a.store = modelio.NewStore(s, a.metrics)
	return nil
}

func (a *app) close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// dataFlags 是读取样本的公共参数.
type dataFlags struct {
	path   string
	iris   bool
	sparse bool
	target int
	header bool
}

func (d *dataFlags) register(cmd *cobra.Command, withTarget bool) {
	cmd.Flags().StringVar(&d.path, "data", "", "CSV file with one sample per row")
	cmd.Flags().BoolVar(&d.sparse, "sparse", false, "load features into a compressed sparse matrix")
	cmd.Flags().BoolVar(&d.header, "header", true, "skip the first CSV line")
	if withTarget {
		cmd.Flags().BoolVar(&d.iris, "iris", false, "use the built-in iris dataset instead of --data")
		cmd.Flags().IntVar(&d.target, "target", -1, "index of the target column, negative counts from the end")
	}
}

// load 读取特征与目标；noTarget 时 y 为 nil.
func (d *dataFlags) load(noTarget bool) (matrix.Input, *matrix.Dense, error) {
	if d.iris {
		X, y := datasets.LoadIris()
		if d.sparse {
			return matrix.SparseRowFromDense(X), y, nil
		}
		return X, y, nil
	}
	if d.path == "" {
		return nil, nil, xerrors.Wrap(xerrors.ErrInvalidInput, xerrors.ErrInvalidArg, "no input data").
			WithDetail("pass --data or --iris")
	}
	f, err := os.Open(d.path)
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.ErrInvalidInput, xerrors.ErrInvalidArg, "open data file").WithDetail("%v", err)
	}
	defer f.Close()

	opts := datasets.CSVOptions{Header: d.header, Target: d.target, NoTarget: noTarget}
	if d.sparse {
		X, y, err := datasets.ReadSparseCSV(f, opts)
		if err != nil {
			return nil, nil, err
		}
		return X, y, nil
	}
	X, y, err := datasets.ReadCSV(f, opts)
	if err != nil {
		return nil, nil, err
	}
	return X, y, nil
}
