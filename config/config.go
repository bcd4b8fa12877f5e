// Package config 提供训练、评估与预测共用的配置加载与校验.
package config

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/wyfcoding/forest/algorithm/ensemble"
	"github.com/wyfcoding/forest/algorithm/randx"
	"github.com/wyfcoding/forest/algorithm/tree"
	"github.com/wyfcoding/forest/logging"
	"github.com/wyfcoding/forest/retry"
	"github.com/wyfcoding/forest/storage"
	"github.com/wyfcoding/forest/tracing"
	"github.com/wyfcoding/forest/xerrors"
)

// EnvPrefix 环境变量前缀，例如 FOREST_FOREST_NUM_TREES 覆盖 forest.num_trees.
const EnvPrefix = "FOREST"

// Config 全局顶级配置结构.
type Config struct {
	Log      logging.Config `mapstructure:"log"      toml:"log"`
	Forest   ForestConfig   `mapstructure:"forest"   toml:"forest"`
	Tree     TreeConfig     `mapstructure:"tree"     toml:"tree"`
	Parallel ParallelConfig `mapstructure:"parallel" toml:"parallel"`
	Storage  storage.Config `mapstructure:"storage"  toml:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  toml:"metrics"`
	Tracing  tracing.Config `mapstructure:"tracing"  toml:"tracing"`
}

// ForestConfig 森林规模、种子与模型输出格式.
type ForestConfig struct {
	NumTrees int    `mapstructure:"num_trees" toml:"num_trees" validate:"min=0"`
	Seed     uint64 `mapstructure:"seed"      toml:"seed"`      // 0 表示使用内置默认种子
	Format   string `mapstructure:"format"    toml:"format"    validate:"oneof=binary binary+zstd json yaml"`
	Folds    int    `mapstructure:"folds"     toml:"folds"     validate:"min=2"` // evaluate 的交叉验证折数
}

// TreeConfig 决策树超参数.
type TreeConfig struct {
	MaxDepth        int    `mapstructure:"max_depth"         toml:"max_depth"         validate:"min=0"` // 0 表示不限
	MinSamplesSplit int    `mapstructure:"min_samples_split" toml:"min_samples_split" validate:"min=2"`
	MaxFeatures     int    `mapstructure:"max_features"      toml:"max_features"      validate:"min=0"` // 0 表示全部特征
	Criterion       string `mapstructure:"criterion"         toml:"criterion"         validate:"oneof=gini entropy mse"`
}

// ParallelConfig 并行度，0 表示顺序执行.
type ParallelConfig struct {
	Workers int `mapstructure:"workers" toml:"workers" validate:"min=0"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Port    string `mapstructure:"port"    toml:"port"    validate:"required_if=Enabled true"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// Default 返回无需配置文件即可使用的默认配置.
func Default() *Config {
	return &Config{
		Log: logging.Config{
			Service:    "forest",
			Module:     "cli",
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Forest:   ForestConfig{NumTrees: 10, Format: "binary", Folds: 10},
		Tree:     TreeConfig{MinSamplesSplit: 2, Criterion: "gini"},
		Parallel: ParallelConfig{Workers: 0},
		Storage:  storage.Config{Driver: storage.DriverLocal, Root: ".", Retry: retry.DefaultConfig()},
		Metrics:  MetricsConfig{Port: "9090"},
		Tracing:  tracing.Config{ServiceName: "forest", SampleRatio: 1},
	}
}

// Load 读取 TOML 配置文件并叠加环境变量，path 为空时只使用默认值与环境变量.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, xerrors.Wrap(xerrors.ErrInvalidConfig, xerrors.ErrInvalidArg, "read config").
				WithDetail("%s: %v", path, err)
		}
	}

	conf := Default()
	if err := v.Unmarshal(conf); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidConfig, xerrors.ErrInvalidArg, "unmarshal config").WithDetail("%v", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// setDefaults 把默认配置逐项登记到 viper，使 AutomaticEnv 能覆盖每一个键.
func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]any{
		"log.service":                   d.Log.Service,
		"log.module":                    d.Log.Module,
		"log.level":                     d.Log.Level,
		"log.file":                      d.Log.File,
		"log.max_size":                  d.Log.MaxSize,
		"log.max_backups":               d.Log.MaxBackups,
		"log.max_age":                   d.Log.MaxAge,
		"log.compress":                  d.Log.Compress,
		"log.console":                   d.Log.Console,
		"forest.num_trees":              d.Forest.NumTrees,
		"forest.seed":                   d.Forest.Seed,
		"forest.format":                 d.Forest.Format,
		"forest.folds":                  d.Forest.Folds,
		"tree.max_depth":                d.Tree.MaxDepth,
		"tree.min_samples_split":        d.Tree.MinSamplesSplit,
		"tree.max_features":             d.Tree.MaxFeatures,
		"tree.criterion":                d.Tree.Criterion,
		"parallel.workers":              d.Parallel.Workers,
		"storage.driver":                d.Storage.Driver,
		"storage.root":                  d.Storage.Root,
		"storage.endpoint":              d.Storage.Endpoint,
		"storage.access_key_id":         d.Storage.AccessKeyID,
		"storage.secret_access_key":     d.Storage.SecretAccessKey,
		"storage.bucket_name":           d.Storage.BucketName,
		"storage.use_ssl":               d.Storage.UseSSL,
		"storage.retry.max_retries":     d.Storage.Retry.MaxRetries,
		"storage.retry.initial_backoff": d.Storage.Retry.InitialBackoff,
		"storage.retry.max_backoff":     d.Storage.Retry.MaxBackoff,
		"storage.retry.multiplier":      d.Storage.Retry.Multiplier,
		"storage.retry.jitter":          d.Storage.Retry.Jitter,
		"metrics.port":                  d.Metrics.Port,
		"metrics.enabled":               d.Metrics.Enabled,
		"tracing.service_name":          d.Tracing.ServiceName,
		"tracing.otlp_endpoint":         d.Tracing.OTLPEndpoint,
		"tracing.sample_ratio":          d.Tracing.SampleRatio,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate 按结构体标签校验配置.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return xerrors.Wrap(xerrors.ErrInvalidConfig, xerrors.ErrInvalidArg, "config validation failed").
			WithDetail("%v", err)
	}
	return nil
}

// TreeHyperparameters 按配置构造 numFeatures 个特征上的决策树超参数.
func (c *Config) TreeHyperparameters(numFeatures int) (*tree.Hyperparameters, error) {
	criterion, err := tree.ParseCriterion(c.Tree.Criterion)
	if err != nil {
		return nil, err
	}
	h := tree.NewHyperparameters(numFeatures).
		SetMaxDepth(c.Tree.MaxDepth).
		SetMinSamplesSplit(c.Tree.MinSamplesSplit).
		SetCriterion(criterion)
	if c.Tree.MaxFeatures > 0 {
		h.SetMaxFeatures(min(c.Tree.MaxFeatures, numFeatures))
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Hyperparameters 按配置构造森林超参数.
func (c *Config) Hyperparameters(numFeatures int) (*ensemble.Hyperparameters, error) {
	tp, err := c.TreeHyperparameters(numFeatures)
	if err != nil {
		return nil, err
	}
	h := ensemble.NewHyperparameters(tp, c.Forest.NumTrees)
	if c.Forest.Seed != 0 {
		h.SetRNG(randx.FromUint64(c.Forest.Seed))
	}
	return h, nil
}

// PrintWithMask 以 debug 级别脱敏打印当前配置.
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)

		return
	}

	var configMap map[string]any
	if unmarshalErr := json.Unmarshal(data, &configMap); unmarshalErr != nil {
		slog.Error("failed to unmarshal config for masking", "error", unmarshalErr)

		return
	}

	mask(configMap)

	maskedJSON, marshalErr := json.MarshalIndent(configMap, "  ", "  ")
	if marshalErr != nil {
		slog.Error("failed to marshal masked config", "error", marshalErr)

		return
	}

	slog.Debug("current effective configuration", "config", string(maskedJSON))
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "key", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)

			continue
		}

		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"

				break
			}
		}
	}
}
