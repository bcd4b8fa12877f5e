package tree

import (
	"strings"

	"github.com/wyfcoding/forest/algorithm/randx"
	"github.com/wyfcoding/forest/xerrors"
)

// Criterion 节点不纯度的度量方式.
type Criterion int

const (
	// CriterionGini 基尼不纯度，要求目标值为 0/1.
	CriterionGini Criterion = iota
	// CriterionEntropy 信息熵，要求目标值为 0/1.
	CriterionEntropy
	// CriterionMSE 均方误差 (方差)，用于回归.
	CriterionMSE
)

func (c Criterion) String() string {
	switch c {
	case CriterionGini:
		return "gini"
	case CriterionEntropy:
		return "entropy"
	case CriterionMSE:
		return "mse"
	default:
		return "unknown"
	}
}

// ParseCriterion 解析配置中的不纯度名称.
func ParseCriterion(s string) (Criterion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gini", "":
		return CriterionGini, nil
	case "entropy":
		return CriterionEntropy, nil
	case "mse", "variance":
		return CriterionMSE, nil
	default:
		return 0, xerrors.Wrap(xerrors.ErrInvalidConfig, xerrors.ErrInvalidArg, "unknown criterion").
			WithDetail("criterion %q", s)
	}
}

// params 是决策树训练所需的全部数值参数.
type params struct {
	numFeatures     int       // 输入特征数。
	maxDepth        int       // 最大深度，0 表示不限制。
	minSamplesSplit int       // 节点继续分裂所需的最小样本数。
	maxFeatures     int       // 每个节点随机考察的候选特征数。
	criterion       Criterion // 不纯度度量。
}

func (p params) validate() error {
	switch {
	case p.numFeatures < 1:
		return invalid("num_features must be positive, got %d", p.numFeatures)
	case p.maxDepth < 0:
		return invalid("max_depth must be non-negative, got %d", p.maxDepth)
	case p.minSamplesSplit < 2:
		return invalid("min_samples_split must be at least 2, got %d", p.minSamplesSplit)
	case p.maxFeatures < 1 || p.maxFeatures > p.numFeatures:
		return invalid("max_features must be in [1, %d], got %d", p.numFeatures, p.maxFeatures)
	case p.criterion < CriterionGini || p.criterion > CriterionMSE:
		return invalid("unknown criterion %d", int(p.criterion))
	}
	return nil
}

func invalid(format string, args ...any) error {
	return xerrors.Wrap(xerrors.ErrInvalidConfig, xerrors.ErrInvalidArg, "invalid tree hyperparameters").
		WithDetail(format, args...)
}

// Hyperparameters 决策树超参数，可克隆，并可用 32 字节种子重新播种.
// 非法取值不会在设置时报错，而是在 Fit 时返回 ErrInvalidConfig.
type Hyperparameters struct {
	rng *randx.Stream
	params
}

// NewHyperparameters 创建默认超参数：不限深度、最小分裂样本 2、考察全部特征、基尼不纯度.
func NewHyperparameters(numFeatures int) *Hyperparameters {
	return &Hyperparameters{
		params: params{
			numFeatures:     numFeatures,
			maxDepth:        0,
			minSamplesSplit: 2,
			maxFeatures:     numFeatures,
			criterion:       CriterionGini,
		},
		rng: randx.Default(),
	}
}

// SetMaxDepth 设置最大深度，0 表示不限制.
func (h *Hyperparameters) SetMaxDepth(depth int) *Hyperparameters {
	h.maxDepth = depth
	return h
}

// SetMinSamplesSplit 设置节点继续分裂所需的最小样本数.
func (h *Hyperparameters) SetMinSamplesSplit(n int) *Hyperparameters {
	h.minSamplesSplit = n
	return h
}

// SetMaxFeatures 设置每个节点随机考察的候选特征数.
func (h *Hyperparameters) SetMaxFeatures(n int) *Hyperparameters {
	h.maxFeatures = n
	return h
}

// SetCriterion 设置不纯度度量.
func (h *Hyperparameters) SetCriterion(c Criterion) *Hyperparameters {
	h.criterion = c
	return h
}

// SetRNG 设置树内部的随机流 (保存副本).
func (h *Hyperparameters) SetRNG(s *randx.Stream) *Hyperparameters {
	h.rng = s.Clone()
	return h
}

// Reseed 用 32 字节种子替换随机流.
func (h *Hyperparameters) Reseed(seed [randx.SeedSize]byte) *Hyperparameters {
	h.rng = randx.New(seed)
	return h
}

// Clone 深拷贝.
func (h *Hyperparameters) Clone() *Hyperparameters {
	return &Hyperparameters{params: h.params, rng: h.rng.Clone()}
}

// Build 生成一棵未训练的决策树.
func (h *Hyperparameters) Build() *DecisionTree {
	return &DecisionTree{params: h.params, rng: h.rng.Clone()}
}

func (h *Hyperparameters) NumFeatures() int { return h.numFeatures }

func (h *Hyperparameters) MaxDepth() int { return h.maxDepth }

func (h *Hyperparameters) MinSamplesSplit() int { return h.minSamplesSplit }

func (h *Hyperparameters) MaxFeatures() int { return h.maxFeatures }

func (h *Hyperparameters) Criterion() Criterion { return h.criterion }

// Validate 校验超参数.
func (h *Hyperparameters) Validate() error { return h.validate() }
