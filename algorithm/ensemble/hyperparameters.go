package ensemble

import (
	"github.com/wyfcoding/forest/algorithm/multiclass"
	"github.com/wyfcoding/forest/algorithm/randx"
	"github.com/wyfcoding/forest/algorithm/tree"
)

// OneVsRestForest 是以随机森林为基模型的一对多分类器.
type OneVsRestForest = multiclass.OneVsRest[RandomForest, *RandomForest]

// Hyperparameters 随机森林配置：树超参数、树的数量以及派生每棵树种子的主随机流.
type Hyperparameters struct {
	treeParams *tree.Hyperparameters
	rng        *randx.Stream
	numTrees   int
}

// NewHyperparameters 创建配置，主随机流使用固定默认种子.
// numTrees 为 0 时得到空森林，负数按 0 处理.
func NewHyperparameters(treeParams *tree.Hyperparameters, numTrees int) *Hyperparameters {
	return &Hyperparameters{
		treeParams: treeParams.Clone(),
		rng:        randx.Default(),
		numTrees:   max(numTrees, 0),
	}
}

// SetRNG 替换主随机流 (保存副本).
func (h *Hyperparameters) SetRNG(s *randx.Stream) *Hyperparameters {
	h.rng = s.Clone()
	return h
}

// NumTrees 返回树的数量.
func (h *Hyperparameters) NumTrees() int { return h.numTrees }

// TreeHyperparameters 返回树超参数的副本.
func (h *Hyperparameters) TreeHyperparameters() *tree.Hyperparameters { return h.treeParams.Clone() }

// Build 构建未训练的森林.
// 每棵树的种子依次从主随机流的副本中抽取，森林的采样流是主随机流的另一个副本，
// 因此对同一配置多次 Build 得到完全相同的森林.
func (h *Hyperparameters) Build() *RandomForest {
	master := h.rng.Clone()
	trees := make([]*tree.DecisionTree, h.numTrees)
	for i := range trees {
		trees[i] = h.treeParams.Clone().Reseed(master.Seed32()).Build()
	}
	return &RandomForest{
		trees: trees,
		rng:   h.rng.Clone(),
	}
}

// OneVsRest 构建森林并包装为一对多分类器.
func (h *Hyperparameters) OneVsRest() *OneVsRestForest {
	return multiclass.New(h.Build())
}
