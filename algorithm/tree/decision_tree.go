// Package tree 实现随机森林使用的 CART 决策树基学习器.
//
// 树在 matrix.Columnar 视图上训练，叶子保存目标均值：对 {0,1} 目标即为正类概率，
// 对回归目标即为样本均值。节点以扁平切片存储，子节点通过下标引用.
package tree

import (
	"cmp"
	"math"
	"slices"
	"sync"

	"github.com/wyfcoding/forest/algorithm/matrix"
	"github.com/wyfcoding/forest/algorithm/randx"
	"github.com/wyfcoding/forest/xerrors"
	"gonum.org/v1/gonum/floats"
)

const (
	// Leaf 表示没有子节点.
	Leaf = -1

	// minImpurity 以下的节点视为纯节点.
	minImpurity = 1e-12
	// minGain 以下的分裂视为无效.
	minGain = 1e-12
)

// Node 决策树节点.
type Node struct {
	Feature   int     `json:"feature" yaml:"feature"`     // 分裂特征，叶子节点为 -1。
	Threshold float64 `json:"threshold" yaml:"threshold"` // 取值小于等于阈值走左子树。
	Left      int     `json:"left" yaml:"left"`
	Right     int     `json:"right" yaml:"right"`
	Value     float64 `json:"value" yaml:"value"`         // 节点样本的目标均值。
	Impurity  float64 `json:"impurity" yaml:"impurity"`
	Samples   int     `json:"samples" yaml:"samples"`
}

// IsLeaf 判断是否为叶子节点.
func (n Node) IsLeaf() bool { return n.Left == Leaf }

// DecisionTree 决策树模型.
type DecisionTree struct {
	rng   *randx.Stream
	nodes []Node
	params
	mu sync.RWMutex
}

// NumFeatures 返回训练与预测要求的特征数.
func (t *DecisionTree) NumFeatures() int { return t.numFeatures }

// Criterion 返回不纯度度量.
func (t *DecisionTree) Criterion() Criterion { return t.criterion }

// IsFitted 判断是否已训练.
func (t *DecisionTree) IsFitted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes) > 0
}

// NumNodes 返回节点数，未训练时为 0.
func (t *DecisionTree) NumNodes() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Nodes 返回节点副本.
func (t *DecisionTree) Nodes() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.nodes)
}

// Depth 返回树深度，只有根节点时为 0.
func (t *DecisionTree) Depth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.nodes) == 0 {
		return 0
	}
	depth := make([]int, len(t.nodes))
	deepest := 0
	// 子节点下标总是大于父节点
	for i, n := range t.nodes {
		if n.IsLeaf() {
			deepest = max(deepest, depth[i])
			continue
		}
		depth[n.Left] = depth[i] + 1
		depth[n.Right] = depth[i] + 1
	}
	return deepest
}

// Clone 深拷贝，包括内部随机流.
func (t *DecisionTree) Clone() *DecisionTree {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &DecisionTree{
		params: t.params,
		rng:    t.rng.Clone(),
		nodes:  slices.Clone(t.nodes),
	}
}

// Fit 在 X (rows x numFeatures) 与 y (rows x 1) 上训练.
// 失败时树保持调用前的状态；成功时替换节点并提交推进后的随机流.
func (t *DecisionTree) Fit(X matrix.Columnar, y *matrix.Dense) error {
	if err := t.validate(); err != nil {
		return err
	}
	if X.Rows() == 0 {
		return xerrors.Wrap(xerrors.ErrEmptyData, xerrors.ErrInvalidArg, "cannot fit a tree on zero rows")
	}
	if X.Cols() != t.numFeatures {
		return xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "feature count mismatch").
			WithDetail("expected %d features, got %d", t.numFeatures, X.Cols())
	}
	if y == nil || y.Rows() != X.Rows() || y.Cols() != 1 {
		r, c := 0, 0
		if y != nil {
			r, c = y.Dims()
		}
		return xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "target must be a rows x 1 column").
			WithDetail("X has %d rows, y is %dx%d", X.Rows(), r, c)
	}
	target := y.RawData()
	for i, v := range target {
		if t.criterion != CriterionMSE && v != 0 && v != 1 {
			return xerrors.Wrap(xerrors.ErrInvalidInput, xerrors.ErrInvalidArg, "classification target must be 0 or 1").
				WithDetail("row %d has target %v, criterion %s", i, v, t.criterion)
		}
		if !finite(v) {
			return xerrors.Wrap(xerrors.ErrInvalidInput, xerrors.ErrInvalidArg, "target must be finite").
				WithDetail("row %d has target %v", i, v)
		}
	}
	rows := make([]int, X.Rows())
	for i := range rows {
		rows[i] = i
	}
	if err := checkFinite(X, rows); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b := &builder{
		params: t.params,
		x:      X,
		y:      target,
		rng:    t.rng.Clone(),
		perm:   make([]int, t.numFeatures),
		values: make([]float64, X.Rows()),
		order:  make([]int, X.Rows()),
		stats:  make([]float64, X.Rows()),
	}
	for j := range b.perm {
		b.perm[j] = j
	}
	b.grow(rows, 0)

	t.nodes = b.nodes
	t.rng = b.rng
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// checkFinite 拒绝 NaN 与 ±Inf 特征值，它们无法产生有效的分裂阈值.
func checkFinite(X matrix.Columnar, rows []int) error {
	col := make([]float64, len(rows))
	for j := range X.Cols() {
		X.Gather(j, rows, col)
		for i, v := range col {
			if !finite(v) {
				return xerrors.Wrap(xerrors.ErrInvalidInput, xerrors.ErrInvalidArg, "feature values must be finite").
					WithDetail("row %d column %d has value %v", i, j, v)
			}
		}
	}
	return nil
}

// DecisionFunction 返回每行的叶子取值 (rows x 1).
func (t *DecisionTree) DecisionFunction(X matrix.Columnar) (*matrix.Dense, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.nodes) == 0 {
		return nil, xerrors.Wrap(xerrors.ErrNotFitted, xerrors.ErrFailedPrecondition, "decision tree is not fitted")
	}
	if X.Cols() != t.numFeatures {
		return nil, xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "feature count mismatch").
			WithDetail("expected %d features, got %d", t.numFeatures, X.Cols())
	}
	out := matrix.Zeros(X.Rows(), 1)
	for i := range X.Rows() {
		out.Set(i, 0, t.nodes[t.leaf(X, i)].Value)
	}
	return out, nil
}

func (t *DecisionTree) leaf(X matrix.Columnar, row int) int {
	k := 0
	for {
		n := t.nodes[k]
		if n.IsLeaf() {
			return k
		}
		if X.At(row, n.Feature) <= n.Threshold {
			k = n.Left
		} else {
			k = n.Right
		}
	}
}

// FeatureImportances 返回归一化的不纯度下降量，长度为 numFeatures.
// 从未发生分裂的树返回全零.
func (t *DecisionTree) FeatureImportances() ([]float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.nodes) == 0 {
		return nil, xerrors.Wrap(xerrors.ErrNotFitted, xerrors.ErrFailedPrecondition, "decision tree is not fitted")
	}
	imp := make([]float64, t.numFeatures)
	for _, n := range t.nodes {
		if n.IsLeaf() {
			continue
		}
		l, r := t.nodes[n.Left], t.nodes[n.Right]
		dec := float64(n.Samples)*n.Impurity - float64(l.Samples)*l.Impurity - float64(r.Samples)*r.Impurity
		imp[n.Feature] += max(dec, 0)
	}
	if total := floats.Sum(imp); total > 0 {
		floats.Scale(1/total, imp)
	}
	return imp, nil
}

// builder 持有一次训练过程中的全部临时状态.
type builder struct {
	x      matrix.Columnar
	rng    *randx.Stream
	y      []float64
	perm   []int     // 候选特征的排列。
	values []float64 // 当前特征在节点样本上的取值。
	order  []int     // 按取值排序后的样本位置。
	stats  []float64 // 节点目标值缓冲。
	nodes  []Node
	params
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// grow 递归建树，返回新节点下标.
func (b *builder) grow(rows []int, depth int) int {
	ys := b.stats[:len(rows)]
	for k, i := range rows {
		ys[k] = b.y[i]
	}
	n := float64(len(rows))
	sum := floats.Sum(ys)
	sumSq := floats.Dot(ys, ys)
	impurity := b.impurity(sum, sumSq, n)

	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature:  Leaf,
		Left:     Leaf,
		Right:    Leaf,
		Value:    sum / n,
		Impurity: impurity,
		Samples:  len(rows),
	})

	if len(rows) < b.minSamplesSplit || (b.maxDepth > 0 && depth >= b.maxDepth) || impurity <= minImpurity {
		return idx
	}
	best, ok := b.bestSplit(rows, sum, sumSq, impurity)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	vals := b.values[:len(rows)]
	b.x.Gather(best.feature, rows, vals)
	for k, i := range rows {
		if vals[k] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	// 一侧为空的分裂不会缩小问题规模
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx].Feature = best.feature
	b.nodes[idx].Threshold = best.threshold
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}

// bestSplit 在随机抽取的 maxFeatures 个候选特征上寻找不纯度下降最大的阈值.
func (b *builder) bestSplit(rows []int, sum, sumSq, impurity float64) (split, bool) {
	nf := len(b.perm)
	for k := range b.maxFeatures {
		j := k + b.rng.IntN(nf-k)
		b.perm[k], b.perm[j] = b.perm[j], b.perm[k]
	}

	n := float64(len(rows))
	best := split{gain: minGain}
	found := false
	vals := b.values[:len(rows)]
	order := b.order[:len(rows)]

	for _, f := range b.perm[:b.maxFeatures] {
		b.x.Gather(f, rows, vals)
		for k := range order {
			order[k] = k
		}
		slices.SortStableFunc(order, func(a, c int) int { return cmp.Compare(vals[a], vals[c]) })

		var lSum, lSq float64
		for p := 0; p < len(order)-1; p++ {
			yv := b.y[rows[order[p]]]
			lSum += yv
			lSq += yv * yv
			cur, next := vals[order[p]], vals[order[p+1]]
			if cur == next {
				continue
			}
			nl := float64(p + 1)
			nr := n - nl
			gain := impurity -
				nl/n*b.impurity(lSum, lSq, nl) -
				nr/n*b.impurity(sum-lSum, sumSq-lSq, nr)
			if gain > best.gain {
				thr := cur + (next-cur)/2
				if thr >= next {
					thr = cur
				}
				best = split{feature: f, threshold: thr, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

func (b *builder) impurity(sum, sumSq, n float64) float64 {
	switch b.criterion {
	case CriterionEntropy:
		p := sum / n
		if p <= 0 || p >= 1 {
			return 0
		}
		return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
	case CriterionMSE:
		mean := sum / n
		return max(sumSq/n-mean*mean, 0)
	default:
		p := sum / n
		return 2 * p * (1 - p)
	}
}
