package evaluation

import (
	"iter"

	"github.com/wyfcoding/forest/algorithm/randx"
	"github.com/wyfcoding/forest/xerrors"
)

// Fold 是一次划分的训练与测试下标.
type Fold struct {
	Train []int
	Test  []int
}

// CrossValidation k 折交叉验证.
// 下标先被随机流打乱，再切成 k 个连续块，块大小之差不超过 1.
type CrossValidation struct {
	rng   *randx.Stream
	n     int
	folds int
}

// NewCrossValidation 创建 n 个样本上的 k 折划分.
func NewCrossValidation(n, k int) *CrossValidation {
	return &CrossValidation{n: n, folds: k, rng: randx.Default()}
}

// SetRNG 设置打乱用的随机流 (保存副本).
func (cv *CrossValidation) SetRNG(s *randx.Stream) *CrossValidation {
	cv.rng = s.Clone()
	return cv
}

// Folds 计算全部划分，重复调用结果相同.
func (cv *CrossValidation) Folds() ([]Fold, error) {
	if cv.folds < 2 || cv.folds > cv.n {
		return nil, xerrors.Wrap(xerrors.ErrInvalidConfig, xerrors.ErrInvalidArg, "invalid fold count").
			WithDetail("%d folds over %d rows", cv.folds, cv.n)
	}
	order := make([]int, cv.n)
	for i := range order {
		order[i] = i
	}
	rng := cv.rng.Clone()
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	folds := make([]Fold, cv.folds)
	start := 0
	for k := range folds {
		size := cv.n / cv.folds
		if k < cv.n%cv.folds {
			size++
		}
		end := start + size
		test := append([]int(nil), order[start:end]...)
		train := make([]int, 0, cv.n-size)
		train = append(train, order[:start]...)
		train = append(train, order[end:]...)
		folds[k] = Fold{Train: train, Test: test}
		start = end
	}
	return folds, nil
}

// All 计算全部划分，返回依次产出 (训练下标, 测试下标) 的迭代器.
// 折数非法时返回 ErrInvalidConfig 与 nil 迭代器.
func (cv *CrossValidation) All() (iter.Seq2[[]int, []int], error) {
	folds, err := cv.Folds()
	if err != nil {
		return nil, err
	}
	return func(yield func([]int, []int) bool) {
		for _, f := range folds {
			if !yield(f.Train, f.Test) {
				return
			}
		}
	}, nil
}
