// Package evaluation 提供模型评估工具：准确率与 k 折交叉验证.
package evaluation

import (
	"github.com/wyfcoding/forest/algorithm/matrix"
	"github.com/wyfcoding/forest/xerrors"
)

// AccuracyScore 返回预测与真实标签完全相等的行所占比例.
func AccuracyScore(yTrue, yPred *matrix.Dense) (float64, error) {
	tr, tc := yTrue.Dims()
	pr, pc := yPred.Dims()
	if tr != pr || tc != pc {
		return 0, xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "label shapes differ").
			WithDetail("%dx%d vs %dx%d", tr, tc, pr, pc)
	}
	if tr == 0 {
		return 0, xerrors.Wrap(xerrors.ErrEmptyData, xerrors.ErrInvalidArg, "accuracy of zero rows")
	}
	hits := 0
	for i := range tr {
		match := true
		for j := range tc {
			if yTrue.At(i, j) != yPred.At(i, j) {
				match = false
				break
			}
		}
		if match {
			hits++
		}
	}
	return float64(hits) / float64(tr), nil
}
