// Package matrix 提供随机森林使用的稠密与稀疏矩阵容器.
//
// 三种表示：Dense 行主序稠密矩阵、SparseRow 按行压缩 (CSR)、SparseColumn 按列压缩 (CSC)。
// 它们都实现 gonum 的 mat.Matrix 接口 (Dims/At/T)，可以直接与 gonum 生态互操作.
package matrix

import (
	"gonum.org/v1/gonum/mat"
)

// Input 是集成引擎训练与预测时要求输入具备的能力.
// 引擎只针对该接口编写一次，稠密与稀疏表示可以互换.
type Input interface {
	// Rows 返回样本数.
	Rows() int
	// Cols 返回特征数.
	Cols() int
	// SubsetRows 返回只包含给定行 (允许重复) 的同表示矩阵.
	SubsetRows(idx []int) Input
	// Columnar 返回基学习器使用的列访问视图；按行压缩的稀疏矩阵在此转换为按列压缩.
	Columnar() Columnar
}

// Columnar 是决策树训练与预测所需的列访问视图.
type Columnar interface {
	Rows() int
	Cols() int
	At(i, j int) float64
	// Gather 将第 j 列在给定行上的取值依次写入 dst，len(dst) 必须等于 len(rows).
	Gather(j int, rows []int, dst []float64)
}

var (
	_ Input    = (*Dense)(nil)
	_ Input    = (*SparseRow)(nil)
	_ Input    = (*SparseColumn)(nil)
	_ Columnar = (*Dense)(nil)
	_ Columnar = (*SparseColumn)(nil)

	_ mat.Matrix = (*Dense)(nil)
	_ mat.Matrix = (*SparseRow)(nil)
	_ mat.Matrix = (*SparseColumn)(nil)
)

// AllClose 判断两个矩阵形状相同且逐元素差值不超过 tol.
func AllClose(a, b mat.Matrix, tol float64) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return false
	}
	if ar == 0 || ac == 0 {
		return true
	}
	return mat.EqualApprox(a, b, tol)
}

func checkIndex(i, j, rows, cols int) {
	if i < 0 || i >= rows || j < 0 || j >= cols {
		panic(mat.ErrIndexOutOfRange)
	}
}
