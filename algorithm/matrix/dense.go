package matrix

import (
	"fmt"

	"github.com/wyfcoding/forest/xerrors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dense 是行主序存储的稠密矩阵，允许零行.
type Dense struct {
	data []float64
	rows int
	cols int
}

// NewDense 用给定数据创建矩阵；data 为 nil 时全部置零.
func NewDense(rows, cols int, data []float64) (*Dense, error) {
	if rows < 0 || cols < 0 {
		return nil, xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "negative matrix dimension").
			WithDetail("rows=%d cols=%d", rows, cols)
	}
	if data == nil {
		return Zeros(rows, cols), nil
	}
	if len(data) != rows*cols {
		return nil, xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "data length does not match shape").
			WithDetail("rows=%d cols=%d len=%d", rows, cols, len(data))
	}
	return &Dense{rows: rows, cols: cols, data: data}, nil
}

// Zeros 创建 rows x cols 的零矩阵.
func Zeros(rows, cols int) *Dense {
	return &Dense{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// FromRows 由二维切片创建矩阵，要求各行等长.
func FromRows(rows [][]float64) (*Dense, error) {
	if len(rows) == 0 {
		return Zeros(0, 0), nil
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "ragged rows").
				WithDetail("row %d has %d columns, expected %d", i, len(r), cols)
		}
		data = append(data, r...)
	}
	return &Dense{rows: len(rows), cols: cols, data: data}, nil
}

// FromColumn 创建 n x 1 的列向量，常用于目标值.
func FromColumn(values []float64) *Dense {
	data := make([]float64, len(values))
	copy(data, values)
	return &Dense{rows: len(values), cols: 1, data: data}
}

// FromMatrix 复制任意 gonum 矩阵.
func FromMatrix(m mat.Matrix) *Dense {
	r, c := m.Dims()
	d := Zeros(r, c)
	if raw, ok := m.(mat.RawMatrixer); ok && r > 0 && c > 0 {
		g := raw.RawMatrix()
		for i := range r {
			copy(d.data[i*c:(i+1)*c], g.Data[i*g.Stride:i*g.Stride+c])
		}
		return d
	}
	for i := range r {
		for j := range c {
			d.data[i*c+j] = m.At(i, j)
		}
	}
	return d
}

// Dims 实现 mat.Matrix.
func (d *Dense) Dims() (r, c int) { return d.rows, d.cols }

// At 实现 mat.Matrix.
func (d *Dense) At(i, j int) float64 {
	checkIndex(i, j, d.rows, d.cols)
	return d.data[i*d.cols+j]
}

// T 实现 mat.Matrix.
func (d *Dense) T() mat.Matrix { return mat.Transpose{Matrix: d} }

func (d *Dense) Rows() int { return d.rows }

func (d *Dense) Cols() int { return d.cols }

// Set 设置单个元素.
func (d *Dense) Set(i, j int, v float64) {
	checkIndex(i, j, d.rows, d.cols)
	d.data[i*d.cols+j] = v
}

// RawRow 返回第 i 行的底层切片 (共享存储).
func (d *Dense) RawRow(i int) []float64 {
	checkIndex(i, 0, d.rows, max(d.cols, 1))
	return d.data[i*d.cols : (i+1)*d.cols]
}

// RawData 返回行主序的底层数据 (共享存储).
func (d *Dense) RawData() []float64 { return d.data }

// Col 复制第 j 列.
func (d *Dense) Col(j int) []float64 {
	out := make([]float64, d.rows)
	for i := range d.rows {
		out[i] = d.At(i, j)
	}
	return out
}

// GetRows 返回由给定行 (允许重复) 组成的新矩阵.
func (d *Dense) GetRows(idx []int) *Dense {
	out := Zeros(len(idx), d.cols)
	for k, i := range idx {
		copy(out.data[k*d.cols:(k+1)*d.cols], d.RawRow(i))
	}
	return out
}

// SubsetRows 实现 Input.
func (d *Dense) SubsetRows(idx []int) Input { return d.GetRows(idx) }

// Columnar 实现 Input，稠密矩阵本身即可按列访问.
func (d *Dense) Columnar() Columnar { return d }

// Gather 实现 Columnar.
func (d *Dense) Gather(j int, rows []int, dst []float64) {
	for k, i := range rows {
		dst[k] = d.At(i, j)
	}
}

// AddInPlace 逐元素累加 other.
func (d *Dense) AddInPlace(other *Dense) error {
	if d.rows != other.rows || d.cols != other.cols {
		return xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "add shape mismatch").
			WithDetail("%dx%d + %dx%d", d.rows, d.cols, other.rows, other.cols)
	}
	floats.Add(d.data, other.data)
	return nil
}

// DivInPlace 逐元素除以标量.
func (d *Dense) DivInPlace(s float64) {
	for i := range d.data {
		d.data[i] /= s
	}
}

// Clone 深拷贝.
func (d *Dense) Clone() *Dense {
	data := make([]float64, len(d.data))
	copy(data, d.data)
	return &Dense{rows: d.rows, cols: d.cols, data: data}
}

func (d *Dense) String() string {
	return fmt.Sprintf("%v", mat.Formatted(d))
}
