package matrix

import (
	"slices"

	"github.com/wyfcoding/forest/xerrors"
	"gonum.org/v1/gonum/mat"
)

// compressed 是 CSR/CSC 共用的压缩存储：outer 维度上的每个切片对应 inner 维度的非零项.
type compressed struct {
	indptr  []int // 长度 outer+1
	indices []int // 非零项的 inner 下标，每段内严格递增
	values  []float64
}

func newCompressed(outer int) compressed {
	return compressed{indptr: make([]int, outer+1)}
}

func (c *compressed) outer() int { return len(c.indptr) - 1 }

func (c *compressed) nnz() int { return len(c.values) }

func (c *compressed) segment(k int) ([]int, []float64) {
	lo, hi := c.indptr[k], c.indptr[k+1]
	return c.indices[lo:hi], c.values[lo:hi]
}

func (c *compressed) lookup(outer, inner int) float64 {
	idx, vals := c.segment(outer)
	if p, ok := slices.BinarySearch(idx, inner); ok {
		return vals[p]
	}
	return 0
}

// appendSegment 追加一个 outer 段；下标会被排序，零值被丢弃.
func (c *compressed) appendSegment(innerDim int, indices []int, values []float64) error {
	if len(indices) != len(values) {
		return xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "indices and values differ in length")
	}
	order := make([]int, len(indices))
	for k := range order {
		order[k] = k
	}
	slices.SortFunc(order, func(a, b int) int { return indices[a] - indices[b] })

	start := len(c.indices)
	for pos, k := range order {
		j := indices[k]
		if j < 0 || j >= innerDim {
			c.indices, c.values = c.indices[:start], c.values[:start]
			return xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "sparse index out of range").
				WithDetail("index %d, dimension %d", j, innerDim)
		}
		// 与排序后的前一个下标比较，被丢弃的零值同样参与判重
		if pos > 0 && indices[order[pos-1]] == j {
			c.indices, c.values = c.indices[:start], c.values[:start]
			return xerrors.Wrap(xerrors.ErrInvalidInput, xerrors.ErrInvalidArg, "duplicate sparse index").
				WithDetail("index %d", j)
		}
		if values[k] == 0 {
			continue
		}
		c.indices = append(c.indices, j)
		c.values = append(c.values, values[k])
	}
	c.indptr = append(c.indptr, len(c.indices))
	return nil
}

// transpose 把 outer x inner 的压缩存储转为 inner x outer.
func (c *compressed) transpose(innerDim int) compressed {
	counts := make([]int, innerDim+1)
	for _, j := range c.indices {
		counts[j+1]++
	}
	for j := range innerDim {
		counts[j+1] += counts[j]
	}
	out := compressed{
		indptr:  counts,
		indices: make([]int, c.nnz()),
		values:  make([]float64, c.nnz()),
	}
	next := slices.Clone(counts[:innerDim])
	for o := range c.outer() {
		idx, vals := c.segment(o)
		for k, j := range idx {
			p := next[j]
			out.indices[p] = o
			out.values[p] = vals[k]
			next[j]++
		}
	}
	return out
}

func (c *compressed) clone() compressed {
	return compressed{
		indptr:  slices.Clone(c.indptr),
		indices: slices.Clone(c.indices),
		values:  slices.Clone(c.values),
	}
}

// SparseRow 是按行压缩 (CSR) 的稀疏矩阵.
type SparseRow struct {
	store compressed
	cols  int
}

// NewSparseRow 创建一个零行、cols 列的稀疏矩阵，之后用 AppendRow 逐行填充.
func NewSparseRow(cols int) *SparseRow {
	return &SparseRow{store: newCompressed(0), cols: cols}
}

// SparseRowFromDense 将稠密矩阵编码为 CSR.
func SparseRowFromDense(d *Dense) *SparseRow {
	s := &SparseRow{store: newCompressed(0), cols: d.cols}
	for i := range d.rows {
		row := d.RawRow(i)
		for j, v := range row {
			if v != 0 {
				s.store.indices = append(s.store.indices, j)
				s.store.values = append(s.store.values, v)
			}
		}
		s.store.indptr = append(s.store.indptr, len(s.store.indices))
	}
	return s
}

// SparseRowFromColumn 将 CSC 转为 CSR.
func SparseRowFromColumn(c *SparseColumn) *SparseRow {
	return &SparseRow{store: c.store.transpose(c.rows), cols: c.store.outer()}
}

// AppendRow 追加一行；indices 无需有序，零值会被丢弃.
func (s *SparseRow) AppendRow(indices []int, values []float64) error {
	return s.store.appendSegment(s.cols, indices, values)
}

// Dims 实现 mat.Matrix.
func (s *SparseRow) Dims() (r, c int) { return s.store.outer(), s.cols }

// At 实现 mat.Matrix.
func (s *SparseRow) At(i, j int) float64 {
	checkIndex(i, j, s.store.outer(), s.cols)
	return s.store.lookup(i, j)
}

// T 实现 mat.Matrix.
func (s *SparseRow) T() mat.Matrix { return mat.Transpose{Matrix: s} }

func (s *SparseRow) Rows() int { return s.store.outer() }

func (s *SparseRow) Cols() int { return s.cols }

// Nnz 返回非零元素个数.
func (s *SparseRow) Nnz() int { return s.store.nnz() }

// Row 返回第 i 行的非零下标与取值 (共享存储).
func (s *SparseRow) Row(i int) ([]int, []float64) {
	checkIndex(i, 0, s.store.outer(), max(s.cols, 1))
	return s.store.segment(i)
}

// GetRows 返回由给定行 (允许重复) 组成的新 CSR 矩阵.
func (s *SparseRow) GetRows(idx []int) *SparseRow {
	out := &SparseRow{store: newCompressed(0), cols: s.cols}
	for _, i := range idx {
		ind, vals := s.Row(i)
		out.store.indices = append(out.store.indices, ind...)
		out.store.values = append(out.store.values, vals...)
		out.store.indptr = append(out.store.indptr, len(out.store.indices))
	}
	return out
}

// SubsetRows 实现 Input.
func (s *SparseRow) SubsetRows(idx []int) Input { return s.GetRows(idx) }

// Columnar 实现 Input：转换为 CSC.
func (s *SparseRow) Columnar() Columnar { return SparseColumnFromRow(s) }

// ToDense 展开为稠密矩阵.
func (s *SparseRow) ToDense() *Dense {
	d := Zeros(s.Rows(), s.cols)
	for i := range s.Rows() {
		ind, vals := s.store.segment(i)
		for k, j := range ind {
			d.data[i*s.cols+j] = vals[k]
		}
	}
	return d
}

// Clone 深拷贝.
func (s *SparseRow) Clone() *SparseRow {
	return &SparseRow{store: s.store.clone(), cols: s.cols}
}

// SparseColumn 是按列压缩 (CSC) 的稀疏矩阵，是决策树消费稀疏数据时的表示.
type SparseColumn struct {
	store compressed
	rows  int
}

// SparseColumnFromRow 将 CSR 转为 CSC.
func SparseColumnFromRow(r *SparseRow) *SparseColumn {
	return &SparseColumn{store: r.store.transpose(r.cols), rows: r.Rows()}
}

// SparseColumnFromDense 将稠密矩阵编码为 CSC.
func SparseColumnFromDense(d *Dense) *SparseColumn {
	return SparseColumnFromRow(SparseRowFromDense(d))
}

// Dims 实现 mat.Matrix.
func (c *SparseColumn) Dims() (r, cols int) { return c.rows, c.store.outer() }

// At 实现 mat.Matrix.
func (c *SparseColumn) At(i, j int) float64 {
	checkIndex(i, j, c.rows, c.store.outer())
	return c.store.lookup(j, i)
}

// T 实现 mat.Matrix.
func (c *SparseColumn) T() mat.Matrix { return mat.Transpose{Matrix: c} }

func (c *SparseColumn) Rows() int { return c.rows }

func (c *SparseColumn) Cols() int { return c.store.outer() }

// Nnz 返回非零元素个数.
func (c *SparseColumn) Nnz() int { return c.store.nnz() }

// Column 返回第 j 列的非零行号与取值 (共享存储).
func (c *SparseColumn) Column(j int) ([]int, []float64) {
	checkIndex(0, j, max(c.rows, 1), c.store.outer())
	return c.store.segment(j)
}

// Gather 实现 Columnar.
func (c *SparseColumn) Gather(j int, rows []int, dst []float64) {
	for k, i := range rows {
		dst[k] = c.At(i, j)
	}
}

// GetRows 返回由给定行 (允许重复) 组成的新 CSC 矩阵，新矩阵的第 k 行是原矩阵的第 idx[k] 行.
func (c *SparseColumn) GetRows(idx []int) *SparseColumn {
	positions := make(map[int][]int, len(idx))
	for k, i := range idx {
		checkIndex(i, 0, c.rows, max(c.Cols(), 1))
		positions[i] = append(positions[i], k)
	}
	out := &SparseColumn{store: newCompressed(0), rows: len(idx)}
	for j := range c.Cols() {
		start := len(out.store.indices)
		rowsIdx, vals := c.store.segment(j)
		for k, i := range rowsIdx {
			for _, p := range positions[i] {
				out.store.indices = append(out.store.indices, p)
				out.store.values = append(out.store.values, vals[k])
			}
		}
		seg := out.store.indices[start:]
		segVals := out.store.values[start:]
		sortSegment(seg, segVals)
		out.store.indptr = append(out.store.indptr, len(out.store.indices))
	}
	return out
}

// SubsetRows 实现 Input.
func (c *SparseColumn) SubsetRows(idx []int) Input { return c.GetRows(idx) }

// Columnar 实现 Input.
func (c *SparseColumn) Columnar() Columnar { return c }

// ToDense 展开为稠密矩阵.
func (c *SparseColumn) ToDense() *Dense {
	d := Zeros(c.rows, c.Cols())
	for j := range c.Cols() {
		rowsIdx, vals := c.store.segment(j)
		for k, i := range rowsIdx {
			d.data[i*d.cols+j] = vals[k]
		}
	}
	return d
}

// Clone 深拷贝.
func (c *SparseColumn) Clone() *SparseColumn {
	return &SparseColumn{store: c.store.clone(), rows: c.rows}
}

func sortSegment(indices []int, values []float64) {
	if slices.IsSorted(indices) {
		return
	}
	order := make([]int, len(indices))
	for k := range order {
		order[k] = k
	}
	slices.SortFunc(order, func(a, b int) int { return indices[a] - indices[b] })
	idx := make([]int, len(indices))
	vals := make([]float64, len(values))
	for k, o := range order {
		idx[k] = indices[o]
		vals[k] = values[o]
	}
	copy(indices, idx)
	copy(values, vals)
}
