package matrix

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/forest/xerrors"
	"gonum.org/v1/gonum/mat"
)

func sample(t *testing.T) *Dense {
	t.Helper()
	d, err := FromRows([][]float64{
		{1, 0, 0, 2},
		{0, 0, 3, 0},
		{4, 5, 0, 0},
		{0, 0, 0, 0},
		{6, 0, 7, 8},
	})
	require.NoError(t, err)
	return d
}

func TestDenseBasics(t *testing.T) {
	d := sample(t)
	r, c := d.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, 7.0, d.At(4, 2))
	assert.Equal(t, []float64{0, 3, 0, 0, 7}, d.Col(2))

	g := mat.NewDense(5, 4, nil)
	g.Copy(d)
	assert.True(t, mat.Equal(g, d), "Dense must interoperate with gonum")
	assert.True(t, AllClose(FromMatrix(g), d, 0))
}

func TestNewDenseRejectsBadShape(t *testing.T) {
	_, err := NewDense(2, 2, []float64{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))

	_, err = FromRows([][]float64{{1, 2}, {3}})
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))
}

func TestZeroRowDenseIsLegal(t *testing.T) {
	d := Zeros(0, 3)
	assert.Equal(t, 0, d.Rows())
	assert.Equal(t, 3, d.Cols())
	assert.Equal(t, 0, d.GetRows(nil).Rows())
}

func TestGetRowsWithRepeats(t *testing.T) {
	d := sample(t)
	sub := d.GetRows([]int{2, 2, 0})
	want, err := FromRows([][]float64{{4, 5, 0, 0}, {4, 5, 0, 0}, {1, 0, 0, 2}})
	require.NoError(t, err)
	assert.True(t, AllClose(sub, want, 0))

	// 子矩阵不得与原矩阵共享存储
	sub.Set(0, 0, 100)
	assert.Equal(t, 4.0, d.At(2, 0))
}

func TestAddAndDivInPlace(t *testing.T) {
	a := FromColumn([]float64{1, 2, 3})
	b := FromColumn([]float64{3, 2, 1})
	require.NoError(t, a.AddInPlace(b))
	a.DivInPlace(2)
	assert.Equal(t, []float64{2, 2, 2}, a.RawData())

	err := a.AddInPlace(Zeros(2, 1))
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))
}

func TestSparseRowRoundTrip(t *testing.T) {
	d := sample(t)
	s := SparseRowFromDense(d)
	assert.Equal(t, 8, s.Nnz())
	assert.True(t, AllClose(s, d, 0))
	assert.True(t, AllClose(s.ToDense(), d, 0))

	ind, vals := s.Row(4)
	assert.Equal(t, []int{0, 2, 3}, ind)
	assert.Equal(t, []float64{6, 7, 8}, vals)
}

func TestSparseConversions(t *testing.T) {
	d := sample(t)
	csr := SparseRowFromDense(d)
	csc := SparseColumnFromRow(csr)

	assert.True(t, AllClose(csc, d, 0))
	assert.True(t, AllClose(SparseColumnFromDense(d), d, 0))
	assert.True(t, AllClose(SparseRowFromColumn(csc), d, 0))

	rows, vals := csc.Column(0)
	assert.Equal(t, []int{0, 2, 4}, rows)
	assert.Equal(t, []float64{1, 4, 6}, vals)
}

func TestSubsetRowsAgreesAcrossRepresentations(t *testing.T) {
	d := sample(t)
	idx := []int{4, 1, 4, 0, 3, 3}
	want := d.GetRows(idx)

	assert.True(t, AllClose(SparseRowFromDense(d).GetRows(idx), want, 0))
	assert.True(t, AllClose(SparseColumnFromDense(d).GetRows(idx), want, 0))

	for _, in := range []Input{d, SparseRowFromDense(d), SparseColumnFromDense(d)} {
		sub := in.SubsetRows(idx).Columnar()
		dst := make([]float64, 3)
		sub.Gather(2, []int{0, 1, 5}, dst)
		assert.Equal(t, []float64{7, 3, 0}, dst)
	}
}

func TestAppendRow(t *testing.T) {
	s := NewSparseRow(4)
	require.NoError(t, s.AppendRow([]int{3, 0}, []float64{2, 1}))
	require.NoError(t, s.AppendRow(nil, nil))
	require.NoError(t, s.AppendRow([]int{1, 2}, []float64{0, 5}))

	assert.Equal(t, 3, s.Rows())
	assert.Equal(t, 3, s.Nnz())
	assert.Equal(t, 2.0, s.At(0, 3))
	assert.Equal(t, 5.0, s.At(2, 2))

	assert.Error(t, s.AppendRow([]int{4}, []float64{1}))
	assert.Error(t, s.AppendRow([]int{1, 1}, []float64{1, 2}))
	for _, vals := range [][]float64{{0, 5}, {5, 0}, {0, 0}} {
		err := s.AppendRow([]int{1, 1}, vals)
		assert.True(t, errors.Is(err, xerrors.ErrInvalidInput), "values %v", vals)
	}
	assert.Equal(t, 3, s.Nnz())
	assert.Equal(t, 3, s.Rows(), "rejected rows must not be appended")
}

func TestAllCloseShapes(t *testing.T) {
	assert.False(t, AllClose(Zeros(2, 1), Zeros(1, 2), 1))
	assert.True(t, AllClose(Zeros(0, 1), Zeros(0, 1), 0))
	assert.True(t, AllClose(FromColumn([]float64{1}), FromColumn([]float64{1 + 1e-12}), 1e-9))
}
