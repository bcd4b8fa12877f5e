package wire

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/forest/xerrors"
)

func TestEncodeWalk(t *testing.T) {
	var e Encoder
	e.Uint(1, 42)
	e.Int(2, -7)
	e.Double(3, math.Inf(-1))
	e.Doubles(4, []float64{0.1, 0, math.MaxFloat64})
	e.Text(5, "gini")
	e.Message(6, func(inner *Encoder) { inner.Uint(1, 9) })

	seen := map[Number]bool{}
	err := Walk(e.Bytes(), func(f Field) error {
		seen[f.Num] = true
		switch f.Num {
		case 1:
			v, err := f.Count()
			require.NoError(t, err)
			assert.Equal(t, 42, v)
		case 2:
			v, err := f.Int()
			require.NoError(t, err)
			assert.Equal(t, -7, v)
		case 3:
			v, err := f.Double()
			require.NoError(t, err)
			assert.True(t, math.IsInf(v, -1))
		case 4:
			v, err := f.Doubles()
			require.NoError(t, err)
			assert.Equal(t, []float64{0.1, 0, math.MaxFloat64}, v)
		case 5:
			v, err := f.Text()
			require.NoError(t, err)
			assert.Equal(t, "gini", v)
		case 6:
			raw, err := f.Raw()
			require.NoError(t, err)
			return Walk(raw, func(inner Field) error {
				v, err := inner.Uint()
				assert.Equal(t, uint64(9), v)
				return err
			})
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 6)
}

func TestWalkRejectsMalformed(t *testing.T) {
	var e Encoder
	e.Text(1, "truncated")
	b := e.Bytes()
	err := Walk(b[:len(b)-3], func(Field) error { return nil })
	assert.True(t, errors.Is(err, xerrors.ErrCorruptModel))

	var typed Encoder
	typed.Double(2, 1.5)
	err = Walk(typed.Bytes(), func(f Field) error {
		_, err := f.Uint()
		return err
	})
	assert.True(t, errors.Is(err, xerrors.ErrCorruptModel))
}

func TestCountOverflow(t *testing.T) {
	var e Encoder
	e.Uint(1, math.MaxUint64)
	err := Walk(e.Bytes(), func(f Field) error {
		_, err := f.Count()
		return err
	})
	assert.True(t, errors.Is(err, xerrors.ErrCorruptModel))
}
