package ensemble

import (
	"github.com/wyfcoding/forest/algorithm/randx"
	"github.com/wyfcoding/forest/xerrors"
)

// BootstrapIndices 从 [0, n) 中有放回地均匀抽取 n 个下标，并推进 rng.
func BootstrapIndices(n int, rng *randx.Stream) ([]int, error) {
	if n <= 0 {
		return nil, xerrors.Wrap(xerrors.ErrEmptyPopulation, xerrors.ErrInvalidArg, "bootstrap from empty population").
			WithDetail("rows=%d", n)
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.IntN(n)
	}
	return idx, nil
}
