package ensemble

import (
	"encoding/json"

	"github.com/wyfcoding/forest/algorithm/randx"
	"github.com/wyfcoding/forest/algorithm/tree"
	"github.com/wyfcoding/forest/modelio/wire"
	"github.com/wyfcoding/forest/xerrors"
	"gopkg.in/yaml.v3"
)

// State 是森林的可序列化快照：全部树以及采样流.
type State struct {
	RNG   string       `json:"rng" yaml:"rng"`
	Trees []tree.State `json:"trees" yaml:"trees"`
}

// State 导出快照.
func (f *RandomForest) State() (State, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rng, err := f.rng.MarshalText()
	if err != nil {
		return State{}, err
	}
	s := State{RNG: string(rng), Trees: make([]tree.State, len(f.trees))}
	for i, t := range f.trees {
		if s.Trees[i], err = t.State(); err != nil {
			return State{}, err
		}
	}
	return s, nil
}

// FromState 由快照重建森林.
func FromState(s State) (*RandomForest, error) {
	f := &RandomForest{rng: randx.Default(), trees: make([]*tree.DecisionTree, len(s.Trees))}
	if err := f.rng.UnmarshalText([]byte(s.RNG)); err != nil {
		return nil, err
	}
	for i, ts := range s.Trees {
		t, err := tree.FromState(ts)
		if err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrDataLoss, "decode tree").WithContext("tree", i)
		}
		f.trees[i] = t
	}
	return f, nil
}

func (f *RandomForest) restore(decoded *RandomForest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trees, f.rng = decoded.trees, decoded.rng
}

// MarshalJSON 实现 json.Marshaler.
func (f *RandomForest) MarshalJSON() ([]byte, error) {
	s, err := f.State()
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// UnmarshalJSON 实现 json.Unmarshaler.
func (f *RandomForest) UnmarshalJSON(data []byte) error {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "decode forest json").WithDetail("%v", err)
	}
	decoded, err := FromState(s)
	if err != nil {
		return err
	}
	f.restore(decoded)
	return nil
}

// MarshalYAML 实现 yaml.Marshaler.
func (f *RandomForest) MarshalYAML() (any, error) {
	return f.State()
}

// UnmarshalYAML 实现 yaml.Unmarshaler.
func (f *RandomForest) UnmarshalYAML(node *yaml.Node) error {
	var s State
	if err := node.Decode(&s); err != nil {
		return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "decode forest yaml").WithDetail("%v", err)
	}
	decoded, err := FromState(s)
	if err != nil {
		return err
	}
	f.restore(decoded)
	return nil
}

const (
	fieldRNG  wire.Number = 1
	fieldTree wire.Number = 2
)

// MarshalBinary 实现 encoding.BinaryMarshaler.
func (f *RandomForest) MarshalBinary() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rng, err := f.rng.MarshalBinary()
	if err != nil {
		return nil, err
	}
	var enc wire.Encoder
	enc.Raw(fieldRNG, rng)
	for _, t := range f.trees {
		b, err := t.MarshalBinary()
		if err != nil {
			return nil, err
		}
		enc.Raw(fieldTree, b)
	}
	return enc.Bytes(), nil
}

// UnmarshalBinary 实现 encoding.BinaryUnmarshaler.
func (f *RandomForest) UnmarshalBinary(data []byte) error {
	decoded := &RandomForest{rng: randx.Default()}
	seenRNG := false
	err := wire.Walk(data, func(fl wire.Field) error {
		switch fl.Num {
		case fieldRNG:
			b, err := fl.Raw()
			if err != nil {
				return err
			}
			seenRNG = true
			return decoded.rng.UnmarshalBinary(b)
		case fieldTree:
			b, err := fl.Raw()
			if err != nil {
				return err
			}
			t := &tree.DecisionTree{}
			if err := t.UnmarshalBinary(b); err != nil {
				return xerrors.Wrap(err, xerrors.ErrDataLoss, "decode tree").WithContext("tree", len(decoded.trees))
			}
			decoded.trees = append(decoded.trees, t)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !seenRNG {
		return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "decode forest binary").
			WithDetail("missing random stream state")
	}
	f.restore(decoded)
	return nil
}
