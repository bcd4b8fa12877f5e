package multiclass

import (
	"encoding/json"
	"slices"

	"github.com/wyfcoding/forest/modelio/wire"
	"github.com/wyfcoding/forest/xerrors"
	"gopkg.in/yaml.v3"
)

// state 是 JSON/YAML 编码的形状；基模型自身负责编码.
type state[PT any] struct {
	Base    PT        `json:"base" yaml:"base"`
	Classes []float64 `json:"classes" yaml:"classes"`
	Models  []PT      `json:"models" yaml:"models"`
}

func (o *OneVsRest[T, PT]) snapshot() state[PT] {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return state[PT]{Base: o.base, Classes: o.classes, Models: o.models}
}

func (o *OneVsRest[T, PT]) restore(s state[PT]) error {
	if len(s.Classes) != len(s.Models) {
		return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "class and model counts differ").
			WithDetail("%d classes, %d models", len(s.Classes), len(s.Models))
	}
	if !slices.IsSorted(s.Classes) {
		return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "classes must be sorted")
	}
	for k, m := range s.Models {
		if m == nil {
			return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "missing class model").WithContext("class", k)
		}
	}
	if s.Base == nil {
		if len(s.Models) == 0 {
			return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "missing base model")
		}
		s.Base = PT(s.Models[0].Clone())
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.base, o.classes, o.models = s.Base, s.Classes, s.Models
	return nil
}

// MarshalJSON 实现 json.Marshaler.
func (o *OneVsRest[T, PT]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.snapshot())
}

// UnmarshalJSON 实现 json.Unmarshaler.
func (o *OneVsRest[T, PT]) UnmarshalJSON(data []byte) error {
	var s state[PT]
	if err := json.Unmarshal(data, &s); err != nil {
		return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "decode one-vs-rest json").WithDetail("%v", err)
	}
	return o.restore(s)
}

// MarshalYAML 实现 yaml.Marshaler.
func (o *OneVsRest[T, PT]) MarshalYAML() (any, error) {
	return o.snapshot(), nil
}

// UnmarshalYAML 实现 yaml.Unmarshaler.
func (o *OneVsRest[T, PT]) UnmarshalYAML(node *yaml.Node) error {
	var s state[PT]
	if err := node.Decode(&s); err != nil {
		return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "decode one-vs-rest yaml").WithDetail("%v", err)
	}
	return o.restore(s)
}

const (
	fieldBase    wire.Number = 1
	fieldClasses wire.Number = 2
	fieldModel   wire.Number = 3
)

// MarshalBinary 实现 encoding.BinaryMarshaler.
func (o *OneVsRest[T, PT]) MarshalBinary() ([]byte, error) {
	s := o.snapshot()
	var enc wire.Encoder
	if s.Base != nil {
		b, err := s.Base.MarshalBinary()
		if err != nil {
			return nil, err
		}
		enc.Raw(fieldBase, b)
	}
	enc.Doubles(fieldClasses, s.Classes)
	for _, m := range s.Models {
		b, err := m.MarshalBinary()
		if err != nil {
			return nil, err
		}
		enc.Raw(fieldModel, b)
	}
	return enc.Bytes(), nil
}

// UnmarshalBinary 实现 encoding.BinaryUnmarshaler.
func (o *OneVsRest[T, PT]) UnmarshalBinary(data []byte) error {
	var s state[PT]
	decode := func(f wire.Field) (PT, error) {
		b, err := f.Raw()
		if err != nil {
			return nil, err
		}
		m := PT(new(T))
		if err := m.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		return m, nil
	}
	err := wire.Walk(data, func(f wire.Field) error {
		var err error
		switch f.Num {
		case fieldBase:
			s.Base, err = decode(f)
		case fieldClasses:
			var cs []float64
			if cs, err = f.Doubles(); err == nil {
				s.Classes = append(s.Classes, cs...)
			}
		case fieldModel:
			var m PT
			if m, err = decode(f); err == nil {
				s.Models = append(s.Models, m)
			}
		}
		return err
	})
	if err != nil {
		return err
	}
	return o.restore(s)
}
