package tree

import (
	"encoding/json"

	"github.com/wyfcoding/forest/algorithm/randx"
	"github.com/wyfcoding/forest/cast"
	"github.com/wyfcoding/forest/modelio/wire"
	"github.com/wyfcoding/forest/xerrors"
	"gopkg.in/yaml.v3"
)

// State 是决策树的可序列化快照，JSON 与 YAML 编码共用.
type State struct {
	NumFeatures     int    `json:"num_features" yaml:"num_features"`
	MaxDepth        int    `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split" yaml:"min_samples_split"`
	MaxFeatures     int    `json:"max_features" yaml:"max_features"`
	Criterion       string `json:"criterion" yaml:"criterion"`
	RNG             string `json:"rng" yaml:"rng"` // 随机流状态，base64。
	Nodes           []Node `json:"nodes" yaml:"nodes"`
}

// State 导出快照.
func (t *DecisionTree) State() (State, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rng, err := t.rng.MarshalText()
	if err != nil {
		return State{}, err
	}
	return State{
		NumFeatures:     t.numFeatures,
		MaxDepth:        t.maxDepth,
		MinSamplesSplit: t.minSamplesSplit,
		MaxFeatures:     t.maxFeatures,
		Criterion:       t.criterion.String(),
		RNG:             string(rng),
		Nodes:           append([]Node(nil), t.nodes...),
	}, nil
}

// FromState 由快照重建决策树，并校验节点结构.
func FromState(s State) (*DecisionTree, error) {
	crit, err := ParseCriterion(s.Criterion)
	if err != nil {
		return nil, corrupt("unknown criterion %q", s.Criterion)
	}
	t := &DecisionTree{
		params: params{
			numFeatures:     s.NumFeatures,
			maxDepth:        s.MaxDepth,
			minSamplesSplit: s.MinSamplesSplit,
			maxFeatures:     s.MaxFeatures,
			criterion:       crit,
		},
		rng:   randx.Default(),
		nodes: s.Nodes,
	}
	if err := t.rng.UnmarshalText([]byte(s.RNG)); err != nil {
		return nil, err
	}
	if err := t.check(); err != nil {
		return nil, err
	}
	return t, nil
}

// check 校验反序列化得到的参数与节点链接.
func (t *DecisionTree) check() error {
	if err := t.validate(); err != nil {
		return corrupt("%v", err)
	}
	for i, n := range t.nodes {
		if n.Samples < 0 {
			return corrupt("node %d has negative sample count", i)
		}
		if n.Left == Leaf && n.Right == Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= t.numFeatures {
			return corrupt("node %d splits on feature %d of %d", i, n.Feature, t.numFeatures)
		}
		for _, c := range []int{n.Left, n.Right} {
			if c <= i || c >= len(t.nodes) {
				return corrupt("node %d links to child %d of %d", i, c, len(t.nodes))
			}
		}
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "invalid decision tree").
		WithDetail(format, args...)
}

// MarshalJSON 实现 json.Marshaler.
func (t *DecisionTree) MarshalJSON() ([]byte, error) {
	s, err := t.State()
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// UnmarshalJSON 实现 json.Unmarshaler.
func (t *DecisionTree) UnmarshalJSON(data []byte) error {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "decode decision tree json").WithDetail("%v", err)
	}
	return t.restore(s)
}

// MarshalYAML 实现 yaml.Marshaler.
func (t *DecisionTree) MarshalYAML() (any, error) {
	return t.State()
}

// UnmarshalYAML 实现 yaml.Unmarshaler.
func (t *DecisionTree) UnmarshalYAML(node *yaml.Node) error {
	var s State
	if err := node.Decode(&s); err != nil {
		return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "decode decision tree yaml").WithDetail("%v", err)
	}
	return t.restore(s)
}

func (t *DecisionTree) restore(s State) error {
	decoded, err := FromState(s)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.params, t.rng, t.nodes = decoded.params, decoded.rng, decoded.nodes
	return nil
}

// 二进制字段编号.
const (
	fieldNumFeatures     wire.Number = 1
	fieldMaxDepth        wire.Number = 2
	fieldMinSamplesSplit wire.Number = 3
	fieldMaxFeatures     wire.Number = 4
	fieldCriterion       wire.Number = 5
	fieldRNG             wire.Number = 6
	fieldNode            wire.Number = 7

	nodeFeature   wire.Number = 1
	nodeThreshold wire.Number = 2
	nodeLeft      wire.Number = 3
	nodeRight     wire.Number = 4
	nodeValue     wire.Number = 5
	nodeImpurity  wire.Number = 6
	nodeSamples   wire.Number = 7
)

// AppendBinary 将树编码追加到 enc.
func (t *DecisionTree) AppendBinary(enc *wire.Encoder) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rng, err := t.rng.MarshalBinary()
	if err != nil {
		return err
	}
	enc.Uint(fieldNumFeatures, cast.IntToUint64(t.numFeatures))
	enc.Uint(fieldMaxDepth, cast.IntToUint64(t.maxDepth))
	enc.Uint(fieldMinSamplesSplit, cast.IntToUint64(t.minSamplesSplit))
	enc.Uint(fieldMaxFeatures, cast.IntToUint64(t.maxFeatures))
	enc.Uint(fieldCriterion, cast.IntToUint64(int(t.criterion)))
	enc.Raw(fieldRNG, rng)
	for _, n := range t.nodes {
		enc.Message(fieldNode, func(e *wire.Encoder) {
			e.Int(nodeFeature, n.Feature)
			e.Double(nodeThreshold, n.Threshold)
			e.Int(nodeLeft, n.Left)
			e.Int(nodeRight, n.Right)
			e.Double(nodeValue, n.Value)
			e.Double(nodeImpurity, n.Impurity)
			e.Uint(nodeSamples, cast.IntToUint64(n.Samples))
		})
	}
	return nil
}

// MarshalBinary 实现 encoding.BinaryMarshaler.
func (t *DecisionTree) MarshalBinary() ([]byte, error) {
	var enc wire.Encoder
	if err := t.AppendBinary(&enc); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

// UnmarshalBinary 实现 encoding.BinaryUnmarshaler.
func (t *DecisionTree) UnmarshalBinary(data []byte) error {
	decoded := &DecisionTree{rng: randx.Default()}
	var (
		crit    int
		seenRNG bool
	)
	err := wire.Walk(data, func(f wire.Field) error {
		var err error
		switch f.Num {
		case fieldNumFeatures:
			decoded.numFeatures, err = f.Count()
		case fieldMaxDepth:
			decoded.maxDepth, err = f.Count()
		case fieldMinSamplesSplit:
			decoded.minSamplesSplit, err = f.Count()
		case fieldMaxFeatures:
			decoded.maxFeatures, err = f.Count()
		case fieldCriterion:
			crit, err = f.Count()
		case fieldRNG:
			var b []byte
			if b, err = f.Raw(); err == nil {
				err = decoded.rng.UnmarshalBinary(b)
				seenRNG = true
			}
		case fieldNode:
			var b []byte
			if b, err = f.Raw(); err == nil {
				var n Node
				n, err = decodeNode(b)
				decoded.nodes = append(decoded.nodes, n)
			}
		}
		return err
	})
	if err != nil {
		return err
	}
	if !seenRNG {
		return corrupt("missing random stream state")
	}
	decoded.criterion = Criterion(crit)
	if err := decoded.check(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.params, t.rng, t.nodes = decoded.params, decoded.rng, decoded.nodes
	return nil
}

func decodeNode(b []byte) (Node, error) {
	n := Node{Feature: Leaf, Left: Leaf, Right: Leaf}
	err := wire.Walk(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case nodeFeature:
			n.Feature, err = f.Int()
		case nodeThreshold:
			n.Threshold, err = f.Double()
		case nodeLeft:
			n.Left, err = f.Int()
		case nodeRight:
			n.Right, err = f.Int()
		case nodeValue:
			n.Value, err = f.Double()
		case nodeImpurity:
			n.Impurity, err = f.Double()
		case nodeSamples:
			n.Samples, err = f.Count()
		}
		return err
	})
	return n, err
}
