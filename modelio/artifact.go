package modelio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/forest/algorithm/ensemble"
	"github.com/wyfcoding/forest/algorithm/tree"
	"github.com/wyfcoding/forest/logging"
	"github.com/wyfcoding/forest/metrics"
	"github.com/wyfcoding/forest/storage"
	"github.com/wyfcoding/forest/tracing"
	"github.com/wyfcoding/forest/xerrors"
)

// 模型种类，写入信封用于加载时还原具体类型.
const (
	KindDecisionTree = "decision_tree"
	KindRandomForest = "random_forest"
	KindOneVsRest    = "one_vs_rest_forest"
)

// metaSuffix 是信封对象名的后缀.
const metaSuffix = ".meta.json"

// Envelope 描述一个已保存的模型文件.
type Envelope struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Format    Format    `json:"format"`
	Object    string    `json:"object"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store 通过对象存储保存与加载模型.
// 模型本体保存在 name 下，信封保存在 name + ".meta.json" 下.
type Store struct {
	storage storage.Storage
	metrics *metrics.Metrics
}

// NewStore 创建模型仓库，m 为 nil 时不上报文件大小指标.
func NewStore(s storage.Storage, m *metrics.Metrics) *Store {
	m.RegisterArtifactSizeMetrics()
	return &Store{storage: s, metrics: m}
}

// Save 编码并上传模型及其信封.
func (s *Store) Save(ctx context.Context, name string, m Model, f Format) (env *Envelope, err error) {
	ctx, span := tracing.StartSpan(ctx, "modelio.Save")
	defer span.End()
	defer func() { tracing.SetError(ctx, err) }()

	kind, err := KindOf(m)
	if err != nil {
		return nil, err
	}
	data, err := Encode(m, f)
	if err != nil {
		return nil, err
	}
	env = &Envelope{
		ID:        uuid.New(),
		Kind:      kind,
		Format:    f,
		Object:    name,
		Size:      len(data),
		CreatedAt: time.Now().UTC(),
	}
	meta, err := json.Marshal(env)
	if err != nil {
		return nil, xerrors.WrapInternal(err, "encode envelope")
	}

	if err := s.storage.Upload(ctx, name, bytes.NewReader(data), int64(len(data)), f.ContentType()); err != nil {
		return nil, err
	}
	if err := s.storage.Upload(ctx, name+metaSuffix, bytes.NewReader(meta), int64(len(meta)), "application/json"); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ArtifactWriteBytes.WithLabelValues(f.String()).Observe(float64(len(data)))
	}
	tracing.Annotate(ctx, "model.id", env.ID, "model.kind", kind, "model.format", f, "model.bytes", len(data))
	logging.Info(ctx, "model saved", "object", name, "id", env.ID, "kind", kind, "format", f.String(), "bytes", len(data))
	return env, nil
}

// Load 读取信封，按其中记录的种类与格式还原模型.
func (s *Store) Load(ctx context.Context, name string) (Model, *Envelope, error) {
	ctx, span := tracing.StartSpan(ctx, "modelio.Load")
	defer span.End()

	env, err := s.Stat(ctx, name)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, nil, err
	}
	m, err := NewModel(env.Kind)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, nil, err
	}
	if err := s.read(ctx, env, m); err != nil {
		tracing.SetError(ctx, err)
		return nil, nil, err
	}
	return m, env, nil
}

// LoadInto 把模型解码进调用方提供的 m，种类必须与信封一致.
func (s *Store) LoadInto(ctx context.Context, name string, m Model) (*Envelope, error) {
	env, err := s.Stat(ctx, name)
	if err != nil {
		return nil, err
	}
	kind, err := KindOf(m)
	if err != nil {
		return nil, err
	}
	if kind != env.Kind {
		return nil, xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "model kind mismatch").
			WithDetail("stored %s, requested %s", env.Kind, kind)
	}
	return env, s.read(ctx, env, m)
}

// Stat 只读取信封.
func (s *Store) Stat(ctx context.Context, name string) (*Envelope, error) {
	rc, err := s.storage.Download(ctx, name+metaSuffix)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var env Envelope
	if err := json.NewDecoder(rc).Decode(&env); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "decode envelope").WithDetail("%v", err)
	}
	return &env, nil
}

// Delete 删除模型及其信封.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.storage.Delete(ctx, name+metaSuffix); err != nil {
		return err
	}
	return s.storage.Delete(ctx, name)
}

func (s *Store) read(ctx context.Context, env *Envelope, m Model) error {
	rc, err := s.storage.Download(ctx, env.Object)
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return xerrors.WrapInternal(err, "read model object")
	}
	if len(data) != env.Size {
		return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "model size does not match envelope").
			WithDetail("envelope %d bytes, object %d bytes", env.Size, len(data))
	}
	if err := Decode(data, m, env.Format); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ArtifactReadBytes.WithLabelValues(env.Format.String()).Observe(float64(len(data)))
	}
	logging.Debug(ctx, "model loaded", "object", env.Object, "id", env.ID, "kind", env.Kind, "format", env.Format.String())
	return nil
}

// KindOf 返回模型的种类名.
func KindOf(m Model) (string, error) {
	switch m.(type) {
	case *tree.DecisionTree:
		return KindDecisionTree, nil
	case *ensemble.RandomForest:
		return KindRandomForest, nil
	case *ensemble.OneVsRestForest:
		return KindOneVsRest, nil
	default:
		return "", xerrors.Wrap(xerrors.ErrUnsupportedFormat, xerrors.ErrInvalidArg, "unknown model type").
			WithDetail("%T", m)
	}
}

// NewModel 创建指定种类的空模型，用于解码.
func NewModel(kind string) (Model, error) {
	switch kind {
	case KindDecisionTree:
		return new(tree.DecisionTree), nil
	case KindRandomForest:
		return new(ensemble.RandomForest), nil
	case KindOneVsRest:
		return new(ensemble.OneVsRestForest), nil
	default:
		return nil, xerrors.Wrap(xerrors.ErrUnsupportedFormat, xerrors.ErrInvalidArg, "unknown model kind").
			WithDetail("kind=%q", kind)
	}
}
