package modelio

import (
	"bytes"
	"encoding"
	"encoding/json"

	"github.com/klauspost/compress/zstd"
	"github.com/wyfcoding/forest/xerrors"
	"gopkg.in/yaml.v3"
)

// Model 是可以被 modelio 编码的模型.
type Model interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
	json.Marshaler
	json.Unmarshaler
	yaml.Marshaler
	yaml.Unmarshaler
}

// magic 是 binary 格式的文件头，最后一个字节是格式版本.
var magic = []byte("RFB1")

// 编解码器可以被多个 goroutine 复用.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// Encode 按格式编码模型.
func Encode(m Model, f Format) ([]byte, error) {
	switch f {
	case FormatBinary, FormatBinaryZstd:
		payload, err := m.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(magic)+len(payload))
		out = append(out, magic...)
		out = append(out, payload...)
		if f == FormatBinaryZstd {
			return zstdEncoder.EncodeAll(out, nil), nil
		}
		return out, nil
	case FormatJSON:
		return json.MarshalIndent(m, "", "  ")
	case FormatYAML:
		return yaml.Marshal(m)
	default:
		return nil, unsupported(f.String())
	}
}

// Decode 按格式把 data 解码进 m.
func Decode(data []byte, m Model, f Format) error {
	switch f {
	case FormatBinaryZstd:
		raw, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "decompress model").WithDetail("%v", err)
		}
		return decodeBinary(raw, m)
	case FormatBinary:
		return decodeBinary(data, m)
	case FormatJSON:
		return corrupt(json.Unmarshal(data, m), "decode model json")
	case FormatYAML:
		return corrupt(yaml.Unmarshal(data, m), "decode model yaml")
	default:
		return unsupported(f.String())
	}
}

// corrupt 把解析库自身的语法错误归为 ErrCorruptModel，模型返回的错误原样透传.
func corrupt(err error, msg string) error {
	if err == nil {
		return nil
	}
	if _, ok := xerrors.FromError(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, msg).WithDetail("%v", err)
}

func decodeBinary(data []byte, m Model) error {
	payload, ok := bytes.CutPrefix(data, magic)
	if !ok {
		return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "missing binary model header").
			WithDetail("want %q", magic)
	}
	return m.UnmarshalBinary(payload)
}
