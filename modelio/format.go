// Package modelio 负责模型的编码、解码以及经由对象存储的保存与加载.
//
// 支持四种格式：binary (protobuf 线格式，带 RFB1 魔数)、binary+zstd (压缩后的 binary)、
// json 与 yaml。任何格式解码后的模型给出与原模型逐比特相同的预测.
package modelio

import (
	"strings"

	"github.com/wyfcoding/forest/xerrors"
)

// Format 模型编码格式.
type Format int

const (
	FormatBinary Format = iota
	FormatBinaryZstd
	FormatJSON
	FormatYAML
)

var formatNames = [...]string{"binary", "binary+zstd", "json", "yaml"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return "unknown"
	}
	return formatNames[f]
}

// Extension 返回该格式惯用的文件扩展名.
func (f Format) Extension() string {
	switch f {
	case FormatBinary:
		return ".rfb"
	case FormatBinaryZstd:
		return ".rfb.zst"
	case FormatJSON:
		return ".json"
	case FormatYAML:
		return ".yaml"
	default:
		return ""
	}
}

// ContentType 返回上传对象时使用的 MIME 类型.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatBinaryZstd:
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}

// MarshalText 实现 encoding.TextMarshaler，使格式以名称出现在信封与配置中.
func (f Format) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(formatNames) {
		return nil, unsupported(f.String())
	}
	return []byte(f.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFormat 解析格式名称，大小写不敏感；"zstd" 是 "binary+zstd" 的别名.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binary", "bin", "":
		return FormatBinary, nil
	case "binary+zstd", "zstd":
		return FormatBinaryZstd, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return 0, unsupported(s)
	}
}

// FormatFromName 根据对象名的扩展名推断格式，无法识别时按 binary 处理.
func FormatFromName(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zst"):
		return FormatBinaryZstd
	case strings.HasSuffix(lower, ".json"):
		return FormatJSON
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return FormatYAML
	default:
		return FormatBinary
	}
}

func unsupported(name string) error {
	return xerrors.Wrap(xerrors.ErrUnsupportedFormat, xerrors.ErrInvalidArg, "unsupported model format").
		WithDetail("format=%q", name)
}
