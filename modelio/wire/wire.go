// Package wire 在 protowire 之上封装了模型二进制编码使用的读写助手.
//
// 所有模型都编码为 protobuf 线格式：每个字段带编号与类型标签，嵌套消息与字节串
// 均为长度前缀。解码时跳过未知字段，便于后续版本追加字段.
package wire

import (
	"math"

	"github.com/wyfcoding/forest/cast"
	"github.com/wyfcoding/forest/xerrors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Number 是字段编号.
type Number = protowire.Number

// Encoder 追加式编码器.
type Encoder struct {
	buf []byte
}

// Bytes 返回已编码的数据.
func (e *Encoder) Bytes() []byte { return e.buf }

// Uint 写入无符号 varint 字段.
func (e *Encoder) Uint(num Number, v uint64) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

// Int 写入 zigzag 编码的有符号字段.
func (e *Encoder) Int(num Number, v int) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, protowire.EncodeZigZag(int64(v)))
}

// Double 以 fixed64 写入浮点数，保留全部比特.
func (e *Encoder) Double(num Number, v float64) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.Fixed64Type)
	e.buf = protowire.AppendFixed64(e.buf, math.Float64bits(v))
}

// Doubles 以 packed 形式写入浮点数组.
func (e *Encoder) Doubles(num Number, vs []float64) {
	if len(vs) == 0 {
		return
	}
	packed := make([]byte, 0, 8*len(vs))
	for _, v := range vs {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	e.Raw(num, packed)
}

// Text 写入字符串字段.
func (e *Encoder) Text(num Number, s string) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, s)
}

// Raw 写入长度前缀的字节串.
func (e *Encoder) Raw(num Number, b []byte) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, b)
}

// Message 写入嵌套消息.
func (e *Encoder) Message(num Number, fn func(*Encoder)) {
	var inner Encoder
	fn(&inner)
	e.Raw(num, inner.buf)
}

// Field 是解码出的单个字段.
type Field struct {
	raw   []byte
	Num   Number
	Type  protowire.Type
	value uint64
}

// Walk 依次回调 b 中的每个字段，格式错误时返回 ErrCorruptModel.
func Walk(b []byte, fn func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return corrupt(protowire.ParseError(n))
		}
		b = b[n:]
		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.value, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.value, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return corrupt(protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// Uint 读取无符号 varint.
func (f Field) Uint() (uint64, error) {
	if f.Type != protowire.VarintType {
		return 0, f.mismatch()
	}
	return f.value, nil
}

// Count 读取非负计数并转为 int.
func (f Field) Count() (int, error) {
	v, err := f.Uint()
	if err != nil {
		return 0, err
	}
	return cast.Uint64ToInt(v)
}

// Int 读取 zigzag 编码的有符号整数.
func (f Field) Int() (int, error) {
	if f.Type != protowire.VarintType {
		return 0, f.mismatch()
	}
	return cast.Int64ToInt(protowire.DecodeZigZag(f.value))
}

// Double 读取 fixed64 浮点数.
func (f Field) Double() (float64, error) {
	if f.Type != protowire.Fixed64Type {
		return 0, f.mismatch()
	}
	return math.Float64frombits(f.value), nil
}

// Doubles 读取 packed 浮点数组.
func (f Field) Doubles() ([]float64, error) {
	b, err := f.Raw()
	if err != nil {
		return nil, err
	}
	if len(b)%8 != 0 {
		return nil, corrupt(nil)
	}
	out := make([]float64, 0, len(b)/8)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, corrupt(protowire.ParseError(n))
		}
		out = append(out, math.Float64frombits(v))
		b = b[n:]
	}
	return out, nil
}

// Raw 读取长度前缀的字节串 (共享底层存储).
func (f Field) Raw() ([]byte, error) {
	if f.Type != protowire.BytesType {
		return nil, f.mismatch()
	}
	return f.raw, nil
}

// Text 读取字符串.
func (f Field) Text() (string, error) {
	b, err := f.Raw()
	return string(b), err
}

func (f Field) mismatch() error {
	return xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "unexpected wire type").
		WithDetail("field %d has wire type %d", f.Num, f.Type)
}

func corrupt(cause error) error {
	e := xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "malformed binary model")
	if cause != nil {
		e.WithDetail("%v", cause)
	}
	return e
}
