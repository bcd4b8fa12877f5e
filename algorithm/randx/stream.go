// Package randx 提供可播种、可克隆、可序列化的随机数流.
//
// 随机森林中存在三条逻辑上独立的随机流：构建阶段派生每棵树种子的主流、
// 训练阶段抽取自助样本的采样流，以及每棵树内部选择候选特征的私有流。
// 三者都是 *Stream，并且都随模型一起序列化，保证重新加载后序列可以继续.
package randx

import (
	"encoding/base64"
	"encoding/binary"
	"math/rand/v2"

	"github.com/wyfcoding/forest/xerrors"
)

// SeedSize 是种子的字节数.
const SeedSize = 32

// defaultSeed 是未显式设置随机流时使用的固定种子，使默认行为可复现.
var defaultSeed = [SeedSize]byte{
	0x72, 0x61, 0x6e, 0x64, 0x6f, 0x6d, 0x2d, 0x66,
	0x6f, 0x72, 0x65, 0x73, 0x74, 0x2d, 0x64, 0x65,
	0x66, 0x61, 0x75, 0x6c, 0x74, 0x2d, 0x73, 0x65,
	0x65, 0x64, 0x2d, 0x76, 0x31, 0x00, 0x00, 0x01,
}

// Stream 是基于 ChaCha8 的确定性随机流.
// 非并发安全：每条流只能由一个 goroutine 推进.
type Stream struct {
	src *rand.ChaCha8
	rnd *rand.Rand
}

// New 使用 32 字节种子创建随机流.
func New(seed [SeedSize]byte) *Stream {
	src := rand.NewChaCha8(seed)
	return &Stream{src: src, rnd: rand.New(src)}
}

// Default 返回使用固定种子的随机流.
func Default() *Stream {
	return New(defaultSeed)
}

// FromUint64 将 64 位整数展开为种子，便于命令行与配置文件指定.
func FromUint64(seed uint64) *Stream {
	var s [SeedSize]byte
	for i := 0; i < SeedSize; i += 8 {
		// splitmix64 展开，避免大部分字节为零
		seed += 0x9e3779b97f4a7c15
		z := seed
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
		binary.LittleEndian.PutUint64(s[i:], z)
	}
	return New(s)
}

// Clone 返回状态完全相同、彼此独立的副本.
func (s *Stream) Clone() *Stream {
	state, err := s.src.MarshalBinary()
	if err != nil {
		// ChaCha8 的序列化不会失败
		panic(err)
	}
	c, err := fromState(state)
	if err != nil {
		panic(err)
	}
	return c
}

// IntN 返回 [0, n) 内的均匀随机整数，n <= 0 时 panic.
func (s *Stream) IntN(n int) int {
	return s.rnd.IntN(n)
}

// Float64 返回 [0, 1) 内的均匀随机浮点数.
func (s *Stream) Float64() float64 {
	return s.rnd.Float64()
}

// Byte255 返回 [0, 255) 内的均匀随机字节.
func (s *Stream) Byte255() byte {
	return byte(s.rnd.IntN(255))
}

// Seed32 抽取 32 个 [0, 255) 内的字节组成新种子.
func (s *Stream) Seed32() [SeedSize]byte {
	var seed [SeedSize]byte
	for i := range seed {
		seed[i] = s.Byte255()
	}
	return seed
}

// Shuffle 对 [0, n) 做 Fisher-Yates 洗牌.
func (s *Stream) Shuffle(n int, swap func(i, j int)) {
	s.rnd.Shuffle(n, swap)
}

// MarshalBinary 导出生成器的完整内部状态.
func (s *Stream) MarshalBinary() ([]byte, error) {
	return s.src.MarshalBinary()
}

// UnmarshalBinary 从 MarshalBinary 的输出恢复状态.
func (s *Stream) UnmarshalBinary(data []byte) error {
	restored, err := fromState(data)
	if err != nil {
		return err
	}
	*s = *restored
	return nil
}

// MarshalText 以 base64 文本导出状态，供 JSON/YAML 使用.
func (s *Stream) MarshalText() ([]byte, error) {
	state, err := s.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(state)))
	base64.StdEncoding.Encode(out, state)
	return out, nil
}

// UnmarshalText 解析 MarshalText 的输出.
func (s *Stream) UnmarshalText(text []byte) error {
	state := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(state, text)
	if err != nil {
		return xerrors.Wrap(err, xerrors.ErrDataLoss, "decode random stream state")
	}
	return s.UnmarshalBinary(state[:n])
}

func fromState(state []byte) (*Stream, error) {
	src := new(rand.ChaCha8)
	if err := src.UnmarshalBinary(state); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrCorruptModel, xerrors.ErrDataLoss, "restore random stream state").
			WithDetail("%v", err)
	}
	return &Stream{src: src, rnd: rand.New(src)}, nil
}
