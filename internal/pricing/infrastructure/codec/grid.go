// Package codec 价格网格的二进制传输格式。
//
// 布局（小端）：
//
//	magic       [4]byte  "LSMG"
//	version     uint8    1
//	compression uint8    0 无压缩, 1 zstd, 2 lz4, 3 s2
//	_           uint16
//	paths       uint32
//	cols        uint32   n_steps + 1
//	checksum    uint64   未压缩 payload 的 xxhash64
//	payload              paths*cols 个 float64，按路径行优先
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

// ContentType HTTP 上传使用的媒体类型
const ContentType = "application/x-lsm-grid"

// Compression payload 压缩算法
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
	CompressionS2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionS2:
		return "s2"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression 解析压缩算法名称，空串视为不压缩
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "s2":
		return CompressionS2, nil
	}
	return 0, fmt.Errorf("%w: unknown compression %q", domain.ErrInvalidArgument, s)
}

const (
	version     = 1
	headerSize  = 24
	float64Size = 8
	// maxCells <= 0 时的硬上限 (1 GiB payload)
	hardCellLimit = 1 << 27
)

var magic = [4]byte{'L', 'S', 'M', 'G'}

var (
	ErrBadMagic    = fmt.Errorf("%w: not an encoded price grid", domain.ErrInvalidArgument)
	ErrVersion     = fmt.Errorf("%w: unsupported grid encoding version", domain.ErrInvalidArgument)
	ErrCompression = fmt.Errorf("%w: unsupported grid compression", domain.ErrInvalidArgument)
	ErrTruncated   = fmt.Errorf("%w: encoded price grid is truncated", domain.ErrInvalidArgument)
	ErrTooLarge    = fmt.Errorf("%w: encoded price grid exceeds the cell limit", domain.ErrInvalidArgument)
	ErrCorrupt     = fmt.Errorf("%w: encoded price grid payload is corrupt", domain.ErrInvalidArgument)
	ErrChecksum    = fmt.Errorf("%w: encoded price grid checksum mismatch", domain.ErrInvalidArgument)
)

var encoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("codec: create zstd encoder: %v", err))
		}
		return enc
	},
}

var decoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(hardCellLimit*float64Size),
		)
		if err != nil {
			panic(fmt.Sprintf("codec: create zstd decoder: %v", err))
		}
		return dec
	},
}

var lz4Pool = sync.Pool{
	New: func() any { return &lz4.Compressor{} },
}

// Encode 序列化网格
func Encode(grid *domain.PathGrid, c Compression) ([]byte, error) {
	data := grid.Data()
	payload := make([]byte, len(data)*float64Size)
	for i, v := range data {
		binary.LittleEndian.PutUint64(payload[i*float64Size:], math.Float64bits(v))
	}

	out := make([]byte, headerSize, headerSize+len(payload))
	copy(out[0:4], magic[:])
	out[4] = version
	binary.LittleEndian.PutUint32(out[8:12], uint32(grid.Paths()))
	binary.LittleEndian.PutUint32(out[12:16], uint32(grid.Cols()))
	binary.LittleEndian.PutUint64(out[16:24], xxhash.Sum64(payload))

	switch c {
	case CompressionNone:
		return append(out, payload...), nil
	case CompressionZstd:
		out[5] = byte(c)
		enc := encoderPool.Get().(*zstd.Encoder)
		defer encoderPool.Put(enc)
		return enc.EncodeAll(payload, out), nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(payload)))
		lc := lz4Pool.Get().(*lz4.Compressor)
		n, err := lc.CompressBlock(payload, dst)
		lz4Pool.Put(lc)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress grid: %w", err)
		}
		// 不可压缩时退回原始 payload
		if n == 0 {
			return append(out, payload...), nil
		}
		out[5] = byte(c)
		return append(out, dst[:n]...), nil
	case CompressionS2:
		out[5] = byte(c)
		return append(out, s2.Encode(nil, payload)...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrCompression, c)
	}
}

// Decode 反序列化并校验网格；maxCells <= 0 表示只受硬上限约束
func Decode(b []byte, maxCells int) (*domain.PathGrid, error) {
	if len(b) < headerSize {
		return nil, ErrTruncated
	}
	if [4]byte(b[0:4]) != magic {
		return nil, ErrBadMagic
	}
	if b[4] != version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, b[4])
	}
	paths := binary.LittleEndian.Uint32(b[8:12])
	cols := binary.LittleEndian.Uint32(b[12:16])
	limit := uint64(hardCellLimit)
	if maxCells > 0 {
		limit = min(limit, uint64(maxCells))
	}
	if uint64(paths)*uint64(cols) > limit {
		return nil, fmt.Errorf("%w: %d×%d > %d", ErrTooLarge, paths, cols, limit)
	}
	cells := int(paths) * int(cols)
	want := cells * float64Size

	payload, err := decompress(Compression(b[5]), b[headerSize:], want)
	if err != nil {
		return nil, err
	}
	if len(payload) != want {
		return nil, fmt.Errorf("%w: payload has %d bytes, header implies %d", ErrTruncated, len(payload), want)
	}
	if xxhash.Sum64(payload) != binary.LittleEndian.Uint64(b[16:24]) {
		return nil, ErrChecksum
	}

	data := make([]float64, cells)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*float64Size:]))
	}
	return domain.NewPathGrid(data, int(paths), int(cols))
}

// decompress 按头部声明的大小解压，want 由 maxCells 约束
func decompress(c Compression, src []byte, want int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return src, nil
	case CompressionZstd:
		dec := decoderPool.Get().(*zstd.Decoder)
		raw, err := dec.DecodeAll(src, make([]byte, 0, want))
		decoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		return raw, nil
	case CompressionLZ4:
		raw := make([]byte, want)
		n, err := lz4.UncompressBlock(src, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		return raw[:n], nil
	case CompressionS2:
		n, err := s2.DecodedLen(src)
		if err != nil {
			return nil, fmt.Errorf("%w: s2: %v", ErrCorrupt, err)
		}
		if n != want {
			return nil, fmt.Errorf("%w: payload has %d bytes, header implies %d", ErrTruncated, n, want)
		}
		raw, err := s2.Decode(make([]byte, want), src)
		if err != nil {
			return nil, fmt.Errorf("%w: s2: %v", ErrCorrupt, err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrCompression, uint8(c))
	}
}
