package relation

import (
	"context"
	"time"
)

// readUnsignedVarintRaw reads an unsigned base-128 varint (LEB128), as used
// for lengths/sizes and as the carrier for zig-zag signed values (spec §4.6).
func readUnsignedVarintRaw(ctx context.Context, ch ByteSource, timeout time.Duration) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, ok, err := ch.ReadU8(ctx, timeout)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, &DecodeError{Op: "readUnsignedVarintRaw", Msg: "saw unexpected eof"}
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 64 {
			return 0, &DecodeError{Op: "readUnsignedVarintRaw", Msg: "varint too long"}
		}
	}
	return result, nil
}

// readUnsignedVarint reads an unsigned base-128 varint as a non-negative
// int64, used for lengths/sizes (spec §4.6).
func readUnsignedVarint(ctx context.Context, ch ByteSource, timeout time.Duration) (int64, error) {
	u, err := readUnsignedVarintRaw(ctx, ch, timeout)
	if err != nil {
		return 0, err
	}
	return int64(u), nil
}

// readSignedVarint reads a zig-zag encoded signed base-128 varint
// (spec §4.6: "int uses zig-zag base-128 varint").
func readSignedVarint(ctx context.Context, ch ByteSource, timeout time.Duration) (int64, error) {
	u, err := readUnsignedVarintRaw(ctx, ch, timeout)
	if err != nil {
		return 0, err
	}
	return zigZagDecode(u), nil
}

func zigZagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

func zigZagEncode(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

// AppendUnsignedVarint/AppendSignedVarint are exposed for tests that
// construct synthetic relation streams.

func AppendUnsignedVarint(buf []byte, v int64) []byte {
	u := uint64(v)
	for u >= 0x80 {
		buf = append(buf, byte(u)|0x80)
		u >>= 7
	}
	return append(buf, byte(u))
}

func AppendSignedVarint(buf []byte, v int64) []byte {
	return AppendUnsignedVarint(buf, int64(zigZagEncode(v)))
}
