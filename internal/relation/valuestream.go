package relation

import (
	"context"
	"fmt"
	"time"
)

// ByteSource is the minimal surface the value stream needs from a data
// channel (spec §4.4): a byte-at-a-time read and a bulk read, both
// timeout-aware. internal/wire.DataChannel implements this.
type ByteSource interface {
	ReadU8(ctx context.Context, timeout time.Duration) (b byte, ok bool, err error)
	ReadAll(ctx context.Context, n int, timeout time.Duration) (buf []byte, ok bool, err error)
}

// DecodeError signals a broken or inconsistent tag stream (spec §7 kind 5).
type DecodeError struct {
	Op  string
	Msg string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("relation: broken encoding in %s: %s", e.Op, e.Msg)
}

// ClientError signals caller misuse of the value-stream API (spec §7 kind 1):
// fetching the wrong type, calling next_column outside a row, and so on.
type ClientError struct {
	Msg string
}

func (e *ClientError) Error() string { return "relation: " + e.Msg }

type kindFrame struct {
	rest int32
}

// ValueStream is a lazy, timeout-aware cursor over one result set's
// tag-encoded byte stream (spec §3 Value-stream state, §4.6).
type ValueStream struct {
	ch ByteSource

	sawEOF              bool
	currentEntryType    EntryType
	headerCategory      int32
	headerPayload       int32
	headerFetched       bool
	kindStack           []kindFrame
	currentColumnType   EntryType
}

// New constructs a value stream reading from ch.
func New(ch ByteSource) *ValueStream {
	return &ValueStream{ch: ch, currentEntryType: Nothing, currentColumnType: Nothing}
}

// NextRow discards any remaining columns of the current row (if one is
// open) and attempts to position the stream on the next top-level row
// (spec §4.6 state machine).
func (v *ValueStream) NextRow(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := v.discardTopLevelRow(ctx, timeout); err != nil {
		return false, err
	}

	et, err := v.peekEntryType(ctx, timeout)
	if err != nil {
		return false, err
	}
	switch et {
	case EndOfContents:
		return false, nil
	case Row:
		n, err := v.readRowBegin(ctx, timeout)
		if err != nil {
			return false, err
		}
		v.kindStack = append(v.kindStack, kindFrame{rest: n})
		return true, nil
	default:
		return false, &DecodeError{Op: "NextRow", Msg: fmt.Sprintf("illegal entry_type %s", et)}
	}
}

func (v *ValueStream) discardTopLevelRow(ctx context.Context, timeout time.Duration) error {
	for len(v.kindStack) > 0 {
		if err := v.discardCurrentFrame(ctx, timeout); err != nil {
			return err
		}
	}
	return nil
}

func (v *ValueStream) discardCurrentFrame(ctx context.Context, timeout time.Duration) error {
	top := v.kindStack[len(v.kindStack)-1]
	v.kindStack = v.kindStack[:len(v.kindStack)-1]
	for i := int32(0); i < top.rest; i++ {
		ok, err := v.Skip(ctx, true, timeout)
		if err != nil {
			return err
		}
		if !ok {
			return &DecodeError{Op: "discardCurrentFrame", Msg: "relation is interruptibly closed"}
		}
	}
	v.currentColumnType = Nothing
	return nil
}

// NextColumn advances to the next column of the currently open row
// (spec §4.6). It is only meaningful while a top-level row frame is active.
func (v *ValueStream) NextColumn(ctx context.Context, timeout time.Duration) (bool, error) {
	if len(v.kindStack) == 0 {
		return false, &ClientError{Msg: "invoke next_row() before next_column()"}
	}
	if err := v.discardCurrentColumnIfAny(ctx, timeout); err != nil {
		return false, err
	}

	rest := v.kindStack[len(v.kindStack)-1].rest
	if rest == 0 {
		return false, nil
	}

	et, err := v.peekEntryType(ctx, timeout)
	if err != nil {
		return false, err
	}
	if et == EndOfContents {
		return false, &DecodeError{Op: "NextColumn", Msg: "saw unexpected end of contents"}
	}
	v.currentColumnType = et
	return true, nil
}

func (v *ValueStream) discardCurrentColumnIfAny(ctx context.Context, timeout time.Duration) error {
	if v.currentColumnType == Nothing {
		return nil
	}
	ok, err := v.Skip(ctx, true, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return &DecodeError{Op: "discardCurrentColumnIfAny", Msg: "relation is interruptibly closed"}
	}
	v.columnConsumed()
	return nil
}

// IsNull reports whether the active column holds a null value. Valid only
// while a column is active; does not consume.
func (v *ValueStream) IsNull() (bool, error) {
	if v.currentColumnType == Nothing {
		return false, &ClientError{Msg: "invoke next_column() before is_null()"}
	}
	return v.currentColumnType == Null, nil
}

func (v *ValueStream) columnConsumed() {
	v.currentColumnType = Nothing
	top := &v.kindStack[len(v.kindStack)-1]
	top.rest--
}

func (v *ValueStream) requireColumnType(expected EntryType) error {
	found := v.currentColumnType
	if found == Nothing {
		return &ClientError{Msg: "invoke next_column() before fetch value"}
	}
	if found != expected {
		return &ClientError{Msg: fmt.Sprintf("value type is inconsistent: found '%s' but expected '%s'", found, expected)}
	}
	return nil
}

func (v *ValueStream) requireColumnTypeSet(expected ...EntryType) error {
	found := v.currentColumnType
	if found == Nothing {
		return &ClientError{Msg: "invoke next_column() before fetch value"}
	}
	for _, e := range expected {
		if found == e {
			return nil
		}
	}
	return &ClientError{Msg: fmt.Sprintf("value type is inconsistent: found '%s'", found)}
}

// FetchBool reads the active column as a boolean (server encodes bool as
// Int 0/1).
func (v *ValueStream) FetchBool(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := v.requireColumnType(Int); err != nil {
		return false, err
	}
	n, err := v.readInt(ctx, timeout)
	if err != nil {
		return false, err
	}
	v.columnConsumed()
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, &DecodeError{Op: "FetchBool", Msg: fmt.Sprintf("value out of range for bool: %d", n)}
	}
}

// FetchInt4 reads the active column as a 32-bit integer.
func (v *ValueStream) FetchInt4(ctx context.Context, timeout time.Duration) (int32, error) {
	if err := v.requireColumnType(Int); err != nil {
		return 0, err
	}
	n, err := v.readInt(ctx, timeout)
	if err != nil {
		return 0, err
	}
	v.columnConsumed()
	if n < -(1<<31) || n > (1<<31)-1 {
		return 0, &DecodeError{Op: "FetchInt4", Msg: fmt.Sprintf("value out of range for int32: %d", n)}
	}
	return int32(n), nil
}

// FetchInt8 reads the active column as a 64-bit integer.
func (v *ValueStream) FetchInt8(ctx context.Context, timeout time.Duration) (int64, error) {
	if err := v.requireColumnType(Int); err != nil {
		return 0, err
	}
	n, err := v.readInt(ctx, timeout)
	if err != nil {
		return 0, err
	}
	v.columnConsumed()
	return n, nil
}

// FetchFloat4 reads the active column as a 32-bit IEEE-754 float.
func (v *ValueStream) FetchFloat4(ctx context.Context, timeout time.Duration) (float32, error) {
	if err := v.requireColumnType(Float4); err != nil {
		return 0, err
	}
	f, err := v.readFloat4(ctx, timeout)
	if err != nil {
		return 0, err
	}
	v.columnConsumed()
	return f, nil
}

// FetchFloat8 reads the active column as a 64-bit IEEE-754 float.
func (v *ValueStream) FetchFloat8(ctx context.Context, timeout time.Duration) (float64, error) {
	if err := v.requireColumnType(Float8); err != nil {
		return 0, err
	}
	f, err := v.readFloat8(ctx, timeout)
	if err != nil {
		return 0, err
	}
	v.columnConsumed()
	return f, nil
}

// Decimal is the decoded (coefficient-bytes-or-int64, exponent) pair
// produced by FetchDecimal (spec §4.6 numeric extensions). Coefficient is
// set when the server sent the full form; otherwise CoefficientInt holds
// the compact signed varint coefficient.
type Decimal struct {
	Coefficient    []byte
	CoefficientInt int64
	HasBytes       bool
	Exponent       int32
}

// FetchDecimal reads the active column as a decimal value. A plain Int
// column is also accepted, per the original server behavior, as an
// integral decimal with exponent 0.
func (v *ValueStream) FetchDecimal(ctx context.Context, timeout time.Duration) (Decimal, error) {
	if err := v.requireColumnTypeSet(Decimal, Int); err != nil {
		return Decimal{}, err
	}
	d, err := v.readDecimal(ctx, timeout)
	if err != nil {
		return Decimal{}, err
	}
	v.columnConsumed()
	return d, nil
}

// FetchCharacter reads the active column as a UTF-8 string.
func (v *ValueStream) FetchCharacter(ctx context.Context, timeout time.Duration) (string, error) {
	if err := v.requireColumnType(Character); err != nil {
		return "", err
	}
	s, err := v.readCharacter(ctx, timeout)
	if err != nil {
		return "", err
	}
	v.columnConsumed()
	return s, nil
}
