package tsurugipb

import "google.golang.org/protobuf/encoding/protowire"

// msgWriter is a tiny helper around protowire that keeps the individual SQL
// service message encoders in sql_codec.go short: each field is appended with its
// own tag, mirroring exactly what a protoc-generated Marshal would produce
// for the equivalent .proto message.
type msgWriter struct {
	buf []byte
}

func (w *msgWriter) uint64Field(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.VarintType)
	w.buf = protowire.AppendVarint(w.buf, v)
}

func (w *msgWriter) int64Field(num protowire.Number, v int64) {
	w.uint64Field(num, protowire.EncodeZigZag(v))
}

func (w *msgWriter) boolField(num protowire.Number, v bool) {
	if !v {
		return
	}
	w.uint64Field(num, 1)
}

func (w *msgWriter) stringField(num protowire.Number, v string) {
	if v == "" {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendString(w.buf, v)
}

func (w *msgWriter) bytesField(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, v)
}

func (w *msgWriter) messageField(num protowire.Number, v []byte) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, v)
}

func (w *msgWriter) bytes() []byte { return w.buf }

// msgReader walks a bare message body field by field, dispatching to a
// caller-supplied visitor.
type msgReader struct {
	data []byte
}

type fieldVisitor func(num protowire.Number, typ protowire.Type, data []byte) (consumed int, err error)

func (r *msgReader) each(visit fieldVisitor) error {
	data := r.data
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errBadTag
		}
		data = data[n:]
		consumed, err := visit(num, typ, data)
		if err != nil {
			return err
		}
		if consumed < 0 {
			consumed = skipField(data, typ)
			if consumed < 0 {
				return errBadTag
			}
		}
		data = data[consumed:]
	}
	return nil
}

var errBadTag = fmtErrorf("tsurugipb: malformed message")

func fmtErrorf(s string) error { return simpleErr(s) }

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
