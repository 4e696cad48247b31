// Package tsurugipb encodes and decodes the framework-level request and
// response headers and the diagnostics record that wrap every service
// message on the wire (spec §4.1, §6.1).
//
// The messages are hand-encoded with protowire rather than generated by
// protoc, but follow the same length-delimited, field-tagged wire format
// the server speaks: each field is a (field number, wire type) tag
// followed by its value, exactly as protobuf itself encodes messages.
package tsurugipb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ServiceMessageVersionMajor/Minor are fixed for the framework header (spec §4.1).
const (
	ServiceMessageVersionMajor = 0
	ServiceMessageVersionMinor = 1
)

// BlobInfo describes one large-object parameter attached to a request.
type BlobInfo struct {
	ChannelName string
	Path        string
	IsClob      bool
}

const (
	fieldBlobChannelName = 1
	fieldBlobPath        = 2
	fieldBlobIsClob      = 3
)

func (b *BlobInfo) marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldBlobChannelName, protowire.BytesType)
	buf = protowire.AppendString(buf, b.ChannelName)
	buf = protowire.AppendTag(buf, fieldBlobPath, protowire.BytesType)
	buf = protowire.AppendString(buf, b.Path)
	buf = protowire.AppendTag(buf, fieldBlobIsClob, protowire.VarintType)
	buf = protowire.AppendVarint(buf, boolToVarint(b.IsClob))
	return buf
}

func unmarshalBlobInfo(data []byte) (BlobInfo, error) {
	var b BlobInfo
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return b, fmt.Errorf("tsurugipb: bad blob-info tag")
		}
		data = data[n:]
		switch num {
		case fieldBlobChannelName:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return b, fmt.Errorf("tsurugipb: bad blob channel_name")
			}
			b.ChannelName = s
			data = data[m:]
		case fieldBlobPath:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return b, fmt.Errorf("tsurugipb: bad blob path")
			}
			b.Path = s
			data = data[m:]
		case fieldBlobIsClob:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return b, fmt.Errorf("tsurugipb: bad blob is_clob")
			}
			b.IsClob = v != 0
			data = data[m:]
		default:
			m := skipField(data, typ)
			if m < 0 {
				return b, fmt.Errorf("tsurugipb: bad blob field %d", num)
			}
			data = data[m:]
		}
	}
	return b, nil
}

// RequestHeader is the FrameworkRequestHeader prepended to every request
// payload.
type RequestHeader struct {
	ServiceID   uint64
	SessionID   uint64
	Blobs       []BlobInfo
}

const (
	fieldReqSMVMajor  = 1
	fieldReqSMVMinor  = 2
	fieldReqServiceID = 3
	fieldReqSessionID = 4
	fieldReqBlobs     = 5
)

// Marshal encodes the header as a bare (non length-delimited) message body;
// the caller is responsible for the outer varint length prefix (§4.2).
func (h *RequestHeader) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldReqSMVMajor, protowire.VarintType)
	buf = protowire.AppendVarint(buf, ServiceMessageVersionMajor)
	buf = protowire.AppendTag(buf, fieldReqSMVMinor, protowire.VarintType)
	buf = protowire.AppendVarint(buf, ServiceMessageVersionMinor)
	buf = protowire.AppendTag(buf, fieldReqServiceID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, h.ServiceID)
	buf = protowire.AppendTag(buf, fieldReqSessionID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, h.SessionID)
	for i := range h.Blobs {
		buf = protowire.AppendTag(buf, fieldReqBlobs, protowire.BytesType)
		buf = protowire.AppendBytes(buf, h.Blobs[i].marshal())
	}
	return buf
}

// ResponsePayloadType discriminates the kind of payload carried by a
// framework response header.
type ResponsePayloadType int

const (
	PayloadUnknown ResponsePayloadType = iota
	PayloadServicePayload
	PayloadServerDiagnostics
)

// ResponseHeader is the FrameworkResponseHeader that precedes every response
// payload (spec §4.1).
type ResponseHeader struct {
	PayloadType ResponsePayloadType
	Blobs       []BlobInfo
}

const (
	fieldRespPayloadType = 1
	fieldRespBlobs       = 2
)

func (h *ResponseHeader) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldRespPayloadType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(h.PayloadType))
	for i := range h.Blobs {
		buf = protowire.AppendTag(buf, fieldRespBlobs, protowire.BytesType)
		buf = protowire.AppendBytes(buf, h.Blobs[i].marshal())
	}
	return buf
}

// UnmarshalResponseHeader parses a bare FrameworkResponseHeader body.
func UnmarshalResponseHeader(data []byte) (*ResponseHeader, error) {
	h := &ResponseHeader{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("tsurugipb: bad response-header tag")
		}
		data = data[n:]
		switch num {
		case fieldRespPayloadType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("tsurugipb: bad payload_type")
			}
			h.PayloadType = ResponsePayloadType(v)
			data = data[m:]
		case fieldRespBlobs:
			b, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, fmt.Errorf("tsurugipb: bad blob entry")
			}
			blob, err := unmarshalBlobInfo(b)
			if err != nil {
				return nil, err
			}
			h.Blobs = append(h.Blobs, blob)
			data = data[m:]
		default:
			m := skipField(data, typ)
			if m < 0 {
				return nil, fmt.Errorf("tsurugipb: bad response-header field %d", num)
			}
			data = data[m:]
		}
	}
	return h, nil
}

// DiagnosticsRecord carries the server's protocol-level failure description
// (spec §4.1, §7 kind 6).
type DiagnosticsRecord struct {
	Code    int32
	Message string
}

const (
	fieldDiagCode    = 1
	fieldDiagMessage = 2
)

// UnmarshalDiagnosticsRecord parses a bare DiagnosticsRecord body.
func UnmarshalDiagnosticsRecord(data []byte) (*DiagnosticsRecord, error) {
	d := &DiagnosticsRecord{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("tsurugipb: bad diagnostics tag")
		}
		data = data[n:]
		switch num {
		case fieldDiagCode:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("tsurugipb: bad diagnostics code")
			}
			d.Code = int32(v)
			data = data[m:]
		case fieldDiagMessage:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return nil, fmt.Errorf("tsurugipb: bad diagnostics message")
			}
			d.Message = s
			data = data[m:]
		default:
			m := skipField(data, typ)
			if m < 0 {
				return nil, fmt.Errorf("tsurugipb: bad diagnostics field %d", num)
			}
			data = data[m:]
		}
	}
	return d, nil
}

func (d *DiagnosticsRecord) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldDiagCode, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(uint32(d.Code)))
	buf = protowire.AppendTag(buf, fieldDiagMessage, protowire.BytesType)
	buf = protowire.AppendString(buf, d.Message)
	return buf
}

// skipField returns the number of bytes occupied by a field's value (the
// tag itself was already consumed by the caller).
func skipField(data []byte, typ protowire.Type) int {
	switch typ {
	case protowire.VarintType:
		_, n := protowire.ConsumeVarint(data)
		return n
	case protowire.Fixed32Type:
		_, n := protowire.ConsumeFixed32(data)
		return n
	case protowire.Fixed64Type:
		_, n := protowire.ConsumeFixed64(data)
		return n
	case protowire.BytesType:
		_, n := protowire.ConsumeBytes(data)
		return n
	default:
		return -1
	}
}

func boolToVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
