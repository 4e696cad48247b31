// Package wire is the multiplexed request/response transport over TCP: a
// slot-based response demultiplexer, data channels for streaming results,
// and the framing that sits under them (spec §4.1-§4.5).
package wire

import (
	"encoding/binary"

	"google.golang.org/protobuf/encoding/protowire"
)

// frameType is the inbound/outbound frame discriminant carried in the info
// byte of every frame on the TCP link (spec §4.2, §6.1).
type frameType byte

const (
	frameResponse       frameType = 1 // normal response for a slot
	frameResponseHead   frameType = 2 // body-head: first part of a streaming response
	frameChannelPayload frameType = 3 // data-channel payload chunk
	frameChannelEOF     frameType = 4 // data-channel end-of-contents
	frameSessionBye     frameType = 5 // session-bye
	frameHeartbeat      frameType = 6 // heartbeat

	frameRequest       frameType = 0 // outbound: ordinary request
	frameRequestCancel frameType = 3 // outbound: cancel on an existing slot
)

var order = binary.LittleEndian

// outboundFrame is one frame written to the transport (spec §6.1):
//
//	u8   info byte (frameRequest | frameRequestCancel)
//	u32  slot               ; little-endian
//	varint header_len
//	header_len bytes        ; framework-request-header
//	varint payload_len
//	payload_len bytes       ; service payload
type outboundFrame struct {
	info    frameType
	slot    uint32
	header  []byte
	payload []byte
}

func (f outboundFrame) encode() []byte {
	buf := make([]byte, 0, 1+4+10+len(f.header)+10+len(f.payload))
	buf = append(buf, byte(f.info))
	var slotBuf [4]byte
	order.PutUint32(slotBuf[:], f.slot)
	buf = append(buf, slotBuf[:]...)
	buf = protowire.AppendVarint(buf, uint64(len(f.header)))
	buf = append(buf, f.header...)
	buf = protowire.AppendVarint(buf, uint64(len(f.payload)))
	buf = append(buf, f.payload...)
	return buf
}

// inboundFrame is one frame read off the transport by the reader loop.
// channel carries the data-channel name for frameResponseHead/
// frameChannelPayload/frameChannelEOF; it is empty for slot-addressed
// frames.
type inboundFrame struct {
	kind    frameType
	slot    uint32
	channel string
	payload []byte
}
