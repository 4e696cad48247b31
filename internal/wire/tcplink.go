package wire

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/project-tsurugi/tsubakuro-go/internal/tsurugipb"
	"github.com/project-tsurugi/tsubakuro-go/log"
	"github.com/project-tsurugi/tsubakuro-go/tgerr"
)

// writeReq is one pending frame write, handed off from callers to the
// writer goroutine. Grounded on internal/muxado/session.go's writeReq/
// writeFrame/writeFrameAsync split: a synchronous caller gets an error back
// over a buffered-1 channel, an async caller ("fire and forget", used for
// cancel messages and best-effort sends) does not wait at all.
type writeReq struct {
	frame outboundFrame
	err   chan error // nil for fire-and-forget sends
}

// tcpLink owns the socket: writes prefixed frames from one writer
// goroutine (so writes from many callers never interleave) and reads
// inbound frames on one reader goroutine, routing each to its slot or data
// channel without ever blocking on caller-side consumption (spec §4.2).
type tcpLink struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	log    log.Logger

	writeFrames chan writeReq
	dead        chan struct{}
	dieOnce     sync.Once
	dieErr      error

	box *ResponseBox

	chMu     sync.Mutex
	channels map[string]*DataChannel

	onSessionBye func()
}

func newTCPLink(conn io.ReadWriteCloser, box *ResponseBox, logger log.Logger) *tcpLink {
	l := &tcpLink{
		conn:        conn,
		reader:      bufio.NewReaderSize(conn, 64*1024),
		log:         logger,
		writeFrames: make(chan writeReq, 64),
		dead:        make(chan struct{}),
		box:         box,
		channels:    make(map[string]*DataChannel),
	}
	go l.writer()
	go l.readLoop()
	return l
}

// send writes f and waits for the write itself (not any response) to
// complete, mirroring session.writeFrame's synchronous semantics.
func (l *tcpLink) send(f outboundFrame, deadline time.Time) error {
	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timeout = time.After(time.Until(deadline))
	}
	req := writeReq{frame: f, err: make(chan error, 1)}
	select {
	case l.writeFrames <- req:
	case <-l.dead:
		return l.closedErr()
	case <-timeout:
		return tgerr.Timeout("wire send")
	}
	select {
	case err := <-req.err:
		return err
	case <-timeout:
		return tgerr.Timeout("wire send")
	case <-l.dead:
		return l.closedErr()
	}
}

// sendAsync writes f without waiting, for best-effort sends (cancel
// requests, session-bye) that must not block the caller (spec §4.9 cancel,
// §4.7 close "sends a session-bye best effort").
func (l *tcpLink) sendAsync(f outboundFrame) error {
	select {
	case l.writeFrames <- writeReq{frame: f}:
		return nil
	case <-l.dead:
		return l.closedErr()
	}
}

func (l *tcpLink) writer() {
	defer l.recoverPanic("writer")
	for {
		select {
		case req := <-l.writeFrames:
			_, err := l.conn.Write(req.frame.encode())
			if err != nil {
				err = tgerr.Transport("wire write", err)
			}
			if req.err != nil {
				req.err <- err
			}
			if err != nil {
				l.die(err)
				return
			}
		case <-l.dead:
			return
		}
	}
}

func (l *tcpLink) readLoop() {
	defer l.recoverPanic("reader")
	for {
		f, err := l.readFrame()
		if err != nil {
			if err == io.EOF {
				l.die(tgerr.Transport("wire read", io.ErrUnexpectedEOF))
			} else {
				l.die(err)
			}
			return
		}
		l.dispatch(f)
		select {
		case <-l.dead:
			return
		default:
		}
	}
}

func (l *tcpLink) readFrame() (inboundFrame, error) {
	infoByte, err := l.reader.ReadByte()
	if err != nil {
		return inboundFrame{}, err
	}
	var slotBuf [4]byte
	if _, err := io.ReadFull(l.reader, slotBuf[:]); err != nil {
		return inboundFrame{}, err
	}
	channel, err := readLengthPrefixedString(l.reader)
	if err != nil {
		return inboundFrame{}, err
	}
	payload, err := readLengthPrefixedBytes(l.reader)
	if err != nil {
		return inboundFrame{}, err
	}
	return inboundFrame{
		kind:    frameType(infoByte),
		slot:    order.Uint32(slotBuf[:]),
		channel: channel,
		payload: payload,
	}, nil
}

func (l *tcpLink) dispatch(f inboundFrame) {
	switch f.kind {
	case frameResponse, frameResponseHead:
		resp, err := decodeFramedResponse(f.payload)
		if err != nil {
			resp = &Response{Err: tgerr.Decode("framework response header", err)}
		}
		resp.Channel = f.channel
		l.box.Push(f.slot, resp)
	case frameChannelPayload:
		l.channel(f.channel).push(f.payload)
	case frameChannelEOF:
		l.channel(f.channel).pushEOF()
	case frameSessionBye:
		if l.onSessionBye != nil {
			l.onSessionBye()
		}
	case frameHeartbeat:
		// nothing to do; the keep-alive task drives its own sends
	default:
		l.log.Log(context.Background(), log.LogLevelWarn, "wire: unknown frame type", map[string]interface{}{"type": f.kind})
	}
}

func (l *tcpLink) channel(name string) *DataChannel {
	l.chMu.Lock()
	defer l.chMu.Unlock()
	c, ok := l.channels[name]
	if !ok {
		c = newDataChannel(name)
		l.channels[name] = c
	}
	return c
}

func (l *tcpLink) createDataChannel(name string) *DataChannel {
	return l.channel(name)
}

func (l *tcpLink) dropDataChannel(name string) {
	l.chMu.Lock()
	delete(l.channels, name)
	l.chMu.Unlock()
}

func (l *tcpLink) die(err error) {
	l.dieOnce.Do(func() {
		l.dieErr = err
		close(l.dead)
		l.conn.Close()
	})
}

func (l *tcpLink) closedErr() error {
	if l.dieErr != nil {
		return l.dieErr
	}
	return tgerr.Transport("wire", io.ErrClosedPipe)
}

func (l *tcpLink) isClosed() bool {
	select {
	case <-l.dead:
		return true
	default:
		return false
	}
}

func (l *tcpLink) recoverPanic(where string) {
	if r := recover(); r != nil {
		l.die(tgerr.Transport(where, nil))
	}
}

func readLengthPrefixedString(r *bufio.Reader) (string, error) {
	b, err := readLengthPrefixedBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readLengthPrefixedBytes(r *bufio.Reader) ([]byte, error) {
	n, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// decodeFramedResponse applies spec §4.1's decoding rule to one frame's raw
// bytes (varint-length header, then varint-length payload): if the
// framework-response-header's payload type is server-diagnostics, the
// remainder decodes as a DiagnosticsRecord and becomes a bound error;
// otherwise the remainder is the service payload, passed upward untouched.
func decodeFramedResponse(raw []byte) (*Response, error) {
	headerLen, n := protowire.ConsumeVarint(raw)
	if n < 0 {
		return nil, tgerr.Decode("framework response header length", nil)
	}
	raw = raw[n:]
	if uint64(len(raw)) < headerLen {
		return nil, tgerr.Decode("framework response header truncated", nil)
	}
	headerBytes, rest := raw[:headerLen], raw[headerLen:]
	header, err := tsurugipb.UnmarshalResponseHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	payloadLen, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return nil, tgerr.Decode("framework response payload length", nil)
	}
	rest = rest[n:]
	if uint64(len(rest)) < payloadLen {
		return nil, tgerr.Decode("framework response payload truncated", nil)
	}
	payload := rest[:payloadLen]

	if header.PayloadType == tsurugipb.PayloadServerDiagnostics {
		diag, err := tsurugipb.UnmarshalDiagnosticsRecord(payload)
		if err != nil {
			return nil, err
		}
		return &Response{Err: tgerr.ServerDiagnostic(diag.Code, diag.Message)}, nil
	}
	return &Response{Payload: payload}, nil
}

func readVarint(r *bufio.Reader) (uint64, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		buf = append(buf, b)
		if b&0x80 == 0 {
			break
		}
	}
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, tgerr.Decode("varint", nil)
	}
	return v, nil
}
