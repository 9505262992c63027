// Package framer implements the resynchronising serial reader loop: it
// locates frame markers in a byte stream, reads and validates v1/v2 frames,
// and emits decoded Packets. Corrupted or unrecognised frames are dropped
// locally; only a transport failure is fatal.
package framer

import (
	"context"

	"mavgo/pkg/schema"
	"mavgo/pkg/transport"
	"mavgo/pkg/wire"
)

// Packet is a single decoded message, ready for the dispatch engine.
type Packet struct {
	Message *schema.Message
	Content map[string]any
}

// Option configures a Reader.
type Option func(*Reader)

// WithUnknownFrameHandler registers a callback invoked with the raw msgid
// and the frame's header+payload bytes whenever a frame's message id is not
// present in the registry. This is the optional "raw frame" hook spec.md's
// design notes mention; by default unknown frames are silently dropped.
func WithUnknownFrameHandler(fn func(msgid uint32, raw []byte)) Option {
	return func(r *Reader) { r.onUnknownFrame = fn }
}

// WithFrameErrorHandler registers a callback invoked whenever a frame is
// dropped locally (CRC mismatch, or a decode error on an otherwise valid
// frame). The reader always continues after calling it.
func WithFrameErrorHandler(fn func(error)) Option {
	return func(r *Reader) { r.onFrameError = fn }
}

// Reader runs the resynchronising frame loop against a transport.Stream,
// dispatching decoded packets to onPacket. One Reader owns one Stream; it is
// meant to run on a single dedicated goroutine, per spec.md §5.
type Reader struct {
	stream   transport.Stream
	registry *schema.Registry
	onPacket func(Packet)

	onUnknownFrame func(msgid uint32, raw []byte)
	onFrameError   func(error)

	ibuf []byte
}

// NewReader constructs a Reader. onPacket is called synchronously from the
// reader's goroutine for every successfully decoded frame; it must not
// block for long (the dispatch engine only holds its lock briefly).
func NewReader(stream transport.Stream, registry *schema.Registry, onPacket func(Packet), opts ...Option) *Reader {
	r := &Reader{stream: stream, registry: registry, onPacket: onPacket}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives the reader loop until ctx is cancelled or the transport
// returns a fatal error. A transport error is always returned; a cancelled
// context returns ctx.Err().
func (r *Reader) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if len(r.ibuf) == 0 {
			b, err := r.stream.ReadByte()
			if err != nil {
				return err
			}
			r.ibuf = append(r.ibuf, b)
			continue
		}

		idx := indexOfMarker(r.ibuf)
		if idx < 0 {
			r.ibuf = r.ibuf[:0]
			continue
		}
		if idx > 0 {
			r.ibuf = r.ibuf[idx:]
		}

		if err := r.processFrame(); err != nil {
			return err
		}
	}
}

func indexOfMarker(buf []byte) int {
	for i, b := range buf {
		if b == wire.MarkerV1 || b == wire.MarkerV2 {
			return i
		}
	}
	return -1
}

// processFrame assumes r.ibuf[0] is a marker byte. It reads the full frame,
// validates it, and either dispatches a Packet or drops the frame. A frame
// with an unknown msgid or a CRC mismatch leaves the reader positioned to
// resume scanning from ibuf[1:]; a frame whose payload fails to decode is
// skipped whole.
func (r *Reader) processFrame() error {
	marker := r.ibuf[0]
	headerSize := wire.HeaderSizeV1
	if marker == wire.MarkerV2 {
		headerSize = wire.HeaderSizeV2
	}

	if err := r.ensureLen(1 + headerSize); err != nil {
		return err
	}
	headerBytes := r.ibuf[1 : 1+headerSize]

	var payloadSize int
	var incompatFlags byte
	var msgid uint32
	if marker == wire.MarkerV1 {
		h := wire.DecodeHeaderV1(headerBytes)
		payloadSize = int(h.PayloadSize)
		msgid = uint32(h.MsgID)
	} else {
		h := wire.DecodeHeaderV2(headerBytes)
		payloadSize = int(h.PayloadSize)
		incompatFlags = h.IncompatFlags
		msgid = h.MsgID
	}

	sigSize := 0
	if marker == wire.MarkerV2 && incompatFlags&wire.IncompatFlagSigned != 0 {
		sigSize = wire.SignatureSize
	}

	total := 1 + headerSize + payloadSize + 2 + sigSize
	if err := r.ensureLen(total); err != nil {
		return err
	}

	payload := r.ibuf[1+headerSize : 1+headerSize+payloadSize]
	crcBytes := r.ibuf[1+headerSize+payloadSize : 1+headerSize+payloadSize+2]
	trailerCRC := uint16(crcBytes[0]) | uint16(crcBytes[1])<<8

	msg, ok := r.registry.MessageByID(msgid)
	if !ok {
		if r.onUnknownFrame != nil {
			raw := append([]byte(nil), r.ibuf[1:1+headerSize+payloadSize]...)
			r.onUnknownFrame(msgid, raw)
		}
		r.ibuf = r.ibuf[1:]
		return nil
	}

	computed := wire.FrameCRC(headerBytes, payload, msg.CRCExtra)
	if computed != trailerCRC {
		r.reportFrameError(&FrameError{Reason: "crc mismatch"})
		r.ibuf = r.ibuf[1:]
		return nil
	}

	content, err := wire.DecodePayload(msg, payload)
	if err != nil {
		r.reportFrameError(err)
		r.ibuf = r.ibuf[total:]
		return nil
	}

	r.ibuf = r.ibuf[total:]
	r.onPacket(Packet{Message: msg, Content: content})
	return nil
}

func (r *Reader) reportFrameError(err error) {
	if r.onFrameError != nil {
		r.onFrameError(err)
	}
}

// ensureLen tops up r.ibuf from the transport until it holds at least n
// bytes.
func (r *Reader) ensureLen(n int) error {
	for len(r.ibuf) < n {
		chunk, err := r.stream.Read(n - len(r.ibuf))
		if err != nil {
			return err
		}
		r.ibuf = append(r.ibuf, chunk...)
	}
	return nil
}
