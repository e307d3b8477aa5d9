package encoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/lattice/types"
)

// Frame size limits.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the big-endian length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
	// FrameErrorEncode indicates a msgpack encoding error.
	FrameErrorEncode
)

// FrameError represents a frame encoding or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the stream cannot be read past this error.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if err is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameEncoder encodes elements as length-prefixed msgpack Records.
type FrameEncoder struct {
	records *RecordEncoder
}

// NewFrameEncoder creates a frame encoder.
func NewFrameEncoder(meta map[string]string) *FrameEncoder {
	m := map[string]string{}
	for k, v := range meta {
		m[k] = v
	}
	m["framing"] = "u32be+msgpack"
	return &FrameEncoder{records: NewRecordEncoder(m)}
}

// Encode implements Encoder.
func (e *FrameEncoder) Encode(el types.Emitable) ([]byte, error) {
	rec, err := e.records.Encode(el)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(&rec)
}

// EncodeMetadata implements Encoder.
func (e *FrameEncoder) EncodeMetadata(elementType types.ElementType, label string) ([]byte, bool, error) {
	rec, _, err := e.records.EncodeMetadata(elementType, label)
	if err != nil {
		return nil, false, err
	}
	frame, err := EncodeFrame(&rec)
	if err != nil {
		return nil, false, err
	}
	return frame, true, nil
}

// Metadata implements Encoder.
func (e *FrameEncoder) Metadata() map[string]string {
	m := e.records.Metadata()
	m["encoder"] = "frame"
	return m
}

// Close implements Encoder.
func (e *FrameEncoder) Close() error {
	return nil
}

// EncodeFrame marshals rec and prepends its length.
func EncodeFrame(rec *Record) ([]byte, error) {
	payload, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorEncode, Msg: "failed to encode record", Err: err}
	}
	if len(payload) > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf, nil
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame and returns its msgpack payload.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: err}
	}
	return payload, nil
}

// ReadRecord reads and decodes the next frame.
func (d *FrameDecoder) ReadRecord() (*Record, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeRecord(payload)
}

// DecodeRecord decodes a frame payload.
func DecodeRecord(payload []byte) (*Record, error) {
	var rec Record
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode record", Err: err}
	}
	return &rec, nil
}

var _ Encoder[[]byte] = (*FrameEncoder)(nil)
