package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/multiformats/go-varint"
)

// DefaultMaxFrameSize bounds a single request or response payload
const DefaultMaxFrameSize = 1_000_000

var (
	// ErrFrameTooLarge is returned when a payload exceeds the codec's bound
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	// ErrUnexpectedEOF is returned when a stream ends before a complete, non-empty frame
	ErrUnexpectedEOF = errors.New("unexpected end of stream")
	// ErrInvalidUTF8 is returned when a payload is not valid UTF-8 text
	ErrInvalidUTF8 = errors.New("payload is not valid utf-8")
	// ErrMalformedFrame is returned when the length prefix is not a valid varint
	ErrMalformedFrame = errors.New("malformed length prefix")
)

// Codec reads and writes length-prefixed UTF-8 frames.
// Each frame is an unsigned varint length followed by that many payload bytes.
type Codec struct {
	MaxSize int
}

// NewCodec creates a codec bounded to maxSize bytes per payload
func NewCodec(maxSize int) Codec {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return Codec{MaxSize: maxSize}
}

// WriteFrame writes payload as a single frame.
// Oversized payloads are rejected before anything is written.
func (c Codec) WriteFrame(w io.Writer, payload string) error {
	if len(payload) > c.MaxSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(payload), c.MaxSize)
	}

	size := uint64(len(payload))
	buf := make([]byte, varint.UvarintSize(size)+len(payload))
	n := varint.PutUvarint(buf, size)
	copy(buf[n:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame reads a single frame from r.
// A zero-length payload is reported as ErrUnexpectedEOF.
func (c Codec) ReadFrame(r io.Reader) (string, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	size, err := varint.ReadUvarint(br)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", fmt.Errorf("%w: reading length prefix", ErrUnexpectedEOF)
		}
		if errors.Is(err, varint.ErrNotMinimal) || errors.Is(err, varint.ErrOverflow) {
			return "", fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		return "", fmt.Errorf("failed to read length prefix: %w", err)
	}
	if size == 0 {
		return "", fmt.Errorf("%w: empty frame", ErrUnexpectedEOF)
	}
	if size > uint64(c.MaxSize) {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, size, c.MaxSize)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(br, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", fmt.Errorf("%w: got partial payload", ErrUnexpectedEOF)
		}
		return "", fmt.Errorf("failed to read payload: %w", err)
	}

	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}
	return string(data), nil
}

// IsCodecError reports whether err came from frame validation rather than the transport
func IsCodecError(err error) bool {
	return errors.Is(err, ErrFrameTooLarge) ||
		errors.Is(err, ErrUnexpectedEOF) ||
		errors.Is(err, ErrInvalidUTF8) ||
		errors.Is(err, ErrMalformedFrame)
}
