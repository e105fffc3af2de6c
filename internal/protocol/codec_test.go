package protocol

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/multiformats/go-varint"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(DefaultMaxFrameSize)

	payloads := []string{
		"a",
		"report.txt",
		"héllo wörld ✓",
		strings.Repeat("x", 300), // two-byte length prefix
		strings.Repeat("z", DefaultMaxFrameSize),
	}

	for _, payload := range payloads {
		var buf bytes.Buffer
		if err := codec.WriteFrame(&buf, payload); err != nil {
			t.Fatalf("WriteFrame(%d bytes) failed: %v", len(payload), err)
		}
		got, err := codec.ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame(%d bytes) failed: %v", len(payload), err)
		}
		if got != payload {
			t.Fatalf("round trip mismatch for %d byte payload", len(payload))
		}
	}
}

func TestCodecRejectsOversizedWrite(t *testing.T) {
	codec := NewCodec(16)

	var buf bytes.Buffer
	err := codec.WriteFrame(&buf, strings.Repeat("x", 17))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written, got %d bytes", buf.Len())
	}
}

func TestCodecRejectsOversizedRead(t *testing.T) {
	// The length prefix alone must be enough to reject the frame
	prefix := varint.ToUvarint(DefaultMaxFrameSize + 1)

	_, err := NewCodec(DefaultMaxFrameSize).ReadFrame(bytes.NewReader(prefix))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestCodecReadFailures(t *testing.T) {
	codec := NewCodec(DefaultMaxFrameSize)

	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"empty stream", nil, ErrUnexpectedEOF},
		{"zero length", []byte{0x00}, ErrUnexpectedEOF},
		{"truncated prefix", []byte{0x80}, ErrUnexpectedEOF},
		{"truncated payload", append(varint.ToUvarint(10), "short"...), ErrUnexpectedEOF},
		{"invalid utf-8", append(varint.ToUvarint(2), 0xc3, 0x28), ErrInvalidUTF8},
		{"non-minimal prefix", []byte{0x81, 0x00, 'a'}, ErrMalformedFrame},
		{"overflowing prefix", bytes.Repeat([]byte{0xff}, 11), ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.ReadFrame(bytes.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !IsCodecError(err) {
				t.Fatalf("expected a codec error, got %v", err)
			}
		})
	}
}

func TestNewCodecDefaultsBound(t *testing.T) {
	if got := NewCodec(0).MaxSize; got != DefaultMaxFrameSize {
		t.Fatalf("expected default bound %d, got %d", DefaultMaxFrameSize, got)
	}
}

func TestMalformedPrefixIsProtocolFailure(t *testing.T) {
	_, err := NewCodec(DefaultMaxFrameSize).ReadFrame(bytes.NewReader([]byte{0x81, 0x00, 'a'}))
	if got := classify(context.Background(), err, false); got != FailureProtocol {
		t.Fatalf("expected %v, got %v", FailureProtocol, got)
	}
}
