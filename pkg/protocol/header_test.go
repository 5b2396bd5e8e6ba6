package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestHeaderEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		header *Header
	}{
		{
			name:   "version header",
			header: &Header{Type: MessageTypeVersion, Length: 24},
		},
		{
			name:   "zero length ping",
			header: &Header{Type: MessageTypePing, Length: 0},
		},
		{
			name:   "large tunnel",
			header: &Header{Type: MessageTypeUDPTunnel, Length: 0x01020304},
		},
		{
			name:   "highest known type",
			header: &Header{Type: MessageTypePluginDataTransmission, Length: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.header.Encode()

			if len(encoded) != HeaderSize {
				t.Errorf("Encode() length = %d, want %d", len(encoded), HeaderSize)
			}

			decoded := &Header{}
			if err := decoded.Decode(encoded); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			if decoded.Type != tt.header.Type {
				t.Errorf("Type = %d, want %d", decoded.Type, tt.header.Type)
			}
			if decoded.Length != tt.header.Length {
				t.Errorf("Length = %d, want %d", decoded.Length, tt.header.Length)
			}
		})
	}
}

func TestHeaderByteOrder(t *testing.T) {
	h := &Header{Type: MessageTypeCryptSetup, Length: 0x0a0b0c0d}
	want := []byte{0x00, 0x0f, 0x0a, 0x0b, 0x0c, 0x0d}

	if got := h.Encode(); !bytes.Equal(got, want) {
		t.Errorf("Encode() = %x, want %x", got, want)
	}
}

func TestHeaderDecodeTooShort(t *testing.T) {
	shortBuf := make([]byte, HeaderSize-1)

	header := &Header{}
	err := header.Decode(shortBuf)
	if err != ErrInvalidHeader {
		t.Errorf("Decode() error = %v, want %v", err, ErrInvalidHeader)
	}
}

func TestWriteMessageHeader(t *testing.T) {
	msg := &UserState{Name: String("alice")}
	payload, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	buf := &bytes.Buffer{}
	if err := WriteMessage(buf, msg); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	if buf.Len() != HeaderSize+len(payload) {
		t.Errorf("WriteMessage() wrote %d bytes, want %d", buf.Len(), HeaderSize+len(payload))
	}

	readHeader, err := ReadHeader(buf)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}

	want := Header{Type: MessageTypeUserState, Length: uint32(len(payload))}
	if *readHeader != want {
		t.Errorf("ReadHeader() = %+v, want %+v", readHeader, want)
	}
	if !bytes.Equal(buf.Bytes(), payload) {
		t.Errorf("payload after header = %x, want %x", buf.Bytes(), payload)
	}
}

func TestReadMessage(t *testing.T) {
	ping := &Ping{Timestamp: Uint64(99)}
	frame, err := EncodeFrame(ping)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}

	unknown := (&Header{Type: 200, Length: 3}).Encode()
	unknown = append(unknown, 1, 2, 3)

	tests := []struct {
		name    string
		data    []byte
		maxSize uint32
		check   func(t *testing.T, msg Message, err error, rest int)
	}{
		{
			name:    "complete ping",
			data:    frame,
			maxSize: DefaultMaxMessageSize,
			check: func(t *testing.T, msg Message, err error, rest int) {
				if err != nil {
					t.Fatalf("ReadMessage() error = %v", err)
				}
				got, ok := msg.(*Ping)
				if !ok || GetUint64(got.Timestamp) != 99 {
					t.Errorf("ReadMessage() = %#v, want ping 99", msg)
				}
			},
		},
		{
			name:    "unknown type consumes payload",
			data:    append(append([]byte{}, unknown...), frame...),
			maxSize: DefaultMaxMessageSize,
			check: func(t *testing.T, msg Message, err error, rest int) {
				if !IsUnknownType(err) {
					t.Fatalf("ReadMessage() error = %v, want unknown type", err)
				}
				if rest != len(frame) {
					t.Errorf("remaining = %d, want %d", rest, len(frame))
				}
			},
		},
		{
			name:    "oversized rejected before payload",
			data:    (&Header{Type: MessageTypeUDPTunnel, Length: 1 << 20}).Encode(),
			maxSize: 1024,
			check: func(t *testing.T, msg Message, err error, rest int) {
				if !errors.Is(err, ErrOversized) {
					t.Errorf("ReadMessage() error = %v, want %v", err, ErrOversized)
				}
			},
		},
		{
			name:    "truncated payload",
			data:    frame[:len(frame)-1],
			maxSize: DefaultMaxMessageSize,
			check: func(t *testing.T, msg Message, err error, rest int) {
				var fe *FramingError
				if !errors.As(err, &fe) || fe.Kind != Truncated {
					t.Errorf("ReadMessage() error = %v, want truncated", err)
				}
				if !errors.Is(err, io.ErrUnexpectedEOF) {
					t.Errorf("ReadMessage() error = %v, want unexpected EOF", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.data)
			msg, err := ReadMessage(r, tt.maxSize)
			tt.check(t, msg, err, r.Len())
		})
	}
}

func TestDecodeFrame(t *testing.T) {
	frame, err := EncodeFrame(&TextMessage{Message: String("hello")})
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}

	// Every strict prefix needs more data
	for i := 0; i < len(frame); i++ {
		if _, n, err := DecodeFrame(frame[:i], DefaultMaxMessageSize); err != ErrNeedMoreData || n != 0 {
			t.Fatalf("DecodeFrame(prefix %d) = (%d, %v), want need more data", i, n, err)
		}
	}

	// Trailing bytes are left for the next frame
	withTrailer := append(append([]byte{}, frame...), 0xff, 0xff, 0xff)
	msg, n, err := DecodeFrame(withTrailer, DefaultMaxMessageSize)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if n != len(frame) {
		t.Errorf("DecodeFrame() consumed %d, want %d", n, len(frame))
	}
	if tm, ok := msg.(*TextMessage); !ok || GetString(tm.Message) != "hello" {
		t.Errorf("DecodeFrame() = %#v", msg)
	}
}

func TestDecodeFrameMissingRequired(t *testing.T) {
	// TextMessage without its required message field
	frame := (&Header{Type: MessageTypeTextMessage, Length: 0}).Encode()

	_, _, err := DecodeFrame(frame, DefaultMaxMessageSize)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("DecodeFrame() error = %v, want %v", err, ErrMalformed)
	}
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("DecodeFrame() error = %v, want %v", err, ErrMissingField)
	}
}
