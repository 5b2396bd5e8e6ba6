package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Header represents the control frame header
type Header struct {
	Type   MessageType // Message type
	Length uint32      // Payload length
}

// Encode encodes the header to bytes
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)

	binary.BigEndian.PutUint16(buf[0:2], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[2:6], h.Length)

	return buf
}

// Decode decodes the header from bytes
func (h *Header) Decode(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrInvalidHeader
	}

	h.Type = MessageType(binary.BigEndian.Uint16(buf[0:2]))
	h.Length = binary.BigEndian.Uint32(buf[2:6])

	return nil
}

// ReadHeader reads a header from an io.Reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)

	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	header := &Header{}
	if err := header.Decode(buf); err != nil {
		return nil, err
	}

	return header, nil
}

// ReadMessage reads one frame from r and decodes it. Payloads larger than
// maxSize are rejected before any payload byte is read. The payload of an
// unknown type is consumed and reported as a FramingError of kind UnknownType.
func ReadMessage(r io.Reader, maxSize uint32) (Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && h.Length > maxSize {
		return nil, &FramingError{Kind: Oversized, Type: h.Type, Length: h.Length}
	}

	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &FramingError{Kind: Truncated, Type: h.Type, Length: h.Length, Err: io.ErrUnexpectedEOF}
		}
		return nil, err
	}

	return Unmarshal(h.Type, payload)
}

// WriteMessage encodes msg and writes it as a single frame
func WriteMessage(w io.Writer, msg Message) error {
	frame, err := EncodeFrame(msg)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type(), err)
	}
	return nil
}
