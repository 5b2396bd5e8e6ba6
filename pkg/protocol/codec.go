package protocol

import (
	"fmt"
)

// Message is a decoded control channel message. The set of implementations
// is closed: one pointer type per MessageType in this package.
type Message interface {
	Type() MessageType
	marshal(e *encoder)
	unmarshal(b []byte) error
	validate() error
}

// NewMessage returns an empty message for t
func NewMessage(t MessageType) (Message, error) {
	switch t {
	case MessageTypeVersion:
		return &Version{}, nil
	case MessageTypeUDPTunnel:
		return &UDPTunnel{}, nil
	case MessageTypeAuthenticate:
		return &Authenticate{}, nil
	case MessageTypePing:
		return &Ping{}, nil
	case MessageTypeReject:
		return &Reject{}, nil
	case MessageTypeServerSync:
		return &ServerSync{}, nil
	case MessageTypeChannelRemove:
		return &ChannelRemove{}, nil
	case MessageTypeChannelState:
		return &ChannelState{}, nil
	case MessageTypeUserRemove:
		return &UserRemove{}, nil
	case MessageTypeUserState:
		return &UserState{}, nil
	case MessageTypeBanList:
		return &BanList{}, nil
	case MessageTypeTextMessage:
		return &TextMessage{}, nil
	case MessageTypePermissionDenied:
		return &PermissionDenied{}, nil
	case MessageTypeACL:
		return &ACL{}, nil
	case MessageTypeQueryUsers:
		return &QueryUsers{}, nil
	case MessageTypeCryptSetup:
		return &CryptSetup{}, nil
	case MessageTypeContextActionModify:
		return &ContextActionModify{}, nil
	case MessageTypeContextAction:
		return &ContextAction{}, nil
	case MessageTypeUserList:
		return &UserList{}, nil
	case MessageTypeVoiceTarget:
		return &VoiceTarget{}, nil
	case MessageTypePermissionQuery:
		return &PermissionQuery{}, nil
	case MessageTypeCodecVersion:
		return &CodecVersion{}, nil
	case MessageTypeUserStats:
		return &UserStats{}, nil
	case MessageTypeRequestBlob:
		return &RequestBlob{}, nil
	case MessageTypeServerConfig:
		return &ServerConfig{}, nil
	case MessageTypeSuggestConfig:
		return &SuggestConfig{}, nil
	case MessageTypePluginDataTransmission:
		return &PluginDataTransmission{}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint16(t))
}

// Marshal encodes the payload of msg without the frame header
func Marshal(msg Message) ([]byte, error) {
	if err := msg.validate(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	var e encoder
	msg.marshal(&e)
	if e.b == nil {
		e.b = []byte{}
	}
	return e.b, nil
}

// Unmarshal decodes a payload of the given type
func Unmarshal(t MessageType, payload []byte) (Message, error) {
	msg, err := NewMessage(t)
	if err != nil {
		return nil, &FramingError{Kind: UnknownType, Type: t, Length: uint32(len(payload))}
	}
	if err := msg.unmarshal(payload); err != nil {
		return nil, malformed(t, len(payload), err)
	}
	if err := msg.validate(); err != nil {
		return nil, malformed(t, len(payload), err)
	}
	return msg, nil
}

// EncodeFrame encodes msg with its frame header
func EncodeFrame(msg Message) ([]byte, error) {
	payload, err := Marshal(msg)
	if err != nil {
		return nil, err
	}
	h := Header{Type: msg.Type(), Length: uint32(len(payload))}
	frame := make([]byte, 0, HeaderSize+len(payload))
	frame = append(frame, h.Encode()...)
	return append(frame, payload...), nil
}

// DecodeFrame decodes the first frame in buf. It returns the message and the
// number of bytes consumed; bytes past the declared length are untouched.
// An incomplete frame yields ErrNeedMoreData. An unknown type yields a
// FramingError of kind UnknownType together with the consumed count, so the
// caller can skip it.
func DecodeFrame(buf []byte, maxSize uint32) (Message, int, error) {
	var h Header
	if err := h.Decode(buf); err != nil {
		return nil, 0, ErrNeedMoreData
	}
	if maxSize > 0 && h.Length > maxSize {
		return nil, 0, &FramingError{Kind: Oversized, Type: h.Type, Length: h.Length}
	}
	end := HeaderSize + int(h.Length)
	if len(buf) < end {
		return nil, 0, ErrNeedMoreData
	}
	msg, err := Unmarshal(h.Type, buf[HeaderSize:end])
	if err != nil {
		if IsUnknownType(err) {
			return nil, end, err
		}
		return nil, 0, err
	}
	return msg, end, nil
}
