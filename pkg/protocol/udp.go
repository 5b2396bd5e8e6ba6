package protocol

import (
	"encoding/binary"
	"fmt"
)

// UDPMessageType is the one-byte kind prefix of a UDP plaintext
type UDPMessageType uint8

const (
	UDPMessageAudio UDPMessageType = 0
	UDPMessagePing  UDPMessageType = 1
)

// Audio targets sent by clients
const (
	TargetNormal         uint32 = 0
	TargetWhisperFirst   uint32 = 1
	TargetWhisperLast    uint32 = 30
	TargetServerLoopback uint32 = 31
)

// Audio contexts sent by servers
const (
	AudioContextNormal  uint32 = 0
	AudioContextShout   uint32 = 1
	AudioContextWhisper uint32 = 2
	AudioContextListen  uint32 = 3
)

// UDPMessage is a decoded UDP plaintext: *Audio or *UDPPing
type UDPMessage interface {
	UDPType() UDPMessageType
	marshal(e *encoder)
	unmarshal(b []byte) error
}

// AudioSelector is the either-or header of an audio datagram: a target chosen
// by the sending client or a context set by the server when forwarding
type AudioSelector struct {
	context bool
	value   uint32
}

// Target selects a client-side voice target
func Target(n uint32) AudioSelector { return AudioSelector{value: n} }

// Context selects a server-side audio context
func Context(n uint32) AudioSelector { return AudioSelector{context: true, value: n} }

func (s AudioSelector) IsContext() bool { return s.context }
func (s AudioSelector) Value() uint32   { return s.value }

func (s AudioSelector) String() string {
	if s.context {
		return fmt.Sprintf("context(%d)", s.value)
	}
	return fmt.Sprintf("target(%d)", s.value)
}

// Audio is one encoded audio frame
type Audio struct {
	Selector         AudioSelector
	SenderSession    uint32
	FrameNumber      uint64
	OpusData         []byte
	PositionalData   []float32
	VolumeAdjustment float32
	IsTerminator     bool
}

func (m *Audio) UDPType() UDPMessageType { return UDPMessageAudio }

func (m *Audio) marshal(e *encoder) {
	if m.Selector.context {
		e.varint(2, uint64(m.Selector.value))
	} else {
		e.varint(1, uint64(m.Selector.value))
	}
	if m.SenderSession != 0 {
		e.varint(3, uint64(m.SenderSession))
	}
	if m.FrameNumber != 0 {
		e.varint(4, m.FrameNumber)
	}
	if len(m.OpusData) > 0 {
		e.bytes(5, m.OpusData)
	}
	e.packedFloats(6, m.PositionalData)
	if m.VolumeAdjustment != 0 {
		e.float(7, &m.VolumeAdjustment)
	}
	if m.IsTerminator {
		e.bool(16, &m.IsTerminator)
	}
}

func (m *Audio) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1, 2:
			v, n, err := f.varint()
			if err != nil {
				return 0, err
			}
			m.Selector = AudioSelector{context: f.num == 2, value: uint32(v)}
			return n, nil
		case 3:
			v, n, err := f.varint()
			m.SenderSession = uint32(v)
			return n, err
		case 4:
			v, n, err := f.varint()
			m.FrameNumber = v
			return n, err
		case 5:
			return f.bytes(&m.OpusData)
		case 6:
			return f.floats(&m.PositionalData)
		case 7:
			var v *float32
			n, err := f.float(&v)
			if err == nil {
				m.VolumeAdjustment = *v
			}
			return n, err
		case 16:
			v, n, err := f.varint()
			m.IsTerminator = v != 0
			return n, err
		}
		return 0, nil
	})
}

// UDPPing measures UDP latency. Unencrypted pings with
// RequestExtendedInformation set are answered with server details.
type UDPPing struct {
	Timestamp                  uint64
	RequestExtendedInformation bool
	ServerVersionV2            uint64
	UserCount                  uint32
	MaxUserCount               uint32
	MaxBandwidthPerUser        uint32
}

func (m *UDPPing) UDPType() UDPMessageType { return UDPMessagePing }

func (m *UDPPing) marshal(e *encoder) {
	if m.Timestamp != 0 {
		e.varint(1, m.Timestamp)
	}
	if m.RequestExtendedInformation {
		e.varint(2, 1)
	}
	if m.ServerVersionV2 != 0 {
		e.varint(3, m.ServerVersionV2)
	}
	if m.UserCount != 0 {
		e.varint(4, uint64(m.UserCount))
	}
	if m.MaxUserCount != 0 {
		e.varint(5, uint64(m.MaxUserCount))
	}
	if m.MaxBandwidthPerUser != 0 {
		e.varint(6, uint64(m.MaxBandwidthPerUser))
	}
}

func (m *UDPPing) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		if f.num < 1 || f.num > 6 {
			return 0, nil
		}
		v, n, err := f.varint()
		if err != nil {
			return 0, err
		}
		switch f.num {
		case 1:
			m.Timestamp = v
		case 2:
			m.RequestExtendedInformation = v != 0
		case 3:
			m.ServerVersionV2 = v
		case 4:
			m.UserCount = uint32(v)
		case 5:
			m.MaxUserCount = uint32(v)
		case 6:
			m.MaxBandwidthPerUser = uint32(v)
		}
		return n, nil
	})
}

// EncodeUDP encodes a UDP plaintext: kind byte followed by the message body
func EncodeUDP(m UDPMessage) []byte {
	e := encoder{b: []byte{byte(m.UDPType())}}
	m.marshal(&e)
	return e.b
}

// DecodeUDP decodes a UDP plaintext produced by EncodeUDP
func DecodeUDP(b []byte) (UDPMessage, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("%w: empty datagram", ErrMalformed)
	}
	var m UDPMessage
	switch UDPMessageType(b[0]) {
	case UDPMessageAudio:
		m = &Audio{}
	case UDPMessagePing:
		m = &UDPPing{}
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidUDPType, b[0])
	}
	if err := m.unmarshal(b[1:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// Legacy server-list ping: 4 zero bytes followed by an 8-byte ident
const (
	LegacyPingSize      = 12
	LegacyPingReplySize = 24
)

// IsLegacyPing reports whether b is an unencrypted legacy server ping
func IsLegacyPing(b []byte) bool {
	return len(b) == LegacyPingSize && binary.BigEndian.Uint32(b[0:4]) == 0
}

// LegacyPingReply builds the 24-byte answer to a legacy server ping
func LegacyPingReply(ping []byte, version ProtocolVersion, users, maxUsers, maxBandwidth uint32) []byte {
	buf := make([]byte, LegacyPingReplySize)
	binary.BigEndian.PutUint32(buf[0:4], version.V1())
	copy(buf[4:12], ping[4:12])
	binary.BigEndian.PutUint32(buf[12:16], users)
	binary.BigEndian.PutUint32(buf[16:20], maxUsers)
	binary.BigEndian.PutUint32(buf[20:24], maxBandwidth)
	return buf
}
