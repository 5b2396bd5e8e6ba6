package protocol

// ===== CONNECTION SETUP =====

// Version announces the sender's software version
type Version struct {
	VersionV1 *uint32 // Legacy packed major.minor.patch
	VersionV2 *uint64 // Packed major.minor.patch with 16 bits each
	Release   *string
	OS        *string
	OSVersion *string
}

func (m *Version) Type() MessageType { return MessageTypeVersion }

func (m *Version) marshal(e *encoder) {
	e.uint32(1, m.VersionV1)
	e.string(2, m.Release)
	e.string(3, m.OS)
	e.string(4, m.OSVersion)
	e.uint64(5, m.VersionV2)
}

func (m *Version) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.VersionV1)
		case 2:
			return f.string(&m.Release)
		case 3:
			return f.string(&m.OS)
		case 4:
			return f.string(&m.OSVersion)
		case 5:
			return f.uint64(&m.VersionV2)
		}
		return 0, nil
	})
}

func (m *Version) validate() error { return nil }

// ProtocolVersion returns the advertised version, preferring the 64-bit form
func (m *Version) ProtocolVersion() ProtocolVersion {
	if m.VersionV2 != nil {
		return ProtocolVersion(*m.VersionV2)
	}
	if m.VersionV1 != nil {
		return FromV1(*m.VersionV1)
	}
	return 0
}

// UDPTunnel carries a UDP plaintext datagram over the control channel
type UDPTunnel struct {
	Packet []byte // Required
}

func (m *UDPTunnel) Type() MessageType { return MessageTypeUDPTunnel }

func (m *UDPTunnel) marshal(e *encoder) {
	e.bytes(1, m.Packet)
}

func (m *UDPTunnel) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		if f.num == 1 {
			return f.bytes(&m.Packet)
		}
		return 0, nil
	})
}

func (m *UDPTunnel) validate() error {
	if m.Packet == nil {
		return missing("packet")
	}
	return nil
}

// Authenticate carries the client's credentials and codec capabilities
type Authenticate struct {
	Username    *string
	Password    *string
	Tokens      []string
	CeltVersion []int32
	Opus        *bool
	ClientType  *int32 // 0 regular client, 1 bot
}

func (m *Authenticate) Type() MessageType { return MessageTypeAuthenticate }

func (m *Authenticate) marshal(e *encoder) {
	e.string(1, m.Username)
	e.string(2, m.Password)
	e.strings(3, m.Tokens)
	e.int32s(4, m.CeltVersion)
	e.bool(5, m.Opus)
	e.int32(6, m.ClientType)
}

func (m *Authenticate) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.string(&m.Username)
		case 2:
			return f.string(&m.Password)
		case 3:
			return f.strings(&m.Tokens)
		case 4:
			return f.int32s(&m.CeltVersion)
		case 5:
			return f.bool(&m.Opus)
		case 6:
			return f.int32(&m.ClientType)
		}
		return 0, nil
	})
}

func (m *Authenticate) validate() error { return nil }

// Ping is the control channel keepalive. Clients report their view of the
// UDP crypto statistics; the server answers with its own.
type Ping struct {
	Timestamp  *uint64
	Good       *uint32
	Late       *uint32
	Lost       *uint32
	Resync     *uint32
	UDPPackets *uint32
	TCPPackets *uint32
	UDPPingAvg *float32
	UDPPingVar *float32
	TCPPingAvg *float32
	TCPPingVar *float32
}

func (m *Ping) Type() MessageType { return MessageTypePing }

func (m *Ping) marshal(e *encoder) {
	e.uint64(1, m.Timestamp)
	e.uint32(2, m.Good)
	e.uint32(3, m.Late)
	e.uint32(4, m.Lost)
	e.uint32(5, m.Resync)
	e.uint32(6, m.UDPPackets)
	e.uint32(7, m.TCPPackets)
	e.float(8, m.UDPPingAvg)
	e.float(9, m.UDPPingVar)
	e.float(10, m.TCPPingAvg)
	e.float(11, m.TCPPingVar)
}

func (m *Ping) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint64(&m.Timestamp)
		case 2:
			return f.uint32(&m.Good)
		case 3:
			return f.uint32(&m.Late)
		case 4:
			return f.uint32(&m.Lost)
		case 5:
			return f.uint32(&m.Resync)
		case 6:
			return f.uint32(&m.UDPPackets)
		case 7:
			return f.uint32(&m.TCPPackets)
		case 8:
			return f.float(&m.UDPPingAvg)
		case 9:
			return f.float(&m.UDPPingVar)
		case 10:
			return f.float(&m.TCPPingAvg)
		case 11:
			return f.float(&m.TCPPingVar)
		}
		return 0, nil
	})
}

func (m *Ping) validate() error { return nil }

// Reject ends a connection attempt with a reason
type Reject struct {
	RejectType *RejectType
	Reason     *string
}

func (m *Reject) Type() MessageType { return MessageTypeReject }

func (m *Reject) marshal(e *encoder) {
	if m.RejectType != nil {
		e.varint(1, uint64(*m.RejectType))
	}
	e.string(2, m.Reason)
}

func (m *Reject) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			var v *uint32
			n, err := f.uint32(&v)
			if err == nil {
				r := RejectType(*v)
				m.RejectType = &r
			}
			return n, err
		case 2:
			return f.string(&m.Reason)
		}
		return 0, nil
	})
}

func (m *Reject) validate() error { return nil }

// NewReject builds a Reject with both fields set
func NewReject(reason RejectType, text string) *Reject {
	return &Reject{RejectType: &reason, Reason: &text}
}

// ServerSync completes the handshake
type ServerSync struct {
	Session      *uint32
	MaxBandwidth *uint32
	WelcomeText  *string
	Permissions  *uint64
}

func (m *ServerSync) Type() MessageType { return MessageTypeServerSync }

func (m *ServerSync) marshal(e *encoder) {
	e.uint32(1, m.Session)
	e.uint32(2, m.MaxBandwidth)
	e.string(3, m.WelcomeText)
	e.uint64(4, m.Permissions)
}

func (m *ServerSync) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.Session)
		case 2:
			return f.uint32(&m.MaxBandwidth)
		case 3:
			return f.string(&m.WelcomeText)
		case 4:
			return f.uint64(&m.Permissions)
		}
		return 0, nil
	})
}

func (m *ServerSync) validate() error { return nil }

// CryptSetup distributes or resynchronizes the UDP crypto context.
// ClientNonce is the client's encrypt IV, ServerNonce the server's.
type CryptSetup struct {
	Key         []byte
	ClientNonce []byte
	ServerNonce []byte
}

func (m *CryptSetup) Type() MessageType { return MessageTypeCryptSetup }

func (m *CryptSetup) marshal(e *encoder) {
	e.bytes(1, m.Key)
	e.bytes(2, m.ClientNonce)
	e.bytes(3, m.ServerNonce)
}

func (m *CryptSetup) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.bytes(&m.Key)
		case 2:
			return f.bytes(&m.ClientNonce)
		case 3:
			return f.bytes(&m.ServerNonce)
		}
		return 0, nil
	})
}

func (m *CryptSetup) validate() error { return nil }

// CodecVersion tells clients which audio codec to encode with
type CodecVersion struct {
	Alpha       *int32 // Required
	Beta        *int32 // Required
	PreferAlpha *bool  // Required
	Opus        *bool
}

func (m *CodecVersion) Type() MessageType { return MessageTypeCodecVersion }

func (m *CodecVersion) marshal(e *encoder) {
	e.int32(1, m.Alpha)
	e.int32(2, m.Beta)
	e.bool(3, m.PreferAlpha)
	e.bool(4, m.Opus)
}

func (m *CodecVersion) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.int32(&m.Alpha)
		case 2:
			return f.int32(&m.Beta)
		case 3:
			return f.bool(&m.PreferAlpha)
		case 4:
			return f.bool(&m.Opus)
		}
		return 0, nil
	})
}

func (m *CodecVersion) validate() error {
	switch {
	case m.Alpha == nil:
		return missing("alpha")
	case m.Beta == nil:
		return missing("beta")
	case m.PreferAlpha == nil:
		return missing("prefer_alpha")
	}
	return nil
}

// ServerConfig carries server-wide limits
type ServerConfig struct {
	MaxBandwidth       *uint32
	WelcomeText        *string
	AllowHTML          *bool
	MessageLength      *uint32
	ImageMessageLength *uint32
	MaxUsers           *uint32
	RecordingAllowed   *bool
}

func (m *ServerConfig) Type() MessageType { return MessageTypeServerConfig }

func (m *ServerConfig) marshal(e *encoder) {
	e.uint32(1, m.MaxBandwidth)
	e.string(2, m.WelcomeText)
	e.bool(3, m.AllowHTML)
	e.uint32(4, m.MessageLength)
	e.uint32(5, m.ImageMessageLength)
	e.uint32(6, m.MaxUsers)
	e.bool(7, m.RecordingAllowed)
}

func (m *ServerConfig) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.MaxBandwidth)
		case 2:
			return f.string(&m.WelcomeText)
		case 3:
			return f.bool(&m.AllowHTML)
		case 4:
			return f.uint32(&m.MessageLength)
		case 5:
			return f.uint32(&m.ImageMessageLength)
		case 6:
			return f.uint32(&m.MaxUsers)
		case 7:
			return f.bool(&m.RecordingAllowed)
		}
		return 0, nil
	})
}

func (m *ServerConfig) validate() error { return nil }

// SuggestConfig suggests client settings
type SuggestConfig struct {
	VersionV1  *uint32
	VersionV2  *uint64
	Positional *bool
	PushToTalk *bool
}

func (m *SuggestConfig) Type() MessageType { return MessageTypeSuggestConfig }

func (m *SuggestConfig) marshal(e *encoder) {
	e.uint32(1, m.VersionV1)
	e.bool(2, m.Positional)
	e.bool(3, m.PushToTalk)
	e.uint64(4, m.VersionV2)
}

func (m *SuggestConfig) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.VersionV1)
		case 2:
			return f.bool(&m.Positional)
		case 3:
			return f.bool(&m.PushToTalk)
		case 4:
			return f.uint64(&m.VersionV2)
		}
		return 0, nil
	})
}

func (m *SuggestConfig) validate() error { return nil }
