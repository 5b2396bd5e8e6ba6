package protocol

// PacketStats is one direction's UDP crypto counters
type PacketStats struct {
	Good   *uint32
	Late   *uint32
	Lost   *uint32
	Resync *uint32
}

func (s *PacketStats) marshal(e *encoder) {
	e.uint32(1, s.Good)
	e.uint32(2, s.Late)
	e.uint32(3, s.Lost)
	e.uint32(4, s.Resync)
}

func (s *PacketStats) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&s.Good)
		case 2:
			return f.uint32(&s.Late)
		case 3:
			return f.uint32(&s.Lost)
		case 4:
			return f.uint32(&s.Resync)
		}
		return 0, nil
	})
}

// RollingStats are the counters over a recent time window
type RollingStats struct {
	TimeWindow *uint32
	FromClient *PacketStats
	FromServer *PacketStats
}

// UserStats requests or reports connection statistics of a user
type UserStats struct {
	Session           *uint32
	StatsOnly         *bool
	Certificates      [][]byte
	FromClient        *PacketStats
	FromServer        *PacketStats
	UDPPackets        *uint32
	TCPPackets        *uint32
	UDPPingAvg        *float32
	UDPPingVar        *float32
	TCPPingAvg        *float32
	TCPPingVar        *float32
	Version           *Version
	CeltVersions      []int32
	Address           []byte
	Bandwidth         *uint32
	OnlineSecs        *uint32
	IdleSecs          *uint32
	StrongCertificate *bool
	Opus              *bool
	RollingStats      *RollingStats
}

func (m *UserStats) Type() MessageType { return MessageTypeUserStats }

func (m *UserStats) marshal(e *encoder) {
	e.uint32(1, m.Session)
	e.bool(2, m.StatsOnly)
	e.bytesList(3, m.Certificates)
	if m.FromClient != nil {
		e.message(4, m.FromClient.marshal)
	}
	if m.FromServer != nil {
		e.message(5, m.FromServer.marshal)
	}
	e.uint32(6, m.UDPPackets)
	e.uint32(7, m.TCPPackets)
	e.float(8, m.UDPPingAvg)
	e.float(9, m.UDPPingVar)
	e.float(10, m.TCPPingAvg)
	e.float(11, m.TCPPingVar)
	if m.Version != nil {
		e.message(12, m.Version.marshal)
	}
	e.int32s(13, m.CeltVersions)
	e.bytes(14, m.Address)
	e.uint32(15, m.Bandwidth)
	e.uint32(16, m.OnlineSecs)
	e.uint32(17, m.IdleSecs)
	e.bool(18, m.StrongCertificate)
	e.bool(19, m.Opus)
	if rs := m.RollingStats; rs != nil {
		e.message(20, func(e *encoder) {
			e.uint32(1, rs.TimeWindow)
			if rs.FromClient != nil {
				e.message(2, rs.FromClient.marshal)
			}
			if rs.FromServer != nil {
				e.message(3, rs.FromServer.marshal)
			}
		})
	}
}

func (m *UserStats) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.Session)
		case 2:
			return f.bool(&m.StatsOnly)
		case 3:
			return f.bytesList(&m.Certificates)
		case 4:
			m.FromClient = &PacketStats{}
			return f.message(m.FromClient.unmarshal)
		case 5:
			m.FromServer = &PacketStats{}
			return f.message(m.FromServer.unmarshal)
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
		case 12:
			m.Version = &Version{}
			return f.message(m.Version.unmarshal)
		case 13:
			return f.int32s(&m.CeltVersions)
		case 14:
			return f.bytes(&m.Address)
		case 15:
			return f.uint32(&m.Bandwidth)
		case 16:
			return f.uint32(&m.OnlineSecs)
		case 17:
			return f.uint32(&m.IdleSecs)
		case 18:
			return f.bool(&m.StrongCertificate)
		case 19:
			return f.bool(&m.Opus)
		case 20:
			rs := &RollingStats{}
			m.RollingStats = rs
			return f.message(func(b []byte) error {
				return parseFields(b, func(f *field) (int, error) {
					switch f.num {
					case 1:
						return f.uint32(&rs.TimeWindow)
					case 2:
						rs.FromClient = &PacketStats{}
						return f.message(rs.FromClient.unmarshal)
					case 3:
						rs.FromServer = &PacketStats{}
						return f.message(rs.FromServer.unmarshal)
					}
					return 0, nil
				})
			})
		}
		return 0, nil
	})
}

func (m *UserStats) validate() error { return nil }
