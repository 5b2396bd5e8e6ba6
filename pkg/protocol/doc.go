// Package protocol implements the wire formats of the voice server.
//
// # Control Channel
//
// The control channel is a TLS stream of frames:
//   - Type (2 bytes, big-endian): message type
//   - Length (4 bytes, big-endian): payload length
//   - Payload (Length bytes): protobuf-encoded message body
//
// Every message type has a Go struct in this package. Optional fields are
// pointers so that an unset field is distinct from its zero value; repeated
// fields are slices. Payloads are encoded with protowire, field numbers follow
// Mumble.proto, and unknown fields are skipped on decode.
//
// Message types by tag:
//
// Connection setup (0-5):
//   - Version, UDPTunnel, Authenticate, Ping, Reject, ServerSync
//
// Server state (6-14):
//   - ChannelRemove, ChannelState, UserRemove, UserState, BanList,
//     TextMessage, PermissionDenied, ACL, QueryUsers
//
// Session control (15-26):
//   - CryptSetup, ContextActionModify, ContextAction, UserList, VoiceTarget,
//     PermissionQuery, CodecVersion, UserStats, RequestBlob, ServerConfig,
//     SuggestConfig, PluginDataTransmission
//
// A frame with an unknown type is reported as a FramingError of kind
// UnknownType after its payload has been consumed, so readers may skip it.
//
// # UDP Datagrams
//
// A UDP plaintext is one kind byte (0 audio, 1 ping) followed by a protobuf
// body. Encryption is applied by package crypto. The same plaintext is carried
// inside UDPTunnel when the client cannot use UDP.
//
// # Usage Example
//
//	frame, err := protocol.EncodeFrame(&protocol.Ping{Timestamp: protocol.Uint64(42)})
//	if err != nil {
//	    return err
//	}
//	conn.Write(frame)
//
//	msg, err := protocol.ReadMessage(conn, protocol.DefaultMaxMessageSize)
//	if err != nil {
//	    return err
//	}
//	if ping, ok := msg.(*protocol.Ping); ok {
//	    // ...
//	}
package protocol
