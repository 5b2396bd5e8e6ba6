package protocol

import "fmt"

// Protocol constants
const (
	// Header size: 2 byte type + 4 byte payload length
	HeaderSize = 6

	// DefaultMaxMessageSize bounds the payload length accepted from a peer
	DefaultMaxMessageSize = 8 * 1024 * 1024

	// DefaultPort is the TCP and UDP port a server listens on unless configured otherwise
	DefaultPort = 64738
)

// MessageType identifies a control channel message
type MessageType uint16

// Message types
const (
	// Connection setup
	MessageTypeVersion      MessageType = 0
	MessageTypeUDPTunnel    MessageType = 1
	MessageTypeAuthenticate MessageType = 2
	MessageTypePing         MessageType = 3
	MessageTypeReject       MessageType = 4
	MessageTypeServerSync   MessageType = 5

	// Server state
	MessageTypeChannelRemove    MessageType = 6
	MessageTypeChannelState     MessageType = 7
	MessageTypeUserRemove       MessageType = 8
	MessageTypeUserState        MessageType = 9
	MessageTypeBanList          MessageType = 10
	MessageTypeTextMessage      MessageType = 11
	MessageTypePermissionDenied MessageType = 12
	MessageTypeACL              MessageType = 13
	MessageTypeQueryUsers       MessageType = 14

	// Crypto and session control
	MessageTypeCryptSetup             MessageType = 15
	MessageTypeContextActionModify    MessageType = 16
	MessageTypeContextAction          MessageType = 17
	MessageTypeUserList               MessageType = 18
	MessageTypeVoiceTarget            MessageType = 19
	MessageTypePermissionQuery        MessageType = 20
	MessageTypeCodecVersion           MessageType = 21
	MessageTypeUserStats              MessageType = 22
	MessageTypeRequestBlob            MessageType = 23
	MessageTypeServerConfig           MessageType = 24
	MessageTypeSuggestConfig          MessageType = 25
	MessageTypePluginDataTransmission MessageType = 26

	messageTypeCount = 27
)

var messageTypeNames = [messageTypeCount]string{
	"Version",
	"UDPTunnel",
	"Authenticate",
	"Ping",
	"Reject",
	"ServerSync",
	"ChannelRemove",
	"ChannelState",
	"UserRemove",
	"UserState",
	"BanList",
	"TextMessage",
	"PermissionDenied",
	"ACL",
	"QueryUsers",
	"CryptSetup",
	"ContextActionModify",
	"ContextAction",
	"UserList",
	"VoiceTarget",
	"PermissionQuery",
	"CodecVersion",
	"UserStats",
	"RequestBlob",
	"ServerConfig",
	"SuggestConfig",
	"PluginDataTransmission",
}

// Known reports whether t is a message type this package can decode
func (t MessageType) Known() bool {
	return t < messageTypeCount
}

func (t MessageType) String() string {
	if t.Known() {
		return messageTypeNames[t]
	}
	return fmt.Sprintf("MessageType(%d)", uint16(t))
}

// MessageTypes returns every known message type in tag order
func MessageTypes() []MessageType {
	types := make([]MessageType, messageTypeCount)
	for i := range types {
		types[i] = MessageType(i)
	}
	return types
}

// RejectType is the reason carried by a Reject message
type RejectType uint32

// Reject reasons
const (
	RejectNone              RejectType = 0
	RejectWrongVersion      RejectType = 1
	RejectInvalidUsername   RejectType = 2
	RejectWrongUserPW       RejectType = 3
	RejectWrongServerPW     RejectType = 4
	RejectUsernameInUse     RejectType = 5
	RejectServerFull        RejectType = 6
	RejectNoCertificate     RejectType = 7
	RejectAuthenticatorFail RejectType = 8
	RejectNoNewConnections  RejectType = 9
)

var rejectTypeNames = map[RejectType]string{
	RejectNone:              "None",
	RejectWrongVersion:      "WrongVersion",
	RejectInvalidUsername:   "InvalidUsername",
	RejectWrongUserPW:       "WrongUserPW",
	RejectWrongServerPW:     "WrongServerPW",
	RejectUsernameInUse:     "UsernameInUse",
	RejectServerFull:        "ServerFull",
	RejectNoCertificate:     "NoCertificate",
	RejectAuthenticatorFail: "AuthenticatorFail",
	RejectNoNewConnections:  "NoNewConnections",
}

func (r RejectType) String() string {
	if name, ok := rejectTypeNames[r]; ok {
		return name
	}
	return fmt.Sprintf("RejectType(%d)", uint32(r))
}

// DenyType is the category of a PermissionDenied message
type DenyType uint32

// Permission denied categories
const (
	DenyText                 DenyType = 0
	DenyPermission           DenyType = 1
	DenySuperUser            DenyType = 2
	DenyChannelName          DenyType = 3
	DenyTextTooLong          DenyType = 4
	DenyH9K                  DenyType = 5
	DenyTemporaryChannel     DenyType = 6
	DenyMissingCertificate   DenyType = 7
	DenyUserName             DenyType = 8
	DenyChannelFull          DenyType = 9
	DenyNestingLimit         DenyType = 10
	DenyChannelCountLimit    DenyType = 11
	DenyChannelListenerLimit DenyType = 12
	DenyUserListenerLimit    DenyType = 13
)

// ContextActionOperation selects whether a ContextActionModify adds or removes an action
type ContextActionOperation uint32

const (
	ContextActionAdd    ContextActionOperation = 0
	ContextActionRemove ContextActionOperation = 1
)

// Context action contexts (bit flags)
const (
	ContextServer  uint32 = 0x01
	ContextChannel uint32 = 0x02
	ContextUser    uint32 = 0x04
)

// Permission is a channel permission bit set
type Permission uint32

// Permission bits
const (
	PermissionNone             Permission = 0x0
	PermissionWrite            Permission = 0x1
	PermissionTraverse         Permission = 0x2
	PermissionEnter            Permission = 0x4
	PermissionSpeak            Permission = 0x8
	PermissionMuteDeafen       Permission = 0x10
	PermissionMove             Permission = 0x20
	PermissionMakeChannel      Permission = 0x40
	PermissionLinkChannel      Permission = 0x80
	PermissionWhisper          Permission = 0x100
	PermissionTextMessage      Permission = 0x200
	PermissionMakeTempChannel  Permission = 0x400
	PermissionListen           Permission = 0x800
	PermissionKick             Permission = 0x10000
	PermissionBan              Permission = 0x20000
	PermissionRegister         Permission = 0x40000
	PermissionSelfRegister     Permission = 0x80000
	PermissionResetUserContent Permission = 0x100000
	PermissionCached           Permission = 0x8000000
	PermissionAll              Permission = 0xf07ff

	// Granted to every user on the root channel
	PermissionDefault = PermissionTraverse | PermissionEnter | PermissionSpeak |
		PermissionWhisper | PermissionTextMessage | PermissionListen
)

// Has reports whether every bit of q is set in p
func (p Permission) Has(q Permission) bool {
	return p&q == q
}
