package session

import "github.com/ZentaChain/zentalk-voice/pkg/protocol"

// Bounds on a single whisper target
const (
	MaxTargetSessions = 128
	MaxTargetChannels = 32
)

// ChannelTarget whispers to a channel, optionally with its links and
// subchannels, optionally restricted to a group
type ChannelTarget struct {
	ChannelID uint32
	Group     string
	Links     bool
	Children  bool
}

// VoiceTarget is a whisper/shout destination registered by a client
type VoiceTarget struct {
	Sessions []uint32
	Channels []ChannelTarget
}

// Empty reports whether the target names nobody
func (t VoiceTarget) Empty() bool {
	return len(t.Sessions) == 0 && len(t.Channels) == 0
}

func newVoiceTarget(entries []protocol.VoiceTargetEntry) VoiceTarget {
	var t VoiceTarget
	seen := make(map[uint32]bool)
	for _, e := range entries {
		for _, id := range e.Session {
			if seen[id] || len(t.Sessions) >= MaxTargetSessions {
				continue
			}
			seen[id] = true
			t.Sessions = append(t.Sessions, id)
		}
		if e.ChannelID != nil && len(t.Channels) < MaxTargetChannels {
			t.Channels = append(t.Channels, ChannelTarget{
				ChannelID: *e.ChannelID,
				Group:     protocol.GetString(e.Group),
				Links:     protocol.GetBool(e.Links),
				Children:  protocol.GetBool(e.Children),
			})
		}
	}
	return t
}
