package network

import (
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/session"
)

// Router forwards audio frames between sessions. It implements
// session.AudioHandler.
type Router struct {
	registry *session.Registry
	log      *zap.Logger
}

var _ session.AudioHandler = (*Router)(nil)

// NewRouter creates a router over the sessions of registry
func NewRouter(registry *session.Registry, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{registry: registry, log: log.Named("router")}
}

// HandleAudio fans a frame out to its recipients
func (r *Router) HandleAudio(s *session.Session, audio *protocol.Audio) {
	if audio.Selector.IsContext() {
		return
	}
	u := s.User()
	if u.Mute || u.Suppress || u.SelfMute {
		return
	}

	target := audio.Selector.Value()
	switch {
	case target == protocol.TargetServerLoopback:
		r.deliver(audio, protocol.AudioContextNormal, []*session.Session{s})
	case target == protocol.TargetNormal:
		r.deliver(audio, protocol.AudioContextNormal, r.channelListeners(s, u.ChannelID))
	case target >= protocol.TargetWhisperFirst && target <= protocol.TargetWhisperLast:
		r.whisper(s, audio, target)
	}
}

// channelListeners returns everyone in channel except the sender
func (r *Router) channelListeners(sender *session.Session, channel uint32) []*session.Session {
	var out []*session.Session
	for _, other := range r.registry.Synced() {
		if other != sender && other.User().ChannelID == channel {
			out = append(out, other)
		}
	}
	return out
}

func (r *Router) whisper(s *session.Session, audio *protocol.Audio, id uint32) {
	vt, ok := s.VoiceTarget(id)
	if !ok || vt.Empty() {
		return
	}

	seen := map[uint32]bool{s.ID(): true}
	var direct, shout []*session.Session
	for _, sid := range vt.Sessions {
		if seen[sid] {
			continue
		}
		if other, ok := r.registry.Get(sid); ok && other.State() == session.Synced {
			seen[sid] = true
			direct = append(direct, other)
		}
	}
	for _, ct := range vt.Channels {
		for _, other := range r.channelListeners(s, ct.ChannelID) {
			if !seen[other.ID()] {
				seen[other.ID()] = true
				shout = append(shout, other)
			}
		}
	}

	r.deliver(audio, protocol.AudioContextWhisper, direct)
	r.deliver(audio, protocol.AudioContextShout, shout)
}

// deliver encodes the frame once for context and sends it to every
// listener that is not deafened
func (r *Router) deliver(audio *protocol.Audio, context uint32, to []*session.Session) {
	if len(to) == 0 {
		return
	}
	out := *audio
	out.Selector = protocol.Context(context)
	plain := protocol.EncodeUDP(&out)

	for _, listener := range to {
		u := listener.User()
		if u.Deaf || u.SelfDeaf {
			continue
		}
		if err := listener.SendVoice(plain); err != nil {
			r.log.Debug("Failed to forward audio",
				zap.Uint32("from", audio.SenderSession),
				zap.Uint32("to", listener.ID()),
				zap.Error(err))
		}
	}
}
