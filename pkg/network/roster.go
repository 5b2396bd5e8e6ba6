package network

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-voice/pkg/protocol"
	"github.com/ZentaChain/zentalk-voice/pkg/session"
	"github.com/ZentaChain/zentalk-voice/pkg/storage"
)

// RootChannelID is the only channel the roster hosts
const RootChannelID uint32 = 0

const (
	maxPluginDataLength = 1000
	banTimeLayout       = "2006-01-02T15:04:05"
)

// RosterConfig is the server state announced to clients
type RosterConfig struct {
	RootName           string
	WelcomeText        string
	MaxBandwidth       uint32
	MaxUsers           uint32
	MessageLength      uint32
	ImageMessageLength uint32
	AllowHTML          bool
	RecordingAllowed   bool
	// Percent of users that must support Opus before it is enabled
	OpusThreshold int
}

// DefaultRosterConfig returns the stock server limits
func DefaultRosterConfig() RosterConfig {
	return RosterConfig{
		RootName:           "Root",
		WelcomeText:        "Welcome to zentalk-voice.",
		MaxBandwidth:       558000,
		MaxUsers:           100,
		MessageLength:      5000,
		ImageMessageLength: 131072,
		AllowHTML:          true,
		RecordingAllowed:   true,
		OpusThreshold:      100,
	}
}

// Roster is the in-memory server state: one root channel and the users in
// it. It implements session.Handler.
type Roster struct {
	cfg      RosterConfig
	registry *session.Registry
	store    *storage.DB
	log      *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	codec    codecState
	removals map[uint32]*protocol.UserRemove
}

var _ session.Handler = (*Roster)(nil)

// NewRoster creates a roster over the sessions of registry. store may be nil.
func NewRoster(cfg RosterConfig, registry *session.Registry, store *storage.DB, log *zap.Logger) *Roster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Roster{
		cfg:      cfg,
		registry: registry,
		store:    store,
		log:      log.Named("roster"),
		now:      time.Now,
		codec:    initialCodecState(),
		removals: make(map[uint32]*protocol.UserRemove),
	}
}

// Permissions returns the root channel permissions of s
func (r *Roster) Permissions(s *session.Session) protocol.Permission {
	if s.IsSuperUser() {
		return protocol.PermissionAll
	}
	return protocol.PermissionDefault
}

// Synchronize sends codec, channel and user state to a newly authenticated
// session and announces it to everyone else
func (r *Roster) Synchronize(s *session.Session) (*session.SyncInfo, error) {
	if r.store != nil && s.IsRegistered() {
		if u, err := r.store.UserByID(s.UserID()); err == nil {
			s.UpdateUser(func(info *session.UserInfo) { info.Comment = u.Comment })
		}
		if err := r.store.TouchUser(s.UserID(), RootChannelID, r.now()); err != nil {
			r.log.Warn("Failed to record last seen", zap.Int64("user_id", s.UserID()), zap.Error(err))
		}
	}

	others := r.registry.Synced()
	codec, changed := r.updateCodec(append(others, s))
	if changed {
		r.broadcast(codec.message(), nil)
	}
	msgs := []protocol.Message{codec.message(), r.rootChannelState()}
	for _, other := range others {
		if other != s {
			msgs = append(msgs, r.userState(other, true))
		}
	}
	state := r.userState(s, true)
	msgs = append(msgs, state)

	// Send only fails once the control channel is gone
	for _, m := range msgs {
		if err := s.Send(m); err != nil {
			return nil, fmt.Errorf("send %s: %w", m.Type(), err)
		}
	}
	r.broadcast(state, s)

	perms := uint64(r.Permissions(s))
	return &session.SyncInfo{
		MaxBandwidth: protocol.Uint32(r.cfg.MaxBandwidth),
		WelcomeText:  protocol.String(r.cfg.WelcomeText),
		Permissions:  &perms,
		Config: &protocol.ServerConfig{
			MaxBandwidth:       protocol.Uint32(r.cfg.MaxBandwidth),
			WelcomeText:        protocol.String(r.cfg.WelcomeText),
			AllowHTML:          protocol.Bool(r.cfg.AllowHTML),
			MessageLength:      protocol.Uint32(r.cfg.MessageLength),
			ImageMessageLength: protocol.Uint32(r.cfg.ImageMessageLength),
			MaxUsers:           protocol.Uint32(r.cfg.MaxUsers),
			RecordingAllowed:   protocol.Bool(r.cfg.RecordingAllowed),
		},
	}, nil
}

// SessionClosed announces the departure and renegotiates the codec
func (r *Roster) SessionClosed(s *session.Session) {
	r.mu.Lock()
	remove, ok := r.removals[s.ID()]
	delete(r.removals, s.ID())
	r.mu.Unlock()
	if !ok {
		remove = &protocol.UserRemove{Session: protocol.Uint32(s.ID())}
	}
	r.broadcast(remove, s)

	if r.store != nil && s.IsRegistered() {
		if err := r.store.TouchUser(s.UserID(), s.User().ChannelID, r.now()); err != nil {
			r.log.Debug("Failed to record last seen", zap.Error(err))
		}
	}

	if codec, changed := r.updateCodec(r.registry.Synced()); changed {
		r.broadcast(codec.message(), s)
	}
}

func (r *Roster) updateCodec(users []*session.Session) (codecState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clients := make([]session.ClientInfo, len(users))
	for i, s := range users {
		clients[i] = s.Client()
	}
	next := r.codec.negotiate(clients, r.cfg.OpusThreshold)
	changed := next != r.codec
	if changed {
		r.log.Info("Codec changed",
			zap.Int32("alpha", next.alpha),
			zap.Int32("beta", next.beta),
			zap.Bool("prefer_alpha", next.preferAlpha),
			zap.Bool("opus", next.opus))
	}
	r.codec = next
	return next, changed
}

func (r *Roster) rootChannelState() *protocol.ChannelState {
	return &protocol.ChannelState{
		ChannelID: protocol.Uint32(RootChannelID),
		Name:      protocol.String(r.cfg.RootName),
		Position:  protocol.Int32(0),
		MaxUsers:  protocol.Uint32(0),
	}
}

// userState describes s; full includes comment and texture
func (r *Roster) userState(s *session.Session, full bool) *protocol.UserState {
	u := s.User()
	m := &protocol.UserState{
		Session:         protocol.Uint32(s.ID()),
		Name:            protocol.String(s.Username()),
		ChannelID:       protocol.Uint32(u.ChannelID),
		Mute:            boolField(u.Mute),
		Deaf:            boolField(u.Deaf),
		Suppress:        boolField(u.Suppress),
		SelfMute:        boolField(u.SelfMute),
		SelfDeaf:        boolField(u.SelfDeaf),
		PrioritySpeaker: boolField(u.PrioritySpeaker),
		Recording:       boolField(u.Recording),
	}
	if s.IsRegistered() {
		m.UserID = protocol.Uint32(uint32(s.UserID()))
	}
	if hash := s.CertHash(); hash != "" {
		m.Hash = protocol.String(hash)
	}
	if full {
		if u.Comment != "" {
			m.Comment = protocol.String(u.Comment)
		}
		if len(u.Texture) > 0 {
			m.Texture = u.Texture
		}
	}
	return m
}

func boolField(v bool) *bool {
	if !v {
		return nil
	}
	return protocol.Bool(true)
}

// broadcast sends msg to every synced session except skip
func (r *Roster) broadcast(msg protocol.Message, skip *session.Session) {
	for _, s := range r.registry.Synced() {
		if s != skip {
			s.Send(msg)
		}
	}
}

func (r *Roster) deny(s *session.Session, perm protocol.Permission, channel uint32) error {
	pd := protocol.NewPermissionDenied(protocol.DenyPermission, "")
	pd.Permission = protocol.Uint32(uint32(perm))
	pd.ChannelID = protocol.Uint32(channel)
	pd.Session = protocol.Uint32(s.ID())
	return s.Send(pd)
}

func (r *Roster) denyText(s *session.Session, deny protocol.DenyType, reason string) error {
	return s.Send(protocol.NewPermissionDenied(deny, reason))
}

// HandleUserState applies the changes a user may make and broadcasts them
func (r *Roster) HandleUserState(s *session.Session, m *protocol.UserState) error {
	target := s
	if m.Session != nil && *m.Session != s.ID() {
		other, ok := r.registry.Get(*m.Session)
		if !ok || other.State() != session.Synced {
			return nil
		}
		target = other
	}
	self := target == s

	if !self {
		if m.SelfMute != nil || m.SelfDeaf != nil || m.Comment != nil || m.Texture != nil ||
			m.PluginContext != nil || m.PluginIdentity != nil || m.Recording != nil {
			return r.deny(s, protocol.PermissionWrite, RootChannelID)
		}
	}
	if m.Mute != nil || m.Deaf != nil || m.Suppress != nil || m.PrioritySpeaker != nil {
		if !s.IsSuperUser() {
			return r.deny(s, protocol.PermissionMuteDeafen, RootChannelID)
		}
	}
	if m.ChannelID != nil && *m.ChannelID != RootChannelID {
		return r.deny(s, protocol.PermissionEnter, *m.ChannelID)
	}
	if m.Comment != nil && r.cfg.MessageLength > 0 && uint32(len(*m.Comment)) > r.cfg.MessageLength {
		return r.denyText(s, protocol.DenyTextTooLong, "")
	}
	if len(m.Texture) > 0 && r.cfg.ImageMessageLength > 0 && uint32(len(m.Texture)) > r.cfg.ImageMessageLength {
		return r.denyText(s, protocol.DenyTextTooLong, "")
	}
	if m.Recording != nil && *m.Recording && !r.cfg.RecordingAllowed {
		return r.denyText(s, protocol.DenyText, "recording is not allowed on this server")
	}

	out := &protocol.UserState{Session: protocol.Uint32(target.ID()), Actor: protocol.Uint32(s.ID())}
	changed := false
	target.UpdateUser(func(u *session.UserInfo) {
		set := func(dst *bool, src *bool, field **bool) {
			if src != nil {
				*dst = *src
				*field = protocol.Bool(*src)
				changed = true
			}
		}
		set(&u.Mute, m.Mute, &out.Mute)
		set(&u.Deaf, m.Deaf, &out.Deaf)
		set(&u.Suppress, m.Suppress, &out.Suppress)
		set(&u.PrioritySpeaker, m.PrioritySpeaker, &out.PrioritySpeaker)
		set(&u.Recording, m.Recording, &out.Recording)
		set(&u.SelfMute, m.SelfMute, &out.SelfMute)
		set(&u.SelfDeaf, m.SelfDeaf, &out.SelfDeaf)

		// deafening implies muting; unmuting undeafens
		if u.Deaf && !u.Mute && m.Deaf != nil {
			u.Mute, out.Mute = true, protocol.Bool(true)
		}
		if u.SelfDeaf && !u.SelfMute && m.SelfDeaf != nil {
			u.SelfMute, out.SelfMute = true, protocol.Bool(true)
		}
		if m.SelfMute != nil && !*m.SelfMute && u.SelfDeaf {
			u.SelfDeaf, out.SelfDeaf = false, protocol.Bool(false)
		}
		if m.Mute != nil && !*m.Mute && u.Deaf {
			u.Deaf, out.Deaf = false, protocol.Bool(false)
		}

		if m.Comment != nil {
			u.Comment = *m.Comment
			out.Comment = m.Comment
			changed = true
		}
		if m.Texture != nil {
			u.Texture = append([]byte(nil), m.Texture...)
			out.Texture = m.Texture
			changed = true
		}
		if m.PluginContext != nil {
			u.PluginContext = append([]byte(nil), m.PluginContext...)
		}
		if m.PluginIdentity != nil {
			u.PluginIdentity = *m.PluginIdentity
		}
	})

	if m.Comment != nil && r.store != nil && target.IsRegistered() {
		if err := r.store.SetComment(target.UserID(), *m.Comment); err != nil {
			r.log.Warn("Failed to store comment", zap.Int64("user_id", target.UserID()), zap.Error(err))
		}
	}

	if changed {
		r.broadcast(out, nil)
	}
	return nil
}

// HandleTextMessage delivers a message to the listed sessions and channel
func (r *Roster) HandleTextMessage(s *session.Session, m *protocol.TextMessage) error {
	text := protocol.GetString(m.Message)
	if r.cfg.MessageLength > 0 && uint32(len(text)) > r.cfg.MessageLength {
		return r.denyText(s, protocol.DenyTextTooLong, "")
	}
	if !r.cfg.AllowHTML && strings.ContainsAny(text, "<>") {
		text = strings.NewReplacer("<", "&lt;", ">", "&gt;").Replace(text)
	}

	out := &protocol.TextMessage{
		Actor:     protocol.Uint32(s.ID()),
		Session:   m.Session,
		ChannelID: m.ChannelID,
		TreeID:    m.TreeID,
		Message:   protocol.String(text),
	}

	recipients := make(map[uint32]*session.Session)
	for _, id := range m.Session {
		if other, ok := r.registry.Get(id); ok && other != s && other.State() == session.Synced {
			recipients[id] = other
		}
	}
	if containsID(m.ChannelID, RootChannelID) || containsID(m.TreeID, RootChannelID) {
		for _, other := range r.registry.Synced() {
			if other != s && other.User().ChannelID == RootChannelID {
				recipients[other.ID()] = other
			}
		}
	}

	for _, other := range recipients {
		other.Send(out)
	}
	return nil
}

func containsID(ids []uint32, id uint32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// HandleBanList returns or replaces the ban list. Both need SuperUser.
func (r *Roster) HandleBanList(s *session.Session, m *protocol.BanList) error {
	if !s.IsSuperUser() || r.store == nil {
		return r.deny(s, protocol.PermissionBan, RootChannelID)
	}

	if protocol.GetBool(m.Query) {
		bans, err := r.store.ListBans()
		if err != nil {
			return err
		}
		reply := &protocol.BanList{}
		for _, b := range bans {
			reply.Bans = append(reply.Bans, banEntry(b))
		}
		return s.Send(reply)
	}

	bans := make([]storage.Ban, 0, len(m.Bans))
	for _, e := range m.Bans {
		b, err := fromBanEntry(e)
		if err != nil {
			return err
		}
		bans = append(bans, b)
	}
	if err := r.store.ReplaceBans(bans); err != nil {
		return err
	}
	r.log.Info("Ban list replaced", zap.Uint32("actor", s.ID()), zap.Int("count", len(bans)))
	return nil
}

func banEntry(b *storage.Ban) protocol.BanEntry {
	e := protocol.BanEntry{
		Mask:     protocol.Uint32(uint32(b.Bits)),
		Name:     protocol.String(b.Name),
		Hash:     protocol.String(b.Hash),
		Reason:   protocol.String(b.Reason),
		Start:    protocol.String(b.Start.UTC().Format(banTimeLayout)),
		Duration: protocol.Uint32(uint32(b.Duration / time.Second)),
	}
	if b.Address.IsValid() {
		addr := b.Address.As16()
		e.Address = addr[:]
	} else {
		e.Address = make([]byte, 16)
	}
	return e
}

func fromBanEntry(e protocol.BanEntry) (storage.Ban, error) {
	b := storage.Ban{
		Bits:     int(protocol.GetUint32(e.Mask)),
		Name:     protocol.GetString(e.Name),
		Hash:     protocol.GetString(e.Hash),
		Reason:   protocol.GetString(e.Reason),
		Duration: time.Duration(protocol.GetUint32(e.Duration)) * time.Second,
	}
	if addr, ok := netip.AddrFromSlice(e.Address); ok && !addr.IsUnspecified() {
		b.Address = addr
	}
	if start := protocol.GetString(e.Start); start != "" {
		t, err := time.ParseInLocation(banTimeLayout, start, time.UTC)
		if err != nil {
			return b, err
		}
		b.Start = t
	}
	return b, nil
}

// HandleQueryUsers resolves registered user ids to names and back
func (r *Roster) HandleQueryUsers(s *session.Session, m *protocol.QueryUsers) error {
	reply := &protocol.QueryUsers{}
	if r.store != nil {
		ids := make([]int64, len(m.IDs))
		for i, id := range m.IDs {
			ids[i] = int64(id)
		}
		byID, err := r.store.UsersByIDs(ids)
		if err != nil {
			return err
		}
		for _, id := range m.IDs {
			if u, ok := byID[int64(id)]; ok {
				reply.IDs = append(reply.IDs, id)
				reply.Names = append(reply.Names, u.Name)
			}
		}

		byName, err := r.store.UsersByNames(m.Names)
		if err != nil {
			return err
		}
		for _, name := range m.Names {
			if u, ok := byName[name]; ok {
				reply.IDs = append(reply.IDs, uint32(u.ID))
				reply.Names = append(reply.Names, u.Name)
			}
		}
	}
	return s.Send(reply)
}

// HandleUserList lists registered users, or renames and deletes them
func (r *Roster) HandleUserList(s *session.Session, m *protocol.UserList) error {
	if !s.IsSuperUser() || r.store == nil {
		return r.deny(s, protocol.PermissionRegister, RootChannelID)
	}

	if len(m.Users) == 0 {
		users, err := r.store.ListUsers("")
		if err != nil {
			return err
		}
		reply := &protocol.UserList{}
		for _, u := range users {
			if u.ID == storage.SuperUserID {
				continue
			}
			entry := protocol.RegisteredUser{
				UserID:      protocol.Uint32(uint32(u.ID)),
				Name:        protocol.String(u.Name),
				LastChannel: protocol.Uint32(u.LastChannel),
			}
			if !u.LastSeen.IsZero() {
				entry.LastSeen = protocol.String(u.LastSeen.UTC().Format(banTimeLayout))
			}
			reply.Users = append(reply.Users, entry)
		}
		return s.Send(reply)
	}

	for _, e := range m.Users {
		id := int64(protocol.GetUint32(e.UserID))
		if id == storage.SuperUserID {
			continue
		}
		var err error
		if e.Name == nil {
			err = r.store.DeleteUser(id)
		} else {
			err = r.store.RenameUser(id, *e.Name)
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			r.log.Warn("Failed to update registered user", zap.Int64("user_id", id), zap.Error(err))
		}
	}
	return nil
}

// HandlePermissionQuery reports the sender's permissions
func (r *Roster) HandlePermissionQuery(s *session.Session, m *protocol.PermissionQuery) error {
	channel := protocol.GetUint32(m.ChannelID)
	var perms uint32
	if channel == RootChannelID {
		perms = uint32(r.Permissions(s))
	}
	return s.Send(&protocol.PermissionQuery{
		ChannelID:   protocol.Uint32(channel),
		Permissions: protocol.Uint32(perms),
	})
}

// HandleUserStats reports connection statistics of a session
func (r *Roster) HandleUserStats(s *session.Session, m *protocol.UserStats) error {
	target := s
	if m.Session != nil {
		other, ok := r.registry.Get(*m.Session)
		if !ok {
			return nil
		}
		target = other
	}
	statsOnly := protocol.GetBool(m.StatsOnly)

	crypt := target.CryptStats()
	remote := target.RemoteStats()
	udp, tcp := target.PacketCounts()
	now := r.now()

	reply := &protocol.UserStats{
		Session:   protocol.Uint32(target.ID()),
		StatsOnly: protocol.Bool(statsOnly),
		FromServer: &protocol.PacketStats{
			Good:   protocol.Uint32(crypt.Good),
			Late:   protocol.Uint32(crypt.Late),
			Lost:   protocol.Uint32(crypt.Lost),
			Resync: protocol.Uint32(crypt.Resync),
		},
		FromClient: &protocol.PacketStats{
			Good:   protocol.Uint32(remote.Good),
			Late:   protocol.Uint32(remote.Late),
			Lost:   protocol.Uint32(remote.Lost),
			Resync: protocol.Uint32(remote.Resync),
		},
		UDPPackets: protocol.Uint32(udp),
		TCPPackets: protocol.Uint32(tcp),
		UDPPingAvg: protocol.Float32(remote.UDPPingAvg),
		UDPPingVar: protocol.Float32(remote.UDPPingVar),
		TCPPingAvg: protocol.Float32(remote.TCPPingAvg),
		TCPPingVar: protocol.Float32(remote.TCPPingVar),
		OnlineSecs: protocol.Uint32(uint32(now.Sub(target.ConnectedAt()) / time.Second)),
		IdleSecs:   protocol.Uint32(uint32(now.Sub(target.LastActive()) / time.Second)),
	}

	if !statsOnly {
		info := target.Client()
		reply.Version = protocol.NewVersionMessage(info.Version, info.Release, info.OS, info.OSVersion)
		reply.CeltVersions = info.CeltVersion
		reply.Opus = protocol.Bool(info.Opus)
		reply.StrongCertificate = protocol.Bool(target.CertHash() != "")
		if target == s || s.IsSuperUser() {
			if host := target.Host(); host.IsValid() {
				addr := host.As16()
				reply.Address = addr[:]
			}
		}
	}
	return s.Send(reply)
}

// HandleRequestBlob sends the comments, textures and descriptions asked for
func (r *Roster) HandleRequestBlob(s *session.Session, m *protocol.RequestBlob) error {
	for _, id := range m.SessionTexture {
		if other, ok := r.registry.Get(id); ok {
			if u := other.User(); len(u.Texture) > 0 {
				s.Send(&protocol.UserState{Session: protocol.Uint32(id), Texture: u.Texture})
			}
		}
	}
	for _, id := range m.SessionComment {
		if other, ok := r.registry.Get(id); ok {
			if u := other.User(); u.Comment != "" {
				s.Send(&protocol.UserState{Session: protocol.Uint32(id), Comment: protocol.String(u.Comment)})
			}
		}
	}
	for _, id := range m.ChannelDescription {
		if id == RootChannelID {
			s.Send(&protocol.ChannelState{ChannelID: protocol.Uint32(id), Description: protocol.String("")})
		}
	}
	return nil
}

// HandlePluginDataTransmission forwards plugin data to its receivers
func (r *Roster) HandlePluginDataTransmission(s *session.Session, m *protocol.PluginDataTransmission) error {
	if len(m.Data) > maxPluginDataLength {
		r.log.Debug("Dropping oversized plugin data", zap.Uint32("session", s.ID()), zap.Int("size", len(m.Data)))
		return nil
	}
	out := &protocol.PluginDataTransmission{
		SenderSession: protocol.Uint32(s.ID()),
		Data:          m.Data,
		DataID:        m.DataID,
	}
	seen := make(map[uint32]bool)
	for _, id := range m.ReceiverSessions {
		if seen[id] || id == s.ID() {
			continue
		}
		seen[id] = true
		if other, ok := r.registry.Get(id); ok && other.State() == session.Synced {
			other.Send(out)
		}
	}
	return nil
}

// HandleUserRemove kicks or bans a user. Only SuperUser may do either.
func (r *Roster) HandleUserRemove(s *session.Session, m *protocol.UserRemove) error {
	if !s.IsSuperUser() {
		return r.deny(s, protocol.PermissionKick, RootChannelID)
	}
	target, ok := r.registry.Get(protocol.GetUint32(m.Session))
	if !ok || target == s {
		return nil
	}

	reason := protocol.GetString(m.Reason)
	ban := protocol.GetBool(m.Ban)
	if ban && r.store != nil {
		entry := storage.Ban{Hash: target.CertHash(), Name: target.Username(), Reason: reason, Start: r.now()}
		if host := target.Host(); host.IsValid() {
			entry.Address, entry.Bits = host, 128
		}
		if _, err := r.store.AddBan(entry); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.removals[target.ID()] = &protocol.UserRemove{
		Session: protocol.Uint32(target.ID()),
		Actor:   protocol.Uint32(s.ID()),
		Reason:  m.Reason,
		Ban:     protocol.Bool(ban),
	}
	r.mu.Unlock()

	r.log.Info("User removed",
		zap.Uint32("session", target.ID()),
		zap.Uint32("actor", s.ID()),
		zap.Bool("ban", ban),
		zap.String("reason", reason))
	target.Kick(reason)
	return nil
}

// HandleChannelState is denied: the roster has a fixed channel tree
func (r *Roster) HandleChannelState(s *session.Session, m *protocol.ChannelState) error {
	if m.ChannelID == nil {
		return r.deny(s, protocol.PermissionMakeChannel, protocol.GetUint32(m.Parent))
	}
	return r.deny(s, protocol.PermissionWrite, *m.ChannelID)
}

// HandleChannelRemove is denied: the root channel cannot be removed
func (r *Roster) HandleChannelRemove(s *session.Session, m *protocol.ChannelRemove) error {
	return r.deny(s, protocol.PermissionWrite, protocol.GetUint32(m.ChannelID))
}

// HandleACL is denied: there is no ACL engine
func (r *Roster) HandleACL(s *session.Session, m *protocol.ACL) error {
	return r.deny(s, protocol.PermissionWrite, protocol.GetUint32(m.ChannelID))
}

// HandleContextAction is denied: no context actions are registered
func (r *Roster) HandleContextAction(s *session.Session, m *protocol.ContextAction) error {
	return r.deny(s, protocol.PermissionWrite, protocol.GetUint32(m.ChannelID))
}
