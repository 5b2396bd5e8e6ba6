package api

import (
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-voice/pkg/crypto"
	"github.com/ZentaChain/zentalk-voice/pkg/session"
	"github.com/ZentaChain/zentalk-voice/pkg/storage"
)

// ServerInfo is the response of GET /api/v1/server
type ServerInfo struct {
	Online       int       `json:"online"`
	Synced       int       `json:"synced"`
	Peak         int       `json:"peak"`
	Total        uint64    `json:"total"`
	MaxUsers     int       `json:"maxUsers"`
	MaxBandwidth uint32    `json:"maxBandwidth"`
	Accepting    bool      `json:"accepting"`
	TCPAddr      string    `json:"tcpAddr,omitempty"`
	UDPAddr      string    `json:"udpAddr,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	Uptime       float64   `json:"uptimeSeconds"`
}

// SessionInfo describes one connected session
type SessionInfo struct {
	ID          uint32    `json:"id"`
	Username    string    `json:"username"`
	UserID      int64     `json:"userId"`
	State       string    `json:"state"`
	Remote      string    `json:"remote"`
	UDPAddr     string    `json:"udpAddr,omitempty"`
	UDPActive   bool      `json:"udpActive"`
	ChannelID   uint32    `json:"channelId"`
	Mute        bool      `json:"mute"`
	Deaf        bool      `json:"deaf"`
	SelfMute    bool      `json:"selfMute"`
	SelfDeaf    bool      `json:"selfDeaf"`
	Version     string    `json:"version,omitempty"`
	Release     string    `json:"release,omitempty"`
	OS          string    `json:"os,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	OnlineSecs  float64   `json:"onlineSeconds"`
	IdleSecs    float64   `json:"idleSeconds"`

	Crypt   *CryptInfo   `json:"crypt,omitempty"`
	Control *ControlInfo `json:"control,omitempty"`
}

// CryptInfo are the server side datagram counters of a session
type CryptInfo struct {
	Good        uint32 `json:"good"`
	Late        uint32 `json:"late"`
	Lost        uint32 `json:"lost"`
	Resync      uint32 `json:"resync"`
	MacMismatch uint32 `json:"macMismatch"`
	Replayed    uint32 `json:"replayed"`
	TooFarAhead uint32 `json:"tooFarAhead"`
	Desynced    uint32 `json:"desynced"`
	UDPPackets  uint32 `json:"udpPackets"`
	TCPPackets  uint32 `json:"tcpPackets"`
}

// ControlInfo are the control channel counters of a session
type ControlInfo struct {
	FramesIn  uint64 `json:"framesIn"`
	FramesOut uint64 `json:"framesOut"`
	BytesIn   uint64 `json:"bytesIn"`
	BytesOut  uint64 `json:"bytesOut"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`
}

// UserInfo describes a registered account
type UserInfo struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	CertHash    string     `json:"certHash,omitempty"`
	HasPassword bool       `json:"hasPassword"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
	LastChannel uint32     `json:"lastChannel"`
	Online      bool       `json:"online"`
}

// BanInfo describes one ban
type BanInfo struct {
	ID       int64     `json:"id"`
	Address  string    `json:"address,omitempty"`
	Name     string    `json:"name,omitempty"`
	Hash     string    `json:"hash,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Start    time.Time `json:"start"`
	Duration int64     `json:"durationSeconds"`
}

// RegisterUserRequest is the body of POST /api/v1/users
type RegisterUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password"`
	CertHash string `json:"certHash"`
}

// SetPasswordRequest is the body of PUT /api/v1/users/:id/password
type SetPasswordRequest struct {
	Password string `json:"password"`
}

// SetAcceptingRequest is the body of PUT /api/v1/server/accepting
type SetAcceptingRequest struct {
	Accepting *bool `json:"accepting" binding:"required"`
}

// AddBanRequest is the body of POST /api/v1/bans. Address takes a plain
// address or a CIDR range.
type AddBanRequest struct {
	Address  string `json:"address"`
	Hash     string `json:"hash"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
	Duration int64  `json:"durationSeconds" binding:"min=0"`
}

// KickRequest is the optional body of DELETE /api/v1/sessions/:id
type KickRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.voice.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"accepting": st.Accepting,
		"online":    st.Online,
	})
}

func (s *Server) handleServerInfo(c *gin.Context) {
	st := s.voice.Stats()
	c.JSON(http.StatusOK, ServerInfo{
		Online:       st.Online,
		Synced:       st.Synced,
		Peak:         st.Peak,
		Total:        st.Total,
		MaxUsers:     st.MaxUsers,
		MaxBandwidth: st.MaxBandwidth,
		Accepting:    st.Accepting,
		TCPAddr:      st.TCPAddr,
		UDPAddr:      st.UDPAddr,
		StartedAt:    st.StartedAt,
		Uptime:       time.Since(st.StartedAt).Seconds(),
	})
}

func (s *Server) handleSetAccepting(c *gin.Context) {
	var req SetAcceptingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	s.voice.SetAccepting(*req.Accepting)
	s.log.Info("Changed accepting state", zap.Bool("accepting", *req.Accepting))
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: gin.H{"accepting": *req.Accepting}})
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions := s.voice.Registry().Sessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionInfo(sess, false))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out, "count": len(out)})
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, ok := s.lookupSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionInfo(sess, true))
}

func (s *Server) handleKickSession(c *gin.Context) {
	sess, ok := s.lookupSession(c)
	if !ok {
		return
	}
	var req KickRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "Kicked by administrator"
	}
	if !s.voice.Kick(sess.ID(), req.Reason) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found"})
		return
	}
	s.log.Info("Kicked session", zap.Uint32("session", sess.ID()), zap.String("reason", req.Reason))
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Session kicked"})
}

func (s *Server) lookupSession(c *gin.Context) (*session.Session, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid session id"})
		return nil, false
	}
	sess, ok := s.voice.Registry().Get(uint32(id))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found"})
		return nil, false
	}
	return sess, true
}

func sessionInfo(sess *session.Session, detail bool) SessionInfo {
	user := sess.User()
	client := sess.Client()
	now := time.Now()

	info := SessionInfo{
		ID:          sess.ID(),
		Username:    sess.Username(),
		UserID:      sess.UserID(),
		State:       sess.State().String(),
		UDPActive:   sess.UDPActive(),
		ChannelID:   user.ChannelID,
		Mute:        user.Mute,
		Deaf:        user.Deaf,
		SelfMute:    user.SelfMute,
		SelfDeaf:    user.SelfDeaf,
		Release:     client.Release,
		OS:          strings.TrimSpace(client.OS + " " + client.OSVersion),
		ConnectedAt: sess.ConnectedAt(),
		OnlineSecs:  now.Sub(sess.ConnectedAt()).Seconds(),
		IdleSecs:    now.Sub(sess.LastActive()).Seconds(),
	}
	if addr := sess.RemoteAddr(); addr != nil {
		info.Remote = addr.String()
	}
	if addr := sess.UDPAddr(); addr.IsValid() {
		info.UDPAddr = addr.String()
	}
	if client.Version != 0 {
		info.Version = client.Version.String()
	}
	if !detail {
		return info
	}

	info.Crypt = cryptInfo(sess.CryptStats())
	info.Crypt.UDPPackets, info.Crypt.TCPPackets = sess.PacketCounts()
	cs := sess.ControlStats()
	info.Control = &ControlInfo{
		FramesIn:  cs.FramesIn,
		FramesOut: cs.FramesOut,
		BytesIn:   cs.BytesIn,
		BytesOut:  cs.BytesOut,
		Dropped:   cs.Dropped,
		Pending:   cs.Pending,
	}
	return info
}

func cryptInfo(st crypto.Stats) *CryptInfo {
	return &CryptInfo{
		Good:        st.Good,
		Late:        st.Late,
		Lost:        st.Lost,
		Resync:      st.Resync,
		MacMismatch: st.MacMismatch,
		Replayed:    st.Replayed,
		TooFarAhead: st.TooFarAhead,
		Desynced:    st.Desynced,
	}
}

// store returns the account store or answers 503
func (s *Server) store(c *gin.Context) (*storage.DB, bool) {
	db := s.voice.Store()
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "No user database configured"})
		return nil, false
	}
	return db, true
}

func (s *Server) handleListUsers(c *gin.Context) {
	db, ok := s.store(c)
	if !ok {
		return
	}
	users, err := db.ListUsers(c.Query("filter"))
	if err != nil {
		s.internalError(c, "Failed to list users", err)
		return
	}

	online := make(map[int64]bool)
	for _, sess := range s.voice.Registry().Sessions() {
		if sess.IsRegistered() {
			online[sess.UserID()] = true
		}
	}
	out := make([]UserInfo, 0, len(users))
	for _, u := range users {
		out = append(out, userInfo(u, online[u.ID]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "count": len(out)})
}

func (s *Server) handleGetUser(c *gin.Context) {
	db, ok := s.store(c)
	if !ok {
		return
	}
	id, ok := userID(c)
	if !ok {
		return
	}
	u, err := db.UserByID(id)
	if err != nil {
		s.storeError(c, "Failed to load user", err)
		return
	}
	online := false
	for _, sess := range s.voice.Registry().Sessions() {
		if sess.UserID() == id {
			online = true
			break
		}
	}
	c.JSON(http.StatusOK, userInfo(u, online))
}

func (s *Server) handleRegisterUser(c *gin.Context) {
	db, ok := s.store(c)
	if !ok {
		return
	}
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	u, err := db.RegisterUser(req.Name, req.Password, strings.ToLower(req.CertHash))
	if err != nil {
		s.storeError(c, "Failed to register user", err)
		return
	}
	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: userInfo(u, false)})
}

func (s *Server) handleSetPassword(c *gin.Context) {
	db, ok := s.store(c)
	if !ok {
		return
	}
	id, ok := userID(c)
	if !ok {
		return
	}
	var req SetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	if err := db.SetPassword(id, req.Password); err != nil {
		s.storeError(c, "Failed to set password", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Password updated"})
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	db, ok := s.store(c)
	if !ok {
		return
	}
	id, ok := userID(c)
	if !ok {
		return
	}
	if id == storage.SuperUserID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Cannot delete " + storage.SuperUserName})
		return
	}
	if err := db.DeleteUser(id); err != nil {
		s.storeError(c, "Failed to delete user", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "User deleted"})
}

func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid user id"})
		return 0, false
	}
	return id, true
}

func userInfo(u *storage.User, online bool) UserInfo {
	info := UserInfo{
		ID:          u.ID,
		Name:        u.Name,
		CertHash:    u.CertHash,
		HasPassword: u.HasPassword,
		LastChannel: u.LastChannel,
		Online:      online,
	}
	if !u.LastSeen.IsZero() {
		seen := u.LastSeen
		info.LastSeen = &seen
	}
	return info
}

func (s *Server) handleListBans(c *gin.Context) {
	db, ok := s.store(c)
	if !ok {
		return
	}
	bans, err := db.ListBans()
	if err != nil {
		s.internalError(c, "Failed to list bans", err)
		return
	}
	out := make([]BanInfo, 0, len(bans))
	for _, b := range bans {
		out = append(out, banInfo(b))
	}
	c.JSON(http.StatusOK, gin.H{"bans": out, "count": len(out)})
}

func (s *Server) handleAddBan(c *gin.Context) {
	db, ok := s.store(c)
	if !ok {
		return
	}
	var req AddBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	ban := storage.Ban{
		Name:     req.Name,
		Hash:     strings.ToLower(req.Hash),
		Reason:   req.Reason,
		Start:    time.Now(),
		Duration: time.Duration(req.Duration) * time.Second,
	}
	if req.Address != "" {
		prefix, err := parseBanAddress(req.Address)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid address", Message: err.Error()})
			return
		}
		ban.Address = prefix.Addr()
		ban.Bits = prefix.Bits()
	}
	if !ban.Address.IsValid() && ban.Hash == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: "address or hash is required"})
		return
	}

	added, err := db.AddBan(ban)
	if err != nil {
		s.internalError(c, "Failed to add ban", err)
		return
	}
	s.kickBanned(added)
	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: banInfo(added)})
}

// kickBanned disconnects sessions the new ban covers
func (s *Server) kickBanned(b *storage.Ban) {
	for _, sess := range s.voice.Registry().Sessions() {
		if b.Matches(sess.Host(), sess.CertHash()) {
			reason := "You are banned"
			if b.Reason != "" {
				reason += ": " + b.Reason
			}
			sess.Kick(reason)
		}
	}
}

func (s *Server) handleDeleteBan(c *gin.Context) {
	db, ok := s.store(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid ban id"})
		return
	}
	if err := db.DeleteBan(id); err != nil {
		s.storeError(c, "Failed to delete ban", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Ban deleted"})
}

// parseBanAddress returns the range in 16-byte form. A bare address bans
// that host only.
func parseBanAddress(s string) (netip.Prefix, error) {
	if !strings.Contains(s, "/") {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return netip.PrefixFrom(netip.AddrFrom16(addr.As16()), 128), nil
	}
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	bits := p.Bits()
	if p.Addr().Is4() {
		bits += 96
	}
	return netip.PrefixFrom(netip.AddrFrom16(p.Addr().As16()), bits).Masked(), nil
}

func banInfo(b *storage.Ban) BanInfo {
	info := BanInfo{
		ID:       b.ID,
		Name:     b.Name,
		Hash:     b.Hash,
		Reason:   b.Reason,
		Start:    b.Start,
		Duration: int64(b.Duration / time.Second),
	}
	if p, ok := b.Prefix(); ok {
		addr := p.Addr().Unmap()
		bits := p.Bits()
		if addr.Is4() && bits >= 96 {
			info.Address = netip.PrefixFrom(addr, bits-96).String()
		} else {
			info.Address = p.String()
		}
	}
	return info
}

func (s *Server) storeError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
	case errors.Is(err, storage.ErrUserExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: msg, Message: err.Error()})
	case errors.Is(err, storage.ErrInvalidName):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Message: err.Error()})
	default:
		s.internalError(c, msg, err)
	}
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.log.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg, Message: err.Error()})
}
