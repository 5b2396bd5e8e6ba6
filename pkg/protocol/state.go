package protocol

// ===== CHANNELS =====

// ChannelRemove deletes a channel
type ChannelRemove struct {
	ChannelID *uint32 // Required
}

func (m *ChannelRemove) Type() MessageType { return MessageTypeChannelRemove }

func (m *ChannelRemove) marshal(e *encoder) {
	e.uint32(1, m.ChannelID)
}

func (m *ChannelRemove) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		if f.num == 1 {
			return f.uint32(&m.ChannelID)
		}
		return 0, nil
	})
}

func (m *ChannelRemove) validate() error {
	if m.ChannelID == nil {
		return missing("channel_id")
	}
	return nil
}

// ChannelState creates or updates a channel
type ChannelState struct {
	ChannelID         *uint32
	Parent            *uint32
	Name              *string
	Links             []uint32
	Description       *string
	LinksAdd          []uint32
	LinksRemove       []uint32
	Temporary         *bool
	Position          *int32
	DescriptionHash   []byte
	MaxUsers          *uint32
	IsEnterRestricted *bool
	CanEnter          *bool
}

func (m *ChannelState) Type() MessageType { return MessageTypeChannelState }

func (m *ChannelState) marshal(e *encoder) {
	e.uint32(1, m.ChannelID)
	e.uint32(2, m.Parent)
	e.string(3, m.Name)
	e.uint32s(4, m.Links)
	e.string(5, m.Description)
	e.uint32s(6, m.LinksAdd)
	e.uint32s(7, m.LinksRemove)
	e.bool(8, m.Temporary)
	e.int32(9, m.Position)
	e.bytes(10, m.DescriptionHash)
	e.uint32(11, m.MaxUsers)
	e.bool(12, m.IsEnterRestricted)
	e.bool(13, m.CanEnter)
}

func (m *ChannelState) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.ChannelID)
		case 2:
			return f.uint32(&m.Parent)
		case 3:
			return f.string(&m.Name)
		case 4:
			return f.uint32s(&m.Links)
		case 5:
			return f.string(&m.Description)
		case 6:
			return f.uint32s(&m.LinksAdd)
		case 7:
			return f.uint32s(&m.LinksRemove)
		case 8:
			return f.bool(&m.Temporary)
		case 9:
			return f.int32(&m.Position)
		case 10:
			return f.bytes(&m.DescriptionHash)
		case 11:
			return f.uint32(&m.MaxUsers)
		case 12:
			return f.bool(&m.IsEnterRestricted)
		case 13:
			return f.bool(&m.CanEnter)
		}
		return 0, nil
	})
}

func (m *ChannelState) validate() error { return nil }

// ===== USERS =====

// UserRemove announces that a user left, was kicked or was banned
type UserRemove struct {
	Session *uint32 // Required
	Actor   *uint32
	Reason  *string
	Ban     *bool
}

func (m *UserRemove) Type() MessageType { return MessageTypeUserRemove }

func (m *UserRemove) marshal(e *encoder) {
	e.uint32(1, m.Session)
	e.uint32(2, m.Actor)
	e.string(3, m.Reason)
	e.bool(4, m.Ban)
}

func (m *UserRemove) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.Session)
		case 2:
			return f.uint32(&m.Actor)
		case 3:
			return f.string(&m.Reason)
		case 4:
			return f.bool(&m.Ban)
		}
		return 0, nil
	})
}

func (m *UserRemove) validate() error {
	if m.Session == nil {
		return missing("session")
	}
	return nil
}

// VolumeAdjustment is a per-channel listening volume
type VolumeAdjustment struct {
	ListeningChannel *uint32
	VolumeAdjustment *float32
}

// UserState creates or updates a user
type UserState struct {
	Session                   *uint32
	Actor                     *uint32
	Name                      *string
	UserID                    *uint32
	ChannelID                 *uint32
	Mute                      *bool
	Deaf                      *bool
	Suppress                  *bool
	SelfMute                  *bool
	SelfDeaf                  *bool
	Texture                   []byte
	PluginContext             []byte
	PluginIdentity            *string
	Comment                   *string
	Hash                      *string
	CommentHash               []byte
	TextureHash               []byte
	PrioritySpeaker           *bool
	Recording                 *bool
	TemporaryAccessTokens     []string
	ListeningChannelAdd       []uint32
	ListeningChannelRemove    []uint32
	ListeningVolumeAdjustment []VolumeAdjustment
}

func (m *UserState) Type() MessageType { return MessageTypeUserState }

func (m *UserState) marshal(e *encoder) {
	e.uint32(1, m.Session)
	e.uint32(2, m.Actor)
	e.string(3, m.Name)
	e.uint32(4, m.UserID)
	e.uint32(5, m.ChannelID)
	e.bool(6, m.Mute)
	e.bool(7, m.Deaf)
	e.bool(8, m.Suppress)
	e.bool(9, m.SelfMute)
	e.bool(10, m.SelfDeaf)
	e.bytes(11, m.Texture)
	e.bytes(12, m.PluginContext)
	e.string(13, m.PluginIdentity)
	e.string(14, m.Comment)
	e.string(15, m.Hash)
	e.bytes(16, m.CommentHash)
	e.bytes(17, m.TextureHash)
	e.bool(18, m.PrioritySpeaker)
	e.bool(19, m.Recording)
	e.strings(20, m.TemporaryAccessTokens)
	e.uint32s(21, m.ListeningChannelAdd)
	e.uint32s(22, m.ListeningChannelRemove)
	for i := range m.ListeningVolumeAdjustment {
		va := &m.ListeningVolumeAdjustment[i]
		e.message(23, func(e *encoder) {
			e.uint32(1, va.ListeningChannel)
			e.float(2, va.VolumeAdjustment)
		})
	}
}

func (m *UserState) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.Session)
		case 2:
			return f.uint32(&m.Actor)
		case 3:
			return f.string(&m.Name)
		case 4:
			return f.uint32(&m.UserID)
		case 5:
			return f.uint32(&m.ChannelID)
		case 6:
			return f.bool(&m.Mute)
		case 7:
			return f.bool(&m.Deaf)
		case 8:
			return f.bool(&m.Suppress)
		case 9:
			return f.bool(&m.SelfMute)
		case 10:
			return f.bool(&m.SelfDeaf)
		case 11:
			return f.bytes(&m.Texture)
		case 12:
			return f.bytes(&m.PluginContext)
		case 13:
			return f.string(&m.PluginIdentity)
		case 14:
			return f.string(&m.Comment)
		case 15:
			return f.string(&m.Hash)
		case 16:
			return f.bytes(&m.CommentHash)
		case 17:
			return f.bytes(&m.TextureHash)
		case 18:
			return f.bool(&m.PrioritySpeaker)
		case 19:
			return f.bool(&m.Recording)
		case 20:
			return f.strings(&m.TemporaryAccessTokens)
		case 21:
			return f.uint32s(&m.ListeningChannelAdd)
		case 22:
			return f.uint32s(&m.ListeningChannelRemove)
		case 23:
			return f.message(func(b []byte) error {
				var va VolumeAdjustment
				err := parseFields(b, func(f *field) (int, error) {
					switch f.num {
					case 1:
						return f.uint32(&va.ListeningChannel)
					case 2:
						return f.float(&va.VolumeAdjustment)
					}
					return 0, nil
				})
				m.ListeningVolumeAdjustment = append(m.ListeningVolumeAdjustment, va)
				return err
			})
		}
		return 0, nil
	})
}

func (m *UserState) validate() error { return nil }

// ===== BANS =====

// BanEntry is one ban list row. Address is 16 bytes (IPv4 is v4-mapped).
type BanEntry struct {
	Address  []byte  // Required
	Mask     *uint32 // Required
	Name     *string
	Hash     *string
	Reason   *string
	Start    *string
	Duration *uint32
}

// BanList queries or replaces the server ban list
type BanList struct {
	Bans  []BanEntry
	Query *bool
}

func (m *BanList) Type() MessageType { return MessageTypeBanList }

func (m *BanList) marshal(e *encoder) {
	for i := range m.Bans {
		ban := &m.Bans[i]
		e.message(1, func(e *encoder) {
			e.bytes(1, ban.Address)
			e.uint32(2, ban.Mask)
			e.string(3, ban.Name)
			e.string(4, ban.Hash)
			e.string(5, ban.Reason)
			e.string(6, ban.Start)
			e.uint32(7, ban.Duration)
		})
	}
	e.bool(2, m.Query)
}

func (m *BanList) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.message(func(b []byte) error {
				var ban BanEntry
				err := parseFields(b, func(f *field) (int, error) {
					switch f.num {
					case 1:
						return f.bytes(&ban.Address)
					case 2:
						return f.uint32(&ban.Mask)
					case 3:
						return f.string(&ban.Name)
					case 4:
						return f.string(&ban.Hash)
					case 5:
						return f.string(&ban.Reason)
					case 6:
						return f.string(&ban.Start)
					case 7:
						return f.uint32(&ban.Duration)
					}
					return 0, nil
				})
				m.Bans = append(m.Bans, ban)
				return err
			})
		case 2:
			return f.bool(&m.Query)
		}
		return 0, nil
	})
}

func (m *BanList) validate() error {
	for _, ban := range m.Bans {
		if ban.Address == nil {
			return missing("bans.address")
		}
		if ban.Mask == nil {
			return missing("bans.mask")
		}
	}
	return nil
}

// ===== TEXT AND PERMISSIONS =====

// TextMessage is a chat message to users, channels or channel trees
type TextMessage struct {
	Actor     *uint32
	Session   []uint32
	ChannelID []uint32
	TreeID    []uint32
	Message   *string // Required
}

func (m *TextMessage) Type() MessageType { return MessageTypeTextMessage }

func (m *TextMessage) marshal(e *encoder) {
	e.uint32(1, m.Actor)
	e.uint32s(2, m.Session)
	e.uint32s(3, m.ChannelID)
	e.uint32s(4, m.TreeID)
	e.string(5, m.Message)
}

func (m *TextMessage) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.Actor)
		case 2:
			return f.uint32s(&m.Session)
		case 3:
			return f.uint32s(&m.ChannelID)
		case 4:
			return f.uint32s(&m.TreeID)
		case 5:
			return f.string(&m.Message)
		}
		return 0, nil
	})
}

func (m *TextMessage) validate() error {
	if m.Message == nil {
		return missing("message")
	}
	return nil
}

// PermissionDenied reports a refused operation
type PermissionDenied struct {
	Permission *uint32
	ChannelID  *uint32
	Session    *uint32
	Reason     *string
	DenyType   *DenyType
	Name       *string
}

func (m *PermissionDenied) Type() MessageType { return MessageTypePermissionDenied }

func (m *PermissionDenied) marshal(e *encoder) {
	e.uint32(1, m.Permission)
	e.uint32(2, m.ChannelID)
	e.uint32(3, m.Session)
	e.string(4, m.Reason)
	if m.DenyType != nil {
		e.varint(5, uint64(*m.DenyType))
	}
	e.string(6, m.Name)
}

func (m *PermissionDenied) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.Permission)
		case 2:
			return f.uint32(&m.ChannelID)
		case 3:
			return f.uint32(&m.Session)
		case 4:
			return f.string(&m.Reason)
		case 5:
			var v *uint32
			n, err := f.uint32(&v)
			if err == nil {
				d := DenyType(*v)
				m.DenyType = &d
			}
			return n, err
		case 6:
			return f.string(&m.Name)
		}
		return 0, nil
	})
}

func (m *PermissionDenied) validate() error { return nil }

// NewPermissionDenied builds a PermissionDenied of the given type
func NewPermissionDenied(deny DenyType, reason string) *PermissionDenied {
	pd := &PermissionDenied{DenyType: &deny}
	if reason != "" {
		pd.Reason = &reason
	}
	return pd
}

// ChanGroup is a channel group definition inside an ACL message
type ChanGroup struct {
	Name             *string // Required
	Inherited        *bool
	Inherit          *bool
	Inheritable      *bool
	Add              []uint32
	Remove           []uint32
	InheritedMembers []uint32
}

// ChanACL is one access control entry inside an ACL message
type ChanACL struct {
	ApplyHere *bool
	ApplySubs *bool
	Inherited *bool
	UserID    *uint32
	Group     *string
	Grant     *uint32
	Deny      *uint32
}

// ACL queries or replaces a channel's access control list
type ACL struct {
	ChannelID   *uint32 // Required
	InheritACLs *bool
	Groups      []ChanGroup
	ACLs        []ChanACL
	Query       *bool
}

func (m *ACL) Type() MessageType { return MessageTypeACL }

func (m *ACL) marshal(e *encoder) {
	e.uint32(1, m.ChannelID)
	e.bool(2, m.InheritACLs)
	for i := range m.Groups {
		g := &m.Groups[i]
		e.message(3, func(e *encoder) {
			e.string(1, g.Name)
			e.bool(2, g.Inherited)
			e.bool(3, g.Inherit)
			e.bool(4, g.Inheritable)
			e.uint32s(5, g.Add)
			e.uint32s(6, g.Remove)
			e.uint32s(7, g.InheritedMembers)
		})
	}
	for i := range m.ACLs {
		a := &m.ACLs[i]
		e.message(4, func(e *encoder) {
			e.bool(1, a.ApplyHere)
			e.bool(2, a.ApplySubs)
			e.bool(3, a.Inherited)
			e.uint32(4, a.UserID)
			e.string(5, a.Group)
			e.uint32(6, a.Grant)
			e.uint32(7, a.Deny)
		})
	}
	e.bool(5, m.Query)
}

func (m *ACL) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.ChannelID)
		case 2:
			return f.bool(&m.InheritACLs)
		case 3:
			return f.message(func(b []byte) error {
				var g ChanGroup
				err := parseFields(b, func(f *field) (int, error) {
					switch f.num {
					case 1:
						return f.string(&g.Name)
					case 2:
						return f.bool(&g.Inherited)
					case 3:
						return f.bool(&g.Inherit)
					case 4:
						return f.bool(&g.Inheritable)
					case 5:
						return f.uint32s(&g.Add)
					case 6:
						return f.uint32s(&g.Remove)
					case 7:
						return f.uint32s(&g.InheritedMembers)
					}
					return 0, nil
				})
				m.Groups = append(m.Groups, g)
				return err
			})
		case 4:
			return f.message(func(b []byte) error {
				var a ChanACL
				err := parseFields(b, func(f *field) (int, error) {
					switch f.num {
					case 1:
						return f.bool(&a.ApplyHere)
					case 2:
						return f.bool(&a.ApplySubs)
					case 3:
						return f.bool(&a.Inherited)
					case 4:
						return f.uint32(&a.UserID)
					case 5:
						return f.string(&a.Group)
					case 6:
						return f.uint32(&a.Grant)
					case 7:
						return f.uint32(&a.Deny)
					}
					return 0, nil
				})
				m.ACLs = append(m.ACLs, a)
				return err
			})
		case 5:
			return f.bool(&m.Query)
		}
		return 0, nil
	})
}

func (m *ACL) validate() error {
	if m.ChannelID == nil {
		return missing("channel_id")
	}
	for _, g := range m.Groups {
		if g.Name == nil {
			return missing("groups.name")
		}
	}
	return nil
}

// QueryUsers resolves registered user ids to names and back
type QueryUsers struct {
	IDs   []uint32
	Names []string
}

func (m *QueryUsers) Type() MessageType { return MessageTypeQueryUsers }

func (m *QueryUsers) marshal(e *encoder) {
	e.uint32s(1, m.IDs)
	e.strings(2, m.Names)
}

func (m *QueryUsers) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32s(&m.IDs)
		case 2:
			return f.strings(&m.Names)
		}
		return 0, nil
	})
}

func (m *QueryUsers) validate() error { return nil }

// ===== CONTEXT ACTIONS =====

// ContextActionModify adds or removes a client context menu entry
type ContextActionModify struct {
	Action    *string // Required
	Text      *string
	Context   *uint32
	Operation *ContextActionOperation
}

func (m *ContextActionModify) Type() MessageType { return MessageTypeContextActionModify }

func (m *ContextActionModify) marshal(e *encoder) {
	e.string(1, m.Action)
	e.string(2, m.Text)
	e.uint32(3, m.Context)
	if m.Operation != nil {
		e.varint(4, uint64(*m.Operation))
	}
}

func (m *ContextActionModify) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.string(&m.Action)
		case 2:
			return f.string(&m.Text)
		case 3:
			return f.uint32(&m.Context)
		case 4:
			var v *uint32
			n, err := f.uint32(&v)
			if err == nil {
				op := ContextActionOperation(*v)
				m.Operation = &op
			}
			return n, err
		}
		return 0, nil
	})
}

func (m *ContextActionModify) validate() error {
	if m.Action == nil {
		return missing("action")
	}
	return nil
}

// ContextAction is a client invoking a context menu entry
type ContextAction struct {
	Session   *uint32
	ChannelID *uint32
	Action    *string // Required
}

func (m *ContextAction) Type() MessageType { return MessageTypeContextAction }

func (m *ContextAction) marshal(e *encoder) {
	e.uint32(1, m.Session)
	e.uint32(2, m.ChannelID)
	e.string(3, m.Action)
}

func (m *ContextAction) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.Session)
		case 2:
			return f.uint32(&m.ChannelID)
		case 3:
			return f.string(&m.Action)
		}
		return 0, nil
	})
}

func (m *ContextAction) validate() error {
	if m.Action == nil {
		return missing("action")
	}
	return nil
}

// ===== REGISTERED USERS =====

// RegisteredUser is one entry in a UserList
type RegisteredUser struct {
	UserID      *uint32 // Required
	Name        *string
	LastSeen    *string
	LastChannel *uint32
}

// UserList lists or edits registered users
type UserList struct {
	Users []RegisteredUser
}

func (m *UserList) Type() MessageType { return MessageTypeUserList }

func (m *UserList) marshal(e *encoder) {
	for i := range m.Users {
		u := &m.Users[i]
		e.message(1, func(e *encoder) {
			e.uint32(1, u.UserID)
			e.string(2, u.Name)
			e.string(3, u.LastSeen)
			e.uint32(4, u.LastChannel)
		})
	}
}

func (m *UserList) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		if f.num != 1 {
			return 0, nil
		}
		return f.message(func(b []byte) error {
			var u RegisteredUser
			err := parseFields(b, func(f *field) (int, error) {
				switch f.num {
				case 1:
					return f.uint32(&u.UserID)
				case 2:
					return f.string(&u.Name)
				case 3:
					return f.string(&u.LastSeen)
				case 4:
					return f.uint32(&u.LastChannel)
				}
				return 0, nil
			})
			m.Users = append(m.Users, u)
			return err
		})
	})
}

func (m *UserList) validate() error {
	for _, u := range m.Users {
		if u.UserID == nil {
			return missing("users.user_id")
		}
	}
	return nil
}

// ===== VOICE TARGETS =====

// VoiceTargetEntry is one recipient set of a voice target
type VoiceTargetEntry struct {
	Session   []uint32
	ChannelID *uint32
	Group     *string
	Links     *bool
	Children  *bool
}

// VoiceTarget registers a whisper/shout target id
type VoiceTarget struct {
	ID      *uint32
	Targets []VoiceTargetEntry
}

func (m *VoiceTarget) Type() MessageType { return MessageTypeVoiceTarget }

func (m *VoiceTarget) marshal(e *encoder) {
	e.uint32(1, m.ID)
	for i := range m.Targets {
		t := &m.Targets[i]
		e.message(2, func(e *encoder) {
			e.uint32s(1, t.Session)
			e.uint32(2, t.ChannelID)
			e.string(3, t.Group)
			e.bool(4, t.Links)
			e.bool(5, t.Children)
		})
	}
}

func (m *VoiceTarget) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.ID)
		case 2:
			return f.message(func(b []byte) error {
				var t VoiceTargetEntry
				err := parseFields(b, func(f *field) (int, error) {
					switch f.num {
					case 1:
						return f.uint32s(&t.Session)
					case 2:
						return f.uint32(&t.ChannelID)
					case 3:
						return f.string(&t.Group)
					case 4:
						return f.bool(&t.Links)
					case 5:
						return f.bool(&t.Children)
					}
					return 0, nil
				})
				m.Targets = append(m.Targets, t)
				return err
			})
		}
		return 0, nil
	})
}

func (m *VoiceTarget) validate() error { return nil }

// PermissionQuery asks for (or reports) the permissions on a channel
type PermissionQuery struct {
	ChannelID   *uint32
	Permissions *uint32
	Flush       *bool
}

func (m *PermissionQuery) Type() MessageType { return MessageTypePermissionQuery }

func (m *PermissionQuery) marshal(e *encoder) {
	e.uint32(1, m.ChannelID)
	e.uint32(2, m.Permissions)
	e.bool(3, m.Flush)
}

func (m *PermissionQuery) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.ChannelID)
		case 2:
			return f.uint32(&m.Permissions)
		case 3:
			return f.bool(&m.Flush)
		}
		return 0, nil
	})
}

func (m *PermissionQuery) validate() error { return nil }

// ===== BLOBS AND PLUGINS =====

// RequestBlob asks for large fields omitted from earlier state messages
type RequestBlob struct {
	SessionTexture     []uint32
	SessionComment     []uint32
	ChannelDescription []uint32
}

func (m *RequestBlob) Type() MessageType { return MessageTypeRequestBlob }

func (m *RequestBlob) marshal(e *encoder) {
	e.uint32s(1, m.SessionTexture)
	e.uint32s(2, m.SessionComment)
	e.uint32s(3, m.ChannelDescription)
}

func (m *RequestBlob) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32s(&m.SessionTexture)
		case 2:
			return f.uint32s(&m.SessionComment)
		case 3:
			return f.uint32s(&m.ChannelDescription)
		}
		return 0, nil
	})
}

func (m *RequestBlob) validate() error { return nil }

// PluginDataTransmission relays opaque plugin data between clients
type PluginDataTransmission struct {
	SenderSession    *uint32
	ReceiverSessions []uint32
	Data             []byte
	DataID           *string
}

func (m *PluginDataTransmission) Type() MessageType { return MessageTypePluginDataTransmission }

func (m *PluginDataTransmission) marshal(e *encoder) {
	e.uint32(1, m.SenderSession)
	e.packedUint32s(2, m.ReceiverSessions)
	e.bytes(3, m.Data)
	e.string(4, m.DataID)
}

func (m *PluginDataTransmission) unmarshal(b []byte) error {
	return parseFields(b, func(f *field) (int, error) {
		switch f.num {
		case 1:
			return f.uint32(&m.SenderSession)
		case 2:
			return f.uint32s(&m.ReceiverSessions)
		case 3:
			return f.bytes(&m.Data)
		case 4:
			return f.string(&m.DataID)
		}
		return 0, nil
	})
}

func (m *PluginDataTransmission) validate() error { return nil }
