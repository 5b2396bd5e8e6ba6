package session

import (
	"net/netip"
	"sort"
	"strings"
	"sync"
)

// Registry indexes live sessions by id and by UDP address. It is owned by
// the server; there is no package level state.
type Registry struct {
	mu       sync.RWMutex
	next     uint32
	sessions map[uint32]*Session
	byAddr   map[netip.AddrPort]*Session
	byHost   map[netip.Addr]map[uint32]*Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uint32]*Session),
		byAddr:   make(map[netip.AddrPort]*Session),
		byHost:   make(map[netip.Addr]map[uint32]*Session),
	}
}

// add assigns s the next free id and indexes it. Lock order is registry
// before session; session code never calls in here holding its own lock.
func (r *Registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		r.next++
		if r.next == 0 {
			continue
		}
		if _, live := r.sessions[r.next]; !live {
			break
		}
	}
	s.id = r.next
	r.sessions[s.id] = s

	if s.host.IsValid() {
		hosts := r.byHost[s.host]
		if hosts == nil {
			hosts = make(map[uint32]*Session)
			r.byHost[s.host] = hosts
		}
		hosts[s.id] = s
	}
}

func (r *Registry) remove(s *Session, addr netip.AddrPort) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
	if addr.IsValid() && r.byAddr[addr] == s {
		delete(r.byAddr, addr)
	}
	if hosts := r.byHost[s.host]; hosts != nil {
		delete(hosts, s.id)
		if len(hosts) == 0 {
			delete(r.byHost, s.host)
		}
	}
}

// pin binds a UDP address to s. It fails if another session holds it.
func (r *Registry) pin(addr netip.AddrPort, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.id] != s {
		return false
	}
	if owner, ok := r.byAddr[addr]; ok && owner != s {
		return false
	}
	r.byAddr[addr] = s
	return true
}

// Get returns the session with id
func (r *Registry) Get(id uint32) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// ByAddr returns the session pinned to a UDP address
func (r *Registry) ByAddr(addr netip.AddrPort) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byAddr[canonical(addr)]
	return s, ok
}

// Candidates returns the sessions whose control connection comes from ip
// and that have no UDP address yet, in id order
func (r *Registry) Candidates(ip netip.Addr) []*Session {
	r.mu.RLock()
	hosts := r.byHost[ip.Unmap()]
	out := make([]*Session, 0, len(hosts))
	for _, s := range hosts {
		out = append(out, s)
	}
	r.mu.RUnlock()

	filtered := out[:0]
	for _, s := range out {
		if !s.UDPAddr().IsValid() {
			filtered = append(filtered, s)
		}
	}
	sortByID(filtered)
	return filtered
}

// Sessions returns all live sessions in id order
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sortByID(out)
	return out
}

// Synced returns the sessions that completed the handshake, in id order
func (r *Registry) Synced() []*Session {
	all := r.Sessions()
	out := all[:0]
	for _, s := range all {
		if s.State() == Synced {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// FindByName returns a live, authenticated session using name, compared
// case-insensitively, other than except
func (r *Registry) FindByName(name string, except *Session) (*Session, bool) {
	for _, s := range r.Sessions() {
		if s == except {
			continue
		}
		if st := s.State(); st < CryptoPending || st == Closed {
			continue
		}
		if strings.EqualFold(s.Username(), name) {
			return s, true
		}
	}
	return nil, false
}

func sortByID(list []*Session) {
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
}
