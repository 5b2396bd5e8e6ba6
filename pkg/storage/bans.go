package storage

import (
	"fmt"
	"net/netip"
	"time"

	"go.uber.org/zap"
)

// Ban blocks an address range, a certificate hash, or both
type Ban struct {
	ID       int64
	Address  netip.Addr // zero for hash-only bans
	Bits     int        // prefix length of the 16-byte form
	Name     string
	Hash     string
	Reason   string
	Start    time.Time
	Duration time.Duration // zero is permanent
}

// Prefix returns the banned range in 16-byte form
func (b *Ban) Prefix() (netip.Prefix, bool) {
	if !b.Address.IsValid() {
		return netip.Prefix{}, false
	}
	addr := netip.AddrFrom16(b.Address.As16())
	p, err := addr.Prefix(b.Bits)
	if err != nil {
		return netip.Prefix{}, false
	}
	return p, true
}

// Expired reports whether the ban has run out at now
func (b *Ban) Expired(now time.Time) bool {
	return b.Duration > 0 && !now.Before(b.Start.Add(b.Duration))
}

// Matches reports whether the ban covers addr or certificate hash
func (b *Ban) Matches(addr netip.Addr, hash string) bool {
	if hash != "" && b.Hash == hash {
		return true
	}
	if p, ok := b.Prefix(); ok && addr.IsValid() {
		return p.Contains(netip.AddrFrom16(addr.As16()))
	}
	return false
}

// ListBans returns every stored ban, oldest first
func (s *DB) ListBans() ([]*Ban, error) {
	rows, err := s.db.Query(`SELECT id, address, mask, name, hash, reason, start, duration FROM bans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bans: %w", err)
	}
	defer rows.Close()

	var bans []*Ban
	for rows.Next() {
		b := &Ban{}
		var addr []byte
		var start, duration int64
		if err := rows.Scan(&b.ID, &addr, &b.Bits, &b.Name, &b.Hash, &b.Reason, &start, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan ban: %w", err)
		}
		if a, ok := bytesAddress(addr); ok {
			b.Address = a
		}
		b.Start = unixTime(start)
		b.Duration = time.Duration(duration) * time.Second
		bans = append(bans, b)
	}
	return bans, rows.Err()
}

// AddBan stores a ban and returns it with its id
func (s *DB) AddBan(b Ban) (*Ban, error) {
	if err := validateBan(&b); err != nil {
		return nil, err
	}
	res, err := s.db.Exec(insertBan, banArgs(&b)...)
	if err != nil {
		return nil, fmt.Errorf("failed to add ban: %w", err)
	}
	b.ID, _ = res.LastInsertId()
	s.log.Info("Added ban",
		zap.Stringer("address", b.Address),
		zap.Int("bits", b.Bits),
		zap.String("hash", b.Hash),
		zap.String("reason", b.Reason))
	return &b, nil
}

// ReplaceBans atomically replaces the whole ban list
func (s *DB) ReplaceBans(bans []Ban) error {
	for i := range bans {
		if err := validateBan(&bans[i]); err != nil {
			return err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM bans`); err != nil {
		return fmt.Errorf("failed to clear bans: %w", err)
	}
	for i := range bans {
		if _, err := tx.Exec(insertBan, banArgs(&bans[i])...); err != nil {
			return fmt.Errorf("failed to insert ban: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bans: %w", err)
	}
	s.log.Info("Replaced ban list", zap.Int("count", len(bans)))
	return nil
}

// DeleteBan removes one ban
func (s *DB) DeleteBan(id int64) error {
	res, err := s.db.Exec(`DELETE FROM bans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ban: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsAddressBanned returns the active ban covering addr, if any
func (s *DB) IsAddressBanned(addr netip.Addr, now time.Time) (*Ban, bool, error) {
	return s.findBan(now, func(b *Ban) bool { return b.Matches(addr, "") })
}

// IsHashBanned returns the active ban on a certificate hash, if any
func (s *DB) IsHashBanned(hash string, now time.Time) (*Ban, bool, error) {
	if hash == "" {
		return nil, false, nil
	}
	return s.findBan(now, func(b *Ban) bool { return b.Hash == hash })
}

func (s *DB) findBan(now time.Time, match func(*Ban) bool) (*Ban, bool, error) {
	bans, err := s.ListBans()
	if err != nil {
		return nil, false, err
	}
	for _, b := range bans {
		if !b.Expired(now) && match(b) {
			return b, true, nil
		}
	}
	return nil, false, nil
}

// PurgeExpiredBans deletes bans that ran out before now
func (s *DB) PurgeExpiredBans(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM bans WHERE duration > 0 AND start + duration <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge bans: %w", err)
	}
	return res.RowsAffected()
}

const insertBan = `INSERT INTO bans (address, mask, name, hash, reason, start, duration) VALUES (?, ?, ?, ?, ?, ?, ?)`

func banArgs(b *Ban) []any {
	var addr []byte
	if b.Address.IsValid() {
		addr = addressBytes(b.Address)
	}
	return []any{addr, b.Bits, b.Name, b.Hash, b.Reason, timeUnix(b.Start), int64(b.Duration / time.Second)}
}

func validateBan(b *Ban) error {
	if !b.Address.IsValid() && b.Hash == "" {
		return fmt.Errorf("ban needs an address or a certificate hash")
	}
	if b.Address.IsValid() {
		if b.Bits == 0 {
			b.Bits = 128
		}
		if b.Bits < 0 || b.Bits > 128 {
			return fmt.Errorf("invalid ban mask %d", b.Bits)
		}
	}
	if b.Start.IsZero() {
		b.Start = time.Now()
	}
	return nil
}
