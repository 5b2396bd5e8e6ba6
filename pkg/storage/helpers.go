package storage

import (
	"net/netip"
	"strings"
	"time"
)

// ===== HELPER FUNCTIONS =====

// nameKey folds a user name for the case-insensitive unique index
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// addressBytes stores addresses in their 16-byte IPv6 form, so IPv4 bans
// use IPv4-mapped addresses and masks of 96 bits and up
func addressBytes(addr netip.Addr) []byte {
	b := addr.As16()
	return b[:]
}

func bytesAddress(b []byte) (netip.Addr, bool) {
	if len(b) != 16 {
		return netip.Addr{}, false
	}
	return netip.AddrFrom16([16]byte(b)), true
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func timeUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
