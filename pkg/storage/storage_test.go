package storage

import (
	"errors"
	"net/netip"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenWithCleanup(filepath.Join(t.TempDir(), "voice.db"), 0, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRegisterAndLookupUsers(t *testing.T) {
	db := openTestDB(t)

	alice, err := db.RegisterUser("Alice", "hunter2", "")
	if err != nil {
		t.Fatalf("RegisterUser() error = %v", err)
	}
	if alice.ID < 1 || alice.Name != "Alice" || !alice.HasPassword {
		t.Errorf("RegisterUser() = %+v", alice)
	}

	if _, err := db.RegisterUser("alice", "x", ""); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate RegisterUser() error = %v, want ErrUserExists", err)
	}
	if _, err := db.RegisterUser("  ", "x", ""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("blank RegisterUser() error = %v, want ErrInvalidName", err)
	}

	got, err := db.UserByName("ALICE")
	if err != nil || got.ID != alice.ID {
		t.Errorf("UserByName() = %+v, %v", got, err)
	}
	if _, err := db.UserByName("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UserByName(nobody) error = %v, want ErrNotFound", err)
	}

	bob, err := db.RegisterUser("Bob", "", "abc123")
	if err != nil {
		t.Fatalf("RegisterUser(Bob) error = %v", err)
	}
	if bob.HasPassword {
		t.Error("certificate-only user reports a password")
	}
	byCert, err := db.UserByCertHash("abc123")
	if err != nil || byCert.ID != bob.ID {
		t.Errorf("UserByCertHash() = %+v, %v", byCert, err)
	}

	byID, err := db.UsersByIDs([]int64{alice.ID, bob.ID, 999})
	if err != nil || len(byID) != 2 {
		t.Errorf("UsersByIDs() = %v, %v", byID, err)
	}
	byName, err := db.UsersByNames([]string{"bob", "carol"})
	if err != nil || len(byName) != 1 || byName["bob"].ID != bob.ID {
		t.Errorf("UsersByNames() = %v, %v", byName, err)
	}

	all, err := db.ListUsers("")
	if err != nil || len(all) != 2 {
		t.Errorf("ListUsers() = %v, %v", all, err)
	}
	filtered, err := db.ListUsers("LI")
	if err != nil || len(filtered) != 1 || filtered[0].Name != "Alice" {
		t.Errorf("ListUsers(LI) = %v, %v", filtered, err)
	}
}

func TestCheckPassword(t *testing.T) {
	db := openTestDB(t)
	u, err := db.RegisterUser("carol", "correct horse", "")
	if err != nil {
		t.Fatalf("RegisterUser() error = %v", err)
	}

	tests := []struct {
		name     string
		id       int64
		password string
		want     error
	}{
		{"match", u.ID, "correct horse", nil},
		{"mismatch", u.ID, "battery staple", ErrInvalidPassword},
		{"empty", u.ID, "", ErrInvalidPassword},
		{"unknown user", 4242, "x", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := db.CheckPassword(tt.id, tt.password); !errors.Is(err, tt.want) {
				t.Errorf("CheckPassword() error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := db.SetPassword(u.ID, "new"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	if err := db.CheckPassword(u.ID, "new"); err != nil {
		t.Errorf("CheckPassword(new) error = %v", err)
	}
	if err := db.SetPassword(u.ID, ""); err != nil {
		t.Fatalf("SetPassword(\"\") error = %v", err)
	}
	if err := db.CheckPassword(u.ID, "new"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("cleared password still matches: %v", err)
	}
}

func TestSuperUser(t *testing.T) {
	db := openTestDB(t)

	if err := db.EnsureSuperUser(""); err != nil {
		t.Fatalf("EnsureSuperUser() error = %v", err)
	}
	su, err := db.UserByID(SuperUserID)
	if err != nil || su.Name != SuperUserName || su.HasPassword {
		t.Fatalf("UserByID(0) = %+v, %v", su, err)
	}

	if err := db.EnsureSuperUser("admin"); err != nil {
		t.Fatalf("EnsureSuperUser(admin) error = %v", err)
	}
	if err := db.CheckPassword(SuperUserID, "admin"); err != nil {
		t.Errorf("CheckPassword(SuperUser) error = %v", err)
	}

	u, err := db.RegisterUser("dave", "x", "")
	if err != nil || u.ID != 1 {
		t.Errorf("first regular user = %+v, %v; want id 1", u, err)
	}

	if err := db.DeleteUser(SuperUserID); err == nil {
		t.Error("DeleteUser(SuperUser) succeeded")
	}
	if err := db.DeleteUser(u.ID); err != nil {
		t.Errorf("DeleteUser() error = %v", err)
	}
	if err := db.DeleteUser(u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteUser() error = %v, want ErrNotFound", err)
	}
}

func TestUserUpdates(t *testing.T) {
	db := openTestDB(t)
	u, _ := db.RegisterUser("erin", "pw", "")
	seen := time.Unix(1_700_000_000, 0)

	if err := db.TouchUser(u.ID, 3, seen); err != nil {
		t.Fatalf("TouchUser() error = %v", err)
	}
	if err := db.SetComment(u.ID, "hello"); err != nil {
		t.Fatalf("SetComment() error = %v", err)
	}
	if err := db.BindCertificate(u.ID, "feed"); err != nil {
		t.Fatalf("BindCertificate() error = %v", err)
	}
	if err := db.RenameUser(u.ID, "Erin2"); err != nil {
		t.Fatalf("RenameUser() error = %v", err)
	}

	got, err := db.UserByCertHash("feed")
	if err != nil {
		t.Fatalf("UserByCertHash() error = %v", err)
	}
	if got.Name != "Erin2" || got.Comment != "hello" || got.LastChannel != 3 || !got.LastSeen.Equal(seen) {
		t.Errorf("updated user = %+v", got)
	}

	if err := db.TouchUser(999, 0, seen); !errors.Is(err, ErrNotFound) {
		t.Errorf("TouchUser(unknown) error = %v, want ErrNotFound", err)
	}
	other, _ := db.RegisterUser("frank", "", "")
	if err := db.RenameUser(other.ID, "erin2"); !errors.Is(err, ErrUserExists) {
		t.Errorf("RenameUser(taken) error = %v, want ErrUserExists", err)
	}
}

func TestBans(t *testing.T) {
	db := openTestDB(t)
	now := time.Unix(1_700_000_000, 0)

	subnet, err := db.AddBan(Ban{
		Address: netip.MustParseAddr("::ffff:192.0.2.0"),
		Bits:    120,
		Reason:  "spam",
		Start:   now,
	})
	if err != nil {
		t.Fatalf("AddBan() error = %v", err)
	}
	if _, err := db.AddBan(Ban{Hash: "deadbeef", Start: now, Duration: time.Hour}); err != nil {
		t.Fatalf("AddBan(hash) error = %v", err)
	}
	if _, err := db.AddBan(Ban{Reason: "nothing"}); err == nil {
		t.Error("AddBan() without address or hash succeeded")
	}

	addrTests := []struct {
		addr   string
		banned bool
	}{
		{"192.0.2.77", true},
		{"::ffff:192.0.2.1", true},
		{"192.0.3.1", false},
		{"2001:db8::1", false},
	}
	for _, tt := range addrTests {
		ban, banned, err := db.IsAddressBanned(netip.MustParseAddr(tt.addr), now)
		if err != nil {
			t.Fatalf("IsAddressBanned(%s) error = %v", tt.addr, err)
		}
		if banned != tt.banned {
			t.Errorf("IsAddressBanned(%s) = %v, want %v", tt.addr, banned, tt.banned)
		}
		if banned && ban.ID != subnet.ID {
			t.Errorf("IsAddressBanned(%s) matched ban %d", tt.addr, ban.ID)
		}
	}

	if _, banned, _ := db.IsHashBanned("deadbeef", now.Add(30*time.Minute)); !banned {
		t.Error("hash ban not active within its duration")
	}
	if _, banned, _ := db.IsHashBanned("deadbeef", now.Add(2*time.Hour)); banned {
		t.Error("expired hash ban still active")
	}

	purged, err := db.PurgeExpiredBans(now.Add(2 * time.Hour))
	if err != nil || purged != 1 {
		t.Errorf("PurgeExpiredBans() = %d, %v; want 1", purged, err)
	}
	bans, _ := db.ListBans()
	if len(bans) != 1 || bans[0].Reason != "spam" || bans[0].Bits != 120 {
		t.Errorf("ListBans() after purge = %+v", bans)
	}
}

func TestReplaceBans(t *testing.T) {
	db := openTestDB(t)
	db.AddBan(Ban{Hash: "old"})

	err := db.ReplaceBans([]Ban{
		{Address: netip.MustParseAddr("2001:db8::"), Bits: 32, Name: "net"},
		{Hash: "new", Reason: "abuse"},
	})
	if err != nil {
		t.Fatalf("ReplaceBans() error = %v", err)
	}
	bans, err := db.ListBans()
	if err != nil || len(bans) != 2 {
		t.Fatalf("ListBans() = %v, %v", bans, err)
	}
	if bans[0].Name != "net" || bans[1].Hash != "new" {
		t.Errorf("ListBans() = %+v, %+v", bans[0], bans[1])
	}

	if err := db.ReplaceBans([]Ban{{Hash: "keep"}, {}}); err == nil {
		t.Error("ReplaceBans() with an invalid entry succeeded")
	}
	if bans, _ := db.ListBans(); len(bans) != 2 {
		t.Errorf("invalid ReplaceBans() modified the list: %+v", bans)
	}

	if err := db.DeleteBan(bans[0].ID); err != nil {
		t.Errorf("DeleteBan() error = %v", err)
	}
	if err := db.DeleteBan(bans[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteBan() error = %v, want ErrNotFound", err)
	}
}

func TestCleanerStopsOnClose(t *testing.T) {
	db, err := OpenWithCleanup(":memory:", time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := db.AddBan(Ban{Hash: "x", Start: time.Now().Add(-time.Hour), Duration: time.Second}); err != nil {
		t.Fatalf("AddBan() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		bans, err := db.ListBans()
		if err != nil {
			t.Fatalf("ListBans() error = %v", err)
		}
		if len(bans) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expired ban was not cleaned up")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
