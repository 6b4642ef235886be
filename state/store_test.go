package state

import "testing"

func TestGetOrAddUserIsIdempotent(t *testing.T) {
	s := NewStore(DefaultNetworkInfo())
	a := s.GetOrAddUser("Alice", "", "")
	b := s.GetOrAddUser("alice", "", "")
	if a.ID != b.ID {
		t.Error("expected GetOrAddUser to return the same record regardless of case")
	}
}

func TestGetOrAddUserFillsIdentAndHost(t *testing.T) {
	s := NewStore(DefaultNetworkInfo())
	s.GetOrAddUser("Alice", "", "")
	u := s.GetOrAddUser("Alice", "alice", "host.example")

	if u.User != "alice" || u.Host != "host.example" {
		t.Errorf("expected ident/host to be filled in on an existing record, got %q/%q", u.User, u.Host)
	}
}

func TestRenameUserRekeysIndex(t *testing.T) {
	s := NewStore(DefaultNetworkInfo())
	u := s.GetOrAddUser("Alice", "", "")

	if err := s.RenameUser("Alice", "Alicia"); err != nil {
		t.Fatalf("RenameUser: %v", err)
	}
	if _, ok := s.GetUserByNick("Alice"); ok {
		t.Error("old nick should no longer resolve")
	}
	got, ok := s.GetUserByNick("Alicia")
	if !ok || got.ID != u.ID {
		t.Error("new nick should resolve to the same user")
	}
}

func TestRenameUserRejectsCollision(t *testing.T) {
	s := NewStore(DefaultNetworkInfo())
	s.GetOrAddUser("Alice", "", "")
	s.GetOrAddUser("Bob", "", "")

	if err := s.RenameUser("Alice", "Bob"); err == nil {
		t.Error("expected collision error renaming onto an existing nick")
	}
}

func TestRenameChannelPreservesState(t *testing.T) {
	s := NewStore(DefaultNetworkInfo())
	c := s.GetOrAddChannel("#old")
	c.Topic = "hello"
	alice := s.GetOrAddUser("alice", "", "")
	s.AddMember(c, alice, "@")

	if err := s.RenameChannel("#old", "#new"); err != nil {
		t.Fatalf("RenameChannel: %v", err)
	}
	got, ok := s.GetChannel("#new")
	if !ok {
		t.Fatal("renamed channel should be findable under its new name")
	}
	if got.Topic != "hello" || got.Members[alice] != "@" {
		t.Error("rename should preserve topic and member state")
	}
	if _, ok := s.GetChannel("#old"); ok {
		t.Error("old channel name should no longer resolve")
	}
	if alice.Channels[got.FoldedName()] != got {
		t.Error("rename should keep the member's Channels map pointed at the renamed record")
	}
}

func TestAddMemberMaintainsBidirectionalMembership(t *testing.T) {
	s := NewStore(DefaultNetworkInfo())
	c := s.GetOrAddChannel("#chan")
	alice := s.GetOrAddUser("alice", "", "")

	s.AddMember(c, alice, "@")
	if c.Members[alice] != "@" {
		t.Error("expected AddMember to record the member on the channel")
	}
	if alice.Channels[c.FoldedName()] != c {
		t.Error("expected AddMember to record the channel on the user")
	}

	s.RemoveMember(c, alice)
	if _, ok := c.Members[alice]; ok {
		t.Error("expected RemoveMember to drop the member from the channel")
	}
	if _, ok := alice.Channels[c.FoldedName()]; ok {
		t.Error("expected RemoveMember to drop the channel from the user")
	}
}

func TestRemoveUserClearsMembership(t *testing.T) {
	s := NewStore(DefaultNetworkInfo())
	c := s.GetOrAddChannel("#chan")
	alice := s.GetOrAddUser("alice", "", "")
	s.AddMember(c, alice, "")

	s.RemoveUser("alice")

	if _, ok := c.Members[alice]; ok {
		t.Error("expected RemoveUser to remove the user from every channel they were in")
	}
	if _, ok := s.GetUserByNick("alice"); ok {
		t.Error("expected RemoveUser to remove the user from the store")
	}
}

func TestClearAllEmptiesStore(t *testing.T) {
	s := NewStore(DefaultNetworkInfo())
	s.GetOrAddUser("Alice", "", "")
	s.GetOrAddChannel("#chan")
	s.ClearAll()

	if _, ok := s.GetUserByNick("Alice"); ok {
		t.Error("ClearAll should remove users")
	}
	if _, ok := s.GetChannel("#chan"); ok {
		t.Error("ClearAll should remove channels")
	}
}

// TestCaseMappingChangeRekeysExistingRecords covers spec boundary scenario
// #5: given CASEMAPPING=ascii, adding "Foo[bar]" then switching to rfc1459
// (which folds '[' to the same bucket as '{') must make the user findable
// under "foo{BAR}" without the caller re-adding anything.
func TestCaseMappingChangeRekeysExistingRecords(t *testing.T) {
	net := DefaultNetworkInfo()
	net.CaseMapping = CaseMapASCII
	s := NewStore(net)

	u := s.GetOrAddUser("Foo[bar]", "", "")
	if _, ok := s.GetUserByNick("foo[bar]"); !ok {
		t.Fatal("expected ascii folding to match Foo[bar] case-insensitively before any rekey")
	}

	s.RekeyAll(CaseMapRFC1459)

	got, ok := s.GetUserByNick("foo{BAR}")
	if !ok {
		t.Fatal("expected rfc1459 folding to match foo{BAR} against Foo[bar] after RekeyAll")
	}
	if got.ID != u.ID {
		t.Error("expected the rekeyed lookup to resolve to the original user record")
	}
	if s.NetworkInfo().CaseMapping != CaseMapRFC1459 {
		t.Error("expected RekeyAll to update the store's active CaseMapping")
	}
}

// TestSetNetworkInfoRekeysOnCaseMappingChange covers the same scenario via
// the path a real RPL_ISUPPORT handler takes: SetNetworkInfo, not a direct
// RekeyAll call.
func TestSetNetworkInfoRekeysOnCaseMappingChange(t *testing.T) {
	net := DefaultNetworkInfo()
	net.CaseMapping = CaseMapASCII
	s := NewStore(net)
	s.GetOrAddUser("Foo[bar]", "", "")

	updated := s.NetworkInfo()
	updated.CaseMapping = CaseMapRFC1459
	s.SetNetworkInfo(updated)

	if _, ok := s.GetUserByNick("foo{BAR}"); !ok {
		t.Fatal("expected SetNetworkInfo to rekey existing users when CaseMapping changes")
	}
}
