package state

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// NetworkInfo carries the network-level facts a session learns from
// RPL_ISUPPORT and the welcome sequence: casemapping, channel/status
// prefixes, and any other 005 tokens a caller wants to remember.
type NetworkInfo struct {
	Name           string
	CaseMapping    CaseMapping
	ChanTypes      string // CHANTYPES, e.g. "#&"
	StatusPrefixes string // PREFIX's symbol half, e.g. "@+"
	Tokens         map[string]string
}

// DefaultNetworkInfo returns the RFC 2812 defaults a session should assume
// before RPL_ISUPPORT arrives.
func DefaultNetworkInfo() NetworkInfo {
	return NetworkInfo{
		CaseMapping:    CaseMapRFC1459,
		ChanTypes:      "#&",
		StatusPrefixes: "@+",
		Tokens:         make(map[string]string),
	}
}

// Store is the network state store: the set of known users and channels,
// keyed by their casefolded name so lookups are correct regardless of the
// casemapping the network uses. A Store is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	net NetworkInfo

	usersByFoldedNick map[string]*UserRecord
	usersByID         map[uuid.UUID]*UserRecord

	channels map[string]*ChannelRecord
}

// NewStore constructs an empty Store for the given network info.
func NewStore(net NetworkInfo) *Store {
	return &Store{
		net:               net,
		usersByFoldedNick: make(map[string]*UserRecord),
		usersByID:         make(map[uuid.UUID]*UserRecord),
		channels:          make(map[string]*ChannelRecord),
	}
}

// SetNetworkInfo replaces the store's NetworkInfo, e.g. after parsing a new
// RPL_ISUPPORT line. When net.CaseMapping differs from the store's current
// mapping, every existing user and channel is rekeyed under the new fold
// via RekeyAll before the new info takes effect, so no entry is ever
// indexed under a stale fold.
func (s *Store) SetNetworkInfo(net NetworkInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if net.CaseMapping != s.net.CaseMapping {
		s.rekeyAllLocked(net.CaseMapping)
	}
	s.net = net
}

// RekeyAll recomputes every user and channel's casefolded key (and the
// folded keys embedded in membership maps) under cm, then makes cm the
// store's active CaseMapping. Use this directly when changing casemapping
// without otherwise touching NetworkInfo; SetNetworkInfo calls it
// automatically when the new info's CaseMapping differs from the current
// one.
func (s *Store) RekeyAll(cm CaseMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rekeyAllLocked(cm)
	s.net.CaseMapping = cm
}

func (s *Store) rekeyAllLocked(cm CaseMapping) {
	rekeyed := make(map[string]*UserRecord, len(s.usersByFoldedNick))
	for _, u := range s.usersByFoldedNick {
		u.cm = cm
		u.folded = cm.Fold(u.Nick)
		rekeyed[u.folded] = u
	}
	s.usersByFoldedNick = rekeyed

	rekeyedChannels := make(map[string]*ChannelRecord, len(s.channels))
	for _, c := range s.channels {
		c.cm = cm
		c.folded = cm.Fold(c.Name)
		rekeyedChannels[c.folded] = c
	}
	s.channels = rekeyedChannels

	// member maps key users by *UserRecord and channels by folded name in
	// UserRecord.Channels, so the folded UserRecord/ChannelRecord fields
	// above already keep Members consistent; only the Channels map's
	// string keys need rebuilding.
	for _, u := range s.usersByFoldedNick {
		rebuilt := make(map[string]*ChannelRecord, len(u.Channels))
		for _, c := range u.Channels {
			rebuilt[c.folded] = c
		}
		u.Channels = rebuilt
	}
}

// NetworkInfo returns the store's current NetworkInfo.
func (s *Store) NetworkInfo() NetworkInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.net
}

// GetOrAddUser returns the UserRecord for nick, creating one if it doesn't
// already exist under the network's current casemapping. A non-empty
// ident/host is recorded on the record whether it was just created or
// already existed, since WHO/WHOIS/JOIN replies often fill these in after
// the user was first observed under a bare nick (e.g. from RPL_NAMREPLY).
func (s *Store) GetOrAddUser(nick, ident, host string) *UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	folded := s.net.CaseMapping.Fold(nick)
	u, ok := s.usersByFoldedNick[folded]
	if !ok {
		u = NewUserRecord(nick, s.net.CaseMapping)
		s.usersByFoldedNick[folded] = u
		s.usersByID[u.ID] = u
	}
	if ident != "" {
		u.User = ident
	}
	if host != "" {
		u.Host = host
	}
	return u
}

// GetUserByNick looks up a user by their current nickname.
func (s *Store) GetUserByNick(nick string) (*UserRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByFoldedNick[s.net.CaseMapping.Fold(nick)]
	return u, ok
}

// GetUsersByAccount returns every known user currently logged in to the
// given services account.
func (s *Store) GetUsersByAccount(account string) []*UserRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*UserRecord
	for _, u := range s.usersByFoldedNick {
		if u.Account == account {
			out = append(out, u)
		}
	}
	return out
}

// RenameUser moves a user from oldNick to newNick, rekeying the store's
// index so subsequent lookups by either nick behave correctly: oldNick no
// longer resolves, newNick does.
func (s *Store) RenameUser(oldNick, newNick string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldFolded := s.net.CaseMapping.Fold(oldNick)
	u, ok := s.usersByFoldedNick[oldFolded]
	if !ok {
		return fmt.Errorf("state: rename: no such user %q", oldNick)
	}
	newFolded := s.net.CaseMapping.Fold(newNick)
	if newFolded != oldFolded {
		if _, collide := s.usersByFoldedNick[newFolded]; collide {
			return fmt.Errorf("state: rename: %q already in use", newNick)
		}
		delete(s.usersByFoldedNick, oldFolded)
		s.usersByFoldedNick[newFolded] = u
	}
	u.rename(newNick)
	return nil
}

// RemoveUser deletes a user from the store (e.g. on QUIT), removing them
// from every channel they were a member of.
func (s *Store) RemoveUser(nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	folded := s.net.CaseMapping.Fold(nick)
	u, ok := s.usersByFoldedNick[folded]
	if !ok {
		return
	}
	for _, ch := range u.Channels {
		delete(ch.Members, u)
	}
	delete(s.usersByID, u.ID)
	delete(s.usersByFoldedNick, folded)
}

// AddMember records that user is present in channel with the given
// membership prefixes (e.g. "@" for op), keeping both ch.Members and
// user.Channels in sync so the two can never disagree about membership.
func (s *Store) AddMember(ch *ChannelRecord, user *UserRecord, prefixes string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch.Members[user] = prefixes
	user.Channels[ch.FoldedName()] = ch
}

// RemoveMember undoes AddMember, e.g. on PART or KICK.
func (s *Store) RemoveMember(ch *ChannelRecord, user *UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(ch.Members, user)
	delete(user.Channels, ch.FoldedName())
}

// GetOrAddChannel returns the ChannelRecord for name, creating one if it
// doesn't already exist.
func (s *Store) GetOrAddChannel(name string) *ChannelRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	folded := s.net.CaseMapping.Fold(name)
	if c, ok := s.channels[folded]; ok {
		return c
	}
	c := NewChannelRecord(name, s.net.CaseMapping)
	s.channels[folded] = c
	return c
}

// GetChannel looks up a channel by name.
func (s *Store) GetChannel(name string) (*ChannelRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[s.net.CaseMapping.Fold(name)]
	return c, ok
}

// RenameChannel moves a channel from oldName to newName, per the
// draft/channel-rename IRCv3 extension. See DESIGN.md for why this is
// implemented as an explicit store operation rather than a remove+re-add:
// a rename must preserve the existing ChannelRecord (topic, modes, member
// list) at its new key, where a remove+re-add would lose that state.
func (s *Store) RenameChannel(oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldFolded := s.net.CaseMapping.Fold(oldName)
	c, ok := s.channels[oldFolded]
	if !ok {
		return fmt.Errorf("state: rename channel: no such channel %q", oldName)
	}
	newFolded := s.net.CaseMapping.Fold(newName)
	if newFolded != oldFolded {
		if _, collide := s.channels[newFolded]; collide {
			return fmt.Errorf("state: rename channel: %q already in use", newName)
		}
		delete(s.channels, oldFolded)
		s.channels[newFolded] = c
	}
	c.rename(newName)
	for u := range c.Members {
		delete(u.Channels, oldFolded)
		u.Channels[c.folded] = c
	}
	return nil
}

// RemoveChannel deletes a channel from the store (e.g. after PART/KICK of
// our own client), clearing it from every remaining member's Channels map.
func (s *Store) RemoveChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	folded := s.net.CaseMapping.Fold(name)
	if c, ok := s.channels[folded]; ok {
		for u := range c.Members {
			delete(u.Channels, folded)
		}
	}
	delete(s.channels, folded)
}

// ClearAll empties the store, used when a session reconnects and must
// discard all previously tracked state.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersByFoldedNick = make(map[string]*UserRecord)
	s.usersByID = make(map[uuid.UUID]*UserRecord)
	s.channels = make(map[string]*ChannelRecord)
}
