package state

import "github.com/google/uuid"

// UserRecord tracks what a session knows about another user on the
// network. Its stable identity is an opaque UUID rather than the
// nickname, since nicknames change and casemapping rules mean the same
// logical user can be looked up under multiple string forms.
type UserRecord struct {
	// ID is a stable identity for this user for the lifetime of the
	// session's connection, surviving nick changes.
	ID uuid.UUID

	Nick     string
	User     string
	Host     string
	Realname string
	Account  string // the services account name, or "" if not logged in
	Away     bool

	// Modes holds the user's own mode letters (e.g. 'i', 'w'), as reported
	// by a WHO/WHOX flags field or a MODE targeting the client itself.
	Modes map[byte]bool

	// Channels maps a folded channel name to the ChannelRecord the user is
	// currently a member of. A channel appears here iff this UserRecord
	// appears in that ChannelRecord's Members map; Store.AddMember and
	// Store.RemoveMember keep both sides in sync, so callers should never
	// mutate this map directly.
	Channels map[string]*ChannelRecord

	folded string // cached casefolded nick, kept in sync by rename
	cm     CaseMapping
}

// NewUserRecord constructs a UserRecord for nick, casefolded under cm.
func NewUserRecord(nick string, cm CaseMapping) *UserRecord {
	return &UserRecord{
		ID:       uuid.New(),
		Nick:     nick,
		Modes:    make(map[byte]bool),
		Channels: make(map[string]*ChannelRecord),
		folded:   cm.Fold(nick),
		cm:       cm,
	}
}

// FoldedNick returns the casefolded form of the user's current nickname,
// the key used to look the user up in a Store.
func (u *UserRecord) FoldedNick() string {
	return u.folded
}

// rename updates the user's nickname and its cached folded form. Callers
// should go through Store.RenameUser rather than calling this directly, so
// the store's index stays consistent.
func (u *UserRecord) rename(newNick string) {
	u.Nick = newNick
	u.folded = u.cm.Fold(newNick)
}
