package state

// ChannelRecord tracks what a session knows about a joined channel: its
// name, topic, modes, and the set of members present.
type ChannelRecord struct {
	Name  string
	Topic string
	Modes map[byte]string // mode letter -> parameter, or "" for valueless modes

	// Members maps a member's UserRecord to their membership prefixes
	// (e.g. "@" for op, "+" for voice), most-privileged first. A
	// UserRecord appears here iff this channel's folded name appears in
	// that UserRecord's Channels map; Store.AddMember and
	// Store.RemoveMember keep both sides in sync, so callers should
	// never mutate this map directly.
	Members map[*UserRecord]string

	folded string
	cm     CaseMapping
}

// NewChannelRecord constructs a ChannelRecord for name, casefolded under cm.
func NewChannelRecord(name string, cm CaseMapping) *ChannelRecord {
	return &ChannelRecord{
		Name:    name,
		Modes:   make(map[byte]string),
		Members: make(map[*UserRecord]string),
		folded:  cm.Fold(name),
		cm:      cm,
	}
}

// FoldedName returns the casefolded channel name, the key used to look the
// channel up in a Store.
func (c *ChannelRecord) FoldedName() string {
	return c.folded
}

// MemberByNick looks up a member of the channel by nickname, folded under
// the channel's current casemapping. Convenience wrapper over Members for
// callers that only have a nick string (e.g. from a NAMES/WHO reply).
func (c *ChannelRecord) MemberByNick(nick string) (*UserRecord, string, bool) {
	folded := c.cm.Fold(nick)
	for u, prefix := range c.Members {
		if u.FoldedNick() == folded {
			return u, prefix, true
		}
	}
	return nil, "", false
}

// rename updates the channel's name and cached folded form, used for
// draft/channel-rename support. Callers should go through
// Store.RenameChannel rather than calling this directly.
func (c *ChannelRecord) rename(newName string) {
	c.Name = newName
	c.folded = c.cm.Fold(newName)
}
