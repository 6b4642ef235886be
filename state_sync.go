package irc

import (
	"strconv"
	"strings"

	"github.com/SkizNet/netwolf/state"
)

// storeSync keeps a state.Store in sync with the messages a session
// receives: RPL_ISUPPORT network facts, channel membership from
// JOIN/PART/KICK/RPL_NAMREPLY, and nickname changes, the same way
// clientState.middleware in client.go keeps the connection's own
// nick/user/host in sync but generalized to every user and channel the
// session observes rather than just itself.
type storeSync struct {
	store *state.Store
}

func newStoreSync(s *state.Store) *storeSync {
	return &storeSync{store: s}
}

func (s *storeSync) middleware(next Handler) Handler {
	return HandlerFunc(func(mw MessageWriter, m *Message) {
		switch m.Command {
		case RplISupport:
			s.handleISupport(m)
		case CmdJoin:
			s.handleJoin(m)
		case CmdPart:
			s.handlePart(m)
		case CmdKick:
			s.handleKick(m)
		case CmdQuit:
			s.handleQuit(m)
		case CmdNick:
			s.handleNick(m)
		case RplNamReply:
			s.handleNames(m)
		case RplWhoReply:
			s.handleWho(m)
		case RplWhoSpcRpl:
			s.handleWhoX(m)
		case CmdTopic:
			s.handleTopic(m)
		}
		next.SpeakIRC(mw, m)
	})
}

// handleISupport folds RPL_ISUPPORT tokens (CASEMAPPING, CHANTYPES, PREFIX)
// into the store's NetworkInfo. Unrecognized tokens are kept verbatim in
// NetworkInfo.Tokens for callers that need raw 005 values.
func (s *storeSync) handleISupport(m *Message) {
	net := s.store.NetworkInfo()
	for i := 2; i < len(m.Params); i++ {
		tok := m.Params.Get(i)
		key, val, _ := strings.Cut(tok, "=")
		net.Tokens[key] = val
		switch key {
		case "CASEMAPPING":
			net.CaseMapping = state.ParseCaseMapping(val)
		case "CHANTYPES":
			net.ChanTypes = val
		case "PREFIX":
			if _, symbols, ok := strings.Cut(val, ")"); ok {
				net.StatusPrefixes = symbols
			}
		case "NETWORK":
			net.Name = val
		}
	}
	s.store.SetNetworkInfo(net)
}

// handleJoin folds a JOIN into the store. With extended-join enabled, the
// message carries two extra params: the joiner's services account ("*" if
// none) and their realname, both of which we record on the UserRecord if
// present.
func (s *storeSync) handleJoin(m *Message) {
	ch := s.store.GetOrAddChannel(m.Params.Get(1))
	u := s.store.GetOrAddUser(m.Source.Nick.String(), m.Source.User, m.Source.Host)
	if len(m.Params) >= 3 {
		if account := m.Params.Get(2); account != "*" {
			u.Account = account
		}
	}
	if len(m.Params) >= 3 {
		u.Realname = m.Params.Get(3)
	}
	s.store.AddMember(ch, u, "")
}

func (s *storeSync) handlePart(m *Message) {
	ch, ok := s.store.GetChannel(m.Params.Get(1))
	if !ok {
		return
	}
	if u, ok := s.store.GetUserByNick(m.Source.Nick.String()); ok {
		s.store.RemoveMember(ch, u)
	}
}

func (s *storeSync) handleKick(m *Message) {
	ch, ok := s.store.GetChannel(m.Params.Get(1))
	if !ok {
		return
	}
	if u, ok := s.store.GetUserByNick(m.Params.Get(2)); ok {
		s.store.RemoveMember(ch, u)
	}
}

func (s *storeSync) handleQuit(m *Message) {
	s.store.RemoveUser(m.Source.Nick.String())
}

func (s *storeSync) handleNick(m *Message) {
	_ = s.store.RenameUser(m.Source.Nick.String(), m.Params.Get(1))
}

// handleNames folds RPL_NAMREPLY ("353") members into the channel's
// Members map, stripping any leading status prefix symbols.
func (s *storeSync) handleNames(m *Message) {
	ch := s.store.GetOrAddChannel(m.Params.Get(3))
	prefixes := s.store.NetworkInfo().StatusPrefixes
	for _, nick := range strings.Fields(m.Params.Get(len(m.Params))) {
		mode := ""
		for len(nick) > 0 && strings.ContainsRune(prefixes, rune(nick[0])) {
			mode += string(nick[0])
			nick = nick[1:]
		}
		u := s.store.GetOrAddUser(nick, "", "")
		s.store.AddMember(ch, u, mode)
	}
}

// handleWho folds a single RPL_WHOREPLY (352) line into the store. The
// standard WHO format doesn't carry the services account, only a H/G
// away flag and the membership prefix symbols; both are merged onto the
// existing (or newly created) user/channel records.
func (s *storeSync) handleWho(m *Message) {
	// "<client> <channel> <ident> <host> <server> <nick> <flags> :<hopcount> <realname>"
	if len(m.Params) < 7 {
		return
	}
	channel := m.Params.Get(2)
	ident := m.Params.Get(3)
	host := m.Params.Get(4)
	nick := m.Params.Get(6)
	flags := m.Params.Get(7)
	_, realname, _ := strings.Cut(m.Params.Get(len(m.Params)), " ")

	u := s.store.GetOrAddUser(nick, ident, host)
	if realname != "" {
		u.Realname = realname
	}
	s.applyWhoFlags(u, flags)
	if channel != "*" {
		if ch, ok := s.store.GetChannel(channel); ok {
			s.store.AddMember(ch, u, whoFlagsToPrefix(flags, s.store.NetworkInfo().StatusPrefixes))
		}
	}
}

// handleWhoX folds a single RPL_WHOSPCRPL (354) line into the store. We
// always request WHOX with the "%tcuhnfar,<token>" field set (see
// autojoin.go), so the params are fixed (after the leading target nick):
// token, channel, ident, host, nick, flags, account, realname.
func (s *storeSync) handleWhoX(m *Message) {
	if len(m.Params) < 9 {
		return
	}
	channel := m.Params.Get(3)
	ident := m.Params.Get(4)
	host := m.Params.Get(5)
	nick := m.Params.Get(6)
	flags := m.Params.Get(7)
	account := m.Params.Get(8)
	realname := m.Params.Get(9)

	u := s.store.GetOrAddUser(nick, ident, host)
	if account != "0" && account != "*" {
		u.Account = account
	}
	if realname != "" {
		u.Realname = realname
	}
	s.applyWhoFlags(u, flags)
	if channel != "*" {
		if ch, ok := s.store.GetChannel(channel); ok {
			s.store.AddMember(ch, u, whoFlagsToPrefix(flags, s.store.NetworkInfo().StatusPrefixes))
		}
	}
}

// applyWhoFlags reads the leading H/G away indicator shared by both
// RPL_WHOREPLY and RPL_WHOSPCRPL's flags field.
func (s *storeSync) applyWhoFlags(u *state.UserRecord, flags string) {
	if len(flags) == 0 {
		return
	}
	u.Away = flags[0] == 'G'
}

// whoFlagsToPrefix extracts the membership-prefix symbols (e.g. "@+")
// embedded in a WHO/WHOX flags field, which follow the leading H/G/* and
// any trailing "*" (ircop) marker.
func whoFlagsToPrefix(flags, statusPrefixes string) string {
	var prefix strings.Builder
	for _, r := range flags {
		if strings.ContainsRune(statusPrefixes, r) {
			prefix.WriteRune(r)
		}
	}
	return prefix.String()
}

func (s *storeSync) handleTopic(m *Message) {
	if ch, ok := s.store.GetChannel(m.Params.Get(1)); ok {
		ch.Topic = m.Params.Get(2)
	}
}

// parseISupportInt is a small helper for numeric 005 tokens like
// CHANNELLEN or MODES that a caller might want as an int rather than a
// raw string from NetworkInfo.Tokens.
func parseISupportInt(tokens map[string]string, key string, def int) int {
	v, ok := tokens[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
