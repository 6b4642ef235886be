package irc

import "time"

// ServerConfig identifies one IRC server a bot may connect to.
type ServerConfig struct {
	Host string
	Port int
	TLS  bool
}

// NetworkOptions holds the per-bot configuration a config loader (outside
// this module's scope) would populate: channels to auto-join, OPER/CHALLENGE
// and services-OPER credentials, account/SASL credentials, the bot command
// prefix, permission grants, and the candidate server list. Loading this
// from a file or environment is left to the caller; this struct only
// describes the shape Config expects.
type NetworkOptions struct {
	// Channels lists channels to join after registration, each either
	// "#name" or "#name key".
	Channels []string

	// OperName and OperPassword are credentials for a plain-text /OPER.
	// ChallengeKeyFile and ChallengeKeyPassword select an RSA private key
	// (PEM, optionally passphrase-protected) for /CHALLENGE instead.
	OperName             string
	OperPassword         string
	ChallengeKeyFile     string
	ChallengeKeyPassword string

	// ServiceOperPassword and ServiceOperCommand configure a best-effort
	// services-OPER raw line. ServiceOperCommand is a template containing
	// the literal placeholder "{password}".
	ServiceOperPassword string
	ServiceOperCommand  string

	// JoinTimeout bounds how long auto-join waits for each channel's JOIN
	// echo or rejection numeric before giving up on that channel.
	JoinTimeout time.Duration

	// CommandPrefix triggers dispatcher bot-command parsing when a PRIVMSG
	// body starts with it (default "!") or with "<nick>:".
	CommandPrefix string

	AccountName             string
	AccountPassword         string
	AccountCertificateFile  string
	ImpersonateAccount      string
	AllowInsecureSASLPlain  bool

	// Permissions maps an authenticated account name to the permission
	// strings granted to it, consulted by the dispatcher's privilege gate.
	Permissions map[string][]string

	// Servers lists candidate servers to dial, in preference order.
	Servers []ServerConfig
}

// Config is the top-level configuration a bot process loads before
// constructing a Client. DefaultConfig fills in the documented defaults;
// callers typically start from it and override individual fields.
type Config struct {
	Nickname string
	Username string
	Realname string

	Network NetworkOptions
}

// DefaultConfig returns a Config with the defaults named in the external
// interfaces: a 30-second join timeout and "!" as the command prefix.
func DefaultConfig() Config {
	return Config{
		Network: NetworkOptions{
			JoinTimeout:   30 * time.Second,
			CommandPrefix: "!",
		},
	}
}
