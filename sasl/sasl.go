// Package sasl implements the IRCv3 SASL mechanisms a client negotiates
// during capability negotiation: PLAIN, EXTERNAL, and the SCRAM family
// (SHA-1/256/512/3-512, with optional channel-binding "-PLUS" variants).
//
// Mechanisms are intentionally low-level: they exchange raw bytes, not
// base64. The caller (the session state machine) is responsible for
// base64-encoding each step's output before wrapping it in an AUTHENTICATE
// command, and for splitting payloads longer than 400 bytes across
// multiple AUTHENTICATE lines per the SASL capability spec.
package sasl

import (
	"context"
	"errors"
	"fmt"
)

// ErrDone is returned by Next when called after a mechanism has already
// completed its exchange; callers should treat this as a caller bug.
var ErrDone = errors.New("sasl: mechanism exchange already complete")

// ErrUnsupportedMechanism is returned by New for a name with no
// implementation.
var ErrUnsupportedMechanism = errors.New("sasl: unsupported mechanism")

// Credentials carries what a Mechanism needs to authenticate. Fields that
// don't apply to a given mechanism are ignored (e.g. Password for
// EXTERNAL).
type Credentials struct {
	// Authzid is the authorization identity to request, usually left
	// empty to request the identity implied by Authcid/the certificate.
	Authzid string

	// Authcid is the authentication identity: the account name.
	Authcid string

	// Password authenticates Authcid for PLAIN and the SCRAM family.
	Password string

	// ChannelBinding is the TLS channel-binding data (typically
	// tls-server-end-point) for "-PLUS" SCRAM variants. Nil/empty
	// disables channel binding.
	ChannelBinding []byte

	// ChannelBindingSupportedByServer records whether the client has
	// channel-binding data available (the IRC session sets it from
	// SASLConfig.ChannelBinding). SCRAM uses this to set the GS2 header
	// flag to "y" instead of "n" when a non-PLUS mechanism was selected.
	ChannelBindingSupportedByServer bool
}

// Mechanism drives one SASL authentication exchange. A Mechanism instance
// is single-use: construct a fresh one (via New) for each AUTHENTICATE
// exchange.
type Mechanism interface {
	// Name is the IRC-visible mechanism name, e.g. "SCRAM-SHA-256-PLUS".
	Name() string

	// Start returns the client's initial response. Per the SASL
	// capability spec this is sent as the first AUTHENTICATE payload
	// (after the server replies "+" to request it, for mechanisms that
	// don't send an initial response proactively).
	Start(ctx context.Context) ([]byte, error)

	// Next is called with the server's latest challenge and returns the
	// client's response. It returns ErrDone once the exchange has
	// completed and the server has only to confirm success/failure.
	Next(ctx context.Context, challenge []byte) ([]byte, error)

	// Done reports whether the mechanism has sent its final response and
	// is only waiting on the server's verdict.
	Done() bool
}

// New constructs a Mechanism for the named SASL mechanism. name is matched
// case-sensitively against the mechanism names the IRC SASL capability
// advertises (e.g. via the "sasl" CAP value or RPL_SASLMECHS).
func New(name string, creds Credentials) (Mechanism, error) {
	switch name {
	case "PLAIN":
		return &plainMechanism{creds: creds}, nil
	case "EXTERNAL":
		return &externalMechanism{creds: creds}, nil
	case "SCRAM-SHA-1":
		return newScram(scramSHA1, false, creds)
	case "SCRAM-SHA-1-PLUS":
		return newScram(scramSHA1, true, creds)
	case "SCRAM-SHA-256":
		return newScram(scramSHA256, false, creds)
	case "SCRAM-SHA-256-PLUS":
		return newScram(scramSHA256, true, creds)
	case "SCRAM-SHA-512":
		return newScram(scramSHA512, false, creds)
	case "SCRAM-SHA-512-PLUS":
		return newScram(scramSHA512, true, creds)
	case "SCRAM-SHA3-512":
		return newScram(scramSHA3_512, false, creds)
	case "SCRAM-SHA3-512-PLUS":
		return newScram(scramSHA3_512, true, creds)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMechanism, name)
	}
}

// Preference orders the mechanism names a client should try, strongest
// first. SelectMechanism picks the first entry present in offered.
var Preference = []string{
	"SCRAM-SHA3-512-PLUS",
	"SCRAM-SHA3-512",
	"SCRAM-SHA-512-PLUS",
	"SCRAM-SHA-512",
	"SCRAM-SHA-256-PLUS",
	"SCRAM-SHA-256",
	"SCRAM-SHA-1-PLUS",
	"SCRAM-SHA-1",
	"EXTERNAL",
	"PLAIN",
}

// SelectMechanism picks the strongest mutually-supported mechanism from
// offered (the server's advertised list), restricted to candidates the
// caller can actually attempt: EXTERNAL requires haveClientCert, and the
// "-PLUS" variants require haveChannelBinding.
func SelectMechanism(offered []string, haveClientCert, haveChannelBinding bool) (string, bool) {
	offeredSet := make(map[string]bool, len(offered))
	for _, m := range offered {
		offeredSet[m] = true
	}
	for _, m := range Preference {
		if !offeredSet[m] {
			continue
		}
		if m == "EXTERNAL" && !haveClientCert {
			continue
		}
		if !haveChannelBinding && len(m) > 5 && m[len(m)-5:] == "-PLUS" {
			continue
		}
		return m, true
	}
	return "", false
}

// plainMechanism implements RFC 4616 SASL PLAIN.
type plainMechanism struct {
	creds Credentials
	done  bool
}

func (p *plainMechanism) Name() string { return "PLAIN" }

func (p *plainMechanism) Start(ctx context.Context) ([]byte, error) {
	p.done = true
	// authzid NUL authcid NUL passwd
	buf := make([]byte, 0, len(p.creds.Authzid)+len(p.creds.Authcid)+len(p.creds.Password)+2)
	buf = append(buf, p.creds.Authzid...)
	buf = append(buf, 0)
	buf = append(buf, p.creds.Authcid...)
	buf = append(buf, 0)
	buf = append(buf, p.creds.Password...)
	return buf, nil
}

func (p *plainMechanism) Next(ctx context.Context, challenge []byte) ([]byte, error) {
	return nil, ErrDone
}

func (p *plainMechanism) Done() bool { return p.done }

// externalMechanism implements RFC 4422 SASL EXTERNAL: authentication is
// carried entirely by the TLS client certificate, so the only payload is
// the (usually empty) authorization identity.
type externalMechanism struct {
	creds Credentials
	done  bool
}

func (e *externalMechanism) Name() string { return "EXTERNAL" }

func (e *externalMechanism) Start(ctx context.Context) ([]byte, error) {
	e.done = true
	return []byte(e.creds.Authzid), nil
}

func (e *externalMechanism) Next(ctx context.Context, challenge []byte) ([]byte, error) {
	return nil, ErrDone
}

func (e *externalMechanism) Done() bool { return e.done }
