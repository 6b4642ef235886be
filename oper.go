package irc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// operTimeout is how long sendServiceOper waits after registration before
// sending the services-OPER line. The OPER and CHALLENGE exchanges have no
// deadline of their own.
const operTimeout = 5 * time.Second

// operConfig describes how a session should request operator privileges
// after registration, mirroring NetworkOptions' oper/services-oper fields.
type operConfig struct {
	name     string
	password string

	challengeKeyFile string
	challengeKeyPass string

	serviceOperPassword string
	serviceOperCommand  string
}

// operNegotiator drives the optional post-registration OPER, CHALLENGE, and
// services-OPER flows the same way saslNegotiator drives SASL: a small
// stateful struct wired in as middleware against the incoming stream.
type operNegotiator struct {
	mu         sync.Mutex
	cfg        operConfig
	mainctx    func() context.Context
	onComplete func(error)

	challenge strings.Builder
	privKey   *rsa.PrivateKey
}

func newOperNegotiator(cfg operConfig, mainctx func() context.Context, onComplete func(error)) *operNegotiator {
	return &operNegotiator{cfg: cfg, mainctx: mainctx, onComplete: onComplete}
}

func (n *operNegotiator) middleware(next Handler) Handler {
	return HandlerFunc(func(mw MessageWriter, m *Message) {
		next.SpeakIRC(mw, m)

		switch m.Command {
		case RplWelcome:
			go n.begin(mw)
		case RplRsaChallenge2:
			n.challenge.WriteString(m.Params.Get(len(m.Params)))
		case RplEndOfRsaChallenge:
			n.respondToChallenge(mw)
		case RplYoureOper:
			n.complete(nil)
		}
	})
}

// begin fires the configured OPER/CHALLENGE and services-OPER flows once
// registration completes. Both are best-effort: a failure here is logged,
// never fatal to the session.
func (n *operNegotiator) begin(mw MessageWriter) {
	switch {
	case n.cfg.challengeKeyFile != "":
		mw.WriteMessage(Challenge(n.cfg.name))
	case n.cfg.name != "":
		mw.WriteMessage(Oper(n.cfg.name, n.cfg.password))
	}

	if n.cfg.serviceOperCommand != "" && n.cfg.serviceOperPassword != "" {
		go n.sendServiceOper(mw)
	}
}

// sendServiceOper waits operTimeout before issuing the services-OPER raw
// line, abandoning it if the session ends first.
func (n *operNegotiator) sendServiceOper(mw MessageWriter) {
	ctx := context.Background()
	if n.mainctx != nil {
		ctx = n.mainctx()
	}

	select {
	case <-time.After(operTimeout):
	case <-ctx.Done():
		return
	}

	line := strings.ReplaceAll(n.cfg.serviceOperCommand, "{password}", n.cfg.serviceOperPassword)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	mw.WriteMessage(NewMessage(Command(fields[0]), fields[1:]...))
}

func (n *operNegotiator) respondToChallenge(mw MessageWriter) {
	n.mu.Lock()
	blob := n.challenge.String()
	n.challenge.Reset()
	n.mu.Unlock()

	key, err := n.loadKey()
	if err != nil {
		n.complete(fmt.Errorf("%w: loading challenge key: %v", ErrAuthFailed, err))
		return
	}

	ciphertext, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		n.complete(fmt.Errorf("%w: malformed CHALLENGE payload: %v", ErrAuthFailed, err))
		return
	}

	plaintext, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, key, ciphertext, nil)
	if err != nil {
		n.complete(fmt.Errorf("%w: decrypting CHALLENGE: %v", ErrAuthFailed, err))
		return
	}

	digest := sha1.Sum(plaintext)
	mw.WriteMessage(ChallengeResponse(base64.StdEncoding.EncodeToString(digest[:])))
}

// loadKey parses the configured PEM-encoded RSA private key, decrypting it
// first if challengeKeyPass was supplied. The key is cached after the
// first successful load.
func (n *operNegotiator) loadKey() (*rsa.PrivateKey, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.privKey != nil {
		return n.privKey, nil
	}

	raw, err := os.ReadFile(n.cfg.challengeKeyFile)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", n.cfg.challengeKeyFile)
	}

	der := block.Bytes
	if n.cfg.challengeKeyPass != "" && x509.IsEncryptedPEMBlock(block) {
		der, err = x509.DecryptPEMBlock(block, []byte(n.cfg.challengeKeyPass))
		if err != nil {
			return nil, err
		}
	}

	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		k, err2 := x509.ParsePKCS8PrivateKey(der)
		if err2 != nil {
			return nil, err
		}
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s does not contain an RSA private key", n.cfg.challengeKeyFile)
		}
		key = rsaKey
	}

	n.privKey = key
	return key, nil
}

func (n *operNegotiator) complete(err error) {
	if n.onComplete != nil {
		n.onComplete(err)
	}
}
