package irc

import (
	"encoding"
	"errors"
	"testing"

	"github.com/SkizNet/netwolf/state"
)

// denyAll is a PermissionManager that rejects every request, used to
// exercise permission enforcement (AllowAll, the default NewDispatcher
// installs, can never produce a denial).
type denyAll struct{}

func (denyAll) HasPermission(account, permission string) (bool, error) { return false, nil }

// unsupportedManager always defers to the next manager in the chain.
type unsupportedManager struct{}

func (unsupportedManager) HasPermission(account, permission string) (bool, error) {
	return false, ErrUnsupportedPermission
}

// fixedManager grants permission only to a single named account.
type fixedManager struct {
	account string
}

func (f fixedManager) HasPermission(account, permission string) (bool, error) {
	return account == f.account, nil
}

type recordingWriter struct {
	sent []*Message
}

func (w *recordingWriter) WriteMessage(m encoding.TextMarshaler) {
	if msg, ok := m.(*Message); ok {
		w.sent = append(w.sent, msg)
	}
}

func privmsg(source Nickname, target, text string) *Message {
	return &Message{
		Source:  Prefix{Nick: source, User: "u", Host: "h"},
		Command: CmdPrivmsg,
		Params:  Params{target, text},
	}
}

func TestDispatcherRunsMatchingCommand(t *testing.T) {
	d := NewDispatcher("!")
	var gotArgs []string
	d.RegisterCommand(&CommandHandler{
		Name: "echo",
		Run: func(mw MessageWriter, m *Message, args []string) error {
			gotArgs = args
			return nil
		},
	})

	w := &recordingWriter{}
	d.SpeakIRC(w, privmsg("alice", "#chan", "!echo hello world"))

	if len(gotArgs) != 2 || gotArgs[0] != "hello" || gotArgs[1] != "world" {
		t.Errorf("got args %#v", gotArgs)
	}
}

func TestDispatcherEnforcesPermission(t *testing.T) {
	d := NewDispatcher("!")
	d.AddPermissionManager(denyAll{})
	var ran bool
	d.RegisterCommand(&CommandHandler{
		Name:               "admin",
		RequiredPermission: "admin",
		Run: func(mw MessageWriter, m *Message, args []string) error {
			ran = true
			return nil
		},
	})

	var gotErr error
	d.ErrorHandler = func(mw MessageWriter, m *Message, err error) { gotErr = err }

	w := &recordingWriter{}
	d.SpeakIRC(w, privmsg("alice", "#chan", "!admin"))

	if ran {
		t.Error("command should not have run without permission")
	}
	if !errors.Is(gotErr, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", gotErr)
	}
}

func TestDispatcherAllowAllGrantsByDefault(t *testing.T) {
	d := NewDispatcher("!")
	var ran bool
	d.RegisterCommand(&CommandHandler{
		Name:               "admin",
		RequiredPermission: "admin",
		Run: func(mw MessageWriter, m *Message, args []string) error {
			ran = true
			return nil
		},
	})

	w := &recordingWriter{}
	d.SpeakIRC(w, privmsg("alice", "#chan", "!admin"))

	if !ran {
		t.Error("expected the default AllowAll manager to grant the command")
	}
}

func TestDispatcherPermissionChainFallsThroughUnsupported(t *testing.T) {
	d := NewDispatcher("!")
	d.AddPermissionManager(unsupportedManager{})
	d.AddPermissionManager(fixedManager{account: "alice"})

	var ranAlice, ranBob bool
	d.RegisterCommand(&CommandHandler{
		Name:               "admin",
		RequiredPermission: "admin",
		Run: func(mw MessageWriter, m *Message, args []string) error {
			if m.Source.Nick == "alice" {
				ranAlice = true
			} else {
				ranBob = true
			}
			return nil
		},
	})

	w := &recordingWriter{}
	d.SpeakIRC(w, privmsg("alice", "#chan", "!admin"))
	d.SpeakIRC(w, privmsg("bob", "#chan", "!admin"))

	if !ranAlice {
		t.Error("expected the chain to fall through the unsupported manager and grant alice")
	}
	if ranBob {
		t.Error("expected the chain to deny bob once a manager in the chain settles the question")
	}
}

func TestDispatcherResolvesAccountThroughStore(t *testing.T) {
	d := NewDispatcher("!")
	store := state.NewStore(state.DefaultNetworkInfo())
	u := store.GetOrAddUser("alice", "a", "host")
	u.Account = "alice_services"
	d.UseStore(store)

	var gotPermAccount string
	d.AddPermissionManager(fixedManagerFunc(func(account, permission string) (bool, error) {
		gotPermAccount = account
		return true, nil
	}))
	d.RegisterCommand(&CommandHandler{
		Name:               "admin",
		RequiredPermission: "admin",
		Run:                func(mw MessageWriter, m *Message, args []string) error { return nil },
	})

	w := &recordingWriter{}
	d.SpeakIRC(w, privmsg("alice", "#chan", "!admin"))

	if gotPermAccount != "alice_services" {
		t.Errorf("expected permission check to receive the services account, got %q", gotPermAccount)
	}
}

func TestDispatcherResolvesAccountFallsBackToNickWithoutStore(t *testing.T) {
	d := NewDispatcher("!")
	var gotPermAccount string
	d.AddPermissionManager(fixedManagerFunc(func(account, permission string) (bool, error) {
		gotPermAccount = account
		return true, nil
	}))
	d.RegisterCommand(&CommandHandler{
		Name:               "admin",
		RequiredPermission: "admin",
		Run:                func(mw MessageWriter, m *Message, args []string) error { return nil },
	})

	w := &recordingWriter{}
	d.SpeakIRC(w, privmsg("alice", "#chan", "!admin"))

	if gotPermAccount != "alice" {
		t.Errorf("expected permission check to fall back to the nickname, got %q", gotPermAccount)
	}
}

func TestDispatcherNickTriggerForm(t *testing.T) {
	d := NewDispatcher("!")
	d.Nick = func() Nickname { return "bot" }
	var gotArgs []string
	d.RegisterCommand(&CommandHandler{
		Name: "echo",
		Run: func(mw MessageWriter, m *Message, args []string) error {
			gotArgs = args
			return nil
		},
	})

	w := &recordingWriter{}
	d.SpeakIRC(w, privmsg("alice", "#chan", "bot: echo hello"))

	if len(gotArgs) != 1 || gotArgs[0] != "hello" {
		t.Errorf("expected the <nick>: trigger form to dispatch echo, got args %#v", gotArgs)
	}
}

func TestDispatcherNickTriggerCommaForm(t *testing.T) {
	d := NewDispatcher("!")
	d.Nick = func() Nickname { return "bot" }
	var ran bool
	d.RegisterCommand(&CommandHandler{
		Name: "echo",
		Run: func(mw MessageWriter, m *Message, args []string) error {
			ran = true
			return nil
		},
	})

	w := &recordingWriter{}
	d.SpeakIRC(w, privmsg("alice", "#chan", "bot, echo hello"))

	if !ran {
		t.Error("expected the \"<nick>, \" trigger form to dispatch echo")
	}
}

func TestDispatcherIgnoresUnrelatedTextWithoutTrigger(t *testing.T) {
	d := NewDispatcher("!")
	d.Nick = func() Nickname { return "bot" }
	var ran bool
	d.RegisterCommand(&CommandHandler{
		Name: "echo",
		Run: func(mw MessageWriter, m *Message, args []string) error {
			ran = true
			return nil
		},
	})

	w := &recordingWriter{}
	d.SpeakIRC(w, privmsg("alice", "#chan", "echo hello"))

	if ran {
		t.Error("plain text with neither prefix nor nick trigger should not dispatch")
	}
}

// fixedManagerFunc adapts a function literal to PermissionManager.
type fixedManagerFunc func(account, permission string) (bool, error)

func (f fixedManagerFunc) HasPermission(account, permission string) (bool, error) {
	return f(account, permission)
}

func TestDispatcherHookCanSuppressDefault(t *testing.T) {
	d := NewDispatcher("!")
	var ran bool
	d.RegisterCommand(&CommandHandler{
		Name: "echo",
		Run: func(mw MessageWriter, m *Message, args []string) error {
			ran = true
			return nil
		},
	})
	d.AddHook(PriorityHighest, func(mw MessageWriter, m *Message) HookResult {
		return HookSuppressDefault
	})

	w := &recordingWriter{}
	d.SpeakIRC(w, privmsg("alice", "#chan", "!echo hello"))

	if ran {
		t.Error("HookSuppressDefault should have prevented the command from running")
	}
}

func TestDispatcherHookCanSuppressAll(t *testing.T) {
	d := NewDispatcher("!")
	calledSecond := false
	d.AddHook(PriorityHighest, func(mw MessageWriter, m *Message) HookResult {
		return HookSuppressAll
	})
	d.AddHook(PriorityHigh, func(mw MessageWriter, m *Message) HookResult {
		calledSecond = true
		return HookContinue
	})

	w := &recordingWriter{}
	d.SpeakIRC(w, privmsg("alice", "#chan", "hello"))

	if calledSecond {
		t.Error("HookSuppressAll should have prevented lower-priority hooks from running")
	}
}

func TestDispatcherValidatorRejectsBadArgs(t *testing.T) {
	d := NewDispatcher("!")
	var ran bool
	d.RegisterCommand(&CommandHandler{
		Name: "kick",
		Validators: []Validator{
			func(args []string) error {
				if len(args) < 1 {
					return errNeedsTarget
				}
				return nil
			},
		},
		Run: func(mw MessageWriter, m *Message, args []string) error {
			ran = true
			return nil
		},
	})

	w := &recordingWriter{}
	d.SpeakIRC(w, privmsg("alice", "#chan", "!kick"))

	if ran {
		t.Error("command should not run when validation fails")
	}
}

var errNeedsTarget = errors.New("kick requires a target")
