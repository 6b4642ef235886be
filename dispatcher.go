package irc

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SkizNet/netwolf/state"
)

// Priority orders hook execution within a Dispatcher: Highest runs first,
// Lowest runs last, mirroring Bukkit/Spigot-style event priority used by
// the IRC bot frameworks this package's command layer is modeled after.
type Priority int

const (
	PriorityHighest Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityLowest
)

var priorityOrder = []Priority{PriorityHighest, PriorityHigh, PriorityNormal, PriorityLow, PriorityLowest}

// HookResult tells the Dispatcher what to do after a hook runs.
type HookResult int

const (
	// HookContinue lets dispatch proceed to the next hook and, if no hook
	// suppressed it, the matched command handler.
	HookContinue HookResult = iota
	// HookSuppressDefault skips the built-in command handler for this
	// message (if any) but still runs remaining hooks.
	HookSuppressDefault
	// HookSuppressPlugins skips any remaining lower-priority hooks but
	// still runs the built-in command handler.
	HookSuppressPlugins
	// HookSuppressAll stops all further processing of this message.
	HookSuppressAll
)

// Hook observes or intercepts every inbound message the Dispatcher sees,
// regardless of whether it matches a registered command.
type Hook func(mw MessageWriter, m *Message) HookResult

// Validator inspects a parsed bot command's arguments before its handler
// runs, returning a non-nil error on rejection; the Dispatcher wraps that
// error in ErrValidation.
type Validator func(args []string) error

// PermissionManager decides whether an account may invoke a
// privilege-gated command. Implementations back this with whatever
// authorization store the embedding application uses; netwolf only
// defines the interface and a permissive default.
//
// A Dispatcher consults a chain of PermissionManagers in registration
// order, the way the framework's permission aggregation step does: the
// first manager that doesn't return ErrUnsupportedPermission settles the
// question, either granting or denying with its own error.
type PermissionManager interface {
	// HasPermission reports whether account holds the named permission.
	// account is the services account name (Message.Source resolved
	// through the state store), not the nickname, falling back to the
	// nickname when the account isn't known (e.g. the user isn't logged
	// in to services, or no state store is attached).
	//
	// Returning ErrUnsupportedPermission tells the Dispatcher this
	// manager has no opinion on the combination, so the chain should
	// fall through to the next manager. Any other non-nil error denies
	// the command and is surfaced to ErrorHandler as-is.
	HasPermission(account, permission string) (bool, error)
}

// AllowAll is a PermissionManager that grants every permission to every
// account, the default when a Dispatcher is constructed without one.
type AllowAll struct{}

// HasPermission implements PermissionManager.
func (AllowAll) HasPermission(account, permission string) (bool, error) { return true, nil }

// CommandHandler is one bot command registered with a Dispatcher: a
// PRIVMSG whose text begins with the dispatcher's command prefix followed
// by Name.
type CommandHandler struct {
	// Name is matched case-insensitively against the word following the
	// command prefix.
	Name string

	// RequiredPermission gates this command behind
	// PermissionManager.HasPermission, or runs unconditionally when
	// empty.
	RequiredPermission string

	// Validators run, in order, against the command's argument list
	// before Run is called. The first validator to return an error
	// aborts dispatch with that error wrapped in ErrValidation.
	Validators []Validator

	// Run is called with the triggering message's MessageWriter and the
	// arguments following the command name.
	Run func(mw MessageWriter, m *Message, args []string) error
}

// Dispatcher is the command dispatcher: it runs priority-ordered hooks
// against every inbound message, then — for PRIVMSGs matching the
// configured command prefix — looks up and invokes a registered
// CommandHandler, enforcing its permission and validators first.
//
// Dispatcher implements Handler, so it can be used anywhere the teacher's
// Router is: as the handler given to wrap(dispatcher, middlewares...) or
// as the handler passed to Client.ConnectAndRun.
type Dispatcher struct {
	mu sync.RWMutex

	// Prefix is the bot command prefix, e.g. "!" so "!help" invokes the
	// "help" command. An empty prefix disables bot command dispatch
	// entirely via prefix form; the "<nick>: " trigger form below still
	// works regardless.
	Prefix string

	// Nick reports the session's current nickname, used to recognize the
	// "<nick>: command" trigger form alongside Prefix. A nil Nick
	// disables that form.
	Nick func() Nickname

	// permissions is the permission-manager chain, consulted in
	// registration order. Defaults to a single AllowAll.
	permissions []PermissionManager

	store *state.Store

	hooks    map[Priority][]Hook
	commands map[string]*CommandHandler

	// ErrorHandler is called with any error a CommandHandler.Run
	// returns, or with a validation/permission failure. If nil, errors
	// are silently dropped the same way a missed route silently no-ops
	// in the teacher's Router.
	ErrorHandler func(mw MessageWriter, m *Message, err error)

	// Logger receives a structured event when a CommandHandler.Run
	// panics; the panic is always recovered regardless of Logger so one
	// handler can't take down the session. Nil drops the event.
	Logger *zerolog.Logger
}

// NewDispatcher constructs a Dispatcher with the given bot command prefix
// and a permission chain holding a single permissive (AllowAll) manager.
func NewDispatcher(prefix string) *Dispatcher {
	return &Dispatcher{
		Prefix:      prefix,
		permissions: []PermissionManager{AllowAll{}},
		hooks:       make(map[Priority][]Hook),
		commands:    make(map[string]*CommandHandler),
	}
}

// UseStore attaches a state store the Dispatcher consults to resolve a
// message's services account when checking permissions. Without one,
// permission checks fall back to the raw nickname.
func (d *Dispatcher) UseStore(s *state.Store) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.store = s
}

// AddPermissionManager appends pm to the end of the permission chain. The
// first call after NewDispatcher replaces the default AllowAll manager;
// subsequent calls extend the chain, preserving registration order.
func (d *Dispatcher) AddPermissionManager(pm PermissionManager) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.permissions) == 1 {
		if _, ok := d.permissions[0].(AllowAll); ok {
			d.permissions = nil
		}
	}
	d.permissions = append(d.permissions, pm)
}

// AddHook registers h to run at the given priority for every inbound
// message.
func (d *Dispatcher) AddHook(p Priority, h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks[p] = append(d.hooks[p], h)
}

// RegisterCommand adds (or replaces) a bot command.
func (d *Dispatcher) RegisterCommand(cmd *CommandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands[strings.ToLower(cmd.Name)] = cmd
}

// SpeakIRC implements Handler.
func (d *Dispatcher) SpeakIRC(mw MessageWriter, m *Message) {
	d.mu.RLock()
	hooks := make(map[Priority][]Hook, len(d.hooks))
	for p, hs := range d.hooks {
		hooks[p] = append([]Hook(nil), hs...)
	}
	d.mu.RUnlock()

	suppressDefault := false
	for _, p := range priorityOrder {
		for _, h := range hooks[p] {
			switch h(mw, m) {
			case HookSuppressDefault:
				suppressDefault = true
			case HookSuppressPlugins:
				goto dispatchDefault
			case HookSuppressAll:
				return
			}
		}
	}

dispatchDefault:
	if suppressDefault || m.Command != CmdPrivmsg {
		return
	}

	body, ok := d.stripTrigger(m.Params.Get(2))
	if !ok {
		return
	}
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return
	}
	name, args := fields[0], fields[1:]

	d.mu.RLock()
	cmd, ok := d.commands[strings.ToLower(name)]
	d.mu.RUnlock()
	if !ok {
		return
	}

	account := d.resolveAccount(m.Source.Nick.String())
	if cmd.RequiredPermission != "" {
		if err := d.checkPermission(account, cmd.Name, cmd.RequiredPermission); err != nil {
			d.handleErr(mw, m, err)
			return
		}
	}
	for _, v := range cmd.Validators {
		if err := v(args); err != nil {
			d.handleErr(mw, m, fmt.Errorf("%w: %v", ErrValidation, err))
			return
		}
	}
	d.runCommand(mw, m, cmd, args)
}

// runCommand invokes cmd.Run, recovering a panic into a logged-and-swallowed
// error so a single misbehaving handler can't take down the session.
func (d *Dispatcher) runCommand(mw MessageWriter, m *Message, cmd *CommandHandler, args []string) {
	defer func() {
		if r := recover(); r != nil {
			if d.Logger != nil {
				d.Logger.Error().Interface("panic", r).Str("command", cmd.Name).Msg("command handler panicked")
			}
		}
	}()
	if err := cmd.Run(mw, m, args); err != nil {
		d.handleErr(mw, m, err)
	}
}

// stripTrigger reports whether text invokes bot command dispatch, either
// via the configured Prefix ("!command") or the "<nick>: command"/
// "<nick>, command" form, returning the text with the trigger removed.
func (d *Dispatcher) stripTrigger(text string) (string, bool) {
	if d.Prefix != "" && strings.HasPrefix(text, d.Prefix) {
		return strings.TrimPrefix(text, d.Prefix), true
	}
	if d.Nick == nil {
		return "", false
	}
	nick := d.Nick().String()
	if nick == "" {
		return "", false
	}
	for _, sep := range [...]string{": ", ", "} {
		if rest, ok := strings.CutPrefix(text, nick+sep); ok {
			return rest, true
		}
	}
	return "", false
}

// resolveAccount maps a triggering nickname to its services account via
// the attached state store, falling back to the nickname itself when no
// store is attached or the nickname isn't tracked or isn't logged in.
func (d *Dispatcher) resolveAccount(nick string) string {
	d.mu.RLock()
	store := d.store
	d.mu.RUnlock()
	if store == nil {
		return nick
	}
	u, ok := store.GetUserByNick(nick)
	if !ok || u.Account == "" {
		return nick
	}
	return u.Account
}

// checkPermission consults the permission-manager chain in registration
// order, using the first manager that doesn't return
// ErrUnsupportedPermission. If every manager in the chain is unsupported,
// the command is denied.
func (d *Dispatcher) checkPermission(account, command, permission string) error {
	d.mu.RLock()
	managers := append([]PermissionManager(nil), d.permissions...)
	d.mu.RUnlock()

	for _, pm := range managers {
		allowed, err := pm.HasPermission(account, permission)
		if errors.Is(err, ErrUnsupportedPermission) {
			continue
		}
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("%w: %s requires %q", ErrPermissionDenied, command, permission)
		}
		return nil
	}
	return fmt.Errorf("%w: %s requires %q", ErrPermissionDenied, command, permission)
}

func (d *Dispatcher) handleErr(mw MessageWriter, m *Message, err error) {
	if d.ErrorHandler != nil {
		d.ErrorHandler(mw, m, err)
	}
}

// Commands returns the names of every registered command, sorted, mainly
// for building a "help" command.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
