// Package command defines plugin commands and triggers, the per-plugin
// registry that holds them, and the parser that turns chat lines into
// invocations.
package command

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Scope says where a command or trigger may be used.
type Scope uint8

const (
	// ScopeChannel allows use in channels.
	ScopeChannel Scope = 1 << iota
	// ScopePrivate allows use in private messages.
	ScopePrivate
	// ScopeGlobal allows use through "plugin:label" syntax from a target
	// where the plugin is not active.
	ScopeGlobal

	ScopeAll = ScopeChannel | ScopePrivate | ScopeGlobal
)

// Handler runs a command or trigger.
type Handler func(ctx *Context) error

// Command is a labelled command registered by a plugin.
type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Help    string

	// MinArgs and MaxArgs bound the number of arguments. The last argument
	// takes the rest of the line. A negative MaxArgs means no limit.
	MinArgs int
	MaxArgs int

	// Permission is required to run the command. A leading "." makes it
	// relative to the plugin key. Empty means anyone may run it.
	Permission string
	// DenyMessage is sent when Permission is refused. Empty means the
	// refusal is silent.
	DenyMessage string

	Scope Scope

	// Priority ranks this command against other plugins' commands with the
	// same label. Nil means zero.
	Priority func(ctx *Context) int

	Handler Handler
}

// PriorityFor evaluates the command's priority in ctx.
func (c *Command) PriorityFor(ctx *Context) int {
	if c.Priority == nil {
		return 0
	}
	return c.Priority(ctx)
}

// HasAlias reports whether label names this command.
func (c *Command) HasAlias(label string) bool {
	for _, a := range c.Aliases {
		if strings.EqualFold(a, label) {
			return true
		}
	}
	return false
}

// Trigger is a handler run for messages matching a pattern.
type Trigger struct {
	Name        string
	Patterns    []*regexp.Regexp
	Permission  string
	DenyMessage string
	Scope       Scope
	// MustAddress requires the message to start with the bot's nickname.
	MustAddress bool
	Handler     Handler
}

// Match returns the submatches of the first pattern matching text.
func (t *Trigger) Match(text string) []string {
	for _, re := range t.Patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m
		}
	}
	return nil
}

// Failure is returned by handlers that already told the user what went
// wrong. The router does not log it as a fault.
type Failure struct {
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

// IsFailure reports whether err is a user-facing Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

var ErrDuplicateAlias = errors.New("duplicate command alias")

// Registry holds the commands and triggers of one plugin.
type Registry struct {
	commands []*Command
	aliases  map[string]*Command
	triggers []*Trigger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{aliases: make(map[string]*Command)}
}

// AddCommand registers a command under each of its aliases.
func (r *Registry) AddCommand(c *Command) error {
	if len(c.Aliases) == 0 {
		return fmt.Errorf("command %q has no aliases", c.Name)
	}
	for _, a := range c.Aliases {
		if _, ok := r.aliases[strings.ToLower(a)]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateAlias, a)
		}
	}
	for _, a := range c.Aliases {
		r.aliases[strings.ToLower(a)] = c
	}
	if c.Name == "" {
		c.Name = c.Aliases[0]
	}
	r.commands = append(r.commands, c)
	return nil
}

// MustAddCommands registers commands and panics on a duplicate alias. It is
// meant for plugin constructors with fixed command tables.
func (r *Registry) MustAddCommands(cmds ...*Command) {
	for _, c := range cmds {
		if err := r.AddCommand(c); err != nil {
			panic(err)
		}
	}
}

// AddTrigger appends a trigger. Triggers are tried in registration order.
func (r *Registry) AddTrigger(t *Trigger) {
	r.triggers = append(r.triggers, t)
}

// Command looks up a command by alias.
func (r *Registry) Command(label string) (*Command, bool) {
	c, ok := r.aliases[strings.ToLower(label)]
	return c, ok
}

// Commands returns the commands in registration order.
func (r *Registry) Commands() []*Command {
	return r.commands
}

// Triggers returns the triggers in registration order.
func (r *Registry) Triggers() []*Trigger {
	return r.triggers
}
