package command

import (
	"fmt"

	"github.com/AndrioCelos/CBot-sub003/internal/auth"
	"github.com/AndrioCelos/CBot-sub003/internal/permission"
)

// Conn is the part of a protocol connection that handlers use.
type Conn interface {
	Network() string
	CurrentNick() string
	Privmsg(target, text string) error
	Notice(target, text string) error
}

// Context is handed to a running command or trigger.
type Context struct {
	Plugin  Plugin
	Command *Command
	Trigger *Trigger

	Conn   Conn
	Sender auth.Identity
	Target Target

	Invocation Invocation
	// Args holds the parameters split per the command's argument limits.
	Args []string
	// Match holds the trigger pattern submatches.
	Match []string

	// Permission checks a permission for the sender. Set by the router.
	Permission func(permission string) bool
}

// Label returns the alias the command was invoked with.
func (c *Context) Label() string {
	return c.Invocation.Label
}

// Parameters returns the unsplit parameter string.
func (c *Context) Parameters() string {
	return c.Invocation.Parameters
}

// ReplyTarget is where Reply sends: the channel, or the sender in private.
func (c *Context) ReplyTarget() string {
	if c.Target.Private() {
		return c.Sender.Nickname
	}
	return c.Target.Channel
}

// Reply answers where the message came from.
func (c *Context) Reply(text string) {
	_ = c.Conn.Privmsg(c.ReplyTarget(), text)
}

// Replyf formats and answers where the message came from.
func (c *Context) Replyf(format string, args ...any) {
	c.Reply(fmt.Sprintf(format, args...))
}

// Whisper answers the sender privately with a notice.
func (c *Context) Whisper(text string) {
	_ = c.Conn.Notice(c.Sender.Nickname, text)
}

// Whisperf formats and answers the sender privately.
func (c *Context) Whisperf(format string, args ...any) {
	c.Whisper(fmt.Sprintf(format, args...))
}

// Fail whispers text to the sender and returns a Failure for the handler to
// return.
func (c *Context) Fail(text string) error {
	c.Whisper(text)
	return &Failure{Message: text}
}

// Failf is Fail with formatting.
func (c *Context) Failf(format string, args ...any) error {
	return c.Fail(fmt.Sprintf(format, args...))
}

// HasPermission reports whether the sender holds permission. Permissions
// starting with "." are relative to the plugin key.
func (c *Context) HasPermission(name string) bool {
	if c.Permission == nil {
		return false
	}
	if c.Plugin != nil {
		name = permission.Resolve(c.Plugin.Key(), name)
	}
	return c.Permission(name)
}
