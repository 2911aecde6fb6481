package router

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/AndrioCelos/CBot-sub003/internal/auth"
	"github.com/AndrioCelos/CBot-sub003/internal/command"
	"github.com/AndrioCelos/CBot-sub003/internal/permission"
)

const faultMessage = "The command failed. This has been logged (incident %s)."

// HandleMessage routes one inbound message: it runs at most one command or,
// failing that, at most one trigger.
func (c *Core) HandleMessage(conn Conn, msg Message) {
	target := command.Target{Network: conn.Network()}
	if conn.IsChannel(msg.Target) {
		target.Channel = msg.Target
	}

	inv, isCommand := command.Parse(msg.Text, conn.CurrentNick(), c.PrefixesFor(target), !target.Private())
	if isCommand {
		if cand, ok := c.findCommand(conn, msg.Sender, target, inv); ok {
			ctx := cand.Context
			c.authorize(conn, ctx, cand.Command.Permission, cand.Command.DenyMessage, func() {
				c.runCommand(ctx)
			})
			return
		}
	}
	c.runTriggers(conn, msg.Sender, target, inv)
}

func (c *Core) newContext(conn Conn, sender auth.Identity, target command.Target, inv command.Invocation, p command.Plugin) *command.Context {
	ctx := &command.Context{
		Plugin:     p,
		Conn:       conn,
		Sender:     sender,
		Target:     target,
		Invocation: inv,
	}
	ctx.Permission = func(perm string) bool {
		return c.Resolver.HasPermission(ctx.Sender, conn, perm)
	}
	return ctx
}

// findCommand collects every matching command among the candidate plugins
// and picks the one with the highest priority.
func (c *Core) findCommand(conn Conn, sender auth.Identity, target command.Target, inv command.Invocation) (*command.Candidate, bool) {
	var candidates []*command.Candidate
	for _, p := range c.Plugins() {
		active := p.IsActiveTarget(target)
		if inv.PluginKey != "" {
			if !strings.EqualFold(p.Key(), inv.PluginKey) {
				continue
			}
		} else if !active {
			continue
		}

		cmd, ok := p.Registry().Command(inv.Label)
		if !ok || !scopeAllows(cmd.Scope, target, !active) {
			continue
		}
		ctx := c.newContext(conn, sender, target, inv, p)
		ctx.Command = cmd
		candidates = append(candidates, &command.Candidate{Plugin: p, Command: cmd, Context: ctx})
	}
	return command.PickBy(candidates, c.priority)
}

// priority evaluates a candidate's priority function. One that panics ranks
// below every other candidate.
func (c *Core) priority(cand *command.Candidate) (p int) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("priority fault", "plugin", cand.Plugin.Key(), "command", cand.Command.Name, "error", r)
			p = math.MinInt
		}
	}()
	return cand.Command.PriorityFor(cand.Context)
}

// scopeAllows checks the scope flags. A zero scope allows channels and
// private messages. global marks use through "key:label" syntax where the
// plugin is not active.
func scopeAllows(scope command.Scope, target command.Target, global bool) bool {
	if scope == 0 {
		scope = command.ScopeChannel | command.ScopePrivate
	}
	if global && scope&command.ScopeGlobal == 0 {
		return false
	}
	if target.Private() {
		return scope&command.ScopePrivate != 0
	}
	return scope&command.ScopeChannel != 0
}

// authorize runs fn if the sender holds perm, first resolving the sender's
// services account when that could change the answer.
func (c *Core) authorize(conn Conn, ctx *command.Context, perm, denyMessage string, fn func()) {
	if perm == "" {
		fn()
		return
	}
	perm = permission.Resolve(ctx.Plugin.Key(), perm)

	check := func() {
		if c.Resolver.HasPermission(ctx.Sender, conn, perm) {
			fn()
			return
		}
		c.log.Info("permission denied",
			"network", ctx.Target.Network, "target", ctx.ReplyTarget(),
			"hostmask", ctx.Sender.Hostmask(), "permission", perm)
		c.record(ctx, "DENIED")
		if denyMessage != "" {
			ctx.Whisper(denyMessage)
		}
	}

	if !c.Resolver.NeedsLookup(ctx.Sender) {
		check()
		return
	}
	conn.LookupAccount(ctx.Sender.Nickname, func(account string, ok bool) {
		if !ok {
			c.log.Debug("dropping command", "nick", ctx.Sender.Nickname, "error", ErrLookupInvalidated)
			return
		}
		ctx.Sender.Account, ctx.Sender.AccountKnown = account, true
		check()
	})
}

func (c *Core) runCommand(ctx *command.Context) {
	cmd := ctx.Command
	args := command.SplitArgs(ctx.Parameters(), cmd.MaxArgs)
	if len(args) < cmd.MinArgs {
		prefix := ctx.Invocation.Prefix
		if prefix == "" && !ctx.Target.Private() {
			prefix = c.PrefixesFor(ctx.Target)[0]
		}
		ctx.Whisper(strings.TrimSpace(fmt.Sprintf("Usage: %s%s %s", prefix, ctx.Label(), cmd.Usage)))
		return
	}
	ctx.Args = args
	c.record(ctx, "")
	c.invoke(ctx, cmd.Name, cmd.Handler)
}

func (c *Core) runTriggers(conn Conn, sender auth.Identity, target command.Target, inv command.Invocation) {
	addressed := inv.Addressed || target.Private()
	for _, p := range c.Plugins() {
		if !p.IsActiveTarget(target) {
			continue
		}
		for _, t := range p.Registry().Triggers() {
			t := t
			if !scopeAllows(t.Scope, target, false) || (t.MustAddress && !addressed) {
				continue
			}
			m := t.Match(inv.Text)
			if m == nil {
				continue
			}
			ctx := c.newContext(conn, sender, target, inv, p)
			ctx.Trigger = t
			ctx.Match = m
			c.authorize(conn, ctx, t.Permission, t.DenyMessage, func() {
				c.invoke(ctx, t.Name, t.Handler)
			})
			return
		}
	}
}

// invoke runs a handler, containing any error or panic it produces.
func (c *Core) invoke(ctx *command.Context, name string, h command.Handler) {
	defer func() {
		if r := recover(); r != nil {
			c.fault(ctx, name, fmt.Errorf("panic: %v", r))
		}
	}()

	err := h(ctx)
	switch {
	case err == nil:
	case command.IsFailure(err):
		c.log.Debug("command failed", "plugin", ctx.Plugin.Key(), "handler", name, "reason", err)
	default:
		c.fault(ctx, name, err)
	}
}

func (c *Core) fault(ctx *command.Context, name string, err error) {
	incident := uuid.NewString()[:8]
	c.log.Error("handler fault",
		"plugin", ctx.Plugin.Key(), "handler", name, "incident", incident,
		"network", ctx.Target.Network, "hostmask", ctx.Sender.Hostmask(), "error", err)
	ctx.Reply(fmt.Sprintf(faultMessage, incident))
}

func (c *Core) record(ctx *command.Context, outcome string) {
	if c.audit == nil || ctx.Command == nil {
		return
	}
	entry := ctx.Plugin.Key() + ":" + ctx.Label()
	if outcome != "" {
		entry = outcome + " - " + entry
	}
	c.audit.Record(ctx.Sender.Hostmask(), entry)
}
