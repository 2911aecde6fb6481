package plugins

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/AndrioCelos/CBot-sub003/internal/command"
	"github.com/AndrioCelos/CBot-sub003/internal/irc"
	"github.com/AndrioCelos/CBot-sub003/internal/permission"
)

// Core provides help, version information and bot administration.
type Core struct {
	command.Base
	env *Env
}

// NewCore creates the core plugin.
func NewCore(key string, channels []string, env *Env) *Core {
	p := &Core{Base: command.NewBase(key, channels), env: env}
	p.Registry().MustAddCommands(
		&command.Command{
			Aliases: []string{"help"},
			Usage:   "[command]",
			Help:    "Lists the commands you can use, or explains one.",
			MaxArgs: 1,
			Scope:   command.ScopeAll,
			Handler: p.help,
		},
		&command.Command{
			Aliases: []string{"plugins"},
			Help:    "Lists the active plugins.",
			Scope:   command.ScopeAll,
			Handler: p.plugins,
		},
		&command.Command{
			Aliases: []string{"version"},
			Help:    "Displays bot version information.",
			Scope:   command.ScopeAll,
			Handler: p.version,
		},
		&command.Command{
			Aliases:     []string{"audit"},
			Usage:       "[count]",
			Help:        "Displays the most recent audit log entries.",
			MaxArgs:     1,
			Permission:  ".audit",
			DenyMessage: "Sorry, only my admins can read the audit log.",
			Scope:       command.ScopePrivate | command.ScopeGlobal,
			Handler:     p.audit,
		},
		&command.Command{
			Aliases:     []string{"auditsearch"},
			Usage:       "<text>",
			Help:        "Searches the audit log.",
			MinArgs:     1,
			MaxArgs:     1,
			Permission:  ".audit",
			DenyMessage: "Sorry, only my admins can read the audit log.",
			Scope:       command.ScopePrivate | command.ScopeGlobal,
			Handler:     p.auditSearch,
		},
		&command.Command{
			Aliases:     []string{"nick"},
			Usage:       "<newnick>",
			Help:        "Changes my nickname on this network.",
			MinArgs:     1,
			MaxArgs:     1,
			Permission:  ".nick",
			DenyMessage: "Sorry, only my admins can change my nick.",
			Scope:       command.ScopeAll,
			Handler:     p.nick,
		},
		&command.Command{
			Aliases:     []string{"restart"},
			Help:        "Restarts the bot.",
			Permission:  ".restart",
			DenyMessage: "Sorry, only my admins can restart me.",
			Scope:       command.ScopeAll,
			Handler:     p.restart,
		},
		&command.Command{
			Aliases:     []string{"shutdown"},
			Help:        "Shuts the bot down.",
			Permission:  ".shutdown",
			DenyMessage: "Sorry, only my admins can shut me down.",
			Scope:       command.ScopeAll,
			Handler:     p.shutdown,
		},
	)
	return p
}

func (p *Core) prefix(ctx *command.Context) string {
	if ctx.Target.Private() {
		return ""
	}
	return p.env.Core.PrefixesFor(ctx.Target)[0]
}

// visible reports whether the sender may run cmd of plugin pl.
func visible(ctx *command.Context, pl command.Plugin, cmd *command.Command) bool {
	return cmd.Permission == "" || ctx.Permission(permission.Resolve(pl.Key(), cmd.Permission))
}

func (p *Core) help(ctx *command.Context) error {
	if len(ctx.Args) == 1 {
		label := ctx.Args[0]
		for _, prefix := range p.env.Core.PrefixesFor(ctx.Target) {
			if trimmed, ok := strings.CutPrefix(label, prefix); ok {
				label = trimmed
				break
			}
		}
		return p.helpFor(ctx, label)
	}

	var labels []string
	for _, pl := range p.env.Core.Plugins() {
		if !pl.IsActiveTarget(ctx.Target) {
			continue
		}
		for _, cmd := range pl.Registry().Commands() {
			if visible(ctx, pl, cmd) {
				labels = append(labels, cmd.Aliases[0])
			}
		}
	}
	if len(labels) == 0 {
		ctx.Whisper("There are no commands available to you here.")
		return nil
	}
	ctx.Whisperf("Available commands: %s", strings.Join(labels, ", "))
	ctx.Whisperf("Type %shelp <command> for more information.", p.prefix(ctx))
	return nil
}

func (p *Core) helpFor(ctx *command.Context, label string) error {
	for _, pl := range p.env.Core.Plugins() {
		if !pl.IsActiveTarget(ctx.Target) {
			continue
		}
		cmd, ok := pl.Registry().Command(label)
		if !ok || !visible(ctx, pl, cmd) {
			continue
		}
		ctx.Whisperf("Usage: %s", strings.TrimSpace(p.prefix(ctx)+label+" "+cmd.Usage))
		if cmd.Help != "" {
			ctx.Whisper(cmd.Help)
		}
		if len(cmd.Aliases) > 1 {
			ctx.Whisperf("Aliases: %s", strings.Join(cmd.Aliases, ", "))
		}
		return nil
	}
	return ctx.Failf("There is no command \x02%s\x02 available to you here.", label)
}

func (p *Core) plugins(ctx *command.Context) error {
	var keys []string
	for _, pl := range p.env.Core.Plugins() {
		keys = append(keys, pl.Key())
	}
	ctx.Replyf("Active plugins: %s", strings.Join(keys, ", "))
	return nil
}

func (p *Core) version(ctx *command.Context) error {
	ctx.Replyf("CBot version %s (built %s, commit %s)", irc.Version, irc.BuildDate, irc.GitCommit)
	return nil
}

func (p *Core) audit(ctx *command.Context) error {
	if p.env.Audit == nil {
		return ctx.Fail("The audit log is not enabled.")
	}
	count := 10
	if len(ctx.Args) == 1 {
		n, err := strconv.Atoi(ctx.Args[0])
		if err != nil || n <= 0 {
			return ctx.Fail("Please specify a positive number of entries.")
		}
		count = n
	}

	entries := p.env.Audit.Last(count)
	ctx.Whisperf("The last \x02%d\x02 audit log entries:", len(entries))
	for _, entry := range entries {
		ctx.Whisper(entry)
	}
	return nil
}

var regexChars = regexp.MustCompile(`[+|*()[\]]`)

func (p *Core) auditSearch(ctx *command.Context) error {
	if p.env.Audit == nil {
		return ctx.Fail("The audit log is not enabled.")
	}
	term := strings.TrimSpace(ctx.Args[0])
	if regexChars.MatchString(term) {
		return ctx.Fail("Please try searching without regular expression characters - *+()|[]")
	}

	ctx.Whisperf("Displaying search results for \"%s\":", term)
	for _, entry := range p.env.Audit.Search(term) {
		ctx.Whisper("    " + entry)
	}
	ctx.Whisper("End of matches")
	return nil
}

type nickChanger interface {
	SetNick(nick string)
}

func (p *Core) nick(ctx *command.Context) error {
	conn, ok := ctx.Conn.(nickChanger)
	if !ok {
		return errors.New("connection cannot change nick")
	}
	ctx.Whisperf("Changing nick from %s to %s", ctx.Conn.CurrentNick(), ctx.Args[0])
	conn.SetNick(ctx.Args[0])
	return nil
}

func (p *Core) restart(ctx *command.Context) error {
	if p.env.OnRestart == nil {
		return ctx.Fail("Restarting is not available.")
	}
	ctx.Whisper("Restarting")
	p.env.Log.Info("restart requested", "hostmask", ctx.Sender.Hostmask())
	p.env.OnRestart()
	return nil
}

func (p *Core) shutdown(ctx *command.Context) error {
	if p.env.OnShutdown == nil {
		return ctx.Fail("Shutting down is not available.")
	}
	ctx.Whisperf("Shutting down at the request of %s", ctx.Sender.Nickname)
	p.env.Log.Info("shutdown requested", "hostmask", ctx.Sender.Hostmask())
	p.env.OnShutdown()
	return nil
}
