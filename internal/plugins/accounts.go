package plugins

import (
	"errors"
	"strings"

	"github.com/AndrioCelos/CBot-sub003/internal/accounts"
	"github.com/AndrioCelos/CBot-sub003/internal/command"
	"github.com/AndrioCelos/CBot-sub003/internal/permission"
	"github.com/AndrioCelos/CBot-sub003/internal/router"
)

// Accounts lets users identify and lets administrators manage accounts.
type Accounts struct {
	command.Base
	env *Env
}

// NewAccounts creates the accounts plugin.
func NewAccounts(key string, channels []string, env *Env) *Accounts {
	p := &Accounts{Base: command.NewBase(key, channels), env: env}
	p.Registry().MustAddCommands(
		&command.Command{
			Aliases: []string{"identify", "id", "login"},
			Usage:   "[account] <password>",
			Help:    "Identifies you to an account. The account defaults to your nickname.",
			MinArgs: 1,
			MaxArgs: 2,
			Scope:   command.ScopePrivate | command.ScopeGlobal,
			Handler: p.identify,
		},
		&command.Command{
			Aliases: []string{"logout"},
			Help:    "Ends your identification.",
			Scope:   command.ScopeAll,
			Handler: p.logout,
		},
		&command.Command{
			Aliases: []string{"passwd"},
			Usage:   "<new password>",
			Help:    "Changes the password of the account you are identified to.",
			MinArgs: 1,
			MaxArgs: 1,
			Scope:   command.ScopePrivate | command.ScopeGlobal,
			Handler: p.passwd,
		},
		&command.Command{
			Aliases: []string{"whoami"},
			Help:    "Shows which accounts apply to you.",
			Scope:   command.ScopeAll,
			Handler: p.whoami,
		},
		&command.Command{
			Aliases:     []string{"addaccount"},
			Usage:       "<key> [password]",
			Help:        "Creates an account. Keys may be names, hostmasks, $a:account or rank tokens such as $o:#channel.",
			MinArgs:     1,
			MaxArgs:     2,
			Permission:  ".addaccount",
			DenyMessage: "You don't have permission to create accounts.",
			Scope:       command.ScopePrivate | command.ScopeGlobal,
			Handler:     p.addAccount,
		},
		&command.Command{
			Aliases:     []string{"delaccount"},
			Usage:       "<key>",
			Help:        "Deletes an account.",
			MinArgs:     1,
			MaxArgs:     1,
			Permission:  ".delaccount",
			DenyMessage: "You don't have permission to delete accounts.",
			Scope:       command.ScopeAll,
			Handler:     p.delAccount,
		},
		&command.Command{
			Aliases:     []string{"grant"},
			Usage:       "<key> <permission>",
			Help:        "Adds a permission rule to an account. Prefix the rule with - to deny.",
			MinArgs:     2,
			MaxArgs:     2,
			Permission:  ".grant",
			DenyMessage: "You don't have permission to grant permissions.",
			Scope:       command.ScopeAll,
			Handler:     p.grant,
		},
		&command.Command{
			Aliases:     []string{"revoke"},
			Usage:       "<key> <permission>",
			Help:        "Removes a permission rule from an account.",
			MinArgs:     2,
			MaxArgs:     2,
			Permission:  ".revoke",
			DenyMessage: "You don't have permission to revoke permissions.",
			Scope:       command.ScopeAll,
			Handler:     p.revoke,
		},
		&command.Command{
			Aliases:     []string{"permissions", "perms"},
			Usage:       "<key>",
			Help:        "Lists the permission rules of an account.",
			MinArgs:     1,
			MaxArgs:     1,
			Permission:  ".permissions",
			DenyMessage: "You don't have permission to view permissions.",
			Scope:       command.ScopeAll,
			Handler:     p.permissions,
		},
		&command.Command{
			Aliases: []string{"checkperm"},
			Usage:   "<permission>",
			Help:    "Tells you whether you hold a permission.",
			MinArgs: 1,
			MaxArgs: 1,
			Scope:   command.ScopeAll,
			Handler: p.checkPerm,
		},
	)
	return p
}

func (p *Accounts) identify(ctx *command.Context) error {
	conn, ok := routerConn(ctx)
	if !ok {
		return errors.New("connection does not support identification")
	}
	name, password := ctx.Sender.Nickname, ctx.Args[0]
	if len(ctx.Args) == 2 {
		name, password = ctx.Args[0], ctx.Args[1]
	}

	id, err := p.env.Core.Identify(conn, ctx.Sender, name, password)
	switch {
	case err == nil:
		ctx.Whisperf("You have identified successfully as \x02%s\x02.", id.Account)
		return nil
	case errors.Is(err, router.ErrAlreadyIdentified):
		return ctx.Failf("You are already identified as \x02%s\x02.", id.Account)
	case errors.Is(err, router.ErrNoSuchAccount):
		return ctx.Fail("There is no account by that name.")
	case errors.Is(err, router.ErrBadCredentials):
		p.env.Log.Warn("failed identification", "network", ctx.Target.Network, "hostmask", ctx.Sender.Hostmask(), "account", name)
		return ctx.Fail("That password is incorrect.")
	case errors.Is(err, router.ErrNotVisible):
		return ctx.Fail("You must be in a channel with me to identify.")
	default:
		return err
	}
}

func (p *Accounts) logout(ctx *command.Context) error {
	conn, ok := routerConn(ctx)
	if !ok {
		return errors.New("connection does not support identification")
	}
	id, ok := p.env.Core.Logout(conn, ctx.Sender)
	if !ok {
		return ctx.Fail("You're not identified.")
	}
	ctx.Whisperf("You have logged out of \x02%s\x02.", id.Account)
	return nil
}

func (p *Accounts) passwd(ctx *command.Context) error {
	name, ok := p.env.Core.Identifications.Account(ctx.Sender.Network, ctx.Sender.Nickname)
	if !ok {
		return ctx.Fail("You must identify first.")
	}
	err := p.env.Core.Accounts.Update(name, func(a *accounts.Account) error {
		return a.SetPassword(ctx.Args[0])
	})
	if errors.Is(err, accounts.ErrNotFound) {
		return ctx.Fail("Your account no longer exists.")
	}
	if err != nil {
		return err
	}
	if err := p.env.persist(); err != nil {
		return err
	}
	ctx.Whisper("Your password has been changed.")
	return nil
}

func (p *Accounts) whoami(ctx *command.Context) error {
	conn, ok := routerConn(ctx)
	if !ok {
		return errors.New("connection does not support identification")
	}
	if name, ok := p.env.Core.Identifications.Account(ctx.Sender.Network, ctx.Sender.Nickname); ok {
		ctx.Whisperf("You are identified as \x02%s\x02.", name)
	} else {
		ctx.Whisper("You are not identified.")
	}

	var keys []string
	for _, m := range p.env.Core.Resolver.Matching(ctx.Sender, conn) {
		keys = append(keys, m.Key)
	}
	if len(keys) == 0 {
		ctx.Whisper("No accounts apply to you.")
		return nil
	}
	ctx.Whisperf("Accounts that apply to you: %s", strings.Join(keys, ", "))
	return nil
}

func (p *Accounts) addAccount(ctx *command.Context) error {
	key := ctx.Args[0]
	a := &accounts.Account{}
	if len(ctx.Args) == 2 {
		if !router.IsAccountName(key) {
			return ctx.Fail("Only named accounts can have a password.")
		}
		if err := a.SetPassword(ctx.Args[1]); err != nil {
			return err
		}
	}
	if err := p.env.Core.Accounts.Create(key, a); err != nil {
		if errors.Is(err, accounts.ErrExists) {
			return ctx.Failf("The account \x02%s\x02 already exists.", key)
		}
		return err
	}
	if err := p.env.persist(); err != nil {
		return err
	}
	ctx.Whisperf("Created account \x02%s\x02.", key)
	return nil
}

func (p *Accounts) delAccount(ctx *command.Context) error {
	key := ctx.Args[0]
	if !p.env.Core.DeleteAccount(key) {
		return ctx.Failf("There is no account \x02%s\x02.", key)
	}
	if err := p.env.persist(); err != nil {
		return err
	}
	ctx.Whisperf("Deleted account \x02%s\x02.", key)
	return nil
}

func (p *Accounts) grant(ctx *command.Context) error {
	key, rule := ctx.Args[0], ctx.Args[1]
	if !permission.Valid(rule) {
		return ctx.Failf("\x02%s\x02 is not a valid permission rule.", rule)
	}
	return p.editRules(ctx, key, rule, (*accounts.Account).Grant, "Granted", "already has")
}

func (p *Accounts) revoke(ctx *command.Context) error {
	key, rule := ctx.Args[0], ctx.Args[1]
	return p.editRules(ctx, key, rule, (*accounts.Account).Revoke, "Revoked", "does not have")
}

func (p *Accounts) editRules(ctx *command.Context, key, rule string, edit func(*accounts.Account, string) bool, done, unchanged string) error {
	changed := false
	err := p.env.Core.Accounts.Update(key, func(a *accounts.Account) error {
		changed = edit(a, rule)
		return nil
	})
	if errors.Is(err, accounts.ErrNotFound) {
		return ctx.Failf("There is no account \x02%s\x02.", key)
	}
	if err != nil {
		return err
	}
	if !changed {
		return ctx.Failf("\x02%s\x02 %s \x02%s\x02.", key, unchanged, rule)
	}
	if err := p.env.persist(); err != nil {
		return err
	}
	ctx.Whisperf("%s \x02%s\x02 for \x02%s\x02.", done, rule, key)
	return nil
}

func (p *Accounts) permissions(ctx *command.Context) error {
	key := ctx.Args[0]
	a, ok := p.env.Core.Accounts.Get(key)
	if !ok {
		return ctx.Failf("There is no account \x02%s\x02.", key)
	}
	if len(a.Permissions) == 0 {
		ctx.Whisperf("\x02%s\x02 has no permission rules.", key)
		return nil
	}
	ctx.Whisperf("Permissions of \x02%s\x02: %s", key, strings.Join(a.Permissions, " "))
	return nil
}

func (p *Accounts) checkPerm(ctx *command.Context) error {
	perm := ctx.Args[0]
	if ctx.Permission(perm) {
		ctx.Whisperf("You have the permission \x02%s\x02.", perm)
	} else {
		ctx.Whisperf("You do not have the permission \x02%s\x02.", perm)
	}
	return nil
}
